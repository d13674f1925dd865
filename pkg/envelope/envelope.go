// Package envelope multiplexes the compact frame codec with a fallback codec on the
// writer and streamer transports. The first byte of every message is a sentinel that
// selects the format of the rest.
package envelope

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ssargent/framewire/pkg/channel"
	"github.com/ssargent/framewire/pkg/codec"
	"github.com/ssargent/framewire/pkg/framer"
	"github.com/ssargent/framewire/pkg/telem"
)

const (
	// HighPerfSentinel marks a compact frame starting at byte 1.
	HighPerfSentinel byte = 255
	// LowPerfSentinel marks a fallback encoded message starting at byte 1.
	LowPerfSentinel byte = 254
	// ContentType identifies both envelope codecs to content negotiation.
	ContentType = "application/x-framewire"
)

// Format labels which branch a message used.
type Format string

const (
	FormatCompact  Format = "compact"
	FormatFallback Format = "fallback"
)

// FormatOf reports the format of an encoded message.
func FormatOf(data []byte) Format {
	if len(data) > 0 && data[0] == HighPerfSentinel {
		return FormatCompact
	}
	return FormatFallback
}

// ErrEmptyMessage is returned when decoding a zero length message.
var ErrEmptyMessage = errors.New("empty message")

// Option configures an envelope codec.
type Option func(*options)

type options struct {
	fallback  Fallback
	retriever channel.Retriever
	codecOpts []codec.Option
	logger    *zap.Logger
}

// WithFallback replaces the JSON fallback.
func WithFallback(f Fallback) Option {
	return func(o *options) {
		if f != nil {
			o.fallback = f
		}
	}
}

// WithRetriever makes the codec update its frame codec whenever an open or streamer
// request names a new set of keys.
func WithRetriever(r channel.Retriever) Option {
	return func(o *options) { o.retriever = r }
}

// WithCodecOptions passes options through to the underlying frame codec.
func WithCodecOptions(opts ...codec.Option) Option {
	return func(o *options) { o.codecOpts = append(o.codecOpts, opts...) }
}

// WithLogger sets the logger for both the envelope and its frame codec.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// base owns a frame codec and serializes every call into it.
type base struct {
	mu        sync.Mutex
	codec     *codec.Codec
	fallback  Fallback
	retriever channel.Retriever
	logger    *zap.Logger
}

func newBase(opts []Option) *base {
	o := options{fallback: JSON{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	codecOpts := append([]codec.Option{codec.WithLogger(o.logger)}, o.codecOpts...)
	return &base{
		codec:     codec.New(codecOpts...),
		fallback:  o.fallback,
		retriever: o.retriever,
		logger:    o.logger,
	}
}

// ContentType implements content negotiation.
func (b *base) ContentType() string { return ContentType }

// Fallback returns the fallback codec in use.
func (b *base) Fallback() Fallback { return b.fallback }

// Update registers a new frame codec state.
func (b *base) Update(keys channel.Keys, dataTypes []telem.DataType) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.codec.Update(keys, dataTypes)
}

// SeqNum returns the sequence number of the current frame codec state.
func (b *base) SeqNum() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.codec.SeqNum()
}

func (b *base) updateFromRetriever(ctx context.Context, keys channel.Keys) error {
	if b.retriever == nil {
		return nil
	}
	channels, err := b.retriever.RetrieveMany(ctx, keys)
	if err != nil {
		return errors.Wrap(err, "resolve channels for codec update")
	}
	if err := b.Update(channel.KeysOf(channels), channel.DataTypesOf(channels)); err != nil {
		return err
	}
	b.logger.Debug("frame codec updated from channels",
		zap.Stringers("keys", keys),
		zap.Uint32("seq_num", b.SeqNum()),
	)
	return nil
}

func (b *base) encodeFrame(frame framer.Frame) ([]byte, error) {
	b.mu.Lock()
	data, err := b.codec.Encode(frame, 1)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	data[0] = HighPerfSentinel
	return data, nil
}

func (b *base) decodeFrame(data []byte) (framer.Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.codec.Decode(data, 1)
}

func (b *base) encodeFallback(v any) ([]byte, error) {
	payload, err := b.fallback.Encode(v)
	if err != nil {
		return nil, errors.Wrapf(err, "%s encode", b.fallback.Name())
	}
	data := make([]byte, 1+len(payload))
	data[0] = LowPerfSentinel
	copy(data[1:], payload)
	return data, nil
}

// decodeFallback accepts messages with or without the sentinel byte.
func (b *base) decodeFallback(data []byte, v any) error {
	if data[0] == LowPerfSentinel {
		data = data[1:]
	}
	if err := b.fallback.Decode(data, v); err != nil {
		return errors.Wrapf(err, "%s decode", b.fallback.Name())
	}
	return nil
}
