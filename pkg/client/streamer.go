package client

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ssargent/framewire/pkg/channel"
	"github.com/ssargent/framewire/pkg/envelope"
	"github.com/ssargent/framewire/pkg/framer"
	"github.com/ssargent/framewire/pkg/telem"
)

// Streamer receives live frames for a set of channels. Read must not be called
// concurrently with itself; Update and Close may be called from any goroutine.
type Streamer struct {
	mu     sync.Mutex
	conn   conn
	codec  *envelope.StreamerCodec
	logger *zap.Logger
}

// OpenStreamer dials the server at baseURL and subscribes to keys, where dataTypes[i]
// is the data type of keys[i]. It returns once the server has applied the subscription.
func OpenStreamer(
	ctx context.Context,
	baseURL string,
	keys channel.Keys,
	dataTypes []telem.DataType,
	opts ...Option,
) (*Streamer, error) {
	o := newOptions(opts)
	ws, err := dial(ctx, baseURL, streamPath, o)
	if err != nil {
		return nil, err
	}
	s := &Streamer{
		conn:   conn{ws: ws, writeTimeout: o.writeTimeout},
		codec:  envelope.NewStreamerCodec(o.envelopeOptions()...),
		logger: o.logger,
	}
	if err := s.request(ctx, framer.MessageOpen, keys, dataTypes); err != nil {
		_ = s.conn.close()
		return nil, err
	}
	for {
		msg, err := s.receive(ctx)
		if err != nil {
			_ = s.conn.close()
			return nil, errors.Wrap(err, "open streamer")
		}
		if msg.Type == framer.MessageOpen {
			break
		}
	}
	s.logger.Debug("streamer opened", zap.Stringers("keys", keys))
	return s, nil
}

// Read returns the next non-empty frame. Cancelling ctx interrupts the read and
// leaves the streamer unusable.
func (s *Streamer) Read(ctx context.Context) (framer.Frame, error) {
	for {
		msg, err := s.receive(ctx)
		if err != nil {
			return framer.Frame{}, err
		}
		if msg.Type == framer.MessageData && !msg.Payload.Frame.Empty() {
			return msg.Payload.Frame, nil
		}
	}
}

// Update replaces the streamer's channels. Frames for the previous channels may still
// arrive until the server applies the change. A request the server rejects ends the
// session: the next Read returns ErrRejected.
func (s *Streamer) Update(ctx context.Context, keys channel.Keys, dataTypes []telem.DataType) error {
	return s.request(ctx, framer.MessageData, keys, dataTypes)
}

// Close ends the session.
func (s *Streamer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if data, encErr := s.codec.EncodeRequest(context.Background(), envelope.StreamerRequestMessage{
		Type: framer.MessageClose,
	}); encErr == nil {
		err = s.conn.send(data)
	}
	return multierr.Append(err, s.conn.close())
}

func (s *Streamer) request(
	ctx context.Context,
	typ framer.MessageType,
	keys channel.Keys,
	dataTypes []telem.DataType,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.codec.Update(keys, dataTypes); err != nil {
		return err
	}
	data, err := s.codec.EncodeRequest(ctx, envelope.StreamerRequestMessage{
		Type:    typ,
		Payload: framer.StreamerRequest{Keys: keys},
	})
	if err != nil {
		return err
	}
	return s.conn.send(data)
}

func (s *Streamer) receive(ctx context.Context) (envelope.StreamerResponseMessage, error) {
	data, err := s.conn.read(ctx)
	if err != nil {
		return envelope.StreamerResponseMessage{}, err
	}
	msg, err := s.codec.DecodeResponse(data)
	if err != nil {
		return msg, err
	}
	if msg.Error != "" {
		return msg, errors.Wrap(ErrRejected, msg.Error)
	}
	return msg, nil
}
