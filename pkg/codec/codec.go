package codec

import (
	"encoding/binary"
	"slices"
	"sort"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ssargent/framewire/pkg/channel"
	"github.com/ssargent/framewire/pkg/framer"
	"github.com/ssargent/framewire/pkg/telem"
)

var (
	// ErrNotInitialized is returned by Encode and Decode before the first Update.
	ErrNotInitialized = errors.New("codec not initialized, call Update first")
	// ErrChannelNotDeclared is returned when a frame holds a key absent from the
	// current state.
	ErrChannelNotDeclared = errors.New("channel not declared in codec state")
	// ErrDataTypeMismatch is returned when a series data type differs from the type
	// declared for its channel.
	ErrDataTypeMismatch = errors.New("series data type does not match channel")
	// ErrPartialSample is returned when a fixed-width series holds a byte count that is
	// not a whole number of samples.
	ErrPartialSample = errors.New("series data is not a whole number of samples")
	// ErrKeyTypeCount is returned by Update when keys and data types differ in length.
	ErrKeyTypeCount = errors.New("keys and data types must have the same length")
)

const (
	flagsSize     = 1
	seqNumSize    = 4
	headerSize    = flagsSize + seqNumSize
	keySize       = 4
	lengthSize    = 4
	timeRangeSize = 16
	alignmentSize = 8
)

// Codec encodes frames into the compact wire format and decodes them back. A Codec is
// not safe for concurrent use; callers that share one must serialize access.
type Codec struct {
	registry
	logger *zap.Logger
}

// Option configures a Codec.
type Option func(*Codec)

// WithRetention keeps only the n most recent states. Zero keeps every state.
func WithRetention(n int) Option {
	return func(c *Codec) {
		if n > 0 {
			c.retention = n
		}
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Codec) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates an uninitialized codec.
func New(opts ...Option) *Codec {
	c := &Codec{registry: newRegistry(0), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Update registers a new state for keys, where dataTypes[i] is the type of keys[i],
// and makes it current. Frames encoded under earlier states remain decodable while
// those states are retained.
func (c *Codec) Update(keys channel.Keys, dataTypes []telem.DataType) error {
	if len(keys) != len(dataTypes) {
		return errors.Wrapf(ErrKeyTypeCount, "%d keys, %d data types", len(keys), len(dataTypes))
	}
	seq := c.add(newState(keys, dataTypes))
	c.logger.Debug("codec state updated", zap.Uint32("seq_num", seq), zap.Int("channels", len(keys)))
	return nil
}

// Initialized reports whether Update has been called.
func (c *Codec) Initialized() bool { return c.seqNum > 0 }

// SeqNum returns the sequence number of the current state.
func (c *Codec) SeqNum() uint32 { return c.seqNum }

// wireLength is the value written in a length field: the byte length for variable
// types and the sample count otherwise.
func wireLength(s telem.Series) uint32 {
	if s.DataType.IsVariable() {
		return uint32(len(s.Data))
	}
	return uint32(s.Len())
}

// payload returns the bytes written for s.
func payload(s telem.Series) []byte {
	if s.DataType.IsVariable() {
		return s.Data
	}
	return s.Data[:s.DataType.Density().Size(s.Len())]
}

// sortedIndices orders the positions of keys by ascending key.
func sortedIndices(keys channel.Keys) []int {
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return keys[idx[i]] < keys[idx[j]] })
	return idx
}

// Encode writes frame in the compact format. The returned buffer starts with offset
// zero bytes reserved for the caller, followed by the encoded frame.
func (c *Codec) Encode(frame framer.Frame, offset int) ([]byte, error) {
	if !c.Initialized() {
		return nil, ErrNotInitialized
	}
	if len(frame.Keys) != len(frame.Series) {
		return nil, errors.Newf("frame has %d keys and %d series", len(frame.Keys), len(frame.Series))
	}
	st := c.current()

	idx := sortedIndices(frame.Keys)
	sortedKeys := make(channel.Keys, len(idx))
	for i, j := range idx {
		k := frame.Keys[j]
		s := frame.Series[j]
		dt, ok := st.dataTypes[k]
		if !ok {
			return nil, errors.Wrapf(ErrChannelNotDeclared, "channel %d", k)
		}
		if s.DataType != dt {
			return nil, errors.Wrapf(ErrDataTypeMismatch, "channel %d: declared %s, got %s", k, dt, s.DataType)
		}
		if d := int(dt.Density()); d > 0 && len(s.Data)%d != 0 {
			return nil, errors.Wrapf(ErrPartialSample, "channel %d: %d bytes of %s", k, len(s.Data), dt)
		}
		sortedKeys[i] = k
	}

	var (
		fl          = equalLengths | equalTimeRanges | equalAlignments
		refLength   uint32
		refRange    telem.TimeRange
		refAlign    telem.Alignment
		payloadSize int
	)
	fl = fl.set(allChannelsPresent, st.sameKeys(sortedKeys))
	fl = fl.set(equalLengths, !st.hasVariable)
	for i, j := range idx {
		s := frame.Series[j]
		payloadSize += len(payload(s))
		if i == 0 {
			refLength, refRange, refAlign = wireLength(s), s.TimeRange, s.Alignment
			continue
		}
		if wireLength(s) != refLength {
			fl = fl.set(equalLengths, false)
		}
		if s.TimeRange != refRange {
			fl = fl.set(equalTimeRanges, false)
		}
		if s.Alignment != refAlign {
			fl = fl.set(equalAlignments, false)
		}
	}
	fl = fl.set(timeRangesZero, fl.has(equalTimeRanges) && refRange.IsZero())
	fl = fl.set(zeroAlignments, fl.has(equalAlignments) && refAlign == 0)

	size := offset + headerSize + payloadSize
	if fl.has(equalLengths) {
		size += lengthSize
	}
	if fl.sharedTimeRange() {
		size += timeRangeSize
	}
	if fl.sharedAlignment() {
		size += alignmentSize
	}
	perSeries := 0
	if !fl.has(allChannelsPresent) {
		perSeries += keySize
	}
	if !fl.has(equalLengths) {
		perSeries += lengthSize
	}
	if fl.seriesTimeRange() {
		perSeries += timeRangeSize
	}
	if fl.seriesAlignment() {
		perSeries += alignmentSize
	}
	size += perSeries * len(idx)

	w := writer{buf: make([]byte, size), pos: offset}
	w.uint8(uint8(fl))
	w.uint32(c.seqNum)
	if fl.has(equalLengths) {
		w.uint32(refLength)
	}
	if fl.sharedTimeRange() {
		w.timeRange(refRange)
	}
	if fl.sharedAlignment() {
		w.uint64(uint64(refAlign))
	}
	for i, j := range idx {
		s := frame.Series[j]
		if !fl.has(allChannelsPresent) {
			w.uint32(uint32(sortedKeys[i]))
		}
		if !fl.has(equalLengths) {
			w.uint32(wireLength(s))
		}
		w.bytes(payload(s))
		if fl.seriesTimeRange() {
			w.timeRange(s.TimeRange)
		}
		if fl.seriesAlignment() {
			w.uint64(uint64(s.Alignment))
		}
	}
	return w.buf, nil
}

// Decode reads a frame encoded by a codec holding the same states, starting at
// offset. Decode never fails on malformed input: an unknown sequence number yields an
// empty frame and a truncated buffer yields the series fully read before the cut.
func (c *Codec) Decode(data []byte, offset int) (framer.Frame, error) {
	var frame framer.Frame
	if !c.Initialized() {
		return frame, ErrNotInitialized
	}
	if offset < 0 || offset > len(data) {
		return frame, nil
	}
	r := reader{buf: data, pos: offset}
	if !r.has(headerSize) {
		return frame, nil
	}
	fl := flags(r.uint8())
	seqNum := r.uint32()
	st, ok := c.get(seqNum)
	if !ok {
		c.logger.Debug("dropping frame with unknown codec state",
			zap.Uint32("seq_num", seqNum),
			zap.Uint32("current", c.seqNum),
		)
		return frame, nil
	}

	var (
		sharedLength uint32
		sharedRange  telem.TimeRange
		sharedAlign  telem.Alignment
	)
	if fl.has(equalLengths) {
		if !r.has(lengthSize) {
			return frame, nil
		}
		sharedLength = r.uint32()
	}
	if fl.sharedTimeRange() {
		if !r.has(timeRangeSize) {
			return frame, nil
		}
		sharedRange = r.timeRange()
	}
	if fl.sharedAlignment() {
		if !r.has(alignmentSize) {
			return frame, nil
		}
		sharedAlign = telem.Alignment(r.uint64())
	}

	readSeries := func(key channel.Key) bool {
		dt := st.dataTypes[key]
		length := sharedLength
		if !fl.has(equalLengths) {
			if !r.has(lengthSize) {
				return false
			}
			length = r.uint32()
		}
		byteLen := int(length)
		if !dt.IsVariable() {
			byteLen = dt.Density().Size(int(length))
		}
		if !r.has(byteLen) {
			return false
		}
		s := telem.Series{DataType: dt, Data: r.bytes(byteLen), TimeRange: sharedRange, Alignment: sharedAlign}
		if fl.seriesTimeRange() {
			if !r.has(timeRangeSize) {
				return false
			}
			s.TimeRange = r.timeRange()
		}
		if fl.seriesAlignment() {
			if !r.has(alignmentSize) {
				return false
			}
			s.Alignment = telem.Alignment(r.uint64())
		}
		frame = frame.Append(key, s)
		return true
	}

	if fl.has(allChannelsPresent) {
		for _, k := range st.keys {
			if !readSeries(k) {
				break
			}
		}
		return frame, nil
	}

	// Explicit keys arrive in ascending order, so each one is searched for at or after
	// the previous match. A key that cannot be placed ends the frame.
	cursor := 0
	for r.has(keySize) {
		k := channel.Key(r.uint32())
		j := slices.Index(st.keys[cursor:], k)
		if j < 0 {
			break
		}
		cursor += j
		if !readSeries(k) {
			break
		}
	}
	return frame, nil
}

type writer struct {
	buf []byte
	pos int
}

func (w *writer) uint8(v uint8) {
	w.buf[w.pos] = v
	w.pos++
}

func (w *writer) uint32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[w.pos:], v)
	w.pos += 4
}

func (w *writer) uint64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[w.pos:], v)
	w.pos += 8
}

func (w *writer) timeRange(tr telem.TimeRange) {
	w.uint64(uint64(tr.Start))
	w.uint64(uint64(tr.End))
}

func (w *writer) bytes(b []byte) {
	w.pos += copy(w.buf[w.pos:], b)
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) has(n int) bool { return n >= 0 && len(r.buf)-r.pos >= n }

func (r *reader) uint8() uint8 {
	v := r.buf[r.pos]
	r.pos++
	return v
}

func (r *reader) uint32() uint32 {
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) uint64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v
}

func (r *reader) timeRange() telem.TimeRange {
	return telem.TimeRange{Start: telem.TimeStamp(r.uint64()), End: telem.TimeStamp(r.uint64())}
}

func (r *reader) bytes(n int) []byte {
	b := make([]byte, n)
	copy(b, r.buf[r.pos:r.pos+n])
	r.pos += n
	return b
}
