package codec

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ssargent/framewire/pkg/channel"
	"github.com/ssargent/framewire/pkg/framer"
	"github.com/ssargent/framewire/pkg/telem"
)

func newTestCodec(t *testing.T, keys channel.Keys, dts []telem.DataType, opts ...Option) *Codec {
	t.Helper()
	c := New(append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)...)
	require.NoError(t, c.Update(keys, dts))
	return c
}

func series[T telem.Sample](tr telem.TimeRange, a telem.Alignment, data ...T) telem.Series {
	s := telem.NewSeries(data)
	s.TimeRange = tr
	s.Alignment = a
	return s
}

func TestCodec_NotInitialized(t *testing.T) {
	c := New()
	assert.False(t, c.Initialized())
	assert.Equal(t, uint32(0), c.SeqNum())

	_, err := c.Encode(framer.Frame{}, 0)
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = c.Decode([]byte{0, 1, 0, 0, 0}, 0)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestCodec_Update(t *testing.T) {
	c := New()
	err := c.Update(channel.Keys{1, 2}, []telem.DataType{telem.Int8T})
	assert.ErrorIs(t, err, ErrKeyTypeCount)
	assert.False(t, c.Initialized())

	require.NoError(t, c.Update(nil, nil))
	assert.True(t, c.Initialized())
	assert.Equal(t, uint32(1), c.SeqNum())

	require.NoError(t, c.Update(channel.Keys{3, 1}, []telem.DataType{telem.StringT, telem.Int8T}))
	assert.Equal(t, uint32(2), c.SeqNum())

	st := c.current()
	assert.Equal(t, channel.Keys{1, 3}, st.keys)
	assert.Equal(t, telem.StringT, st.dataTypes[3], "types follow the unsorted pairing")
	assert.Equal(t, telem.Int8T, st.dataTypes[1])
	assert.True(t, st.hasVariable)
}

func TestCodec_UniformFrameLayout(t *testing.T) {
	c := newTestCodec(t, channel.Keys{10, 20}, []telem.DataType{telem.Float32T, telem.Int32T})
	tr := telem.TimeRange{Start: 100, End: 200}
	frame := framer.NewFrame(
		channel.Keys{20, 10},
		[]telem.Series{
			series[int32](tr, 0, 4, 5, 6),
			series[float32](tr, 0, 1, 2, 3),
		},
	)

	b, err := c.Encode(frame, 0)
	require.NoError(t, err)

	fl := flags(b[0])
	assert.True(t, fl.has(allChannelsPresent))
	assert.True(t, fl.has(equalLengths))
	assert.True(t, fl.has(equalTimeRanges))
	assert.False(t, fl.has(timeRangesZero))
	assert.True(t, fl.has(equalAlignments))
	assert.True(t, fl.has(zeroAlignments))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(b[1:5]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(b[5:9]), "shared length")
	assert.Equal(t, uint64(100), binary.LittleEndian.Uint64(b[9:17]), "shared start")
	assert.Equal(t, uint64(200), binary.LittleEndian.Uint64(b[17:25]), "shared end")
	assert.Len(t, b, 25+12+12)

	got, err := c.Decode(b, 0)
	require.NoError(t, err)
	assert.Equal(t, channel.Keys{10, 20}, got.Keys)
	assert.Equal(t, frame.Sorted().Series, got.Series)
	for _, s := range got.Series {
		assert.Equal(t, tr, s.TimeRange)
	}
}

func TestCodec_FlagMinimality(t *testing.T) {
	keys := channel.Keys{1, 2, 3}
	dts := []telem.DataType{telem.Float64T, telem.Float64T, telem.Float64T}
	c := newTestCodec(t, keys, dts)
	tr := telem.TimeRange{Start: 5, End: 10}
	a := telem.NewAlignment(1, 9)

	frame := framer.NewFrame(keys, []telem.Series{
		series[float64](tr, a, 1, 2),
		series[float64](tr, a, 3, 4),
		series[float64](tr, a, 5, 6),
	})
	b, err := c.Encode(frame, 0)
	require.NoError(t, err)

	// header + shared length + shared range + shared alignment + payload
	assert.Len(t, b, headerSize+lengthSize+timeRangeSize+alignmentSize+3*16)
	assert.Equal(t, flags(0b011101), flags(b[0]))
}

func TestCodec_ZeroTimeRangesAndAlignments(t *testing.T) {
	c := newTestCodec(t, channel.Keys{1, 2}, []telem.DataType{telem.Uint8T, telem.Uint8T})
	frame := framer.NewFrame(channel.Keys{1, 2}, []telem.Series{
		telem.NewSeriesV[uint8](1, 2),
		telem.NewSeriesV[uint8](3, 4),
	})
	b, err := c.Encode(frame, 0)
	require.NoError(t, err)

	fl := flags(b[0])
	assert.True(t, fl.has(timeRangesZero))
	assert.True(t, fl.has(zeroAlignments))
	assert.Len(t, b, headerSize+lengthSize+4)

	got, err := c.Decode(b, 0)
	require.NoError(t, err)
	assert.Equal(t, frame, got)
}

func heterogeneousFrame() framer.Frame {
	return framer.NewFrame(
		channel.Keys{30, 10, 20},
		[]telem.Series{
			series[int64](telem.TimeRange{Start: 7, End: 9}, telem.NewAlignment(2, 0), 1),
			series[float32](telem.TimeRange{Start: 1, End: 2}, telem.NewAlignment(0, 5), 1.5, 2.5, 3.5),
			series[uint16](telem.TimeRange{Start: 3, End: 4}, telem.NewAlignment(1, 1), 9, 8),
		},
	)
}

func heterogeneousCodec(t *testing.T) *Codec {
	return newTestCodec(t,
		channel.Keys{10, 20, 30, 40},
		[]telem.DataType{telem.Float32T, telem.Uint16T, telem.Int64T, telem.StringT},
	)
}

func TestCodec_HeterogeneousRoundTrip(t *testing.T) {
	c := heterogeneousCodec(t)
	frame := heterogeneousFrame()

	b, err := c.Encode(frame, 0)
	require.NoError(t, err)

	fl := flags(b[0])
	assert.False(t, fl.has(allChannelsPresent))
	assert.False(t, fl.has(equalLengths))
	assert.False(t, fl.has(equalTimeRanges))
	assert.False(t, fl.has(equalAlignments))

	got, err := c.Decode(b, 0)
	require.NoError(t, err)
	assert.Equal(t, frame.Sorted(), got)
}

func TestCodec_VariableDataTypes(t *testing.T) {
	c := newTestCodec(t,
		channel.Keys{1, 2},
		[]telem.DataType{telem.StringT, telem.Uint32T},
	)
	frame := framer.NewFrame(channel.Keys{1, 2}, []telem.Series{
		telem.NewStringsV("ab", "c"),
		telem.NewSeriesV[uint32](1, 2),
	})

	b, err := c.Encode(frame, 0)
	require.NoError(t, err)
	assert.False(t, flags(b[0]).has(equalLengths), "states with variable types never share a length")

	// the string series length is written as a byte count
	assert.Equal(t, uint32(5), binary.LittleEndian.Uint32(b[5:9]))

	got, err := c.Decode(b, 0)
	require.NoError(t, err)
	assert.Equal(t, frame, got)
	strs, err := telem.Strings(got.Series[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"ab", "c"}, strs)
}

func TestCodec_DuplicateKeys(t *testing.T) {
	c := newTestCodec(t, channel.Keys{1, 2}, []telem.DataType{telem.Int8T, telem.Int8T})
	frame := framer.NewFrame(channel.Keys{2, 1, 2}, []telem.Series{
		telem.NewSeriesV[int8](1),
		telem.NewSeriesV[int8](2),
		telem.NewSeriesV[int8](3),
	})
	b, err := c.Encode(frame, 0)
	require.NoError(t, err)
	assert.False(t, flags(b[0]).has(allChannelsPresent))

	got, err := c.Decode(b, 0)
	require.NoError(t, err)
	assert.Equal(t, frame.Sorted(), got)
}

func TestCodec_EmptyFrame(t *testing.T) {
	c := newTestCodec(t, channel.Keys{1}, []telem.DataType{telem.Int8T})
	b, err := c.Encode(framer.Frame{}, 0)
	require.NoError(t, err)

	got, err := c.Decode(b, 0)
	require.NoError(t, err)
	assert.True(t, got.Empty())
}

func TestCodec_Offset(t *testing.T) {
	c := heterogeneousCodec(t)
	frame := heterogeneousFrame()

	plain, err := c.Encode(frame, 0)
	require.NoError(t, err)
	b, err := c.Encode(frame, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0}, b[:3])
	assert.Equal(t, plain, b[3:])

	got, err := c.Decode(b, 3)
	require.NoError(t, err)
	assert.Equal(t, frame.Sorted(), got)

	got, err = c.Decode(b, len(b)+1)
	require.NoError(t, err)
	assert.True(t, got.Empty())
}

func TestCodec_EncodeValidation(t *testing.T) {
	c := newTestCodec(t, channel.Keys{1}, []telem.DataType{telem.Float64T})

	_, err := c.Encode(framer.UnaryFrame(2, telem.NewSeriesV[float64](1)), 0)
	assert.ErrorIs(t, err, ErrChannelNotDeclared)

	_, err = c.Encode(framer.UnaryFrame(1, telem.NewSeriesV[float32](1)), 0)
	assert.ErrorIs(t, err, ErrDataTypeMismatch)
	assert.Contains(t, err.Error(), "channel 1")

	_, err = c.Encode(framer.Frame{Keys: channel.Keys{1}}, 0)
	assert.Error(t, err)

	// 12 bytes is one and a half float64 samples.
	_, err = c.Encode(framer.UnaryFrame(1, telem.Series{DataType: telem.Float64T, Data: make([]byte, 12)}), 0)
	assert.ErrorIs(t, err, ErrPartialSample)
	assert.Contains(t, err.Error(), "channel 1")

	_, err = c.Encode(framer.UnaryFrame(1, telem.Series{DataType: telem.Float64T, Data: make([]byte, 16)}), 0)
	assert.NoError(t, err)
}

func TestCodec_VersionSkew(t *testing.T) {
	enc := newTestCodec(t, channel.Keys{1, 2}, []telem.DataType{telem.Int32T, telem.Int32T})
	dec := newTestCodec(t, channel.Keys{1, 2}, []telem.DataType{telem.Int32T, telem.Int32T})

	frame := framer.NewFrame(channel.Keys{1, 2}, []telem.Series{
		telem.NewSeriesV[int32](1, 2),
		telem.NewSeriesV[int32](3, 4),
	})
	b, err := enc.Encode(frame, 0)
	require.NoError(t, err)

	require.NoError(t, dec.Update(channel.Keys{3}, []telem.DataType{telem.StringT}))
	require.NoError(t, dec.Update(channel.Keys{1, 2, 3}, []telem.DataType{telem.Int8T, telem.Int8T, telem.StringT}))
	assert.Equal(t, uint32(3), dec.SeqNum())

	got, err := dec.Decode(b, 0)
	require.NoError(t, err)
	assert.Equal(t, frame, got)
}

func TestCodec_UnknownSeqNum(t *testing.T) {
	enc := New()
	for i := 0; i < 3; i++ {
		require.NoError(t, enc.Update(channel.Keys{1}, []telem.DataType{telem.Int8T}))
	}
	b, err := enc.Encode(framer.UnaryFrame(1, telem.NewSeriesV[int8](1)), 0)
	require.NoError(t, err)

	dec := newTestCodec(t, channel.Keys{1}, []telem.DataType{telem.Int8T})
	got, err := dec.Decode(b, 0)
	require.NoError(t, err)
	assert.True(t, got.Empty())
}

func TestCodec_Retention(t *testing.T) {
	c := newTestCodec(t, channel.Keys{1}, []telem.DataType{telem.Int8T}, WithRetention(2))
	frame := framer.UnaryFrame(1, telem.NewSeriesV[int8](7))
	first, err := c.Encode(frame, 0)
	require.NoError(t, err)

	require.NoError(t, c.Update(channel.Keys{1}, []telem.DataType{telem.Int8T}))
	got, err := c.Decode(first, 0)
	require.NoError(t, err)
	assert.Equal(t, frame, got, "superseded state still inside the window")

	require.NoError(t, c.Update(channel.Keys{1}, []telem.DataType{telem.Int8T}))
	got, err = c.Decode(first, 0)
	require.NoError(t, err)
	assert.True(t, got.Empty(), "evicted state decodes to an empty frame")
}

func TestCodec_Truncation(t *testing.T) {
	c := heterogeneousCodec(t)
	frame := heterogeneousFrame()
	expected := frame.Sorted()

	b, err := c.Encode(frame, 0)
	require.NoError(t, err)

	// key + length + data + time range + alignment for keys 10, 20, 30
	ends := []int{
		headerSize + 4 + 4 + 12 + 16 + 8,
	}
	ends = append(ends, ends[0]+4+4+4+16+8)
	ends = append(ends, ends[1]+4+4+8+16+8)
	require.Equal(t, len(b), ends[2])

	for n := 0; n <= len(b); n++ {
		got, err := c.Decode(b[:n], 0)
		require.NoError(t, err, "prefix %d", n)

		want := 0
		for _, end := range ends {
			if n >= end {
				want++
			}
		}
		require.Equal(t, want, got.Len(), "prefix %d", n)
		if want > 0 {
			assert.Equal(t, expected.Keys[:want], got.Keys)
			assert.Equal(t, expected.Series[:want], got.Series)
		}
	}
}

func TestCodec_TruncatedSharedFields(t *testing.T) {
	c := newTestCodec(t, channel.Keys{1, 2}, []telem.DataType{telem.Int8T, telem.Int8T})
	tr := telem.TimeRange{Start: 1, End: 2}
	frame := framer.NewFrame(channel.Keys{1, 2}, []telem.Series{
		series[int8](tr, 4, 1),
		series[int8](tr, 4, 2),
	})
	b, err := c.Encode(frame, 0)
	require.NoError(t, err)

	sharedEnd := headerSize + lengthSize + timeRangeSize + alignmentSize
	for n := 0; n < sharedEnd; n++ {
		got, err := c.Decode(b[:n], 0)
		require.NoError(t, err)
		assert.True(t, got.Empty(), "prefix %d", n)
	}
	got, err := c.Decode(b[:sharedEnd+1], 0)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
}

func TestCodec_UnplaceableKeyEndsFrame(t *testing.T) {
	enc := newTestCodec(t, channel.Keys{1, 2, 3}, []telem.DataType{telem.Int8T, telem.Int8T, telem.Int8T})
	dec := newTestCodec(t, channel.Keys{1, 3}, []telem.DataType{telem.Int8T, telem.Int8T})

	frame := framer.NewFrame(channel.Keys{1, 2, 3}, []telem.Series{
		telem.NewSeriesV[int8](1),
		telem.NewSeriesV[int8](2),
		telem.NewSeriesV[int8](3),
	})
	require.NoError(t, enc.Update(channel.Keys{1, 2, 3, 4}, []telem.DataType{telem.Int8T, telem.Int8T, telem.Int8T, telem.Int8T}))
	b, err := enc.Encode(frame, 0)
	require.NoError(t, err)
	// Rewrite the sequence number so the decoder applies its own state.
	binary.LittleEndian.PutUint32(b[1:5], 1)

	got, err := dec.Decode(b, 0)
	require.NoError(t, err)
	assert.Equal(t, channel.Keys{1}, got.Keys)
}
