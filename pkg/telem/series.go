package telem

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-json"
)

// Series is the payload of a single channel within a frame.
type Series struct {
	DataType  DataType  `json:"data_type" msgpack:"data_type"`
	Data      []byte    `json:"data" msgpack:"data"`
	TimeRange TimeRange `json:"time_range" msgpack:"time_range"`
	Alignment Alignment `json:"alignment" msgpack:"alignment"`
}

// Len returns the number of samples in the series.
func (s Series) Len() int {
	if s.DataType.IsVariable() {
		return bytes.Count(s.Data, newline)
	}
	return s.DataType.Density().SampleCount(len(s.Data))
}

// Size returns the byte length of the series data.
func (s Series) Size() int { return len(s.Data) }

// Sample is the set of Go types that map directly onto a fixed width DataType.
type Sample interface {
	float64 | float32 | int64 | int32 | int16 | int8 |
		uint64 | uint32 | uint16 | uint8 | TimeStamp
}

// DataTypeOf returns the DataType for the sample type T.
func DataTypeOf[T Sample]() DataType {
	var v T
	switch any(v).(type) {
	case float64:
		return Float64T
	case float32:
		return Float32T
	case int64:
		return Int64T
	case int32:
		return Int32T
	case int16:
		return Int16T
	case int8:
		return Int8T
	case uint64:
		return Uint64T
	case uint32:
		return Uint32T
	case uint16:
		return Uint16T
	case uint8:
		return Uint8T
	case TimeStamp:
		return TimeStampT
	}
	return UnknownT
}

// NewSeries encodes data as a little endian fixed width series.
func NewSeries[T Sample](data []T) Series {
	dt := DataTypeOf[T]()
	den := int(dt.Density())
	b := make([]byte, den*len(data))
	for i, v := range data {
		putSample(b[i*den:], v)
	}
	return Series{DataType: dt, Data: b}
}

// NewSeriesV is the variadic form of NewSeries.
func NewSeriesV[T Sample](data ...T) Series { return NewSeries(data) }

// UnmarshalSeries decodes the samples of s. It returns an error when the series data
// type does not match T.
func UnmarshalSeries[T Sample](s Series) ([]T, error) {
	dt := DataTypeOf[T]()
	if s.DataType != dt {
		return nil, errors.Newf("cannot unmarshal %s series as %s", s.DataType, dt)
	}
	den := int(dt.Density())
	out := make([]T, len(s.Data)/den)
	for i := range out {
		out[i] = sampleAt[T](s.Data[i*den:])
	}
	return out, nil
}

var newline = []byte("\n")

// NewStrings builds a variable width string series.
func NewStrings(data []string) Series {
	var buf bytes.Buffer
	for _, s := range data {
		buf.WriteString(s)
		buf.Write(newline)
	}
	return Series{DataType: StringT, Data: buf.Bytes()}
}

// NewStringsV is the variadic form of NewStrings.
func NewStringsV(data ...string) Series { return NewStrings(data) }

// NewJSON marshals each value into a JSON series with one document per line.
func NewJSON(values ...any) (Series, error) {
	var buf bytes.Buffer
	for _, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return Series{}, errors.Wrap(err, "marshal json sample")
		}
		buf.Write(b)
		buf.Write(newline)
	}
	return Series{DataType: JSONT, Data: buf.Bytes()}, nil
}

// Strings splits a variable width series back into its samples.
func Strings(s Series) ([]string, error) {
	if !s.DataType.IsVariable() {
		return nil, errors.Newf("cannot read %s series as strings", s.DataType)
	}
	if len(s.Data) == 0 {
		return nil, nil
	}
	parts := bytes.Split(bytes.TrimSuffix(s.Data, newline), newline)
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = string(p)
	}
	return out, nil
}

func putSample[T Sample](b []byte, v T) {
	switch x := any(v).(type) {
	case float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(x))
	case float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(x))
	case int64:
		binary.LittleEndian.PutUint64(b, uint64(x))
	case int32:
		binary.LittleEndian.PutUint32(b, uint32(x))
	case int16:
		binary.LittleEndian.PutUint16(b, uint16(x))
	case int8:
		b[0] = byte(x)
	case uint64:
		binary.LittleEndian.PutUint64(b, x)
	case uint32:
		binary.LittleEndian.PutUint32(b, x)
	case uint16:
		binary.LittleEndian.PutUint16(b, x)
	case uint8:
		b[0] = x
	case TimeStamp:
		binary.LittleEndian.PutUint64(b, uint64(x))
	}
}

func sampleAt[T Sample](b []byte) T {
	var v T
	switch any(v).(type) {
	case float64:
		return any(math.Float64frombits(binary.LittleEndian.Uint64(b))).(T)
	case float32:
		return any(math.Float32frombits(binary.LittleEndian.Uint32(b))).(T)
	case int64:
		return any(int64(binary.LittleEndian.Uint64(b))).(T)
	case int32:
		return any(int32(binary.LittleEndian.Uint32(b))).(T)
	case int16:
		return any(int16(binary.LittleEndian.Uint16(b))).(T)
	case int8:
		return any(int8(b[0])).(T)
	case uint64:
		return any(binary.LittleEndian.Uint64(b)).(T)
	case uint32:
		return any(binary.LittleEndian.Uint32(b)).(T)
	case uint16:
		return any(binary.LittleEndian.Uint16(b)).(T)
	case uint8:
		return any(b[0]).(T)
	case TimeStamp:
		return any(TimeStamp(binary.LittleEndian.Uint64(b))).(T)
	}
	return v
}
