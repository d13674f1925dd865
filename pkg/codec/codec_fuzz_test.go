//go:build fuzz
// +build fuzz

package codec

import (
	"testing"

	"github.com/ssargent/framewire/pkg/channel"
	"github.com/ssargent/framewire/pkg/framer"
	"github.com/ssargent/framewire/pkg/telem"
)

func fuzzCodec() *Codec {
	c := New()
	_ = c.Update(
		channel.Keys{1, 2, 3},
		[]telem.DataType{telem.Float64T, telem.StringT, telem.Uint8T},
	)
	return c
}

// FuzzCodec_Decode checks that arbitrary input never panics the decoder
func FuzzCodec_Decode(f *testing.F) {
	c := fuzzCodec()
	seed, _ := c.Encode(framer.NewFrame(
		channel.Keys{1, 2, 3},
		[]telem.Series{
			telem.NewSeriesV[float64](1, 2),
			telem.NewStringsV("a", "b"),
			telem.NewSeriesV[uint8](1, 2),
		},
	), 0)
	f.Add(seed)
	f.Add([]byte{})
	f.Add([]byte{0xFF, 1, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, data []byte) {
		frame, err := c.Decode(data, 0)
		if err != nil {
			t.Fatalf("Decode returned error: %v", err)
		}
		if len(frame.Keys) != len(frame.Series) {
			t.Fatalf("Decode returned %d keys for %d series", len(frame.Keys), len(frame.Series))
		}
	})
}

// FuzzCodec_RoundTrip encodes random payloads and checks they decode unchanged
func FuzzCodec_RoundTrip(f *testing.F) {
	c := fuzzCodec()

	f.Add([]byte{1, 2, 3, 4, 5, 6, 7, 8}, "hello", []byte{9}, int64(0), uint64(0))
	f.Add([]byte{}, "", []byte{}, int64(100), uint64(1<<40))

	f.Fuzz(func(t *testing.T, floats []byte, str string, small []byte, start int64, align uint64) {
		if len(floats) > 1<<12 || len(str) > 1<<12 || len(small) > 1<<12 {
			t.Skip("Input too large for fuzz test")
		}
		floats = floats[:len(floats)/8*8]
		tr := telem.TimeRange{Start: telem.TimeStamp(start), End: telem.TimeStamp(start) + 1}
		in := framer.NewFrame(
			channel.Keys{3, 1, 2},
			[]telem.Series{
				{DataType: telem.Uint8T, Data: small, TimeRange: tr, Alignment: telem.Alignment(align)},
				{DataType: telem.Float64T, Data: floats, TimeRange: tr},
				telem.NewStringsV(str),
			},
		)

		b, err := c.Encode(in, 0)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		out, err := c.Decode(b, 0)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		want := in.Sorted()
		if out.Len() != want.Len() {
			t.Fatalf("Decoded %d series, want %d", out.Len(), want.Len())
		}
		for i := range want.Keys {
			if out.Keys[i] != want.Keys[i] {
				t.Errorf("Key mismatch at %d: got %d, want %d", i, out.Keys[i], want.Keys[i])
			}
			if string(out.Series[i].Data) != string(want.Series[i].Data) {
				t.Errorf("Data mismatch for key %d", want.Keys[i])
			}
			if out.Series[i].TimeRange != want.Series[i].TimeRange {
				t.Errorf("Time range mismatch for key %d", want.Keys[i])
			}
			if out.Series[i].Alignment != want.Series[i].Alignment {
				t.Errorf("Alignment mismatch for key %d", want.Keys[i])
			}
		}
	})
}
