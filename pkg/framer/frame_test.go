package framer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ssargent/framewire/pkg/channel"
	"github.com/ssargent/framewire/pkg/telem"
)

func TestNewFrame_LengthMismatchPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewFrame(channel.Keys{1, 2}, []telem.Series{telem.NewSeriesV[int8](1)})
	})
}

func TestFrame_Sorted(t *testing.T) {
	a := telem.NewSeriesV[int8](1)
	b := telem.NewSeriesV[int8](2)
	c := telem.NewSeriesV[int8](3)
	f := NewFrame(channel.Keys{30, 10, 30}, []telem.Series{a, b, c})

	sorted := f.Sorted()
	assert.Equal(t, channel.Keys{10, 30, 30}, sorted.Keys)
	assert.Equal(t, []telem.Series{b, a, c}, sorted.Series)
	assert.Equal(t, channel.Keys{30, 10, 30}, f.Keys, "source untouched")
}

func TestFrame_Accessors(t *testing.T) {
	var f Frame
	assert.True(t, f.Empty())

	f = f.Append(1, telem.NewSeriesV[uint16](1, 2)).
		Append(2, telem.NewStringsV("x")).
		Append(1, telem.NewSeriesV[uint16](3))
	assert.Equal(t, 3, f.Len())
	assert.Len(t, f.Get(1), 2)
	assert.Empty(t, f.Get(5))
	assert.Equal(t, channel.Keys{1, 2}, f.UniqueKeys())

	filtered := f.FilterKeys(channel.Keys{2})
	assert.Equal(t, channel.Keys{2}, filtered.Keys)
	assert.Equal(t, "{1:uint16[2] 2:string[1] 1:uint16[1]}", f.String())
}

func TestWriterCommand_String(t *testing.T) {
	assert.Equal(t, "open", WriterOpen.String())
	assert.Equal(t, "write", WriterWrite.String())
	assert.Equal(t, "commit", WriterCommit.String())
	assert.Equal(t, "unknown", WriterCommand(42).String())
}
