// Package framer defines frames, the unit of multi-channel telemetry exchanged between
// writers, streamers and the server, along with the messages that carry them.
package framer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/ssargent/framewire/pkg/channel"
	"github.com/ssargent/framewire/pkg/telem"
)

// Frame holds parallel lists of channel keys and series. Keys[i] is the channel of
// Series[i]. Frames may be unsorted and may repeat a key.
type Frame struct {
	Keys   channel.Keys   `json:"keys" msgpack:"keys"`
	Series []telem.Series `json:"series" msgpack:"series"`
}

// NewFrame builds a frame from parallel keys and series. It panics when the lengths
// differ.
func NewFrame(keys channel.Keys, series []telem.Series) Frame {
	if len(keys) != len(series) {
		panic(fmt.Sprintf("[framer] - keys and series must have the same length: %d != %d", len(keys), len(series)))
	}
	return Frame{Keys: keys, Series: series}
}

// UnaryFrame builds a frame holding a single series.
func UnaryFrame(key channel.Key, s telem.Series) Frame {
	return Frame{Keys: channel.Keys{key}, Series: []telem.Series{s}}
}

// Append returns a frame with key and s appended.
func (f Frame) Append(key channel.Key, s telem.Series) Frame {
	f.Keys = append(f.Keys, key)
	f.Series = append(f.Series, s)
	return f
}

// Len returns the number of series in the frame.
func (f Frame) Len() int { return len(f.Keys) }

// Empty reports whether the frame carries no series.
func (f Frame) Empty() bool { return len(f.Keys) == 0 }

// Get returns every series stored under key.
func (f Frame) Get(key channel.Key) []telem.Series {
	var out []telem.Series
	for i, k := range f.Keys {
		if k == key {
			out = append(out, f.Series[i])
		}
	}
	return out
}

// FilterKeys returns the frame restricted to series whose key is in keys.
func (f Frame) FilterKeys(keys channel.Keys) Frame {
	var out Frame
	for i, k := range f.Keys {
		if keys.Contains(k) {
			out = out.Append(k, f.Series[i])
		}
	}
	return out
}

// UniqueKeys returns the distinct keys of the frame.
func (f Frame) UniqueKeys() channel.Keys { return f.Keys.Unique() }

// Sorted returns a copy of the frame ordered by ascending key. Series sharing a key
// keep their relative order.
func (f Frame) Sorted() Frame {
	idx := lo.Range(len(f.Keys))
	sort.SliceStable(idx, func(i, j int) bool { return f.Keys[idx[i]] < f.Keys[idx[j]] })
	out := Frame{Keys: make(channel.Keys, len(idx)), Series: make([]telem.Series, len(idx))}
	for i, j := range idx {
		out.Keys[i] = f.Keys[j]
		out.Series[i] = f.Series[j]
	}
	return out
}

func (f Frame) String() string {
	parts := make([]string, len(f.Keys))
	for i, k := range f.Keys {
		s := f.Series[i]
		parts[i] = fmt.Sprintf("%d:%s[%d]", k, s.DataType, s.Len())
	}
	return "{" + strings.Join(parts, " ") + "}"
}
