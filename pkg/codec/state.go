package codec

import (
	"slices"

	"github.com/ssargent/framewire/pkg/channel"
	"github.com/ssargent/framewire/pkg/telem"
)

// state is an immutable snapshot of the channels a codec knows about.
type state struct {
	keys        channel.Keys
	dataTypes   map[channel.Key]telem.DataType
	hasVariable bool
}

// newState pairs keys with dataTypes before sorting so the mapping follows the
// caller's order.
func newState(keys channel.Keys, dataTypes []telem.DataType) *state {
	s := &state{
		keys:      slices.Clone(keys),
		dataTypes: make(map[channel.Key]telem.DataType, len(keys)),
	}
	for i, k := range keys {
		s.dataTypes[k] = dataTypes[i]
		if dataTypes[i].IsVariable() {
			s.hasVariable = true
		}
	}
	slices.Sort(s.keys)
	return s
}

// sameKeys reports whether sorted holds exactly the state's keys.
func (s *state) sameKeys(sorted channel.Keys) bool {
	return slices.Equal(s.keys, sorted)
}

// registry maps sequence numbers to states. Sequence numbers start at 1; zero means
// no state has been registered.
type registry struct {
	seqNum    uint32
	states    map[uint32]*state
	retention int
}

func newRegistry(retention int) registry {
	return registry{states: make(map[uint32]*state), retention: retention}
}

func (r *registry) add(s *state) uint32 {
	r.seqNum++
	r.states[r.seqNum] = s
	if r.retention > 0 && r.seqNum > uint32(r.retention) {
		delete(r.states, r.seqNum-uint32(r.retention))
	}
	return r.seqNum
}

func (r *registry) get(seqNum uint32) (*state, bool) {
	s, ok := r.states[seqNum]
	return s, ok
}

func (r *registry) current() *state { return r.states[r.seqNum] }
