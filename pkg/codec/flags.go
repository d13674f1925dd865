package codec

// flags is the first byte of every encoded frame. Each bit removes a class of
// per-series fields from the wire.
type flags uint8

const (
	allChannelsPresent flags = 1 << iota
	timeRangesZero
	equalTimeRanges
	equalLengths
	equalAlignments
	zeroAlignments
)

func (f flags) has(bit flags) bool { return f&bit != 0 }

func (f flags) set(bit flags, v bool) flags {
	if v {
		return f | bit
	}
	return f &^ bit
}

// sharedTimeRange reports whether a single time range is written once for the frame.
func (f flags) sharedTimeRange() bool { return f.has(equalTimeRanges) && !f.has(timeRangesZero) }

// seriesTimeRange reports whether every series carries its own time range.
func (f flags) seriesTimeRange() bool { return !f.has(equalTimeRanges) && !f.has(timeRangesZero) }

func (f flags) sharedAlignment() bool { return f.has(equalAlignments) && !f.has(zeroAlignments) }

func (f flags) seriesAlignment() bool { return !f.has(equalAlignments) && !f.has(zeroAlignments) }
