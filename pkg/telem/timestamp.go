package telem

import (
	"fmt"
	"time"
)

// TimeStamp is a nanosecond precision UTC timestamp.
type TimeStamp int64

// Now returns the current time as a TimeStamp.
func Now() TimeStamp { return NewTimeStamp(time.Now()) }

// NewTimeStamp converts t to a TimeStamp.
func NewTimeStamp(t time.Time) TimeStamp { return TimeStamp(t.UnixNano()) }

// Time converts the stamp back into a time.Time in UTC.
func (ts TimeStamp) Time() time.Time { return time.Unix(0, int64(ts)).UTC() }

// Add returns ts offset by d.
func (ts TimeStamp) Add(d time.Duration) TimeStamp { return ts + TimeStamp(d) }

// SpanRange returns the range starting at ts and lasting d.
func (ts TimeStamp) SpanRange(d time.Duration) TimeRange {
	return TimeRange{Start: ts, End: ts.Add(d)}
}

// TimeRange is a half open [Start, End) interval.
type TimeRange struct {
	Start TimeStamp `json:"start" msgpack:"start"`
	End   TimeStamp `json:"end" msgpack:"end"`
}

// TimeRangeZero is the range used when a series carries no timing information.
var TimeRangeZero = TimeRange{}

// IsZero reports whether both bounds are zero.
func (tr TimeRange) IsZero() bool { return tr == TimeRangeZero }

// Span returns the duration covered by the range.
func (tr TimeRange) Span() time.Duration { return time.Duration(tr.End - tr.Start) }

// ContainsStamp reports whether ts falls within the range.
func (tr TimeRange) ContainsStamp(ts TimeStamp) bool { return ts >= tr.Start && ts < tr.End }

func (tr TimeRange) String() string {
	return fmt.Sprintf("[%d, %d)", tr.Start, tr.End)
}
