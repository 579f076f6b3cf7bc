package mplsgos

// timestamp.go holds the logical time value used by the clock and
// every element it drives.  Time is a (millisecond, nanosecond) pair,
// with the nanosecond part always kept below one millisecond's worth

import (
	"fmt"

	"github.com/iti/evt/vrtime"
)

// nsPerMs is the number of nanoseconds carried into one millisecond
const nsPerMs int64 = 1000000

// Timestamp is a simulated instant.  Values are copied, never shared
type Timestamp struct {
	Millisecond int64 `json:"millisecond" yaml:"millisecond"`
	Nanosecond  int32 `json:"nanosecond" yaml:"nanosecond"`
}

// CreateTimestamp is a constructor that normalizes its arguments so that
// the nanosecond part ends up in [0, 1000000)
func CreateTimestamp(ms int64, ns int32) Timestamp {
	total := ms*nsPerMs + int64(ns)
	return TimestampFromNs(total)
}

// TimestampFromNs builds a Timestamp from a count of nanoseconds.
// Negative inputs are clamped to zero, simulated time does not run backward
func TimestampFromNs(ns int64) Timestamp {
	if ns < 0 {
		ns = 0
	}
	return Timestamp{Millisecond: ns / nsPerMs, Nanosecond: int32(ns % nsPerMs)}
}

// Plus returns the Timestamp advanced by ns nanoseconds, carrying into milliseconds
func (ts Timestamp) Plus(ns int64) Timestamp {
	ms := ts.Millisecond + ns/nsPerMs
	rest := int64(ts.Nanosecond) + ns%nsPerMs
	if rest >= nsPerMs {
		ms += 1
		rest -= nsPerMs
	} else if rest < 0 {
		ms -= 1
		rest += nsPerMs
	}
	if ms < 0 {
		return Timestamp{}
	}
	return Timestamp{Millisecond: ms, Nanosecond: int32(rest)}
}

// TotalNs expresses the Timestamp as a single count of nanoseconds
func (ts Timestamp) TotalNs() int64 {
	return ts.Millisecond*nsPerMs + int64(ts.Nanosecond)
}

// Sub returns ts - other, in nanoseconds
func (ts Timestamp) Sub(other Timestamp) int64 {
	return ts.TotalNs() - other.TotalNs()
}

// Compare gives the total order on (millisecond, nanosecond): -1, 0 or 1
func (ts Timestamp) Compare(other Timestamp) int {
	switch {
	case ts.Millisecond < other.Millisecond:
		return -1
	case ts.Millisecond > other.Millisecond:
		return 1
	case ts.Nanosecond < other.Nanosecond:
		return -1
	case ts.Nanosecond > other.Nanosecond:
		return 1
	}
	return 0
}

func (ts Timestamp) LT(other Timestamp) bool { return ts.Compare(other) < 0 }
func (ts Timestamp) LE(other Timestamp) bool { return ts.Compare(other) <= 0 }
func (ts Timestamp) EQ(other Timestamp) bool { return ts.Compare(other) == 0 }

// Seconds converts to floating point seconds, used for traces
func (ts Timestamp) Seconds() float64 {
	return float64(ts.Millisecond)/1e3 + float64(ts.Nanosecond)/1e9
}

// VrTime expresses the Timestamp in the virtual time representation
// that trace consumers of the evt tool chain understand
func (ts Timestamp) VrTime() vrtime.Time {
	return vrtime.SecondsToTime(ts.Seconds())
}

func (ts Timestamp) String() string {
	return fmt.Sprintf("%d.%06dms", ts.Millisecond, ts.Nanosecond)
}
