package engine

import "time"

// Clock supplies wall-clock milliseconds for logical timestamps.
//
// Wall time is only an input: the scanner never issues a logical_ts at or
// below one the node has already observed, so a clock that stalls or runs
// backwards cannot produce a version that loses to older writes.
type Clock interface {
	NowMillis() int64
}

// WallClock reads the system clock.
type WallClock struct{}

// NowMillis returns the current Unix time in milliseconds.
func (WallClock) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() int64

// NowMillis calls f.
func (f ClockFunc) NowMillis() int64 {
	return f()
}

// nextLogicalTS returns the timestamp for a new local write:
// max(now, maxKnown+1).
func nextLogicalTS(now, maxKnown int64) int64 {
	if now > maxKnown {
		return now
	}
	return maxKnown + 1
}
