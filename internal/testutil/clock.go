package testutil

import "sync"

// DeterministicClock is a settable millisecond clock for tests.
//
// It satisfies engine.Clock. Time only moves when the test moves it, so a
// scenario run twice stamps identical logical timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu sync.Mutex
	ms int64
}

// NewDeterministicClock creates a clock reading start milliseconds.
func NewDeterministicClock(start int64) *DeterministicClock {
	return &DeterministicClock{ms: start}
}

// NowMillis returns the current reading without advancing it.
func (c *DeterministicClock) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

// Advance moves the clock forward by d milliseconds and returns the new
// reading. Negative values move it backwards, which tests use to simulate
// skew.
func (c *DeterministicClock) Advance(d int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms += d
	return c.ms
}

// Set jumps the clock to ms.
func (c *DeterministicClock) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms = ms
}
