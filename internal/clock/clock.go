// Package clock provides the logical time source driving a simulation run.
// Simulated time advances only when event timestamps advance, which keeps
// reruns deterministic regardless of wall-clock conditions.
package clock

import "time"

// Clock is a monotonically advancing time source. Times are UTC nanoseconds.
type Clock interface {
	TimeNanos() int64
	Time() time.Time
}

// TestClock is driven purely by event timestamps.
type TestClock struct {
	ts int64
}

// NewTestClock creates a clock at the given start time.
func NewTestClock(startNanos int64) *TestClock {
	return &TestClock{ts: startNanos}
}

// TimeNanos returns the current simulated time in UTC nanoseconds.
func (c *TestClock) TimeNanos() int64 {
	return c.ts
}

// Time returns the current simulated time.
func (c *TestClock) Time() time.Time {
	return time.Unix(0, c.ts).UTC()
}

// Advance moves the clock forward. Backward moves are ignored so a clock
// shared across components never regresses mid-event.
func (c *TestClock) Advance(tsNanos int64) {
	if tsNanos > c.ts {
		c.ts = tsNanos
	}
}

// Reset rewinds the clock for a fresh run.
func (c *TestClock) Reset(startNanos int64) {
	c.ts = startNanos
}
