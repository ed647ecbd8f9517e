package timelock

import (
	"sync"
	"time"
)

type (
	// Clock supplies the current time to the Engine's window checks
	Clock interface {
		Now() time.Time
	}

	// SystemClock reads the wall clock
	SystemClock struct{}

	// ManualClock is a settable Clock for deterministic tests. It is safe
	// for concurrent use
	ManualClock struct {
		now time.Time
		mu  sync.Mutex
	}
)

// Now returns the current wall-clock time
func (SystemClock) Now() time.Time {
	return time.Now()
}

// NewManualClock returns a ManualClock stopped at start
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the clock's current time
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t, which may be earlier than its current time
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d and returns the new time
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
