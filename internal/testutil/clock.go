package testutil

import (
	"sync"
	"time"
)

// epoch is the default start time for ManualClock.
var epoch = time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)

// ManualClock is a wall clock that only moves when told to.
//
// It satisfies engine.Clock. Budgets and waits that read it see time advance
// exactly as the test advances it.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock reading start. A zero start uses a fixed
// date so runs are reproducible.
func NewManualClock(start time.Time) *ManualClock {
	if start.IsZero() {
		start = epoch
	}
	return &ManualClock{now: start}
}

// Now returns the current reading.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
