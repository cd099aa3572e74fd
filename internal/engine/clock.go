package engine

import "time"

// Clock is the engine's source of wall time. Session budgets and response
// waits read it; tests substitute a manual clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}
