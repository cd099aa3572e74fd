package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_ZeroStartIsFixed(t *testing.T) {
	c1 := NewManualClock(time.Time{})
	c2 := NewManualClock(time.Time{})
	assert.Equal(t, c1.Now(), c2.Now())
	assert.False(t, c1.Now().IsZero())
}

func TestManualClock_Advance(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	assert.Equal(t, start, c.Now())

	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())

	// Reading does not move the clock.
	assert.Equal(t, c.Now(), c.Now())
}

func TestManualClock_Set(t *testing.T) {
	c := NewManualClock(time.Time{})
	target := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Set(target)
	assert.Equal(t, target, c.Now())
}

func TestManualClock_ThreadSafe(t *testing.T) {
	c := NewManualClock(time.Time{})
	start := c.Now()
	const goroutines = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
		}()
	}
	wg.Wait()

	assert.Equal(t, start.Add(goroutines*time.Second), c.Now())
}
