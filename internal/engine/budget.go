package engine

import (
	"errors"
	"fmt"
	"time"
)

// Budget tracks the session's story count and play time.
//
// The budget is checked before a story is loaded and before a repeating
// block starts over. Paused time does not count toward the game duration.
//
// Budget is owned by the driver goroutine and is not safe for concurrent use.
type Budget struct {
	clock Clock

	storiesTold int
	maxStories  int
	maxDuration time.Duration

	start       time.Time
	paused      bool
	pausedAt    time.Time
	pausedTotal time.Duration
}

// NewBudget creates a budget whose timer starts now.
func NewBudget(clock Clock, maxStories int, maxDuration time.Duration) *Budget {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Budget{
		clock:       clock,
		maxStories:  maxStories,
		maxDuration: maxDuration,
		start:       clock.Now(),
	}
}

// Start restarts the game timer. Stories already told are kept.
func (b *Budget) Start() {
	b.start = b.clock.Now()
	b.paused = false
	b.pausedTotal = 0
}

// Pause stops the game timer. Calling Pause twice has no effect.
func (b *Budget) Pause() {
	if b.paused {
		return
	}
	b.paused = true
	b.pausedAt = b.clock.Now()
}

// Resume restarts a paused game timer.
func (b *Budget) Resume() {
	if !b.paused {
		return
	}
	b.pausedTotal += b.clock.Now().Sub(b.pausedAt)
	b.paused = false
}

// Paused reports whether the game timer is stopped.
func (b *Budget) Paused() bool { return b.paused }

// Elapsed returns play time since Start, excluding pauses.
func (b *Budget) Elapsed() time.Duration {
	now := b.clock.Now()
	if b.paused {
		now = b.pausedAt
	}
	return now.Sub(b.start) - b.pausedTotal
}

// Remaining returns the play time left. It is negative once the game runs over.
func (b *Budget) Remaining() time.Duration {
	return b.maxDuration - b.Elapsed()
}

// TimeExhausted reports whether the game duration has been used up.
func (b *Budget) TimeExhausted() bool {
	return b.Elapsed() >= b.maxDuration
}

// StoriesTold returns how many stories have finished playing.
func (b *Budget) StoriesTold() int { return b.storiesTold }

// RecordStory counts one finished story.
func (b *Budget) RecordStory() { b.storiesTold++ }

// MaxStories returns the story limit.
func (b *Budget) MaxStories() int { return b.maxStories }

// SetMaxStories changes the story limit.
func (b *Budget) SetMaxStories(n int) { b.maxStories = n }

// MaxDuration returns the game duration limit.
func (b *Budget) MaxDuration() time.Duration { return b.maxDuration }

// SetMaxDuration changes the game duration limit.
func (b *Budget) SetMaxDuration(d time.Duration) { b.maxDuration = d }

// CheckStory returns BudgetExceededError if another story may not be loaded.
func (b *Budget) CheckStory() error {
	if b.storiesTold >= b.maxStories {
		return &BudgetExceededError{
			Reason:      "max stories reached",
			StoriesTold: b.storiesTold,
			MaxStories:  b.maxStories,
			Elapsed:     b.Elapsed(),
			MaxDuration: b.maxDuration,
		}
	}
	if b.TimeExhausted() {
		return &BudgetExceededError{
			Reason:      "max game time reached",
			StoriesTold: b.storiesTold,
			MaxStories:  b.maxStories,
			Elapsed:     b.Elapsed(),
			MaxDuration: b.maxDuration,
		}
	}
	return nil
}

// BudgetExceededError is returned when the session has no room for another story.
type BudgetExceededError struct {
	Reason      string
	StoriesTold int
	MaxStories  int
	Elapsed     time.Duration
	MaxDuration time.Duration
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%s: %d/%d stories, %s/%s elapsed",
		e.Reason, e.StoriesTold, e.MaxStories,
		e.Elapsed.Round(time.Second), e.MaxDuration)
}

// IsBudgetExceeded reports whether err is a BudgetExceededError.
func IsBudgetExceeded(err error) bool {
	var be *BudgetExceededError
	return errors.As(err, &be)
}
