package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/socialstories/internal/protocol"
)

// Driver defaults.
const (
	DefaultTick            = 100 * time.Millisecond
	DefaultWaitLogInterval = 5 * time.Second
)

// Driver runs an Engine under external control.
//
// Control messages (START, PAUSE, CONTINUE, END) are queued from any
// goroutine with Enqueue. Run owns the engine: it applies queued controls
// between steps and steps the engine while the game is started and not
// paused.
type Driver struct {
	engine *Engine
	queue  *controlQueue

	tick            time.Duration
	waitLogInterval time.Duration

	started bool
	paused  bool
	ended   bool

	performance *protocol.Performance
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithTick sets how long Run sleeps when it has nothing to do.
func WithTick(d time.Duration) DriverOption {
	return func(dr *Driver) { dr.tick = d }
}

// WithWaitLogInterval sets how often Run logs that it is waiting for START
// or CONTINUE.
func WithWaitLogInterval(d time.Duration) DriverOption {
	return func(dr *Driver) { dr.waitLogInterval = d }
}

// NewDriver wraps e.
func NewDriver(e *Engine, opts ...DriverOption) *Driver {
	d := &Driver{
		engine:          e,
		queue:           newControlQueue(),
		tick:            DefaultTick,
		waitLogInterval: DefaultWaitLogInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue queues a control message. Safe for concurrent use. It returns
// false once the driver has stopped.
func (d *Driver) Enqueue(msg string) bool {
	return d.queue.Enqueue(msg)
}

// Engine returns the driven engine.
func (d *Driver) Engine() *Engine { return d.engine }

// Started reports whether START has been received.
func (d *Driver) Started() bool { return d.started }

// Paused reports whether the game is paused.
func (d *Driver) Paused() bool { return d.paused }

// Ended reports whether the session has ended.
func (d *Driver) Ended() bool { return d.ended }

// Performance returns the session summary once the main script has finished.
func (d *Driver) Performance() *protocol.Performance { return d.performance }

// Start begins play and starts the game timer. A second START is ignored.
func (d *Driver) Start(ctx context.Context) error {
	if d.started {
		slog.Debug("ignoring START: game already started")
		return nil
	}
	d.started = true
	d.paused = false
	d.engine.budget.Start()
	slog.Info("game started")

	if err := d.engine.transport.SendGameState(ctx, protocol.StateStart, ""); err != nil {
		return err
	}
	return d.engine.transport.SendGameState(ctx, protocol.StateInProgress, "")
}

// Pause stops stepping and the game timer.
func (d *Driver) Pause(ctx context.Context) error {
	if !d.started || d.paused {
		return nil
	}
	d.paused = true
	d.engine.budget.Pause()
	slog.Info("game paused", "elapsed", d.engine.budget.Elapsed())
	return d.engine.transport.SendGameState(ctx, protocol.StatePause, "")
}

// Resume continues a paused game.
func (d *Driver) Resume(ctx context.Context) error {
	if !d.started || !d.paused {
		return nil
	}
	d.paused = false
	d.engine.budget.Resume()
	slog.Info("game resumed", "elapsed", d.engine.budget.Elapsed())
	return d.engine.transport.SendGameState(ctx, protocol.StateInProgress, "")
}

// End abandons any story or repeating script so the closing section of the
// main script plays. A paused game is resumed first, announcing
// IN_PROGRESS. It has no effect before START.
func (d *Driver) End(ctx context.Context) error {
	if !d.started {
		slog.Debug("ignoring END: game not started")
		return nil
	}
	d.engine.EndGame()
	return d.Resume(ctx)
}

// Step plays one line. It is a no-op until START and while paused.
//
// When the main script finishes, Step closes the session with the
// personalizer and announces END with the performance summary.
func (d *Driver) Step(ctx context.Context) (finished bool, err error) {
	if d.ended {
		return true, nil
	}
	if !d.started || d.paused {
		return false, nil
	}

	finished, err = d.engine.Step(ctx)
	if err != nil {
		return false, err
	}
	if !finished {
		return false, nil
	}
	return true, d.finish(ctx)
}

func (d *Driver) finish(ctx context.Context) error {
	d.ended = true

	perf, err := d.engine.personal.EndSession(ctx)
	if err != nil {
		slog.Warn("cannot close session record", "error", err)
		return d.engine.transport.SendGameState(ctx, protocol.StateEnd, "")
	}
	perf.StoriesTold = d.engine.budget.StoriesTold()
	d.performance = &perf

	payload, err := json.Marshal(perf)
	if err != nil {
		return fmt.Errorf("marshal performance: %w", err)
	}
	slog.Info("session finished",
		"stories_told", perf.StoriesTold,
		"percent_correct", perf.PercentCorrect,
		"level", perf.Level,
		"leveled_up", perf.LeveledUp,
	)
	return d.engine.transport.SendGameState(ctx, protocol.StateEnd, string(payload))
}

// Apply routes a control message. Each keyword found by containment is
// applied in the order START, PAUSE, CONTINUE, END, so one message may carry
// several commands. PAUSE and CONTINUE before START are ignored.
func (d *Driver) Apply(ctx context.Context, msg string) error {
	slog.Debug("control message", "message", msg)
	handlers := []struct {
		keyword string
		apply   func(context.Context) error
	}{
		{protocol.ControlStart, d.Start},
		{protocol.ControlPause, d.Pause},
		{protocol.ControlContinue, d.Resume},
		{protocol.ControlEnd, d.End},
	}
	matched := false
	for _, h := range handlers {
		if !strings.Contains(msg, h.keyword) {
			continue
		}
		matched = true
		if err := h.apply(ctx); err != nil {
			return err
		}
	}
	if !matched {
		slog.Warn("ignoring unknown control message", "message", msg)
	}
	return nil
}

// Run drives the session until the main script finishes, an unexpected
// failure occurs, or ctx is cancelled.
//
// Run returns nil when the session finishes normally. On an unexpected
// failure it announces END before returning the error.
func (d *Driver) Run(ctx context.Context) error {
	defer d.queue.Close()
	defer d.engine.Close()

	slog.Info("driver starting")
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()
	lastWaitLog := time.Now()

	for {
		for {
			msg, ok := d.queue.TryDequeue()
			if !ok {
				break
			}
			if err := d.Apply(ctx, msg); err != nil {
				return d.fail(ctx, err)
			}
		}

		if err := ctx.Err(); err != nil {
			slog.Info("driver stopping: context cancelled")
			return err
		}

		if d.started && !d.paused {
			finished, err := d.Step(ctx)
			if err != nil {
				if ctx.Err() != nil {
					slog.Info("driver stopping: context cancelled")
					return ctx.Err()
				}
				return d.fail(ctx, err)
			}
			if finished {
				slog.Info("driver stopping: session finished")
				return nil
			}
			continue
		}

		if time.Since(lastWaitLog) >= d.waitLogInterval {
			if d.paused {
				slog.Info("waiting: game paused")
			} else {
				slog.Info("waiting: game not started")
			}
			lastWaitLog = time.Now()
		}

		select {
		case <-ctx.Done():
			slog.Info("driver stopping: context cancelled")
			return ctx.Err()
		case <-d.queue.Wait():
		case <-ticker.C:
		}
	}
}

// fail announces END after an unexpected failure and returns err.
func (d *Driver) fail(ctx context.Context, err error) error {
	slog.Error("ending session after unexpected failure", "error", err)
	d.ended = true
	if sendErr := d.engine.transport.SendGameState(ctx, protocol.StateEnd, ""); sendErr != nil {
		slog.Warn("cannot announce END", "error", sendErr)
	}
	return err
}
