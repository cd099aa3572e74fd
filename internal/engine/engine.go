package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/roach88/socialstories/internal/protocol"
	"github.com/roach88/socialstories/internal/script"
)

// Default limits used until a SET line changes them.
const (
	DefaultMaxIncorrectResponses = 2
	DefaultMaxStories            = 3
	DefaultMaxGameDuration       = 10 * time.Minute
)

// answerFeedbackWait bounds how long the robot may speak while the correct
// answer is shown.
const answerFeedbackWait = 10 * time.Second

// Engine plays one session script.
//
// The engine owns a stack of script contexts (main, story, repeat), the
// session budget, and the response pools. Step plays one line at a time.
//
// Engine is not safe for concurrent use. The driver goroutine owns it; other
// goroutines talk to the driver through its control queue.
type Engine struct {
	scripts   Scripts
	transport Transport
	personal  Personalizer
	clock     Clock
	rng       *rand.Rand
	matchMode script.MatchMode

	stack  *contextStack
	budget *Budget
	pools  *Pools

	maxIncorrect int
	maxStories   int
	maxDuration  time.Duration

	// selected is a story chosen by setup that has not started playing.
	selected     *protocol.StorySelection
	currentStory string
	finished     bool
	steps        int64
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock sets the time source for the session budget and waits.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithRand sets the source used to pick pool entries.
func WithRand(r *rand.Rand) EngineOption {
	return func(e *Engine) { e.rng = r }
}

// WithMatchMode selects loose (default) or exact opcode matching.
func WithMatchMode(m script.MatchMode) EngineOption {
	return func(e *Engine) { e.matchMode = m }
}

// WithMaxIncorrectResponses sets the initial attempt bound for WAIT lines.
func WithMaxIncorrectResponses(n int) EngineOption {
	return func(e *Engine) { e.maxIncorrect = n }
}

// WithMaxStories sets the initial story limit.
func WithMaxStories(n int) EngineOption {
	return func(e *Engine) { e.maxStories = n }
}

// WithMaxGameDuration sets the initial game duration limit.
func WithMaxGameDuration(d time.Duration) EngineOption {
	return func(e *Engine) { e.maxDuration = d }
}

// New opens mainScript from scripts.Session and returns an engine ready to
// step. Failing to open the main script is fatal: the session cannot start.
//
// Nil Story or Shared file systems fall back to scripts.Session.
func New(
	scripts Scripts,
	mainScript string,
	transport Transport,
	personal Personalizer,
	opts ...EngineOption,
) (*Engine, error) {
	if scripts.Session == nil {
		return nil, errors.New("session script directory is required")
	}
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	if personal == nil {
		return nil, errors.New("personalizer is required")
	}
	if scripts.Story == nil {
		scripts.Story = scripts.Session
	}
	if scripts.Shared == nil {
		scripts.Shared = scripts.Session
	}

	e := &Engine{
		scripts:      scripts,
		transport:    transport,
		personal:     personal,
		clock:        SystemClock{},
		rng:          rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		matchMode:    script.MatchContains,
		maxIncorrect: DefaultMaxIncorrectResponses,
		maxStories:   DefaultMaxStories,
		maxDuration:  DefaultMaxGameDuration,
	}
	for _, opt := range opts {
		opt(e)
	}

	main, err := openContext(ContextMain, scripts.Session, mainScript)
	if err != nil {
		re := &RuntimeError{
			Code:    ErrCodeResourceUnavailable,
			Message: "cannot open session script",
			Script:  mainScript,
			Err:     err,
		}
		re.log()
		return nil, re
	}

	e.stack = newContextStack(main)
	e.budget = NewBudget(e.clock, e.maxStories, e.maxDuration)
	e.pools = NewPools()

	slog.Info("session script opened",
		"script", mainScript,
		"match_mode", e.matchMode,
	)
	return e, nil
}

// Step plays exactly one script line from the innermost context, or handles
// that context running out of lines.
//
// It returns finished=true once the main script is exhausted. The returned
// error is always an unexpected failure; recoverable problems are logged and
// skipped.
func (e *Engine) Step(ctx context.Context) (finished bool, err error) {
	if e.finished {
		return true, nil
	}
	e.steps++

	cur := e.stack.current()
	line, err := cur.source.Next()
	if errors.Is(err, script.ErrEndOfScript) {
		return e.exhausted(cur), nil
	}
	if err != nil {
		re := newRuntimeError(ErrCodeUnexpectedFailure, "cannot read script line", err).at(cur)
		re.log()
		return false, re
	}

	slog.Debug("script line",
		"step", e.steps,
		"context", cur.kind,
		"script", cur.name,
		"line", cur.source.Line(),
		"text", line,
	)
	return false, e.execute(ctx, cur, line)
}

// exhausted moves play to the enclosing context when cur runs out of lines.
// It returns true when the main script is done.
func (e *Engine) exhausted(cur *scriptContext) bool {
	switch cur.kind {
	case ContextStory:
		e.stack.popCurrent()
		e.budget.RecordStory()
		e.currentStory = ""
		slog.Info("story finished",
			"story", cur.name,
			"stories_told", e.budget.StoriesTold(),
			"max_stories", e.budget.MaxStories(),
		)
		return false

	case ContextRepeat:
		cur.repetitionsDone++
		slog.Info("repetition finished",
			"script", cur.name,
			"repetition", cur.repetitionsDone,
			"max_repetitions", cur.maxRepetitions,
		)
		if cur.repetitionsDone >= cur.maxRepetitions || e.budget.TimeExhausted() {
			e.stack.popCurrent()
			slog.Info("repeating script finished",
				"script", cur.name,
				"repetitions", cur.repetitionsDone,
				"elapsed", e.budget.Elapsed(),
			)
			return false
		}
		if err := cur.reopen(); err != nil {
			newRuntimeError(ErrCodeResourceUnavailable,
				fmt.Sprintf("cannot reopen repeating script %s", cur.name), err).log()
			e.stack.popCurrent()
		}
		return false

	default:
		e.finished = true
		e.stack.close()
		slog.Info("session script finished",
			"script", cur.name,
			"stories_told", e.budget.StoriesTold(),
			"elapsed", e.budget.Elapsed(),
		)
		return true
	}
}

// EndGame abandons any story or repeating script so the closing section of
// the main script plays next.
func (e *Engine) EndGame() {
	e.stack.cancelSubContexts()
	e.selected = nil
	e.currentStory = ""
	slog.Info("ending game: resuming main script")
}

// Close releases every open script.
func (e *Engine) Close() {
	e.stack.close()
}

// Finished reports whether the main script is exhausted.
func (e *Engine) Finished() bool { return e.finished }

// Contexts lists the active contexts, outermost first.
func (e *Engine) Contexts() []ContextKind { return e.stack.kinds() }

// Current returns the kind of the innermost context.
func (e *Engine) Current() ContextKind { return e.stack.current().kind }

// Budget returns the session budget.
func (e *Engine) Budget() *Budget { return e.budget }

// Pools returns the response pools.
func (e *Engine) Pools() *Pools { return e.pools }

// MaxIncorrectResponses returns the current WAIT attempt bound.
func (e *Engine) MaxIncorrectResponses() int { return e.maxIncorrect }

// CurrentStory returns the playing story's script name, or "".
func (e *Engine) CurrentStory() string { return e.currentStory }

// recoverable logs RuntimeErrors that do not end the session and returns
// everything else unchanged.
func (e *Engine) recoverable(err error, at *scriptContext) error {
	if err == nil {
		return nil
	}
	var re *RuntimeError
	if errors.As(err, &re) && re.Code != ErrCodeUnexpectedFailure {
		re.at(at).log()
		return nil
	}
	return err
}
