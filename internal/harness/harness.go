package harness

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing/fstest"
	"time"

	"github.com/roach88/socialstories/internal/engine"
	"github.com/roach88/socialstories/internal/protocol"
	"github.com/roach88/socialstories/internal/script"
	"github.com/roach88/socialstories/internal/store"
	"github.com/roach88/socialstories/internal/testutil"
)

// SessionID is the fixed session record id every scenario runs under.
const SessionID = "harness-session"

// maxSteps bounds a scenario that never reaches the end of its main script.
const maxSteps = 10000

// Harness plays one scenario through the engine.
//
// Time is a ManualClock advanced only by timed-out waits, pool picks use a
// fixed seed, and the session id is fixed, so a scenario always produces
// the same trace.
type Harness struct {
	driver    *engine.Driver
	transport *testutil.FakeTransport
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and import the story library
// 2. Open a session record for the participant
// 3. START the game and step until the main script finishes
// 4. Evaluate assertions against the trace and the database
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(ctx, st, scenario)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	if err := h.play(ctx, scenario.Controls, result); err != nil {
		return nil, fmt.Errorf("failed to play session: %w", err)
	}

	for _, c := range h.transport.Commands() {
		result.AddTrace(c.Channel, c.Action, c.Payload, c.Until)
	}
	result.Performance = h.driver.Performance()

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func newHarness(ctx context.Context, st *store.Store, s *Scenario) (*Harness, error) {
	if err := st.ImportStories(ctx, s.Stories); err != nil {
		return nil, fmt.Errorf("failed to import stories: %w", err)
	}
	if s.Level > 1 {
		if err := st.SetParticipantLevel(ctx, s.Participant, s.Level); err != nil {
			return nil, err
		}
	}

	popts := []store.PersonalizerOption{
		store.WithIDGenerator(testutil.NewFixedIDGenerator(SessionID)),
	}
	if s.Settings.LevelThreshold > 0 {
		popts = append(popts, store.WithLevelThreshold(s.Settings.LevelThreshold))
	}
	personal, err := store.NewPersonalizer(ctx, st, s.Participant, s.Session, popts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	fsys := fstest.MapFS{}
	for name, body := range s.Scripts {
		fsys[name] = &fstest.MapFile{Data: []byte(body)}
	}

	responses := make([]protocol.Response, 0, len(s.Responses))
	for _, raw := range s.Responses {
		r, _ := protocol.ParseResponse(string(raw))
		responses = append(responses, r)
	}

	clock := testutil.NewManualClock(time.Time{})
	transport := testutil.NewFakeTransport(clock, responses...)

	mode, err := script.ParseMatchMode(s.Settings.MatchMode)
	if err != nil {
		return nil, err
	}
	eopts := []engine.EngineOption{
		engine.WithClock(clock),
		engine.WithRand(rand.New(rand.NewPCG(1, 2))),
		engine.WithMatchMode(mode),
	}
	if n := s.Settings.MaxIncorrectResponses; n > 0 {
		eopts = append(eopts, engine.WithMaxIncorrectResponses(n))
	}
	if s.Settings.MaxStories != nil {
		eopts = append(eopts, engine.WithMaxStories(*s.Settings.MaxStories))
	}
	if d := s.Settings.MaxGameTime; d > 0 {
		eopts = append(eopts, engine.WithMaxGameDuration(d))
	}

	eng, err := engine.New(engine.Scripts{Session: fsys}, s.Main, transport, personal, eopts...)
	if err != nil {
		return nil, err
	}

	return &Harness{
		driver:    engine.NewDriver(eng),
		transport: transport,
	}, nil
}

// play starts the game and steps it to the end of the main script,
// applying each control once its step is reached. An unexpected engine
// failure is reported in result rather than returned.
func (h *Harness) play(ctx context.Context, controls []Control, result *Result) error {
	controls = slices.Clone(controls)
	slices.SortStableFunc(controls, func(a, b Control) int { return a.Step - b.Step })

	if err := h.driver.Start(ctx); err != nil {
		return err
	}

	next := 0
	for step := 0; ; step++ {
		for next < len(controls) && controls[next].Step <= step {
			if err := h.driver.Apply(ctx, controls[next].Message); err != nil {
				return err
			}
			next++
		}

		if step >= maxSteps {
			result.AddError(fmt.Sprintf("session did not finish within %d steps", maxSteps))
			result.Steps = step
			return nil
		}

		finished, err := h.driver.Step(ctx)
		if err != nil {
			result.AddError(fmt.Sprintf("unexpected failure: %v", err))
			result.Steps = step + 1
			return nil
		}
		if finished {
			result.Steps = step + 1
			return nil
		}
	}
}
