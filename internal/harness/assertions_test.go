package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/socialstories/internal/store"
	"github.com/roach88/socialstories/internal/testutil"
)

func sampleTrace() []TraceEvent {
	r := NewResult()
	r.AddTrace("state", "START", "", "")
	r.AddTrace("opal", "SETUP_STORY_SCENE", `{"numScenes":2}`, "")
	r.AddTrace("robot", "DO", "Great job!", "")
	r.AddTrace("robot", "DO", "Not quite.", "")
	r.AddTrace("state", "END", `{"correct":1}`, "")
	return r.Trace
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "DO", Payload: "Great"}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Channel: "state", Action: "END"}))
	assert.Error(t, assertTraceContains(trace, Assertion{Channel: "opal", Action: "DO"}))
	assert.Error(t, assertTraceContains(trace, Assertion{Action: "DO", Payload: "Amazing"}))

	err := assertTraceContains(trace, Assertion{Action: "SHOW_CORRECT"})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Error(), "001 state START", "failure shows the trace")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{"state:START", "DO", "state:END"}}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{"SETUP_STORY_SCENE", "robot:DO"}}))
	assert.Error(t, assertTraceOrder(trace, Assertion{Actions: []string{"END", "START"}}))
	assert.Error(t, assertTraceOrder(trace, Assertion{Actions: []string{"START", "PAUSE"}}))
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Channel: "robot", Action: "DO", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "DO", Payload: "Not", Count: 1}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "PAUSE", Count: 0}))
	assert.Error(t, assertTraceCount(trace, Assertion{Action: "DO", Count: 3}))
}

func newAssertionStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.SetParticipantLevel(ctx, "p01", 2))
	require.NoError(t, st.SetParticipantLevel(ctx, "p02", 2))
	_, err = store.NewPersonalizer(ctx, st, "p01", 3,
		store.WithIDGenerator(testutil.NewFixedIDGenerator("s-1")))
	require.NoError(t, err)
	return st
}

func TestAssertFinalState(t *testing.T) {
	st := newAssertionStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		a       Assertion
		wantErr bool
	}{
		{"match", Assertion{Table: "participants", Where: map[string]any{"id": "p01"}, Expect: map[string]any{"level": 2}}, false},
		{"bool column", Assertion{Table: "sessions", Where: map[string]any{"id": "s-1"}, Expect: map[string]any{"leveled_up": false, "session": 3}}, false},
		{"wrong value", Assertion{Table: "participants", Where: map[string]any{"id": "p01"}, Expect: map[string]any{"level": 1}}, true},
		{"missing row", Assertion{Table: "participants", Where: map[string]any{"id": "nobody"}, Expect: map[string]any{"level": 1}}, true},
		{"ambiguous", Assertion{Table: "participants", Where: map[string]any{"level": 2}, Expect: map[string]any{"level": 2}}, true},
		{"unknown column", Assertion{Table: "participants", Where: map[string]any{"id": "p01"}, Expect: map[string]any{"age": 7}}, true},
		{"bad table", Assertion{Table: "participants; DROP TABLE stories", Expect: map[string]any{"level": 1}}, true},
		{"bad where column", Assertion{Table: "participants", Where: map[string]any{"id = id OR 1": 1}, Expect: map[string]any{"level": 1}}, true},
		{"unknown table", Assertion{Table: "nope", Expect: map[string]any{"level": 1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertFinalState(ctx, st, tt.a)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStateValuesEqual(t *testing.T) {
	assert.True(t, stateValuesEqual(nil, nil))
	assert.False(t, stateValuesEqual(nil, int64(1)))
	assert.True(t, stateValuesEqual("a", "a"))
	assert.True(t, stateValuesEqual("a", []byte("a")))
	assert.True(t, stateValuesEqual(2, int64(2)))
	assert.True(t, stateValuesEqual(int64(2), int64(2)))
	assert.True(t, stateValuesEqual(0.5, 0.5))
	assert.True(t, stateValuesEqual(1.0, int64(1)))
	assert.True(t, stateValuesEqual(true, int64(1)))
	assert.False(t, stateValuesEqual(true, int64(0)))
	assert.False(t, stateValuesEqual(2, "2"))
}

func TestEvaluateAssertions(t *testing.T) {
	result := &Result{Trace: sampleTrace()}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, Action: "DO"},
		{Type: AssertTraceCount, Action: "DO", Count: 5},
		{Type: AssertFinalState, Table: "sessions", Expect: map[string]any{"correct": 0}},
		{Type: "vibes"},
	}, nil)

	require.Len(t, errs, 3)
	assert.Contains(t, errs[1], "final_state requires database context")
	assert.Contains(t, errs[2], "unknown assertion type")
}
