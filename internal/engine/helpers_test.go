package engine

import (
	"context"
	"math/rand/v2"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/socialstories/internal/protocol"
	"github.com/roach88/socialstories/internal/testutil"
)

// testSession bundles an engine with its fakes.
type testSession struct {
	engine    *Engine
	transport *testutil.FakeTransport
	personal  *testutil.StaticPersonalizer
	clock     *testutil.ManualClock
}

// files builds an in-memory script directory.
func files(kv ...string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for i := 0; i+1 < len(kv); i += 2 {
		fsys[kv[i]] = &fstest.MapFile{Data: []byte(kv[i+1])}
	}
	return fsys
}

// outOfOrderStory is a three-scene story shown shuffled.
func outOfOrderStory(name string) protocol.StorySelection {
	return protocol.StorySelection{
		Script:     name,
		Scenes:     []string{"scene-a", "scene-b", "scene-c"},
		InOrder:    false,
		NumAnswers: 1,
	}
}

func newTestSession(t *testing.T, fsys fstest.MapFS, main string, stories []protocol.StorySelection, opts ...EngineOption) *testSession {
	t.Helper()
	clock := testutil.NewManualClock(time.Time{})
	tr := testutil.NewFakeTransport(clock)
	p := testutil.NewStaticPersonalizer(stories...)

	base := []EngineOption{
		WithClock(clock),
		WithRand(rand.New(rand.NewPCG(1, 2))),
	}
	e, err := New(Scripts{Session: fsys}, main, tr, p, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(e.Close)

	return &testSession{engine: e, transport: tr, personal: p, clock: clock}
}

// runToEnd steps until the main script finishes.
func (s *testSession) runToEnd(t *testing.T) int {
	t.Helper()
	const limit = 10000
	for i := 1; i <= limit; i++ {
		finished, err := s.engine.Step(context.Background())
		require.NoError(t, err)
		if finished {
			return i
		}
	}
	t.Fatalf("script did not finish within %d steps", limit)
	return 0
}

// stepN steps n times, failing on any error.
func (s *testSession) stepN(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := s.engine.Step(context.Background())
		require.NoError(t, err)
	}
}

func (s *testSession) opal(action string) []testutil.Command {
	return s.transport.Filter(testutil.ChannelOpal, action)
}

func (s *testSession) robotSaid() []string {
	var out []string
	for _, c := range s.transport.Filter(testutil.ChannelRobot, "") {
		out = append(out, c.Payload)
	}
	return out
}
