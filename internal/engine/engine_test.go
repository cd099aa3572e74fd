package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/socialstories/internal/protocol"
	"github.com/roach88/socialstories/internal/script"
	"github.com/roach88/socialstories/internal/testutil"
)

func TestNew_MissingMainScript(t *testing.T) {
	tr := testutil.NewFakeTransport(nil)
	p := testutil.NewStaticPersonalizer()

	_, err := New(Scripts{Session: files()}, "session-1.txt", tr, p)
	require.Error(t, err)
	assert.True(t, IsResourceUnavailable(err))
}

func TestNew_RequiresCollaborators(t *testing.T) {
	fsys := files("main.txt", "")
	_, err := New(Scripts{Session: fsys}, "main.txt", nil, testutil.NewStaticPersonalizer())
	assert.Error(t, err)

	_, err = New(Scripts{Session: fsys}, "main.txt", testutil.NewFakeTransport(nil), nil)
	assert.Error(t, err)

	_, err = New(Scripts{}, "main.txt", testutil.NewFakeTransport(nil), testutil.NewStaticPersonalizer())
	assert.Error(t, err)
}

func TestEngine_RepeatMaxStoriesScenario(t *testing.T) {
	fsys := files(
		"main.txt", "REPEAT\tMAX_STORIES\tstories.txt\n",
		"stories.txt", "STORY\n",
		"story-1.txt", "ROBOT\tDO\tonce upon a time\n",
	)
	s := newTestSession(t, fsys, "main.txt",
		[]protocol.StorySelection{outOfOrderStory("story-1.txt")},
		WithMaxStories(2),
	)

	s.runToEnd(t)

	setups := s.opal(protocol.OpalSetupStoryScene)
	require.Len(t, setups, 2, "two story loads")
	for _, c := range setups {
		var setup protocol.SceneSetup
		require.NoError(t, json.Unmarshal([]byte(c.Payload), &setup))
		assert.Equal(t, 3, setup.NumScenes)
		assert.False(t, setup.ScenesInOrder)
	}

	loads := s.opal(protocol.OpalLoadObject)
	require.Len(t, loads, 6, "three load-object commands per story")
	for i, c := range loads {
		var obj protocol.LoadObject
		require.NoError(t, json.Unmarshal([]byte(c.Payload), &obj))
		assert.True(t, obj.Draggable)
		require.NotNil(t, obj.CorrectSlot)
		assert.Equal(t, i%3+1, obj.Slot)
		assert.Equal(t, obj.Slot, *obj.CorrectSlot)
		assert.Equal(t, "PlayObject", obj.Tag)
		assert.False(t, obj.IsAnswerSlot)
	}

	// Setup precedes its scenes.
	cmds := s.transport.Filter(testutil.ChannelOpal, "")
	assert.Equal(t, protocol.OpalSetupStoryScene, cmds[0].Action)
	assert.Equal(t, protocol.OpalSetupStoryScene, cmds[4].Action)

	assert.Equal(t, 2, s.engine.Budget().StoriesTold())
	assert.Equal(t, []string{"once upon a time", "once upon a time"}, s.robotSaid())
	assert.True(t, s.engine.Finished())
}

func TestEngine_InOrderStoryPayload(t *testing.T) {
	fsys := files(
		"main.txt", "OPAL\tLOAD_STORY\n",
	)
	sel := protocol.StorySelection{Script: "s.txt", Scenes: []string{"one", "two"}, InOrder: true, NumAnswers: 2}
	s := newTestSession(t, fsys, "main.txt", []protocol.StorySelection{sel})

	s.runToEnd(t)

	setups := s.opal(protocol.OpalSetupStoryScene)
	require.Len(t, setups, 1)
	assert.JSONEq(t, `{"numScenes":2,"scenesInOrder":true,"numAnswers":2}`, setups[0].Payload)

	loads := s.opal(protocol.OpalLoadObject)
	require.Len(t, loads, 2)
	assert.JSONEq(t,
		`{"name":"one","tag":"PlayObject","slot":1,"draggable":false,"isAnswerSlot":false}`,
		loads[0].Payload)
	assert.JSONEq(t,
		`{"name":"two","tag":"PlayObject","slot":2,"draggable":false,"isAnswerSlot":false}`,
		loads[1].Payload)
}

func TestEngine_LoadStoryThenStoryUsesSelection(t *testing.T) {
	fsys := files(
		"main.txt", "OPAL\tLOAD_STORY\nSTORY\n",
		"a.txt", "ROBOT\tDO\tstory a\n",
		"b.txt", "ROBOT\tDO\tstory b\n",
	)
	s := newTestSession(t, fsys, "main.txt", []protocol.StorySelection{
		outOfOrderStory("a.txt"),
		outOfOrderStory("b.txt"),
	})

	s.runToEnd(t)

	assert.Equal(t, 1, s.personal.Served(), "STORY reuses the pending selection")
	assert.Len(t, s.opal(protocol.OpalSetupStoryScene), 1)
	assert.Equal(t, []string{"story a"}, s.robotSaid())
}

func TestEngine_RepeatCountProperty(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		t.Run("", func(t *testing.T) {
			fsys := files(
				"main.txt", "REPEAT\t"+strconv.Itoa(n)+"\tstories.txt\n",
				"stories.txt", "STORY\n",
				"s.txt", "ROBOT\tDO\tline\n",
			)
			s := newTestSession(t, fsys, "main.txt",
				[]protocol.StorySelection{outOfOrderStory("s.txt")},
				WithMaxStories(10),
			)
			s.runToEnd(t)
			assert.Equal(t, n, s.personal.Served())
			assert.Equal(t, n, s.engine.Budget().StoriesTold())
		})
	}
}

func TestEngine_StoryBudgetGatesRepeat(t *testing.T) {
	fsys := files(
		"main.txt", "ADD\tMAX_STORIES_REACHED\tmax.txt\nREPEAT\t5\tstories.txt\nROBOT\tDO\tbye\n",
		"max.txt", "that's all the stories for today\n",
		"stories.txt", "STORY\n",
		"s.txt", "ROBOT\tDO\tline\n",
	)
	s := newTestSession(t, fsys, "main.txt",
		[]protocol.StorySelection{outOfOrderStory("s.txt")},
		WithMaxStories(2),
	)

	s.runToEnd(t)

	assert.Equal(t, 2, s.personal.Served(), "budget gating wins over the repeat count")
	assert.Len(t, s.opal(protocol.OpalSetupStoryScene), 2)
	assert.Equal(t, 2, s.engine.Budget().StoriesTold())
	assert.Equal(t,
		[]string{"line", "line", "that's all the stories for today", "bye"},
		s.robotSaid())
}

func TestEngine_StoryAtBudgetNeverPushes(t *testing.T) {
	fsys := files(
		"main.txt", "SET\tMAX_STORIES\t0\nOPAL\tLOAD_STORY\nSTORY\nROBOT\tDO\tafter\n",
		"s.txt", "ROBOT\tDO\tline\n",
	)
	s := newTestSession(t, fsys, "main.txt", []protocol.StorySelection{outOfOrderStory("s.txt")})

	for i := 0; i < 3; i++ {
		s.stepN(t, 1)
		assert.Equal(t, []ContextKind{ContextMain}, s.engine.Contexts())
	}

	assert.Equal(t, 0, s.personal.Served())
	assert.Empty(t, s.opal(""))
	assert.Equal(t, 0, s.engine.Budget().StoriesTold())

	s.runToEnd(t)
	assert.Equal(t, []string{"after"}, s.robotSaid(), "missing MAX_STORIES_REACHED pool stays silent")
}

func TestEngine_TimeBudgetEndsRepeat(t *testing.T) {
	fsys := files(
		"main.txt", "REPEAT\t5\tstories.txt\n",
		"stories.txt", "STORY\n",
		"s.txt", "WAIT\tCORRECT\t40\n",
	)
	s := newTestSession(t, fsys, "main.txt",
		[]protocol.StorySelection{outOfOrderStory("s.txt")},
		WithMaxStories(10),
		WithMaxGameDuration(time.Minute),
		WithMaxIncorrectResponses(1),
	)

	s.runToEnd(t)

	assert.Equal(t, 2, s.personal.Served())
	waits := s.transport.Waits()
	require.Len(t, waits, 2)
	assert.Equal(t, 40*time.Second, waits[0].Timeout)
	assert.Equal(t, 20*time.Second, waits[1].Timeout, "wait is clamped to the remaining game time")
}

func TestEngine_StoryInsideStoryRefused(t *testing.T) {
	fsys := files(
		"main.txt", "STORY\n",
		"s.txt", "STORY\nROBOT\tDO\tinside\n",
	)
	s := newTestSession(t, fsys, "main.txt", []protocol.StorySelection{outOfOrderStory("s.txt")})

	s.runToEnd(t)
	assert.Equal(t, 1, s.personal.Served())
	assert.Equal(t, []string{"inside"}, s.robotSaid())
	assert.Equal(t, 1, s.engine.Budget().StoriesTold())
}

func TestEngine_RepeatNestingRefused(t *testing.T) {
	fsys := files(
		"main.txt", "REPEAT\t2\tloop.txt\n",
		"loop.txt", "REPEAT\t3\tloop.txt\nROBOT\tDO\tloop\n",
	)
	s := newTestSession(t, fsys, "main.txt", nil)

	s.runToEnd(t)
	assert.Equal(t, []string{"loop", "loop"}, s.robotSaid())
}

func TestEngine_RepeatInsideStoryRefused(t *testing.T) {
	fsys := files(
		"main.txt", "STORY\n",
		"s.txt", "REPEAT\t3\tloop.txt\nROBOT\tDO\tstory\n",
		"loop.txt", "ROBOT\tDO\tloop\n",
	)
	s := newTestSession(t, fsys, "main.txt", []protocol.StorySelection{outOfOrderStory("s.txt")})

	s.runToEnd(t)
	assert.Equal(t, []string{"story"}, s.robotSaid())
}

func TestEngine_MissingSubScriptsAreSkipped(t *testing.T) {
	fsys := files(
		"main.txt", "REPEAT\t2\tmissing.txt\nSTORY\nADD\tCORRECT_RESPONSES\tnope.txt\nOPAL\tLOAD_ALL\tnope.txt\nROBOT\tDO\tstill here\n",
	)
	s := newTestSession(t, fsys, "main.txt", []protocol.StorySelection{outOfOrderStory("gone.txt")})

	s.runToEnd(t)

	assert.Equal(t, []string{"still here"}, s.robotSaid())
	assert.Equal(t, 0, s.engine.Budget().StoriesTold())
	assert.Empty(t, s.engine.Pools().Names())
}

func TestEngine_NoStoriesAvailable(t *testing.T) {
	fsys := files("main.txt", "STORY\nROBOT\tDO\tafter\n")
	s := newTestSession(t, fsys, "main.txt", nil)

	s.runToEnd(t)
	assert.Equal(t, []string{"after"}, s.robotSaid())
	assert.Empty(t, s.opal(""))
}

func TestEngine_MalformedLinesSkipped(t *testing.T) {
	fsys := files("main.txt", "\nDANCE\tnow\nADD\tonly-one\nSET\tVOLUME\t11\nSET\tMAX_STORIES\tlots\nWAIT\tMAYBE\t5\nWAIT\tCORRECT\tsoon\nREPEAT\tzero\tx.txt\nROBOT\tDO\tok\n")
	s := newTestSession(t, fsys, "main.txt", nil)

	steps := s.runToEnd(t)
	assert.Equal(t, 10, steps, "nine lines plus end of script")
	assert.Equal(t, []string{"ok"}, s.robotSaid())
	assert.Empty(t, s.transport.Waits())
	assert.Equal(t, DefaultMaxStories, s.engine.Budget().MaxStories())
}

func TestEngine_Set(t *testing.T) {
	fsys := files("main.txt",
		"SET\tMAX_INCORRECT_RESPONSES\t4\nSET\tMAX_GAME_TIME\t90\nSET\tMAX_STORIES\t5\nSET\tMAX_INCORRECT_RESPONSES\t0\n")
	s := newTestSession(t, fsys, "main.txt", nil)

	s.runToEnd(t)
	assert.Equal(t, 4, s.engine.MaxIncorrectResponses(), "zero attempts is rejected")
	assert.Equal(t, 90*time.Second, s.engine.Budget().MaxDuration())
	assert.Equal(t, 5, s.engine.Budget().MaxStories())
}

func TestEngine_NonFiniteSecondsRejected(t *testing.T) {
	fsys := files("main.txt",
		"SET\tMAX_GAME_TIME\t90\nSET\tMAX_GAME_TIME\tInf\nSET\tMAX_GAME_TIME\tNaN\nSET\tMAX_GAME_TIME\t1e300\n"+
			"WAIT\tCORRECT\tNaN\nWAIT\tCORRECT\t-Inf\n")
	s := newTestSession(t, fsys, "main.txt", nil)

	s.runToEnd(t)
	assert.Equal(t, 90*time.Second, s.engine.Budget().MaxDuration())
	assert.Empty(t, s.transport.Waits(), "waits with non-finite timeouts are skipped")
}

func TestEngine_AddPools(t *testing.T) {
	fsys := files(
		"main.txt", "ADD\tCORRECT_RESPONSES\ta.txt\nADD\tINCORRECT_RESPONSES\tb.txt\nADD\tCORRECT_RESPONSES\tc.txt\n",
		"a.txt", "yes!\n",
		"b.txt", "not quite\n",
		"c.txt", "super\nbrilliant\n",
	)
	s := newTestSession(t, fsys, "main.txt", nil)

	s.runToEnd(t)
	assert.Equal(t, []string{"super", "brilliant"}, s.engine.Pools().Entries(PoolCorrect))
	assert.Equal(t, []string{"not quite"}, s.engine.Pools().Entries(PoolIncorrect))
}

func TestEngine_RobotCommands(t *testing.T) {
	fsys := files(
		"main.txt", "ADD\tSTORY_INTROS\tintro.txt\nROBOT\tSTORY_INTRO\nROBOT\tSTORY_CLOSING\nROBOT\tDO\thello there\nROBOT\tSLEEP\n",
		"intro.txt", "let's read a story\n",
	)
	s := newTestSession(t, fsys, "main.txt", nil)

	s.runToEnd(t)
	assert.Equal(t, []testutil.Command{
		{Channel: testutil.ChannelRobot, Action: "DO", Payload: "let's read a story"},
		{Channel: testutil.ChannelRobot, Action: "DO", Payload: "hello there"},
		{Channel: testutil.ChannelRobot, Action: "SLEEP"},
	}, s.transport.Commands())
}

func TestEngine_OpalCommands(t *testing.T) {
	fsys := files(
		"main.txt", "OPAL\tCLEAR\nOPAL\tLOAD_ALL\tobjects.txt\nOPAL\tFADE_SCREEN\t{\"on\":true}\n",
		"objects.txt", "{\"name\":\"ball\"}\n{\"name\":\"cat\"}\n",
	)
	s := newTestSession(t, fsys, "main.txt", nil)

	s.runToEnd(t)
	assert.Equal(t, []testutil.Command{
		{Channel: testutil.ChannelOpal, Action: "CLEAR"},
		{Channel: testutil.ChannelOpal, Action: protocol.OpalLoadObject, Payload: `{"name":"ball"}`},
		{Channel: testutil.ChannelOpal, Action: protocol.OpalLoadObject, Payload: `{"name":"cat"}`},
		{Channel: testutil.ChannelOpal, Action: "FADE_SCREEN", Payload: `{"on":true}`},
	}, s.transport.Commands())
}

func TestEngine_ExactMatchMode(t *testing.T) {
	fsys := files("main.txt", "ROBOT\tDO\tloose\nXROBOTX\tDO\tstrict\n")

	loose := newTestSession(t, fsys, "main.txt", nil)
	loose.runToEnd(t)
	assert.Equal(t, []string{"loose", "strict"}, loose.robotSaid())

	exact := newTestSession(t, fsys, "main.txt", nil, WithMatchMode(script.MatchExact))
	exact.runToEnd(t)
	assert.Equal(t, []string{"loose"}, exact.robotSaid())
}

func TestEngine_UnexpectedFailureReturned(t *testing.T) {
	fsys := files("main.txt", "ROBOT\tDO\thi\n")
	s := newTestSession(t, fsys, "main.txt", nil)
	linkDown := errors.New("link down")
	s.transport.Err = linkDown

	_, err := s.engine.Step(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnexpectedFailure(err))
	assert.ErrorIs(t, err, linkDown)

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "main.txt", re.Script)
	assert.Equal(t, 1, re.Line)
}

func TestEngine_EndGameResumesMain(t *testing.T) {
	fsys := files(
		"main.txt", "REPEAT\t3\tstories.txt\nROBOT\tDO\tgoodbye\n",
		"stories.txt", "STORY\n",
		"s.txt", "ROBOT\tDO\tone\nROBOT\tDO\ttwo\n",
	)
	s := newTestSession(t, fsys, "main.txt", []protocol.StorySelection{outOfOrderStory("s.txt")})

	s.stepN(t, 3)
	require.Equal(t, []ContextKind{ContextMain, ContextRepeat, ContextStory}, s.engine.Contexts())
	assert.Equal(t, "s.txt", s.engine.CurrentStory())

	s.engine.EndGame()
	assert.Equal(t, []ContextKind{ContextMain}, s.engine.Contexts())
	assert.Equal(t, "", s.engine.CurrentStory())

	s.runToEnd(t)
	assert.Equal(t, []string{"one", "goodbye"}, s.robotSaid())
	assert.Equal(t, 0, s.engine.Budget().StoriesTold(), "an abandoned story is not counted")
}

func TestEngine_Terminates(t *testing.T) {
	scripts := map[string]string{
		"empty":          "",
		"plain":          "ROBOT\tDO\ta\nOPAL\tCLEAR\n",
		"repeat stories": "REPEAT\tMAX_STORIES\tstories.txt\n",
		"repeat waits":   "REPEAT\t4\tquiz.txt\n",
		"self repeat":    "REPEAT\t3\tmain.txt\n",
		"waiting story":  "SET\tMAX_GAME_TIME\t30\nREPEAT\t50\tquiz-story.txt\n",
	}
	for name, body := range scripts {
		t.Run(name, func(t *testing.T) {
			fsys := files(
				"main.txt", body,
				"stories.txt", "STORY\n",
				"quiz.txt", "WAIT\tYES_NO\t5\nWAIT\tCORRECT\t5\n",
				"quiz-story.txt", "OPAL\tLOAD_STORY\nSTORY\n",
				"s.txt", "WAIT\tCORRECT\t10\n",
			)
			s := newTestSession(t, fsys, "main.txt",
				[]protocol.StorySelection{outOfOrderStory("s.txt")},
				WithMaxStories(100),
			)
			s.runToEnd(t)
			assert.True(t, s.engine.Finished())

			finished, err := s.engine.Step(context.Background())
			require.NoError(t, err)
			assert.True(t, finished, "stepping a finished engine stays finished")
		})
	}
}
