package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/socialstories/internal/protocol"
)

// sceneTag marks story scenes on the tablet.
const sceneTag = "PlayObject"

// setupStory asks the personalizer for the next story and lays its scenes
// out on the tablet.
//
// When the budget is spent no story is selected: the robot says a
// max-stories-reached line, any repeating script is cancelled, and setupStory
// returns a nil selection with a nil error.
func (e *Engine) setupStory(ctx context.Context) (*protocol.StorySelection, error) {
	e.selected = nil

	if err := e.budget.CheckStory(); err != nil {
		slog.Info("not loading another story",
			"event", "budget_exhausted",
			"reason", err,
		)
		if e.stack.cancelRepeat() {
			slog.Info("repeating script cancelled")
		}
		return nil, e.say(ctx, PoolMaxStoriesReached)
	}

	sel, err := e.personal.NextStory(ctx)
	if errors.Is(err, protocol.ErrNoStories) {
		return nil, newRuntimeError(ErrCodeResourceUnavailable, "no story available for participant", err)
	}
	if err != nil {
		return nil, fmt.Errorf("choose next story: %w", err)
	}

	setup, err := json.Marshal(protocol.SceneSetup{
		NumScenes:     len(sel.Scenes),
		ScenesInOrder: sel.InOrder,
		NumAnswers:    sel.NumAnswers,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal scene setup: %w", err)
	}
	if err := e.transport.SendOpalCommand(ctx, protocol.OpalSetupStoryScene, string(setup)); err != nil {
		return nil, err
	}

	for i, scene := range sel.Scenes {
		obj := protocol.LoadObject{
			Name:      scene,
			Tag:       sceneTag,
			Slot:      i + 1,
			Draggable: !sel.InOrder,
		}
		if !sel.InOrder {
			slot := i + 1
			obj.CorrectSlot = &slot
		}
		payload, err := json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("marshal scene %s: %w", scene, err)
		}
		if err := e.transport.SendOpalCommand(ctx, protocol.OpalLoadObject, string(payload)); err != nil {
			return nil, err
		}
	}

	e.selected = &sel
	slog.Info("story loaded",
		"story", sel.Script,
		"scenes", len(sel.Scenes),
		"in_order", sel.InOrder,
		"num_answers", sel.NumAnswers,
	)
	return &sel, nil
}

// say has the robot speak a random line from pool. A missing pool is logged
// and nothing is said.
func (e *Engine) say(ctx context.Context, pool string) error {
	entry, err := e.pools.Pick(pool, e.rng)
	if err != nil {
		return e.recoverable(err, e.stack.current())
	}
	return e.transport.SendRobotCommand(ctx, protocol.RobotDo, entry)
}
