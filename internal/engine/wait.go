package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/socialstories/internal/protocol"
)

// wait asks the participant for a response, retrying up to the attempt bound.
//
// Every attempt counts toward the bound, whatever the response. CORRECT and
// YES end the wait early. When attempts run out on a CORRECT wait the answer
// is revealed; on a YES_NO wait any story or repeat is abandoned so the main
// script plays on to its end.
func (e *Engine) wait(ctx context.Context, kind protocol.ResponseKind, timeout time.Duration) error {
	for attempt := 1; attempt <= e.maxIncorrect; attempt++ {
		limit := e.attemptTimeout(timeout)
		slog.Debug("waiting for response",
			"kind", kind,
			"attempt", attempt,
			"max_attempts", e.maxIncorrect,
			"timeout", limit,
		)

		resp, err := e.transport.WaitForResponse(ctx, kind, limit)
		if err != nil {
			return err
		}
		e.record(ctx, kind, resp)

		switch {
		case resp == protocol.ResponseCorrect:
			return e.say(ctx, PoolCorrect)
		case resp == protocol.ResponseYes:
			return e.say(ctx, PoolYes)
		case resp == protocol.ResponseIncorrect,
			resp == protocol.ResponseTimeout && kind == protocol.KindCorrect:
			if err := e.say(ctx, PoolIncorrect); err != nil {
				return err
			}
		case resp == protocol.ResponseNo,
			resp == protocol.ResponseTimeout && kind == protocol.KindYesNo:
			if err := e.say(ctx, PoolNo); err != nil {
				return err
			}
		}
	}

	slog.Info("response attempts exhausted", "kind", kind, "attempts", e.maxIncorrect)
	switch kind {
	case protocol.KindCorrect:
		return e.revealAnswer(ctx)
	case protocol.KindYesNo:
		e.stack.cancelSubContexts()
		e.selected = nil
		e.currentStory = ""
		slog.Info("participant declined; resuming main script")
	}
	return nil
}

// attemptTimeout caps a wait at the play time left, so a wait never runs
// far past the session budget. Once the game is over time the script's own
// timeout applies so closing questions still get an answer.
func (e *Engine) attemptTimeout(timeout time.Duration) time.Duration {
	if remaining := e.budget.Remaining(); remaining > 0 && remaining < timeout {
		return remaining
	}
	return timeout
}

// revealAnswer shows the correct answer while the robot explains it.
func (e *Engine) revealAnswer(ctx context.Context) error {
	if err := e.transport.SendOpalCommand(ctx, protocol.OpalShowCorrect, ""); err != nil {
		return err
	}
	entry, err := e.pools.Pick(PoolAnswerFeedback, e.rng)
	if err != nil {
		if err := e.recoverable(err, e.stack.current()); err != nil {
			return err
		}
	} else {
		err := e.transport.SendRobotCommandAndWait(ctx, protocol.RobotDo, entry,
			protocol.RobotNotSpeaking, answerFeedbackWait)
		if err != nil {
			return err
		}
	}
	return e.transport.SendOpalCommand(ctx, protocol.OpalHideCorrect, "")
}

// record stores the response with the personalizer. Failures are logged;
// a lost performance record should not stop the game.
func (e *Engine) record(ctx context.Context, kind protocol.ResponseKind, resp protocol.Response) {
	if err := e.personal.RecordResponse(ctx, e.currentStory, kind, resp); err != nil {
		slog.Warn("cannot record response",
			"kind", kind,
			"response", resp,
			"story", e.currentStory,
			"error", err,
		)
	}
}
