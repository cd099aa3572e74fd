package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/roach88/socialstories/internal/protocol"
	"github.com/roach88/socialstories/internal/script"
)

// execute parses one line and routes it to its handler.
func (e *Engine) execute(ctx context.Context, cur *scriptContext, line string) error {
	ins, err := script.Parse(line, e.matchMode)
	if err != nil {
		newRuntimeError(ErrCodeMalformedLine, "skipping script line", err).at(cur).log()
		return nil
	}

	switch ins.Op {
	case script.OpStory:
		err = e.execStory(ctx)
	case script.OpRobot:
		err = e.execRobot(ctx, ins)
	case script.OpOpal:
		err = e.execOpal(ctx, ins)
	case script.OpAdd:
		err = e.execAdd(ins)
	case script.OpSet:
		err = e.execSet(ins)
	case script.OpWait:
		err = e.execWait(ctx, ins)
	case script.OpRepeat:
		err = e.execRepeat(ins)
	}

	if err = e.recoverable(err, cur); err == nil {
		return nil
	}
	wrapped := unexpected(fmt.Sprintf("%s line failed", ins.Op), err)
	var re *RuntimeError
	if errors.As(wrapped, &re) {
		re.at(cur).log()
	}
	return wrapped
}

func malformed(format string, args ...any) *RuntimeError {
	return newRuntimeError(ErrCodeMalformedLine, fmt.Sprintf(format, args...), nil)
}

func (e *Engine) matches(field, keyword string) bool {
	return script.Matches(field, keyword, e.matchMode)
}

// execStory starts the selected story, running story setup first when no
// story has been selected since the last one played.
func (e *Engine) execStory(ctx context.Context) error {
	if e.stack.story != nil {
		return malformed("cannot start a story: %v", errStoryActive)
	}

	sel := e.selected
	if sel == nil {
		var err error
		sel, err = e.setupStory(ctx)
		if err != nil || sel == nil {
			return err
		}
	}
	e.selected = nil

	c, err := openContext(ContextStory, e.scripts.Story, sel.Script)
	if err != nil {
		return newRuntimeError(ErrCodeResourceUnavailable,
			fmt.Sprintf("cannot open story script %s; skipping story", sel.Script), err)
	}
	if err := e.stack.pushStory(c); err != nil {
		c.source.Close()
		return malformed("cannot start a story: %v", err)
	}
	e.currentStory = sel.Script

	slog.Info("story started",
		"story", sel.Script,
		"stories_told", e.budget.StoriesTold(),
	)
	return nil
}

func (e *Engine) execRobot(ctx context.Context, ins script.Instruction) error {
	cmd := ins.Arg(0)
	switch {
	case e.matches(cmd, "STORY_INTRO"):
		return e.say(ctx, PoolStoryIntros)
	case e.matches(cmd, "STORY_CLOSING"):
		return e.say(ctx, PoolStoryClosings)
	default:
		return e.transport.SendRobotCommand(ctx, cmd, ins.Arg(1))
	}
}

func (e *Engine) execOpal(ctx context.Context, ins script.Instruction) error {
	cmd := ins.Arg(0)
	switch {
	case e.matches(cmd, "LOAD_ALL") && ins.Arg(1) != "":
		return e.loadAll(ctx, ins.Arg(1))
	case e.matches(cmd, "LOAD_STORY"):
		_, err := e.setupStory(ctx)
		return err
	default:
		return e.transport.SendOpalCommand(ctx, cmd, ins.Arg(1))
	}
}

// loadAll sends one LOAD_OBJECT per line of file.
func (e *Engine) loadAll(ctx context.Context, file string) error {
	objects, err := script.ReadLines(e.scripts.Shared, file)
	if err != nil {
		return newRuntimeError(ErrCodeResourceUnavailable,
			fmt.Sprintf("cannot read object list %s", file), err)
	}
	for _, obj := range objects {
		if err := e.transport.SendOpalCommand(ctx, protocol.OpalLoadObject, obj); err != nil {
			return err
		}
	}
	slog.Info("objects loaded", "file", file, "count", len(objects))
	return nil
}

func (e *Engine) execAdd(ins script.Instruction) error {
	pool := canonicalPool(ins.Arg(0), e.matchMode)
	file := ins.Arg(1)
	n, err := e.pools.Load(e.scripts.Shared, pool, file)
	if err != nil {
		return newRuntimeError(ErrCodeResourceUnavailable,
			fmt.Sprintf("cannot load response pool %s from %s", pool, file), err)
	}
	slog.Info("response pool loaded", "pool", pool, "file", file, "entries", n)
	return nil
}

func (e *Engine) execSet(ins script.Instruction) error {
	key, raw := ins.Arg(0), strings.TrimSpace(ins.Arg(1))
	switch {
	case e.matches(key, "MAX_INCORRECT_RESPONSES"):
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return malformed("MAX_INCORRECT_RESPONSES must be a positive integer, got %q", raw)
		}
		e.maxIncorrect = n

	case e.matches(key, "MAX_GAME_TIME"):
		d, err := script.ParseSeconds(raw)
		if err != nil {
			return malformed("MAX_GAME_TIME must be a positive number of seconds, got %q", raw)
		}
		e.budget.SetMaxDuration(d)

	case e.matches(key, "MAX_STORIES"):
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return malformed("MAX_STORIES must be a non-negative integer, got %q", raw)
		}
		e.budget.SetMaxStories(n)

	default:
		return malformed("unknown setting %q", key)
	}

	slog.Info("setting changed", "key", key, "value", raw)
	return nil
}

func (e *Engine) execWait(ctx context.Context, ins script.Instruction) error {
	var kind protocol.ResponseKind
	switch field := ins.Arg(0); {
	case e.matches(field, string(protocol.KindYesNo)):
		kind = protocol.KindYesNo
	case e.matches(field, string(protocol.KindCorrect)):
		kind = protocol.KindCorrect
	default:
		return malformed("unknown response kind %q", field)
	}

	raw := strings.TrimSpace(ins.Arg(1))
	timeout, err := script.ParseSeconds(raw)
	if err != nil {
		return malformed("WAIT timeout must be a positive number of seconds, got %q", raw)
	}
	return e.wait(ctx, kind, timeout)
}

func (e *Engine) execRepeat(ins script.Instruction) error {
	source, file := ins.Arg(0), ins.Arg(1)

	var count int
	if e.matches(source, "MAX_STORIES") {
		count = e.budget.MaxStories()
		if count < 1 {
			slog.Info("story limit is zero; not repeating", "script", file)
			return nil
		}
	} else {
		n, err := strconv.Atoi(strings.TrimSpace(source))
		if err != nil || n < 1 {
			return malformed("REPEAT count must be MAX_STORIES or a positive integer, got %q", source)
		}
		count = n
	}

	switch {
	case e.stack.story != nil:
		return malformed("cannot repeat %s: %v", file, errRepeatInside)
	case e.stack.repeat != nil:
		return malformed("cannot repeat %s: %v", file, errRepeatActive)
	}

	c, err := openContext(ContextRepeat, e.scripts.Shared, file)
	if err != nil {
		return newRuntimeError(ErrCodeResourceUnavailable,
			fmt.Sprintf("cannot open repeating script %s; skipping REPEAT", file), err)
	}
	c.maxRepetitions = count
	if err := e.stack.pushRepeat(c); err != nil {
		c.source.Close()
		return malformed("cannot repeat %s: %v", file, err)
	}

	slog.Info("repeating script started", "script", file, "repetitions", count)
	return nil
}
