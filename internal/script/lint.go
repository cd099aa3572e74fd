package script

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
)

// Problem is one finding from Lint.
type Problem struct {
	Script  string `json:"script"`
	Line    int    `json:"line"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	return fmt.Sprintf("%s:%d: [%s] %s", p.Script, p.Line, p.Code, p.Message)
}

// Problem codes reported by Lint.
const (
	CodeUnknownOpcode = "L001"
	CodeMissingArgs   = "L002"
	CodeBadArgument   = "L003"
	CodeMissingFile   = "L004"
)

// Lint parses every line of name in fsys and reports lines the engine would
// skip. Files named by ADD, REPEAT, and OPAL LOAD_ALL must exist in shared.
// Blank lines are not reported. The error is non-nil only when the script
// itself cannot be read.
func Lint(fsys fs.FS, name string, shared fs.FS, mode MatchMode) ([]Problem, error) {
	src, err := Open(fsys, name)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var problems []Problem
	report := func(code, format string, args ...any) {
		problems = append(problems, Problem{
			Script:  name,
			Line:    src.Line(),
			Code:    code,
			Message: fmt.Sprintf(format, args...),
		})
	}

	for {
		line, err := src.Next()
		if errors.Is(err, ErrEndOfScript) {
			return problems, nil
		}
		if err != nil {
			return problems, err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		ins, err := Parse(line, mode)
		switch {
		case errors.Is(err, ErrUnknownOpcode):
			report(CodeUnknownOpcode, "%v", err)
		case errors.Is(err, ErrMissingArguments):
			report(CodeMissingArgs, "%v", err)
		case err != nil:
			report(CodeBadArgument, "%v", err)
		default:
			lintInstruction(ins, shared, mode, report)
		}
	}
}

func lintInstruction(ins Instruction, shared fs.FS, mode MatchMode, report func(code, format string, args ...any)) {
	exists := func(file string) {
		if _, err := fs.Stat(shared, file); err != nil {
			report(CodeMissingFile, "%s references missing file %q", ins.Op, file)
		}
	}

	switch ins.Op {
	case OpAdd:
		exists(ins.Arg(1))

	case OpOpal:
		if Matches(ins.Arg(0), "LOAD_ALL", mode) && ins.Arg(1) != "" {
			exists(ins.Arg(1))
		}

	case OpSet:
		key, raw := ins.Arg(0), strings.TrimSpace(ins.Arg(1))
		switch {
		case Matches(key, "MAX_INCORRECT_RESPONSES", mode):
			if n, err := strconv.Atoi(raw); err != nil || n < 1 {
				report(CodeBadArgument, "MAX_INCORRECT_RESPONSES must be a positive integer, got %q", raw)
			}
		case Matches(key, "MAX_GAME_TIME", mode):
			if _, err := ParseSeconds(raw); err != nil {
				report(CodeBadArgument, "MAX_GAME_TIME must be a positive number of seconds, got %q", raw)
			}
		case Matches(key, "MAX_STORIES", mode):
			if n, err := strconv.Atoi(raw); err != nil || n < 0 {
				report(CodeBadArgument, "MAX_STORIES must be a non-negative integer, got %q", raw)
			}
		default:
			report(CodeBadArgument, "unknown setting %q", key)
		}

	case OpWait:
		kind := ins.Arg(0)
		if !Matches(kind, "YES_NO", mode) && !Matches(kind, "CORRECT", mode) {
			report(CodeBadArgument, "unknown response kind %q", kind)
		}
		raw := strings.TrimSpace(ins.Arg(1))
		if _, err := ParseSeconds(raw); err != nil {
			report(CodeBadArgument, "WAIT timeout must be a positive number of seconds, got %q", raw)
		}

	case OpRepeat:
		source := ins.Arg(0)
		if !Matches(source, "MAX_STORIES", mode) {
			if n, err := strconv.Atoi(strings.TrimSpace(source)); err != nil || n < 1 {
				report(CodeBadArgument, "REPEAT count must be MAX_STORIES or a positive integer, got %q", source)
			}
		}
		exists(ins.Arg(1))
	}
}
