package script

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Opcode names one of the fixed script instructions.
type Opcode string

const (
	OpStory  Opcode = "STORY"
	OpRobot  Opcode = "ROBOT"
	OpOpal   Opcode = "OPAL"
	OpAdd    Opcode = "ADD"
	OpSet    Opcode = "SET"
	OpWait   Opcode = "WAIT"
	OpRepeat Opcode = "REPEAT"
)

// opcodeTable is checked in order; the first match wins.
var opcodeTable = []struct {
	op      Opcode
	minArgs int
}{
	{OpStory, 0},
	{OpRobot, 1},
	{OpOpal, 1},
	{OpAdd, 2},
	{OpSet, 2},
	{OpWait, 2},
	{OpRepeat, 2},
}

// Opcodes returns every recognized opcode in match order.
func Opcodes() []Opcode {
	ops := make([]Opcode, len(opcodeTable))
	for i, def := range opcodeTable {
		ops[i] = def.op
	}
	return ops
}

// maxArgs is the number of fields after the opcode that carry meaning.
const maxArgs = 2

var (
	// ErrEmptyLine marks a line with no fields.
	ErrEmptyLine = errors.New("empty line")
	// ErrUnknownOpcode marks a line whose first field matches no opcode.
	ErrUnknownOpcode = errors.New("unknown opcode")
	// ErrMissingArguments marks a recognized opcode with too few fields.
	ErrMissingArguments = errors.New("missing arguments")
)

// MatchMode selects how opcodes and keyword arguments are recognized.
type MatchMode int

const (
	// MatchContains recognizes a keyword anywhere inside the field. Existing
	// scripts rely on this.
	MatchContains MatchMode = iota
	// MatchExact requires the field to equal the keyword.
	MatchExact
)

// ParseMatchMode parses "contains" or "exact". The empty string selects
// MatchContains.
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "contains":
		return MatchContains, nil
	case "exact":
		return MatchExact, nil
	default:
		return MatchContains, fmt.Errorf("unknown match mode %q (want contains or exact)", s)
	}
}

func (m MatchMode) String() string {
	if m == MatchExact {
		return "exact"
	}
	return "contains"
}

// Matches reports whether field names keyword under mode.
func Matches(field, keyword string, mode MatchMode) bool {
	if mode == MatchExact {
		return strings.TrimSpace(field) == keyword
	}
	return strings.Contains(field, keyword)
}

// Instruction is the parsed form of one script line.
type Instruction struct {
	Op   Opcode
	Args []string
}

// Arg returns argument n, or "" if the line did not have it.
func (i Instruction) Arg(n int) string {
	if n < 0 || n >= len(i.Args) {
		return ""
	}
	return i.Args[n]
}

// Parse splits a line on tabs and recognizes its opcode.
//
// Errors wrap ErrEmptyLine, ErrUnknownOpcode, or ErrMissingArguments. When
// the opcode was recognized but arguments are missing, the returned
// Instruction still carries the opcode.
func Parse(line string, mode MatchMode) (Instruction, error) {
	if strings.TrimSpace(line) == "" {
		return Instruction{}, ErrEmptyLine
	}

	fields := strings.Split(line, "\t")
	head := fields[0]
	for _, def := range opcodeTable {
		if !Matches(head, string(def.op), mode) {
			continue
		}
		args := fields[1:]
		if len(args) < def.minArgs {
			return Instruction{Op: def.op}, fmt.Errorf("%w: %s needs %d, got %d",
				ErrMissingArguments, def.op, def.minArgs, len(args))
		}
		if len(args) > maxArgs {
			args = args[:maxArgs]
		}
		ins := Instruction{Op: def.op}
		if len(args) > 0 {
			ins.Args = append([]string(nil), args...)
		}
		return ins, nil
	}
	return Instruction{}, fmt.Errorf("%w: %q", ErrUnknownOpcode, head)
}

// maxSeconds is the longest duration a script may name.
const maxSeconds = float64(math.MaxInt64 / int64(time.Second))

// ParseSeconds parses a positive, finite number of seconds as used by WAIT
// timeouts and MAX_GAME_TIME.
func ParseSeconds(raw string) (time.Duration, error) {
	secs, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number of seconds: %q", raw)
	}
	if math.IsNaN(secs) || secs <= 0 || secs > maxSeconds {
		return 0, fmt.Errorf("seconds out of range: %q", raw)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
