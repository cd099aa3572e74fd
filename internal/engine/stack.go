package engine

import (
	"errors"
	"io/fs"

	"github.com/roach88/socialstories/internal/script"
)

// ContextKind identifies which script a context plays.
type ContextKind int

const (
	ContextMain ContextKind = iota
	ContextStory
	ContextRepeat
)

func (k ContextKind) String() string {
	switch k {
	case ContextMain:
		return "MAIN"
	case ContextStory:
		return "STORY"
	case ContextRepeat:
		return "REPEAT"
	default:
		return "UNKNOWN"
	}
}

// scriptContext is one active script plus its repetition bookkeeping.
type scriptContext struct {
	kind   ContextKind
	name   string
	fsys   fs.FS
	source *script.Source

	repetitionsDone int
	maxRepetitions  int
}

func openContext(kind ContextKind, fsys fs.FS, name string) (*scriptContext, error) {
	src, err := script.Open(fsys, name)
	if err != nil {
		return nil, err
	}
	return &scriptContext{kind: kind, name: name, fsys: fsys, source: src}, nil
}

// reopen restarts the context's script from the first line.
func (c *scriptContext) reopen() error {
	c.source.Close()
	src, err := script.Open(c.fsys, c.name)
	if err != nil {
		return err
	}
	c.source = src
	return nil
}

var (
	errStoryActive  = errors.New("a story is already playing")
	errRepeatActive = errors.New("a repeating script is already active")
	errRepeatInside = errors.New("cannot start a repeating script inside a story")
)

// contextStack holds the main script and at most one story and one repeat.
//
// The innermost context wins: story, then repeat, then main. A story may
// start inside a repeat, never the reverse. Main is only released by close.
type contextStack struct {
	main   *scriptContext
	repeat *scriptContext
	story  *scriptContext
}

func newContextStack(main *scriptContext) *contextStack {
	return &contextStack{main: main}
}

func (s *contextStack) current() *scriptContext {
	switch {
	case s.story != nil:
		return s.story
	case s.repeat != nil:
		return s.repeat
	default:
		return s.main
	}
}

func (s *contextStack) pushStory(c *scriptContext) error {
	if s.story != nil {
		return errStoryActive
	}
	s.story = c
	return nil
}

func (s *contextStack) pushRepeat(c *scriptContext) error {
	if s.story != nil {
		return errRepeatInside
	}
	if s.repeat != nil {
		return errRepeatActive
	}
	s.repeat = c
	return nil
}

// popCurrent removes the innermost story or repeat context. Main is never
// popped; popCurrent returns nil when only main remains.
func (s *contextStack) popCurrent() *scriptContext {
	var c *scriptContext
	switch {
	case s.story != nil:
		c, s.story = s.story, nil
	case s.repeat != nil:
		c, s.repeat = s.repeat, nil
	default:
		return nil
	}
	c.source.Close()
	return c
}

func (s *contextStack) cancelRepeat() bool {
	if s.repeat == nil {
		return false
	}
	s.repeat.source.Close()
	s.repeat = nil
	return true
}

// cancelSubContexts drops any story and repeat so play resumes in main at
// its current line.
func (s *contextStack) cancelSubContexts() {
	if s.story != nil {
		s.story.source.Close()
		s.story = nil
	}
	s.cancelRepeat()
}

// kinds lists active contexts outermost first.
func (s *contextStack) kinds() []ContextKind {
	kinds := []ContextKind{ContextMain}
	if s.repeat != nil {
		kinds = append(kinds, ContextRepeat)
	}
	if s.story != nil {
		kinds = append(kinds, ContextStory)
	}
	return kinds
}

func (s *contextStack) close() {
	s.cancelSubContexts()
	if s.main != nil {
		s.main.source.Close()
	}
}
