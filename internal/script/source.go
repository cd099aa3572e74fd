package script

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrEndOfScript is returned by Source.Next once every line has been read.
var ErrEndOfScript = errors.New("end of script")

// maxLineBytes bounds a single script or pool line.
const maxLineBytes = 1 << 20

// Source yields the lines of one script in order.
//
// A Source is not safe for concurrent use. It closes its underlying file as
// soon as it is exhausted.
type Source struct {
	name    string
	closer  io.Closer
	scanner *bufio.Scanner
	line    int
	done    bool
}

// Open opens the named script in fsys.
//
// A leading UTF-8 byte order mark is stripped so the first opcode matches.
func Open(fsys fs.FS, name string) (*Source, error) {
	if !fs.ValidPath(name) {
		return nil, fmt.Errorf("open script %q: %w", name, fs.ErrInvalid)
	}
	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open script %q: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat script %q: %w", name, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("open script %q: is a directory", name)
	}
	return newSource(name, f, f), nil
}

// NewSource wraps an in-memory reader. If r is an io.Closer it is closed
// when the source is exhausted.
func NewSource(name string, r io.Reader) *Source {
	c, _ := r.(io.Closer)
	return newSource(name, r, c)
}

func newSource(name string, r io.Reader, c io.Closer) *Source {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	sc := bufio.NewScanner(decoded)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
	return &Source{name: name, closer: c, scanner: sc}
}

// Name returns the name the source was opened with.
func (s *Source) Name() string { return s.name }

// Line returns the 1-based number of the last line returned by Next.
func (s *Source) Line() int { return s.line }

// Next returns the next line without its trailing newline.
// It returns ErrEndOfScript when the script is exhausted and a wrapped
// read error if the underlying file fails.
func (s *Source) Next() (string, error) {
	if s.done {
		return "", ErrEndOfScript
	}
	if s.scanner.Scan() {
		s.line++
		return s.scanner.Text(), nil
	}

	s.done = true
	readErr := s.scanner.Err()
	if err := s.Close(); err != nil && readErr == nil {
		readErr = err
	}
	if readErr != nil {
		return "", fmt.Errorf("read script %q after line %d: %w", s.name, s.line, readErr)
	}
	return "", ErrEndOfScript
}

// Close releases the underlying file. It is safe to call more than once.
func (s *Source) Close() error {
	s.done = true
	if s.closer == nil {
		return nil
	}
	c := s.closer
	s.closer = nil
	return c.Close()
}

// ReadLines reads every non-empty line of the named file. Lines are kept
// verbatim apart from the trailing newline.
func ReadLines(fsys fs.FS, name string) ([]string, error) {
	src, err := Open(fsys, name)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var lines []string
	for {
		line, err := src.Next()
		if errors.Is(err, ErrEndOfScript) {
			return lines, nil
		}
		if err != nil {
			return nil, err
		}
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
}
