package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// RuntimeError represents a failure detected while playing a script.
//
// Only ErrCodeUnexpectedFailure is returned to the caller of Step. The other
// codes are logged and the affected line or sub-script is skipped.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Script and Line locate the instruction, when known.
	Script string
	Line   int

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeResourceUnavailable indicates a script or pool file could not be opened.
	ErrCodeResourceUnavailable RuntimeErrorCode = "RESOURCE_UNAVAILABLE"

	// ErrCodeMalformedLine indicates an empty line, unknown opcode, or bad argument.
	ErrCodeMalformedLine RuntimeErrorCode = "MALFORMED_LINE"

	// ErrCodeMissingConfiguration indicates a pool or value that was never set.
	ErrCodeMissingConfiguration RuntimeErrorCode = "MISSING_CONFIGURATION"

	// ErrCodeUnexpectedFailure is anything else. The session should end.
	ErrCodeUnexpectedFailure RuntimeErrorCode = "UNEXPECTED_FAILURE"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Script != "" {
		if e.Line > 0 {
			fmt.Fprintf(&b, " (script=%s, line=%d)", e.Script, e.Line)
		} else {
			fmt.Fprintf(&b, " (script=%s)", e.Script)
		}
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsResourceUnavailable reports whether err is a missing script or pool file.
func IsResourceUnavailable(err error) bool { return hasCode(err, ErrCodeResourceUnavailable) }

// IsMissingConfiguration reports whether err is an unset pool or value.
func IsMissingConfiguration(err error) bool { return hasCode(err, ErrCodeMissingConfiguration) }

// IsUnexpectedFailure reports whether err should end the session.
func IsUnexpectedFailure(err error) bool { return hasCode(err, ErrCodeUnexpectedFailure) }

func newRuntimeError(code RuntimeErrorCode, message string, err error) *RuntimeError {
	return &RuntimeError{Code: code, Message: message, Err: err}
}

// at attaches a script position.
func (e *RuntimeError) at(c *scriptContext) *RuntimeError {
	if c != nil && e.Script == "" {
		e.Script = c.name
		e.Line = c.source.Line()
	}
	return e
}

// log records the error. Unexpected failures log at error level, everything
// else at warn since play continues.
func (e *RuntimeError) log() {
	level := slog.LevelWarn
	if e.Code == ErrCodeUnexpectedFailure {
		level = slog.LevelError
	}
	attrs := []any{
		"event", strings.ToLower(string(e.Code)),
		"code", e.Code,
	}
	if e.Script != "" {
		attrs = append(attrs, "script", e.Script, "line", e.Line)
	}
	if e.Err != nil {
		attrs = append(attrs, "error", e.Err)
	}
	slog.Log(context.Background(), level, e.Message, attrs...)
}

// unexpected wraps err as an unexpected failure unless it already is a
// RuntimeError.
func unexpected(message string, err error) error {
	var re *RuntimeError
	if errors.As(err, &re) {
		return err
	}
	return newRuntimeError(ErrCodeUnexpectedFailure, message, err)
}
