package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/socialstories/internal/protocol"
)

// TraceEvent is one command the session sent, in send order.
type TraceEvent struct {
	Seq     int    `json:"seq"`
	Channel string `json:"channel"`
	Action  string `json:"action"`
	Payload string `json:"payload,omitempty"`
	Until   string `json:"until,omitempty"`
}

// String renders the event as one golden-file line.
func (e TraceEvent) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%03d %s %s", e.Seq, e.Channel, e.Action)
	if e.Payload != "" {
		b.WriteString(" ")
		b.WriteString(e.Payload)
	}
	if e.Until != "" {
		b.WriteString(" until=")
		b.WriteString(e.Until)
	}
	return b.String()
}

// key is "channel:action".
func (e TraceEvent) key() string {
	return e.Channel + ":" + e.Action
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if the session finished and all assertions hold.
	Pass bool `json:"pass"`

	// Trace contains every command sent, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Steps is the number of driver steps played.
	Steps int `json:"steps"`

	// Performance is the summary announced with END, if the session finished.
	Performance *protocol.Performance `json:"performance,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a sent command to the trace. Sequence numbers start at 1.
func (r *Result) AddTrace(channel, action, payload, until string) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:     len(r.Trace) + 1,
		Channel: channel,
		Action:  action,
		Payload: payload,
		Until:   until,
	})
}
