package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/socialstories/internal/protocol"
)

// Command channels recorded by FakeTransport.
const (
	ChannelRobot = "robot"
	ChannelOpal  = "opal"
	ChannelState = "state"
)

// Command is one message sent through FakeTransport.
type Command struct {
	Channel string `yaml:"channel"`
	Action  string `yaml:"action"`
	Payload string `yaml:"payload,omitempty"`
	// Until is the robot state awaited by SendRobotCommandAndWait.
	Until string `yaml:"until,omitempty"`
}

// Wait records one WaitForResponse call.
type Wait struct {
	Kind     protocol.ResponseKind
	Timeout  time.Duration
	Response protocol.Response
}

// FakeTransport records every command and answers waits from a script.
//
// Each WaitForResponse call consumes the next scripted response. When the
// script is empty it answers TIMEOUT. A TIMEOUT advances Clock (if set) by
// the requested timeout, as a real wait would.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeTransport struct {
	mu        sync.Mutex
	clock     *ManualClock
	responses []protocol.Response
	commands  []Command
	waits     []Wait

	// Err, when set, is returned from every send.
	Err error
}

// NewFakeTransport creates a transport that answers waits with responses
// in order.
func NewFakeTransport(clock *ManualClock, responses ...protocol.Response) *FakeTransport {
	return &FakeTransport{clock: clock, responses: responses}
}

// QueueResponses appends scripted responses.
func (f *FakeTransport) QueueResponses(responses ...protocol.Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, responses...)
}

func (f *FakeTransport) record(c Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.commands = append(f.commands, c)
	return nil
}

// SendRobotCommand records a robot command.
func (f *FakeTransport) SendRobotCommand(ctx context.Context, action, payload string) error {
	return f.record(Command{Channel: ChannelRobot, Action: action, Payload: payload})
}

// SendRobotCommandAndWait records a robot command and the state it waits for.
func (f *FakeTransport) SendRobotCommandAndWait(ctx context.Context, action, payload, until string, timeout time.Duration) error {
	return f.record(Command{Channel: ChannelRobot, Action: action, Payload: payload, Until: until})
}

// SendOpalCommand records a tablet command.
func (f *FakeTransport) SendOpalCommand(ctx context.Context, action, payload string) error {
	return f.record(Command{Channel: ChannelOpal, Action: action, Payload: payload})
}

// SendGameState records a game state announcement.
func (f *FakeTransport) SendGameState(ctx context.Context, state protocol.GameState, extra string) error {
	return f.record(Command{Channel: ChannelState, Action: string(state), Payload: extra})
}

// WaitForResponse returns the next scripted response, or TIMEOUT.
func (f *FakeTransport) WaitForResponse(ctx context.Context, kind protocol.ResponseKind, timeout time.Duration) (protocol.Response, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	resp := protocol.ResponseTimeout
	if len(f.responses) > 0 {
		resp = f.responses[0]
		f.responses = f.responses[1:]
	}
	f.waits = append(f.waits, Wait{Kind: kind, Timeout: timeout, Response: resp})
	clock := f.clock
	f.mu.Unlock()

	if resp == protocol.ResponseTimeout && clock != nil {
		clock.Advance(timeout)
	}
	return resp, nil
}

// Commands returns a copy of every recorded command in order.
func (f *FakeTransport) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.commands...)
}

// Filter returns recorded commands on channel, optionally limited to action.
func (f *FakeTransport) Filter(channel, action string) []Command {
	var out []Command
	for _, c := range f.Commands() {
		if c.Channel != channel {
			continue
		}
		if action != "" && c.Action != action {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Waits returns a copy of every WaitForResponse call.
func (f *FakeTransport) Waits() []Wait {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Wait(nil), f.waits...)
}

// Pending returns how many scripted responses are unused.
func (f *FakeTransport) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.responses)
}
