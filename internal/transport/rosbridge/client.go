package rosbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/socialstories/internal/protocol"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
	inboxSize        = 32
)

// ErrClosed is returned once the connection has been closed.
var ErrClosed = errors.New("rosbridge connection closed")

// Client is a rosbridge connection. It satisfies engine.Transport.
//
// One goroutine reads frames and routes them to per-topic inboxes. Writes
// are serialized with a mutex. All methods are safe for concurrent use.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	controls  chan string
	responses chan protocol.Response
	states    chan string

	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Dial connects to the rosbridge server at url, advertises the outgoing
// topics and subscribes to the incoming ones.
func Dial(ctx context.Context, url string) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial rosbridge %s: %w", url, err)
	}

	c := &Client{
		conn:      conn,
		controls:  make(chan string, inboxSize),
		responses: make(chan protocol.Response, inboxSize),
		states:    make(chan string, inboxSize),
		done:      make(chan struct{}),
	}

	for _, topic := range publishTopics {
		if err := c.write(frame{Op: "advertise", Topic: topic, Type: topicTypes[topic]}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("advertise %s: %w", topic, err)
		}
	}
	for _, topic := range subscribeTopics {
		if err := c.write(frame{Op: "subscribe", Topic: topic, Type: topicTypes[topic]}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}

	go c.readLoop()
	slog.Info("connected to rosbridge", "url", url)
	return c, nil
}

// Controls delivers /game_command payloads in arrival order. The channel
// is closed when the connection drops.
func (c *Client) Controls() <-chan string {
	return c.controls
}

// Done is closed when the connection drops or Close is called.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, or nil while it is open.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close unsubscribes and closes the connection. It is safe to call more
// than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		c.setErr(ErrClosed)
		err = c.conn.Close()
		close(c.done)
	})
	return err
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Client) write(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(f)
}

func (c *Client) publish(ctx context.Context, topic string, msg any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return c.Err()
	default:
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", topic, err)
	}
	if err := c.write(frame{Op: "publish", Topic: topic, Msg: body}); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// SendRobotCommand publishes a robot command.
func (c *Client) SendRobotCommand(ctx context.Context, action, payload string) error {
	slog.Debug("robot command", "action", action, "payload", payload)
	return c.publish(ctx, TopicRobotCommand, commandMsg{Command: action, Properties: payload})
}

// SendRobotCommandAndWait publishes a robot command and blocks until the
// robot reports state until or timeout elapses. A timeout is not an error.
func (c *Client) SendRobotCommandAndWait(ctx context.Context, action, payload, until string, timeout time.Duration) error {
	drain(c.states)
	if err := c.SendRobotCommand(ctx, action, payload); err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return c.Err()
		case <-timer.C:
			slog.Warn("robot did not reach state in time",
				"action", action,
				"state", until,
				"timeout", timeout,
			)
			return nil
		case state := <-c.states:
			if state == until {
				return nil
			}
		}
	}
}

// SendOpalCommand publishes a tablet command.
func (c *Client) SendOpalCommand(ctx context.Context, action, payload string) error {
	slog.Debug("opal command", "action", action, "payload", payload)
	return c.publish(ctx, TopicOpalCommand, commandMsg{Command: action, Properties: payload})
}

// SendGameState publishes a game state announcement.
func (c *Client) SendGameState(ctx context.Context, state protocol.GameState, extra string) error {
	slog.Debug("game state", "state", state)
	return c.publish(ctx, TopicGameState, gameStateMsg{State: string(state), Performance: extra})
}

// WaitForResponse blocks for a participant response of kind.
//
// Responses that arrived before the call are discarded, as are responses
// of another kind. It returns protocol.ResponseTimeout when timeout elapses
// and the context's error if ctx ends first.
func (c *Client) WaitForResponse(ctx context.Context, kind protocol.ResponseKind, timeout time.Duration) (protocol.Response, error) {
	if n := drain(c.responses); n > 0 {
		slog.Debug("discarded stale responses", "count", n)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-c.done:
			return "", c.Err()
		case <-timer.C:
			return protocol.ResponseTimeout, nil
		case resp := <-c.responses:
			if kind.Accepts(resp) {
				return resp, nil
			}
			slog.Debug("ignoring response", "kind", kind, "response", resp)
		}
	}
}

// drain empties ch without blocking and returns how many items it dropped.
func drain[T any](ch chan T) int {
	n := 0
	for {
		select {
		case <-ch:
			n++
		default:
			return n
		}
	}
}

func (c *Client) readLoop() {
	defer close(c.controls)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			// Close records ErrClosed before closing the socket.
			if errors.Is(c.Err(), ErrClosed) {
				return
			}
			select {
			case <-c.done:
			default:
				slog.Warn("rosbridge connection lost", "error", err)
				c.setErr(fmt.Errorf("rosbridge connection lost: %w", err))
				c.closeOnce.Do(func() {
					c.conn.Close()
					close(c.done)
				})
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Warn("malformed rosbridge frame", "error", err)
			continue
		}
		if f.Op != "publish" {
			continue
		}
		c.route(f)
	}
}

func (c *Client) route(f frame) {
	switch f.Topic {
	case TopicGameCommand:
		var msg gameCommandMsg
		if err := json.Unmarshal(f.Msg, &msg); err != nil {
			slog.Warn("malformed game command", "error", err)
			return
		}
		cmd := msg.Command
		if cmd == "" {
			cmd = msg.Data
		}
		offer(c.controls, cmd, f.Topic)

	case TopicOpalAction:
		var msg opalActionMsg
		if err := json.Unmarshal(f.Msg, &msg); err != nil {
			slog.Warn("malformed tablet action", "error", err)
			return
		}
		resp, ok := protocol.ParseResponse(msg.Message)
		if !ok {
			resp, ok = protocol.ParseResponse(msg.Action)
		}
		if !ok {
			slog.Debug("tablet action is not a response", "action", msg.Action, "message", msg.Message)
			return
		}
		offer(c.responses, resp, f.Topic)

	case TopicRobotState:
		var msg robotStateMsg
		if err := json.Unmarshal(f.Msg, &msg); err != nil {
			slog.Warn("malformed robot state", "error", err)
			return
		}
		offer(c.states, msg.State, f.Topic)
	}
}

// offer queues v without blocking the read loop. A full inbox drops v.
func offer[T any](ch chan T, v T, topic string) {
	select {
	case ch <- v:
	default:
		slog.Warn("inbox full; dropping message", "topic", topic)
	}
}
