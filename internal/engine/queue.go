package engine

import "sync"

// controlQueue is a thread-safe FIFO of control messages (START, PAUSE,
// CONTINUE, END) from the session manager.
//
// Transport goroutines enqueue; the driver goroutine dequeues between steps.
// The signal channel lets the driver wait for work alongside ctx.Done().
type controlQueue struct {
	mu       sync.Mutex
	messages []string
	closed   bool
	signal   chan struct{} // buffered, size 1
}

func newControlQueue() *controlQueue {
	return &controlQueue{
		messages: make([]string, 0, 8),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a message. It returns false once the queue is closed.
func (q *controlQueue) Enqueue(msg string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.messages = append(q.messages, msg)

	// Buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the oldest message without blocking.
func (q *controlQueue) TryDequeue() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.messages) == 0 {
		return "", false
	}
	msg := q.messages[0]
	if len(q.messages) == 1 {
		q.messages = q.messages[:0]
	} else {
		q.messages = q.messages[1:]
	}
	return msg, true
}

// Wait returns a channel that fires when messages may be available. It is
// closed when the queue is closed.
func (q *controlQueue) Wait() <-chan struct{} {
	return q.signal
}

// Close stops further enqueues and wakes any waiter.
func (q *controlQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
