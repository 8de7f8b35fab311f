package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jsbridge/jsbridge"
)

type CommandKind int

const (
	KindStatement CommandKind = iota
	KindCall
)

// Command is one outbound instruction for the browser. The payload is the
// final statement text; it is immutable once enqueued and consumed exactly
// once by the poll consumer.
type Command struct {
	Kind CommandKind
	Stmt string
}

// CommandQueue is the per-session FIFO of outbound commands. Producers are
// any number of server goroutines; the consumer is whichever long-poll
// request is currently held open for the session.
type CommandQueue struct {
	mu        sync.Mutex
	items     []Command
	wake      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func NewCommandQueue() *CommandQueue {
	return &CommandQueue{
		wake:   make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Push appends a command to the tail and wakes one waiting consumer.
// It never blocks. It fails only when the owning session is no longer alive.
func (q *CommandQueue) Push(cmd Command) error {
	q.mu.Lock()
	select {
	case <-q.closed:
		q.mu.Unlock()
		return jsbridge.SessionClosedError(errors.New("push on closed queue"))
	default:
	}
	q.items = append(q.items, cmd)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// PopBlocking removes and returns the head command. With an empty queue it
// holds the caller until a push, the timeout, context cancellation or queue
// close. A lapsed timeout is not an error: ok is false and the poll response
// is simply empty. A canceled context (the browser abandoned its poll
// connection) releases this waiter without disturbing later ones.
func (q *CommandQueue) PopBlocking(ctx context.Context, timeout time.Duration) (Command, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		select {
		case <-q.closed:
			q.mu.Unlock()
			return Command{}, false, jsbridge.SessionClosedError(errors.New("pop on closed queue"))
		default:
		}
		if len(q.items) > 0 {
			cmd := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return cmd, true, nil
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-timer.C:
			return Command{}, false, nil
		case <-ctx.Done():
			return Command{}, false, ctx.Err()
		case <-q.closed:
			return Command{}, false, jsbridge.SessionClosedError(errors.New("queue closed while waiting"))
		}
	}
}

// Close rejects future pushes and releases every current and future waiter
// with a session-closed error.
func (q *CommandQueue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		close(q.closed)
		q.items = nil
		q.mu.Unlock()
	})
}

func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
