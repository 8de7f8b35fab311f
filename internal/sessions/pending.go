package sessions

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jsbridge/jsbridge"
)

type callResult struct {
	value any
	err   error
}

type pendingCall struct {
	token uint64
	expr  string
	done  chan callResult
}

// PendingCallTable tracks in-flight round trips awaiting a browser-produced
// result and matches results back to the exact caller blocked on them.
// Tokens are unique for the lifetime of the session.
type PendingCallTable struct {
	mu        sync.Mutex
	nextToken uint64
	calls     map[uint64]*pendingCall
	closed    chan struct{}
	closeOnce sync.Once
}

func NewPendingCallTable() *PendingCallTable {
	return &PendingCallTable{
		calls:  map[uint64]*pendingCall{},
		closed: make(chan struct{}),
	}
}

// Begin allocates a call slot under a fresh token and registers its waiter.
// The registration happens before the corresponding command ever becomes
// visible to the poll consumer, so a result can never arrive for a token
// nobody waits on yet.
func (t *PendingCallTable) Begin(expr string) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.closed:
		return 0, jsbridge.SessionClosedError(errors.New("begin on closed table"))
	default:
	}
	t.nextToken++
	token := t.nextToken
	t.calls[token] = &pendingCall{
		token: token,
		expr:  expr,
		done:  make(chan callResult, 1),
	}
	return token, nil
}

// Resolve stores a success value for token and wakes its waiter. An unknown
// or already-resolved token is a diagnostic no-op: late results after
// timeout eviction are expected under load.
func (t *PendingCallTable) Resolve(token uint64, value any) (string, bool) {
	return t.finish(token, callResult{value: value})
}

// Fail resolves token with a browser-side evaluation error.
func (t *PendingCallTable) Fail(token uint64, message string) (string, bool) {
	t.mu.Lock()
	c, ok := t.calls[token]
	t.mu.Unlock()
	if !ok {
		log.Printf("pending: result for unknown token %d dropped", token)
		return "", false
	}
	return t.finish(token, callResult{err: jsbridge.RemoteError(message, c.expr)})
}

func (t *PendingCallTable) finish(token uint64, result callResult) (string, bool) {
	t.mu.Lock()
	c, ok := t.calls[token]
	if ok {
		delete(t.calls, token)
	}
	t.mu.Unlock()
	if !ok {
		log.Printf("pending: result for unknown token %d dropped", token)
		return "", false
	}
	c.done <- result
	return c.expr, true
}

// AwaitResult blocks until Resolve or Fail is called for token, or the
// timeout elapses. On timeout the entry is evicted and a timeout error
// returned, so neither the caller nor the table can leak.
func (t *PendingCallTable) AwaitResult(ctx context.Context, token uint64, timeout time.Duration) (any, error) {
	t.mu.Lock()
	c, ok := t.calls[token]
	t.mu.Unlock()
	if !ok {
		return nil, jsbridge.DispatchError(errors.Errorf("await on unknown token %d", token))
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-c.done:
		return result.value, result.err
	case <-timer.C:
		t.mu.Lock()
		_, still := t.calls[token]
		if still {
			delete(t.calls, token)
		}
		t.mu.Unlock()
		if !still {
			// Lost the race against a concurrent resolve; the result is
			// already in flight on the buffered channel.
			result := <-c.done
			return result.value, result.err
		}
		return nil, jsbridge.TimeoutError(errors.Errorf("no result for %q within %s", c.expr, timeout))
	case <-ctx.Done():
		t.evict(token)
		return nil, ctx.Err()
	case <-t.closed:
		return nil, jsbridge.SessionClosedError(errors.Errorf("session closed while waiting on %q", c.expr))
	}
}

func (t *PendingCallTable) evict(token uint64) {
	t.mu.Lock()
	delete(t.calls, token)
	t.mu.Unlock()
}

// Close releases every blocked waiter with a session-closed error and
// rejects new calls.
func (t *PendingCallTable) Close() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		close(t.closed)
		t.calls = map[uint64]*pendingCall{}
		t.mu.Unlock()
	})
}

func (t *PendingCallTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
