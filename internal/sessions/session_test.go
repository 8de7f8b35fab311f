package sessions

import (
	"context"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsbridge/jsbridge"
)

var sendRe = regexp.MustCompile(`^sendFromBrowserToServer\((".*"), (\d+)\)$`)

// pumpBrowser plays the browser's poll loop: pop commands and answer every
// evaluation request with answer.
func pumpBrowser(t *testing.T, s *Session, answer any) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			cmd, ok, err := s.queue.PopBlocking(ctx, 100*time.Millisecond)
			if err != nil {
				return
			}
			if !ok {
				continue
			}
			if m := sendRe.FindStringSubmatch(cmd.Stmt); m != nil {
				token, _ := strconv.ParseUint(m[2], 10, 64)
				s.ResolveState(token, answer, "")
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestEvalRoundTrip(t *testing.T) {
	s := newSession("S1", time.Second, time.Second)
	defer s.Expire()
	stop := pumpBrowser(t, s, 5.0)
	defer stop()

	value, err := s.Eval(context.Background(), "window.x")
	require.NoError(t, err)
	assert.Equal(t, 5.0, value)

	// the result is mirrored under the expression it answered
	cached, ok := s.Mirror("window.x")
	require.True(t, ok)
	assert.Equal(t, 5.0, cached)
}

func TestEvalRemoteError(t *testing.T) {
	s := newSession("S1", time.Second, time.Second)
	defer s.Expire()

	go func() {
		cmd, ok, err := s.queue.PopBlocking(context.Background(), time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		m := sendRe.FindStringSubmatch(cmd.Stmt)
		require.NotNil(t, m)
		token, _ := strconv.ParseUint(m[2], 10, 64)
		s.ResolveState(token, nil, "ReferenceError: nope")
	}()

	_, err := s.Eval(context.Background(), "nope()")
	require.Error(t, err)
	assert.True(t, jsbridge.IsRemoteErr(err))
}

func TestEvalTimesOutWithoutBrowser(t *testing.T) {
	s := newSession("S1", time.Second, 50*time.Millisecond)
	defer s.Expire()

	_, err := s.Eval(context.Background(), "window.x")
	require.Error(t, err)
	assert.True(t, jsbridge.IsTimeoutErr(err))
	assert.Zero(t, s.PendingCalls())
}

func TestExpireFailsFastAndWakesWaiters(t *testing.T) {
	s := newSession("S1", 5*time.Second, 5*time.Second)

	evalErr := make(chan error, 1)
	go func() {
		_, err := s.Eval(context.Background(), "window.x")
		evalErr <- err
	}()
	time.Sleep(20 * time.Millisecond)
	// drain the queued eval command, then block on the empty queue like a
	// second poll would
	_, ok, err := s.NextCommand(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	popErr := make(chan error, 1)
	go func() {
		_, _, err := s.NextCommand(context.Background())
		popErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	s.Expire()

	for _, ch := range []chan error{popErr, evalErr} {
		select {
		case err := <-ch:
			assert.True(t, jsbridge.IsSessionClosedErr(err), "got %v", err)
		case <-time.After(time.Second):
			t.Fatal("expire did not wake a blocked waiter")
		}
	}

	assert.False(t, s.Alive())
	err = s.EnqueueStatement("late()")
	assert.True(t, jsbridge.IsSessionClosedErr(err))
	_, err = s.Eval(context.Background(), "late")
	assert.True(t, jsbridge.IsSessionClosedErr(err))

	// Expire is idempotent
	assert.NotPanics(t, func() { s.Expire() })
}

func TestEnqueueCallSerialization(t *testing.T) {
	s := newSession("S1", time.Second, time.Second)
	defer s.Expire()

	require.NoError(t, s.EnqueueCall("plot", []any{1, "left", true}))

	cmd, ok, err := s.NextCommand(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, KindCall, cmd.Kind)
	assert.Equal(t, `plot(1,"left",true)`, cmd.Stmt)
}

func TestCallbackRegistry(t *testing.T) {
	s := newSession("S1", time.Second, time.Second)
	defer s.Expire()

	id := s.RegisterCallback(func(args []any) (any, error) { return "called", nil })
	require.NotZero(t, id)

	fn, ok := s.Callback(id)
	require.True(t, ok)
	result, err := fn(nil)
	require.NoError(t, err)
	assert.Equal(t, "called", result)

	_, ok = s.Callback(id + 1)
	assert.False(t, ok)
}

func TestRecordClientError(t *testing.T) {
	s := newSession("S1", time.Second, time.Second)
	defer s.Expire()

	s.RecordClientError("ReferenceError: foo", "foo(1,2)")
	assert.Equal(t, "ReferenceError: foo", s.LastClientError())
}

func TestTouchAdvancesLastContact(t *testing.T) {
	s := newSession("S1", time.Second, time.Second)
	defer s.Expire()

	before := s.LastContact()
	time.Sleep(5 * time.Millisecond)
	s.Touch()
	assert.True(t, s.LastContact().After(before))
}
