package sessions

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsbridge/jsbridge"
)

func TestAwaitResultReceivesResolvedValue(t *testing.T) {
	table := NewPendingCallTable()

	token, err := table.Begin("document.title")
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		table.Resolve(token, "hello")
	}()

	value, err := table.AwaitResult(context.Background(), token, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello", value)
	assert.Zero(t, table.Len())
}

func TestConcurrentCallsMatchByToken(t *testing.T) {
	table := NewPendingCallTable()

	const calls = 50
	tokens := make(chan uint64, calls)

	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := table.Begin("expr")
			require.NoError(t, err)
			tokens <- token
			value, err := table.AwaitResult(context.Background(), token, 5*time.Second)
			require.NoError(t, err)
			// out-of-order completion still matches the exact caller
			assert.Equal(t, fmt.Sprintf("value-%d", token), value)
		}()
	}

	go func() {
		for i := 0; i < calls; i++ {
			token := <-tokens
			table.Resolve(token, fmt.Sprintf("value-%d", token))
		}
	}()

	wg.Wait()
	assert.Zero(t, table.Len())
}

func TestResolveUnknownTokenIsNoOp(t *testing.T) {
	table := NewPendingCallTable()

	assert.NotPanics(t, func() {
		_, ok := table.Resolve(12345, "late")
		assert.False(t, ok)
	})
}

func TestDoubleResolveIsNoOp(t *testing.T) {
	table := NewPendingCallTable()

	token, err := table.Begin("expr")
	require.NoError(t, err)

	_, ok := table.Resolve(token, "first")
	require.True(t, ok)
	_, ok = table.Resolve(token, "second")
	assert.False(t, ok)

	value, err := table.AwaitResult(context.Background(), token, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "first", value)
}

func TestAwaitResultTimesOutAndEvicts(t *testing.T) {
	table := NewPendingCallTable()

	token, err := table.Begin("expr")
	require.NoError(t, err)

	started := time.Now()
	_, err = table.AwaitResult(context.Background(), token, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, jsbridge.IsTimeoutErr(err))
	assert.Less(t, time.Since(started), time.Second)

	// the token is unreachable afterwards
	assert.Zero(t, table.Len())
	_, ok := table.Resolve(token, "late")
	assert.False(t, ok)
}

func TestFailDeliversRemoteError(t *testing.T) {
	table := NewPendingCallTable()

	token, err := table.Begin("badExpr()")
	require.NoError(t, err)

	go func() {
		table.Fail(token, "ReferenceError: badExpr is not defined")
	}()

	_, err = table.AwaitResult(context.Background(), token, time.Second)
	require.Error(t, err)
	assert.True(t, jsbridge.IsRemoteErr(err))

	expr, ok := jsbridge.RemoteErrorExpr(err)
	require.True(t, ok)
	assert.Equal(t, "badExpr()", expr)
}

func TestCloseWakesAllWaiters(t *testing.T) {
	table := NewPendingCallTable()

	const waiters = 5
	errCh := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		token, err := table.Begin("expr")
		require.NoError(t, err)
		go func(token uint64) {
			_, err := table.AwaitResult(context.Background(), token, 10*time.Second)
			errCh <- err
		}(token)
	}

	time.Sleep(50 * time.Millisecond)
	table.Close()

	for i := 0; i < waiters; i++ {
		select {
		case err := <-errCh:
			assert.True(t, jsbridge.IsSessionClosedErr(err))
		case <-time.After(time.Second):
			t.Fatal("close did not wake every waiter")
		}
	}

	_, err := table.Begin("expr")
	assert.True(t, jsbridge.IsSessionClosedErr(err))
}
