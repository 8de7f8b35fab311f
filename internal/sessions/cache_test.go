package sessions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsbridge/jsbridge/internal/apps"
	"github.com/jsbridge/jsbridge/internal/jschain"
)

func testCacheConfig() Config {
	return Config{
		MaxSessions: 16,
		PollWindow:  time.Second,
		EvalTimeout: time.Second,
		IdleMax:     time.Hour,
		SweepEvery:  time.Hour,
		Factory:     func(js *jschain.Root) *apps.Binding { return apps.New() },
	}
}

func TestNewCacheRequiresFactory(t *testing.T) {
	cfg := testCacheConfig()
	cfg.Factory = nil
	_, err := NewCache(cfg)
	require.Error(t, err)
}

func TestGetOrCreateIsIdempotentPerId(t *testing.T) {
	c, err := NewCache(testCacheConfig())
	require.NoError(t, err)
	defer c.Stop()

	a, err := c.GetOrCreate("P1")
	require.NoError(t, err)
	b, err := c.GetOrCreate("P1")
	require.NoError(t, err)
	assert.Same(t, a, b)

	other, err := c.GetOrCreate("P2")
	require.NoError(t, err)
	assert.NotSame(t, a, other)
}

func TestConcurrentFirstContactYieldsOneSession(t *testing.T) {
	c, err := NewCache(testCacheConfig())
	require.NoError(t, err)
	defer c.Stop()

	const workers = 32
	got := make([]*Session, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := c.GetOrCreate("P1")
			assert.NoError(t, err)
			got[i] = s
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Same(t, got[0], got[i])
	}
}

func TestFindDoesNotCreate(t *testing.T) {
	c, err := NewCache(testCacheConfig())
	require.NoError(t, err)
	defer c.Stop()

	_, ok := c.Find("P1")
	assert.False(t, ok)

	s, err := c.GetOrCreate("P1")
	require.NoError(t, err)
	found, ok := c.Find("P1")
	require.True(t, ok)
	assert.Same(t, s, found)
}

func TestRemoveExpiresSession(t *testing.T) {
	c, err := NewCache(testCacheConfig())
	require.NoError(t, err)
	defer c.Stop()

	s, err := c.GetOrCreate("P1")
	require.NoError(t, err)

	c.Remove("P1")

	_, ok := c.Find("P1")
	assert.False(t, ok)
	assert.False(t, s.Alive())
}

func TestCapacityEvictionExpiresOldest(t *testing.T) {
	cfg := testCacheConfig()
	cfg.MaxSessions = 1
	c, err := NewCache(cfg)
	require.NoError(t, err)
	defer c.Stop()

	first, err := c.GetOrCreate("P1")
	require.NoError(t, err)
	_, err = c.GetOrCreate("P2")
	require.NoError(t, err)

	_, ok := c.Find("P1")
	assert.False(t, ok)
	assert.False(t, first.Alive())
}

func TestSweepExpiresIdleSessions(t *testing.T) {
	c, err := NewCache(testCacheConfig())
	require.NoError(t, err)
	defer c.Stop()

	idle, err := c.GetOrCreate("P1")
	require.NoError(t, err)
	live, err := c.GetOrCreate("P2")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	live.Touch()

	c.sweep(time.Now().Add(-10 * time.Millisecond))

	_, ok := c.Find("P1")
	assert.False(t, ok)
	assert.False(t, idle.Alive())

	_, ok = c.Find("P2")
	assert.True(t, ok)
	assert.True(t, live.Alive())
}

func TestTouchReindexesAgainstSweep(t *testing.T) {
	c, err := NewCache(testCacheConfig())
	require.NoError(t, err)
	defer c.Stop()

	s, err := c.GetOrCreate("P1")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	cutoff := time.Now()
	s.Touch()

	c.sweep(cutoff)

	_, ok := c.Find("P1")
	assert.True(t, ok)
	assert.True(t, s.Alive())
}

func TestRemoveWakesBlockedPoll(t *testing.T) {
	cfg := testCacheConfig()
	cfg.PollWindow = 5 * time.Second
	c, err := NewCache(cfg)
	require.NoError(t, err)
	defer c.Stop()

	s, err := c.GetOrCreate("P1")
	require.NoError(t, err)

	popped := make(chan error, 1)
	go func() {
		_, _, err := s.NextCommand(context.Background())
		popped <- err
	}()
	time.Sleep(20 * time.Millisecond)

	c.Remove("P1")

	select {
	case err := <-popped:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("remove did not wake the blocked poll")
	}
}

func TestStopExpiresEverySession(t *testing.T) {
	c, err := NewCache(testCacheConfig())
	require.NoError(t, err)

	a, err := c.GetOrCreate("P1")
	require.NoError(t, err)
	b, err := c.GetOrCreate("P2")
	require.NoError(t, err)

	c.Stop()

	assert.False(t, a.Alive())
	assert.False(t, b.Alive())
}
