package sessions

import (
	"log"
	"sync"
	"time"

	"github.com/google/btree"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/jsbridge/jsbridge/internal/apps"
)

// Service is the process-wide session registry.
type Service interface {
	// GetOrCreate returns the session for id, creating it atomically on
	// first contact. Concurrent first contacts for one id yield one session.
	GetOrCreate(id string) (*Session, error)
	// Find returns an existing session without creating one.
	Find(id string) (*Session, bool)
	// Remove expires the session and drops it from the registry.
	Remove(id string)
	// Stop halts the idle sweep and expires every remaining session.
	Stop()
}

type Config struct {
	MaxSessions int
	PollWindow  time.Duration
	EvalTimeout time.Duration
	IdleMax     time.Duration
	SweepEvery  time.Duration
	Factory     apps.Factory
}

// contactKey orders sessions by last inbound contact for the idle sweep.
type contactKey struct {
	at time.Time
	id string
}

func contactLess(a, b contactKey) bool {
	if !a.at.Equal(b.at) {
		return a.at.Before(b.at)
	}
	return a.id < b.id
}

var _ Service = &Cache{}

// Cache holds the live sessions in a bounded LRU store and keeps a btree
// index by last contact so the sweep finds idle sessions without scanning.
type Cache struct {
	cfg Config

	mu       sync.Mutex
	sessions *lru.Cache[string, *Session]

	treeMu sync.Mutex
	byIdle *btree.BTreeG[contactKey]

	stop     chan struct{}
	stopOnce sync.Once
}

func NewCache(cfg Config) (*Cache, error) {
	if cfg.Factory == nil {
		return nil, errors.New("session cache needs an app factory")
	}
	c := &Cache{
		cfg:    cfg,
		byIdle: btree.NewG(16, contactLess),
		stop:   make(chan struct{}),
	}
	sessions, err := lru.NewWithEvict[string, *Session](cfg.MaxSessions, c.onEvict)
	if err != nil {
		return nil, errors.Wrap(err, "creating session store")
	}
	c.sessions = sessions
	go c.sweepLoop()
	return c, nil
}

// onEvict fires for capacity evictions as well as explicit removes; either
// way the session is terminally expired so no waiter blocks on it forever.
func (c *Cache) onEvict(id string, s *Session) {
	s.Expire()
	c.treeMu.Lock()
	c.byIdle.Delete(contactKey{at: s.LastContact(), id: id})
	c.treeMu.Unlock()
}

func (c *Cache) GetOrCreate(id string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions.Get(id); ok {
		return s, nil
	}

	s := newSession(id, c.cfg.PollWindow, c.cfg.EvalTimeout)
	s.onTouch = c.reindex
	s.bind(c.cfg.Factory(s.JS()))

	c.treeMu.Lock()
	c.byIdle.ReplaceOrInsert(contactKey{at: s.LastContact(), id: id})
	c.treeMu.Unlock()

	c.sessions.Add(id, s)
	log.Printf("session %s created", id)
	return s, nil
}

func (c *Cache) Find(id string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions.Get(id)
}

func (c *Cache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions.Remove(id)
}

func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
		c.mu.Lock()
		c.sessions.Purge()
		c.mu.Unlock()
	})
}

// reindex keeps the idle index in step with Touch.
func (c *Cache) reindex(s *Session, old, now time.Time) {
	c.treeMu.Lock()
	c.byIdle.Delete(contactKey{at: old, id: s.ID()})
	c.byIdle.ReplaceOrInsert(contactKey{at: now, id: s.ID()})
	c.treeMu.Unlock()
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.cfg.SweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep(time.Now().Add(-c.cfg.IdleMax))
		}
	}
}

// sweep expires every session whose last contact predates cutoff. Idle
// entries sort first, so the ascent stops at the first live one.
func (c *Cache) sweep(cutoff time.Time) {
	var idle []string
	c.treeMu.Lock()
	c.byIdle.Ascend(func(k contactKey) bool {
		if !k.at.Before(cutoff) {
			return false
		}
		idle = append(idle, k.id)
		return true
	})
	c.treeMu.Unlock()

	for _, id := range idle {
		if s, ok := c.Find(id); ok && s.LastContact().Before(cutoff) {
			c.Remove(id)
		}
	}
}
