package cache

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/sessionauth/internal/domain/user"
)

// UserCache holds user records by id. Misses and backend errors both read as "not cached".
type UserCache interface {
	Get(ctx context.Context, id string) (user.User, bool)
	Set(ctx context.Context, u user.User)
	Delete(ctx context.Context, id string)
}

// DefaultMaxEntries bounds a Memory cache created by New.
const DefaultMaxEntries = 10_000

// Memory is an in-process TTL cache holding at most max entries.
type Memory struct {
	mu  sync.RWMutex
	ttl time.Duration
	max int
	m   map[string]entry
	now func() time.Time
}

type entry struct {
	val user.User
	exp time.Time
}

func New(ttl time.Duration) *Memory {
	return NewBounded(ttl, DefaultMaxEntries)
}

func NewBounded(ttl time.Duration, max int) *Memory {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	if max <= 0 {
		max = DefaultMaxEntries
	}

	return &Memory{
		ttl: ttl,
		max: max,
		m:   make(map[string]entry),
		now: time.Now,
	}
}

func (c *Memory) Get(_ context.Context, id string) (user.User, bool) {
	now := c.now()
	c.mu.RLock()
	e, ok := c.m[id]
	c.mu.RUnlock()
	if !ok {
		return user.User{}, false
	}

	if now.After(e.exp) {
		c.mu.Lock()
		// a concurrent Set may have refreshed it
		if cur, ok := c.m[id]; ok && now.After(cur.exp) {
			delete(c.m, id)
		}
		c.mu.Unlock()
		return user.User{}, false
	}

	return e.val, true
}

func (c *Memory) Set(_ context.Context, u user.User) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.m[u.ID]; !exists && len(c.m) >= c.max {
		c.evictLocked(now)
	}
	c.m[u.ID] = entry{val: u, exp: now.Add(c.ttl)}
}

func (c *Memory) Delete(_ context.Context, id string) {
	c.mu.Lock()
	delete(c.m, id)
	c.mu.Unlock()
}

func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// evictLocked drops expired entries, or one arbitrary entry when none has expired.
func (c *Memory) evictLocked(now time.Time) {
	for id, e := range c.m {
		if now.After(e.exp) {
			delete(c.m, id)
		}
	}
	if len(c.m) < c.max {
		return
	}
	for id := range c.m {
		delete(c.m, id)
		return
	}
}
