// Package suggest serves per-day activity suggestions from a cache in front
// of the generation provider, with an offline fallback.
package suggest

import (
	"context"
	"sync"
	"time"

	"tripplanner/internal/model"
)

// Cache stores suggestion sets. A zero or negative ttl never expires.
type Cache interface {
	Get(ctx context.Context, key string) (model.DaySuggestions, bool, error)
	Set(ctx context.Context, key string, v model.DaySuggestions, ttl time.Duration) error
	Evict(ctx context.Context, key string) error
}

type memEntry struct {
	v       model.DaySuggestions
	expires time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memEntry
	now   func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: map[string]memEntry{}, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) (model.DaySuggestions, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return model.DaySuggestions{}, false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.items, key)
		return model.DaySuggestions{}, false, nil
	}
	return e.v, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, v model.DaySuggestions, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memEntry{v: v}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.items[key] = e
	return nil
}

func (c *MemoryCache) Evict(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
