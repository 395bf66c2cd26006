// Package cache implements the two independent per-handle caches spec.md
// §4.10 describes: a bean cache keyed by primary key and a query cache
// keyed by a SQL-fingerprint. Both share the strict invalidation rules in
// that section. golang.org/x/sync/singleflight collapses concurrent
// misses for the same key into a single fill, the way steveyegge-beads
// uses singleflight to collapse concurrent cache misses in its own store.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Config mirrors the "maximum_size" / "expire_after_write" knobs spec.md
// §4.10 names for both caches.
type Config struct {
	MaxSize         int
	ExpireAfterWrite time.Duration
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is a bounded, TTL-expiring, singleflight-protected key/value cache.
// The same type backs both the bean cache (key = primary-key value) and the
// query cache (key = a fingerprint of SQL template + params + projection).
type Cache struct {
	cfg   Config
	mu    sync.Mutex
	data  map[string]entry
	order []string // FIFO eviction order once MaxSize is exceeded
	group singleflight.Group
}

// New constructs a cache with the given configuration. A zero Config
// disables both size and TTL bounds.
func New(cfg Config) *Cache {
	return &Cache{cfg: cfg, data: make(map[string]entry)}
}

// Get returns the cached value for key, if present and unexpired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(c.data, key)
		return nil, false
	}
	return e.value, true
}

// GetOrFill returns the cached value for key, or calls fill exactly once
// across concurrent callers sharing the same key, caching its result.
func (c *Cache) GetOrFill(key string, fill func() (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := fill()
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})
	return v, err
}

// Set stores value under key, evicting the oldest entry if MaxSize is set
// and would otherwise be exceeded.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists {
		c.order = append(c.order, key)
	}

	var expiresAt time.Time
	if c.cfg.ExpireAfterWrite > 0 {
		expiresAt = time.Now().Add(c.cfg.ExpireAfterWrite)
	}
	c.data[key] = entry{value: value, expiresAt: expiresAt}

	if c.cfg.MaxSize > 0 {
		for len(c.order) > c.cfg.MaxSize {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.data, oldest)
		}
	}
}

// Evict removes a single key (spec.md §4.10: single-row update/delete).
func (c *Cache) Evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.data[key]; !exists {
		return
	}
	delete(c.data, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Clear empties the cache (spec.md §4.10: insert/batch/bulk operations
// clear the query cache wholesale, and batch bean operations too).
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]entry)
	c.order = nil
}

// Fingerprint derives a stable query-cache key from a SQL template, its
// bound parameters, and a projection shape tag.
func Fingerprint(sqlTemplate string, args []any, projection string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%v", sqlTemplate, projection, args)
	return hex.EncodeToString(h.Sum(nil))
}
