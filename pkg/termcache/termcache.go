// Package termcache holds the process-lifetime mapping from lookup token to
// resolved entity. Entries are swept by idle time, not creation time, so a
// popular token stays hot indefinitely.
package termcache

import (
	"sync"
	"time"

	"github.com/sw33tLie/cardex/internal/utils"
	"github.com/sw33tLie/cardex/pkg/card"
)

const (
	DefaultTTL           = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

type entry struct {
	data       card.Entity
	lastAccess time.Time
}

// Cache is a concurrency-safe TTL cache. The zero value is not usable;
// call New.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	stop    chan struct{}
	once    sync.Once
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries: map[string]*entry{},
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
}

// Get returns the cached entity for a token, refreshing its last-access
// time on hit.
func (c *Cache) Get(token string) (card.Entity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[token]
	if !ok {
		return nil, false
	}
	e.lastAccess = time.Now()
	return e.data, true
}

// Put stores a resolved entity under a token. Ruling entities are not
// cached here: the remote manifest already acts as their cache and double
// caching would hide invalidations.
func (c *Cache) Put(token string, data card.Entity) {
	if data == nil || data.Kind() == "ruling" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[token] = &entry{data: data, lastAccess: time.Now()}
}

// Consolidate sanity-checks a token against the cache. If the token is
// cached but points at a different entity, the collision is logged loudly
// and the cached value wins. Returns the authoritative entity.
func (c *Cache) Consolidate(token string, data card.Entity) card.Entity {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[token]
	if !ok {
		return data
	}
	e.lastAccess = time.Now()
	if data != nil && (e.data.Kind() != data.Kind() || e.data.Key() != data.Key()) {
		utils.Log.Errorf("term cache collision for %q: cached %s/%s vs incoming %s/%s",
			token, e.data.Kind(), e.data.Key(), data.Kind(), data.Key())
	}
	return e.data
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Start launches the background sweep goroutine. Safe to call once; there
// is no teardown beyond Stop, and the cache is process-lifetime anyway.
func (c *Cache) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Sweep(time.Now())
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop halts the sweep goroutine.
func (c *Cache) Stop() {
	c.once.Do(func() { close(c.stop) })
}

// Sweep evicts entries whose last access is older than the TTL, measured
// against now. Exposed for tests and the prune command.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for token, e := range c.entries {
		if now.Sub(e.lastAccess) > c.ttl {
			delete(c.entries, token)
			evicted++
		}
	}
	if evicted > 0 {
		utils.Log.Debugf("term cache sweep evicted %d entries", evicted)
	}
	return evicted
}
