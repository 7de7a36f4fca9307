package memory

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fileforge/dedupe/pkg/dedupe"
)

// defaultSweepInterval is how often the background sweeper drops expired
// entries. Expired entries are already invisible to Get; the sweeper only
// reclaims memory.
const defaultSweepInterval = time.Minute

// Stats holds cache effectiveness counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

type item struct {
	value     any
	expiresAt time.Time // zero means no expiry
}

// Cache is an in-process implementation of the dedupe.Cache interface with
// per-entry TTLs and a background sweeper. It is an injected dependency of
// the service, not shared package state.
type Cache struct {
	mu    sync.RWMutex
	items map[string]item

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a cache sweeping expired entries at the given interval
// (the default interval when zero).
func New(sweepInterval time.Duration) *Cache {
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}

	c := &Cache{
		items: make(map[string]item),
		stop:  make(chan struct{}),
	}
	go c.sweep(sweepInterval)
	return c
}

// Get returns the live value stored under key. Expired entries count as
// misses and are left for the sweeper.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	it, exists := c.items[key]
	c.mu.RUnlock()

	if !exists || (!it.expiresAt.IsZero() && time.Now().After(it.expiresAt)) {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return it.value, true
}

// Set stores value under key. A non-positive ttl stores it without expiry.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	it := item{value: value}
	if ttl > 0 {
		it.expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	c.items[key] = it
	c.mu.Unlock()
}

// Delete removes the entry stored under key, if any.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	if _, exists := c.items[key]; exists {
		delete(c.items, key)
		c.evictions.Add(1)
	}
	c.mu.Unlock()
}

// DeletePrefix removes every entry whose key starts with prefix.
func (c *Cache) DeletePrefix(prefix string) {
	c.mu.Lock()
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
			c.evictions.Add(1)
		}
	}
	c.mu.Unlock()
}

// Stats returns a snapshot of the effectiveness counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// Close stops the background sweeper.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for key, it := range c.items {
				if !it.expiresAt.IsZero() && now.After(it.expiresAt) {
					delete(c.items, key)
					c.evictions.Add(1)
				}
			}
			c.mu.Unlock()
		}
	}
}

var _ dedupe.Cache = (*Cache)(nil)
