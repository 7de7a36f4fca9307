package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newCache(t *testing.T) *Cache {
	t.Helper()
	c := New(10 * time.Millisecond)
	t.Cleanup(c.Close)
	return c
}

func TestCacheSetAndGet(t *testing.T) {
	c := newCache(t)

	c.Set("answer", 42, 0)

	value, ok := c.Get("answer")
	assert.True(t, ok)
	assert.Equal(t, 42, value)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	c := newCache(t)

	c.Set("fleeting", "value", 5*time.Millisecond)

	_, ok := c.Get("fleeting")
	assert.True(t, ok)

	time.Sleep(10 * time.Millisecond)

	_, ok = c.Get("fleeting")
	assert.False(t, ok, "expired entries must read as misses")
}

func TestCacheZeroTTLNeverExpires(t *testing.T) {
	c := newCache(t)

	c.Set("durable", "value", 0)
	time.Sleep(15 * time.Millisecond)

	_, ok := c.Get("durable")
	assert.True(t, ok)
}

func TestCacheDelete(t *testing.T) {
	c := newCache(t)

	c.Set("gone", 1, 0)
	c.Delete("gone")

	_, ok := c.Get("gone")
	assert.False(t, ok)

	// Deleting an absent key is a no-op.
	c.Delete("never-there")
}

func TestCacheDeletePrefix(t *testing.T) {
	c := newCache(t)

	c.Set("search:page=1", 1, 0)
	c.Set("search:page=2", 2, 0)
	c.Set("storage_summary", 3, 0)

	c.DeletePrefix("search:")

	_, ok := c.Get("search:page=1")
	assert.False(t, ok)
	_, ok = c.Get("search:page=2")
	assert.False(t, ok)

	value, ok := c.Get("storage_summary")
	assert.True(t, ok)
	assert.Equal(t, 3, value)
}

func TestCacheOverwrite(t *testing.T) {
	c := newCache(t)

	c.Set("key", "old", 0)
	c.Set("key", "new", 0)

	value, ok := c.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "new", value)
}

func TestCacheStats(t *testing.T) {
	c := newCache(t)

	c.Set("hit", 1, 0)
	c.Get("hit")
	c.Get("miss")
	c.Get("miss")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
}

func TestCacheSweeperEvictsExpired(t *testing.T) {
	c := newCache(t)

	c.Set("expiring", 1, 2*time.Millisecond)

	assert.Eventually(t, func() bool {
		return c.Stats().Evictions >= 1
	}, time.Second, 5*time.Millisecond)
}
