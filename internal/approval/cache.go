package approval

import (
	"sync"
	"time"
)

type CacheKey struct {
	ActorID   string
	Direction Direction
}

func NewCacheKey(actorID string, d Direction) CacheKey {
	if actorID == "" {
		actorID = LocalActor
	}
	return CacheKey{ActorID: actorID, Direction: d}
}

type cacheEntry struct {
	verdict    Verdict
	recordedAt time.Time
}

// Cache remembers the last verdict per key for a short TTL. Stale entries
// are ignored on lookup and overwritten by the next Store.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[CacheKey]cacheEntry
}

func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		ttl:     ttl,
		now:     now,
		entries: make(map[CacheKey]cacheEntry),
	}
}

func (c *Cache) Lookup(key CacheKey) (Verdict, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()

	if !ok || c.now().Sub(e.recordedAt) > c.ttl {
		return "", false
	}
	return e.verdict, true
}

func (c *Cache) Store(key CacheKey, v Verdict) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{verdict: v, recordedAt: c.now()}
	c.mu.Unlock()
}

func (c *Cache) TTL() time.Duration {
	return c.ttl
}
