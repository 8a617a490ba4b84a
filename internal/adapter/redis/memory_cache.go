package redis

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// memoryCache is an in-memory L1 cache with TTL-based expiry. Every
// invalidate bumps the key's generation, so a reader that started before it
// can detect that its value is stale.
type memoryCache[K comparable, V any] struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	entries map[K]memoryCacheEntry[V]
	gens    map[K]uint64
	ttl     time.Duration
}

type memoryCacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

func newMemoryCache[K comparable, V any](clock clockwork.Clock, ttl time.Duration) *memoryCache[K, V] {
	return &memoryCache[K, V]{
		clock:   clock,
		entries: make(map[K]memoryCacheEntry[V]),
		gens:    make(map[K]uint64),
		ttl:     ttl,
	}
}

func (c *memoryCache[K, V]) get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || !c.clock.Now().Before(entry.expiresAt) {
		var zero V
		return zero, false
	}
	return entry.value, true
}

func (c *memoryCache[K, V]) set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryCacheEntry[V]{value: value, expiresAt: c.clock.Now().Add(c.ttl)}
}

func (c *memoryCache[K, V]) generation(key K) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[key]
}

// setIfGeneration stores value only if key was not invalidated since gen was read.
func (c *memoryCache[K, V]) setIfGeneration(key K, value V, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gens[key] != gen {
		return false
	}
	c.entries[key] = memoryCacheEntry[V]{value: value, expiresAt: c.clock.Now().Add(c.ttl)}
	return true
}

func (c *memoryCache[K, V]) invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.gens[key]++
}

func (c *memoryCache[K, V]) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *memoryCache[K, V]) evictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}
