package cache

import (
	"sync"
	"time"
)

// ttlEntry represents an entry in the TTL cache.
type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e *ttlEntry[V]) isExpired() bool {
	return time.Now().After(e.expiresAt)
}

// ttlCache evicts items automatically once their TTL elapses. Expired
// entries are dropped lazily on access and eagerly by a background
// cleanup goroutine.
type ttlCache[K comparable, V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	items   map[K]*ttlEntry[V]
	stats   *Statistics
	evictFn EvictCallback[K, V]

	shutdown chan struct{}
	done     chan struct{}
}

// NewTTL creates a TTL cache. cleanupInterval controls how often the
// background sweep runs; values <= 0 default to the TTL itself.
func NewTTL[K comparable, V any](
	ttl, cleanupInterval time.Duration, options ...Option[K, V],
) Cache[K, V] {
	opts := applyOptions(options...)
	if cleanupInterval <= 0 {
		cleanupInterval = ttl
	}

	c := &ttlCache[K, V]{
		ttl:      ttl,
		items:    make(map[K]*ttlEntry[V]),
		stats:    NewStatistics(),
		evictFn:  opts.evictCallback,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	go c.cleanupLoop(cleanupInterval)
	return c
}

func (c *ttlCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	entry, exists := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !exists {
		c.stats.Miss()
		return zero, false
	}

	if entry.isExpired() {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// replaced the entry.
		if current, still := c.items[key]; still && current.isExpired() {
			delete(c.items, key)
			c.mu.Unlock()
			c.stats.Eviction()
			c.stats.Miss()
			if c.evictFn != nil {
				c.evictFn(key, current.value)
			}
			return zero, false
		}
		c.mu.Unlock()
		c.stats.Miss()
		return zero, false
	}

	c.stats.Hit()
	return entry.value, true
}

func (c *ttlCache[K, V]) Set(key K, value V) bool {
	entry := &ttlEntry[V]{value: value, expiresAt: time.Now().Add(c.ttl)}

	c.mu.Lock()
	_, existed := c.items[key]
	c.items[key] = entry
	c.mu.Unlock()

	c.stats.Set()
	return !existed
}

func (c *ttlCache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	entry, existed := c.items[key]
	if existed {
		delete(c.items, key)
	}
	c.mu.Unlock()

	if existed {
		c.stats.Delete()
		if c.evictFn != nil {
			c.evictFn(key, entry.value)
		}
	}
	return existed
}

func (c *ttlCache[K, V]) Clear() {
	c.mu.Lock()
	old := c.items
	c.items = make(map[K]*ttlEntry[V])
	c.mu.Unlock()

	if c.evictFn != nil {
		for k, entry := range old {
			c.evictFn(k, entry.value)
		}
	}
}

func (c *ttlCache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *ttlCache[K, V]) Keys() []K {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]K, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	return keys
}

func (c *ttlCache[K, V]) Stats() *Statistics { return c.stats }

// Close stops the background cleanup goroutine. Safe to call once.
func (c *ttlCache[K, V]) Close() {
	close(c.shutdown)
	<-c.done
}

func (c *ttlCache[K, V]) cleanupLoop(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *ttlCache[K, V]) sweep() {
	type evicted struct {
		key   K
		value V
	}
	var removed []evicted

	c.mu.Lock()
	for key, entry := range c.items {
		if entry.isExpired() {
			delete(c.items, key)
			removed = append(removed, evicted{key: key, value: entry.value})
		}
	}
	c.mu.Unlock()

	for _, e := range removed {
		c.stats.Eviction()
		if c.evictFn != nil {
			c.evictFn(e.key, e.value)
		}
	}
}
