package cache

import "sync"

// simpleCache stores items indefinitely with no eviction policy.
type simpleCache[K comparable, V any] struct {
	mu      sync.RWMutex
	items   map[K]V
	stats   *Statistics
	evictFn EvictCallback[K, V]
}

// NewSimple creates a cache with no eviction policy.
func NewSimple[K comparable, V any](options ...Option[K, V]) Cache[K, V] {
	opts := applyOptions(options...)
	return &simpleCache[K, V]{
		items:   make(map[K]V),
		stats:   NewStatistics(),
		evictFn: opts.evictCallback,
	}
}

func (c *simpleCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	value, exists := c.items[key]
	c.mu.RUnlock()

	if !exists {
		c.stats.Miss()
		var zero V
		return zero, false
	}
	c.stats.Hit()
	return value, true
}

func (c *simpleCache[K, V]) Set(key K, value V) bool {
	c.mu.Lock()
	_, existed := c.items[key]
	c.items[key] = value
	c.mu.Unlock()

	c.stats.Set()
	return !existed
}

func (c *simpleCache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	value, existed := c.items[key]
	if existed {
		delete(c.items, key)
	}
	c.mu.Unlock()

	if existed {
		c.stats.Delete()
		if c.evictFn != nil {
			c.evictFn(key, value)
		}
	}
	return existed
}

func (c *simpleCache[K, V]) Clear() {
	c.mu.Lock()
	old := c.items
	c.items = make(map[K]V)
	c.mu.Unlock()

	if c.evictFn != nil {
		for k, v := range old {
			c.evictFn(k, v)
		}
	}
}

func (c *simpleCache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *simpleCache[K, V]) Keys() []K {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]K, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	return keys
}

func (c *simpleCache[K, V]) Stats() *Statistics { return c.stats }

func (c *simpleCache[K, V]) Close() {}
