package cache

// Cache is the interface both implementations satisfy. Keys are any
// comparable type; the document cache exchange uses uint64 request
// keys.
type Cache[K comparable, V any] interface {
	// Get retrieves a value by key. Returns the value and true if
	// found, zero value and false otherwise.
	Get(key K) (V, bool)

	// Set stores a value with the given key. Returns true if a new
	// entry was created, false if an existing one was updated.
	Set(key K, value V) bool

	// Delete removes an entry by key. Returns true if the key existed.
	Delete(key K) bool

	// Clear removes all entries from the cache.
	Clear()

	// Size returns the current number of entries.
	Size() int

	// Keys returns all keys currently in the cache.
	Keys() []K

	// Stats returns the cache statistics.
	Stats() *Statistics

	// Close shuts down the cache and releases any resources (e.g.
	// background goroutines).
	Close()
}

// EvictCallback is called when an entry is evicted or deleted. It
// receives the key and value of the removed entry.
type EvictCallback[K comparable, V any] func(key K, value V)

// Option configures cache behavior using the functional options
// pattern.
type Option[K comparable, V any] func(*cacheOptions[K, V])

type cacheOptions[K comparable, V any] struct {
	evictCallback EvictCallback[K, V]
}

// WithEvictionCallback sets a callback invoked for every evicted or
// deleted entry.
func WithEvictionCallback[K comparable, V any](callback EvictCallback[K, V]) Option[K, V] {
	return func(opts *cacheOptions[K, V]) {
		opts.evictCallback = callback
	}
}

func applyOptions[K comparable, V any](options ...Option[K, V]) *cacheOptions[K, V] {
	opts := &cacheOptions[K, V]{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
