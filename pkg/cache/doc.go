// Package cache provides generic, thread-safe cache implementations
// used by the document cache exchange.
//
// Two cache types are offered:
//   - SimpleCache: no eviction policy (entries live until invalidated)
//   - TTLCache: time-to-live eviction with background cleanup
//
// Both are parameterized by key and value type, collect statistics, and
// support an optional eviction callback so the owning exchange can keep
// secondary indexes (typename → keys) consistent with evictions.
package cache
