package cache

import (
	"sync/atomic"
	"time"
)

// Statistics tracks cache performance counters. All counters are
// atomic; statistics are always collected.
type Statistics struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64

	startTime time.Time
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

// Hit records a cache hit.
func (s *Statistics) Hit() { s.hits.Add(1) }

// Miss records a cache miss.
func (s *Statistics) Miss() { s.misses.Add(1) }

// Set records a set operation.
func (s *Statistics) Set() { s.sets.Add(1) }

// Delete records a delete operation.
func (s *Statistics) Delete() { s.deletes.Add(1) }

// Eviction records an eviction.
func (s *Statistics) Eviction() { s.evictions.Add(1) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Deletes   int64
	Evictions int64
	Uptime    time.Duration
}

// Snapshot returns the current counter values.
func (s *Statistics) Snapshot() Snapshot {
	return Snapshot{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Sets:      s.sets.Load(),
		Deletes:   s.deletes.Load(),
		Evictions: s.evictions.Load(),
		Uptime:    time.Since(s.startTime),
	}
}

// HitRate returns the fraction of lookups served from cache.
func (s *Statistics) HitRate() float64 {
	hits := s.hits.Load()
	total := hits + s.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
