package stream

import (
	"sync"
	"sync/atomic"
)

// Observer receives pushed values from a Source. Complete is optional;
// a nil Complete (or Next) is treated as a no-op.
type Observer[T any] struct {
	Next     func(value T)
	Complete func()
}

// Source is a push-based stream of values. Calling it subscribes the
// observer and returns a Subscription whose Unsubscribe tears down any
// upstream work. Cold sources may emit synchronously during the call;
// hot sources register interest in a live feed.
type Source[T any] func(obs Observer[T]) *Subscription

// Subscription represents an active link to a source.
type Subscription struct {
	once     sync.Once
	teardown func()
}

// NewSubscription creates a subscription running teardown exactly once.
// A nil teardown is allowed.
func NewSubscription(teardown func()) *Subscription {
	return &Subscription{teardown: teardown}
}

// Unsubscribe cancels the subscription. It is idempotent and safe to
// call from any goroutine, including from within a push.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.teardown != nil {
			s.teardown()
		}
	})
}

// gate wraps an observer so that no values are delivered after the gate
// is closed. Producers that push from their own goroutines race with
// Unsubscribe; the gate makes that race safe.
type gate[T any] struct {
	obs    Observer[T]
	closed atomic.Bool
}

func newGate[T any](obs Observer[T]) *gate[T] {
	return &gate[T]{obs: obs}
}

func (g *gate[T]) next(v T) {
	if g.closed.Load() || g.obs.Next == nil {
		return
	}
	g.obs.Next(v)
}

func (g *gate[T]) complete() {
	if g.closed.Swap(true) {
		return
	}
	if g.obs.Complete != nil {
		g.obs.Complete()
	}
}

func (g *gate[T]) close() {
	g.closed.Store(true)
}

// Make builds a cold source from a producer. The producer receives a
// gated observer and returns a teardown function (or nil) releasing any
// resources it acquired. After Unsubscribe the producer's pushes are
// silently discarded.
func Make[T any](producer func(obs Observer[T]) (teardown func())) Source[T] {
	return func(obs Observer[T]) *Subscription {
		g := newGate(obs)
		teardown := producer(Observer[T]{Next: g.next, Complete: g.complete})
		return NewSubscription(func() {
			g.close()
			if teardown != nil {
				teardown()
			}
		})
	}
}

// FromValues builds a cold source that synchronously emits the given
// values and completes.
func FromValues[T any](values ...T) Source[T] {
	return Make(func(obs Observer[T]) func() {
		for _, v := range values {
			obs.Next(v)
		}
		obs.Complete()
		return nil
	})
}

// Empty builds a source that completes immediately without emitting.
func Empty[T any]() Source[T] {
	return FromValues[T]()
}
