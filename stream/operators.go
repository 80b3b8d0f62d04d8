package stream

import "sync"

// Filter passes through only the values matching pred.
func Filter[T any](src Source[T], pred func(T) bool) Source[T] {
	return func(obs Observer[T]) *Subscription {
		return src(Observer[T]{
			Next: func(v T) {
				if pred(v) {
					if obs.Next != nil {
						obs.Next(v)
					}
				}
			},
			Complete: obs.Complete,
		})
	}
}

// Map transforms each value with fn.
func Map[T, U any](src Source[T], fn func(T) U) Source[U] {
	return func(obs Observer[U]) *Subscription {
		return src(Observer[T]{
			Next: func(v T) {
				if obs.Next != nil {
					obs.Next(fn(v))
				}
			},
			Complete: obs.Complete,
		})
	}
}

// Tap invokes fn for each value without altering the stream.
func Tap[T any](src Source[T], fn func(T)) Source[T] {
	return func(obs Observer[T]) *Subscription {
		return src(Observer[T]{
			Next: func(v T) {
				fn(v)
				if obs.Next != nil {
					obs.Next(v)
				}
			},
			Complete: obs.Complete,
		})
	}
}

// Merge interleaves the values of all sources. The merged stream
// completes once every source has completed; unsubscribing tears down
// every source subscription.
func Merge[T any](sources ...Source[T]) Source[T] {
	return func(obs Observer[T]) *Subscription {
		var (
			mu        sync.Mutex
			remaining = len(sources)
			done      bool
		)

		if remaining == 0 {
			if obs.Complete != nil {
				obs.Complete()
			}
			return NewSubscription(nil)
		}

		complete := func() {
			mu.Lock()
			remaining--
			fire := remaining == 0 && !done
			if fire {
				done = true
			}
			mu.Unlock()
			if fire && obs.Complete != nil {
				obs.Complete()
			}
		}

		subs := make([]*Subscription, 0, len(sources))
		for _, src := range sources {
			subs = append(subs, src(Observer[T]{
				Next:     obs.Next,
				Complete: complete,
			}))
		}

		return NewSubscription(func() {
			for _, sub := range subs {
				sub.Unsubscribe()
			}
		})
	}
}

// OnEnd invokes fn exactly once when the stream completes or the
// subscription is torn down, whichever happens first.
func OnEnd[T any](src Source[T], fn func()) Source[T] {
	return func(obs Observer[T]) *Subscription {
		var once sync.Once
		end := func() { once.Do(fn) }

		sub := src(Observer[T]{
			Next: obs.Next,
			Complete: func() {
				end()
				if obs.Complete != nil {
					obs.Complete()
				}
			},
		})
		return NewSubscription(func() {
			sub.Unsubscribe()
			end()
		})
	}
}
