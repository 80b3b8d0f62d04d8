package stream

import (
	"context"
	"sync"

	"github.com/Bipboy/urql/errors"
)

// First subscribes to src, waits for the first value and unsubscribes.
// It returns ctx.Err if the context ends first, and ErrStreamClosed if
// the stream completes without producing a value. Synchronous sources
// resolve without blocking.
func First[T any](ctx context.Context, src Source[T]) (T, error) {
	var (
		zero      T
		valueOnce sync.Once
		doneOnce  sync.Once
	)
	values := make(chan T, 1)
	done := make(chan struct{})

	sub := src(Observer[T]{
		Next: func(v T) {
			valueOnce.Do(func() { values <- v })
		},
		Complete: func() {
			doneOnce.Do(func() { close(done) })
		},
	})
	defer sub.Unsubscribe()

	select {
	case v := <-values:
		return v, nil
	default:
	}

	select {
	case v := <-values:
		return v, nil
	case <-done:
		// A value pushed immediately before completion wins.
		select {
		case v := <-values:
			return v, nil
		default:
		}
		return zero, errors.ErrStreamClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
