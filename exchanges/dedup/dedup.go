// Package dedup implements in-flight operation deduplication. While a
// query or subscription for a key is in flight, later dispatches of the
// same key are dropped; the dispatcher's multicast still delivers the
// eventual result to every interested consumer. Mutations are never
// deduplicated.
package dedup

import (
	"sync"

	"github.com/Bipboy/urql/debug"
	"github.com/Bipboy/urql/exchange"
	"github.com/Bipboy/urql/gql"
)

// SkippedPayload is the debug payload for dedupSkipped events.
type SkippedPayload struct {
	Key uint64 `json:"key"`
}

func init() {
	// Best effort; duplicate registration only happens in tests that
	// reload the package.
	_ = debug.RegisterPayload(&debug.PayloadRegistration{
		Type:        debug.EventDedupSkipped,
		Factory:     func() any { return &SkippedPayload{} },
		Description: "a duplicate in-flight dispatch was dropped",
	})
}

// New creates the dedup exchange.
func New() exchange.Named {
	return exchange.Named{Name: "dedup", Factory: func(in exchange.Input) exchange.IO {
		var mu sync.Mutex
		inflight := make(map[uint64]struct{})

		return in.Pipe(exchange.Handler{
			OnOperation: func(op gql.Operation, _ exchange.EmitFn, forward exchange.ForwardFn) {
				switch op.Kind {
				case gql.OperationTeardown:
					mu.Lock()
					delete(inflight, op.Key)
					mu.Unlock()
					forward(op)

				case gql.OperationQuery, gql.OperationSubscription:
					mu.Lock()
					_, duplicate := inflight[op.Key]
					if !duplicate {
						inflight[op.Key] = struct{}{}
					}
					mu.Unlock()

					if duplicate {
						in.DispatchDebug(debug.Event{
							Type:      debug.EventDedupSkipped,
							Message:   "dispatch skipped: operation already in flight",
							Operation: op,
							Data:      &SkippedPayload{Key: op.Key},
						})
						return
					}
					forward(op)

				default:
					forward(op)
				}
			},
			OnResult: func(result gql.OperationResult, emit exchange.EmitFn) {
				mu.Lock()
				delete(inflight, result.Operation.Key)
				mu.Unlock()
				emit(result)
			},
		})
	}}
}
