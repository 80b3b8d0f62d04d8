package exchange

import (
	"log/slog"

	"github.com/Bipboy/urql/debug"
	"github.com/Bipboy/urql/errors"
	"github.com/Bipboy/urql/gql"
	"github.com/Bipboy/urql/stream"
)

// Fallback is the pipeline's last resort terminal. Any non-teardown
// operation reaching it was left unresolved by every configured
// exchange — a configuration error. Rather than hang the consumer, the
// fallback emits a result carrying the configuration error and logs
// it. Teardown operations end here silently; there is nothing further
// to release.
func Fallback(logger *slog.Logger, dispatchDebug debug.DispatchFn) IO {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ops stream.Source[gql.Operation]) stream.Source[gql.OperationResult] {
		return stream.Make(func(obs stream.Observer[gql.OperationResult]) func() {
			sub := ops(stream.Observer[gql.Operation]{
				Next: func(op gql.Operation) {
					if op.IsTeardown() {
						return
					}

					err := errors.WrapInvalid(
						errors.ErrNoTransport, "exchange", "Fallback",
						"dispatch of unresolved "+string(op.Kind)+" operation")
					logger.Error("operation reached fallback terminal",
						"kind", op.Kind, "key", op.Key)
					if dispatchDebug != nil {
						dispatchDebug(debug.Event{
							Type:      debug.EventNoTransport,
							Message:   "no exchange resolved the operation",
							Operation: op,
						})
					}
					obs.Next(gql.ErrorResult(op, gql.NetworkErr(err)))
				},
				Complete: obs.Complete,
			})
			return sub.Unsubscribe
		})
	}
}
