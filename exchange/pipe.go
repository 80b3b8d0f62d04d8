package exchange

import (
	"github.com/Bipboy/urql/gql"
	"github.com/Bipboy/urql/stream"
)

// EmitFn pushes a result downstream toward the consumer.
type EmitFn func(result gql.OperationResult)

// ForwardFn pushes an operation into the next stage.
type ForwardFn func(op gql.Operation)

// Handler describes one exchange's behavior in terms of the two
// directions it can act on.
type Handler struct {
	// OnOperation is invoked for every incoming operation. It may emit
	// results directly, forward the operation (possibly modified), do
	// both, or neither — but dropping a non-teardown operation without
	// emitting anything violates the exchange contract.
	OnOperation func(op gql.Operation, emit EmitFn, forward ForwardFn)

	// OnResult is invoked for every result coming back from the
	// forwarded stage before it is emitted. A nil OnResult passes
	// results through unchanged. Swallowing a result (not calling
	// emit) is allowed only when the exchange re-issues the operation,
	// as a retry exchange does.
	OnResult func(result gql.OperationResult, emit EmitFn)

	// OnEnd is invoked once when the pipeline is torn down, for
	// releasing exchange-private resources.
	OnEnd func()
}

// Pipe builds an IO from a Handler, wiring the single upstream
// subscription, the inner forward stream and the result merge that
// every forwarding exchange needs. The forward results subscription is
// established before any operation is routed, so synchronous emissions
// from downstream stages are never lost.
func (in Input) Pipe(h Handler) IO {
	return func(ops stream.Source[gql.Operation]) stream.Source[gql.OperationResult] {
		return stream.Make(func(obs stream.Observer[gql.OperationResult]) func() {
			forwardOps := stream.NewSubject[gql.Operation]()

			emit := EmitFn(obs.Next)

			resultSub := in.Forward(forwardOps.Source())(stream.Observer[gql.OperationResult]{
				Next: func(result gql.OperationResult) {
					if h.OnResult != nil {
						h.OnResult(result, emit)
						return
					}
					emit(result)
				},
				Complete: obs.Complete,
			})

			opSub := ops(stream.Observer[gql.Operation]{
				Next: func(op gql.Operation) {
					if h.OnOperation != nil {
						h.OnOperation(op, emit, forwardOps.Next)
						return
					}
					forwardOps.Next(op)
				},
				Complete: forwardOps.Complete,
			})

			return func() {
				opSub.Unsubscribe()
				resultSub.Unsubscribe()
				forwardOps.Complete()
				if h.OnEnd != nil {
					h.OnEnd()
				}
			}
		})
	}
}
