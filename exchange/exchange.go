package exchange

import (
	"log/slog"

	"github.com/Bipboy/urql/debug"
	"github.com/Bipboy/urql/gql"
	"github.com/Bipboy/urql/stream"
)

// IO is the functional form of a pipeline stage: a pure function value
// from an operation stream to a result stream. An IO value is stateless
// at the type level, though an exchange may close over private mutable
// state whose lifetime equals the composed pipeline's.
type IO func(ops stream.Source[gql.Operation]) stream.Source[gql.OperationResult]

// Reexecuter is the slice of the client handle exchanges may use to
// re-issue an operation through the whole chain, e.g. after a cache
// invalidation. Re-dispatch looks like a fresh operation to every
// stage.
type Reexecuter interface {
	// ReexecuteOperation pushes op through the pipeline again if any
	// consumer is still interested in its key.
	ReexecuteOperation(op gql.Operation)
}

// Input is handed to each exchange factory exactly once, when the
// pipeline is composed.
type Input struct {
	// Client is the owning dispatcher handle.
	Client Reexecuter
	// Forward is the next stage's IO; for the last exchange it is the
	// terminal transport.
	Forward IO
	// DispatchDebug publishes diagnostic events tagged with this
	// exchange's name.
	DispatchDebug debug.DispatchFn
	// Logger is the client logger scoped to this exchange.
	Logger *slog.Logger
}

// Factory constructs an exchange's IO from its input. It runs exactly
// once per client; rebuilding would orphan exchange-private state.
type Factory func(Input) IO

// Named pairs a factory with the source tag used for its debug events
// and log records.
type Named struct {
	Name    string
	Factory Factory
}
