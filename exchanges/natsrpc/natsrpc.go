// Package natsrpc implements a GraphQL transport over NATS
// request/reply. Queries and mutations are published to a subject and
// answered by a single reply message; it is a drop-in terminal for
// deployments where the GraphQL server sits behind a broker instead of
// an HTTP endpoint. Subscriptions are forwarded.
package natsrpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/Bipboy/urql/debug"
	"github.com/Bipboy/urql/errors"
	"github.com/Bipboy/urql/exchange"
	"github.com/Bipboy/urql/gql"
)

// Requester is the slice of *nats.Conn the transport needs. Narrowing
// to an interface keeps the broker fakeable in tests.
type Requester interface {
	RequestWithContext(ctx context.Context, subject string, data []byte) (*nats.Msg, error)
}

// requestBody is the GraphQL request shape published to the subject.
type requestBody struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// responseBody is the GraphQL response shape expected in the reply.
type responseBody struct {
	Data       json.RawMessage `json:"data"`
	Errors     gqlerror.List   `json:"errors"`
	Extensions map[string]any  `json:"extensions"`
}

// Option configures the NATS transport.
type Option func(*options)

type options struct {
	timeout time.Duration
}

// WithTimeout bounds each request/reply round trip. Defaults to 10
// seconds.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) { o.timeout = timeout }
}

// New creates the NATS request/reply transport publishing to subject.
func New(nc Requester, subject string, opts ...Option) exchange.Named {
	o := &options{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(o)
	}

	return exchange.Named{Name: "natsrpc", Factory: func(in exchange.Input) exchange.IO {
		if in.Logger == nil {
			in.Logger = slog.Default()
		}
		x := &natsExchange{
			in:       in,
			nc:       nc,
			subject:  subject,
			timeout:  o.timeout,
			inflight: make(map[uint64]context.CancelFunc),
		}

		return in.Pipe(exchange.Handler{
			OnOperation: x.onOperation,
			OnEnd:       x.cancelAll,
		})
	}}
}

type natsExchange struct {
	in      exchange.Input
	nc      Requester
	subject string
	timeout time.Duration

	mu       sync.Mutex
	inflight map[uint64]context.CancelFunc
}

func (x *natsExchange) onOperation(op gql.Operation, emit exchange.EmitFn, forward exchange.ForwardFn) {
	switch op.Kind {
	case gql.OperationTeardown:
		x.mu.Lock()
		if cancel, ok := x.inflight[op.Key]; ok {
			cancel()
			delete(x.inflight, op.Key)
		}
		x.mu.Unlock()
		forward(op)

	case gql.OperationQuery, gql.OperationMutation:
		x.request(op, emit)

	default:
		forward(op)
	}
}

func (x *natsExchange) request(op gql.Operation, emit exchange.EmitFn) {
	ctx, cancel := context.WithTimeout(context.Background(), x.timeout)

	x.mu.Lock()
	if prev, ok := x.inflight[op.Key]; ok {
		prev()
	}
	x.inflight[op.Key] = cancel
	x.mu.Unlock()

	x.in.DispatchDebug(debug.Event{
		Type:      debug.EventFetchRequest,
		Message:   "publishing request",
		Operation: op,
		Data:      map[string]any{"subject": x.subject},
	})

	go func() {
		defer cancel()

		result, err := x.roundTrip(ctx, op)

		torn := ctx.Err() == context.Canceled

		x.mu.Lock()
		delete(x.inflight, op.Key)
		x.mu.Unlock()

		if torn {
			return
		}

		if err != nil {
			x.in.Logger.Error("request failed",
				"subject", x.subject,
				"operation", op.OperationName(), "error", err)
			x.in.DispatchDebug(debug.Event{
				Type:      debug.EventFetchError,
				Message:   "request failed",
				Operation: op,
				Data:      map[string]any{"subject": x.subject, "error": err.Error()},
			})
			emit(gql.ErrorResult(op, gql.NetworkErr(err)))
			return
		}

		x.in.DispatchDebug(debug.Event{
			Type:      debug.EventFetchSuccess,
			Message:   "reply received",
			Operation: op,
			Data:      map[string]any{"subject": x.subject},
		})
		emit(result)
	}()
}

func (x *natsExchange) roundTrip(ctx context.Context, op gql.Operation) (gql.OperationResult, error) {
	payload, err := json.Marshal(requestBody{
		Query:         op.Query,
		OperationName: op.OperationName(),
		Variables:     op.Variables,
	})
	if err != nil {
		return gql.OperationResult{}, errors.WrapInvalid(
			err, "natsrpc", "roundTrip", "request encode")
	}

	msg, err := x.nc.RequestWithContext(ctx, x.subject, payload)
	if err != nil {
		return gql.OperationResult{}, errors.WrapTransient(
			err, "natsrpc", "roundTrip", "request/reply")
	}

	var decoded responseBody
	if err := json.Unmarshal(msg.Data, &decoded); err != nil {
		return gql.OperationResult{}, errors.WrapInvalid(
			err, "natsrpc", "roundTrip", "reply decode")
	}

	result := gql.OperationResult{
		Operation:  op,
		Data:       decoded.Data,
		Extensions: decoded.Extensions,
	}
	if len(decoded.Errors) > 0 {
		result.Error = gql.ResponseErrs(decoded.Errors)
	}
	return result, nil
}

func (x *natsExchange) cancelAll() {
	x.mu.Lock()
	for key, cancel := range x.inflight {
		cancel()
		delete(x.inflight, key)
	}
	x.mu.Unlock()
}
