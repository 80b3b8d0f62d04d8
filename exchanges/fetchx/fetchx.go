// Package fetchx implements the HTTP transport exchange. Queries and
// mutations become GraphQL-over-HTTP requests; a response produces
// exactly one result. In-flight requests are cancelled when the key's
// teardown arrives, in which case no result is emitted at all.
package fetchx

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/Bipboy/urql/debug"
	"github.com/Bipboy/urql/exchange"
	"github.com/Bipboy/urql/gql"
)

// RequestPayload is the debug payload for fetchRequest events.
type RequestPayload struct {
	URL    string `json:"url"`
	Method string `json:"method"`
}

// ResponsePayload is the debug payload for fetchSuccess and fetchError
// events.
type ResponsePayload struct {
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

func init() {
	_ = debug.RegisterPayload(&debug.PayloadRegistration{
		Type:        debug.EventFetchRequest,
		Factory:     func() any { return &RequestPayload{} },
		Description: "an HTTP request was issued for an operation",
	})
	_ = debug.RegisterPayload(&debug.PayloadRegistration{
		Type:        debug.EventFetchSuccess,
		Factory:     func() any { return &ResponsePayload{} },
		Description: "an HTTP response was decoded into a result",
	})
	_ = debug.RegisterPayload(&debug.PayloadRegistration{
		Type:        debug.EventFetchError,
		Factory:     func() any { return &ResponsePayload{} },
		Description: "an HTTP request failed at the network layer",
	})
}

// Option configures the fetch exchange.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient sets the default HTTP client. Operations may still
// override it per dispatch; nil falls back to http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// New creates the HTTP fetch exchange. It handles queries and
// mutations and forwards everything else, so it composes ahead of a
// subscription transport or the fallback terminal.
func New(opts ...Option) exchange.Named {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.httpClient == nil {
		o.httpClient = http.DefaultClient
	}

	return exchange.Named{Name: "fetch", Factory: func(in exchange.Input) exchange.IO {
		if in.Logger == nil {
			in.Logger = slog.Default()
		}
		x := &fetchExchange{
			in:         in,
			httpClient: o.httpClient,
			inflight:   make(map[uint64]context.CancelFunc),
		}

		return in.Pipe(exchange.Handler{
			OnOperation: x.onOperation,
			OnEnd:       x.cancelAll,
		})
	}}
}

type fetchExchange struct {
	in         exchange.Input
	httpClient *http.Client

	mu       sync.Mutex
	inflight map[uint64]context.CancelFunc
}

func (x *fetchExchange) onOperation(op gql.Operation, emit exchange.EmitFn, forward exchange.ForwardFn) {
	switch op.Kind {
	case gql.OperationTeardown:
		x.cancel(op.Key)
		forward(op)

	case gql.OperationQuery, gql.OperationMutation:
		x.fetch(op, emit)

	default:
		forward(op)
	}
}

func (x *fetchExchange) fetch(op gql.Operation, emit exchange.EmitFn) {
	ctx, cancel := context.WithCancel(context.Background())

	x.mu.Lock()
	// A re-dispatch for a key replaces its in-flight request.
	if prev, ok := x.inflight[op.Key]; ok {
		prev()
	}
	x.inflight[op.Key] = cancel
	x.mu.Unlock()

	x.in.DispatchDebug(debug.Event{
		Type:      debug.EventFetchRequest,
		Message:   "issuing HTTP request",
		Operation: op,
		Data:      &RequestPayload{URL: op.Context.URL, Method: methodFor(op)},
	})

	go func() {
		defer cancel()

		result, err := execute(ctx, x.httpClient, op)

		x.mu.Lock()
		delete(x.inflight, op.Key)
		x.mu.Unlock()

		if ctx.Err() != nil {
			// Torn down while in flight; the consumer is gone.
			return
		}

		if err != nil {
			x.in.Logger.Error("fetch failed",
				"operation", op.OperationName(), "error", err)
			x.in.DispatchDebug(debug.Event{
				Type:      debug.EventFetchError,
				Message:   "HTTP request failed",
				Operation: op,
				Data:      &ResponsePayload{URL: op.Context.URL, Error: err.Error()},
			})
			emit(gql.ErrorResult(op, gql.NetworkErr(err)))
			return
		}

		x.in.DispatchDebug(debug.Event{
			Type:      debug.EventFetchSuccess,
			Message:   "HTTP response received",
			Operation: op,
			Data:      &ResponsePayload{URL: op.Context.URL},
		})
		emit(result)
	}()
}

func (x *fetchExchange) cancel(key uint64) {
	x.mu.Lock()
	if cancel, ok := x.inflight[key]; ok {
		cancel()
		delete(x.inflight, key)
	}
	x.mu.Unlock()
}

func (x *fetchExchange) cancelAll() {
	x.mu.Lock()
	for key, cancel := range x.inflight {
		cancel()
		delete(x.inflight, key)
	}
	x.mu.Unlock()
}

func methodFor(op gql.Operation) string {
	if op.Kind == gql.OperationQuery && op.Context.PreferGetMethod {
		return http.MethodGet
	}
	return http.MethodPost
}
