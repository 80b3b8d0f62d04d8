// Package retryx implements transparent retry of transiently failed
// operations. A result carrying a transient network error is swallowed
// and its operation re-forwarded after exponential backoff; consumers
// only see the final outcome. Server-side GraphQL errors are never
// retried.
package retryx

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Bipboy/urql/debug"
	"github.com/Bipboy/urql/errors"
	"github.com/Bipboy/urql/exchange"
	"github.com/Bipboy/urql/gql"
	"github.com/Bipboy/urql/pkg/retry"
)

// MetaRetryCount is the operation Meta key carrying the number of
// retries already performed for the dispatch.
const MetaRetryCount = "retryCount"

// AttemptPayload is the debug payload for retryAttempt events.
type AttemptPayload struct {
	Attempt int           `json:"attempt"`
	Delay   time.Duration `json:"delay"`
	Error   string        `json:"error"`
}

func init() {
	_ = debug.RegisterPayload(&debug.PayloadRegistration{
		Type:        debug.EventRetryAttempt,
		Factory:     func() any { return &AttemptPayload{} },
		Description: "a transiently failed operation was re-dispatched",
	})
}

// Option configures the retry exchange.
type Option func(*options)

type options struct {
	config retry.Config
}

// WithConfig overrides the backoff configuration.
func WithConfig(cfg retry.Config) Option {
	return func(o *options) { o.config = cfg }
}

// New creates the retry exchange.
func New(opts ...Option) exchange.Named {
	o := &options{config: retry.DefaultConfig()}
	for _, opt := range opts {
		opt(o)
	}

	return exchange.Named{Name: "retry", Factory: func(in exchange.Input) exchange.IO {
		if in.Logger == nil {
			in.Logger = slog.Default()
		}
		x := &retryExchange{
			in:       in,
			config:   o.config,
			attempts: make(map[uint64]int),
			timers:   make(map[uint64]*time.Timer),
		}

		return in.Pipe(exchange.Handler{
			OnOperation: x.onOperation,
			OnResult:    x.onResult,
			OnEnd:       x.stopAll,
		})
	}}
}

type retryExchange struct {
	in     exchange.Input
	config retry.Config

	mu       sync.Mutex
	forward  exchange.ForwardFn
	attempts map[uint64]int
	timers   map[uint64]*time.Timer
}

func (x *retryExchange) onOperation(op gql.Operation, _ exchange.EmitFn, forward exchange.ForwardFn) {
	x.mu.Lock()
	x.forward = forward
	if op.Kind == gql.OperationTeardown {
		if timer, ok := x.timers[op.Key]; ok {
			timer.Stop()
			delete(x.timers, op.Key)
		}
		delete(x.attempts, op.Key)
	} else {
		// A fresh upstream dispatch resets the key's attempt budget;
		// only timer-driven re-forwards below bypass this path.
		x.attempts[op.Key] = 1
	}
	x.mu.Unlock()

	forward(op)
}

func (x *retryExchange) onResult(result gql.OperationResult, emit exchange.EmitFn) {
	if !retryable(result) {
		x.mu.Lock()
		delete(x.attempts, result.Operation.Key)
		x.mu.Unlock()
		emit(result)
		return
	}

	key := result.Operation.Key

	x.mu.Lock()
	attempt := x.attempts[key]
	if attempt == 0 || attempt >= x.config.MaxAttempts {
		delete(x.attempts, key)
		x.mu.Unlock()
		emit(result)
		return
	}
	attempt++
	x.attempts[key] = attempt

	delay := x.config.DelayFor(attempt)
	op := result.Operation.WithContext(gql.WithMeta(MetaRetryCount, attempt-1))

	timer := time.AfterFunc(delay, func() {
		x.mu.Lock()
		delete(x.timers, key)
		forward := x.forward
		x.mu.Unlock()
		if forward != nil {
			forward(op)
		}
	})
	if prev, ok := x.timers[key]; ok {
		prev.Stop()
	}
	x.timers[key] = timer
	x.mu.Unlock()

	x.in.Logger.Warn("retrying operation",
		"operation", result.Operation.OperationName(),
		"attempt", attempt, "delay", delay)
	x.in.DispatchDebug(debug.Event{
		Type:      debug.EventRetryAttempt,
		Message:   "re-dispatching after transient failure",
		Operation: result.Operation,
		Data: &AttemptPayload{
			Attempt: attempt,
			Delay:   delay,
			Error:   result.Error.NetworkError.Error(),
		},
	})
}

func (x *retryExchange) stopAll() {
	x.mu.Lock()
	for key, timer := range x.timers {
		timer.Stop()
		delete(x.timers, key)
	}
	x.mu.Unlock()
}

// retryable reports whether a result's failure is a transient network
// error. GraphQL response errors and permanently classified failures
// are final.
func retryable(result gql.OperationResult) bool {
	if result.Error == nil || result.Error.NetworkError == nil {
		return false
	}
	netErr := result.Error.NetworkError
	if retry.IsNonRetryable(netErr) {
		return false
	}
	return errors.IsTransient(netErr)
}
