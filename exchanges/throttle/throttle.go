// Package throttle implements dispatch rate limiting. Operations that
// exceed the configured rate are delayed, not failed; a key torn down
// while delayed never reaches the network. At most one delayed dispatch
// is held per key: a newer over-budget dispatch supersedes the one
// still waiting, and the superseding dispatch serves the key's shared
// result stream. Teardowns are exempt so resource release is never
// queued behind traffic.
package throttle

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Bipboy/urql/errors"
	"github.com/Bipboy/urql/exchange"
	"github.com/Bipboy/urql/gql"
)

// Option configures the throttle exchange.
type Option func(*options)

type options struct {
	limiter *rate.Limiter
}

// WithLimit sets the sustained dispatch rate and burst size.
func WithLimit(limit rate.Limit, burst int) Option {
	return func(o *options) { o.limiter = rate.NewLimiter(limit, burst) }
}

// WithLimiter supplies a shared limiter, e.g. one budget across several
// clients talking to the same endpoint.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(o *options) { o.limiter = limiter }
}

// New creates the throttle exchange. The default budget is 10
// dispatches per second with a burst of 10.
func New(opts ...Option) exchange.Named {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.limiter == nil {
		o.limiter = rate.NewLimiter(rate.Limit(10), 10)
	}

	return exchange.Named{Name: "throttle", Factory: func(in exchange.Input) exchange.IO {
		if in.Logger == nil {
			in.Logger = slog.Default()
		}
		x := &throttleExchange{
			in:      in,
			limiter: o.limiter,
			delayed: make(map[uint64]*time.Timer),
		}

		return in.Pipe(exchange.Handler{
			OnOperation: x.onOperation,
			OnEnd:       x.stopAll,
		})
	}}
}

type throttleExchange struct {
	in      exchange.Input
	limiter *rate.Limiter

	mu      sync.Mutex
	delayed map[uint64]*time.Timer
}

func (x *throttleExchange) onOperation(op gql.Operation, emit exchange.EmitFn, forward exchange.ForwardFn) {
	if op.Kind == gql.OperationTeardown {
		x.mu.Lock()
		if timer, ok := x.delayed[op.Key]; ok {
			timer.Stop()
			delete(x.delayed, op.Key)
		}
		x.mu.Unlock()
		forward(op)
		return
	}

	reservation := x.limiter.Reserve()
	if !reservation.OK() {
		emit(gql.ErrorResult(op, gql.NetworkErr(errors.WrapTransient(
			errors.ErrRateLimited, "throttle", "onOperation",
			"dispatch budget exhausted"))))
		return
	}

	delay := reservation.Delay()
	if delay <= 0 {
		forward(op)
		return
	}

	x.in.Logger.Debug("delaying dispatch",
		"operation", op.OperationName(), "delay", delay)

	x.mu.Lock()
	if prev, ok := x.delayed[op.Key]; ok {
		prev.Stop()
	}
	x.delayed[op.Key] = time.AfterFunc(delay, func() {
		x.mu.Lock()
		delete(x.delayed, op.Key)
		x.mu.Unlock()
		forward(op)
	})
	x.mu.Unlock()
}

func (x *throttleExchange) stopAll() {
	x.mu.Lock()
	for key, timer := range x.delayed {
		timer.Stop()
		delete(x.delayed, key)
	}
	x.mu.Unlock()
}
