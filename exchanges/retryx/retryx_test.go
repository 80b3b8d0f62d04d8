package retryx

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/Bipboy/urql/debug"
	"github.com/Bipboy/urql/errors"
	"github.com/Bipboy/urql/exchange"
	"github.com/Bipboy/urql/gql"
	"github.com/Bipboy/urql/pkg/retry"
	"github.com/Bipboy/urql/stream"
)

func testOperation(t *testing.T) gql.Operation {
	t.Helper()
	req, err := gql.NewRequest(`{ todos { id } }`, nil)
	require.NoError(t, err)
	return gql.NewOperation(gql.OperationQuery, req, gql.OperationContext{})
}

func fastConfig(maxAttempts int) retry.Config {
	return retry.Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

// flakyTerminal fails the first failures dispatches with a transient
// network error, then succeeds. Timer-driven re-forwards arrive on
// other goroutines, so all state is guarded.
type flakyTerminal struct {
	mu       sync.Mutex
	failures int
	seen     []gql.Operation
	finalErr *gql.CombinedError
}

func (f *flakyTerminal) io(ops stream.Source[gql.Operation]) stream.Source[gql.OperationResult] {
	return stream.Make(func(obs stream.Observer[gql.OperationResult]) func() {
		sub := ops(stream.Observer[gql.Operation]{
			Next: func(op gql.Operation) {
				if op.IsTeardown() {
					return
				}
				f.mu.Lock()
				f.seen = append(f.seen, op)
				fail := len(f.seen) <= f.failures
				f.mu.Unlock()

				if fail {
					err := f.finalErr
					if err == nil {
						err = gql.NetworkErr(errors.WrapTransient(
							errors.ErrConnectionLost, "test", "terminal", "simulated outage"))
					}
					obs.Next(gql.ErrorResult(op, err))
					return
				}
				obs.Next(gql.OperationResult{Operation: op, Data: json.RawMessage(`{"ok":true}`)})
			},
			Complete: obs.Complete,
		})
		return sub.Unsubscribe
	})
}

func (f *flakyTerminal) dispatches() []gql.Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gql.Operation(nil), f.seen...)
}

type resultLog struct {
	mu      sync.Mutex
	results []gql.OperationResult
}

func (l *resultLog) add(r gql.OperationResult) {
	l.mu.Lock()
	l.results = append(l.results, r)
	l.mu.Unlock()
}

func (l *resultLog) snapshot() []gql.OperationResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]gql.OperationResult(nil), l.results...)
}

func runExchange(
	t *testing.T, cfg retry.Config, terminal exchange.IO, channel *debug.Channel,
) (push func(gql.Operation), log *resultLog, sub *stream.Subscription) {
	t.Helper()
	if channel == nil {
		channel = debug.NewChannel()
	}
	io := New(WithConfig(cfg)).Factory(exchange.Input{
		Forward:       terminal,
		DispatchDebug: channel.ForSource("retry"),
	})

	ops := stream.NewSubject[gql.Operation]()
	log = &resultLog{}
	s := io(ops.Source())(stream.Observer[gql.OperationResult]{Next: log.add})
	return ops.Next, log, s
}

func TestRetry_RecoversFromTransientFailures(t *testing.T) {
	terminal := &flakyTerminal{failures: 2}
	channel := debug.NewChannel()
	var mu sync.Mutex
	var events []debug.Event
	debugSub := channel.Subscribe(func(e debug.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	defer debugSub.Unsubscribe()

	push, log, sub := runExchange(t, fastConfig(3), terminal.io, channel)
	defer sub.Unsubscribe()

	push(testOperation(t))

	require.Eventually(t, func() bool {
		return len(log.snapshot()) == 1
	}, 2*time.Second, time.Millisecond)

	// Consumers only saw the final success; the two failures were
	// swallowed and re-dispatched.
	res := log.snapshot()[0]
	assert.Nil(t, res.Error)
	assert.JSONEq(t, `{"ok":true}`, string(res.Data))
	assert.Len(t, terminal.dispatches(), 3)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, debug.EventRetryAttempt, events[0].Type)
}

func TestRetry_RetriedOperationCarriesCount(t *testing.T) {
	terminal := &flakyTerminal{failures: 1}
	push, log, sub := runExchange(t, fastConfig(2), terminal.io, nil)
	defer sub.Unsubscribe()

	push(testOperation(t))

	require.Eventually(t, func() bool {
		return len(log.snapshot()) == 1
	}, 2*time.Second, time.Millisecond)

	dispatches := terminal.dispatches()
	require.Len(t, dispatches, 2)
	assert.Nil(t, dispatches[0].Context.Meta)
	assert.Equal(t, 1, dispatches[1].Context.Meta[MetaRetryCount])
}

func TestRetry_ExhaustionEmitsFinalError(t *testing.T) {
	terminal := &flakyTerminal{failures: 100}
	push, log, sub := runExchange(t, fastConfig(3), terminal.io, nil)
	defer sub.Unsubscribe()

	push(testOperation(t))

	require.Eventually(t, func() bool {
		return len(log.snapshot()) == 1
	}, 2*time.Second, time.Millisecond)

	res := log.snapshot()[0]
	require.NotNil(t, res.Error)
	assert.True(t, errors.IsTransient(res.Error.NetworkError))
	assert.Len(t, terminal.dispatches(), 3)
}

func TestRetry_GraphQLErrorsAreFinal(t *testing.T) {
	// A response error is not retryable regardless of attempt budget.
	terminal := &flakyTerminal{
		failures: 100,
		finalErr: gql.ResponseErrs(gqlerror.List{gqlerror.Errorf("denied")}),
	}

	push, log, sub := runExchange(t, fastConfig(5), terminal.io, nil)
	defer sub.Unsubscribe()

	push(testOperation(t))

	require.Len(t, log.snapshot(), 1)
	assert.Len(t, terminal.dispatches(), 1)
}

func TestRetry_NonRetryableNetworkErrorIsFinal(t *testing.T) {
	terminal := &flakyTerminal{
		failures: 100,
		finalErr: gql.NetworkErr(retry.NonRetryable(errors.WrapTransient(
			errors.ErrConnectionLost, "test", "terminal", "permanent"))),
	}
	push, log, sub := runExchange(t, fastConfig(5), terminal.io, nil)
	defer sub.Unsubscribe()

	push(testOperation(t))

	require.Len(t, log.snapshot(), 1)
	assert.Len(t, terminal.dispatches(), 1)
}

func TestRetry_TeardownCancelsPendingRetry(t *testing.T) {
	terminal := &flakyTerminal{failures: 100}
	cfg := fastConfig(3)
	cfg.InitialDelay = 200 * time.Millisecond
	cfg.MaxDelay = time.Second

	push, log, sub := runExchange(t, cfg, terminal.io, nil)
	defer sub.Unsubscribe()

	op := testOperation(t)
	push(op)
	require.Len(t, terminal.dispatches(), 1)

	push(gql.NewTeardown(op))

	// The scheduled re-dispatch was cancelled: the terminal never sees
	// a second attempt.
	time.Sleep(400 * time.Millisecond)
	assert.Len(t, terminal.dispatches(), 1)
	assert.Empty(t, log.snapshot())
}
