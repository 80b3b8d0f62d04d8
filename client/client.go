package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Bipboy/urql/debug"
	"github.com/Bipboy/urql/errors"
	"github.com/Bipboy/urql/exchange"
	"github.com/Bipboy/urql/exchanges/cachex"
	"github.com/Bipboy/urql/exchanges/dedup"
	"github.com/Bipboy/urql/exchanges/fetchx"
	"github.com/Bipboy/urql/gql"
	"github.com/Bipboy/urql/stream"
)

// Client dispatches GraphQL operations through its composed exchange
// pipeline and routes results back to interested consumers by request
// key.
type Client struct {
	url           string
	requestPolicy gql.RequestPolicy
	logger        *slog.Logger
	debugChannel  *debug.Channel

	operations *stream.Subject[gql.Operation]
	results    *stream.Subject[gql.OperationResult]

	pipelineSub *stream.Subscription

	mu     sync.Mutex
	active map[uint64]*activeEntry
	closed bool
}

// activeEntry tracks consumer interest in one request key. The last
// dispatched operation is retained so teardown can be synthesized with
// the key's context.
type activeEntry struct {
	consumers int
	op        gql.Operation
}

// New builds a client and composes its pipeline exactly once. Without
// WithExchanges the default chain is dedup → cache → fetch, which
// requires WithURL; omitting both is a configuration error.
func New(opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if !o.exchangesSet && o.url == "" {
		return nil, errors.WrapInvalid(
			errors.ErrMissingConfig, "client", "New",
			"default exchanges require a URL")
	}

	c := &Client{
		url:           o.url,
		requestPolicy: o.requestPolicy,
		logger:        o.logger,
		debugChannel:  debug.NewChannel(),
		operations:    stream.NewSubject[gql.Operation](),
		results:       stream.NewSubject[gql.OperationResult](),
		active:        make(map[uint64]*activeEntry),
	}

	exchanges := o.exchanges
	if !o.exchangesSet {
		exchanges = []exchange.Named{
			dedup.New(),
			cachex.New(),
			fetchx.New(fetchx.WithHTTPClient(o.httpClient)),
		}
	}

	pipeline, err := exchange.Compose(c, c.debugChannel, c.logger, exchanges,
		exchange.Fallback(c.logger, c.debugChannel.ForSource("fallback")))
	if err != nil {
		return nil, errors.Wrap(err, "client", "New", "pipeline composition")
	}

	// The one and only pipeline subscription. Every consumer observes
	// a key-filtered view of c.results instead of re-running the
	// chain.
	c.pipelineSub = pipeline(c.operations.Source())(stream.Observer[gql.OperationResult]{
		Next: c.results.Next,
	})

	return c, nil
}

// CreateRequest computes the deterministic request key for a query and
// its variables. Equal (query, variables) pairs yield equal keys.
func (c *Client) CreateRequest(query string, variables map[string]any) (gql.Request, error) {
	return gql.NewRequest(query, variables)
}

// ExecuteRequestOperation dispatches op and returns the stream of
// results for its key. Subscribing registers interest, then pushes the
// operation; when the key's last consumer unsubscribes, exactly one
// teardown operation is pushed through the pipeline.
func (c *Client) ExecuteRequestOperation(op gql.Operation) stream.Source[gql.OperationResult] {
	return func(obs stream.Observer[gql.OperationResult]) *stream.Subscription {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return stream.Empty[gql.OperationResult]()(obs)
		}
		entry, exists := c.active[op.Key]
		if !exists {
			entry = &activeEntry{}
			c.active[op.Key] = entry
		}
		entry.consumers++
		entry.op = op
		c.mu.Unlock()

		// Register the consumer before dispatching so synchronous
		// emissions (cache hits) are not lost.
		resultSub := stream.Filter(c.results.Source(), func(r gql.OperationResult) bool {
			return r.Operation.Key == op.Key
		})(obs)

		var pollStop chan struct{}
		if op.Context.PollInterval > 0 {
			pollStop = make(chan struct{})
			go c.pollLoop(op, pollStop)
		}

		c.operations.Next(op)

		return stream.NewSubscription(func() {
			if pollStop != nil {
				close(pollStop)
			}
			resultSub.Unsubscribe()

			c.mu.Lock()
			if entry, ok := c.active[op.Key]; ok {
				entry.consumers--
				if entry.consumers == 0 {
					delete(c.active, op.Key)
					// Pushed under the lock: a dispatch for the same key
					// must observe either the table entry or the teardown
					// already in the pipeline. A stale teardown arriving
					// after a fresh dispatch would cancel the new
					// consumer's in-flight work. The teardown path never
					// re-enters the client, so holding the lock across
					// the push cannot deadlock.
					if !c.closed {
						c.operations.Next(gql.NewTeardown(op))
					}
				}
			}
			c.mu.Unlock()
		})
	}
}

// ExecuteQuery dispatches req as a query operation.
func (c *Client) ExecuteQuery(req gql.Request, opts ...gql.ContextOption) stream.Source[gql.OperationResult] {
	return c.ExecuteRequestOperation(c.buildOperation(gql.OperationQuery, req, opts...))
}

// ExecuteMutation dispatches req as a mutation operation.
func (c *Client) ExecuteMutation(req gql.Request, opts ...gql.ContextOption) stream.Source[gql.OperationResult] {
	return c.ExecuteRequestOperation(c.buildOperation(gql.OperationMutation, req, opts...))
}

// ExecuteSubscription dispatches req as a subscription operation. The
// configured chain must contain a subscription-capable transport.
func (c *Client) ExecuteSubscription(req gql.Request, opts ...gql.ContextOption) stream.Source[gql.OperationResult] {
	return c.ExecuteRequestOperation(c.buildOperation(gql.OperationSubscription, req, opts...))
}

// Query is the one-shot form of ExecuteQuery: it resolves with the
// first non-stale result or the context error.
func (c *Client) Query(ctx context.Context, query string, variables map[string]any, opts ...gql.ContextOption) (gql.OperationResult, error) {
	req, err := gql.NewRequest(query, variables)
	if err != nil {
		return gql.OperationResult{}, err
	}
	return stream.First(ctx, stream.Filter(c.ExecuteQuery(req, opts...),
		func(r gql.OperationResult) bool { return !r.Stale }))
}

// Mutation is the one-shot form of ExecuteMutation.
func (c *Client) Mutation(ctx context.Context, query string, variables map[string]any, opts ...gql.ContextOption) (gql.OperationResult, error) {
	req, err := gql.NewRequest(query, variables)
	if err != nil {
		return gql.OperationResult{}, err
	}
	return stream.First(ctx, stream.Filter(c.ExecuteMutation(req, opts...),
		func(r gql.OperationResult) bool { return !r.Stale }))
}

// ReexecuteOperation pushes op through the pipeline again if any
// consumer is still interested in its key. Exchanges use this to
// refresh invalidated results; the re-dispatch looks like a fresh
// operation to every stage.
func (c *Client) ReexecuteOperation(op gql.Operation) {
	c.mu.Lock()
	entry, interested := c.active[op.Key]
	interested = interested && entry.consumers > 0 && !c.closed
	c.mu.Unlock()

	if interested {
		c.operations.Next(op)
	}
}

// OnDebugEvent registers a debug event observer. While no observer is
// registered, event dispatch is a no-op with no allocation cost.
func (c *Client) OnDebugEvent(fn func(debug.Event)) *stream.Subscription {
	return c.debugChannel.Subscribe(fn)
}

// Close tears down every active operation, the pipeline subscription
// and both subjects. The client must not be used afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	remaining := make([]gql.Operation, 0, len(c.active))
	for _, entry := range c.active {
		remaining = append(remaining, entry.op)
	}
	c.active = make(map[uint64]*activeEntry)
	c.mu.Unlock()

	for _, op := range remaining {
		c.operations.Next(gql.NewTeardown(op))
	}

	c.operations.Complete()
	c.pipelineSub.Unsubscribe()
	c.results.Complete()
}

func (c *Client) buildOperation(kind gql.OperationType, req gql.Request, opts ...gql.ContextOption) gql.Operation {
	base := gql.OperationContext{
		URL:           c.url,
		RequestPolicy: c.requestPolicy,
	}
	return gql.NewOperation(kind, req, base.Clone(opts...))
}

func (c *Client) pollLoop(op gql.Operation, stop <-chan struct{}) {
	ticker := time.NewTicker(op.Context.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.ReexecuteOperation(op)
		}
	}
}
