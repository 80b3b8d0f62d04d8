package gql

import (
	"maps"
	"net/http"
	"time"
)

// OperationType classifies an operation flowing through the pipeline.
type OperationType string

const (
	// OperationQuery is a read operation.
	OperationQuery OperationType = "query"
	// OperationMutation is a write operation.
	OperationMutation OperationType = "mutation"
	// OperationSubscription is a long-lived server push operation.
	OperationSubscription OperationType = "subscription"
	// OperationFragment is a fragment-only document; it never reaches a
	// transport and exists so documents can be registered ahead of use.
	OperationFragment OperationType = "fragment"
	// OperationTeardown signals cancellation for a key. Every exchange
	// must forward teardown operations so downstream stages release
	// resources associated with the key.
	OperationTeardown OperationType = "teardown"
)

// RequestPolicy controls how cache exchanges answer an operation.
type RequestPolicy string

const (
	// CacheFirst answers from cache when possible, otherwise forwards.
	CacheFirst RequestPolicy = "cache-first"
	// CacheOnly answers only from cache; a miss yields an empty result
	// and the terminal transport is never invoked.
	CacheOnly RequestPolicy = "cache-only"
	// NetworkOnly always forwards to the transport.
	NetworkOnly RequestPolicy = "network-only"
	// CacheAndNetwork emits a stale cached result eagerly, then
	// forwards for a fresh one.
	CacheAndNetwork RequestPolicy = "cache-and-network"
)

// FetchOptions carries transport-level request configuration.
type FetchOptions struct {
	// Headers are added to every request issued for the operation.
	Headers http.Header
}

// OperationContext is the per-dispatch configuration bag. Known fields
// are statically typed; unrecognized extension keys travel in Meta.
type OperationContext struct {
	URL           string
	RequestPolicy RequestPolicy

	// FetchOptions configures the transport request. FetchOptionsFn,
	// when set, is evaluated at call time and takes precedence.
	FetchOptions   FetchOptions
	FetchOptionsFn func() FetchOptions

	// HTTPClient overrides the transport's default client.
	HTTPClient *http.Client

	// PreferGetMethod asks HTTP transports to issue queries as GET.
	PreferGetMethod bool

	// AdditionalTypenames lists typenames whose invalidation should
	// also invalidate this operation's cached result.
	AdditionalTypenames []string

	// PollInterval re-dispatches the operation on a timer while a
	// consumer stays subscribed. Zero disables polling.
	PollInterval time.Duration

	// Suspense marks the operation for suspense-style consumption.
	Suspense bool

	// Meta holds free-form extension keys for exchanges that need
	// sideband state (retry counters, tracing ids).
	Meta map[string]any
}

// ContextOption mutates a context during construction or cloning.
type ContextOption func(*OperationContext)

// WithPolicy sets the request policy.
func WithPolicy(policy RequestPolicy) ContextOption {
	return func(c *OperationContext) { c.RequestPolicy = policy }
}

// WithURL overrides the transport URL.
func WithURL(url string) ContextOption {
	return func(c *OperationContext) { c.URL = url }
}

// WithFetchOptions sets static transport options.
func WithFetchOptions(opts FetchOptions) ContextOption {
	return func(c *OperationContext) { c.FetchOptions = opts }
}

// WithHTTPClient overrides the HTTP client used by HTTP transports.
func WithHTTPClient(hc *http.Client) ContextOption {
	return func(c *OperationContext) { c.HTTPClient = hc }
}

// WithPreferGetMethod asks HTTP transports to use GET for queries.
func WithPreferGetMethod(prefer bool) ContextOption {
	return func(c *OperationContext) { c.PreferGetMethod = prefer }
}

// WithAdditionalTypenames sets manual cache-invalidation hints.
func WithAdditionalTypenames(typenames ...string) ContextOption {
	return func(c *OperationContext) { c.AdditionalTypenames = typenames }
}

// WithPollInterval enables timed re-dispatch.
func WithPollInterval(interval time.Duration) ContextOption {
	return func(c *OperationContext) { c.PollInterval = interval }
}

// WithMeta sets one extension key.
func WithMeta(key string, value any) ContextOption {
	return func(c *OperationContext) {
		if c.Meta == nil {
			c.Meta = make(map[string]any)
		}
		c.Meta[key] = value
	}
}

// Clone copies the context and applies opts. The Meta map is copied so
// derived operations never alias the original's extension state.
func (c OperationContext) Clone(opts ...ContextOption) OperationContext {
	out := c
	if c.Meta != nil {
		out.Meta = maps.Clone(c.Meta)
	}
	for _, opt := range opts {
		opt(&out)
	}
	return out
}

// Operation extends a Request with its kind and dispatch context.
type Operation struct {
	Request
	Kind    OperationType
	Context OperationContext
}

// NewOperation builds an operation for the given request.
func NewOperation(kind OperationType, request Request, ctx OperationContext) Operation {
	return Operation{Request: request, Kind: kind, Context: ctx}
}

// WithContext returns a derived operation carrying the same key with a
// cloned, overridden context.
func (op Operation) WithContext(opts ...ContextOption) Operation {
	derived := op
	derived.Context = op.Context.Clone(opts...)
	return derived
}

// NewTeardown derives the teardown operation for op. It carries the
// same key so every exchange can release resources tracked under it.
func NewTeardown(op Operation) Operation {
	td := op
	td.Kind = OperationTeardown
	return td
}

// IsTeardown reports whether this operation signals cancellation.
func (op Operation) IsTeardown() bool {
	return op.Kind == OperationTeardown
}
