// Package cachex implements the document cache exchange. Whole query
// results are cached by request key and invalidated by the __typename
// sets that mutations touch. Request policies decide per dispatch
// whether the cache may answer, must answer, or must be bypassed.
package cachex

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/Bipboy/urql/debug"
	"github.com/Bipboy/urql/exchange"
	"github.com/Bipboy/urql/gql"
	"github.com/Bipboy/urql/pkg/cache"
)

// HitPayload is the debug payload for cacheHit events.
type HitPayload struct {
	Key   uint64 `json:"key"`
	Stale bool   `json:"stale"`
}

// InvalidationPayload is the debug payload for cacheInvalidation events.
type InvalidationPayload struct {
	Typenames []string `json:"typenames"`
	Keys      []uint64 `json:"keys"`
}

func init() {
	_ = debug.RegisterPayload(&debug.PayloadRegistration{
		Type:        debug.EventCacheHit,
		Factory:     func() any { return &HitPayload{} },
		Description: "a query was answered from the document cache",
	})
	_ = debug.RegisterPayload(&debug.PayloadRegistration{
		Type:        debug.EventCacheInvalidation,
		Factory:     func() any { return &InvalidationPayload{} },
		Description: "cached documents were dropped after a mutation",
	})
}

// entry is one cached document: the raw payload plus the typenames it
// contains, which drive invalidation.
type entry struct {
	data       json.RawMessage
	extensions map[string]any
	typenames  []string
}

// Option configures the cache exchange.
type Option func(*options)

type options struct {
	ttl             time.Duration
	cleanupInterval time.Duration
}

// WithTTL bounds the lifetime of cached documents. Without it entries
// live until a mutation invalidates them.
func WithTTL(ttl, cleanupInterval time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
		o.cleanupInterval = cleanupInterval
	}
}

// New creates the document cache exchange.
func New(opts ...Option) exchange.Named {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	return exchange.Named{Name: "cache", Factory: func(in exchange.Input) exchange.IO {
		x := &cacheExchange{
			in:      in,
			index:   make(map[string]map[uint64]struct{}),
			tracked: make(map[uint64]gql.Operation),
		}
		unindex := cache.WithEvictionCallback(x.removeFromIndex)
		if o.ttl > 0 {
			x.store = cache.NewTTL(o.ttl, o.cleanupInterval, unindex)
		} else {
			x.store = cache.NewSimple(unindex)
		}

		return in.Pipe(exchange.Handler{
			OnOperation: x.onOperation,
			OnResult:    x.onResult,
			OnEnd:       func() { x.store.Close() },
		})
	}}
}

type cacheExchange struct {
	in    exchange.Input
	store cache.Cache[uint64, entry]

	mu sync.Mutex
	// index maps a typename to the request keys whose cached documents
	// contain it.
	index map[string]map[uint64]struct{}
	// tracked remembers the last dispatched operation per key so
	// invalidation can re-execute it.
	tracked map[uint64]gql.Operation
}

func (x *cacheExchange) onOperation(op gql.Operation, emit exchange.EmitFn, forward exchange.ForwardFn) {
	switch op.Kind {
	case gql.OperationTeardown:
		x.mu.Lock()
		delete(x.tracked, op.Key)
		x.mu.Unlock()
		forward(op)

	case gql.OperationQuery:
		x.onQuery(op, emit, forward)

	default:
		forward(op)
	}
}

func (x *cacheExchange) onQuery(op gql.Operation, emit exchange.EmitFn, forward exchange.ForwardFn) {
	x.mu.Lock()
	x.tracked[op.Key] = op
	x.mu.Unlock()

	ent, hit := x.store.Get(op.Key)

	policy := op.Context.RequestPolicy
	if policy == "" {
		policy = gql.CacheFirst
	}

	switch policy {
	case gql.CacheOnly:
		// Never forwards: a miss is a vacuous result, not a fetch.
		if hit {
			emit(x.cachedResult(op, ent, false))
			return
		}
		emit(gql.OperationResult{Operation: op})

	case gql.NetworkOnly:
		forward(op)

	case gql.CacheAndNetwork:
		if hit {
			emit(x.cachedResult(op, ent, true))
		}
		forward(op)

	default: // cache-first
		if hit {
			emit(x.cachedResult(op, ent, false))
			return
		}
		forward(op)
	}
}

func (x *cacheExchange) onResult(result gql.OperationResult, emit exchange.EmitFn) {
	switch {
	case result.Operation.Kind == gql.OperationQuery && result.Error == nil && result.HasData():
		x.storeResult(result)
	case result.Operation.Kind == gql.OperationMutation && result.Error == nil:
		x.invalidate(result)
	}
	emit(result)
}

func (x *cacheExchange) storeResult(result gql.OperationResult) {
	key := result.Operation.Key
	typenames := collectTypenames(result.Data)
	typenames = append(typenames, result.Operation.Context.AdditionalTypenames...)

	x.store.Set(key, entry{
		data:       result.Data,
		extensions: result.Extensions,
		typenames:  typenames,
	})

	x.mu.Lock()
	for _, tn := range typenames {
		keys, ok := x.index[tn]
		if !ok {
			keys = make(map[uint64]struct{})
			x.index[tn] = keys
		}
		keys[key] = struct{}{}
	}
	x.mu.Unlock()
}

func (x *cacheExchange) invalidate(result gql.OperationResult) {
	typenames := collectTypenames(result.Data)
	typenames = append(typenames, result.Operation.Context.AdditionalTypenames...)
	if len(typenames) == 0 {
		return
	}

	x.mu.Lock()
	affected := make(map[uint64]struct{})
	for _, tn := range typenames {
		for key := range x.index[tn] {
			affected[key] = struct{}{}
		}
	}
	reexecute := make([]gql.Operation, 0, len(affected))
	keys := make([]uint64, 0, len(affected))
	for key := range affected {
		keys = append(keys, key)
		if op, ok := x.tracked[key]; ok {
			reexecute = append(reexecute, op)
		}
	}
	x.mu.Unlock()

	if len(keys) == 0 {
		return
	}

	// The eviction callback prunes the typename index per deleted key.
	for _, key := range keys {
		x.store.Delete(key)
	}

	x.in.DispatchDebug(debug.Event{
		Type:      debug.EventCacheInvalidation,
		Message:   "mutation invalidated cached documents",
		Operation: result.Operation,
		Data:      &InvalidationPayload{Typenames: typenames, Keys: keys},
	})

	// Refresh every operation a consumer still watches; the cache for
	// these keys is gone, so the re-dispatch must reach the network.
	if x.in.Client != nil {
		for _, op := range reexecute {
			x.in.Client.ReexecuteOperation(op.WithContext(gql.WithPolicy(gql.NetworkOnly)))
		}
	}
}

func (x *cacheExchange) cachedResult(op gql.Operation, ent entry, stale bool) gql.OperationResult {
	x.in.DispatchDebug(debug.Event{
		Type:      debug.EventCacheHit,
		Message:   "query answered from cache",
		Operation: op,
		Data:      &HitPayload{Key: op.Key, Stale: stale},
	})
	return gql.OperationResult{
		Operation:  op,
		Data:       ent.data,
		Extensions: ent.extensions,
		Stale:      stale,
	}
}

// removeFromIndex runs whenever the store drops an entry, including TTL
// sweeps, so the typename index never references absent documents.
func (x *cacheExchange) removeFromIndex(key uint64, ent entry) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, tn := range ent.typenames {
		if keys, ok := x.index[tn]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(x.index, tn)
			}
		}
	}
}
