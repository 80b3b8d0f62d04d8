package debug

import (
	"time"

	"github.com/Bipboy/urql/gql"
)

// Well-known event types emitted by the built-in exchanges. The set is
// open: any string is a valid type, registered or not.
const (
	// EventCacheHit is emitted when a cache exchange answers from cache.
	EventCacheHit = "cacheHit"
	// EventCacheInvalidation is emitted when cached entries are dropped.
	EventCacheInvalidation = "cacheInvalidation"
	// EventFetchRequest is emitted when a transport issues a request.
	EventFetchRequest = "fetchRequest"
	// EventFetchSuccess is emitted when a transport response arrives.
	EventFetchSuccess = "fetchSuccess"
	// EventFetchError is emitted when a transport request fails.
	EventFetchError = "fetchError"
	// EventRetryAttempt is emitted when a retry exchange re-dispatches.
	EventRetryAttempt = "retryAttempt"
	// EventDedupSkipped is emitted when a duplicate dispatch is dropped.
	EventDedupSkipped = "dedupSkipped"
	// EventNoTransport is emitted when an operation reaches the
	// fallback terminal unresolved.
	EventNoTransport = "noTransport"
)

// Event is a fire-and-forget diagnostic record. Data's shape is keyed
// by Type via the payload registry; unregistered types carry arbitrary
// values.
type Event struct {
	Type      string
	Message   string
	Operation gql.Operation
	Data      any
	Timestamp time.Time
	Source    string
}

// DispatchFn publishes one event. The client injects a DispatchFn into
// every exchange factory; it stamps Timestamp and Source before
// publishing and never blocks.
type DispatchFn func(event Event)
