// Package stream implements the push-based stream primitives the
// dispatch pipeline is built on: cold sources created with Make, hot
// multicast subjects, and the small set of operators (Filter, Map,
// Merge, Tap, First) the client and the exchanges need.
//
// # Propagation model
//
// Values are pushed synchronously: subscribing to a cold source may
// emit values before Subscribe returns, and a Subject delivers each
// pushed value to a snapshot of its current listeners. Asynchronous
// boundaries exist only where a producer performs real I/O (network
// fetch, timers, websocket reads) and pushes from its own goroutine.
//
// # Teardown
//
// Every subscription owns a teardown chain. Unsubscribe is idempotent,
// closes the observer gate so no further values are delivered, and
// propagates upstream so producers can release resources. A listener
// removed from a Subject never observes a value pushed after its
// removal, even if a push snapshot was taken concurrently.
//
// Backpressure is not modeled; consumers are expected to keep up.
package stream
