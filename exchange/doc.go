// Package exchange defines the contract every pipeline stage implements
// and the composer that folds an ordered list of stages into a single
// pipeline.
//
// An exchange is a function from a stream of operations to a stream of
// results. It is constructed once per client by its Factory, which
// receives the owning client handle, the next stage's IO as forward,
// and a debug dispatch callback. Contract obligations:
//
//   - Never drop a non-teardown operation silently. Teardown operations
//     signal cancellation and must propagate to forward so downstream
//     stages release resources.
//   - Preserve operation identity: every emitted result references the
//     operation (or a context-modified clone carrying the same key)
//     that produced it.
//   - An exchange may short-circuit without forwarding, forward and
//     transform, or do both; the dual-emission pattern (cached result
//     now, network refresh later) is how cache-and-network works.
//
// Ordering is caller-determined and significant: the first exchange in
// the list sees operations first, and the last exchange's forward is
// the terminal transport.
package exchange
