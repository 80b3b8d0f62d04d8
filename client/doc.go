// Package client implements the dispatcher that owns the live
// operation stream. It assigns request identity, multicasts operations
// into the composed exchange pipeline, routes results back to the
// consumers interested in each request key, and synthesizes teardown
// operations when a key loses its last consumer.
//
// The pipeline is composed exactly once, when the client is built, and
// carries at most one subscription regardless of how many consumers
// execute operations. Consumers receive key-filtered views of the one
// result stream; dispatch counting and result fan-out are independent,
// so identical concurrent operations are only deduplicated if a dedup
// exchange is configured.
package client
