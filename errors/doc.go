// Package errors provides standardized error handling for the dispatch
// pipeline. It includes error classification, standard error variables,
// and helper functions for consistent error wrapping across the client,
// the exchange composer and the transport exchanges.
//
// Errors are classified into three classes:
//
//   - Transient: temporary failures (network, timeouts) that a retry
//     exchange may re-dispatch
//   - Invalid: programmer or configuration errors that must fail fast
//   - Fatal: unrecoverable failures that should stop processing
//
// Transport and server errors are never thrown across the stream
// boundary; they are carried inside results as a gql.CombinedError.
// Classified errors from this package describe the client's own
// failures: construction, configuration and contract violations.
package errors
