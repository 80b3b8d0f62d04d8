// Package gql defines the immutable value types flowing through the
// dispatch pipeline: requests, operations, operation results and the
// CombinedError aggregating transport and server failures.
//
// A Request pairs a GraphQL document with its variables under a
// deterministic key: equal (query, variables) pairs always produce the
// same key, so identical requests are recognized without re-parsing.
// An Operation extends a Request with its kind (query, mutation,
// subscription, fragment or teardown) and an OperationContext carrying
// per-dispatch configuration such as the request policy and transport
// overrides. Context values are immutable per dispatch; exchanges that
// re-issue a derived operation clone the context with overrides while
// keeping the key.
package gql
