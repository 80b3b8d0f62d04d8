// Package urql provides a client-side dispatch pipeline for GraphQL
// operations. A declarative request (query, mutation or subscription) is
// routed through an ordered chain of pluggable stages called exchanges,
// each of which may answer from a cache, deduplicate in-flight requests,
// retry failures, or perform the actual network transport.
//
// # Architecture
//
// The client owns a single multicast stream of operations. Exchanges are
// composed right-to-left into one pipeline; results flow back through the
// same pipeline and are routed to consumers by operation key.
//
//	┌─────────────────────────────────────┐
//	│             Client                  │  request keys, multicast,
//	│  (dispatch, route, teardown)        │  reference counting
//	└─────────────────────────────────────┘
//	           ↓ operations            ↑ results
//	┌─────────────────────────────────────┐
//	│        Exchange pipeline            │  dedup → cache → retry →
//	│   (composed once per client)        │  throttle → transport
//	└─────────────────────────────────────┘
//	           ↓ forwards              ↑ emits
//	┌─────────────────────────────────────┐
//	│      Terminal transport             │  HTTP fetch, websocket
//	│   (fetchx, wsx, natsrpc)            │  subscriptions, NATS RPC
//	└─────────────────────────────────────┘
//
// Every exchange obeys the same contract: it never drops non-teardown
// operations silently, always forwards teardown operations so downstream
// stages release resources, and every result it emits references the
// operation that produced it.
//
// # Packages
//
//   - gql: operation/result data model, request keys, CombinedError
//   - stream: push-based sources, multicast subjects, operators
//   - exchange: the exchange contract and composer
//   - client: the dispatcher
//   - debug: per-client diagnostic event channel
//   - exchanges/...: cache, dedup, fetch, retry, throttle, metrics,
//     websocket subscriptions and NATS transports
//
// # Basic Usage
//
//	c, err := client.New(
//	    client.WithURL("https://example.com/graphql"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	res, err := c.Query(ctx, `{ todos { id title } }`, nil)
package urql
