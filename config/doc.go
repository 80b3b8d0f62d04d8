// Package config loads declarative client configuration from YAML and
// maps it onto a client option set and an exchange chain. It exists for
// applications that wire GraphQL endpoints from deployment manifests
// rather than code; programmatic construction through client.New
// remains the primary API and supports strictly more (custom exchanges,
// live broker connections).
//
// A full configuration:
//
//	url: https://api.example.com/graphql
//	request_policy: cache-first
//	prefer_get: false
//	http:
//	  timeout: 30s
//	cache:
//	  ttl: 5m
//	  cleanup_interval: 1m
//	retry:
//	  enabled: true
//	  max_attempts: 3
//	  initial_delay: 100ms
//	  max_delay: 5s
//	  multiplier: 2.0
//	  jitter: true
//	throttle:
//	  enabled: true
//	  rate: 10
//	  burst: 10
//	websocket:
//	  url: wss://api.example.com/graphql
//	  ack_timeout: 10s
//
// Only url is required. Sections assemble into the chain
// dedup → cache → retry → throttle → subscriptions → fetch, with the
// optional stages present only when their section enables them.
package config
