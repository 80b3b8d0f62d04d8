// Package metric provides a Prometheus-based registry for pipeline
// observability. One Registry is typically created per client and
// handed to the metrics exchange, which registers operation counters
// and latency histograms against it. The Registry tracks its
// collectors by name so duplicate registration is caught with a
// classified error rather than a Prometheus panic.
package metric
