// Package metricsx implements a pass-through exchange that measures
// pipeline traffic: dispatch counts by kind, result counts by status,
// and operation latency from dispatch to first result.
package metricsx

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Bipboy/urql/exchange"
	"github.com/Bipboy/urql/gql"
	"github.com/Bipboy/urql/metric"
)

// New creates the metrics exchange. Collectors are registered with the
// given registry when the pipeline is composed and unregistered when it
// is torn down.
func New(registry *metric.Registry) exchange.Named {
	return exchange.Named{Name: "metrics", Factory: func(in exchange.Input) exchange.IO {
		if in.Logger == nil {
			in.Logger = slog.Default()
		}
		x := &metricsExchange{
			registry: registry,
			starts:   make(map[uint64]time.Time),
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "urql",
				Subsystem: "client",
				Name:      "operations_total",
				Help:      "Operations dispatched into the pipeline by kind.",
			}, []string{"kind"}),
			results: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "urql",
				Subsystem: "client",
				Name:      "results_total",
				Help:      "Results delivered to consumers by kind and status.",
			}, []string{"kind", "status"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "urql",
				Subsystem: "client",
				Name:      "operation_duration_seconds",
				Help:      "Latency from dispatch to first result by kind.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"kind"}),
		}

		for name, collector := range x.collectors() {
			if err := registry.Register("metricsx", name, collector); err != nil {
				in.Logger.Warn("collector registration failed",
					"collector", name, "error", err)
			}
		}

		return in.Pipe(exchange.Handler{
			OnOperation: x.onOperation,
			OnResult:    x.onResult,
			OnEnd:       x.unregister,
		})
	}}
}

type metricsExchange struct {
	registry *metric.Registry

	operations *prometheus.CounterVec
	results    *prometheus.CounterVec
	duration   *prometheus.HistogramVec

	mu     sync.Mutex
	starts map[uint64]time.Time
}

func (x *metricsExchange) collectors() map[string]prometheus.Collector {
	return map[string]prometheus.Collector{
		"operations": x.operations,
		"results":    x.results,
		"duration":   x.duration,
	}
}

func (x *metricsExchange) onOperation(op gql.Operation, _ exchange.EmitFn, forward exchange.ForwardFn) {
	if op.Kind == gql.OperationTeardown {
		x.mu.Lock()
		delete(x.starts, op.Key)
		x.mu.Unlock()
		forward(op)
		return
	}

	x.operations.WithLabelValues(string(op.Kind)).Inc()

	x.mu.Lock()
	if _, pending := x.starts[op.Key]; !pending {
		x.starts[op.Key] = time.Now()
	}
	x.mu.Unlock()

	forward(op)
}

func (x *metricsExchange) onResult(result gql.OperationResult, emit exchange.EmitFn) {
	kind := string(result.Operation.Kind)

	status := "success"
	if result.Error != nil {
		status = "error"
	}
	x.results.WithLabelValues(kind, status).Inc()

	x.mu.Lock()
	start, pending := x.starts[result.Operation.Key]
	if pending {
		delete(x.starts, result.Operation.Key)
	}
	x.mu.Unlock()

	if pending {
		x.duration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}

	emit(result)
}

func (x *metricsExchange) unregister() {
	for name := range x.collectors() {
		x.registry.Unregister("metricsx", name)
	}
}
