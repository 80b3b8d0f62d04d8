package metricsx

import (
	"encoding/json"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bipboy/urql/debug"
	"github.com/Bipboy/urql/exchange"
	"github.com/Bipboy/urql/gql"
	"github.com/Bipboy/urql/metric"
	"github.com/Bipboy/urql/stream"
)

func testOperation(t *testing.T, kind gql.OperationType) gql.Operation {
	t.Helper()
	req, err := gql.NewRequest(`{ todos { id } }`, nil)
	require.NoError(t, err)
	return gql.NewOperation(kind, req, gql.OperationContext{})
}

func echoTerminal() exchange.IO {
	return func(ops stream.Source[gql.Operation]) stream.Source[gql.OperationResult] {
		return stream.Make(func(obs stream.Observer[gql.OperationResult]) func() {
			sub := ops(stream.Observer[gql.Operation]{
				Next: func(op gql.Operation) {
					if !op.IsTeardown() {
						obs.Next(gql.OperationResult{
							Operation: op,
							Data:      json.RawMessage(`{"ok":true}`),
						})
					}
				},
				Complete: obs.Complete,
			})
			return sub.Unsubscribe
		})
	}
}

func runExchange(t *testing.T, registry *metric.Registry) (push func(gql.Operation), sub *stream.Subscription) {
	t.Helper()
	io := New(registry).Factory(exchange.Input{
		Forward:       echoTerminal(),
		DispatchDebug: debug.NewChannel().ForSource("metrics"),
	})

	ops := stream.NewSubject[gql.Operation]()
	s := io(ops.Source())(stream.Observer[gql.OperationResult]{})
	return ops.Next, s
}

// counterValue digs a labelled counter out of a gathered family.
func counterValue(t *testing.T, registry *metric.Registry, family string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	for _, fam := range families {
		if fam.GetName() != family {
			continue
		}
		for _, m := range fam.GetMetric() {
			if matchLabels(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, pair := range m.GetLabel() {
		got[pair.GetName()] = pair.GetValue()
	}
	for name, value := range labels {
		if got[name] != value {
			return false
		}
	}
	return true
}

func TestMetrics_CountsOperationsAndResults(t *testing.T) {
	registry := metric.NewRegistry()
	push, sub := runExchange(t, registry)
	defer sub.Unsubscribe()

	push(testOperation(t, gql.OperationQuery))
	push(testOperation(t, gql.OperationQuery))

	assert.Equal(t, 2.0, counterValue(t, registry,
		"urql_client_operations_total", map[string]string{"kind": "query"}))
	assert.Equal(t, 2.0, counterValue(t, registry,
		"urql_client_results_total", map[string]string{"kind": "query", "status": "success"}))
}

func TestMetrics_TeardownsNotCounted(t *testing.T) {
	registry := metric.NewRegistry()
	push, sub := runExchange(t, registry)
	defer sub.Unsubscribe()

	op := testOperation(t, gql.OperationQuery)
	push(op)
	push(gql.NewTeardown(op))

	assert.Equal(t, 1.0, counterValue(t, registry,
		"urql_client_operations_total", map[string]string{"kind": "query"}))
	assert.Equal(t, 0.0, counterValue(t, registry,
		"urql_client_operations_total", map[string]string{"kind": "teardown"}))
}

func TestMetrics_CollectorsReleasedOnTeardown(t *testing.T) {
	registry := metric.NewRegistry()
	push, sub := runExchange(t, registry)

	push(testOperation(t, gql.OperationQuery))
	sub.Unsubscribe()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	assert.Empty(t, families, "unsubscribing the pipeline must unregister collectors")
}

func TestMetrics_SecondPipelineConflictIsNonFatal(t *testing.T) {
	registry := metric.NewRegistry()
	push1, sub1 := runExchange(t, registry)
	defer sub1.Unsubscribe()

	// A second chain against the same registry loses the registration
	// race but still passes traffic through.
	push2, sub2 := runExchange(t, registry)
	defer sub2.Unsubscribe()

	push1(testOperation(t, gql.OperationQuery))
	push2(testOperation(t, gql.OperationMutation))

	assert.Equal(t, 1.0, counterValue(t, registry,
		"urql_client_operations_total", map[string]string{"kind": "query"}))
}
