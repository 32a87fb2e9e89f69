// Package metrics provides the Prometheus-backed observer (§4.7's
// domain-stack third observer), grounded on graph/metrics.go's
// PrometheusMetrics but scoped to this engine's event vocabulary.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sorryhyun/dipeo-engine/emit"
)

// Observer exposes counters and gauges for node starts/completions/errors
// and the scheduler's iteration counter, namespaced "dipeo_".
type Observer struct {
	nodeStarts    *prometheus.CounterVec
	nodeCompletes *prometheus.CounterVec
	nodeErrors    *prometheus.CounterVec
	iterations    *prometheus.GaugeVec
	runsComplete  *prometheus.CounterVec
}

// NewObserver registers every metric with reg (use prometheus.DefaultRegisterer
// for the global registry).
func NewObserver(reg prometheus.Registerer) *Observer {
	factory := promauto.With(reg)
	return &Observer{
		nodeStarts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dipeo_node_starts_total",
			Help: "Node executions started, by node type.",
		}, []string{"node_type"}),
		nodeCompletes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dipeo_node_completes_total",
			Help: "Node executions completed successfully, by node type.",
		}, []string{"node_type"}),
		nodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dipeo_node_errors_total",
			Help: "Node executions that failed, by node type and error kind.",
		}, []string{"node_type", "kind"}),
		iterations: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dipeo_scheduler_iteration",
			Help: "Current iteration counter for a running execution.",
		}, []string{"execution_id"}),
		runsComplete: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dipeo_executions_total",
			Help: "Completed executions, by final status.",
		}, []string{"status"}),
	}
}

// Emit implements emit.Emitter.
func (o *Observer) Emit(e emit.Event) {
	switch e.Type {
	case emit.NodeStart:
		o.nodeStarts.WithLabelValues(e.NodeType).Inc()
	case emit.NodeComplete:
		o.nodeCompletes.WithLabelValues(e.NodeType).Inc()
	case emit.NodeError:
		o.nodeErrors.WithLabelValues(e.NodeType, e.Kind).Inc()
	case emit.IterationTick:
		o.iterations.WithLabelValues(string(e.ExecutionID)).Set(float64(e.Iteration))
	case emit.ExecutionComplete:
		o.runsComplete.WithLabelValues(e.Status).Inc()
		o.iterations.DeleteLabelValues(string(e.ExecutionID))
	case emit.ExecutionError:
		o.runsComplete.WithLabelValues("failed").Inc()
		o.iterations.DeleteLabelValues(string(e.ExecutionID))
	}
}
