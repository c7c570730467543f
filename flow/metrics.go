package flow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Prometheus collectors for execution monitoring.
//
// All metrics are namespaced "ellflow_":
//
//   - active_executions (gauge): executions currently running or paused.
//   - executions_total (counter, label status): terminal outcomes.
//   - node_duration_ms (histogram, labels node_type, status): runner latency.
//   - stream_events_total (counter, label type): events published to client
//     streams.
//   - rate_limit_denials_total (counter, label window): admissions refused
//     by the gate, counted by the HTTP layer.
//
// A nil *Metrics is valid and records nothing, so the engine never has to
// branch on configuration.
type Metrics struct {
	activeExecutions prometheus.Gauge
	executionsTotal  *prometheus.CounterVec
	nodeDuration     *prometheus.HistogramVec
	streamEvents     *prometheus.CounterVec
	rateLimitDenials *prometheus.CounterVec
}

// NewMetrics registers the collectors with the given registerer.
// Pass prometheus.DefaultRegisterer for the process-wide registry, or a
// fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		activeExecutions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ellflow_active_executions",
			Help: "Number of workflow executions currently in flight.",
		}),
		executionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ellflow_executions_total",
			Help: "Workflow executions by terminal status.",
		}, []string{"status"}),
		nodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ellflow_node_duration_ms",
			Help:    "Node runner latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"node_type", "status"}),
		streamEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ellflow_stream_events_total",
			Help: "Events published to client streams, by event type.",
		}, []string{"type"}),
		rateLimitDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ellflow_rate_limit_denials_total",
			Help: "Execution requests denied by the rate-limit gate.",
		}, []string{"window"}),
	}
}

// ExecutionStarted increments the in-flight gauge.
func (m *Metrics) ExecutionStarted() {
	if m == nil {
		return
	}
	m.activeExecutions.Inc()
}

// ExecutionFinished decrements the in-flight gauge and counts the outcome.
func (m *Metrics) ExecutionFinished(status ExecutionStatus) {
	if m == nil {
		return
	}
	m.activeExecutions.Dec()
	m.executionsTotal.WithLabelValues(string(status)).Inc()
}

// NodeObserved records one runner invocation.
func (m *Metrics) NodeObserved(nodeType NodeType, status NodeStatus, d time.Duration) {
	if m == nil {
		return
	}
	m.nodeDuration.WithLabelValues(string(nodeType), string(status)).
		Observe(float64(d) / float64(time.Millisecond))
}

// StreamEvent counts one published client event.
func (m *Metrics) StreamEvent(eventType string) {
	if m == nil {
		return
	}
	m.streamEvents.WithLabelValues(eventType).Inc()
}

// RateLimitDenied counts one refused admission.
func (m *Metrics) RateLimitDenied(window string) {
	if m == nil {
		return
	}
	m.rateLimitDenials.WithLabelValues(window).Inc()
}
