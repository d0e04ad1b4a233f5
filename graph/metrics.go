package graph

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects execution metrics for the dataflow engine.
//
// Metrics exposed:
//   - inflight_nodes: nodes currently executing
//   - queue_depth: ready nodes waiting in the frontier
//   - node_latency_ms: node execution duration histogram
//   - nodes_pruned_total: nodes skipped because an input was on an untaken branch
//   - branches_taken_total: control-flow decisions by branch index
//   - executions_total: completed executions by status
//
// All metrics use the "dataflow" namespace.
type PrometheusMetrics struct {
	inflightNodes prometheus.Gauge
	queueDepth    prometheus.Gauge

	nodeLatency *prometheus.HistogramVec

	pruned     *prometheus.CounterVec
	branches   *prometheus.CounterVec
	executions *prometheus.CounterVec

	registry prometheus.Registerer

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers the engine metrics with
// registry. A nil registry uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{
		registry: registry,
		enabled:  true,
	}

	pm.inflightNodes = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "dataflow",
		Name:      "inflight_nodes",
		Help:      "Current number of nodes executing concurrently",
	})

	pm.queueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "dataflow",
		Name:      "queue_depth",
		Help:      "Number of ready nodes waiting in the execution frontier",
	})

	pm.nodeLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dataflow",
		Name:      "node_latency_ms",
		Help:      "Node execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"op", "status"}) // status: success, error, timeout

	pm.pruned = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dataflow",
		Name:      "nodes_pruned_total",
		Help:      "Nodes never evaluated because an input lives on an untaken branch",
	}, []string{"op"})

	pm.branches = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dataflow",
		Name:      "branches_taken_total",
		Help:      "Control-flow decisions by operator and branch index",
	}, []string{"op", "branch"})

	pm.executions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dataflow",
		Name:      "executions_total",
		Help:      "Completed graph executions by final status",
	}, []string{"status"})

	return pm
}

func (pm *PrometheusMetrics) isEnabled() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// RecordNodeLatency records the execution duration of one node.
func (pm *PrometheusMetrics) RecordNodeLatency(op string, latency time.Duration, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.nodeLatency.WithLabelValues(op, status).Observe(float64(latency.Milliseconds()))
}

// IncrementPruned counts one pruned node.
func (pm *PrometheusMetrics) IncrementPruned(op string) {
	if !pm.isEnabled() {
		return
	}
	pm.pruned.WithLabelValues(op).Inc()
}

// IncrementBranch counts one control-flow decision.
func (pm *PrometheusMetrics) IncrementBranch(op string, branch int) {
	if !pm.isEnabled() {
		return
	}
	pm.branches.WithLabelValues(op, strconv.Itoa(branch)).Inc()
}

// IncrementExecutions counts one finished execution.
func (pm *PrometheusMetrics) IncrementExecutions(status Status) {
	if !pm.isEnabled() {
		return
	}
	pm.executions.WithLabelValues(string(status)).Inc()
}

// UpdateQueueDepth sets the current frontier depth.
func (pm *PrometheusMetrics) UpdateQueueDepth(depth int) {
	if !pm.isEnabled() {
		return
	}
	pm.queueDepth.Set(float64(depth))
}

// UpdateInflightNodes sets the number of nodes currently executing.
func (pm *PrometheusMetrics) UpdateInflightNodes(count int) {
	if !pm.isEnabled() {
		return
	}
	pm.inflightNodes.Set(float64(count))
}

// Disable stops metric collection without unregistering.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable resumes metric collection.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

// Reset zeroes the gauges. Counters and histograms are cumulative and are
// left untouched.
func (pm *PrometheusMetrics) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.inflightNodes.Set(0)
	pm.queueDepth.Set(0)
}
