// Package telemetry provides the workbench's observability layer: a
// Prometheus metrics collector and an OpenTelemetry span emitter, both
// driven by subscribing to the same trace.Event stream every simulator
// and the coordinator already expose via event.Bus. Neither is required
// to run a simulation; a caller that never constructs a Metrics or
// Tracer gets the bare event bus with no observability overhead.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mpst-workbench/core/trace"
)

// Metrics collects Prometheus-compatible counters, gauges, and histograms
// describing one workbench run. All metrics are namespaced "mpst_workbench".
//
// Exposed metrics:
//
//  1. enabled_roles (gauge): number of roles with at least one enabled
//     transition at the most recent scheduling decision. No labels.
//  2. buffer_depth (gauge): current message count buffered at a role.
//     Labels: run_id, role.
//  3. step_latency_ms (histogram): wall-clock time between consecutive
//     Step calls, in milliseconds. Labels: run_id, role, kind.
//     Buckets: [1, 5, 10, 50, 100, 500, 1000, 5000, 10000].
//  4. steps_total (counter): cumulative role-local transitions executed.
//     Labels: run_id, role, kind.
//  5. findings_total (counter): verifier findings emitted, by severity.
//     Labels: run_id, check, severity.
//  6. deadlocks_total (counter): distributed runs that ended in deadlock.
//     Labels: run_id.
//  7. max_steps_total (counter): runs that exhausted their step budget.
//     Labels: run_id.
//
// Thread-safe: every recording method is safe for concurrent use.
type Metrics struct {
	enabledRoles prometheus.Gauge
	bufferDepth  *prometheus.GaugeVec

	stepLatency *prometheus.HistogramVec
	stepsTotal  *prometheus.CounterVec

	findingsTotal *prometheus.CounterVec
	deadlocks     *prometheus.CounterVec
	maxStepsTotal *prometheus.CounterVec

	registry prometheus.Registerer

	mu      sync.RWMutex
	enabled bool
}

// NewMetrics registers every metric with registry (prometheus.DefaultRegisterer
// if nil) and returns a Metrics ready to record.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	m := &Metrics{registry: registry, enabled: true}

	m.enabledRoles = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "mpst_workbench",
		Name:      "enabled_roles",
		Help:      "Number of roles with at least one enabled transition at the last scheduling decision",
	})

	m.bufferDepth = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mpst_workbench",
		Name:      "buffer_depth",
		Help:      "Current number of buffered messages at a role's inbox",
	}, []string{"run_id", "role"})

	m.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mpst_workbench",
		Name:      "step_latency_ms",
		Help:      "Wall-clock time between consecutive Step calls, in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"run_id", "role", "kind"})

	m.stepsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpst_workbench",
		Name:      "steps_total",
		Help:      "Cumulative role-local transitions executed",
	}, []string{"run_id", "role", "kind"})

	m.findingsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpst_workbench",
		Name:      "findings_total",
		Help:      "Verifier findings emitted, by check and severity",
	}, []string{"run_id", "check", "severity"})

	m.deadlocks = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpst_workbench",
		Name:      "deadlocks_total",
		Help:      "Distributed runs that ended in deadlock",
	}, []string{"run_id"})

	m.maxStepsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpst_workbench",
		Name:      "max_steps_total",
		Help:      "Runs that exhausted their configured step budget",
	}, []string{"run_id"})

	return m
}

// RecordStep records one role-local transition: its latency since the
// previous recorded event for that run and a steps_total increment.
func (m *Metrics) RecordStep(runID string, role trace.Role, kind trace.EventKind, latency time.Duration) {
	if !m.isEnabled() {
		return
	}
	m.stepLatency.WithLabelValues(runID, string(role), string(kind)).Observe(float64(latency.Milliseconds()))
	m.stepsTotal.WithLabelValues(runID, string(role), string(kind)).Inc()
}

// UpdateEnabledRoles sets the gauge tracking how many roles currently have
// an enabled transition.
func (m *Metrics) UpdateEnabledRoles(count int) {
	if !m.isEnabled() {
		return
	}
	m.enabledRoles.Set(float64(count))
}

// UpdateBufferDepth sets the current buffered-message count for role.
func (m *Metrics) UpdateBufferDepth(runID string, role trace.Role, depth int) {
	if !m.isEnabled() {
		return
	}
	m.bufferDepth.WithLabelValues(runID, string(role)).Set(float64(depth))
}

// RecordFinding increments the finding counter for one verifier check.
func (m *Metrics) RecordFinding(runID, check, severity string) {
	if !m.isEnabled() {
		return
	}
	m.findingsTotal.WithLabelValues(runID, check, severity).Inc()
}

// RecordDeadlock increments the deadlock counter for runID.
func (m *Metrics) RecordDeadlock(runID string) {
	if !m.isEnabled() {
		return
	}
	m.deadlocks.WithLabelValues(runID).Inc()
}

// RecordMaxStepsReached increments the max-steps counter for runID.
func (m *Metrics) RecordMaxStepsReached(runID string) {
	if !m.isEnabled() {
		return
	}
	m.maxStepsTotal.WithLabelValues(runID).Inc()
}

func (m *Metrics) isEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Disable stops metric recording without unregistering the collectors.
func (m *Metrics) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// Enable resumes metric recording after Disable.
func (m *Metrics) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}

// Reset zeroes the gauges. Counters and histograms are cumulative by
// Prometheus design and cannot be reset in place.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabledRoles.Set(0)
	m.bufferDepth.Reset()
}
