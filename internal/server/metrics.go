package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the server's prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	updateOpsTotal  *prometheus.CounterVec
	skillsLoaded    prometheus.Gauge
}

// NewMetrics creates and registers the server's collectors on a fresh
// registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skilld",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "skilld",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and path.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		updateOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skilld",
			Subsystem: "skillbook",
			Name:      "update_operations_total",
			Help:      "Applied skillbook update operations by type and outcome.",
		}, []string{"op", "outcome"}),
		skillsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skilld",
			Subsystem: "skillbook",
			Name:      "skills_loaded",
			Help:      "Number of skills currently loaded in the merged skillbook.",
		}),
	}

	reg.MustRegister(m.requestsTotal, m.requestDuration, m.updateOpsTotal, m.skillsLoaded)

	return m
}

// Registry returns the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(method, path, status string, seconds float64) {
	m.requestsTotal.WithLabelValues(method, path, status).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(seconds)
}

// ObserveUpdateOp records one applied update operation.
func (m *Metrics) ObserveUpdateOp(op string, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.updateOpsTotal.WithLabelValues(op, outcome).Inc()
}

// SetSkillsLoaded updates the loaded-skill gauge.
func (m *Metrics) SetSkillsLoaded(n int) {
	m.skillsLoaded.Set(float64(n))
}
