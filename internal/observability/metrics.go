package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for Mlinzi.
// Uses a custom registry — no global state. Label values are restricted
// to op verbs, operation names, and outcome enums; never vault or item
// identifiers.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// op CLI invocation metrics.
	OpInvocationsTotal   *prometheus.CounterVec
	OpInvocationDuration *prometheus.HistogramVec

	// Broker operation metrics.
	BrokerOpsTotal *prometheus.CounterVec

	// Unlock session metrics. UnlockedItems is registered lazily via
	// RegisterUnlockedItemsGauge once the session exists.
	UnlocksTotal prometheus.Counter

	// Audit trail metrics.
	AuditEventsTotal *prometheus.CounterVec

	// Diagnostics HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// System metrics.
	ActiveRequests prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		OpInvocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mlinzi",
			Subsystem: "op",
			Name:      "invocations_total",
			Help:      "Total op CLI invocations.",
		}, []string{"verb", "status"}),

		OpInvocationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mlinzi",
			Subsystem: "op",
			Name:      "invocation_duration_seconds",
			Help:      "op CLI invocation duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"verb"}),

		BrokerOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mlinzi",
			Subsystem: "broker",
			Name:      "operations_total",
			Help:      "Total broker operations by outcome.",
		}, []string{"operation", "outcome"}),

		UnlocksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mlinzi",
			Subsystem: "session",
			Name:      "unlocks_total",
			Help:      "Total successful unlock operations.",
		}),

		AuditEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mlinzi",
			Subsystem: "audit",
			Name:      "events_total",
			Help:      "Total audit events recorded.",
		}, []string{"operation", "outcome"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mlinzi",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total diagnostics HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mlinzi",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Diagnostics HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mlinzi",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),
	}

	// Register all collectors.
	reg.MustRegister(
		m.OpInvocationsTotal,
		m.OpInvocationDuration,
		m.BrokerOpsTotal,
		m.UnlocksTotal,
		m.AuditEventsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
	)

	return m
}

// RegisterUnlockedItemsGauge exports the current unlock-session size as a
// gauge. The session is created after the collector, so this cannot happen
// in NewMetricsCollector.
func (m *MetricsCollector) RegisterUnlockedItemsGauge(count func() int) {
	m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "mlinzi",
		Subsystem: "session",
		Name:      "unlocked_items",
		Help:      "Items unlocked in the current session.",
	}, func() float64 { return float64(count()) }))
}
