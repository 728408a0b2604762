// Package metrics exposes Prometheus collectors for upstream calls and scan
// runs. All methods are safe on a nil *Metrics so components can run without
// instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	graphqlRequests *prometheus.CounterVec
	scanRuns        *prometheus.CounterVec
	lastScan        *prometheus.GaugeVec
	scanDuration    prometheus.Histogram
	notifications   *prometheus.CounterVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		graphqlRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ftarb",
			Name:      "graphql_requests_total",
			Help:      "42.space GraphQL requests by operation and result.",
		}, []string{"op", "result"}),
		scanRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ftarb",
			Name:      "scan_runs_total",
			Help:      "Completed scan runs by estimation method.",
		}, []string{"method"}),
		lastScan: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ftarb",
			Name:      "last_scan_markets",
			Help:      "Market counts of the most recent scan run.",
		}, []string{"kind"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ftarb",
			Name:      "scan_duration_seconds",
			Help:      "Wall time of scan runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ftarb",
			Name:      "notifications_total",
			Help:      "Notification deliveries by sender and result.",
		}, []string{"sender", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.graphqlRequests,
		m.scanRuns,
		m.lastScan,
		m.scanDuration,
		m.notifications,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (used by tests).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveGraphQL counts one GraphQL request.
func (m *Metrics) ObserveGraphQL(op string, err error) {
	if m == nil {
		return
	}
	m.graphqlRequests.WithLabelValues(op, result(err)).Inc()
}

// ObserveScan records a finished scan run.
func (m *Metrics) ObserveScan(method string, seconds float64, total, liquid, matched, opportunities int) {
	if m == nil {
		return
	}
	m.scanRuns.WithLabelValues(method).Inc()
	m.scanDuration.Observe(seconds)
	m.lastScan.WithLabelValues("total").Set(float64(total))
	m.lastScan.WithLabelValues("liquid").Set(float64(liquid))
	m.lastScan.WithLabelValues("matched").Set(float64(matched))
	m.lastScan.WithLabelValues("opportunities").Set(float64(opportunities))
}

// ObserveNotification counts one notification delivery attempt.
func (m *Metrics) ObserveNotification(sender string, err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(sender, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
