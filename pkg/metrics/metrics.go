// Package metrics exposes Prometheus counters for commands, operations and the result cache.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation outcomes
const (
	OutcomeDone   = "done"
	OutcomeCached = "cached"
	OutcomeFailed = "failed"
)

// Metrics holds Prometheus counters and gauges. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	commandsTotal     *prometheus.CounterVec
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	cacheLookups      *prometheus.CounterVec
	activeSessions    prometheus.Gauge
	requestsTotal     prometheus.Counter
	errorsTotal       prometheus.Counter
}

// New creates and registers the metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	commandsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vidioai_commands_total",
		Help: "Commands parsed, by intent kind",
	}, []string{"kind"})
	operationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vidioai_operations_total",
		Help: "Media operations finished, by operator and outcome",
	}, []string{"operator", "outcome"})
	operationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vidioai_operation_duration_seconds",
		Help:    "Wall time of media operations",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"operator"})
	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vidioai_cache_lookups_total",
		Help: "Result cache lookups, by result (hit or miss)",
	}, []string{"result"})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vidioai_active_sessions",
		Help: "Number of open editing sessions",
	})
	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vidioai_http_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vidioai_http_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})

	registry.MustRegister(
		commandsTotal,
		operationsTotal,
		operationDuration,
		cacheLookups,
		activeSessions,
		requestsTotal,
		errorsTotal,
	)

	return &Metrics{
		registry:          registry,
		commandsTotal:     commandsTotal,
		operationsTotal:   operationsTotal,
		operationDuration: operationDuration,
		cacheLookups:      cacheLookups,
		activeSessions:    activeSessions,
		requestsTotal:     requestsTotal,
		errorsTotal:       errorsTotal,
	}
}

// IncCommand counts a parsed command.
func (m *Metrics) IncCommand(kind string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(kind).Inc()
}

// ObserveOperation records a finished operation.
func (m *Metrics) ObserveOperation(operator, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operator, outcome).Inc()
	m.operationDuration.WithLabelValues(operator).Observe(seconds)
}

// IncCacheLookup counts a cache hit or miss.
func (m *Metrics) IncCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
