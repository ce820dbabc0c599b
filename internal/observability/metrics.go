package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported at /metrics.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	classifierCalls *prometheus.CounterVec
	bulkUpdated     prometheus.Counter
}

// NewMetrics registers collectors on a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_errors_total",
				Help: "Error responses by route, method and error code",
			},
			[]string{"route", "method", "code"},
		),
		classifierCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classifier_calls_total",
				Help: "Classifier collaborator calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		bulkUpdated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tickets_bulk_updated_total",
				Help: "Tickets changed through bulk updates",
			},
		),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordClassifierCall counts one classifier call outcome.
func (m *Metrics) RecordClassifierCall(operation, outcome string) {
	if m == nil {
		return
	}
	m.classifierCalls.WithLabelValues(operation, outcome).Inc()
}

// RecordBulkUpdate adds the number of tickets changed by a bulk update.
func (m *Metrics) RecordBulkUpdate(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.bulkUpdated.Add(float64(count))
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
