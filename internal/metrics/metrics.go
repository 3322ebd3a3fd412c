// Package metrics exposes Prometheus counters and histograms for booking,
// enrichment and HTTP traffic. A nil *Metrics is a valid no-op recorder.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeCreated  = "created"
	OutcomeConflict = "conflict"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"

	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeTimeout = "timeout"
)

type Metrics struct {
	bookingsTotal      *prometheus.CounterVec
	statusChangesTotal *prometheus.CounterVec
	enrichmentTotal    *prometheus.CounterVec
	enrichmentLatency  prometheus.Histogram
	httpRequestsTotal  *prometheus.CounterVec
	httpLatency        *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "create_total",
			Help:      "Appointment create attempts by outcome",
		}, []string{"outcome"}),
		statusChangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "status_change_total",
			Help:      "Appointment status transitions",
		}, []string{"from", "to"}),
		enrichmentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "enrichment",
			Name:      "lookups_total",
			Help:      "Weather enrichment lookups by outcome",
		}, []string{"outcome"}),
		enrichmentLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "enrichment",
			Name:      "latency_seconds",
			Help:      "Latency of weather enrichment during booking",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.bookingsTotal,
		m.statusChangesTotal,
		m.enrichmentTotal,
		m.enrichmentLatency,
		m.httpRequestsTotal,
		m.httpLatency,
	)
	return m
}

func (m *Metrics) RecordBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordStatusChange(from, to string) {
	if m == nil {
		return
	}
	m.statusChangesTotal.WithLabelValues(from, to).Inc()
}

// RecordEnrichment counts a lookup; latency is only observed for lookups that ran.
func (m *Metrics) RecordEnrichment(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.enrichmentTotal.WithLabelValues(outcome).Inc()
	if took > 0 {
		m.enrichmentLatency.Observe(took.Seconds())
	}
}

func (m *Metrics) ObserveHTTP(method, route string, code int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(took.Seconds())
}
