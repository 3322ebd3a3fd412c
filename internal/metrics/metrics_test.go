package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordBooking(OutcomeCreated)
	m.RecordBooking(OutcomeConflict)
	m.RecordBooking(OutcomeConflict)
	m.RecordStatusChange("PENDING", "CANCELED")
	m.RecordEnrichment(OutcomeOK, 120*time.Millisecond)
	m.RecordEnrichment(OutcomeSkipped, 0)
	m.ObserveHTTP("POST", "/appointments", 201, 30*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.bookingsTotal.WithLabelValues(OutcomeCreated)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookingsTotal.WithLabelValues(OutcomeConflict)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.statusChangesTotal.WithLabelValues("PENDING", "CANCELED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("POST", "/appointments", "201")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.enrichmentLatency))
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.RecordBooking(OutcomeCreated)
	m.RecordStatusChange("PENDING", "CONFIRMED")
	m.RecordEnrichment(OutcomeTimeout, time.Second)
	m.ObserveHTTP("GET", "/health/live", 200, time.Millisecond)
}
