package metrics_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/BrandonDHaskell/checkin/internal/checkin/metrics"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.IncCompletion(metrics.OutcomeCompleted)
		m.IncResolution("phone")
		m.IncAuditWriteFailure()
		m.SetAuditGap(3)
		m.AddAuditBackfilled(3)
		m.IncRateLimited("http")
		m.ObserveHTTP(http.MethodGet, "/healthz", http.StatusOK, time.Millisecond)
		m.TrackInFlight(1)
	})
}

func TestMetricsRecord(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.IncCompletion(metrics.OutcomeCompleted)
	m.IncCompletion(metrics.OutcomeConflict)
	m.IncCompletion(metrics.OutcomeConflict)
	m.IncAuditWriteFailure()
	m.SetAuditGap(4)
	m.ObserveHTTP(http.MethodPost, "POST /v1/scan/complete", http.StatusConflict, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompletionOutcome.WithLabelValues(metrics.OutcomeCompleted)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CompletionOutcome.WithLabelValues(metrics.OutcomeConflict)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditWriteFailures))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.AuditGap))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodPost, "POST /v1/scan/complete", "409")))
}
