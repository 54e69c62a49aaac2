// Package metrics holds the Prometheus collectors for the check-in engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Completion outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeConflict  = "conflict"
	OutcomeNotFound  = "not_found"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

type Metrics struct {
	CompletionOutcome  *prometheus.CounterVec
	Resolutions        *prometheus.CounterVec
	AuditWriteFailures prometheus.Counter
	AuditGap           prometheus.Gauge
	AuditBackfilled    prometheus.Counter
	RateLimited        *prometheus.CounterVec

	HTTPInFlight  prometheus.Gauge
	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
}

// New registers every collector with reg. Pass prometheus.NewRegistry() in
// tests so repeated construction does not collide.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CompletionOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_completions_total",
			Help: "CompleteItem calls by outcome",
		}, []string{"outcome"}),

		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_resolutions_total",
			Help: "Participant resolutions by the lookup that matched",
		}, []string{"via"}), // phone, token, miss

		AuditWriteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "checkin_audit_write_failures_total",
			Help: "Completion log appends that failed after the allocation was completed",
		}),

		AuditGap: f.NewGauge(prometheus.GaugeOpts{
			Name: "checkin_audit_gap",
			Help: "Completed allocations without a completion log entry at the last reconcile",
		}),

		AuditBackfilled: f.NewCounter(prometheus.CounterOpts{
			Name: "checkin_audit_backfilled_total",
			Help: "Completion log entries written by the reconciler",
		}),

		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_rate_limited_total",
			Help: "Scan requests rejected by the per-device limiter",
		}, []string{"transport"}),

		HTTPInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "checkin_http_in_flight_requests",
			Help: "In-flight HTTP requests",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),

		HTTPDurations: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "checkin_http_request_duration_seconds",
			Help:    "HTTP request latencies by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) IncCompletion(outcome string) {
	if m != nil {
		m.CompletionOutcome.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncResolution(via string) {
	if m != nil {
		m.Resolutions.WithLabelValues(via).Inc()
	}
}

func (m *Metrics) IncAuditWriteFailure() {
	if m != nil {
		m.AuditWriteFailures.Inc()
	}
}

func (m *Metrics) SetAuditGap(n int) {
	if m != nil {
		m.AuditGap.Set(float64(n))
	}
}

func (m *Metrics) AddAuditBackfilled(n int) {
	if m != nil {
		m.AuditBackfilled.Add(float64(n))
	}
}

func (m *Metrics) IncRateLimited(transport string) {
	if m != nil {
		m.RateLimited.WithLabelValues(transport).Inc()
	}
}

// ObserveHTTP records one finished request. route is the mux pattern, not
// the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDurations.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) TrackInFlight(delta float64) {
	if m != nil {
		m.HTTPInFlight.Add(delta)
	}
}
