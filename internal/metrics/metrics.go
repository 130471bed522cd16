// Package metrics holds the Prometheus collectors shared by the runner,
// the worker pool and the API server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for sandboxes and grading jobs.
// All metrics use the testbox_ namespace. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	VerdictsTotal    *prometheus.CounterVec
	TestDuration     *prometheus.HistogramVec
	RespawnsTotal    *prometheus.CounterVec
	InitsTotal       *prometheus.CounterVec
	LiveContexts     prometheus.Gauge
	JobsTotal        *prometheus.CounterVec
	RateLimitedTotal prometheus.Counter
	WSConnections    prometheus.Gauge
}

// New creates and registers the metrics on reg. Returns nil if reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		VerdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "testbox",
			Subsystem: "sandbox",
			Name:      "verdicts_total",
			Help:      "Test verdicts by evaluator kind and outcome.",
		}, []string{"kind", "outcome"}),

		TestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "testbox",
			Subsystem: "sandbox",
			Name:      "test_duration_seconds",
			Help:      "Time from posting a test to receiving its verdict.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"kind"}),

		RespawnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "testbox",
			Subsystem: "sandbox",
			Name:      "respawns_total",
			Help:      "Evaluators destroyed and rebuilt after a test timed out.",
		}, []string{"kind"}),

		InitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "testbox",
			Subsystem: "sandbox",
			Name:      "inits_total",
			Help:      "Evaluator inits by kind and status.",
		}, []string{"kind", "status"}),

		LiveContexts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "testbox",
			Subsystem: "sandbox",
			Name:      "live_contexts",
			Help:      "Isolated contexts created and not yet disposed.",
		}),

		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "testbox",
			Subsystem: "grading",
			Name:      "jobs_total",
			Help:      "Grading jobs by final status.",
		}, []string{"status"}),

		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "testbox",
			Subsystem: "api",
			Name:      "rate_limited_total",
			Help:      "Submissions rejected by the rate limiter.",
		}),

		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "testbox",
			Subsystem: "api",
			Name:      "ws_connections",
			Help:      "Open verdict streaming connections.",
		}),
	}

	reg.MustRegister(
		m.VerdictsTotal,
		m.TestDuration,
		m.RespawnsTotal,
		m.InitsTotal,
		m.LiveContexts,
		m.JobsTotal,
		m.RateLimitedTotal,
		m.WSConnections,
	)

	return m
}

// ObserveVerdict records one finished test.
func (m *Metrics) ObserveVerdict(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.VerdictsTotal.WithLabelValues(kind, outcome).Inc()
	m.TestDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// Respawned records a timeout recovery.
func (m *Metrics) Respawned(kind string) {
	if m == nil {
		return
	}
	m.RespawnsTotal.WithLabelValues(kind).Inc()
}

// Initialized records an init attempt.
func (m *Metrics) Initialized(kind string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.InitsTotal.WithLabelValues(kind, status).Inc()
}

// SetLiveContexts reports the number of live isolated contexts.
func (m *Metrics) SetLiveContexts(n int) {
	if m == nil {
		return
	}
	m.LiveContexts.Set(float64(n))
}

// JobFinished records a grading job by status (passed, failed, error).
func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(status).Inc()
}

// RateLimited records a rejected submission.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

// WSConnected adjusts the open connection gauge by delta.
func (m *Metrics) WSConnected(delta int) {
	if m == nil {
		return
	}
	m.WSConnections.Add(float64(delta))
}
