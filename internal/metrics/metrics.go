// Package metrics exposes the pipeline's Prometheus collectors. All
// recording methods are safe on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "venue_signal"

// Metrics holds every collector the service exports.
type Metrics struct {
	tierRuns        *prometheus.CounterVec
	tierDuration    *prometheus.HistogramVec
	tierLastSuccess *prometheus.GaugeVec
	events          *prometheus.CounterVec
	overrides       prometheus.Counter
	acqFailures     prometheus.Counter
	analysisFailed  *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
	jobsInFlight    prometheus.Gauge
	searches        *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tierRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_runs_total",
			Help:      "Tier invocations by outcome.",
		}, []string{"tier", "outcome"}),
		tierDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tier_run_duration_seconds",
			Help:      "Wall time of tier invocations.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"tier"}),
		tierLastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tier_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful invocation per tier.",
		}, []string{"tier"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Events handled by tier invocations.",
		}, []string{"tier", "result"}),
		overrides: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overrides_total",
			Help:      "Events cancelled by a venue override.",
		}),
		acqFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisition_failures_total",
			Help:      "Fetches that ended with no data after retries.",
		}),
		analysisFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_failures_total",
			Help:      "Analyses replaced by the neutral result.",
		}, []string{"backend"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open).",
		}, []string{"upstream"}),
		jobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_jobs_in_flight",
			Help:      "Tier jobs currently executing.",
		}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Read-path requests by kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.tierRuns,
		m.tierDuration,
		m.tierLastSuccess,
		m.events,
		m.overrides,
		m.acqFailures,
		m.analysisFailed,
		m.breakerState,
		m.jobsInFlight,
		m.searches,
	)
	return m
}

// ObserveTierRun records one invocation.
func (m *Metrics) ObserveTierRun(tier string, success bool, processed, failed int, d time.Duration, at time.Time) {
	if m == nil {
		return
	}
	outcome := "failed"
	if success {
		outcome = "success"
		m.tierLastSuccess.WithLabelValues(tier).Set(float64(at.Unix()))
	}
	m.tierRuns.WithLabelValues(tier, outcome).Inc()
	m.tierDuration.WithLabelValues(tier).Observe(d.Seconds())
	m.events.WithLabelValues(tier, "ok").Add(float64(processed))
	m.events.WithLabelValues(tier, "failed").Add(float64(failed))
}

func (m *Metrics) IncOverride() {
	if m == nil {
		return
	}
	m.overrides.Inc()
}

func (m *Metrics) IncAcquisitionFailure() {
	if m == nil {
		return
	}
	m.acqFailures.Inc()
}

func (m *Metrics) IncAnalysisFailure(backend string) {
	if m == nil {
		return
	}
	m.analysisFailed.WithLabelValues(backend).Inc()
}

// SetBreakerState stores a numeric breaker state for upstream.
func (m *Metrics) SetBreakerState(upstream string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(upstream).Set(float64(state))
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.jobsInFlight.Inc()
}

func (m *Metrics) JobFinished() {
	if m == nil {
		return
	}
	m.jobsInFlight.Dec()
}

func (m *Metrics) IncSearch(kind string) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(kind).Inc()
}
