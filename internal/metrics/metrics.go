// Package metrics exposes the orchestrator's Prometheus instrumentation.
//
// Scoped to the handful of signals this engine actually produces: request
// volume and latency by mode and outcome, permanent credential-eviction
// counts, and model-task outcomes from ParallelExecutor. Grounded on the
// registration/observation shape of the teacher's internal/observability.
// Metrics, trimmed to this domain rather than carrying its channel/
// webhook/database label set, which this engine has no use for.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every counter and histogram the orchestrator records.
type Metrics struct {
	// RequestsTotal counts completed requests by agent mode and outcome
	// (ok|error).
	RequestsTotal *prometheus.CounterVec

	// RequestDuration measures end-to-end request latency in seconds, by
	// agent mode.
	RequestDuration *prometheus.HistogramVec

	// KeyEvictionsTotal counts permanent credential evictions, by the
	// classifier reason that triggered them.
	KeyEvictionsTotal *prometheus.CounterVec

	// ModelTaskOutcomes counts individual ParallelExecutor task outcomes, by
	// model name and outcome (success|retried|dropped).
	ModelTaskOutcomes *prometheus.CounterVec

	// SummariesExecuted counts how often the summarisation pre-step
	// actually compressed history.
	SummariesExecuted prometheus.Counter
}

// New creates and registers every metric against reg. Pass
// prometheus.NewRegistry() to avoid the global default registry's
// cross-test collisions (serve does the same and serves that registry on
// /metrics); with a nil reg the metrics are created but not registered.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_requests_total",
				Help: "Total number of orchestration requests by agent mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_request_duration_seconds",
				Help:    "End-to-end request duration in seconds by agent mode",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 40, 80},
			},
			[]string{"mode"},
		),
		KeyEvictionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_key_evictions_total",
				Help: "Total number of credentials permanently evicted from a request's key pool",
			},
			[]string{"reason"},
		),
		ModelTaskOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_model_task_outcomes_total",
				Help: "Total number of parallel fan-out task outcomes by model and outcome",
			},
			[]string{"model", "outcome"},
		),
		SummariesExecuted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "orchestrator_summaries_executed_total",
				Help: "Total number of requests where history summarisation ran",
			},
		),
	}
}

// RecordRequest records one completed request's outcome and duration.
func (m *Metrics) RecordRequest(mode, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(mode, outcome).Inc()
	m.RequestDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordKeyEviction records one permanent credential eviction.
func (m *Metrics) RecordKeyEviction(reason string) {
	if m == nil {
		return
	}
	m.KeyEvictionsTotal.WithLabelValues(reason).Inc()
}

// RecordModelTaskOutcome records one model task's terminal or retry outcome.
func (m *Metrics) RecordModelTaskOutcome(model, outcome string) {
	if m == nil {
		return
	}
	m.ModelTaskOutcomes.WithLabelValues(model, outcome).Inc()
}

// RecordSummaryExecuted records that the summarisation pre-step compressed
// history for a request.
func (m *Metrics) RecordSummaryExecuted() {
	if m == nil {
		return
	}
	m.SummariesExecuted.Inc()
}
