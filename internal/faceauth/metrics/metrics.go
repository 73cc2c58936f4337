package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the face authentication pipeline.
type Metrics struct {
	// Pipeline outcomes by attempt type and result
	AttemptOutcome *prometheus.CounterVec

	// Full pipeline latency by attempt type
	PipelineLatency *prometheus.HistogramVec

	// Replay verdicts by result
	ReplayChecks *prometheus.CounterVec

	// Similarity of the best index match on verification
	TopSimilarity prometheus.Histogram

	// Index backend calls by operation and result
	IndexCalls *prometheus.CounterVec
}

// New creates a Metrics instance with all pipeline metrics registered.
func New() *Metrics {
	return &Metrics{
		AttemptOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "facegate_attempt_outcomes_total",
			Help: "Total pipeline outcomes by attempt type and result",
		}, []string{"type", "result"}), // result: "success" or the failure reason

		PipelineLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "facegate_pipeline_duration_seconds",
			Help:    "Duration of full enrollment/verification pipeline runs",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"type"}),

		ReplayChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "facegate_replay_checks_total",
			Help: "Total replay verdicts",
		}, []string{"verdict"}), // verdict: "clean", "replay"

		TopSimilarity: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "facegate_top_similarity",
			Help:    "Cosine similarity of the best index match on verification",
			Buckets: prometheus.LinearBuckets(0, 0.05, 21),
		}),

		IndexCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "facegate_index_calls_total",
			Help: "Total similarity index calls by operation and result",
		}, []string{"op", "result"}), // result: "ok", "error"
	}
}

// IncrementOutcome records a pipeline outcome.
func (m *Metrics) IncrementOutcome(attemptType, result string) {
	if m != nil {
		m.AttemptOutcome.WithLabelValues(attemptType, result).Inc()
	}
}

// ObservePipelineLatency records a full pipeline run duration.
func (m *Metrics) ObservePipelineLatency(attemptType string, d time.Duration) {
	if m != nil {
		m.PipelineLatency.WithLabelValues(attemptType).Observe(d.Seconds())
	}
}

// IncrementReplayCheck records a replay verdict.
func (m *Metrics) IncrementReplayCheck(verdict string) {
	if m != nil {
		m.ReplayChecks.WithLabelValues(verdict).Inc()
	}
}

// ObserveTopSimilarity records the best match similarity of a verification.
func (m *Metrics) ObserveTopSimilarity(similarity float64) {
	if m != nil {
		m.TopSimilarity.Observe(similarity)
	}
}

// IncrementIndexCall records an index backend call.
func (m *Metrics) IncrementIndexCall(op, result string) {
	if m != nil {
		m.IndexCalls.WithLabelValues(op, result).Inc()
	}
}
