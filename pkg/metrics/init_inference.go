package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initInferenceMetrics() {
	r.InferencesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "korinsic_inferences_total",
			Help: "Total number of inference executions",
		},
		[]string{"network", "status"},
	)

	r.InferenceDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "korinsic_inference_duration_seconds",
			Help:    "Inference execution duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		},
		[]string{"network"},
	)

	r.InferenceTimeouts = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "korinsic_inference_timeouts_total",
			Help: "Total number of inferences aborted by deadline",
		},
	)

	r.EvidenceCompleteness = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "korinsic_evidence_completeness",
			Help:    "Fraction of evidence nodes with direct observations per request",
			Buckets: []float64{0.1, 0.25, 0.5, 0.75, 0.9, 1.0},
		},
	)

	r.FallbackNodesPerQuery = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "korinsic_fallback_nodes_per_query",
			Help:    "Number of evidence nodes completed from fallback priors per request",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
		},
	)
}
