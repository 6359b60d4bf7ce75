package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initESIMetrics() {
	r.ESIScores = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "korinsic_esi_score",
			Help:    "Evidence sufficiency scores across evaluations",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.65, 0.75, 0.85, 0.95},
		},
	)

	r.ESILabelsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "korinsic_esi_labels_total",
			Help: "Evaluations by evidence sufficiency band",
		},
		[]string{"label"},
	)

	r.EvaluationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "korinsic_evaluations_total",
			Help: "Total end-to-end evaluations by typology and status",
		},
		[]string{"typology", "status"},
	)
}
