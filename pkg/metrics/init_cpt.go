package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initCPTMetrics() {
	r.CPTOperationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "korinsic_cpt_operations_total",
			Help: "Total number of CPT library operations",
		},
		[]string{"operation", "status"},
	)

	r.CPTRecordsTotal = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "korinsic_cpt_records_total",
			Help: "Number of CPT records held by lifecycle status",
		},
		[]string{"status"},
	)

	r.CPTValidationErrors = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "korinsic_cpt_validation_errors_total",
			Help: "Total number of CPT structural validation failures",
		},
	)
}
