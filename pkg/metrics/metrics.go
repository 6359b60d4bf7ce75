package metrics

import (
	"time"
)

// RecordCPTOperation records a CPT library operation
func (r *Registry) RecordCPTOperation(operation, status string) {
	r.CPTOperationsTotal.WithLabelValues(operation, status).Inc()
}

// SetCPTRecords updates the per-status record gauges
func (r *Registry) SetCPTRecords(draft, validated, approved int) {
	r.CPTRecordsTotal.WithLabelValues("draft").Set(float64(draft))
	r.CPTRecordsTotal.WithLabelValues("validated").Set(float64(validated))
	r.CPTRecordsTotal.WithLabelValues("approved").Set(float64(approved))
}

// RecordNetworkBuild records a network compilation
func (r *Registry) RecordNetworkBuild(status string, duration time.Duration, cacheHit bool) {
	r.NetworkBuildsTotal.WithLabelValues(status).Inc()
	if cacheHit {
		r.NetworkBuildCacheHits.Inc()
		return
	}
	r.NetworkBuildCacheMisses.Inc()
	r.NetworkBuildDuration.Observe(duration.Seconds())
}

// RecordInference records one inference execution with its evidence
// statistics
func (r *Registry) RecordInference(networkName, status string, duration time.Duration, completeness float64, fallbackNodes int) {
	r.InferencesTotal.WithLabelValues(networkName, status).Inc()
	r.InferenceDuration.WithLabelValues(networkName).Observe(duration.Seconds())
	r.EvidenceCompleteness.Observe(completeness)
	r.FallbackNodesPerQuery.Observe(float64(fallbackNodes))

	if status == "timeout" {
		r.InferenceTimeouts.Inc()
	}
}

// RecordEvaluation records a scored end-to-end evaluation
func (r *Registry) RecordEvaluation(typology, status string, esiScore float64, esiLabel string) {
	r.EvaluationsTotal.WithLabelValues(typology, status).Inc()
	if status == "success" {
		r.ESIScores.Observe(esiScore)
		r.ESILabelsTotal.WithLabelValues(esiLabel).Inc()
	}
}
