// Package metrics exposes the engine's Prometheus instrumentation: CPT
// lifecycle counters, network build timings and cache hits, inference
// latency, and ESI score distributions.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the engine
type Registry struct {
	// CPT Library Metrics
	CPTOperationsTotal  *prometheus.CounterVec
	CPTRecordsTotal     *prometheus.GaugeVec
	CPTValidationErrors prometheus.Counter

	// Network Builder Metrics
	NetworkBuildsTotal      *prometheus.CounterVec
	NetworkBuildDuration    prometheus.Histogram
	NetworkBuildCacheHits   prometheus.Counter
	NetworkBuildCacheMisses prometheus.Counter
	NetworkNodesTotal       *prometheus.HistogramVec

	// Inference Metrics
	InferencesTotal       *prometheus.CounterVec
	InferenceDuration     *prometheus.HistogramVec
	InferenceTimeouts     prometheus.Counter
	EvidenceCompleteness  prometheus.Histogram
	FallbackNodesPerQuery prometheus.Histogram

	// ESI Metrics
	ESIScores        prometheus.Histogram
	ESILabelsTotal   *prometheus.CounterVec
	EvaluationsTotal *prometheus.CounterVec

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initCPTMetrics()
	r.initNetworkMetrics()
	r.initInferenceMetrics()
	r.initESIMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
