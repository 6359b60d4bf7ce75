package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initNetworkMetrics() {
	r.NetworkBuildsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "korinsic_network_builds_total",
			Help: "Total number of network compilations",
		},
		[]string{"status"},
	)

	r.NetworkBuildDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "korinsic_network_build_duration_seconds",
			Help:    "Network compilation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
	)

	r.NetworkBuildCacheHits = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "korinsic_network_build_cache_hits_total",
			Help: "Total number of build requests served from the cache",
		},
	)

	r.NetworkBuildCacheMisses = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "korinsic_network_build_cache_misses_total",
			Help: "Total number of build requests that compiled from scratch",
		},
	)

	r.NetworkNodesTotal = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "korinsic_network_nodes",
			Help:    "Number of nodes per compiled network",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"kind"},
	)
}
