// Package metrics holds the prometheus instrumentation for the
// traversal engine, grounded in the pack's pkg/metrics use of
// promauto for registration-free counters/gauges/histograms.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TraversalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depgraph_traversals_total",
			Help: "Total number of traversals run, labeled by view.",
		},
		[]string{"view"},
	)

	TraversalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "depgraph_traversal_duration_seconds",
			Help:    "Wall-clock duration of a traversal pass, labeled by view.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"view"},
	)

	ViewCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "depgraph_view_cache_hits_total",
			Help: "Total number of path-cache lookups that hit an existing entry.",
		},
	)

	ViewCacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "depgraph_view_cache_misses_total",
			Help: "Total number of path-cache lookups that found no entry.",
		},
	)

	CyclesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depgraph_cycles_detected_total",
			Help: "Total number of cycles detected during a traversal, labeled by view.",
		},
		[]string{"view"},
	)

	RegisteredViews = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "depgraph_registered_views",
			Help: "Current number of registered views.",
		},
	)
)
