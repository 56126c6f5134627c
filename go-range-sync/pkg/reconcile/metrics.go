package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics
var (
	cacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rangesync_cache_hits_total",
			Help: "Reads served from the reconciled view cache",
		},
	)
	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rangesync_cache_misses_total",
			Help: "Reads that needed a fetch-and-merge (forced or stale)",
		},
	)
	sharedFetches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rangesync_shared_fetches_total",
			Help: "Reads whose result came from a fetch shared with concurrent callers",
		},
	)
	degradedViews = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rangesync_degraded_views_total",
			Help: "Views built from assignments only because the gateway was unavailable",
		},
	)
	reconcileFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rangesync_reconcile_failures_total",
			Help: "Refreshes that failed because assignments could not be read",
		},
	)
	prunedAssignments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rangesync_pruned_assignments_total",
			Help: "Assignments removed because the gateway no longer reports their target",
		},
	)
	invalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rangesync_cache_invalidations_total",
			Help: "Times the cached view was dropped",
		},
	)
	fetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rangesync_fetch_duration_seconds",
			Help:    "Duration of the concurrent assignment and target reads",
			Buckets: prometheus.DefBuckets,
		},
	)
)
