package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the core
type Metrics struct {
	ListingRequests     *prometheus.CounterVec
	ListingDuration     *prometheus.HistogramVec
	CacheHits           *prometheus.CounterVec
	CacheMisses         *prometheus.CounterVec
	CacheInvalidations  *prometheus.CounterVec
	CacheDegradations   prometheus.Counter
	SchedulingConflicts prometheus.Counter
	WriteRequests       *prometheus.CounterVec
}

// NewMetrics registers and returns the core metric collectors
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ListingRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hopital_listing_requests_total",
			Help: "Listing requests by entity type and caller role",
		}, []string{"entity", "role"}),

		ListingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hopital_listing_duration_seconds",
			Help:    "Listing request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"entity"}),

		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hopital_cache_hits_total",
			Help: "Result cache hits by entity type",
		}, []string{"entity"}),

		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hopital_cache_misses_total",
			Help: "Result cache misses by entity type",
		}, []string{"entity"}),

		CacheInvalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hopital_cache_invalidations_total",
			Help: "Full key-space invalidation sweeps by entity type",
		}, []string{"entity"}),

		CacheDegradations: factory.NewCounter(prometheus.CounterOpts{
			Name: "hopital_cache_degradations_total",
			Help: "Reads served from the store after a cache failure",
		}),

		SchedulingConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "hopital_scheduling_conflicts_total",
			Help: "Appointment writes rejected for overlapping intervals",
		}),

		WriteRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hopital_write_requests_total",
			Help: "Entity write requests by entity type and outcome",
		}, []string{"entity", "outcome"}),
	}
}
