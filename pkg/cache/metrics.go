package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks chunk results served from Redis
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "idmap_cache_hits_total",
			Help: "Total number of chunk results served from cache",
		},
	)

	// CacheMisses tracks lookups that found nothing usable
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "idmap_cache_misses_total",
			Help: "Total number of chunk cache misses",
		},
	)

	// CacheEntryBytes tracks the size of stored entries
	CacheEntryBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "idmap_cache_entry_bytes",
			Help:    "Size of cached chunk results in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idmap_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
