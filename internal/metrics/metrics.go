// Package metrics provides Prometheus metrics for DataLens.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "datalens"
)

// Cache metrics
var (
	// CacheHitsTotal counts cache lookups served from the store.
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of query cache hits",
		},
	)

	// CacheMissesTotal counts lookups that fell through to the warehouse,
	// including expired entries and degraded reads.
	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of query cache misses",
		},
	)

	// CacheEvictionsTotal counts entries removed by TTL sweep or LRU eviction.
	CacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of cache entries evicted",
		},
		[]string{"reason"},
	)

	// CacheErrorsTotal counts storage faults degraded to misses or logged writes.
	CacheErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Total number of cache storage errors",
		},
		[]string{"op"},
	)
)

// Alert metrics
var (
	// AlertsCheckedTotal counts individual alert evaluations.
	AlertsCheckedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "checked_total",
			Help:      "Total number of alert evaluations",
		},
	)

	// AlertsTriggeredTotal counts evaluations whose condition was met.
	AlertsTriggeredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "triggered_total",
			Help:      "Total number of triggered alerts",
		},
	)

	// AlertErrorsTotal counts evaluations that failed.
	AlertErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "errors_total",
			Help:      "Total number of alert evaluation errors",
		},
	)
)

// Notification metrics
var (
	// NotificationsTotal counts notification attempts by channel and outcome.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Total number of notification attempts",
		},
		[]string{"channel", "outcome"},
	)
)

// Warehouse metrics
var (
	// WarehouseQueryDuration tracks warehouse query latency.
	WarehouseQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "warehouse",
			Name:      "query_duration_seconds",
			Help:      "Warehouse query latency in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// WarehouseErrorsTotal counts failed warehouse queries.
	WarehouseErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "warehouse",
			Name:      "errors_total",
			Help:      "Total number of failed warehouse queries",
		},
	)
)
