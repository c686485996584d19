// Package metrics holds the prometheus collectors of the drive index.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Query kinds used as label values.
const (
	QueryBatch    = "batch"
	QueryModified = "modified"
)

// Write results used as label values.
const (
	ResultOK       = "ok"
	ResultConflict = "conflict"
	ResultNotFound = "not_found"
	ResultInvalid  = "invalid"
	ResultError    = "error"
)

var (
	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "driveindex_writes_total",
		Help: "Write operations against the drive index by operation and result.",
	}, []string{"op", "result"})

	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "driveindex_queries_total",
		Help: "Queries executed by kind.",
	}, []string{"kind"})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "driveindex_query_duration_seconds",
		Help:    "Query latency by kind, including the top-up pass.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	queryRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "driveindex_query_rows_total",
		Help: "Rows returned by queries by kind.",
	}, []string{"kind"})

	queryTopUpsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driveindex_query_topups_total",
		Help: "Batch queries that ran the extra pass above an advanced boundary.",
	})

	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driveindex_cache_hits_total",
		Help: "Point lookups served from the record cache.",
	})

	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driveindex_cache_misses_total",
		Help: "Point lookups that went to the database.",
	})
)

func ObserveWrite(op, result string) {
	writesTotal.WithLabelValues(op, result).Inc()
}

func ObserveQuery(kind string, started time.Time, rows int) {
	queriesTotal.WithLabelValues(kind).Inc()
	queryDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
	queryRowsTotal.WithLabelValues(kind).Add(float64(rows))
}

func ObserveTopUp() {
	queryTopUpsTotal.Inc()
}

func CacheHit() {
	cacheHitsTotal.Inc()
}

func CacheMiss() {
	cacheMissesTotal.Inc()
}
