package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FindsTotal counts finds by outcome (ok, syntax_error, execution_error).
	FindsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treefinder_finds_total",
			Help: "Total number of finds",
		},
		[]string{"result"},
	)
	// FindDuration is the latency of top-level finds, including nested ones.
	FindDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "treefinder_find_duration_seconds",
			Help:    "Find latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"total_mode"},
	)
	// QueriesTotal counts SQL statements executed by kind (rows, count).
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treefinder_queries_total",
			Help: "Total number of SQL statements executed by the finder",
		},
		[]string{"kind"},
	)
	// NestedFindsTotal counts finds run to resolve embedded selectors and paths.
	NestedFindsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "treefinder_nested_finds_total",
			Help: "Total number of nested finds",
		},
	)
	// AccessCacheLookups counts access predicate cache lookups by result (hit, miss).
	AccessCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treefinder_access_cache_lookups_total",
			Help: "Access predicate cache lookups",
		},
		[]string{"result"},
	)
	// RequestTotal counts HTTP requests by method, path and status.
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treefinder_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	// RequestDuration is the latency of HTTP requests.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "treefinder_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
