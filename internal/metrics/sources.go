package metrics

import "github.com/prometheus/client_golang/prometheus"

// Definition source metrics.
var (
	DefinitionCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "definition_cache_total",
			Help:      "Definition cache lookups by source and result",
		},
		[]string{"source", "result"}, // "hit" / "miss"
	)

	SourceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Requests sent to external definition sources by HTTP status",
		},
		[]string{"source", "status"},
	)

	SourceRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_retries_total",
			Help:      "Requests retried after a rate limit response",
		},
		[]string{"source"},
	)

	SourceRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "External definition source request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source"},
	)
)
