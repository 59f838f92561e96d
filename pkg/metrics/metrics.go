// Package metrics defines the Prometheus instrumentation for the collection
// pipeline. Metrics are registered via promauto on the default registry; the
// collect command exposes them on an optional scrape endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts upstream API requests by endpoint and HTTP status
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hazmate_requests_total",
		Help: "Upstream API requests by endpoint and HTTP status",
	}, []string{"endpoint", "status"})

	// RequestDuration observes upstream request latency by endpoint
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hazmate_request_duration_seconds",
		Help:    "Upstream request duration by endpoint",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	// ItemsCollected counts items inserted into the accumulator by category
	ItemsCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hazmate_items_collected_total",
		Help: "Items inserted into the result set by category",
	}, []string{"category"})

	// ItemsDuplicate counts offers rejected as already seen
	ItemsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hazmate_items_duplicate_total",
		Help: "Item offers rejected as duplicates",
	})

	// ItemsDropped counts items dropped by reason (schema, not_found)
	ItemsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hazmate_items_dropped_total",
		Help: "Items dropped by reason",
	}, []string{"reason"})

	// RateLimitHits counts 429 responses observed by the scheduler
	RateLimitHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hazmate_rate_limit_hits_total",
		Help: "Rate limited fetches observed by the scheduler",
	})

	// BackoffSeconds observes scheduler backoff pauses
	BackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hazmate_backoff_seconds",
		Help:    "Scheduler backoff pause durations",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
	})

	// CredentialRenewals counts token refresh exchanges by outcome
	CredentialRenewals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hazmate_credential_renewals_total",
		Help: "Credential renewal exchanges by outcome",
	}, []string{"outcome"})

	// PagesFetched counts discovery pages consumed
	PagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hazmate_pages_fetched_total",
		Help: "Discovery pages consumed by the scheduler",
	})
)
