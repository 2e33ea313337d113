// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

// Package metrics provides Prometheus instrumentation for the import
// pipeline, the statistics cache, and the HTTP boundary.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Import pipeline metrics
	ImportJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundledger_import_jobs_total",
			Help: "Total number of import jobs by terminal state",
		},
		[]string{"state", "source"}, // state: done, failed; source: api, file
	)

	ImportedEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "soundledger_imported_events_total",
			Help: "Total number of listening events newly inserted by imports",
		},
	)

	DeduplicatedEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "soundledger_deduplicated_events_total",
			Help: "Total number of listening events skipped as duplicates",
		},
	)

	MalformedRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "soundledger_malformed_records_total",
			Help: "Total number of upstream records skipped as malformed",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "soundledger_source_rate_limit_hits_total",
			Help: "Total number of rate-limit responses from the streaming service",
		},
	)

	ImportPageDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "soundledger_import_page_duration_seconds",
			Help:    "Duration of one fetch-and-commit page cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Statistics cache metrics
	StatsCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "soundledger_stats_cache_hits_total",
			Help: "Total number of statistics cache hits",
		},
	)

	StatsCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "soundledger_stats_cache_misses_total",
			Help: "Total number of statistics cache misses",
		},
	)

	StatsCacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "soundledger_stats_cache_invalidations_total",
			Help: "Total number of per-user cache invalidations",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "soundledger_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// HTTP metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "soundledger_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "soundledger_api_active_requests",
			Help: "Number of API requests currently being served",
		},
	)
)

// RecordAPIRequest records the duration of a completed API request.
func RecordAPIRequest(method, path, status string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the active request gauge.
func TrackActiveRequest(active bool) {
	if active {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
