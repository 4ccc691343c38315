// Package metrics holds the process-wide Prometheus collectors served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Enrichment sources.
const (
	SourceCache    = "cache"
	SourceBackend  = "backend"
	SourceFallback = "fallback"
)

var (
	RosterPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_roster_passes_total",
		Help: "Roster reconciliation passes by outcome.",
	}, []string{"outcome"})

	RosterPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rollcall_roster_pass_duration_seconds",
		Help:    "Wall time of one reconciliation pass.",
		Buckets: prometheus.DefBuckets,
	})

	Enrichments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_enrichments_total",
		Help: "Entity detail lookups by where the details came from.",
	}, []string{"source"})

	DroppedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_dropped_records_total",
		Help: "Records dropped because no identifier could be resolved.",
	}, []string{"kind"})

	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_backend_requests_total",
		Help: "Calls to the school backend by endpoint and status class.",
	}, []string{"endpoint", "status"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_http_requests_total",
		Help: "API requests by route, method and status code.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rollcall_http_request_duration_seconds",
		Help:    "API request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)
