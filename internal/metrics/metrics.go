package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatrelay_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	UsersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_users_registered_total",
			Help: "Total users registered",
		},
	)

	MessagesStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_messages_stored_total",
			Help: "Total messages persisted",
		},
		[]string{"role"},
	)

	StreamsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_streams_started_total",
			Help: "Total completion streams opened",
		},
	)

	StreamsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_streams_completed_total",
			Help: "Total completion streams ended",
		},
		[]string{"outcome"}, // "completed", "provider_error", "client_gone"
	)

	StreamLockConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_stream_lock_conflicts_total",
			Help: "Total submissions rejected because a stream was already in flight",
		},
	)

	ProviderOpenLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatrelay_provider_open_latency_seconds",
			Help:    "Latency of opening a completion stream",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
