// Package metrics registers the Prometheus metrics used by the assistant.
// The collectors are registered with the default registry at import time, so
// the /metrics handler sees them as soon as any package touches them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Chat-level counters and histograms.
var (
	// ChatRequestsTotal counts finished chat turns labelled by answer source
	// ("OpenRouter", "Gemini", "Local Intelligence", "Guard", "System", "Direct"),
	// model, and outcome ("success", "error", "cached").
	ChatRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistme_chat_requests_total",
			Help: "Total number of chat turns processed.",
		},
		[]string{"source", "model", "status"},
	)

	// ChatDuration observes end-to-end chat latency in seconds.
	ChatDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistme_chat_duration_seconds",
			Help:    "End-to-end chat turn duration in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 90},
		},
		[]string{"source", "stream"},
	)

	// CacheLookups counts response cache lookups by cache name and result
	// ("hit", "miss").
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistme_cache_lookups_total",
			Help: "Response cache lookups by result.",
		},
		[]string{"cache", "result"},
	)

	// RateLimitRejections counts requests rejected by the sliding-window limiter.
	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assistme_rate_limit_rejections_total",
			Help: "Total requests rejected by rate limiting.",
		},
	)

	// StreamRetries counts transient upstream failures that restarted a stream.
	StreamRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistme_stream_retries_total",
			Help: "Streaming generations restarted after a transient error.",
		},
		[]string{"provider"},
	)

	// InjectionBlocks counts messages refused by the prompt-injection guard.
	InjectionBlocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assistme_injection_blocks_total",
			Help: "Messages refused by the prompt-injection guard.",
		},
	)

	// ProviderErrors counts upstream errors broken down by provider and error
	// type ("status", "transient", "circuit_open", "other").
	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistme_provider_errors_total",
			Help: "Total provider errors by type.",
		},
		[]string{"provider", "error_type"},
	)

	// CircuitBreakerState tracks per-provider circuit breaker state as a gauge:
	// 0 = closed, 1 = open, 2 = half_open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "assistme_circuit_breaker_state",
			Help: "Circuit breaker state per provider (0=closed 1=open 2=half_open).",
		},
		[]string{"provider"},
	)

	// ContactSubmissions counts contact form submissions by outcome.
	ContactSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistme_contact_submissions_total",
			Help: "Contact form submissions by outcome.",
		},
		[]string{"status"},
	)
)
