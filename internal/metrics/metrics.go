// Package metrics holds the Prometheus collectors of the chat server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatbot_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	// Chat relay metrics
	ChatStreams = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_chat_streams_total",
			Help: "Total relayed chat streams by outcome",
		},
		[]string{"outcome"}, // "completed", "provider_error", "rejected"
	)

	ChatChunks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatbot_chat_chunks_total",
			Help: "Total text chunks relayed to clients",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_rate_limit_hits_total",
			Help: "Total requests rejected by the rate limiter",
		},
		[]string{"endpoint"},
	)
)
