// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logrelay_http_requests_total",
			Help: "Total HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logrelay_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logrelay_uploads_total",
			Help: "Upload attempts that reached the relay stage, by content type and outcome.",
		},
		[]string{"content_type", "status"},
	)

	RelayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logrelay_relay_duration_seconds",
			Help:    "Latency of calls to the messaging API by method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logrelay_rate_limited_total",
		Help: "Requests rejected by the per-client rate limiter.",
	})

	RateLimitKeys = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "logrelay_rate_limit_keys",
		Help: "Client keys currently tracked by the rate limiter.",
	})
)
