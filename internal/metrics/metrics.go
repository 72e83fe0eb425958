// Package metrics holds the Prometheus collectors the gateway exposes at
// GET /metrics. Grounded on metrics/metrics.go's promauto vector style.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_http_requests_total",
		Help: "Total number of HTTP requests handled by the gateway.",
	}, []string{"method", "path", "status"})

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})

	ProxyDeniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_proxy_denied_total",
		Help: "Total number of proxy requests denied by policy.",
	}, []string{"reason"})

	UsageTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_usage_tokens_total",
		Help: "Total number of tokens recorded per model.",
	}, []string{"model"})

	QuotaQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_quota_queue_depth",
		Help: "Current length of a durable QuotaStore list queue.",
	}, []string{"queue"})
)
