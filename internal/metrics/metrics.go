// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tollgate_tokens_issued_total",
			Help: "Total number of access tokens issued",
		},
		[]string{"grant_type", "token_type"},
	)

	TokenRequestsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tollgate_token_requests_rejected_total",
			Help: "Total number of token requests rejected",
		},
		[]string{"grant_type", "status"},
	)

	VerifierFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tollgate_verifier_failures_total",
			Help: "Transaction verifier failures by mapped status",
		},
		[]string{"operation", "status"},
	)

	UsageIncrements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tollgate_usage_increments_total",
			Help: "Total number of usage increments applied",
		},
		[]string{"product_id"},
	)

	UsageUnits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tollgate_usage_units_total",
			Help: "Usage units recorded by direction",
		},
		[]string{"product_id", "direction"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tollgate_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
