// Package metrics exposes the engine's Prometheus instruments. promauto
// registers them on the default registry; the HTTP adapter serves /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests by method, path and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kairos_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures server response time.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kairos_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	// StoreOperationsTotal counts graph store calls by operation and result.
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kairos_store_operations_total",
			Help: "Total number of graph store operations",
		},
		[]string{"operation", "result"},
	)

	// ExtractionTokensTotal counts LLM tokens by provider and direction.
	ExtractionTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kairos_extraction_tokens_total",
			Help: "Total LLM tokens consumed by extraction calls",
		},
		[]string{"provider", "direction"},
	)

	// ExtractionCostUSD accumulates estimated LLM spend per provider.
	ExtractionCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kairos_extraction_cost_usd_total",
			Help: "Estimated cumulative LLM spend in USD",
		},
		[]string{"provider"},
	)
)

// ObserveStoreOp records one store call outcome.
func ObserveStoreOp(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	StoreOperationsTotal.WithLabelValues(operation, result).Inc()
}
