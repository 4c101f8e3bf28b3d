// Package metrics exposes the Edge and Forge processes' counters to
// Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CapturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartpixl",
		Subsystem: "edge",
		Name:      "captures_total",
		Help:      "Total capture requests handled, by outcome.",
	}, []string{"outcome"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "smartpixl",
		Subsystem: "edge",
		Name:      "queue_depth",
		Help:      "Current depth of the Edge's in-process capture queue.",
	})

	QueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "smartpixl",
		Subsystem: "edge",
		Name:      "queue_dropped_total",
		Help:      "Total records dropped from the capture queue when full.",
	})

	ClassifierDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "smartpixl",
		Subsystem: "forge",
		Name:      "classifier_duration_seconds",
		Help:      "Per-classifier execution time within the enrichment chain.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"classifier"})

	WarehouseBatchRows = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "smartpixl",
		Subsystem: "forge",
		Name:      "warehouse_batch_rows",
		Help:      "Row count of batches flushed to the warehouse.",
		Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000},
	})

	WarehouseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "smartpixl",
		Subsystem: "forge",
		Name:      "warehouse_write_failures_total",
		Help:      "Total warehouse batch writes that failed after retry.",
	})

	CircuitBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "smartpixl",
		Subsystem: "forge",
		Name:      "warehouse_circuit_state",
		Help:      "Warehouse circuit breaker state: 0=closed, 1=half-open, 2=open.",
	})
)

// Handler returns the standard Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
