// Package metrics provides Prometheus instrumentation for the fulfillment
// engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FulfillmentsTotal counts processed transactions by source platform
	// and outcome (delivered, pending_manual, failed, refunded).
	FulfillmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_transactions_total",
		Help: "Processed arbitrage transactions by platform and outcome",
	}, []string{"platform", "outcome"})

	// ProcessingDuration tracks end-to-end strategy execution time.
	ProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fulfillment_processing_duration_seconds",
		Help:    "Fulfillment processing duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"platform"})

	// RefundsTotal counts refund attempts by outcome (succeeded, failed).
	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_refunds_total",
		Help: "Refund attempts by outcome",
	}, []string{"outcome"})

	// ManualQueueDepth tracks pending manual fulfillment tasks.
	ManualQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fulfillment_manual_queue_depth",
		Help: "Pending manual fulfillment tasks",
	})

	// NegativeMarginTotal counts dispatches where the source price exceeds
	// the listing price.
	NegativeMarginTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_negative_margin_total",
		Help: "Dispatched listings whose source price exceeds the sale price",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
