// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application. One instance
// is created at process start and passed to the components that record
// into it.
type Metrics struct {
	// Trade feed metrics
	TradeEventsProcessed prometheus.Counter
	StreamConnects       prometheus.Counter
	StreamDisconnects    prometheus.Counter
	StreamGiveUps        prometheus.Counter
	CachedMints          prometheus.Gauge

	// Reconciliation metrics
	Reconciliations *prometheus.CounterVec

	// Scheduler metrics
	JobRuns     *prometheus.CounterVec
	JobDuration prometheus.Histogram

	// Oracle metrics
	PriceFetches prometheus.Counter

	// Trade execution metrics
	TradesSubmitted    *prometheus.CounterVec
	TradeConfirmations *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
// on the default registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_launchpad"
	}

	return &Metrics{
		TradeEventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "trade_events_processed_total",
			Help:      "Total number of trade events parsed from the feed",
		}),
		StreamConnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "stream_connects_total",
			Help:      "Total number of successful feed connections",
		}),
		StreamDisconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "stream_disconnects_total",
			Help:      "Total number of feed disconnects",
		}),
		StreamGiveUps: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "stream_give_ups_total",
			Help:      "Times the feed exhausted its reconnect budget",
		}),
		CachedMints: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "cached_mints",
			Help:      "Number of mints with a cached live valuation",
		}),

		Reconciliations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "reconciliations_total",
			Help:      "Reconciliations by valuation source and outcome",
		}, []string{"source", "outcome"}),

		JobRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Update cycles by final status",
		}, []string{"status"}),
		JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Update cycle duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		PriceFetches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "price_fetches_total",
			Help:      "Total number of quote API requests issued",
		}),

		TradesSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "trades_submitted_total",
			Help:      "Trades submitted to the execution API by side",
		}, []string{"side"}),
		TradeConfirmations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "trade_confirmations_total",
			Help:      "Trade confirmation poll outcomes",
		}, []string{"outcome"}),
	}
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
