// Package metrics exposes the engine's Prometheus collectors. The API server
// mounts promhttp on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_cycles_total",
			Help: "Total number of completed trading cycles.",
		},
	)

	SignalsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_signals_generated_total",
			Help: "Total number of signals generated (by strategy).",
		},
		[]string{"strategy"},
	)

	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_orders_submitted_total",
			Help: "Total number of orders submitted (by strategy and terminal status).",
		},
		[]string{"strategy", "status"},
	)

	OrdersRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_orders_rejected_total",
			Help: "Total number of orders rejected by an internal gate (by strategy).",
		},
		[]string{"strategy"},
	)

	PositionsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_positions_open",
			Help: "Current number of open positions per strategy.",
		},
		[]string{"strategy"},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_account_equity",
			Help: "Last known account equity (AvailableFunds).",
		},
	)

	DataFetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_data_fetch_errors_total",
			Help: "Market-data fetch failures after retries (by symbol).",
		},
		[]string{"symbol"},
	)

	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_marketdata_cache_hits_total",
			Help: "Market-data cache hits.",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_marketdata_cache_misses_total",
			Help: "Market-data cache misses.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		CyclesTotal,
		SignalsGenerated,
		OrdersSubmitted,
		OrdersRejected,
		PositionsOpen,
		EquityGauge,
		DataFetchErrors,
		CacheHits,
		CacheMisses,
	)
}
