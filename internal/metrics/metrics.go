// Package metrics exposes the Prometheus collectors the daemon (cmd/arbd)
// reports against. RoutesOnCooldown and RoutesBlacklisted are defined here,
// but nothing in the daemon sets them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OpportunitiesFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dexarb",
		Name:      "opportunities_found_total",
		Help:      "Arbitrage opportunities surfaced by the detector, by pair.",
	}, []string{"pair"})

	OpportunitiesPassedScreen = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dexarb",
		Name:      "opportunities_passed_screen_total",
		Help:      "Opportunities that survived the batch quoter pre-screen, by pair.",
	}, []string{"pair"})

	TradesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dexarb",
		Name:      "trades_executed_total",
		Help:      "Executor attempts, partitioned by mode and outcome.",
	}, []string{"mode", "outcome"})

	TradeProfitUSD = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dexarb",
		Name:      "trade_profit_usd",
		Help:      "Realized profit in USD per successful trade.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	RoutesOnCooldown = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dexarb",
		Name:      "routes_on_cooldown",
		Help:      "Number of routes currently serving a cooldown window.",
	})

	RoutesBlacklisted = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dexarb",
		Name:      "routes_blacklisted",
		Help:      "Number of routes permanently blacklisted after repeated max-cooldown failures.",
	})

	PreScreenBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dexarb",
		Name:      "prescreen_batch_size",
		Help:      "Number of candidate opportunities in each aggregate3 pre-screen batch.",
		Buckets:   prometheus.LinearBuckets(1, 2, 10),
	})

	PoolStoreSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dexarb",
		Name:      "pool_store_size",
		Help:      "Number of pools currently tracked in the shared store, by AMM kind.",
	}, []string{"kind"})

	PendingSwapsSimulated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dexarb",
		Name:      "pending_swaps_simulated_total",
		Help:      "Mempool-observed swaps successfully decoded and simulated.",
	})

	ConfirmationLeadTime = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dexarb",
		Name:      "confirmation_lead_time_seconds",
		Help:      "Time between first mempool sighting and block confirmation.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})
)

// ObservePoolStoreStats publishes a pool.Stats-shaped reading; called
// periodically from the sync loop rather than on every tick of every pool.
func ObservePoolStoreStats(v2Count, v3Count int) {
	PoolStoreSize.WithLabelValues("v2").Set(float64(v2Count))
	PoolStoreSize.WithLabelValues("v3").Set(float64(v3Count))
}
