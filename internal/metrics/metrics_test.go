package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObservePoolStoreStats_SetsGaugesByKind(t *testing.T) {
	ObservePoolStoreStats(42, 7)

	assert.Equal(t, float64(42), testutil.ToFloat64(PoolStoreSize.WithLabelValues("v2")))
	assert.Equal(t, float64(7), testutil.ToFloat64(PoolStoreSize.WithLabelValues("v3")))
}

func TestOpportunitiesFound_IncrementsByPairLabel(t *testing.T) {
	before := testutil.ToFloat64(OpportunitiesFound.WithLabelValues("WETH/USDC"))
	OpportunitiesFound.WithLabelValues("WETH/USDC").Inc()
	after := testutil.ToFloat64(OpportunitiesFound.WithLabelValues("WETH/USDC"))

	assert.Equal(t, before+1, after)
}

func TestTradesExecuted_PartitionsByModeAndOutcome(t *testing.T) {
	before := testutil.ToFloat64(TradesExecuted.WithLabelValues("atomic", "success"))
	TradesExecuted.WithLabelValues("atomic", "success").Inc()
	after := testutil.ToFloat64(TradesExecuted.WithLabelValues("atomic", "success"))

	assert.Equal(t, before+1, after)
	// A different outcome label is an independent series.
	assert.Equal(t, float64(0), testutil.ToFloat64(TradesExecuted.WithLabelValues("legacy", "capital_committed")))
}

func TestTradeProfitUSD_ObservationKeepsMetricFamilyCount(t *testing.T) {
	countBefore := testutil.CollectAndCount(TradeProfitUSD)
	TradeProfitUSD.Observe(12.5)
	countAfter := testutil.CollectAndCount(TradeProfitUSD)

	assert.Equal(t, countBefore, countAfter) // CollectAndCount counts metric families, not samples
}

func TestRoutesOnCooldown_GaugeSetAndRead(t *testing.T) {
	RoutesOnCooldown.Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(RoutesOnCooldown))

	RoutesOnCooldown.Set(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(RoutesOnCooldown))
}
