package pool

import (
	"math/big"
	"testing"

	"github.com/ChoSanghyuk/dexarb/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func v2State(dex types.DexVariant, symbol string, block uint64) *types.V2PoolState {
	return &types.V2PoolState{
		Address:          common.HexToAddress("0x1"),
		Dex:              dex,
		PairSymbol:       symbol,
		Reserve0:         big.NewInt(1000),
		Reserve1:         big.NewInt(2000),
		Token0Decimals:   18,
		Token1Decimals:   6,
		LastUpdatedBlock: block,
	}
}

func v3State(dex types.DexVariant, symbol string, block uint64) *types.V3PoolState {
	return &types.V3PoolState{
		Address:          common.HexToAddress("0x2"),
		Dex:              dex,
		PairSymbol:       symbol,
		SqrtPriceX96:     big.NewInt(12345),
		Tick:             -1000,
		Liquidity:        big.NewInt(999),
		LastUpdatedBlock: block,
	}
}

func TestStore_UpsertAndGetV2(t *testing.T) {
	s := NewStore()
	assert.Nil(t, s.GetV2(types.QuickswapV2, "WETH/USDC"))

	st := v2State(types.QuickswapV2, "WETH/USDC", 100)
	s.UpsertV2(st)

	got := s.GetV2(types.QuickswapV2, "WETH/USDC")
	assert.Same(t, st, got)

	assert.Nil(t, s.GetV2(types.SushiswapV2, "WETH/USDC"))
}

func TestStore_UpsertAndGetV3(t *testing.T) {
	s := NewStore()
	assert.Nil(t, s.GetV3(types.UniswapV3Fee500, "WETH/USDC"))

	st := v3State(types.UniswapV3Fee500, "WETH/USDC", 200)
	s.UpsertV3(st)

	got := s.GetV3(types.UniswapV3Fee500, "WETH/USDC")
	assert.Same(t, st, got)
}

func TestStore_UpsertReplacesWholesale(t *testing.T) {
	s := NewStore()
	s.UpsertV2(v2State(types.QuickswapV2, "WETH/USDC", 100))

	replacement := v2State(types.QuickswapV2, "WETH/USDC", 101)
	replacement.Reserve0 = big.NewInt(5555)
	s.UpsertV2(replacement)

	got := s.GetV2(types.QuickswapV2, "WETH/USDC")
	assert.Equal(t, uint64(101), got.LastUpdatedBlock)
	assert.Equal(t, big.NewInt(5555), got.Reserve0)
}

func TestStore_GetAllV2ForPair(t *testing.T) {
	s := NewStore()
	s.UpsertV2(v2State(types.QuickswapV2, "WETH/USDC", 1))
	s.UpsertV2(v2State(types.SushiswapV2, "WETH/USDC", 2))
	s.UpsertV2(v2State(types.ApeswapV2, "WMATIC/USDC", 3))

	all := s.GetAllV2ForPair("WETH/USDC")
	assert.Len(t, all, 2)

	none := s.GetAllV2ForPair("UNKNOWN/PAIR")
	assert.Empty(t, none)
}

func TestStore_GetAllV3ForPair(t *testing.T) {
	s := NewStore()
	s.UpsertV3(v3State(types.UniswapV3Fee500, "WETH/USDC", 1))
	s.UpsertV3(v3State(types.UniswapV3Fee3000, "WETH/USDC", 2))
	s.UpsertV3(v3State(types.SushiV3Fee500, "WMATIC/USDC", 3))

	all := s.GetAllV3ForPair("WETH/USDC")
	assert.Len(t, all, 2)
}

func TestStore_IterateAll(t *testing.T) {
	s := NewStore()
	s.UpsertV2(v2State(types.QuickswapV2, "WETH/USDC", 1))
	s.UpsertV2(v2State(types.SushiswapV2, "WETH/USDC", 2))
	s.UpsertV3(v3State(types.UniswapV3Fee500, "WETH/USDC", 3))

	var v2Count, v3Count int
	s.IterateAll(
		func(*types.V2PoolState) { v2Count++ },
		func(*types.V3PoolState) { v3Count++ },
	)

	assert.Equal(t, 2, v2Count)
	assert.Equal(t, 1, v3Count)
}

func TestStore_IterateAll_NilCallbacks(t *testing.T) {
	s := NewStore()
	s.UpsertV2(v2State(types.QuickswapV2, "WETH/USDC", 1))

	assert.NotPanics(t, func() {
		s.IterateAll(nil, nil)
	})
}

func TestStore_CombinedStats_Empty(t *testing.T) {
	s := NewStore()
	stats := s.CombinedStats()
	assert.Equal(t, Stats{}, stats)
}

func TestStore_CombinedStats(t *testing.T) {
	s := NewStore()
	s.UpsertV2(v2State(types.QuickswapV2, "WETH/USDC", 100))
	s.UpsertV2(v2State(types.SushiswapV2, "WETH/USDC", 150))
	s.UpsertV3(v3State(types.UniswapV3Fee500, "WETH/USDC", 50))
	s.UpsertV3(v3State(types.UniswapV3Fee3000, "WETH/USDC", 200))

	stats := s.CombinedStats()
	assert.Equal(t, 2, stats.V2Count)
	assert.Equal(t, 2, stats.V3Count)
	assert.Equal(t, uint64(50), stats.MinBlock)
	assert.Equal(t, uint64(200), stats.MaxBlock)
}

func TestStore_CombinedStats_V2Only(t *testing.T) {
	s := NewStore()
	s.UpsertV2(v2State(types.QuickswapV2, "WETH/USDC", 10))
	s.UpsertV2(v2State(types.SushiswapV2, "WETH/USDC", 30))

	stats := s.CombinedStats()
	assert.Equal(t, uint64(10), stats.MinBlock)
	assert.Equal(t, uint64(30), stats.MaxBlock)
	assert.Zero(t, stats.V3Count)
}

func TestStore_CombinedStats_V3Only(t *testing.T) {
	s := NewStore()
	s.UpsertV3(v3State(types.UniswapV3Fee500, "WETH/USDC", 10))
	s.UpsertV3(v3State(types.UniswapV3Fee3000, "WETH/USDC", 30))

	stats := s.CombinedStats()
	assert.Equal(t, uint64(10), stats.MinBlock)
	assert.Equal(t, uint64(30), stats.MaxBlock)
	assert.Zero(t, stats.V2Count)
}
