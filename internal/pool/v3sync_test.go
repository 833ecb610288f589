package pool

import (
	"context"
	"math/big"
	"testing"

	"github.com/ChoSanghyuk/dexarb/pkg/contractclient"
	"github.com/ChoSanghyuk/dexarb/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func v3Client(token0, token1 common.Address, fee int64, sqrtPrice int64, tick int64, liquidity int64) *fakeContractClient {
	return &fakeContractClient{
		results: map[string][]interface{}{
			"token0":    {token0},
			"token1":    {token1},
			"fee":       {big.NewInt(fee)},
			"liquidity": {big.NewInt(liquidity)},
			"slot0":     {big.NewInt(sqrtPrice), big.NewInt(tick)},
		},
	}
}

func algebraClient(token0, token1 common.Address, sqrtPrice, tick, liquidity, dynamicFee int64) *fakeContractClient {
	return &fakeContractClient{
		results: map[string][]interface{}{
			"token0":      {token0},
			"token1":      {token1},
			"liquidity":   {big.NewInt(liquidity)},
			"globalState": {big.NewInt(sqrtPrice), big.NewInt(tick), big.NewInt(dynamicFee)},
		},
	}
}

func TestV3Syncer_SyncAll_DiscoversAndPopulates(t *testing.T) {
	store := NewStore()
	poolAddr := common.HexToAddress("0xaaaa")
	token0 := common.HexToAddress("0x1111")
	token1 := common.HexToAddress("0x2222")

	cfg := V3PoolConfig{Address: poolAddr, Dex: types.UniswapV3Fee500, PairSymbol: "WETH/USDC"}
	clients := map[common.Address]contractclient.ContractClient{
		poolAddr: v3Client(token0, token1, 500, 123456, -1000, 999999),
	}
	erc20Clients := map[common.Address]contractclient.ContractClient{
		token0: erc20Client(18),
		token1: erc20Client(6),
	}

	syncer := NewV3Syncer(store, []V3PoolConfig{cfg}, clients, erc20Clients)
	err := syncer.SyncAll(context.Background(), 50)
	assert.NoError(t, err)

	got := store.GetV3(types.UniswapV3Fee500, "WETH/USDC")
	assert.NotNil(t, got)
	assert.Equal(t, token0, got.Token0)
	assert.Equal(t, uint32(500), got.Fee)
	assert.Equal(t, big.NewInt(123456), got.SqrtPriceX96)
	assert.Equal(t, int32(-1000), got.Tick)
	assert.Equal(t, big.NewInt(999999), got.Liquidity)
	assert.Equal(t, uint64(50), got.LastUpdatedBlock)
	assert.False(t, got.IsPhantom())
}

func TestV3Syncer_SyncAll_PhantomPoolDiscardedAtSync(t *testing.T) {
	store := NewStore()
	poolAddr := common.HexToAddress("0xaaaa")
	token0 := common.HexToAddress("0x1111")
	token1 := common.HexToAddress("0x2222")

	cfg := V3PoolConfig{Address: poolAddr, Dex: types.UniswapV3Fee3000, PairSymbol: "WETH/USDC"}
	clients := map[common.Address]contractclient.ContractClient{
		poolAddr: v3Client(token0, token1, 3000, 1, 0, 0),
	}
	erc20Clients := map[common.Address]contractclient.ContractClient{
		token0: erc20Client(18),
		token1: erc20Client(6),
	}

	syncer := NewV3Syncer(store, []V3PoolConfig{cfg}, clients, erc20Clients)
	err := syncer.SyncAll(context.Background(), 1)
	assert.NoError(t, err)

	// Zero-liquidity readings are discarded at sync time, not stored.
	got := store.GetV3(types.UniswapV3Fee3000, "WETH/USDC")
	assert.Nil(t, got)
}

func TestV3Syncer_SyncAll_PhantomReadingDoesNotClobberPriorGoodState(t *testing.T) {
	store := NewStore()
	poolAddr := common.HexToAddress("0xaaaa")
	token0 := common.HexToAddress("0x1111")
	token1 := common.HexToAddress("0x2222")

	good := &types.V3PoolState{
		Address:    poolAddr,
		Dex:        types.UniswapV3Fee3000,
		PairSymbol: "WETH/USDC",
		Token0:     token0,
		Token1:     token1,
		Liquidity:  big.NewInt(12345),
	}
	store.UpsertV3(good)

	cfg := V3PoolConfig{Address: poolAddr, Dex: types.UniswapV3Fee3000, PairSymbol: "WETH/USDC"}
	clients := map[common.Address]contractclient.ContractClient{
		poolAddr: v3Client(token0, token1, 3000, 1, 0, 0), // liquidity 0 this tick
	}
	erc20Clients := map[common.Address]contractclient.ContractClient{
		token0: erc20Client(18),
		token1: erc20Client(6),
	}

	syncer := NewV3Syncer(store, []V3PoolConfig{cfg}, clients, erc20Clients)
	err := syncer.SyncAll(context.Background(), 1)
	assert.NoError(t, err)

	got := store.GetV3(types.UniswapV3Fee3000, "WETH/USDC")
	assert.Equal(t, big.NewInt(12345), got.Liquidity)
}

func TestV3Syncer_SyncAll_AlgebraReadsDynamicFeeFromGlobalState(t *testing.T) {
	store := NewStore()
	poolAddr := common.HexToAddress("0xbbbb")
	token0 := common.HexToAddress("0x1111")
	token1 := common.HexToAddress("0x2222")

	cfg := V3PoolConfig{Address: poolAddr, Dex: types.QuickswapV3, PairSymbol: "WMATIC/USDC"}
	clients := map[common.Address]contractclient.ContractClient{
		poolAddr: algebraClient(token0, token1, 55555, 42, 1000, 1234),
	}
	erc20Clients := map[common.Address]contractclient.ContractClient{
		token0: erc20Client(18),
		token1: erc20Client(6),
	}

	syncer := NewV3Syncer(store, []V3PoolConfig{cfg}, clients, erc20Clients)
	err := syncer.SyncAll(context.Background(), 1)
	assert.NoError(t, err)

	got := store.GetV3(types.QuickswapV3, "WMATIC/USDC")
	assert.Equal(t, uint32(1234), got.Fee)
	assert.Equal(t, int32(42), got.Tick)
}

func TestV3Syncer_SyncAll_ReusesCachedImmutables(t *testing.T) {
	store := NewStore()
	poolAddr := common.HexToAddress("0xaaaa")
	token0 := common.HexToAddress("0x1111")
	token1 := common.HexToAddress("0x2222")

	store.UpsertV3(&types.V3PoolState{
		Address: poolAddr, Dex: types.UniswapV3Fee500, PairSymbol: "WETH/USDC",
		Token0: token0, Token1: token1, Token0Decimals: 18, Token1Decimals: 6, Fee: 500,
		SqrtPriceX96: big.NewInt(1), Liquidity: big.NewInt(1),
	})

	cfg := V3PoolConfig{Address: poolAddr, Dex: types.UniswapV3Fee500, PairSymbol: "WETH/USDC"}
	poolClient := v3Client(token0, token1, 500, 777, 5, 888)
	clients := map[common.Address]contractclient.ContractClient{poolAddr: poolClient}

	syncer := NewV3Syncer(store, []V3PoolConfig{cfg}, clients, nil)
	err := syncer.SyncAll(context.Background(), 300)
	assert.NoError(t, err)

	assert.NotContains(t, poolClient.calls, "token0")
	assert.NotContains(t, poolClient.calls, "fee")

	got := store.GetV3(types.UniswapV3Fee500, "WETH/USDC")
	assert.Equal(t, big.NewInt(777), got.SqrtPriceX96)
	assert.Equal(t, uint64(300), got.LastUpdatedBlock)
}

func TestV3Syncer_SyncAll_MissingClientIsSkippedNotFatal(t *testing.T) {
	store := NewStore()
	cfg := V3PoolConfig{Address: common.HexToAddress("0xdead"), Dex: types.UniswapV3Fee500, PairSymbol: "WETH/USDC"}

	syncer := NewV3Syncer(store, []V3PoolConfig{cfg}, map[common.Address]contractclient.ContractClient{}, nil)
	err := syncer.SyncAll(context.Background(), 1)
	assert.NoError(t, err)
	assert.Nil(t, store.GetV3(types.UniswapV3Fee500, "WETH/USDC"))
}
