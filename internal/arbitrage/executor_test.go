package arbitrage

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ChoSanghyuk/dexarb/pkg/contractclient"
	"github.com/ChoSanghyuk/dexarb/pkg/types"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
)

type fakeExecClient struct {
	address  common.Address
	sendHash common.Hash
	sendErr  error
}

func (f *fakeExecClient) ContractAddress() common.Address { return f.address }
func (f *fakeExecClient) Abi() abi.ABI                     { return abi.ABI{} }
func (f *fakeExecClient) Call(*common.Address, string, ...interface{}) ([]interface{}, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeExecClient) Send(types.TxType, *uint64, *common.Address, *ecdsa.PrivateKey, string, ...interface{}) (common.Hash, error) {
	return f.sendHash, f.sendErr
}
func (f *fakeExecClient) TransactionData(common.Hash) ([]byte, error) { return nil, nil }
func (f *fakeExecClient) DecodeTransaction([]byte) (*contractclient.DecodedTransaction, error) {
	return nil, nil
}
func (f *fakeExecClient) ParseReceipt(*types.TxReceipt) (string, error) { return "", nil }

type fakeTxListener struct {
	receipt *types.TxReceipt
	err     error
}

func (f *fakeTxListener) WaitForTransaction(common.Hash) (*types.TxReceipt, error) {
	return f.receipt, f.err
}

func arbExecutedLog(profit, amountOut *big.Int) types.ReceiptLog {
	topic0 := crypto.Keccak256Hash([]byte(arbExecutedSignature))
	data := make([]byte, 192)
	amountOut.FillBytes(data[32:64])
	profit.FillBytes(data[64:96])
	return types.ReceiptLog{Topics: []common.Hash{topic0}, Data: data}
}

func testExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		ExecutorAddress: common.HexToAddress("0xe1"),
		Routers: RouterMap{
			types.QuickswapV2: common.HexToAddress("0xrouter1"),
			types.SushiswapV2: common.HexToAddress("0xrouter2"),
		},
		QuoteDecimals:       6,
		NativeTokenPriceUSD: 0.5,
		SlippagePct:         1,
	}
}

func testVerifiedOpportunity() types.VerifiedOpportunity {
	return types.VerifiedOpportunity{
		ArbitrageOpportunity: types.ArbitrageOpportunity{
			Pair: "WETH/USDC", BuyDex: types.QuickswapV2, SellDex: types.SushiswapV2,
			QuoteToken: common.HexToAddress("0xaa"), BaseToken: common.HexToAddress("0xbb"),
			QuoteTokenIsToken0: true, TradeSizeRaw: big.NewInt(1_000_000), MinProfitUSD: 10,
			BuyPrice: big.NewFloat(2000), SellPrice: big.NewFloat(2010),
			Token0Decimals: 6, Token1Decimals: 18,
		},
		BothLegsValid: true,
		SellQuotedOut: big.NewInt(500_000_000_000_000_000),
	}
}

func TestExecutor_Execute_CooledDownRouteRejectedImmediately(t *testing.T) {
	cooldown := NewCooldownStore(CooldownConfig{InitialCooldown: 10, MaxCooldown: 100, EscalationFactor: 5})
	route := types.Route{PairSymbol: "WETH/USDC", BuyDex: types.QuickswapV2, SellDex: types.SushiswapV2}
	cooldown.RecordFailure(route, 100)

	e := NewExecutor(testExecutorConfig(), &fakeExecClient{}, nil, &fakeTxListener{}, common.HexToAddress("0xme"), nil, cooldown)
	result := e.Execute(nil, testVerifiedOpportunity(), 105)

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Error, ErrBlacklisted)
}

func TestExecutor_ExecuteAtomic_Success(t *testing.T) {
	cooldown := NewCooldownStore(CooldownConfig{InitialCooldown: 10, MaxCooldown: 100, EscalationFactor: 5})
	txHash := common.HexToHash("0xabc")
	client := &fakeExecClient{sendHash: txHash}
	listener := &fakeTxListener{receipt: &types.TxReceipt{
		Status: "0x1",
		Logs:   []types.ReceiptLog{arbExecutedLog(big.NewInt(50_000_000), big.NewInt(1_050_000))},
		GasUsed: "0x5208", EffectiveGasPrice: "0x3b9aca00",
	}}

	e := NewExecutor(testExecutorConfig(), client, nil, listener, common.HexToAddress("0xme"), nil, cooldown)
	result := e.Execute(nil, testVerifiedOpportunity(), 1)

	assert.True(t, result.Success)
	assert.NoError(t, result.Error)
	assert.Equal(t, &txHash, result.TxHash)
	assert.InDelta(t, 50.0, result.ProfitUSD, 0.0001) // 50_000_000 / 1e6 decimals
	assert.Greater(t, result.GasCostUSD, 0.0)
}

func TestExecutor_ExecuteAtomic_SendRejectionRecordsFailure(t *testing.T) {
	cooldown := NewCooldownStore(CooldownConfig{InitialCooldown: 10, MaxCooldown: 100, EscalationFactor: 5})
	client := &fakeExecClient{sendErr: errors.New("InsufficientProfit")}

	e := NewExecutor(testExecutorConfig(), client, nil, &fakeTxListener{}, common.HexToAddress("0xme"), nil, cooldown)
	result := e.Execute(nil, testVerifiedOpportunity(), 100)

	assert.False(t, result.Success)
	assert.Nil(t, result.TxHash)

	route := types.Route{PairSymbol: "WETH/USDC", BuyDex: types.QuickswapV2, SellDex: types.SushiswapV2}
	assert.True(t, cooldown.IsCooledDown(route, 105))
}

func TestExecutor_ExecuteAtomic_OnChainRevertIsRetryableNotHalting(t *testing.T) {
	cooldown := NewCooldownStore(CooldownConfig{InitialCooldown: 10, MaxCooldown: 100, EscalationFactor: 5})
	txHash := common.HexToHash("0xdef")
	client := &fakeExecClient{sendHash: txHash}
	listener := &fakeTxListener{receipt: &types.TxReceipt{Status: "0x0"}}

	e := NewExecutor(testExecutorConfig(), client, nil, listener, common.HexToAddress("0xme"), nil, cooldown)
	result := e.Execute(nil, testVerifiedOpportunity(), 100)

	assert.False(t, result.Success)
	assert.Equal(t, &txHash, result.TxHash)
	assert.False(t, errors.Is(result.Error, ErrCapitalCommitted))
	assert.False(t, errors.Is(result.Error, ErrAmbiguousOutcome))

	// executeArb is atomic: a revert unwinds the whole call, so no capital
	// moved and the route backs off like any other pre-trade rejection.
	route := types.Route{PairSymbol: "WETH/USDC", BuyDex: types.QuickswapV2, SellDex: types.SushiswapV2}
	assert.True(t, cooldown.IsCooledDown(route, 105))
}

func TestExecutor_ExecuteAtomic_ReceiptTimeoutIsAmbiguousOutcome(t *testing.T) {
	cooldown := NewCooldownStore(CooldownConfig{InitialCooldown: 10, MaxCooldown: 100, EscalationFactor: 5})
	txHash := common.HexToHash("0xdef")
	client := &fakeExecClient{sendHash: txHash}
	listener := &fakeTxListener{err: errors.New("timed out waiting for receipt")}

	e := NewExecutor(testExecutorConfig(), client, nil, listener, common.HexToAddress("0xme"), nil, cooldown)
	result := e.Execute(nil, testVerifiedOpportunity(), 100)

	assert.False(t, result.Success)
	assert.Equal(t, &txHash, result.TxHash)
	assert.ErrorIs(t, result.Error, ErrAmbiguousOutcome)

	// Unconfirmed outcome: never backed off like a normal retryable failure.
	route := types.Route{PairSymbol: "WETH/USDC", BuyDex: types.QuickswapV2, SellDex: types.SushiswapV2}
	assert.False(t, cooldown.IsCooledDown(route, 105))
}

func TestExecutor_ExecuteAtomic_MissingRouterConfig(t *testing.T) {
	cfg := testExecutorConfig()
	delete(cfg.Routers, types.SushiswapV2)
	cooldown := NewCooldownStore(CooldownConfig{InitialCooldown: 10, MaxCooldown: 100, EscalationFactor: 5})

	e := NewExecutor(cfg, &fakeExecClient{}, nil, &fakeTxListener{}, common.HexToAddress("0xme"), nil, cooldown)
	result := e.Execute(nil, testVerifiedOpportunity(), 1)

	assert.False(t, result.Success)
	assert.Error(t, result.Error)
}

func TestExecutor_ExecuteLegacy_RequiresBothLegsValid(t *testing.T) {
	cfg := ExecutorConfig{QuoteDecimals: 6, SlippagePct: 1}
	cooldown := NewCooldownStore(CooldownConfig{InitialCooldown: 10, MaxCooldown: 100, EscalationFactor: 5})
	e := NewExecutor(cfg, nil, map[types.DexVariant]contractclient.ContractClient{}, &fakeTxListener{}, common.HexToAddress("0xme"), nil, cooldown)

	opp := testVerifiedOpportunity()
	opp.BothLegsValid = false

	result := e.Execute(nil, opp, 1)
	assert.False(t, result.Success)
	assert.Nil(t, result.TxHash)
}

func TestExecutor_ExecuteLegacy_BuyLegRejectionIsPreTradeFailure(t *testing.T) {
	cfg := ExecutorConfig{QuoteDecimals: 6, SlippagePct: 1}
	cooldown := NewCooldownStore(CooldownConfig{InitialCooldown: 10, MaxCooldown: 100, EscalationFactor: 5})
	v2Routers := map[types.DexVariant]contractclient.ContractClient{
		types.QuickswapV2: &fakeExecClient{sendErr: errors.New("slippage")},
		types.SushiswapV2: &fakeExecClient{},
	}
	e := NewExecutor(cfg, nil, v2Routers, &fakeTxListener{}, common.HexToAddress("0xme"), nil, cooldown)

	result := e.Execute(nil, testVerifiedOpportunity(), 100)
	assert.False(t, result.Success)
	assert.Nil(t, result.TxHash)

	route := types.Route{PairSymbol: "WETH/USDC", BuyDex: types.QuickswapV2, SellDex: types.SushiswapV2}
	assert.True(t, cooldown.IsCooledDown(route, 105))
}

func TestExecutor_ExecuteLegacy_BuySucceedsSellFailsIsCapitalCommitted(t *testing.T) {
	cfg := ExecutorConfig{QuoteDecimals: 6, SlippagePct: 1}
	cooldown := NewCooldownStore(CooldownConfig{InitialCooldown: 10, MaxCooldown: 100, EscalationFactor: 5})
	buyHash := common.HexToHash("0x111")
	v2Routers := map[types.DexVariant]contractclient.ContractClient{
		types.QuickswapV2: &fakeExecClient{sendHash: buyHash},
		types.SushiswapV2: &fakeExecClient{sendErr: errors.New("rejected")},
	}
	listener := &fakeTxListener{receipt: &types.TxReceipt{Status: "0x1"}}
	e := NewExecutor(cfg, nil, v2Routers, listener, common.HexToAddress("0xme"), nil, cooldown)

	result := e.Execute(nil, testVerifiedOpportunity(), 100)
	assert.False(t, result.Success)
	assert.NotNil(t, result.TxHash)
	assert.ErrorIs(t, result.Error, ErrCapitalCommitted)

	// Capital-committed failures must not be recorded as a retryable cooldown.
	route := types.Route{PairSymbol: "WETH/USDC", BuyDex: types.QuickswapV2, SellDex: types.SushiswapV2}
	assert.False(t, cooldown.IsCooledDown(route, 105))
}

func TestExecutor_ExecuteLegacy_FullSuccess(t *testing.T) {
	cfg := ExecutorConfig{QuoteDecimals: 6, SlippagePct: 1}
	cooldown := NewCooldownStore(CooldownConfig{InitialCooldown: 10, MaxCooldown: 100, EscalationFactor: 5})
	v2Routers := map[types.DexVariant]contractclient.ContractClient{
		types.QuickswapV2: &fakeExecClient{sendHash: common.HexToHash("0x111")},
		types.SushiswapV2: &fakeExecClient{sendHash: common.HexToHash("0x222")},
	}
	listener := &fakeTxListener{receipt: &types.TxReceipt{Status: "0x1"}}
	opp := testVerifiedOpportunity()
	opp.QuotedProfitRaw = big.NewInt(25_000_000)

	e := NewExecutor(cfg, nil, v2Routers, listener, common.HexToAddress("0xme"), nil, cooldown)
	result := e.Execute(nil, opp, 1)

	assert.True(t, result.Success)
	assert.InDelta(t, 25.0, result.ProfitUSD, 0.0001)
	assert.InDelta(t, 0.01, result.GasCostUSD, 0.0001) // 0.02 native * $0.50
}

func TestExecutor_IsAtomic(t *testing.T) {
	atomic := NewExecutor(ExecutorConfig{ExecutorAddress: common.HexToAddress("0x1")}, nil, nil, nil, common.Address{}, nil, nil)
	assert.True(t, atomic.IsAtomic())

	legacy := NewExecutor(ExecutorConfig{}, nil, nil, nil, common.Address{}, nil, nil)
	assert.False(t, legacy.IsAtomic())
}
