package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TradingPair identifies a configured pair by its canonical symbol. A
// pool's actual on-chain token0/token1 ordering is address-sorted and may
// disagree with this struct's Token0/Token1 fields; callers must read the
// pool contract's own token0()/token1() before trusting an ordering.
type TradingPair struct {
	Token0 common.Address
	Token1 common.Address
	Symbol string
}

// V2PoolState mirrors spec Data Model's V2 pool state.
type V2PoolState struct {
	Address          common.Address
	Dex              DexVariant
	PairSymbol       string
	Token0           common.Address
	Token1           common.Address
	Reserve0         *big.Int
	Reserve1         *big.Int
	Token0Decimals   uint8
	Token1Decimals   uint8
	LastUpdatedBlock uint64
}

// PriceAdjusted returns (reserve1/reserve0) scaled by 10^(dec0-dec1), the
// human-comparable price used to line up against V3 pools for the same
// pair. Returns nil if reserve0 is zero.
func (s *V2PoolState) PriceAdjusted() *big.Float {
	if s.Reserve0 == nil || s.Reserve0.Sign() == 0 || s.Reserve1 == nil {
		return nil
	}
	raw := new(big.Float).Quo(new(big.Float).SetInt(s.Reserve1), new(big.Float).SetInt(s.Reserve0))
	decAdj := decimalAdjustment(s.Token0Decimals, s.Token1Decimals)
	return new(big.Float).Mul(raw, decAdj)
}

// LiquidityProxy returns min(reserve0, reserve1), used as a coarse
// liquidity floor for V2 pools per spec §4.6 step 1.
func (s *V2PoolState) LiquidityProxy() *big.Int {
	if s.Reserve0.Cmp(s.Reserve1) < 0 {
		return s.Reserve0
	}
	return s.Reserve1
}

// V3PoolState mirrors spec Data Model's V3 pool state. Price must always be
// derived from Tick, never from squaring SqrtPriceX96 in floating point
// (see spec §9 "Price precision").
type V3PoolState struct {
	Address          common.Address
	Dex              DexVariant
	PairSymbol       string
	Token0           common.Address
	Token1           common.Address
	SqrtPriceX96     *big.Int
	Tick             int32
	Fee              uint32 // millionths; dynamic for Algebra, static otherwise
	Liquidity        *big.Int
	Token0Decimals   uint8
	Token1Decimals   uint8
	LastUpdatedBlock uint64
}

// IsPhantom reports a pool with zero usable depth, which must be
// suppressed at sync time per spec §3.
func (s *V3PoolState) IsPhantom() bool {
	return s.Liquidity == nil || s.Liquidity.Sign() == 0
}

// Price returns 1.0001^tick * 10^(dec0-dec1) as a big.Float, computed
// purely from the tick (never from squaring sqrtPrice), per spec §9.
func (s *V3PoolState) Price() *big.Float {
	return new(big.Float).Mul(TickToPrice(s.Tick), decimalAdjustment(s.Token0Decimals, s.Token1Decimals))
}

func decimalAdjustment(dec0, dec1 uint8) *big.Float {
	diff := int(dec0) - int(dec1)
	adj := big.NewFloat(1)
	ten := big.NewFloat(10)
	for i := 0; i < diff; i++ {
		adj.Mul(adj, ten)
	}
	for i := 0; i > diff; i-- {
		adj.Quo(adj, ten)
	}
	return adj
}

// WhitelistStatus gates whether an admitted pool participates in arbitrage
// scans. See spec §4.5 and §9 Supplemented Features (observation pools).
type WhitelistStatus string

const (
	StatusActive      WhitelistStatus = "active"
	StatusV2Ready     WhitelistStatus = "v2_ready"
	StatusObservation WhitelistStatus = "observation"
	StatusRetired     WhitelistStatus = "retired"
)

// ArbitrageOpportunity is the detector's output record; spec Data Model.
type ArbitrageOpportunity struct {
	ID                 string
	Pair               string
	BuyDex             DexVariant
	SellDex            DexVariant
	BuyPrice           *big.Float
	SellPrice          *big.Float
	SpreadPercent      float64
	EstimatedProfitUSD float64
	TradeSizeRaw       *big.Int // raw quote-token units
	BuyPoolAddress     common.Address
	SellPoolAddress    common.Address
	Token0Decimals     uint8
	Token1Decimals     uint8
	BuyPoolLiquidity   *big.Int
	QuoteTokenIsToken0 bool
	QuoteToken         common.Address
	BaseToken          common.Address
	MinProfitUSD       float64
	DetectedAtBlock    uint64
}

// VerifiedOpportunity is an ArbitrageOpportunity annotated by the batch
// pre-screener (spec §4.7).
type VerifiedOpportunity struct {
	ArbitrageOpportunity
	BuyQuotedOut     *big.Int
	SellQuotedOut    *big.Int
	QuotedProfitRaw  *big.Int
	BothLegsValid    bool
	Error            string
	IsPassthrough    bool // aggregate3 call itself failed; unverified
}

// Route is the cooldown module's unit of tracking (spec Glossary).
type Route struct {
	PairSymbol string
	BuyDex     DexVariant
	SellDex    DexVariant
}

// CooldownEntry mirrors spec Data Model's cooldown entry.
type CooldownEntry struct {
	Route             Route
	LastFailedBlock   uint64
	CooldownBlocks    uint64
	FailureCount      uint64
	SuccessCount      uint64
	MaxCooldownCycles uint64
}

// DecodedSwap is the mempool decoder's output (spec §4.10).
type DecodedSwap struct {
	FunctionName string
	TokenIn      *common.Address
	TokenOut     *common.Address
	AmountIn     *big.Int
	AmountOutMin *big.Int
	FeeTier      *uint32
}

// PendingSwapObservation mirrors spec Data Model.
type PendingSwapObservation struct {
	SeenAt       time.Time
	TxHash       common.Hash
	Router       common.Address
	RouterName   string
	Decoded      DecodedSwap
	GasPrice     *big.Int
	PriorityFee  *big.Int
}

// SimulatedPoolState mirrors spec Data Model.
type SimulatedPoolState struct {
	Dex            DexVariant
	PairSymbol     string
	IsV3           bool
	PrePrice       *big.Float
	PostPrice      *big.Float
	PostSqrtPriceX96 *big.Int
	PostTick       int32
	PostReserve0   *big.Int
	PostReserve1   *big.Int
}

// SimulatedOpportunity mirrors spec Data Model.
type SimulatedOpportunity struct {
	TxHash           common.Hash
	TriggerDex       DexVariant
	TriggerFunction  string
	Pair             string
	ZeroForOne       bool
	AmountIn         *big.Int
	PrePrice         *big.Float
	PostPrice        *big.Float
	PriceImpactPct   float64
	ArbBuyDex        DexVariant
	ArbSellDex       DexVariant
	ArbSpreadPct     float64
	ArbEstProfitUSD  float64
}
