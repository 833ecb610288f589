// Package arbitrage implements the cross-DEX opportunity pipeline: the
// detector (spec §4.6), the batch quoter pre-screener (§4.7), route
// cooldown (§4.8), and the atomic executor driver (§4.9).
package arbitrage

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ChoSanghyuk/dexarb/internal/filters"
	"github.com/ChoSanghyuk/dexarb/internal/pool"
	"github.com/ChoSanghyuk/dexarb/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// quoteTokenSanityMax is the upper bound on a V3 price per spec §4.6 step 1
// ("price > 0 and price < 1e15"); admitV3 checks the lower bound with
// price.Sign().
var quoteTokenSanityMax = big.NewFloat(1e15)

// DetectorConfig holds the tunables consumed by Scan (spec §4.6, §6 env
// vars MIN_PROFIT_USD / MAX_TRADE_SIZE_USD / ESTIMATED_GAS_COST_USD).
type DetectorConfig struct {
	QuoteTokens         map[common.Address]bool // recognized quote-token addresses
	MinProfitUSD        float64
	GlobalMaxTradeUSD   float64
	GasCostUSD          float64
}

// v2ReadyDexes is the Open Question resolution from spec §9: only these two
// V2 variants are admitted for cross-protocol arb even when others are
// whitelisted.
var v2ReadyDexes = map[types.DexVariant]bool{
	types.QuickswapV2: true,
	types.SushiswapV2: true,
}

// admittedPool is the unified pool-list row built in step 1 of spec §4.6.
type admittedPool struct {
	isV3            bool
	dex             types.DexVariant
	address         common.Address
	price           *big.Float // human, decimal-adjusted
	feePercent      float64
	quoteToken      common.Address
	baseToken       common.Address
	quoteIsToken0   bool
	liquidityProxy  *big.Float // V3: liquidity; V2: min(reserve0,reserve1) in raw units
	maxTradeUSD     float64
	token0Decimals  uint8
	token1Decimals  uint8
}

// Detector computes ranked cross-DEX opportunities for a fixed set of
// configured pairs, reading the pool store and whitelist (spec §4.6).
type Detector struct {
	store  *pool.Store
	filter *filters.Filter
	cfg    DetectorConfig
}

// NewDetector builds a Detector over store, gated by filter.
func NewDetector(store *pool.Store, filter *filters.Filter, cfg DetectorConfig) *Detector {
	return &Detector{store: store, filter: filter, cfg: cfg}
}

// Scan runs the full spec §4.6 algorithm for one pair symbol and returns
// every surviving opportunity, ranked by estimated profit descending
// (stable for ties, spec testable property 12). currentBlock tags each
// opportunity's DetectedAtBlock.
func (d *Detector) Scan(pairSymbol string, currentBlock uint64) []types.ArbitrageOpportunity {
	admitted := d.buildUnifiedPoolList(pairSymbol)
	opportunities := d.enumeratePairings(pairSymbol, admitted, currentBlock)

	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].EstimatedProfitUSD > opportunities[j].EstimatedProfitUSD
	})
	return opportunities
}

// ScanPairLegacyV2Only is the retained simpler entry point (spec §9
// Supplemented Features, grounded on the original's detector.rs check_pair
// path). It runs the same pairing/profit pipeline restricted to V2-ready
// pools only. The daemon's detection loop calls Scan, not this.
func (d *Detector) ScanPairLegacyV2Only(pairSymbol string, currentBlock uint64) []types.ArbitrageOpportunity {
	admitted := d.buildV2OnlyPoolList(pairSymbol)
	opportunities := d.enumeratePairings(pairSymbol, admitted, currentBlock)
	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].EstimatedProfitUSD > opportunities[j].EstimatedProfitUSD
	})
	return opportunities
}

func (d *Detector) buildUnifiedPoolList(pairSymbol string) []admittedPool {
	var out []admittedPool

	for _, v3 := range d.store.GetAllV3ForPair(pairSymbol) {
		if ap, ok := d.admitV3(v3); ok {
			out = append(out, ap)
		}
	}
	out = append(out, d.buildV2OnlyPoolList(pairSymbol)...)
	return out
}

func (d *Detector) buildV2OnlyPoolList(pairSymbol string) []admittedPool {
	var out []admittedPool
	for _, v2 := range d.store.GetAllV2ForPair(pairSymbol) {
		if ap, ok := d.admitV2(v2); ok {
			out = append(out, ap)
		}
	}
	return out
}

func (d *Detector) admitV3(v3 *types.V3PoolState) (admittedPool, bool) {
	if v3.IsPhantom() {
		return admittedPool{}, false
	}
	feeTier, _ := v3.Dex.V3FeeTier()
	if v3.Dex.IsAlgebra() {
		feeTier = v3.Fee
	}
	if !d.filter.Allow(v3.Address, feeTier, v3.PairSymbol) {
		return admittedPool{}, false
	}

	price := v3.Price()
	if price.Sign() <= 0 || price.Cmp(quoteTokenSanityMax) >= 0 {
		return admittedPool{}, false
	}

	minLiq := d.filter.MinLiquidity(v3.Address, feeTier)
	liqFloat := new(big.Float).SetInt(v3.Liquidity)
	if minLiq > 0 {
		if liqF, _ := liqFloat.Float64(); liqF < minLiq {
			return admittedPool{}, false
		}
	}

	quoteToken, baseToken, quoteIsToken0, ok := d.resolveQuoteToken(v3.Token0, v3.Token1)
	if !ok {
		return admittedPool{}, false
	}

	maxTrade := d.cfg.GlobalMaxTradeUSD
	if override, ok := d.filter.MaxTradeSizeUSD(v3.Address); ok {
		maxTrade = override
	}

	feePercent := v3.Dex.FeePercent()
	if v3.Dex.IsAlgebra() {
		feePercent = float64(v3.Fee) / 10000.0
	}

	return admittedPool{
		isV3:           true,
		dex:            v3.Dex,
		address:        v3.Address,
		price:          price,
		feePercent:     feePercent,
		quoteToken:     quoteToken,
		baseToken:      baseToken,
		quoteIsToken0:  quoteIsToken0,
		liquidityProxy: liqFloat,
		maxTradeUSD:    maxTrade,
		token0Decimals: v3.Token0Decimals,
		token1Decimals: v3.Token1Decimals,
	}, true
}

func (d *Detector) admitV2(v2 *types.V2PoolState) (admittedPool, bool) {
	if !v2ReadyDexes[v2.Dex] {
		return admittedPool{}, false
	}
	if !d.filter.Allow(v2.Address, 0, v2.PairSymbol) {
		return admittedPool{}, false
	}

	price := v2.PriceAdjusted()
	if price == nil || price.Sign() <= 0 {
		return admittedPool{}, false
	}

	minLiq := d.filter.MinLiquidity(v2.Address, 0)
	liqFloat := new(big.Float).SetInt(v2.LiquidityProxy())
	if minLiq > 0 {
		if liqF, _ := liqFloat.Float64(); liqF < minLiq {
			return admittedPool{}, false
		}
	}

	quoteToken, baseToken, quoteIsToken0, ok := d.resolveQuoteToken(v2.Token0, v2.Token1)
	if !ok {
		return admittedPool{}, false
	}

	maxTrade := d.cfg.GlobalMaxTradeUSD
	if override, ok := d.filter.MaxTradeSizeUSD(v2.Address); ok {
		maxTrade = override
	}

	return admittedPool{
		isV3:           false,
		dex:            v2.Dex,
		address:        v2.Address,
		price:          price,
		feePercent:     v2.Dex.FeePercent(),
		quoteToken:     quoteToken,
		baseToken:      baseToken,
		quoteIsToken0:  quoteIsToken0,
		liquidityProxy: liqFloat,
		maxTradeUSD:    maxTrade,
		token0Decimals: v2.Token0Decimals,
		token1Decimals: v2.Token1Decimals,
	}, true
}

func (d *Detector) resolveQuoteToken(token0, token1 common.Address) (quoteToken, baseToken common.Address, quoteIsToken0 bool, ok bool) {
	if d.cfg.QuoteTokens[token0] {
		return token0, token1, true, true
	}
	if d.cfg.QuoteTokens[token1] {
		return token1, token0, false, true
	}
	return common.Address{}, common.Address{}, false, false
}

// enumeratePairings implements spec §4.6 step 2-3 over an already-admitted
// pool list.
func (d *Detector) enumeratePairings(pairSymbol string, pools []admittedPool, currentBlock uint64) []types.ArbitrageOpportunity {
	var out []types.ArbitrageOpportunity

	for i := 0; i < len(pools); i++ {
		for j := i + 1; j < len(pools); j++ {
			a, b := pools[i], pools[j]
			if a.quoteToken != b.quoteToken {
				continue
			}

			opp, ok := d.evaluatePair(pairSymbol, a, b, currentBlock)
			if ok {
				out = append(out, opp)
			}
		}
	}
	return out
}

func (d *Detector) evaluatePair(pairSymbol string, a, b admittedPool, currentBlock uint64) (types.ArbitrageOpportunity, bool) {
	quoteIsToken0 := a.quoteIsToken0 // both share the same quote token orientation by construction

	var buy, sell admittedPool
	aPrice, _ := a.price.Float64()
	bPrice, _ := b.price.Float64()

	if quoteIsToken0 {
		// More base per quote => buy there; sell where price is lower.
		if aPrice >= bPrice {
			buy, sell = a, b
		} else {
			buy, sell = b, a
		}
	} else {
		// Cheaper base in quote terms => buy there; sell where higher.
		if aPrice <= bPrice {
			buy, sell = a, b
		} else {
			buy, sell = b, a
		}
	}

	buyPrice, _ := buy.price.Float64()
	sellPrice, _ := sell.price.Float64()
	if buyPrice == sellPrice {
		return types.ArbitrageOpportunity{}, false
	}

	var midmarketSpread float64
	if quoteIsToken0 {
		// Normalized to sell price.
		midmarketSpread = (buyPrice - sellPrice) / sellPrice
	} else {
		// Normalized to buy price.
		midmarketSpread = (sellPrice - buyPrice) / buyPrice
	}
	if midmarketSpread <= 0 {
		return types.ArbitrageOpportunity{}, false
	}

	roundTripFee := (buy.feePercent + sell.feePercent) / 100
	executableSpread := midmarketSpread - roundTripFee
	if executableSpread <= 0 {
		return types.ArbitrageOpportunity{}, false
	}

	effectiveTradeUSD := buy.maxTradeUSD
	if sell.maxTradeUSD < effectiveTradeUSD {
		effectiveTradeUSD = sell.maxTradeUSD
	}

	gross := executableSpread * effectiveTradeUSD
	slippageEstimate := gross * 0.01
	net := gross - d.cfg.GasCostUSD - slippageEstimate

	scaledMinProfit := d.cfg.MinProfitUSD * (effectiveTradeUSD / d.cfg.GlobalMaxTradeUSD)
	if floor := 2 * d.cfg.GasCostUSD; scaledMinProfit < floor {
		scaledMinProfit = floor
	}
	if net < scaledMinProfit {
		return types.ArbitrageOpportunity{}, false
	}

	// Liquidity floor: trade size in raw quote-token units (assumed 6
	// decimals) must not exceed either pool's liquidity proxy (spec §4.6
	// step 2i).
	tradeSizeRaw := new(big.Float).Mul(big.NewFloat(effectiveTradeUSD), big.NewFloat(1e6))
	tradeSizeRawF, _ := tradeSizeRaw.Float64()
	buyLiqF, _ := buy.liquidityProxy.Float64()
	sellLiqF, _ := sell.liquidityProxy.Float64()
	if tradeSizeRawF > buyLiqF || tradeSizeRawF > sellLiqF {
		return types.ArbitrageOpportunity{}, false
	}

	tradeSizeInt := new(big.Int)
	tradeSizeRaw.Int(tradeSizeInt)

	opp := types.ArbitrageOpportunity{
		ID:                 uuid.NewString(),
		Pair:               pairSymbol,
		BuyDex:             buy.dex,
		SellDex:            sell.dex,
		BuyPrice:           buy.price,
		SellPrice:          sell.price,
		SpreadPercent:      executableSpread * 100,
		EstimatedProfitUSD: net,
		TradeSizeRaw:       tradeSizeInt,
		BuyPoolAddress:     buy.address,
		SellPoolAddress:    sell.address,
		Token0Decimals:     buy.token0Decimals,
		Token1Decimals:     buy.token1Decimals,
		QuoteTokenIsToken0: quoteIsToken0,
		QuoteToken:         buy.quoteToken,
		BaseToken:          buy.baseToken,
		MinProfitUSD:       scaledMinProfit,
		DetectedAtBlock:    currentBlock,
	}
	if buy.isV3 {
		opp.BuyPoolLiquidity = new(big.Int)
		buy.liquidityProxy.Int(opp.BuyPoolLiquidity)
	}
	return opp, true
}

// OpportunitySummary is a compact human summary of an opportunity for log
// lines.
func OpportunitySummary(o types.ArbitrageOpportunity) string {
	return fmt.Sprintf("%s: buy %s @ %s, sell %s @ %s, spread %.3f%%, profit $%.2f",
		o.Pair, o.BuyDex, o.BuyPrice.Text('f', 6), o.SellDex, o.SellPrice.Text('f', 6), o.SpreadPercent, o.EstimatedProfitUSD)
}
