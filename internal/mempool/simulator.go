package mempool

import (
	"log"
	"math/big"

	"github.com/ChoSanghyuk/dexarb/internal/pool"
	"github.com/ChoSanghyuk/dexarb/pkg/types"
	"github.com/ChoSanghyuk/dexarb/pkg/util"
	"github.com/ethereum/go-ethereum/common"
)

// maxTicksCrossed is the tick-budget past which the within-tick
// approximation is considered unreliable and the simulation is rejected
// (spec §4.11).
const maxTicksCrossed = 10

// feeMultiplierV2 is the 0.3% V2 swap fee expressed as a post-fee
// multiplier (spec §4.11, same constant the V2 constant-product math uses
// elsewhere in this module).
var feeMultiplierV2 = big.NewFloat(0.997)

// PairLookup resolves which trading pair, if any, a token pair belongs to.
// The pool store doesn't index by token address, so callers supply this
// from their own pair-symbol -> token mapping (spec §4.11 step "pool
// identification").
type PairLookup func(tokenA, tokenB common.Address) (pairSymbol string, ok bool)

// Simulator re-derives a pool's post-swap price for a decoded pending swap
// and checks for a newly created cross-DEX spread (spec §4.11).
type Simulator struct {
	store      *pool.Store
	lookupPair PairLookup
}

func NewSimulator(store *pool.Store, lookupPair PairLookup) *Simulator {
	return &Simulator{store: store, lookupPair: lookupPair}
}

// Simulate identifies the pool the swap targets, applies exact-input
// constant-product (V2) or within-tick sqrt-price (V3 and Algebra) math, and
// returns the simulated post-swap state. The largest absolute gap between
// the post-swap price and any other DEX's pool for the pair is reported as
// ArbSpreadPct with its buy/sell DEXes; no fee or minimum-spread threshold
// is applied, and ArbSpreadPct stays zero when no other pool is priced.
// Exact-output
// swaps (AmountIn == nil) and swaps the decoder couldn't fully resolve are
// skipped, per spec §4.11's "too uncertain to simulate" rule.
func (s *Simulator) Simulate(obs types.PendingSwapObservation, router common.Address, dex types.DexVariant) (*types.SimulatedOpportunity, bool) {
	swap := obs.Decoded
	if swap.TokenIn == nil || swap.TokenOut == nil || swap.AmountIn == nil || swap.AmountIn.Sign() <= 0 {
		return nil, false
	}

	pairSymbol, ok := s.lookupPair(*swap.TokenIn, *swap.TokenOut)
	if !ok {
		return nil, false
	}

	if dex.IsConcentrated() {
		return s.simulateV3(obs, pairSymbol, dex, *swap.TokenIn, swap.AmountIn)
	}
	return s.simulateV2(obs, pairSymbol, dex, *swap.TokenIn, swap.AmountIn)
}

func (s *Simulator) simulateV2(obs types.PendingSwapObservation, pairSymbol string, dex types.DexVariant, tokenIn common.Address, amountIn *big.Int) (*types.SimulatedOpportunity, bool) {
	pools := s.store.GetAllV2ForPair(pairSymbol)
	var target *types.V2PoolState
	for _, p := range pools {
		if p.Dex == dex {
			target = p
			break
		}
	}
	if target == nil || target.Reserve0 == nil || target.Reserve1 == nil {
		return nil, false
	}

	zeroForOne := tokenIn == target.Token0
	reserveIn, reserveOut := target.Reserve0, target.Reserve1
	if !zeroForOne {
		reserveIn, reserveOut = target.Reserve1, target.Reserve0
	}
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return nil, false
	}

	amountInWithFee := new(big.Float).Mul(new(big.Float).SetInt(amountIn), feeMultiplierV2)
	numerator := new(big.Float).Mul(amountInWithFee, new(big.Float).SetInt(reserveOut))
	denominator := new(big.Float).Add(new(big.Float).SetInt(reserveIn), amountInWithFee)
	amountOutF := new(big.Float).Quo(numerator, denominator)
	amountOut, _ := amountOutF.Int(nil)

	newReserveIn := new(big.Int).Add(reserveIn, amountIn)
	newReserveOut := new(big.Int).Sub(reserveOut, amountOut)
	if newReserveOut.Sign() <= 0 {
		return nil, false
	}

	newReserve0, newReserve1 := newReserveIn, newReserveOut
	if !zeroForOne {
		newReserve0, newReserve1 = newReserveOut, newReserveIn
	}

	prePrice := target.PriceAdjusted()
	postPool := *target
	postPool.Reserve0, postPool.Reserve1 = newReserve0, newReserve1
	postPrice := postPool.PriceAdjusted()

	return s.buildResult(obs, pairSymbol, dex, false, zeroForOne, amountIn, prePrice, postPrice)
}

func (s *Simulator) simulateV3(obs types.PendingSwapObservation, pairSymbol string, dex types.DexVariant, tokenIn common.Address, amountIn *big.Int) (*types.SimulatedOpportunity, bool) {
	pools := s.store.GetAllV3ForPair(pairSymbol)
	var target *types.V3PoolState
	for _, p := range pools {
		if p.Dex == dex {
			target = p
			break
		}
	}
	if target == nil || target.IsPhantom() {
		return nil, false
	}

	zeroForOne := tokenIn == target.Token0
	prePrice := target.Price()

	amountAfterFee := new(big.Int).Mul(amountIn, big.NewInt(int64(1_000_000-target.Fee)))
	amountAfterFee.Div(amountAfterFee, big.NewInt(1_000_000))

	var newSqrtPrice *big.Int
	if zeroForOne {
		newSqrtPrice = util.NextSqrtPriceFromAmount0(target.Liquidity, target.SqrtPriceX96, amountAfterFee)
		if newSqrtPrice.Cmp(target.SqrtPriceX96) >= 0 {
			return nil, false // zeroForOne must push price down; reject on mismatch
		}
	} else {
		newSqrtPrice = util.NextSqrtPriceFromAmount1(target.Liquidity, target.SqrtPriceX96, amountAfterFee)
		if newSqrtPrice.Cmp(target.SqrtPriceX96) <= 0 {
			return nil, false // token1-in must push price up; reject on mismatch
		}
	}
	newTick := util.TickFromSqrtPriceX96(newSqrtPrice)

	spacing := util.TickSpacingForFee(target.Fee)
	crossed := ticksCrossed(int(target.Tick), newTick, spacing)
	if crossed > maxTicksCrossed {
		return nil, false // approximation unreliable past the tick budget
	}
	if crossed > 1 {
		log.Printf("mempool: simulated swap on %s %s crosses %d ticks, within-tick approximation degrades", dex, pairSymbol, crossed)
	}

	postPool := *target
	postPool.Tick = int32(newTick)
	postPrice := postPool.Price()

	return s.buildResult(obs, pairSymbol, dex, true, zeroForOne, amountIn, prePrice, postPrice)
}

// ticksCrossed computes ceil(|newTick-oldTick| / tickSpacing) (spec §4.11).
func ticksCrossed(oldTick, newTick, tickSpacing int) int {
	diff := newTick - oldTick
	if diff < 0 {
		diff = -diff
	}
	if tickSpacing <= 0 {
		tickSpacing = 1
	}
	return (diff + tickSpacing - 1) / tickSpacing
}

func (s *Simulator) buildResult(obs types.PendingSwapObservation, pairSymbol string, dex types.DexVariant, isV3, zeroForOne bool, amountIn *big.Int, prePrice, postPrice *big.Float) (*types.SimulatedOpportunity, bool) {
	if prePrice == nil || postPrice == nil || prePrice.Sign() == 0 {
		return nil, false
	}
	impact := new(big.Float).Quo(new(big.Float).Sub(postPrice, prePrice), prePrice)
	impactPct, _ := impact.Float64()
	impactPct *= 100

	result := &types.SimulatedOpportunity{
		TxHash:          obs.TxHash,
		TriggerDex:      dex,
		TriggerFunction:  obs.Decoded.FunctionName,
		Pair:            pairSymbol,
		ZeroForOne:      zeroForOne,
		AmountIn:        amountIn,
		PrePrice:        prePrice,
		PostPrice:       postPrice,
		PriceImpactPct:  impactPct,
	}

	buyDex, sellDex, spreadPct, ok := s.crossDexOpportunity(pairSymbol, dex, postPrice)
	if !ok {
		return result, true // simulation succeeded but no cross-DEX edge opened up
	}
	result.ArbBuyDex = buyDex
	result.ArbSellDex = sellDex
	result.ArbSpreadPct = spreadPct
	return result, true
}

// crossDexOpportunity compares the simulated post-swap price against every
// other pool (of either AMM kind) tracked for the same pair and reports the
// best resulting spread, per spec §4.11's "check for a newly created
// cross-DEX opportunity" step.
func (s *Simulator) crossDexOpportunity(pairSymbol string, excludeDex types.DexVariant, simulatedPrice *big.Float) (buyDex, sellDex types.DexVariant, spreadPct float64, ok bool) {
	var bestSpread float64
	found := false

	consider := func(dex types.DexVariant, price *big.Float) {
		if price == nil || price.Sign() == 0 || dex == excludeDex {
			return
		}
		diff := new(big.Float).Sub(simulatedPrice, price)
		ratio := new(big.Float).Quo(diff, price)
		pct, _ := ratio.Float64()
		pct *= 100
		if pct < 0 {
			pct = -pct
		}
		if !found || pct > bestSpread {
			found = true
			bestSpread = pct
			if simulatedPrice.Cmp(price) > 0 {
				buyDex, sellDex = dex, excludeDex
			} else {
				buyDex, sellDex = excludeDex, dex
			}
		}
	}

	for _, p := range s.store.GetAllV2ForPair(pairSymbol) {
		consider(p.Dex, p.PriceAdjusted())
	}
	for _, p := range s.store.GetAllV3ForPair(pairSymbol) {
		consider(p.Dex, p.Price())
	}

	return buyDex, sellDex, bestSpread, found
}
