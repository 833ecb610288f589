// Package util holds pure math and encoding helpers shared across the
// engine: tick/sqrtPrice conversions, ABI loading, gas accounting, and
// secret decryption. None of it depends on an RPC connection.
package util

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/ChoSanghyuk/dexarb/pkg/types"
)

// q96 is 2^96, the fixed-point scale of sqrtPriceX96.
var q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// tickBaseFloat is 1.0001 at high precision, used for this package's
// tick<->sqrtPrice round trips.
var tickBaseFloat = mustFloat("1.0001")

func mustFloat(s string) *big.Float {
	f, _, err := big.ParseFloat(s, 10, 200, big.ToNearestEven)
	if err != nil {
		panic(err)
	}
	return f
}

// TickToSqrtPriceX96 computes floor(sqrt(1.0001^tick) * 2^96) as a big.Int.
func TickToSqrtPriceX96(tick int) *big.Int {
	neg := tick < 0
	n := uint(tick)
	if neg {
		n = uint(-tick)
	}

	pow := big.NewFloat(1).SetPrec(200)
	base := new(big.Float).SetPrec(200).Copy(tickBaseFloat)
	for n > 0 {
		if n&1 == 1 {
			pow.Mul(pow, base)
		}
		base.Mul(base, base)
		n >>= 1
	}
	if neg {
		pow.Quo(big.NewFloat(1), pow)
	}

	sqrtPrice := new(big.Float).SetPrec(200).Sqrt(pow)
	scaled := new(big.Float).SetPrec(200).Mul(sqrtPrice, new(big.Float).SetInt(q96))

	result := new(big.Int)
	scaled.Int(result)
	return result
}

// SqrtPriceToPrice returns (sqrtPriceX96 / 2^96)^2 as a big.Float, i.e. the
// raw (decimal-unadjusted) price. Callers needing the human price must
// still apply 10^(dec0-dec1) themselves.
func SqrtPriceToPrice(sqrtPriceX96 *big.Int) *big.Float {
	ratio := new(big.Float).SetPrec(200).Quo(new(big.Float).SetInt(sqrtPriceX96), new(big.Float).SetInt(q96))
	return new(big.Float).SetPrec(200).Mul(ratio, ratio)
}

// CalculateTickBounds widens currentTick by rangeWidth*tickSpacing on each
// side, rounded to the tick spacing grid.
func CalculateTickBounds(currentTick int32, rangeWidth, tickSpacing int) (lower, upper int32, err error) {
	if tickSpacing <= 0 {
		return 0, 0, errors.New("tickSpacing must be positive")
	}
	if rangeWidth <= 0 {
		return 0, 0, errors.New("rangeWidth must be positive")
	}
	centered := (int(currentTick) / tickSpacing) * tickSpacing
	width := rangeWidth * tickSpacing
	return int32(centered - width), int32(centered + width), nil
}

// ComputeAmounts computes the token0/token1 amounts and resulting liquidity
// for depositing up to (amount0Max, amount1Max) into [tickLower, tickUpper]
// given the pool's current (sqrtPriceX96, tick). Standard Uniswap V3
// liquidity-math: whichever side is "in range" is the binding constraint.
func ComputeAmounts(sqrtPriceX96 *big.Int, tick, tickLower, tickUpper int, amount0Max, amount1Max *big.Int) (amount0, amount1, liquidity *big.Int) {
	sqrtLower := TickToSqrtPriceX96(tickLower)
	sqrtUpper := TickToSqrtPriceX96(tickUpper)
	sqrtCurrent := sqrtPriceX96

	switch {
	case tick < tickLower:
		// Entirely in token0.
		liquidity = liquidityFromAmount0(sqrtLower, sqrtUpper, amount0Max)
		amount0 = amount0Max
		amount1 = big.NewInt(0)
	case tick >= tickUpper:
		// Entirely in token1.
		liquidity = liquidityFromAmount1(sqrtLower, sqrtUpper, amount1Max)
		amount0 = big.NewInt(0)
		amount1 = amount1Max
	default:
		l0 := liquidityFromAmount0(sqrtCurrent, sqrtUpper, amount0Max)
		l1 := liquidityFromAmount1(sqrtLower, sqrtCurrent, amount1Max)
		if l0.Cmp(l1) < 0 {
			liquidity = l0
		} else {
			liquidity = l1
		}
		amount0 = amount0FromLiquidity(sqrtCurrent, sqrtUpper, liquidity)
		amount1 = amount1FromLiquidity(sqrtLower, sqrtCurrent, liquidity)
	}
	return amount0, amount1, liquidity
}

// CalculateTokenAmountsFromLiquidity is the inverse of ComputeAmounts: given
// a liquidity value and tick range, returns the token0/token1 amounts it
// represents at the supplied current sqrtPrice.
func CalculateTokenAmountsFromLiquidity(liquidity, sqrtPriceX96 *big.Int, tickLower, tickUpper int32) (amount0, amount1 *big.Int, err error) {
	if liquidity == nil || liquidity.Sign() < 0 {
		return nil, nil, errors.New("liquidity must be non-negative")
	}
	sqrtLower := TickToSqrtPriceX96(int(tickLower))
	sqrtUpper := TickToSqrtPriceX96(int(tickUpper))

	tick := tickFromSqrtPriceApprox(sqrtPriceX96)
	switch {
	case int32(tick) < tickLower:
		amount0 = amount0FromLiquidity(sqrtLower, sqrtUpper, liquidity)
		amount1 = big.NewInt(0)
	case int32(tick) >= tickUpper:
		amount0 = big.NewInt(0)
		amount1 = amount1FromLiquidity(sqrtLower, sqrtUpper, liquidity)
	default:
		amount0 = amount0FromLiquidity(sqrtPriceX96, sqrtUpper, liquidity)
		amount1 = amount1FromLiquidity(sqrtLower, sqrtPriceX96, liquidity)
	}
	return amount0, amount1, nil
}

func tickFromSqrtPriceApprox(sqrtPriceX96 *big.Int) int {
	price := SqrtPriceToPrice(sqrtPriceX96)
	logPrice := bigFloatLn(price)
	logBase := bigFloatLn(tickBaseFloat)
	tickF := new(big.Float).Quo(logPrice, logBase)
	t, _ := tickF.Float64()
	return int(t)
}

// bigFloatLn is a modest-precision natural log via float64; adequate for
// the tick-estimation helper above, which only needs int precision.
func bigFloatLn(x *big.Float) *big.Float {
	f, _ := x.Float64()
	return big.NewFloat(math.Log(f))
}

func liquidityFromAmount0(sqrtA, sqrtB *big.Int, amount0 *big.Int) *big.Int {
	lo, hi := orderSqrt(sqrtA, sqrtB)
	if hi.Cmp(lo) == 0 {
		return big.NewInt(0)
	}
	// L = amount0 * sqrtA * sqrtB / (sqrtB - sqrtA) / Q96
	num := new(big.Int).Mul(amount0, lo)
	num.Mul(num, hi)
	den := new(big.Int).Sub(hi, lo)
	num.Div(num, den)
	return num.Div(num, q96)
}

func liquidityFromAmount1(sqrtA, sqrtB *big.Int, amount1 *big.Int) *big.Int {
	lo, hi := orderSqrt(sqrtA, sqrtB)
	if hi.Cmp(lo) == 0 {
		return big.NewInt(0)
	}
	// L = amount1 * Q96 / (sqrtB - sqrtA)
	num := new(big.Int).Mul(amount1, q96)
	den := new(big.Int).Sub(hi, lo)
	return num.Div(num, den)
}

func amount0FromLiquidity(sqrtA, sqrtB *big.Int, liquidity *big.Int) *big.Int {
	lo, hi := orderSqrt(sqrtA, sqrtB)
	if hi.Cmp(lo) == 0 {
		return big.NewInt(0)
	}
	// amount0 = L * (sqrtB - sqrtA) * Q96 / (sqrtA * sqrtB)
	num := new(big.Int).Mul(liquidity, new(big.Int).Sub(hi, lo))
	num.Mul(num, q96)
	den := new(big.Int).Mul(lo, hi)
	return num.Div(num, den)
}

func amount1FromLiquidity(sqrtA, sqrtB *big.Int, liquidity *big.Int) *big.Int {
	lo, hi := orderSqrt(sqrtA, sqrtB)
	if hi.Cmp(lo) == 0 {
		return big.NewInt(0)
	}
	// amount1 = L * (sqrtB - sqrtA) / Q96
	num := new(big.Int).Mul(liquidity, new(big.Int).Sub(hi, lo))
	return num.Div(num, q96)
}

func orderSqrt(a, b *big.Int) (lo, hi *big.Int) {
	if a.Cmp(b) <= 0 {
		return a, b
	}
	return b, a
}

// CalculateMinAmount applies a percentage haircut (e.g. slippagePct=5 means
// keep 95%) to a raw amount.
func CalculateMinAmount(amount *big.Int, slippagePct int) *big.Int {
	num := new(big.Int).Mul(amount, big.NewInt(int64(100-slippagePct)))
	return num.Div(num, big.NewInt(100))
}

// CalculateRebalanceAmounts decides which token to sell (0 = sell token0,
// 1 = sell token1) and how much, to bring a two-asset position back to a
// 50/50 USD split at the given sqrtPrice. tokenToSwap is -1 only together
// with an error for nil input; there is no tolerance band, so an exactly
// balanced position returns (1, 0, nil).
func CalculateRebalanceAmounts(balance0, balance1, sqrtPriceX96 *big.Int) (tokenToSwap int, swapAmount *big.Int, err error) {
	if balance0 == nil || balance1 == nil || sqrtPriceX96 == nil {
		return -1, nil, errors.New("nil input")
	}
	price := SqrtPriceToPrice(sqrtPriceX96) // token1 per token0, decimal-unadjusted
	value0 := new(big.Float).Mul(new(big.Float).SetInt(balance0), price)
	value1 := new(big.Float).SetInt(balance1)

	diff := new(big.Float).Sub(value0, value1)
	half := new(big.Float).Quo(new(big.Float).Abs(diff), big.NewFloat(2))

	if diff.Sign() > 0 {
		// token0 overweight in value1-terms: sell some token0.
		swapIn := new(big.Float).Quo(half, price)
		amt := new(big.Int)
		swapIn.Int(amt)
		return 0, amt, nil
	}
	amt := new(big.Int)
	half.Int(amt)
	return 1, amt, nil
}

// ExtractGasCost computes GasUsed * EffectiveGasPrice as a *big.Int from a
// hex-string-valued receipt (the wire format returned by txlistener).
func ExtractGasCost(receipt *types.TxReceipt) (*big.Int, error) {
	if receipt == nil {
		return nil, errors.New("nil receipt")
	}
	gasUsed, ok := new(big.Int).SetString(trimHex(receipt.GasUsed), 16)
	if !ok {
		return nil, fmt.Errorf("invalid gasUsed %q", receipt.GasUsed)
	}
	gasPrice, ok := new(big.Int).SetString(trimHex(receipt.EffectiveGasPrice), 16)
	if !ok {
		return nil, fmt.Errorf("invalid effectiveGasPrice %q", receipt.EffectiveGasPrice)
	}
	return new(big.Int).Mul(gasUsed, gasPrice), nil
}

func trimHex(s string) string {
	if len(s) > 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		return s[2:]
	}
	return s
}
