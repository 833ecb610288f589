package util

import (
	"math"
	"math/big"
)

// ceilDiv computes ceil(num/den) for positive big.Int operands.
func ceilDiv(num, den *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// NextSqrtPriceFromAmount0 computes the sqrtPriceX96 after swapping amountIn
// of token0 into a pool of the given liquidity (zeroForOne=true: price
// falls). Mirrors Uniswap V3's getNextSqrtPriceFromAmount0RoundingUp, with
// a divide-first fallback when the primary form's denominator is
// non-positive (big.Int has no fixed width to overflow, but the fallback
// keeps behavior aligned with the on-chain fixed-width implementation).
func NextSqrtPriceFromAmount0(liquidity, sqrtPriceX96, amountIn *big.Int) *big.Int {
	if amountIn.Sign() == 0 {
		return new(big.Int).Set(sqrtPriceX96)
	}
	numerator1 := new(big.Int).Lsh(liquidity, 96) // L * Q96

	product := new(big.Int).Mul(amountIn, sqrtPriceX96)
	denominator := new(big.Int).Add(numerator1, product)
	if denominator.Sign() > 0 {
		num := new(big.Int).Mul(numerator1, sqrtPriceX96)
		return ceilDiv(num, denominator)
	}

	// Fallback: ceil(numerator1 / (numerator1/sqrtP + amount))
	term := new(big.Int).Div(numerator1, sqrtPriceX96)
	term.Add(term, amountIn)
	return ceilDiv(numerator1, term)
}

// NextSqrtPriceFromAmount1 computes the sqrtPriceX96 after swapping amountIn
// of token1 into a pool of the given liquidity (zeroForOne=false: price
// rises). Rounds down per the spec.
func NextSqrtPriceFromAmount1(liquidity, sqrtPriceX96, amountIn *big.Int) *big.Int {
	if amountIn.Sign() == 0 {
		return new(big.Int).Set(sqrtPriceX96)
	}
	delta := new(big.Int).Lsh(amountIn, 96)
	delta.Div(delta, liquidity)
	return new(big.Int).Add(sqrtPriceX96, delta)
}

// TickFromSqrtPriceX96 approximates the tick for a given sqrtPriceX96 via
// floor(2*ln(sqrtPrice/2^96)/ln(1.0001)). This is a float64 approximation
// (spec §4.11 "tick-boundary policy") used only to decide how many ticks a
// simulated swap crossed, not for on-chain-precision pricing.
func TickFromSqrtPriceX96(sqrtPriceX96 *big.Int) int {
	sp := new(big.Float).SetPrec(200).Quo(new(big.Float).SetInt(sqrtPriceX96), new(big.Float).SetInt(q96))
	spF, _ := sp.Float64()
	if spF <= 0 {
		return math.MinInt32
	}
	return int(math.Floor(2 * math.Log(spF) / math.Log(1.0001)))
}

// TickSpacingForFee returns the tick spacing Uniswap V3 assigns to a given
// static fee tier; Algebra/dynamic-fee pools use a spacing of 1.
func TickSpacingForFee(fee uint32) int {
	switch fee {
	case 100:
		return 1
	case 500:
		return 10
	case 3000:
		return 60
	case 10000:
		return 200
	}
	return 1
}
