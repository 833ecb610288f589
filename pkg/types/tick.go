package types

import "math/big"

// tickBase is 1.0001, the V3 per-tick price ratio (spec Glossary).
var tickBase = newFloat("1.0001")

func newFloat(s string) *big.Float {
	f, _, err := big.ParseFloat(s, 10, 200, big.ToNearestEven)
	if err != nil {
		panic(err)
	}
	return f
}

// TickToPrice computes 1.0001^tick at high precision using exponentiation
// by squaring on a big.Float, matching the formula used throughout the
// V3 pricing math (spec §3, §9: "always use tick for pricing"). This
// avoids ever squaring sqrtPriceX96 in double precision, which the spec
// flags as a precision bug.
func TickToPrice(tick int32) *big.Float {
	neg := tick < 0
	n := uint32(tick)
	if neg {
		n = uint32(-tick)
	}

	result := big.NewFloat(1).SetPrec(200)
	base := new(big.Float).SetPrec(200).Copy(tickBase)
	for n > 0 {
		if n&1 == 1 {
			result.Mul(result, base)
		}
		base.Mul(base, base)
		n >>= 1
	}
	if neg {
		result.Quo(big.NewFloat(1), result)
	}
	return result
}
