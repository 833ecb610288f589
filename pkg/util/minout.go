package util

import "math/big"

// CalculateMinOut computes the minimum acceptable output amount for a swap
// leg, always round-tripping through human-readable units first (spec
// §4.9 "Slippage math"):
//
//	min_out_raw = (amount_in_raw / 10^in_dec) * price * (1 - slippage/100) * 10^out_dec
//
// A naive amount_in_raw * price is wrong whenever in_dec != out_dec.
func CalculateMinOut(amountInRaw *big.Int, price float64, inDecimals, outDecimals uint8, slippagePct float64) *big.Int {
	amountHuman := new(big.Float).SetPrec(200).SetInt(amountInRaw)
	amountHuman.Quo(amountHuman, pow10Float(inDecimals))

	result := new(big.Float).SetPrec(200).Mul(amountHuman, big.NewFloat(price))
	result.Mul(result, big.NewFloat(1-slippagePct/100))
	result.Mul(result, pow10Float(outDecimals))

	out := new(big.Int)
	result.Int(out)
	return out
}

func pow10Float(n uint8) *big.Float {
	result := big.NewFloat(1).SetPrec(200)
	ten := big.NewFloat(10)
	for i := uint8(0); i < n; i++ {
		result.Mul(result, ten)
	}
	return result
}
