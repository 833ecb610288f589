package types

import "fmt"

// DexVariant tags a liquidity venue on the target chain. The zero value is
// invalid; always construct through one of the named constants.
type DexVariant uint8

const (
	Unknown DexVariant = iota

	// V2-family (constant product, 0.30% fee, implicit).
	QuickswapV2
	SushiswapV2
	ApeswapV2
	GenericV2

	// V3-family (Uniswap-style concentrated liquidity, explicit fee tier).
	UniswapV3Fee100
	UniswapV3Fee500
	UniswapV3Fee3000
	UniswapV3Fee10000
	SushiV3Fee100
	SushiV3Fee500
	SushiV3Fee3000

	// Algebra-style dynamic fee (QuickSwap V3).
	QuickswapV3
)

// atomicFeeSentinelV2 is the wire sentinel for a V2 leg: type(uint24).max.
const atomicFeeSentinelV2 = 16_777_215

var dexNames = map[DexVariant]string{
	Unknown:            "unknown",
	QuickswapV2:        "QuickswapV2",
	SushiswapV2:        "SushiswapV2",
	ApeswapV2:          "ApeswapV2",
	GenericV2:          "GenericV2",
	UniswapV3Fee100:    "UniswapV3_001",
	UniswapV3Fee500:    "UniswapV3_005",
	UniswapV3Fee3000:   "UniswapV3_030",
	UniswapV3Fee10000:  "UniswapV3_100",
	SushiV3Fee100:      "SushiV3_001",
	SushiV3Fee500:      "SushiV3_005",
	SushiV3Fee3000:     "SushiV3_030",
	QuickswapV3:        "QuickswapV3",
}

func (d DexVariant) String() string {
	if name, ok := dexNames[d]; ok {
		return name
	}
	return fmt.Sprintf("DexVariant(%d)", uint8(d))
}

// IsV2 reports whether the variant settles via constant-product reserves.
func (d DexVariant) IsV2() bool {
	switch d {
	case QuickswapV2, SushiswapV2, ApeswapV2, GenericV2:
		return true
	}
	return false
}

// IsV3 reports whether the variant is a standard (non-Algebra) V3 pool.
func (d DexVariant) IsV3() bool {
	switch d {
	case UniswapV3Fee100, UniswapV3Fee500, UniswapV3Fee3000, UniswapV3Fee10000,
		SushiV3Fee100, SushiV3Fee500, SushiV3Fee3000:
		return true
	}
	return false
}

// IsAlgebra reports whether the variant uses a dynamic (non-constant) fee
// read from globalState() rather than a static fee() value.
func (d DexVariant) IsAlgebra() bool {
	return d == QuickswapV3
}

// IsConcentrated reports whether the variant carries a tick/sqrtPrice state
// (V3 or Algebra) as opposed to reserve-based V2 state.
func (d DexVariant) IsConcentrated() bool {
	return d.IsV3() || d.IsAlgebra()
}

// V3FeeTier returns the static fee in millionths for standard V3 variants.
// Algebra and V2 variants have no static tier; ok is false for them.
func (d DexVariant) V3FeeTier() (tier uint32, ok bool) {
	switch d {
	case UniswapV3Fee100, SushiV3Fee100:
		return 100, true
	case UniswapV3Fee500, SushiV3Fee500:
		return 500, true
	case UniswapV3Fee3000, SushiV3Fee3000:
		return 3000, true
	case UniswapV3Fee10000:
		return 10000, true
	}
	return 0, false
}

// AtomicFeeSentinel returns the fee value the executor contract's
// executeArb wire protocol expects for this variant: 0 for Algebra, the
// static fee tier for standard V3, or the reserved uint24-max sentinel for
// any V2 variant. See spec Data Model / External Interfaces.
func (d DexVariant) AtomicFeeSentinel() uint32 {
	if d.IsAlgebra() {
		return 0
	}
	if tier, ok := d.V3FeeTier(); ok {
		return tier
	}
	return atomicFeeSentinelV2
}

// FeePercent returns the swap fee as a percentage (e.g. 0.30 for 30bps),
// used directly in round-trip-fee arithmetic by the detector.
func (d DexVariant) FeePercent() float64 {
	if d.IsV2() {
		return 0.30
	}
	if tier, ok := d.V3FeeTier(); ok {
		return float64(tier) / 10000.0
	}
	// Algebra: caller must supply the dynamic fee read from globalState();
	// this fallback is only hit if a caller forgets to do so.
	return 0
}

// DexVariantFromRouterFee maps a router's human name plus an optional fee
// tier (0 for "no tier", e.g. Algebra or a V2 router) to a DexVariant. Used
// by the mempool decoder/simulator to resolve a pending swap's router label
// into the same enum the pool store is keyed by.
func DexVariantFromRouterFee(routerName string, feeTier uint32) DexVariant {
	switch routerName {
	case "QuickswapV2":
		return QuickswapV2
	case "SushiswapV2":
		return SushiswapV2
	case "ApeswapV2":
		return ApeswapV2
	case "AlgebraV3", "QuickswapV3":
		return QuickswapV3
	case "UniswapV3":
		switch feeTier {
		case 100:
			return UniswapV3Fee100
		case 500:
			return UniswapV3Fee500
		case 3000:
			return UniswapV3Fee3000
		case 10000:
			return UniswapV3Fee10000
		}
	case "SushiV3":
		switch feeTier {
		case 100:
			return SushiV3Fee100
		case 500:
			return SushiV3Fee500
		case 3000:
			return SushiV3Fee3000
		}
	}
	return Unknown
}
