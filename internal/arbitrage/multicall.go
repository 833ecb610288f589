package arbitrage

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ChoSanghyuk/dexarb/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

// Wire selectors from spec §6 "Multicall aggregator / Quoter wire protocol".
const (
	selectorAggregate3  = "82ad56cb"
	selectorQuoterV1    = "f7729d43"
	selectorQuoterV2    = "c6a5026a"
	selectorErrorString = "08c379a0" // Error(string)
	selectorPanicUint   = "4e487b71" // Panic(uint256)
)

// v2RouterFeeSentinel marks a leg that should be quoted through a V2
// router rather than a V1/V2-dialect quoter; the pre-screener special-cases
// it rather than encoding an aggregate3 sub-call (V2 routers don't revert
// to return data).
const v2RouterFeeSentinel = 16_777_215

// QuoterDialect selects which wire shape a DEX's quoter expects.
type QuoterDialect int

const (
	QuoterV1 QuoterDialect = iota
	QuoterV2
)

// DexQuoterConfig resolves a DexVariant to the on-chain quoter contract to
// call and the wire dialect it speaks (spec §6, UNISWAP_V3_QUOTER_IS_V2).
type DexQuoterConfig struct {
	Address common.Address
	Dialect QuoterDialect
}

// AggregateCaller is the narrow RPC surface the pre-screener needs: one
// eth_call per detector tick against the multicall aggregator contract.
type AggregateCaller interface {
	Aggregate3(ctx context.Context, target common.Address, calls []Call3) ([]Call3Result, error)
}

// Call3 mirrors the aggregator's (target, allowFailure, callData) tuple.
type Call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Call3Result mirrors the aggregator's (success, returnData) tuple.
type Call3Result struct {
	Success    bool
	ReturnData []byte
}

// PreScreener encodes buy+sell quoter calls for every candidate opportunity
// into one aggregated RPC and decodes the revert-return protocol (spec
// §4.7).
type PreScreener struct {
	aggregatorAddress common.Address
	caller            AggregateCaller
	quoters           map[types.DexVariant]DexQuoterConfig
}

// NewPreScreener builds a PreScreener against aggregatorAddress, resolving
// each DEX's quoter address/dialect via quoters.
func NewPreScreener(aggregatorAddress common.Address, caller AggregateCaller, quoters map[types.DexVariant]DexQuoterConfig) *PreScreener {
	return &PreScreener{aggregatorAddress: aggregatorAddress, caller: caller, quoters: quoters}
}

// Screen encodes and decodes both legs of every candidate, per spec §4.7.
// The sell leg's input amount is the 5%-haircut buy-out estimate
// (trade_size_human * buy_price * 0.95, rescaled to raw token1 units) that
// encodeLeg derives from each opportunity's own BuyPrice via estimatedBuyOut.
func (p *PreScreener) Screen(ctx context.Context, opportunities []types.ArbitrageOpportunity) ([]types.VerifiedOpportunity, error) {
	calls := make([]Call3, 0, len(opportunities)*2)
	for _, opp := range opportunities {
		buyCall, err := p.encodeLeg(opp, true)
		if err != nil {
			return passthrough(opportunities), nil //nolint:nilerr // encode failure degrades to passthrough, not a hard error
		}
		sellCall, err := p.encodeLeg(opp, false)
		if err != nil {
			return passthrough(opportunities), nil
		}
		calls = append(calls, buyCall, sellCall)
	}

	results, err := p.caller.Aggregate3(ctx, p.aggregatorAddress, calls)
	if err != nil {
		// "If the aggregate call itself fails, emit passthrough entries"
		// (spec §4.7) -- executor re-verifies.
		return passthrough(opportunities), nil
	}
	if len(results) != 2*len(opportunities) {
		return nil, fmt.Errorf("aggregate3 returned %d results, expected %d", len(results), 2*len(opportunities))
	}

	out := make([]types.VerifiedOpportunity, 0, len(opportunities))
	for i, opp := range opportunities {
		buyRes := results[2*i]
		sellRes := results[2*i+1]

		buyOut, buyErr := decodeQuoterResult(buyRes)
		sellOut, sellErr := decodeQuoterResult(sellRes)

		v := types.VerifiedOpportunity{ArbitrageOpportunity: opp}
		switch {
		case buyErr != "":
			v.Error = buyErr
			v.BothLegsValid = false
		case sellErr != "":
			v.Error = sellErr
			v.BothLegsValid = false
		case buyOut == nil || buyOut.Sign() == 0 || sellOut == nil:
			v.Error = "no liquidity"
			v.BothLegsValid = false
		case sellOut.Sign() == 0:
			v.Error = "no executable depth"
			v.BothLegsValid = false
		default:
			v.BuyQuotedOut = buyOut
			v.SellQuotedOut = sellOut
			v.QuotedProfitRaw = new(big.Int).Sub(sellOut, opp.TradeSizeRaw)
			v.BothLegsValid = true
		}
		out = append(out, v)
	}
	return out, nil
}

func passthrough(opportunities []types.ArbitrageOpportunity) []types.VerifiedOpportunity {
	out := make([]types.VerifiedOpportunity, 0, len(opportunities))
	for _, opp := range opportunities {
		out = append(out, types.VerifiedOpportunity{ArbitrageOpportunity: opp, IsPassthrough: true})
	}
	return out
}

// estimatedBuyOut computes trade_size_in_human * buy_price * 0.95, rescaled
// by token1 decimals, per spec §4.7's "5% haircut" encoding rule.
func estimatedBuyOut(opp types.ArbitrageOpportunity) *big.Int {
	tradeSizeHuman := new(big.Float).SetInt(opp.TradeSizeRaw)
	tradeSizeHuman.Quo(tradeSizeHuman, pow10(opp.Token0Decimals))

	out := new(big.Float).Mul(tradeSizeHuman, opp.BuyPrice)
	out.Mul(out, big.NewFloat(0.95))
	out.Mul(out, pow10(opp.Token1Decimals))

	result := new(big.Int)
	out.Int(result)
	return result
}

func pow10(n uint8) *big.Float {
	result := big.NewFloat(1)
	ten := big.NewFloat(10)
	for i := uint8(0); i < n; i++ {
		result.Mul(result, ten)
	}
	return result
}

func (p *PreScreener) encodeLeg(opp types.ArbitrageOpportunity, isBuy bool) (Call3, error) {
	// Buy leg spends quote token to acquire base token at trade_size; sell
	// leg spends the (haircut-estimated) base token received back for
	// quote, per spec §4.7.
	dex := opp.SellDex
	tokenIn, tokenOut := opp.BaseToken, opp.QuoteToken
	amountIn := estimatedBuyOut(opp)
	if isBuy {
		dex = opp.BuyDex
		tokenIn, tokenOut = opp.QuoteToken, opp.BaseToken
		amountIn = opp.TradeSizeRaw
	}

	qcfg, ok := p.quoters[dex]
	if !ok {
		return Call3{}, fmt.Errorf("no quoter configured for dex %s", dex)
	}
	feeTier := opp.BuyDex.AtomicFeeSentinel()
	if !isBuy {
		feeTier = opp.SellDex.AtomicFeeSentinel()
	}
	if feeTier == v2RouterFeeSentinel {
		return Call3{}, fmt.Errorf("dex %s is a V2 router; not quoter-screenable", dex)
	}

	calldata := encodeQuoterCall(qcfg.Dialect, tokenIn, tokenOut, feeTier, amountIn)
	return Call3{Target: qcfg.Address, AllowFailure: true, CallData: calldata}, nil
}

// encodeQuoterCall packs either the V1 (flat) or V2 (tuple) quoter
// calldata per spec §6.
func encodeQuoterCall(dialect QuoterDialect, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) []byte {
	selector := selectorQuoterV1
	if dialect == QuoterV2 {
		selector = selectorQuoterV2
	}
	data := mustHex(selector)

	feeBytes := make([]byte, 32)
	big.NewInt(int64(fee)).FillBytes(feeBytes[29:])

	amountBytes := make([]byte, 32)
	amountIn.FillBytes(amountBytes)

	zero := make([]byte, 32) // sqrtPriceLimitX96 = 0

	if dialect == QuoterV1 {
		data = append(data, leftPad(tokenIn.Bytes())...)
		data = append(data, leftPad(tokenOut.Bytes())...)
		data = append(data, feeBytes...)
		data = append(data, amountBytes...)
		data = append(data, zero...)
	} else {
		// Single static tuple: it has no dynamic members, so it is encoded
		// in place as its fields concatenated, with no offset word.
		data = append(data, leftPad(tokenIn.Bytes())...)
		data = append(data, leftPad(tokenOut.Bytes())...)
		data = append(data, amountBytes...)
		data = append(data, feeBytes...)
		data = append(data, zero...)
	}
	return data
}

func leftPad(b []byte) []byte {
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

func mustHex(s string) []byte {
	b := make([]byte, len(s)/2)
	for i := 0; i < len(b); i++ {
		fmt.Sscanf(s[2*i:2*i+2], "%02x", &b[i])
	}
	return b
}

// decodeQuoterResult implements spec §4.7's decode rules. errMsg is
// non-empty for a real revert (Error/Panic selector) and for return data too
// short to hold an amountOut word. Empty return data yields (nil, "") and a
// zero amountOut is returned as is; Screen turns those into its "no
// liquidity"/"no executable depth" messages.
func decodeQuoterResult(r Call3Result) (amountOut *big.Int, errMsg string) {
	if len(r.ReturnData) == 0 {
		return nil, "" // "no liquidity" -- caller maps nil to that message
	}

	selector := fmt.Sprintf("%x", r.ReturnData[:min(4, len(r.ReturnData))])
	switch selector {
	case selectorErrorString:
		return nil, decodeErrorString(r.ReturnData)
	case selectorPanicUint:
		return nil, "arithmetic panic"
	}

	if len(r.ReturnData) < 32 {
		return nil, "malformed quoter return data"
	}
	return new(big.Int).SetBytes(r.ReturnData[:32]), ""
}

func decodeErrorString(data []byte) string {
	// Error(string) ABI-encodes as selector(4) | offset(32) | length(32) | bytes.
	if len(data) < 4+32+32 {
		return "revert"
	}
	length := new(big.Int).SetBytes(data[4+32 : 4+64]).Int64()
	start := int64(4 + 64)
	if start+length > int64(len(data)) {
		return "revert"
	}
	return strings.TrimRight(string(data[start:start+length]), "\x00")
}
