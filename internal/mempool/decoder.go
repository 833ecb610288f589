// Package mempool decodes pending-transaction calldata into swap intents
// (spec §4.10), simulates their price impact against the pool store (spec
// §4.11), and tracks mempool-to-block confirmation lead time (spec §4.12).
package mempool

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	"github.com/ChoSanghyuk/dexarb/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

// Router selectors this decoder recognizes (spec §4.10).
const (
	selV3ExactInputSingle    = "414bf389"
	selV3ExactInput          = "c04b8d59"
	selV3ExactOutputSingle   = "db3e2198"
	selV3ExactOutput         = "f28c0498"
	selMulticallWithDeadline = "5ae401dc" // multicall(uint256,bytes[])
	selMulticallPlain        = "ac9650d8" // multicall(bytes[])

	selAlgebraExactInputSingle = "04e45aaf"

	selV2SwapExactTokensForTokens = "38ed1739"
	selV2SwapTokensForExactTokens = "8803dbee"
	selV2SwapExactETHForTokens    = "7ff36ab5"
	selV2SwapExactTokensForETH    = "18cbafe5"
)

// Decode dispatches calldata on its 4-byte selector and returns the decoded
// swap intent and whether the swap could be identified at all. Decoding
// failures are non-fatal per spec §4.10: callers log the selector and move
// on rather than treating ok=false as an error.
func Decode(calldata []byte) (swap types.DecodedSwap, ok bool) {
	if len(calldata) < 4 {
		return types.DecodedSwap{}, false
	}
	selector := strings.ToLower(fmt.Sprintf("%x", calldata[:4]))
	body := calldata[4:]

	switch selector {
	case selV3ExactInputSingle:
		return decodeV3ExactInputSingle(body)
	case selV3ExactOutputSingle:
		return decodeV3ExactOutputSingle(body)
	case selV3ExactInput:
		return decodeV3Path(body, "exactInput", false)
	case selV3ExactOutput:
		return decodeV3Path(body, "exactOutput", true)
	case selAlgebraExactInputSingle:
		return decodeAlgebraExactInputSingle(body)
	case selV2SwapExactTokensForTokens, selV2SwapTokensForExactTokens, selV2SwapExactETHForTokens, selV2SwapExactTokensForETH:
		return decodeV2Swap(body, v2FunctionName(selector))
	case selMulticallWithDeadline:
		return decodeMulticall(body, true)
	case selMulticallPlain:
		return decodeMulticall(body, false)
	}
	return types.DecodedSwap{}, false
}

func v2FunctionName(selector string) string {
	switch selector {
	case selV2SwapExactTokensForTokens:
		return "swapExactTokensForTokens"
	case selV2SwapTokensForExactTokens:
		return "swapTokensForExactTokens"
	case selV2SwapExactETHForTokens:
		return "swapExactETHForTokens"
	case selV2SwapExactTokensForETH:
		return "swapExactTokensForETH"
	}
	return "unknown"
}

// decodeV3ExactInputSingle decodes ExactInputSingleParams: (tokenIn,
// tokenOut, fee, recipient, deadline, amountIn, amountOutMinimum,
// sqrtPriceLimitX96). amountIn is word index 5, not 3 — word 3 is recipient.
func decodeV3ExactInputSingle(body []byte) (types.DecodedSwap, bool) {
	if len(body) < 32*6 {
		return types.DecodedSwap{}, false
	}
	tokenIn := wordToAddress(body[0:32])
	tokenOut := wordToAddress(body[32:64])
	fee := uint32(wordToUint64(body[64:96]))
	amountIn := wordToBigInt(body[5*32 : 6*32])

	return types.DecodedSwap{
		FunctionName: "exactInputSingle",
		TokenIn:      &tokenIn,
		TokenOut:     &tokenOut,
		AmountIn:     amountIn,
		FeeTier:      &fee,
	}, true
}

// decodeV3ExactOutputSingle decodes ExactOutputSingleParams: (tokenIn,
// tokenOut, fee, recipient, deadline, amountOut, amountInMaximum,
// sqrtPriceLimitX96). Exact-output swaps specify amountOut, not amountIn;
// the simulator treats exact-output swaps as too uncertain to size (spec
// §4.11), so AmountIn is deliberately left nil here, same as the path-based
// exactOutput variant below.
func decodeV3ExactOutputSingle(body []byte) (types.DecodedSwap, bool) {
	if len(body) < 32*3 {
		return types.DecodedSwap{}, false
	}
	tokenIn := wordToAddress(body[0:32])
	tokenOut := wordToAddress(body[32:64])
	fee := uint32(wordToUint64(body[64:96]))

	return types.DecodedSwap{
		FunctionName: "exactOutputSingle",
		TokenIn:      &tokenIn,
		TokenOut:     &tokenOut,
		FeeTier:      &fee,
	}, true
}

// decodeAlgebraExactInputSingle decodes Algebra's exactInputSingle params:
// (tokenIn, tokenOut, recipient, deadline, amountIn, amountOutMinimum,
// limitSqrtPrice) — no fee field (spec §4.10). amountIn is word index 4.
func decodeAlgebraExactInputSingle(body []byte) (types.DecodedSwap, bool) {
	if len(body) < 32*5 {
		return types.DecodedSwap{}, false
	}
	tokenIn := wordToAddress(body[0:32])
	tokenOut := wordToAddress(body[32:64])
	amountIn := wordToBigInt(body[4*32 : 5*32])

	return types.DecodedSwap{
		FunctionName: "exactInputSingle",
		TokenIn:      &tokenIn,
		TokenOut:     &tokenOut,
		AmountIn:     amountIn,
	}, true
}

// decodeV3Path extracts (first_token, last_token, first_fee) from the
// packed path encoding token(20)|fee(3)|token(20)[...] (spec §4.10). For
// exactOutput the path is reversed: first is tokenOut, last is tokenIn.
func decodeV3Path(body []byte, fnName string, reversed bool) (types.DecodedSwap, bool) {
	// ABI layout: (bytes path, address recipient, uint256 deadline,
	// uint256 amountIn/amountOut, uint256 amountOutMin/amountInMax). The
	// bytes field's offset is the first word.
	if len(body) < 32 {
		return types.DecodedSwap{}, false
	}
	offset := wordToUint64(body[0:32])
	if uint64(len(body)) < offset+32 {
		return types.DecodedSwap{}, false
	}
	pathLen := wordToUint64(body[offset : offset+32])
	pathStart := offset + 32
	if uint64(len(body)) < pathStart+pathLen {
		return types.DecodedSwap{}, false
	}
	path := body[pathStart : pathStart+pathLen]
	if len(path) < 43 { // token(20) + fee(3) + token(20)
		return types.DecodedSwap{}, false
	}

	firstToken := common.BytesToAddress(path[0:20])
	firstFee := uint32(path[20])<<16 | uint32(path[21])<<8 | uint32(path[22])
	lastToken := common.BytesToAddress(path[len(path)-20:])

	tokenIn, tokenOut := firstToken, lastToken
	if reversed {
		tokenIn, tokenOut = lastToken, firstToken
	}

	swap := types.DecodedSwap{
		FunctionName: fnName,
		TokenIn:      &tokenIn,
		TokenOut:     &tokenOut,
		FeeTier:      &firstFee,
	}
	// exactOutput specifies amountOut, not amountIn; the simulator treats
	// exact-output swaps as too uncertain to size regardless (spec §4.11),
	// so AmountIn is deliberately left nil there.
	if !reversed {
		amountWordOffset := pathStart + roundUp32(pathLen)
		if uint64(len(body)) >= amountWordOffset+64 {
			swap.AmountIn = wordToBigInt(body[amountWordOffset+32 : amountWordOffset+64])
		}
	}
	return swap, true
}

func roundUp32(n uint64) uint64 {
	return (n + 31) / 32 * 32
}

// decodeV2Swap extracts amountIn/amountOutMin and the first/last hop of the
// path argument shared by the four V2 router functions this decoder
// recognizes.
func decodeV2Swap(body []byte, fnName string) (types.DecodedSwap, bool) {
	if len(body) < 32*2 {
		return types.DecodedSwap{}, false
	}
	// swapExactTokensForTokens(amountIn, amountOutMin, path[], to, deadline)
	// swapTokensForExactTokens(amountOut, amountInMax, path[], to, deadline)
	// swapExactETHForTokens(amountOutMin, path[], to, deadline) -- payable, no amountIn word
	// swapExactTokensForETH(amountIn, amountOutMin, path[], to, deadline)
	switch fnName {
	case "swapExactETHForTokens":
		amountOutMin := wordToBigInt(body[0:32])
		pathOffset := wordToUint64(body[32:64])
		tokenIn, tokenOut, ok := decodeAddressPath(body, pathOffset)
		if !ok {
			return types.DecodedSwap{}, false
		}
		return types.DecodedSwap{FunctionName: fnName, TokenIn: &tokenIn, TokenOut: &tokenOut, AmountOutMin: amountOutMin}, true
	default:
		if len(body) < 32*3 {
			return types.DecodedSwap{}, false
		}
		word0 := wordToBigInt(body[0:32])
		word1 := wordToBigInt(body[32:64])
		pathOffset := wordToUint64(body[64:96])
		tokenIn, tokenOut, ok := decodeAddressPath(body, pathOffset)
		if !ok {
			return types.DecodedSwap{}, false
		}
		swap := types.DecodedSwap{FunctionName: fnName, TokenIn: &tokenIn, TokenOut: &tokenOut}
		// For swapTokensForExactTokens word0 is amountOut and word1 is
		// amountInMax (exact-output); the simulator rejects exact-output
		// swaps, so only the path/tokens are kept for it.
		if fnName != "swapTokensForExactTokens" {
			swap.AmountIn = word0
			swap.AmountOutMin = word1
		}
		return swap, true
	}
}

func decodeAddressPath(body []byte, offset uint64) (first, last common.Address, ok bool) {
	if uint64(len(body)) < offset+32 {
		return common.Address{}, common.Address{}, false
	}
	n := wordToUint64(body[offset : offset+32])
	if n == 0 || uint64(len(body)) < offset+32+n*32 {
		return common.Address{}, common.Address{}, false
	}
	elemsStart := offset + 32
	first = wordToAddress(body[elemsStart : elemsStart+32])
	last = wordToAddress(body[elemsStart+(n-1)*32 : elemsStart+n*32])
	return first, last, true
}

// decodeMulticall recurses into inner calls; the first recognized swap
// wins, function-name prefixed "multicall>" (spec §4.10). withDeadline
// selects whether the outer signature is multicall(uint256,bytes[]) or
// multicall(bytes[]).
func decodeMulticall(body []byte, withDeadline bool) (types.DecodedSwap, bool) {
	offsetWordIdx := 0
	if withDeadline {
		offsetWordIdx = 1
	}
	headerWords := offsetWordIdx + 1
	if len(body) < headerWords*32 {
		return types.DecodedSwap{}, false
	}
	arrOffset := wordToUint64(body[offsetWordIdx*32 : (offsetWordIdx+1)*32])
	if uint64(len(body)) < arrOffset+32 {
		return types.DecodedSwap{}, false
	}
	count := wordToUint64(body[arrOffset : arrOffset+32])
	elemsStart := arrOffset + 32

	for i := uint64(0); i < count; i++ {
		elemOffsetPos := elemsStart + i*32
		if uint64(len(body)) < elemOffsetPos+32 {
			break
		}
		relOffset := wordToUint64(body[elemOffsetPos : elemOffsetPos+32])
		callStart := elemsStart + relOffset
		if uint64(len(body)) < callStart+32 {
			break
		}
		callLen := wordToUint64(body[callStart : callStart+32])
		dataStart := callStart + 32
		if uint64(len(body)) < dataStart+callLen {
			break
		}
		inner := body[dataStart : dataStart+callLen]

		if swap, ok := Decode(inner); ok {
			swap.FunctionName = "multicall>" + swap.FunctionName
			return swap, true
		}
	}
	return types.DecodedSwap{FunctionName: "multicall(opaque)"}, true
}

func wordToAddress(word []byte) common.Address {
	return common.BytesToAddress(word[12:32])
}

func wordToUint64(word []byte) uint64 {
	return binary.BigEndian.Uint64(word[24:32])
}

func wordToBigInt(word []byte) *big.Int {
	return new(big.Int).SetBytes(word)
}
