package arbitrage

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ChoSanghyuk/dexarb/pkg/contractclient"
	"github.com/ChoSanghyuk/dexarb/pkg/txlistener"
	"github.com/ChoSanghyuk/dexarb/pkg/types"
	"github.com/ChoSanghyuk/dexarb/pkg/util"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// arbExecutedSignature is the executor contract's event signature (spec
// §6); its keccak256 is topic0 of ArbExecuted logs.
const arbExecutedSignature = "ArbExecuted(address,address,uint256,uint256,uint256,address,address)"

// ErrCapitalCommitted marks a legacy two-tx failure where the buy leg
// already broadcast; the main loop must halt rather than continue to the
// next candidate (spec §7).
var ErrCapitalCommitted = errors.New("capital committed: buy succeeded, sell rejected")

// ErrAmbiguousOutcome marks an atomic-mode broadcast whose on-chain result
// could not be confirmed (receipt observation timed out); unlike a clean
// revert, the position's true state is unknown and the main loop must halt
// rather than treat the route as a retryable failure.
var ErrAmbiguousOutcome = errors.New("ambiguous outcome: tx broadcast but result could not be confirmed")

// ErrBlacklisted is returned by Execute when the cooldown store refuses the
// route: either it is permanently session-blacklisted or it is still inside
// a cooldown window.
var ErrBlacklisted = errors.New("route is permanently blacklisted")

// ExecutionResult reports what happened when the driver attempted to
// realize an opportunity (spec §4.9/§7).
type ExecutionResult struct {
	Success     bool
	TxHash      *common.Hash // set whenever capital may have moved
	ProfitUSD   float64
	GasCostUSD  float64
	Error       error
}

// RouterMap resolves a DexVariant to its on-chain router address (spec
// §6's per-DEX {FACTORY, ROUTER, QUOTER} config).
type RouterMap map[types.DexVariant]common.Address

// ExecutorConfig holds the atomic executor's tunables.
type ExecutorConfig struct {
	ExecutorAddress  common.Address // zero value => legacy two-tx mode (spec §4.9)
	Routers          RouterMap
	QuoteDecimals    uint8
	NativeTokenPriceUSD float64
	SlippagePct      float64
}

// Executor drives opportunities to on-chain execution, atomic mode
// preferred, legacy two-tx mode as fallback when no executor contract is
// configured (spec §4.9).
type Executor struct {
	cfg       ExecutorConfig
	client    contractclient.ContractClient            // bound to ExecutorAddress's ABI, in atomic mode
	v2Routers map[types.DexVariant]contractclient.ContractClient // one client per V2 router, for legacy mode
	listener  txlistener.TxListener
	myAddr    common.Address
	pk        *ecdsa.PrivateKey
	cooldown  *CooldownStore
}

// NewExecutor builds an Executor. client may be nil when cfg.ExecutorAddress
// is the zero address (legacy mode uses v2Routers instead).
func NewExecutor(cfg ExecutorConfig, client contractclient.ContractClient, v2Routers map[types.DexVariant]contractclient.ContractClient, listener txlistener.TxListener, myAddr common.Address, pk *ecdsa.PrivateKey, cooldown *CooldownStore) *Executor {
	return &Executor{cfg: cfg, client: client, v2Routers: v2Routers, listener: listener, myAddr: myAddr, pk: pk, cooldown: cooldown}
}

// IsAtomic reports whether this executor has a configured executor
// contract address (spec §4.9 "Atomic mode (preferred)").
func (e *Executor) IsAtomic() bool {
	return e.cfg.ExecutorAddress != (common.Address{})
}

// Execute drives one opportunity through to completion. route is
// (pair, buy dex, sell dex); currentBlock gates the cooldown check.
func (e *Executor) Execute(ctx context.Context, opp types.VerifiedOpportunity, currentBlock uint64) ExecutionResult {
	route := types.Route{PairSymbol: opp.Pair, BuyDex: opp.BuyDex, SellDex: opp.SellDex}
	if e.cooldown.IsCooledDown(route, currentBlock) {
		return ExecutionResult{Success: false, Error: ErrBlacklisted}
	}

	var result ExecutionResult
	if e.IsAtomic() {
		result = e.executeAtomic(opp)
	} else {
		result = e.executeLegacy(ctx, opp)
	}

	if result.Success {
		e.cooldown.RecordSuccess(route)
	} else if !errors.Is(result.Error, ErrCapitalCommitted) && !errors.Is(result.Error, ErrAmbiguousOutcome) {
		// Pre-trade rejection or a mined-but-reverted atomic tx (no capital
		// actually moved, since executeArb unwinds atomically): counts as a
		// retryable route failure, regardless of whether a TxHash exists.
		e.cooldown.RecordFailure(route, currentBlock)
	}
	// A result wrapping ErrCapitalCommitted or ErrAmbiguousOutcome means the
	// caller (main loop) must halt rather than move on to the next route --
	// the position's true state needs manual intervention.
	return result
}

// executeAtomic implements spec §4.9's atomic-mode steps 1-7.
func (e *Executor) executeAtomic(opp types.VerifiedOpportunity) ExecutionResult {
	token0, token1 := opp.QuoteToken, opp.BaseToken
	if !opp.QuoteTokenIsToken0 {
		token0, token1 = opp.BaseToken, opp.QuoteToken
	}

	routerBuy, ok := e.cfg.Routers[opp.BuyDex]
	if !ok {
		return ExecutionResult{Success: false, Error: fmt.Errorf("no router configured for buy dex %s", opp.BuyDex)}
	}
	routerSell, ok := e.cfg.Routers[opp.SellDex]
	if !ok {
		return ExecutionResult{Success: false, Error: fmt.Errorf("no router configured for sell dex %s", opp.SellDex)}
	}

	minProfitRaw := new(big.Int)
	new(big.Float).Mul(big.NewFloat(opp.MinProfitUSD), pow10(e.cfg.QuoteDecimals)).Int(minProfitRaw)

	txHash, err := e.client.Send(
		types.Standard, nil, &e.myAddr, e.pk, "executeArb",
		token0, token1, routerBuy, routerSell,
		opp.BuyDex.AtomicFeeSentinel(), opp.SellDex.AtomicFeeSentinel(),
		opp.TradeSizeRaw, minProfitRaw,
	)
	if err != nil {
		// A revert (InsufficientProfit or any other string) never broadcasts
		// a mined tx under Send's synchronous nonce/gas estimation path in
		// this client, so this is a pre-trade rejection -- no capital risk.
		return ExecutionResult{Success: false, Error: err}
	}

	receipt, err := e.waitForReceipt(txHash)
	if err != nil {
		h := txHash
		return ExecutionResult{Success: false, TxHash: &h, Error: fmt.Errorf("%w: failed to observe submitted tx to completion: %s", ErrAmbiguousOutcome, err)}
	}
	if receipt.Status != "0x1" {
		// executeArb is atomic: a revert unwinds the whole call, so no capital
		// actually moved and this route is safe to retry like any other
		// pre-trade rejection.
		h := txHash
		return ExecutionResult{Success: false, TxHash: &h, Error: errors.New("atomic executeArb reverted on-chain")}
	}

	profit, _, err := e.parseArbExecuted(receipt)
	if err != nil {
		h := txHash
		return ExecutionResult{Success: true, TxHash: &h, Error: fmt.Errorf("succeeded but failed to parse ArbExecuted log: %w", err)}
	}

	gasCost, gasErr := util.ExtractGasCost(receipt)
	gasCostUSD := 0.0
	if gasErr == nil {
		gasCostUSD = weiToUSD(gasCost, e.cfg.NativeTokenPriceUSD)
	}

	h := txHash
	return ExecutionResult{
		Success:    true,
		TxHash:     &h,
		ProfitUSD:  rawToUSD(profit, e.cfg.QuoteDecimals),
		GasCostUSD: gasCostUSD,
	}
}

// executeLegacy implements spec §4.9's "Legacy two-tx mode (fallback)".
func (e *Executor) executeLegacy(ctx context.Context, opp types.VerifiedOpportunity) ExecutionResult {
	if !opp.BothLegsValid {
		return ExecutionResult{Success: false, Error: fmt.Errorf("legacy mode requires both legs pre-verified: %s", opp.Error)}
	}

	buyRouter, ok := e.v2Routers[opp.BuyDex]
	if !ok {
		return ExecutionResult{Success: false, Error: fmt.Errorf("no router client configured for buy dex %s", opp.BuyDex)}
	}

	minOutBuy := util.CalculateMinOut(opp.TradeSizeRaw, mustFloat64(opp.BuyPrice), opp.Token0Decimals, opp.Token1Decimals, e.cfg.SlippagePct)

	buyTxHash, err := buyRouter.Send(
		types.Standard, nil, &e.myAddr, e.pk, "swapExactTokensForTokens",
		opp.TradeSizeRaw, minOutBuy, []common.Address{opp.QuoteToken, opp.BaseToken}, e.myAddr,
	)
	if err != nil {
		return ExecutionResult{Success: false, Error: fmt.Errorf("buy leg pre-trade rejection: %w", err)}
	}

	buyReceipt, err := e.waitForReceipt(buyTxHash)
	if err != nil {
		h := buyTxHash
		return ExecutionResult{Success: false, TxHash: &h, Error: fmt.Errorf("%w: failed to observe buy tx: %s", ErrCapitalCommitted, err)}
	}
	if buyReceipt.Status != "0x1" {
		h := buyTxHash
		return ExecutionResult{Success: false, TxHash: &h, Error: fmt.Errorf("%w: buy leg reverted on-chain", ErrCapitalCommitted)}
	}

	// Buy succeeded; capital is committed from here on. A sell-leg quoter
	// rejection after this point halts the main loop (spec §4.9 step 6,
	// Scenario F) rather than being treated as a retryable route failure.
	sellRouter, ok := e.v2Routers[opp.SellDex]
	if !ok {
		h := buyTxHash
		return ExecutionResult{Success: false, TxHash: &h, Error: fmt.Errorf("%w: no router client configured for sell dex %s", ErrCapitalCommitted, opp.SellDex)}
	}

	// 1.0/SellPrice assumes SellPrice is quoted token1-per-token0 (BaseToken
	// is token0); this legacy approximate path (spec §9) is not valid if a
	// route's SellPrice is ever populated in the opposite orientation.
	minOutSell := util.CalculateMinOut(opp.SellQuotedOut, 1.0/mustFloat64(opp.SellPrice), opp.Token1Decimals, opp.Token0Decimals, e.cfg.SlippagePct)

	sellTxHash, err := sellRouter.Send(
		types.Standard, nil, &e.myAddr, e.pk, "swapExactTokensForTokens",
		opp.SellQuotedOut, minOutSell, []common.Address{opp.BaseToken, opp.QuoteToken}, e.myAddr,
	)
	if err != nil {
		h := buyTxHash
		return ExecutionResult{Success: false, TxHash: &h, Error: fmt.Errorf("%w: sell leg rejected after buy (tx %s): %s", ErrCapitalCommitted, buyTxHash.Hex(), err)}
	}

	sellReceipt, err := e.waitForReceipt(sellTxHash)
	if err != nil {
		h := sellTxHash
		return ExecutionResult{Success: false, TxHash: &h, Error: fmt.Errorf("%w: failed to observe sell tx: %s", ErrCapitalCommitted, err)}
	}
	if sellReceipt.Status != "0x1" {
		h := sellTxHash
		return ExecutionResult{Success: false, TxHash: &h, Error: fmt.Errorf("%w: sell leg reverted on-chain", ErrCapitalCommitted)}
	}

	// Legacy mode's gas/native-price figures are the fixed approximations
	// named in spec §9 Open Questions (0.02 native, $0.50), not receipt
	// values; atomic mode is preferred for that reason.
	const legacyGasNative = 0.02
	const legacyNativePriceUSD = 0.50

	h := sellTxHash
	return ExecutionResult{
		Success:    true,
		TxHash:     &h,
		ProfitUSD:  rawToUSD(opp.QuotedProfitRaw, e.cfg.QuoteDecimals),
		GasCostUSD: legacyGasNative * legacyNativePriceUSD,
	}
}

func (e *Executor) waitForReceipt(txHash common.Hash) (*types.TxReceipt, error) {
	// The atomic and legacy paths both need a mined receipt; the executor
	// never times out mid-send once broadcast (spec §5 "Cancellation and
	// timeouts"), so the configured listener's own (generous) timeout is
	// what bounds this call.
	return e.listener.WaitForTransaction(txHash)
}

func (e *Executor) parseArbExecuted(receipt *types.TxReceipt) (profit, amountOut *big.Int, err error) {
	topic0 := crypto.Keccak256Hash([]byte(arbExecutedSignature))
	for _, l := range receipt.Logs {
		if len(l.Topics) == 0 || l.Topics[0] != topic0 {
			continue
		}
		if len(l.Data) < 192 {
			return nil, nil, fmt.Errorf("ArbExecuted log data too short: %d bytes", len(l.Data))
		}
		amountOut = new(big.Int).SetBytes(l.Data[32:64])
		profit = new(big.Int).SetBytes(l.Data[64:96])
		return profit, amountOut, nil
	}
	return nil, nil, errors.New("no ArbExecuted log found in receipt")
}

func rawToUSD(raw *big.Int, decimals uint8) float64 {
	if raw == nil {
		return 0
	}
	f := new(big.Float).SetInt(raw)
	f.Quo(f, pow10(decimals))
	out, _ := f.Float64()
	return out
}

func weiToUSD(wei *big.Int, nativePriceUSD float64) float64 {
	f := new(big.Float).SetInt(wei)
	f.Quo(f, pow10(18))
	f.Mul(f, big.NewFloat(nativePriceUSD))
	out, _ := f.Float64()
	return out
}

func mustFloat64(f *big.Float) float64 {
	v, _ := f.Float64()
	return v
}
