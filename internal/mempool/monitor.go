package mempool

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ChoSanghyuk/dexarb/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// TxSource is the narrow RPC surface Monitor needs: subscribe to pending
// transaction hashes and fetch full transaction bodies by hash.
type TxSource interface {
	EthSubscribe(ctx context.Context, channel interface{}, args ...interface{}) (*rpc.ClientSubscription, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *gethtypes.Transaction, isPending bool, err error)
}

// RouterEntry identifies a tracked router contract for calldata decoding:
// the human name DexVariantFromRouterFee expects (spec §4.10's "known
// router addresses" input).
type RouterEntry struct {
	Name string
}

// Monitor subscribes to the node's pending-transaction feed, decodes
// calldata aimed at known router addresses, and hands decoded swaps to a
// Simulator (spec §4.10/§4.11/§4.12, wired end to end).
type Monitor struct {
	source     TxSource
	routers    map[common.Address]RouterEntry
	simulator  *Simulator
	confirm    *ConfirmationTracker
	onOpp      func(types.SimulatedOpportunity)
	onObserve  func(types.PendingSwapObservation)
}

// NewMonitor builds a Monitor. onOpp is called (from the subscription's own
// goroutine) whenever a decoded swap simulates into a non-zero cross-DEX
// spread. An observation callback is registered separately with OnObserve.
func NewMonitor(source TxSource, routers map[common.Address]RouterEntry, simulator *Simulator, confirm *ConfirmationTracker, onOpp func(types.SimulatedOpportunity)) *Monitor {
	return &Monitor{source: source, routers: routers, simulator: simulator, confirm: confirm, onOpp: onOpp}
}

// OnObserve registers a callback invoked for every decoded pending swap
// whose router and fee tier resolve to a known DEX, independent of whether
// it produced a cross-DEX opportunity.
func (m *Monitor) OnObserve(fn func(types.PendingSwapObservation)) {
	m.onObserve = fn
}

// ConfirmationTracker exposes the tracker backing this monitor's pending
// observations, so a block-watching loop can report confirmations against
// the same instance (spec §4.12's "on every new block's included
// transaction list, looks up each hash").
func (m *Monitor) ConfirmationTracker() *ConfirmationTracker {
	return m.confirm
}

// Run subscribes to "newPendingTransactions" and processes hashes until ctx
// is cancelled. A transaction whose calldata cannot be decoded is logged
// with its selector and skipped; one that cannot be fetched, or whose
// router/fee tier is not recognized, is skipped silently. Neither is fatal
// to the subscription (same non-fatal stance as the sync engines, spec
// §4.2/§4.3).
func (m *Monitor) Run(ctx context.Context) error {
	hashes := make(chan common.Hash, 256)
	sub, err := m.source.EthSubscribe(ctx, hashes, "newPendingTransactions")
	if err != nil {
		return fmt.Errorf("subscribe to pending transactions: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			return fmt.Errorf("pending transaction subscription error: %w", err)
		case hash := <-hashes:
			m.handle(ctx, hash)
		}
	}
}

func (m *Monitor) handle(ctx context.Context, hash common.Hash) {
	tx, isPending, err := m.source.TransactionByHash(ctx, hash)
	if err != nil || tx == nil || !isPending || tx.To() == nil {
		return
	}

	entry, ok := m.routers[*tx.To()]
	if !ok {
		return
	}

	swap, ok := Decode(tx.Data())
	if !ok {
		selector := tx.Data()
		if len(selector) > 4 {
			selector = selector[:4]
		}
		log.Printf("mempool: tx %s: could not decode calldata with selector %x", hash.Hex(), selector)
		return
	}

	var feeTier uint32
	if swap.FeeTier != nil {
		feeTier = *swap.FeeTier
	}
	dex := types.DexVariantFromRouterFee(entry.Name, feeTier)
	if dex == types.Unknown {
		return
	}

	obs := types.PendingSwapObservation{
		SeenAt:     time.Now(),
		TxHash:     hash,
		Router:     *tx.To(),
		RouterName: entry.Name,
		Decoded:    swap,
		GasPrice:   tx.GasPrice(),
	}
	if tip := tx.GasTipCap(); tip != nil {
		obs.PriorityFee = tip
	}

	if m.confirm != nil {
		m.confirm.Observe(hash, obs.SeenAt)
	}
	if m.onObserve != nil {
		m.onObserve(obs)
	}

	result, ok := m.simulator.Simulate(obs, obs.Router, dex)
	if !ok || result == nil {
		return
	}
	if result.ArbSpreadPct == 0 {
		return // simulation succeeded but opened no cross-DEX edge
	}
	log.Printf("mempool: tx %s on %s simulates a %.4f%% spread between %s and %s for %s", hash.Hex(), dex, result.ArbSpreadPct, result.ArbBuyDex, result.ArbSellDex, result.Pair)
	if m.onOpp != nil {
		m.onOpp(*result)
	}
}
