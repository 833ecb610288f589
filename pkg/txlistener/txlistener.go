// Package txlistener polls for transaction receipts, giving the rest of
// the engine a single WaitForTransaction call instead of hand-rolled
// polling loops around client.TransactionReceipt.
package txlistener

import (
	"context"
	"fmt"
	"time"

	"github.com/ChoSanghyuk/dexarb/pkg/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultTimeout      = 2 * time.Minute
)

// ReceiptClient is the subset of ethclient.Client needed to poll for a
// mined transaction and translate its receipt to the wire TxReceipt shape.
type ReceiptClient interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// TxListener waits for a submitted transaction to be mined and converts
// its receipt into the engine's wire format.
type TxListener interface {
	WaitForTransaction(txHash common.Hash) (*types.TxReceipt, error)
}

type poller struct {
	client       ReceiptClient
	pollInterval time.Duration
	timeout      time.Duration
}

// Option configures a TxListener constructed via NewTxListener.
type Option func(*poller)

// WithPollInterval overrides the default 2s receipt-polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(p *poller) { p.pollInterval = d }
}

// WithTimeout overrides the default 2-minute wait timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *poller) { p.timeout = d }
}

// NewTxListener builds a polling-based TxListener.
func NewTxListener(client ReceiptClient, opts ...Option) TxListener {
	p := &poller{client: client, pollInterval: defaultPollInterval, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WaitForTransaction blocks, polling at p.pollInterval, until txHash is
// mined or p.timeout elapses.
func (p *poller) WaitForTransaction(txHash common.Hash) (*types.TxReceipt, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := p.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return toTxReceipt(txHash, receipt), nil
		}
		if err != ethereum.NotFound {
			return nil, fmt.Errorf("failed to fetch receipt for %s: %w", txHash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for transaction %s to be mined", txHash.Hex())
		case <-ticker.C:
		}
	}
}

func toTxReceipt(txHash common.Hash, r *gethtypes.Receipt) *types.TxReceipt {
	logs := make([]types.ReceiptLog, 0, len(r.Logs))
	for _, l := range r.Logs {
		logs = append(logs, types.ReceiptLog{
			Address: l.Address,
			Topics:  l.Topics,
			Data:    l.Data,
		})
	}
	return &types.TxReceipt{
		TransactionHash:   txHash,
		BlockNumber:       fmt.Sprintf("0x%x", r.BlockNumber),
		GasUsed:           fmt.Sprintf("0x%x", r.GasUsed),
		EffectiveGasPrice: fmt.Sprintf("0x%x", r.EffectiveGasPrice),
		Status:            fmt.Sprintf("0x%x", r.Status),
		Logs:              logs,
	}
}
