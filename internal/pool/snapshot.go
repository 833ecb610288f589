package pool

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ChoSanghyuk/dexarb/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

// Snapshot is the on-disk shape written by SnapshotWriter (spec §4.4).
// Consumers detect staleness by comparing LastUpdated against wall-clock.
type Snapshot struct {
	LastUpdated time.Time              `json:"last_updated"`
	BlockNumber uint64                 `json:"block_number"`
	ChainID     uint64                 `json:"chain_id"`
	Pools       map[string]V2Snapshot  `json:"pools"`
	V3Pools     map[string]V3Snapshot  `json:"v3_pools"`
	Stats       Stats                  `json:"stats"`
}

// V2Snapshot is the JSON-friendly projection of types.V2PoolState: *big.Int
// fields marshal to decimal strings so the document survives round-trip
// through languages without arbitrary-precision integers.
type V2Snapshot struct {
	Address          common.Address `json:"address"`
	Dex              string         `json:"dex"`
	PairSymbol       string         `json:"pair_symbol"`
	Token0           common.Address `json:"token0"`
	Token1           common.Address `json:"token1"`
	Reserve0         string         `json:"reserve0"`
	Reserve1         string         `json:"reserve1"`
	Token0Decimals   uint8          `json:"token0_decimals"`
	Token1Decimals   uint8          `json:"token1_decimals"`
	LastUpdatedBlock uint64         `json:"last_updated_block"`
}

// V3Snapshot is the JSON-friendly projection of types.V3PoolState.
type V3Snapshot struct {
	Address          common.Address `json:"address"`
	Dex              string         `json:"dex"`
	PairSymbol       string         `json:"pair_symbol"`
	Token0           common.Address `json:"token0"`
	Token1           common.Address `json:"token1"`
	SqrtPriceX96     string         `json:"sqrt_price_x96"`
	Tick             int32          `json:"tick"`
	Fee              uint32         `json:"fee"`
	Liquidity        string         `json:"liquidity"`
	Token0Decimals   uint8          `json:"token0_decimals"`
	Token1Decimals   uint8          `json:"token1_decimals"`
	LastUpdatedBlock uint64         `json:"last_updated_block"`
	Phantom          bool           `json:"phantom"`
}

// SnapshotWriter periodically serializes a Store to disk via atomic
// write-then-rename (spec §4.4).
type SnapshotWriter struct {
	store   *Store
	path    string
	chainID uint64
}

func NewSnapshotWriter(store *Store, path string, chainID uint64) *SnapshotWriter {
	return &SnapshotWriter{store: store, path: path, chainID: chainID}
}

// Write builds the full-store snapshot and commits it to disk. It writes to
// "<path>.tmp" and renames over "<path>" so a concurrent reader never
// observes a partially written document (spec §4.4 write protocol).
func (w *SnapshotWriter) Write(blockNumber uint64) error {
	snap := Snapshot{
		LastUpdated: time.Now(),
		BlockNumber: blockNumber,
		ChainID:     w.chainID,
		Pools:       make(map[string]V2Snapshot),
		V3Pools:     make(map[string]V3Snapshot),
		Stats:       w.store.CombinedStats(),
	}

	w.store.IterateAll(
		func(p *types.V2PoolState) {
			snap.Pools[key(p.Dex, p.PairSymbol)] = toV2Snapshot(p)
		},
		func(p *types.V3PoolState) {
			snap.V3Pools[key(p.Dex, p.PairSymbol)] = toV3Snapshot(p)
		},
	)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmpPath := w.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}

// Run calls Write every interval until ctx is cancelled. A failed write is
// logged by the caller-supplied onError and does not stop the loop -- a
// transient disk error shouldn't take down the whole sync process.
func (w *SnapshotWriter) Run(blockNumberFn func() uint64, interval time.Duration, stop <-chan struct{}, onError func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := w.Write(blockNumberFn()); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}

func toV2Snapshot(p *types.V2PoolState) V2Snapshot {
	return V2Snapshot{
		Address:          p.Address,
		Dex:              p.Dex.String(),
		PairSymbol:       p.PairSymbol,
		Token0:           p.Token0,
		Token1:           p.Token1,
		Reserve0:         bigIntString(p.Reserve0),
		Reserve1:         bigIntString(p.Reserve1),
		Token0Decimals:   p.Token0Decimals,
		Token1Decimals:   p.Token1Decimals,
		LastUpdatedBlock: p.LastUpdatedBlock,
	}
}

func toV3Snapshot(p *types.V3PoolState) V3Snapshot {
	return V3Snapshot{
		Address:          p.Address,
		Dex:              p.Dex.String(),
		PairSymbol:       p.PairSymbol,
		Token0:           p.Token0,
		Token1:           p.Token1,
		SqrtPriceX96:     bigIntString(p.SqrtPriceX96),
		Tick:             p.Tick,
		Fee:              p.Fee,
		Liquidity:        bigIntString(p.Liquidity),
		Token0Decimals:   p.Token0Decimals,
		Token1Decimals:   p.Token1Decimals,
		LastUpdatedBlock: p.LastUpdatedBlock,
		Phantom:          p.IsPhantom(),
	}
}

func bigIntString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
