package pool

import (
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChoSanghyuk/dexarb/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestSnapshotWriter_Write_AtomicRenameAndContent(t *testing.T) {
	store := NewStore()
	store.UpsertV2(&types.V2PoolState{
		Address: common.HexToAddress("0x1"), Dex: types.QuickswapV2, PairSymbol: "WETH/USDC",
		Token0: common.HexToAddress("0x2"), Token1: common.HexToAddress("0x3"),
		Reserve0: big.NewInt(1000), Reserve1: big.NewInt(2000),
		Token0Decimals: 18, Token1Decimals: 6, LastUpdatedBlock: 10,
	})
	store.UpsertV3(&types.V3PoolState{
		Address: common.HexToAddress("0x4"), Dex: types.UniswapV3Fee500, PairSymbol: "WETH/USDC",
		SqrtPriceX96: big.NewInt(5555), Tick: -10, Liquidity: big.NewInt(0),
		LastUpdatedBlock: 12,
	})

	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	w := NewSnapshotWriter(store, path, 137)

	err := w.Write(12)
	assert.NoError(t, err)

	// tmp file must not linger after a successful rename.
	_, statErr := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(statErr))

	data, err := os.ReadFile(path)
	assert.NoError(t, err)

	var snap Snapshot
	assert.NoError(t, json.Unmarshal(data, &snap))

	assert.Equal(t, uint64(12), snap.BlockNumber)
	assert.Equal(t, uint64(137), snap.ChainID)
	assert.Len(t, snap.Pools, 1)
	assert.Len(t, snap.V3Pools, 1)

	v2 := snap.Pools[key(types.QuickswapV2, "WETH/USDC")]
	assert.Equal(t, "1000", v2.Reserve0)
	assert.Equal(t, "2000", v2.Reserve1)
	assert.Equal(t, "QuickswapV2", v2.Dex)

	v3 := snap.V3Pools[key(types.UniswapV3Fee500, "WETH/USDC")]
	assert.Equal(t, "5555", v3.SqrtPriceX96)
	assert.True(t, v3.Phantom)
}

func TestSnapshotWriter_Write_CreatesMissingDir(t *testing.T) {
	store := NewStore()
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "dir", "snapshot.json")

	w := NewSnapshotWriter(store, path, 1)
	err := w.Write(0)
	assert.NoError(t, err)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestSnapshotWriter_Run_StopsOnSignal(t *testing.T) {
	store := NewStore()
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	w := NewSnapshotWriter(store, path, 1)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		w.Run(func() uint64 { return 1 }, 5*time.Millisecond, stop, nil)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after signal")
	}

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestBigIntString(t *testing.T) {
	assert.Equal(t, "0", bigIntString(nil))
	assert.Equal(t, "42", bigIntString(big.NewInt(42)))
}
