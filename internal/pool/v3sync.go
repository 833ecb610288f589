package pool

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"github.com/ChoSanghyuk/dexarb/pkg/contractclient"
	"github.com/ChoSanghyuk/dexarb/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// V3PoolConfig is the static, operator-supplied identity of a tracked V3
// (or Algebra) pool: which pair it belongs to and which DEX it's deployed
// on (spec §4.2).
type V3PoolConfig struct {
	Address    common.Address
	Dex        types.DexVariant
	PairSymbol string
}

// V3Syncer polls a fixed set of V3/Algebra pools and keeps the shared Store
// current (spec §4.2). One concurrent RPC fan-out per sync tick, errgroup
// joins the fan-out without propagating a single pool's failure to the
// others (a reverting/unreachable pool is logged and skipped, not fatal).
type V3Syncer struct {
	store    *Store
	clients  map[common.Address]contractclient.ContractClient // per-pool bound client
	pools    []V3PoolConfig
	decimals *decimalsCache
}

// NewV3Syncer builds a syncer over pools, using clients (already bound one
// per pool address) for pool reads and erc20Clients (bound per token
// address, decimals() only) for the one-time decimals lookups.
func NewV3Syncer(store *Store, pools []V3PoolConfig, clients map[common.Address]contractclient.ContractClient, erc20Clients map[common.Address]contractclient.ContractClient) *V3Syncer {
	return &V3Syncer{
		store:    store,
		clients:  clients,
		pools:    pools,
		decimals: newDecimalsCache(erc20Clients),
	}
}

// SyncAll fans out one goroutine per tracked pool and refreshes every one
// of its mutable fields: slot0 (sqrtPrice, tick), liquidity, and, on first
// sight of a pool, its immutable token0/token1/fee and each token's
// decimals (spec §4.2 discovery). currentBlock stamps LastUpdatedBlock on
// every pool this tick touches.
func (s *V3Syncer) SyncAll(ctx context.Context, currentBlock uint64) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, cfg := range s.pools {
		cfg := cfg
		g.Go(func() error {
			if err := s.syncOne(gctx, cfg, currentBlock); err != nil {
				log.Printf("v3sync: pool %s (%s/%s): %v", cfg.Address.Hex(), cfg.PairSymbol, cfg.Dex, err)
			}
			return nil // errors are logged, never propagated: one bad pool must not abort the tick
		})
	}
	return g.Wait()
}

func (s *V3Syncer) syncOne(ctx context.Context, cfg V3PoolConfig, currentBlock uint64) error {
	client, ok := s.clients[cfg.Address]
	if !ok {
		return fmt.Errorf("no bound client for pool")
	}

	existing := s.store.GetV3(cfg.Dex, cfg.PairSymbol)

	var token0, token1 common.Address
	var dec0, dec1 uint8
	var fee uint32

	if existing != nil {
		token0, token1 = existing.Token0, existing.Token1
		dec0, dec1 = existing.Token0Decimals, existing.Token1Decimals
		fee = existing.Fee
	} else {
		var err error
		token0, token1, fee, err = s.discoverImmutables(client, cfg.Dex)
		if err != nil {
			return fmt.Errorf("discovery: %w", err)
		}
		dec0, err = s.decimals.Get(token0)
		if err != nil {
			return fmt.Errorf("token0 decimals: %w", err)
		}
		dec1, err = s.decimals.Get(token1)
		if err != nil {
			return fmt.Errorf("token1 decimals: %w", err)
		}
	}

	sqrtPrice, tick, liquidity, err := s.readMutableState(client, cfg.Dex)
	if err != nil {
		return fmt.Errorf("slot0/liquidity: %w", err)
	}

	if cfg.Dex.IsAlgebra() {
		dynamicFee, err := s.readAlgebraFee(client)
		if err == nil {
			fee = dynamicFee
		}
	}

	state := &types.V3PoolState{
		Address:          cfg.Address,
		Dex:              cfg.Dex,
		PairSymbol:       cfg.PairSymbol,
		Token0:           token0,
		Token1:           token1,
		SqrtPriceX96:     sqrtPrice,
		Tick:             tick,
		Fee:              fee,
		Liquidity:        liquidity,
		Token0Decimals:   dec0,
		Token1Decimals:   dec1,
		LastUpdatedBlock: currentBlock,
	}

	if state.IsPhantom() {
		// Zero active liquidity at the current tick: discard this reading
		// at sync time (spec §3/§4.2) rather than overwrite any prior
		// good state with a phantom snapshot.
		log.Printf("v3sync: %s %s has zero liquidity, discarding reading", cfg.PairSymbol, cfg.Address.Hex())
		return nil
	}

	s.store.UpsertV3(state)
	return nil
}

func (s *V3Syncer) discoverImmutables(client contractclient.ContractClient, dex types.DexVariant) (token0, token1 common.Address, fee uint32, err error) {
	out0, err := client.Call(nil, "token0")
	if err != nil {
		return common.Address{}, common.Address{}, 0, fmt.Errorf("token0: %w", err)
	}
	out1, err := client.Call(nil, "token1")
	if err != nil {
		return common.Address{}, common.Address{}, 0, fmt.Errorf("token1: %w", err)
	}
	token0, ok := out0[0].(common.Address)
	if !ok {
		return common.Address{}, common.Address{}, 0, fmt.Errorf("token0 returned unexpected type")
	}
	token1, ok = out1[0].(common.Address)
	if !ok {
		return common.Address{}, common.Address{}, 0, fmt.Errorf("token1 returned unexpected type")
	}

	if dex.IsAlgebra() {
		return token0, token1, 0, nil // Algebra's fee is dynamic, read per-tick from globalState
	}

	feeOut, err := client.Call(nil, "fee")
	if err != nil {
		return common.Address{}, common.Address{}, 0, fmt.Errorf("fee: %w", err)
	}
	feeBig, ok := feeOut[0].(*big.Int)
	if !ok {
		return common.Address{}, common.Address{}, 0, fmt.Errorf("fee returned unexpected type")
	}
	return token0, token1, uint32(feeBig.Uint64()), nil
}

func (s *V3Syncer) readMutableState(client contractclient.ContractClient, dex types.DexVariant) (sqrtPrice *big.Int, tick int32, liquidity *big.Int, err error) {
	liqOut, err := client.Call(nil, "liquidity")
	if err != nil {
		return nil, 0, nil, fmt.Errorf("liquidity: %w", err)
	}
	liquidity, ok := liqOut[0].(*big.Int)
	if !ok {
		return nil, 0, nil, fmt.Errorf("liquidity returned unexpected type")
	}

	method := "slot0"
	if dex.IsAlgebra() {
		method = "globalState"
	}
	slotOut, err := client.Call(nil, method)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("%s: %w", method, err)
	}
	if len(slotOut) < 2 {
		return nil, 0, nil, fmt.Errorf("%s returned too few fields", method)
	}
	sqrtPrice, ok = slotOut[0].(*big.Int)
	if !ok {
		return nil, 0, nil, fmt.Errorf("%s sqrtPrice returned unexpected type", method)
	}
	tickBig, ok := slotOut[1].(*big.Int)
	if !ok {
		return nil, 0, nil, fmt.Errorf("%s tick returned unexpected type", method)
	}
	return sqrtPrice, int32(tickBig.Int64()), liquidity, nil
}

// readAlgebraFee re-reads globalState's dynamic fee field each tick for
// Algebra pools (spec §4.2's "dynamic fee" note).
func (s *V3Syncer) readAlgebraFee(client contractclient.ContractClient) (uint32, error) {
	out, err := client.Call(nil, "globalState")
	if err != nil {
		return 0, err
	}
	if len(out) < 3 {
		return 0, fmt.Errorf("globalState returned too few fields")
	}
	feeBig, ok := out[2].(*big.Int)
	if ok {
		return uint32(feeBig.Uint64()), nil
	}
	feeU16, ok := out[2].(uint16)
	if ok {
		return uint32(feeU16), nil
	}
	return 0, fmt.Errorf("globalState fee field returned unexpected type")
}

