package pool

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sync"

	"github.com/ChoSanghyuk/dexarb/pkg/contractclient"
	"github.com/ChoSanghyuk/dexarb/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// V2PoolConfig is the static, operator-supplied identity of a tracked V2
// pool (spec §4.3).
type V2PoolConfig struct {
	Address    common.Address
	Dex        types.DexVariant
	PairSymbol string
}

// V2Syncer polls a fixed set of V2 pools and keeps the shared Store
// current (spec §4.3). Symmetric with V3Syncer but simpler: token0/token1
// and decimals are discovered once, reserves are read every tick, and
// there is no tick/liquidity/phantom concept.
type V2Syncer struct {
	store        *Store
	clients      map[common.Address]contractclient.ContractClient
	erc20Clients map[common.Address]contractclient.ContractClient
	pools        []V2PoolConfig
	decimals     *decimalsCache
}

func NewV2Syncer(store *Store, pools []V2PoolConfig, clients map[common.Address]contractclient.ContractClient, erc20Clients map[common.Address]contractclient.ContractClient) *V2Syncer {
	return &V2Syncer{
		store:        store,
		clients:      clients,
		erc20Clients: erc20Clients,
		pools:        pools,
		decimals:     newDecimalsCache(erc20Clients),
	}
}

// SyncAll fans out one goroutine per tracked pool, per spec §4.3. A
// single pool's failure is logged and skipped, never propagated.
func (s *V2Syncer) SyncAll(ctx context.Context, currentBlock uint64) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, cfg := range s.pools {
		cfg := cfg
		g.Go(func() error {
			if err := s.syncOne(gctx, cfg, currentBlock); err != nil {
				log.Printf("v2sync: pool %s (%s/%s): %v", cfg.Address.Hex(), cfg.PairSymbol, cfg.Dex, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *V2Syncer) syncOne(_ context.Context, cfg V2PoolConfig, currentBlock uint64) error {
	client, ok := s.clients[cfg.Address]
	if !ok {
		return fmt.Errorf("no bound client for pool")
	}

	existing := s.store.GetV2(cfg.Dex, cfg.PairSymbol)

	var token0, token1 common.Address
	var dec0, dec1 uint8

	if existing != nil {
		token0, token1 = existing.Token0, existing.Token1
		dec0, dec1 = existing.Token0Decimals, existing.Token1Decimals
	} else {
		out0, err := client.Call(nil, "token0")
		if err != nil {
			return fmt.Errorf("token0: %w", err)
		}
		out1, err := client.Call(nil, "token1")
		if err != nil {
			return fmt.Errorf("token1: %w", err)
		}
		var tok0Ok, tok1Ok bool
		token0, tok0Ok = out0[0].(common.Address)
		token1, tok1Ok = out1[0].(common.Address)
		if !tok0Ok || !tok1Ok {
			return fmt.Errorf("token0/token1 returned unexpected type")
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

	reserveOut, err := client.Call(nil, "getReserves")
	if err != nil {
		return fmt.Errorf("getReserves: %w", err)
	}
	if len(reserveOut) < 2 {
		return fmt.Errorf("getReserves returned too few fields")
	}
	reserve0, ok := toBigInt(reserveOut[0])
	if !ok {
		return fmt.Errorf("reserve0 returned unexpected type")
	}
	reserve1, ok := toBigInt(reserveOut[1])
	if !ok {
		return fmt.Errorf("reserve1 returned unexpected type")
	}

	s.store.UpsertV2(&types.V2PoolState{
		Address:          cfg.Address,
		Dex:              cfg.Dex,
		PairSymbol:       cfg.PairSymbol,
		Token0:           token0,
		Token1:           token1,
		Reserve0:         reserve0,
		Reserve1:         reserve1,
		Token0Decimals:   dec0,
		Token1Decimals:   dec1,
		LastUpdatedBlock: currentBlock,
	})
	return nil
}

// toBigInt accepts both *big.Int and the narrower uint112 reserve types
// some router ABI bindings decode getReserves into.
func toBigInt(v interface{}) (*big.Int, bool) {
	switch t := v.(type) {
	case *big.Int:
		return t, true
	case uint64:
		return new(big.Int).SetUint64(t), true
	}
	return nil, false
}

// decimalsCache is shared shape between V2Syncer and V3Syncer's identical
// one-time ERC20 decimals lookup.
type decimalsCache struct {
	mu      sync.Mutex
	clients map[common.Address]contractclient.ContractClient
	cache   map[common.Address]uint8
}

func newDecimalsCache(clients map[common.Address]contractclient.ContractClient) *decimalsCache {
	return &decimalsCache{clients: clients, cache: make(map[common.Address]uint8)}
}

func (d *decimalsCache) Get(token common.Address) (uint8, error) {
	d.mu.Lock()
	if v, ok := d.cache[token]; ok {
		d.mu.Unlock()
		return v, nil
	}
	client, ok := d.clients[token]
	d.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("no erc20 client bound for token %s", token.Hex())
	}
	out, err := client.Call(nil, "decimals")
	if err != nil {
		return 0, fmt.Errorf("decimals: %w", err)
	}
	dec, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals returned unexpected type")
	}
	d.mu.Lock()
	d.cache[token] = dec
	d.mu.Unlock()
	return dec, nil
}
