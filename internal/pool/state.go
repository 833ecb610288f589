// Package pool holds the in-memory store of observed DEX pool state, kept
// current by the V2/V3 sync engines and read by the detector, the
// pre-screener and the mempool simulator.
package pool

import (
	"fmt"
	"sync"

	"github.com/ChoSanghyuk/dexarb/pkg/types"
)

func key(dex types.DexVariant, symbol string) string {
	return fmt.Sprintf("%s:%s", dex, symbol)
}

// Stats is the aggregate summary returned by CombinedStats.
type Stats struct {
	V2Count  int
	V3Count  int
	MinBlock uint64
	MaxBlock uint64
}

// Store is the concurrent pool-state store (spec §4.1). V2 and V3 entries
// live in two maps, each behind its own RWMutex: readers share the lock,
// but a write to any entry of a map briefly blocks readers of every entry
// in that map. A whole entry is always replaced atomically so readers never
// observe a torn sqrt_price_x96/tick pair.
type Store struct {
	v2Mu sync.RWMutex
	v2   map[string]*types.V2PoolState

	v3Mu sync.RWMutex
	v3   map[string]*types.V3PoolState
}

// NewStore builds an empty pool store.
func NewStore() *Store {
	return &Store{
		v2: make(map[string]*types.V2PoolState),
		v3: make(map[string]*types.V3PoolState),
	}
}

// UpsertV2 replaces the V2 entry for state.Dex/state.PairSymbol wholesale.
func (s *Store) UpsertV2(state *types.V2PoolState) {
	s.v2Mu.Lock()
	defer s.v2Mu.Unlock()
	s.v2[key(state.Dex, state.PairSymbol)] = state
}

// UpsertV3 replaces the V3 entry for state.Dex/state.PairSymbol wholesale.
func (s *Store) UpsertV3(state *types.V3PoolState) {
	s.v3Mu.Lock()
	defer s.v3Mu.Unlock()
	s.v3[key(state.Dex, state.PairSymbol)] = state
}

// GetV2 returns the V2 state for (dex, symbol), or nil if unknown.
func (s *Store) GetV2(dex types.DexVariant, symbol string) *types.V2PoolState {
	s.v2Mu.RLock()
	defer s.v2Mu.RUnlock()
	return s.v2[key(dex, symbol)]
}

// GetV3 returns the V3 state for (dex, symbol), or nil if unknown.
func (s *Store) GetV3(dex types.DexVariant, symbol string) *types.V3PoolState {
	s.v3Mu.RLock()
	defer s.v3Mu.RUnlock()
	return s.v3[key(dex, symbol)]
}

// GetAllV2ForPair returns every known V2 pool (across DEXes) for symbol.
func (s *Store) GetAllV2ForPair(symbol string) []*types.V2PoolState {
	s.v2Mu.RLock()
	defer s.v2Mu.RUnlock()
	var out []*types.V2PoolState
	for _, st := range s.v2 {
		if st.PairSymbol == symbol {
			out = append(out, st)
		}
	}
	return out
}

// GetAllV3ForPair returns every known V3 pool (across DEXes/fee tiers) for
// symbol.
func (s *Store) GetAllV3ForPair(symbol string) []*types.V3PoolState {
	s.v3Mu.RLock()
	defer s.v3Mu.RUnlock()
	var out []*types.V3PoolState
	for _, st := range s.v3 {
		if st.PairSymbol == symbol {
			out = append(out, st)
		}
	}
	return out
}

// IterateAll calls v2fn for every V2 entry and v3fn for every V3 entry. Both
// callbacks run under the store's read lock for their respective map, so
// they must not call back into the store.
func (s *Store) IterateAll(v2fn func(*types.V2PoolState), v3fn func(*types.V3PoolState)) {
	if v2fn != nil {
		s.v2Mu.RLock()
		for _, st := range s.v2 {
			v2fn(st)
		}
		s.v2Mu.RUnlock()
	}
	if v3fn != nil {
		s.v3Mu.RLock()
		for _, st := range s.v3 {
			v3fn(st)
		}
		s.v3Mu.RUnlock()
	}
}

// CombinedStats summarizes the store's current size and block-height
// spread for health reporting.
func (s *Store) CombinedStats() Stats {
	var st Stats

	s.v2Mu.RLock()
	st.V2Count = len(s.v2)
	first := true
	for _, p := range s.v2 {
		st.MinBlock, st.MaxBlock = minMax(st.MinBlock, st.MaxBlock, p.LastUpdatedBlock, first)
		first = false
	}
	s.v2Mu.RUnlock()

	s.v3Mu.RLock()
	st.V3Count = len(s.v3)
	for _, p := range s.v3 {
		st.MinBlock, st.MaxBlock = minMax(st.MinBlock, st.MaxBlock, p.LastUpdatedBlock, first)
		first = false
	}
	s.v3Mu.RUnlock()

	return st
}

func minMax(curMin, curMax, block uint64, isFirst bool) (uint64, uint64) {
	if isFirst {
		return block, block
	}
	if block < curMin {
		curMin = block
	}
	if block > curMax {
		curMax = block
	}
	return curMin, curMax
}
