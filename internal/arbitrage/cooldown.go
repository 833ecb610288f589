package arbitrage

import (
	"fmt"
	"log"
	"sync"

	"github.com/ChoSanghyuk/dexarb/pkg/types"
)

// CooldownConfig holds the route cooldown's tunables (spec §4.8).
type CooldownConfig struct {
	InitialCooldown   uint64 // blocks; 0 disables the mechanism entirely
	MaxCooldown       uint64 // blocks, cap
	EscalationFactor  uint64 // ×5 per spec
	MaxStrikes        uint64 // 0 disables permanent blacklisting
}

func routeKey(r types.Route) string {
	return fmt.Sprintf("%s|%s|%s", r.PairSymbol, r.BuyDex, r.SellDex)
}

// CooldownStore tracks per-route failure suppression with escalating
// backoff and a permanent session blacklist after repeated cap-outs
// (spec §4.8). Every method takes the store's internal mutex, so one
// CooldownStore may be shared across goroutines.
type CooldownStore struct {
	mu        sync.Mutex
	cfg       CooldownConfig
	entries   map[string]*types.CooldownEntry
	blacklist map[string]bool
}

// NewCooldownStore builds an empty cooldown store.
func NewCooldownStore(cfg CooldownConfig) *CooldownStore {
	if cfg.EscalationFactor == 0 {
		cfg.EscalationFactor = 5
	}
	return &CooldownStore{
		cfg:       cfg,
		entries:   map[string]*types.CooldownEntry{},
		blacklist: map[string]bool{},
	}
}

// IsCooledDown reports whether route is currently suppressed: either
// permanently blacklisted, or still within its cooldown window at
// currentBlock.
func (c *CooldownStore) IsCooledDown(route types.Route, currentBlock uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := routeKey(route)
	if c.blacklist[key] {
		return true
	}
	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	return currentBlock < entry.LastFailedBlock+entry.CooldownBlocks
}

// RecordFailure implements spec §4.8's record_failure state transition.
func (c *CooldownStore) RecordFailure(route types.Route, block uint64) {
	if c.cfg.InitialCooldown == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := routeKey(route)
	if c.blacklist[key] {
		return
	}

	entry, ok := c.entries[key]
	if !ok {
		entry = &types.CooldownEntry{Route: route}
		c.entries[key] = entry
	}

	entry.FailureCount++
	entry.LastFailedBlock = block

	newCooldown := saturatingGeometric(c.cfg.InitialCooldown, c.cfg.EscalationFactor, entry.FailureCount-1, c.cfg.MaxCooldown)

	// Per spec §9 Open Questions: both the "first time hitting the cap" and
	// "re-capped after expiry" cases increment MaxCooldownCycles on every
	// failure that re-pins the route at max_cooldown, intentionally.
	if newCooldown == c.cfg.MaxCooldown {
		entry.MaxCooldownCycles++
	}
	entry.CooldownBlocks = newCooldown

	log.Printf("route %s failed (count=%d); cooldown now %d blocks from block %d", key, entry.FailureCount, entry.CooldownBlocks, block)

	if c.cfg.MaxStrikes > 0 && entry.MaxCooldownCycles >= c.cfg.MaxStrikes && entry.SuccessCount == 0 {
		c.blacklist[key] = true
		log.Printf("route %s permanently blacklisted after %d max-cooldown cycles with zero successes", key, entry.MaxCooldownCycles)
	}
}

// RecordSuccess implements spec §4.8's record_success: remove any
// blacklist entry and any cooldown entry for route (instant reset).
func (c *CooldownStore) RecordSuccess(route types.Route) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := routeKey(route)
	if c.blacklist[key] {
		delete(c.blacklist, key)
		log.Printf("route %s removed from permanent blacklist after a success", key)
	}
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		log.Printf("route %s cooldown cleared after a success", key)
	}
}

// Cleanup drops entries whose cooldown has expired as of currentBlock.
// Blacklisted routes are untouched (permanent).
func (c *CooldownStore) Cleanup(currentBlock uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if currentBlock >= entry.LastFailedBlock+entry.CooldownBlocks {
			delete(c.entries, key)
		}
	}
}

// saturatingGeometric computes min(initial * factor^exp, cap) without
// overflowing uint64 for the exponent ranges this module ever sees.
func saturatingGeometric(initial, factor, exp, cap uint64) uint64 {
	result := initial
	for i := uint64(0); i < exp; i++ {
		if cap > 0 && result > cap/factor+1 {
			return cap
		}
		result *= factor
		if cap > 0 && result > cap {
			return cap
		}
	}
	if cap > 0 && result > cap {
		return cap
	}
	return result
}
