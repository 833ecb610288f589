// Package filters implements the whitelist/blacklist gate (spec §4.5) that
// decides which pools the detector admits.
package filters

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ChoSanghyuk/dexarb/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

// Enforcement controls how a pool absent from the whitelist file is
// treated: strict rejects it, advisory lets it through.
type Enforcement string

const (
	Strict   Enforcement = "strict"
	Advisory Enforcement = "advisory"
)

// phantomLiquidityFeeTier is the 1% V3 fee tier the teacher's target chain
// is documented to report non-zero price with zero usable depth on (spec
// §9 "Phantom liquidity"). Blacklisted by default at the fee-tier level,
// not per-pool, so newly deployed 1% pools never need a manual entry.
const phantomLiquidityFeeTier = 10000

// PoolEntry is one entry of whitelist.pools[] in the whitelist file.
type PoolEntry struct {
	Address         common.Address        `json:"address"`
	Pair            string                `json:"pair"`
	Dex             string                `json:"dex"`
	FeeTier         uint32                `json:"fee_tier"`
	Status          types.WhitelistStatus `json:"status"`
	MinLiquidity    *string               `json:"min_liquidity,omitempty"`
	MaxTradeSizeUSD *float64              `json:"max_trade_size_usd,omitempty"`
	Notes           string                `json:"notes,omitempty"`
}

// fileSchema mirrors spec §6 "Whitelist file format" exactly.
type fileSchema struct {
	Config struct {
		DefaultMinLiquidity string             `json:"default_min_liquidity"`
		Enforcement         Enforcement        `json:"enforcement"`
		PerTierThresholds   map[string]string  `json:"per_tier_thresholds"`
	} `json:"config"`
	Whitelist struct {
		Pools []PoolEntry `json:"pools"`
	} `json:"whitelist"`
	Blacklist struct {
		Pools     []common.Address `json:"pools"`
		FeeTiers  []uint32         `json:"fee_tiers"`
		Pairs     []string         `json:"pairs"`
	} `json:"blacklist"`
	Observation struct {
		Pools []PoolEntry `json:"pools"`
	} `json:"observation"`
}

// Filter holds the loaded whitelist/blacklist state and answers admission
// queries for the detector.
type Filter struct {
	enforcement       Enforcement
	defaultMinLiq     float64
	perTierMinLiq     map[uint32]float64
	pools             map[common.Address]PoolEntry
	blacklistPools    map[common.Address]bool
	blacklistFeeTiers map[uint32]bool
	blacklistPairs    map[string]bool
}

// Default returns the no-file fallback named in spec §4.5: advisory
// enforcement, blacklisting only the phantom-liquidity 1% V3 tier.
func Default() *Filter {
	return &Filter{
		enforcement:       Advisory,
		defaultMinLiq:     0,
		perTierMinLiq:     map[uint32]float64{},
		pools:             map[common.Address]PoolEntry{},
		blacklistPools:    map[common.Address]bool{},
		blacklistFeeTiers: map[uint32]bool{phantomLiquidityFeeTier: true},
		blacklistPairs:    map[string]bool{},
	}
}

// Load reads and parses a whitelist JSON file (spec §6).
func Load(path string) (*Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read whitelist file %s: %w", path, err)
	}

	var doc fileSchema
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse whitelist file %s: %w", path, err)
	}

	f := &Filter{
		enforcement:       doc.Config.Enforcement,
		pools:             map[common.Address]PoolEntry{},
		blacklistPools:    map[common.Address]bool{},
		blacklistFeeTiers: map[uint32]bool{},
		blacklistPairs:    map[string]bool{},
		perTierMinLiq:     map[uint32]float64{},
	}
	if f.enforcement == "" {
		f.enforcement = Advisory
	}
	f.defaultMinLiq = parseFloatOrZero(doc.Config.DefaultMinLiquidity)
	for tierStr, v := range doc.Config.PerTierThresholds {
		var tier uint32
		if _, err := fmt.Sscanf(tierStr, "%d", &tier); err == nil {
			f.perTierMinLiq[tier] = parseFloatOrZero(v)
		}
	}
	for _, p := range doc.Whitelist.Pools {
		f.pools[p.Address] = p
	}
	// Observation pools are recorded with status Observation: strict
	// enforcement never admits them, while advisory enforcement admits them
	// like any pool not on a blacklist. MinLiquidity/MaxTradeSize lookups
	// resolve for them either way.
	for _, p := range doc.Observation.Pools {
		p.Status = types.StatusObservation
		f.pools[p.Address] = p
	}
	for _, a := range doc.Blacklist.Pools {
		f.blacklistPools[a] = true
	}
	for _, t := range doc.Blacklist.FeeTiers {
		f.blacklistFeeTiers[t] = true
	}
	for _, s := range doc.Blacklist.Pairs {
		f.blacklistPairs[strings.ToUpper(s)] = true
	}
	return f, nil
}

func parseFloatOrZero(s string) float64 {
	if s == "" {
		return 0
	}
	var f float64
	fmt.Sscanf(s, "%f", &f)
	return f
}

// Allow implements spec §4.5's decision order; first match wins.
func (f *Filter) Allow(address common.Address, feeTier uint32, pairSymbol string) bool {
	if f.blacklistFeeTiers[feeTier] {
		return false
	}
	if f.blacklistPools[address] {
		return false
	}
	if f.blacklistPairs[strings.ToUpper(pairSymbol)] {
		return false
	}
	if f.enforcement == Strict {
		entry, known := f.pools[address]
		if !known {
			return false
		}
		if entry.Status != types.StatusActive && entry.Status != types.StatusV2Ready {
			return false
		}
	}
	return true
}

// MinLiquidity resolves the three-level override chain: per-pool override
// → per-tier default → global default.
func (f *Filter) MinLiquidity(address common.Address, feeTier uint32) float64 {
	if entry, ok := f.pools[address]; ok && entry.MinLiquidity != nil {
		return parseFloatOrZero(*entry.MinLiquidity)
	}
	if v, ok := f.perTierMinLiq[feeTier]; ok {
		return v
	}
	return f.defaultMinLiq
}

// MaxTradeSizeUSD returns the per-pool override if one is configured;
// ok is false when the caller should fall back to the global cap.
func (f *Filter) MaxTradeSizeUSD(address common.Address) (cap float64, ok bool) {
	entry, known := f.pools[address]
	if !known || entry.MaxTradeSizeUSD == nil {
		return 0, false
	}
	return *entry.MaxTradeSizeUSD, true
}

// Entry returns the whitelist entry for address, if any, for callers that
// need the status/pair/dex metadata directly (e.g. discovery).
func (f *Filter) Entry(address common.Address) (PoolEntry, bool) {
	e, ok := f.pools[address]
	return e, ok
}

// Pools returns every whitelisted (non-observation) pool entry.
func (f *Filter) Pools() []PoolEntry {
	out := make([]PoolEntry, 0, len(f.pools))
	for _, e := range f.pools {
		if e.Status == types.StatusObservation {
			continue
		}
		out = append(out, e)
	}
	return out
}
