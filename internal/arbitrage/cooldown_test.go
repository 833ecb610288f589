package arbitrage

import (
	"testing"

	"github.com/ChoSanghyuk/dexarb/pkg/types"
	"github.com/stretchr/testify/assert"
)

func testRoute() types.Route {
	return types.Route{PairSymbol: "WETH/USDC", BuyDex: types.QuickswapV2, SellDex: types.SushiswapV2}
}

func TestCooldownStore_RecordFailure_EscalatesGeometrically(t *testing.T) {
	cfg := CooldownConfig{InitialCooldown: 10, MaxCooldown: 1800, EscalationFactor: 5, MaxStrikes: 3}
	c := NewCooldownStore(cfg)
	route := testRoute()

	c.RecordFailure(route, 100)
	assert.True(t, c.IsCooledDown(route, 105))
	assert.False(t, c.IsCooledDown(route, 110))

	c.RecordFailure(route, 200)
	assert.True(t, c.IsCooledDown(route, 249))
	assert.False(t, c.IsCooledDown(route, 250)) // 200 + 50

	c.RecordFailure(route, 300)
	assert.False(t, c.IsCooledDown(route, 550)) // 300 + 250
}

func TestCooldownStore_RecordFailure_CapsAtMaxCooldown(t *testing.T) {
	cfg := CooldownConfig{InitialCooldown: 10, MaxCooldown: 1800, EscalationFactor: 5, MaxStrikes: 10}
	c := NewCooldownStore(cfg)
	route := testRoute()

	for i := 0; i < 5; i++ {
		c.RecordFailure(route, uint64(i*10000))
	}

	entry := c.entries[routeKey(route)]
	assert.Equal(t, uint64(1800), entry.CooldownBlocks)
}

func TestCooldownStore_RecordFailure_BlacklistsAfterMaxStrikes(t *testing.T) {
	cfg := CooldownConfig{InitialCooldown: 10, MaxCooldown: 1800, EscalationFactor: 5, MaxStrikes: 2}
	c := NewCooldownStore(cfg)
	route := testRoute()

	// Drive the cooldown up to the cap, then hit it twice more to blacklist.
	block := uint64(0)
	for i := 0; i < 6; i++ {
		c.RecordFailure(route, block)
		block += 100000
	}

	assert.True(t, c.IsCooledDown(route, block+10_000_000))
}

func TestCooldownStore_RecordFailure_Disabled(t *testing.T) {
	cfg := CooldownConfig{InitialCooldown: 0}
	c := NewCooldownStore(cfg)
	route := testRoute()

	c.RecordFailure(route, 1)
	assert.False(t, c.IsCooledDown(route, 1))
}

func TestCooldownStore_RecordSuccess_ClearsEntryAndBlacklist(t *testing.T) {
	cfg := CooldownConfig{InitialCooldown: 10, MaxCooldown: 20, EscalationFactor: 5, MaxStrikes: 1}
	c := NewCooldownStore(cfg)
	route := testRoute()

	c.RecordFailure(route, 0)   // cooldown=10
	c.RecordFailure(route, 100) // escalates to cap 20, MaxStrikes=1 -> blacklisted
	assert.True(t, c.IsCooledDown(route, 1_000_000))

	c.RecordSuccess(route)
	assert.False(t, c.IsCooledDown(route, 1_000_000))
	_, exists := c.entries[routeKey(route)]
	assert.False(t, exists)
}

func TestCooldownStore_RecordSuccess_NoPriorFailureIsNoop(t *testing.T) {
	c := NewCooldownStore(CooldownConfig{InitialCooldown: 10, MaxCooldown: 100, EscalationFactor: 5})
	assert.NotPanics(t, func() { c.RecordSuccess(testRoute()) })
}

func TestCooldownStore_Cleanup_RemovesExpiredEntries(t *testing.T) {
	c := NewCooldownStore(CooldownConfig{InitialCooldown: 10, MaxCooldown: 100, EscalationFactor: 5})
	route := testRoute()
	c.RecordFailure(route, 0) // cooldown=10, expires at block 10

	c.Cleanup(5)
	_, exists := c.entries[routeKey(route)]
	assert.True(t, exists)

	c.Cleanup(10)
	_, exists = c.entries[routeKey(route)]
	assert.False(t, exists)
}

func TestCooldownStore_Cleanup_NeverTouchesBlacklist(t *testing.T) {
	cfg := CooldownConfig{InitialCooldown: 10, MaxCooldown: 10, EscalationFactor: 5, MaxStrikes: 1}
	c := NewCooldownStore(cfg)
	route := testRoute()
	c.RecordFailure(route, 0) // immediately caps at 10, MaxStrikes=1 -> blacklisted

	c.Cleanup(1_000_000)
	assert.True(t, c.IsCooledDown(route, 1_000_000))
}

func TestSaturatingGeometric(t *testing.T) {
	assert.Equal(t, uint64(10), saturatingGeometric(10, 5, 0, 1800))
	assert.Equal(t, uint64(50), saturatingGeometric(10, 5, 1, 1800))
	assert.Equal(t, uint64(250), saturatingGeometric(10, 5, 2, 1800))
	assert.Equal(t, uint64(1800), saturatingGeometric(10, 5, 4, 1800))
	assert.Equal(t, uint64(1800), saturatingGeometric(10, 5, 20, 1800))
}
