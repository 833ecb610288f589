package configs

import (
	"fmt"
	"os"

	"github.com/ChoSanghyuk/dexarb/internal/arbitrage"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Config is the entire configuration structure loaded from config.yml.
type Config struct {
	RPC               string                            `yaml:"rpc"`
	ContractClient    map[string]ContractClientYAMLData `yaml:"contract_client"`
	QuoteTokens       []string                          `yaml:"quote_tokens"`
	Pairs             []PairYAMLData                    `yaml:"pairs"`
	DetectorYAMLData  DetectorYAMLData                  `yaml:"detector"`
	CooldownYAMLData  CooldownYAMLData                  `yaml:"cooldown"`
	ExecutorYAMLData  ExecutorYAMLData                  `yaml:"executor"`
	PreScreenYAMLData PreScreenYAMLData                 `yaml:"prescreen"`
	WhitelistPath     string                            `yaml:"whitelist_path"`
}

// ContractClientYAMLData represents a single bound-contract configuration
// from YAML: an address plus the ABI file to pack/unpack its calls with.
type ContractClientYAMLData struct {
	Address string `yaml:"address"`
	ABI     string `yaml:"abi"`
}

// PairYAMLData identifies one tracked trading pair and the pools the sync
// engines should poll for it.
type PairYAMLData struct {
	Symbol string           `yaml:"symbol"`
	V3     []V3PoolYAMLData `yaml:"v3_pools"`
	V2     []V2PoolYAMLData `yaml:"v2_pools"`
}

type V3PoolYAMLData struct {
	Address string `yaml:"address"`
	Dex     string `yaml:"dex"`
}

type V2PoolYAMLData struct {
	Address string `yaml:"address"`
	Dex     string `yaml:"dex"`
}

// DetectorYAMLData mirrors spec §6's MIN_PROFIT_USD / MAX_TRADE_SIZE_USD /
// ESTIMATED_GAS_COST_USD environment knobs.
type DetectorYAMLData struct {
	MinProfitUSD      float64 `yaml:"minProfitUsd"`
	GlobalMaxTradeUSD float64 `yaml:"globalMaxTradeUsd"`
	GasCostUSD        float64 `yaml:"estimatedGasCostUsd"`
}

// CooldownYAMLData mirrors spec §4.8's tunables.
type CooldownYAMLData struct {
	InitialCooldownBlocks uint64 `yaml:"initialCooldownBlocks"`
	MaxCooldownBlocks     uint64 `yaml:"maxCooldownBlocks"`
	EscalationFactor      uint64 `yaml:"escalationFactor"`
	MaxStrikes            uint64 `yaml:"maxStrikes"`
}

// ExecutorYAMLData mirrors spec §4.9's tunables.
type ExecutorYAMLData struct {
	ExecutorAddress     string            `yaml:"executorAddress"`
	Routers             map[string]string `yaml:"routers"` // dex name -> router address
	QuoteDecimals       uint8             `yaml:"quoteDecimals"`
	NativeTokenPriceUSD float64           `yaml:"nativeTokenPriceUsd"`
	SlippagePct         float64           `yaml:"slippagePct"`
}

// PreScreenYAMLData mirrors spec §4.7's multicall pre-screener tunables.
// SKIP_MULTICALL_PRESCREEN lets an operator bypass the aggregate3 call
// entirely, matching the original environment variable's name.
type PreScreenYAMLData struct {
	Skip              bool                      `yaml:"skip"`
	AggregatorAddress string                    `yaml:"aggregatorAddress"`
	Quoters           map[string]QuoterYAMLData `yaml:"quoters"` // dex name -> quoter config
}

// QuoterYAMLData resolves one DEX's quoter contract and wire dialect
// (UNISWAP_V3_QUOTER_IS_V2 in spec §4.7's environment variable list).
type QuoterYAMLData struct {
	Address string `yaml:"address"`
	Dialect string `yaml:"dialect"` // "v1" or "v2"
}

// LoadConfig reads and parses config.yml into a Config struct.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	return &config, nil
}

// ToDetectorConfig translates the YAML tunables plus the resolved
// quote-token set into arbitrage.DetectorConfig.
func (c *Config) ToDetectorConfig(quoteTokens map[common.Address]bool) arbitrage.DetectorConfig {
	return arbitrage.DetectorConfig{
		QuoteTokens:       quoteTokens,
		MinProfitUSD:      c.DetectorYAMLData.MinProfitUSD,
		GlobalMaxTradeUSD: c.DetectorYAMLData.GlobalMaxTradeUSD,
		GasCostUSD:        c.DetectorYAMLData.GasCostUSD,
	}
}

// ToCooldownConfig translates the YAML tunables into
// arbitrage.CooldownConfig, applying spec §4.8's defaults (initial=10,
// max=1800, factor=5) when the YAML omits them.
func (c *Config) ToCooldownConfig() arbitrage.CooldownConfig {
	cfg := arbitrage.CooldownConfig{
		InitialCooldown:  c.CooldownYAMLData.InitialCooldownBlocks,
		MaxCooldown:      c.CooldownYAMLData.MaxCooldownBlocks,
		EscalationFactor: c.CooldownYAMLData.EscalationFactor,
		MaxStrikes:       c.CooldownYAMLData.MaxStrikes,
	}
	if cfg.InitialCooldown == 0 {
		cfg.InitialCooldown = 10
	}
	if cfg.MaxCooldown == 0 {
		cfg.MaxCooldown = 1800
	}
	if cfg.EscalationFactor == 0 {
		cfg.EscalationFactor = 5
	}
	return cfg
}

// ToExecutorConfig translates the YAML tunables into
// arbitrage.ExecutorConfig. routers maps each resolved types.DexVariant to
// its router address; callers build it from ExecutorYAMLData.Routers plus
// their own dex-name resolver.
func (c *Config) ToExecutorConfig(routers arbitrage.RouterMap) arbitrage.ExecutorConfig {
	return arbitrage.ExecutorConfig{
		ExecutorAddress:     common.HexToAddress(c.ExecutorYAMLData.ExecutorAddress),
		Routers:             routers,
		QuoteDecimals:       c.ExecutorYAMLData.QuoteDecimals,
		NativeTokenPriceUSD: c.ExecutorYAMLData.NativeTokenPriceUSD,
		SlippagePct:         c.ExecutorYAMLData.SlippagePct,
	}
}
