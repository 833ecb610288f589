package db

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ChoSanghyuk/dexarb/pkg/types"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpportunityRecord persists one detector scan result (spec §4.6), whether
// or not it was ever acted on.
type OpportunityRecord struct {
	ID                 uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp          time.Time `gorm:"index;not null"`
	Pair               string    `gorm:"index;not null"`
	BuyDex             string    `gorm:"not null"`
	SellDex            string    `gorm:"not null"`
	SpreadPercent      float64   `gorm:"not null"`
	EstimatedProfitUSD float64   `gorm:"not null"`
	TradeSizeRaw       string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	DetectedAtBlock    uint64    `gorm:"index;not null"`
	CreatedAt          time.Time `gorm:"autoCreateTime"`
}

func (OpportunityRecord) TableName() string { return "opportunities" }

// TradeRecord persists one executor attempt's outcome (spec §4.9/§7),
// successful or not.
type TradeRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp  time.Time `gorm:"index;not null"`
	Pair       string    `gorm:"index;not null"`
	BuyDex     string    `gorm:"not null"`
	SellDex    string    `gorm:"not null"`
	Mode       string    `gorm:"not null;comment:atomic or legacy"`
	Success    bool      `gorm:"not null"`
	TxHash     string    `gorm:"type:varchar(66)"`
	ProfitUSD  float64   `gorm:"not null"`
	GasCostUSD float64   `gorm:"not null"`
	ErrorText  string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (TradeRecord) TableName() string { return "trades" }

// RouteCooldownRecord is a periodic snapshot of a route's cooldown state
// (spec §4.8 Data Model), useful for post-mortem analysis of blacklisting.
type RouteCooldownRecord struct {
	ID                uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp         time.Time `gorm:"index;not null"`
	Pair              string    `gorm:"index;not null"`
	BuyDex            string    `gorm:"not null"`
	SellDex           string    `gorm:"not null"`
	FailureCount      uint64    `gorm:"not null"`
	SuccessCount      uint64    `gorm:"not null"`
	CooldownBlocks    uint64    `gorm:"not null"`
	MaxCooldownCycles uint64    `gorm:"not null"`
	Blacklisted       bool      `gorm:"not null"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
}

func (RouteCooldownRecord) TableName() string { return "route_cooldowns" }

// PendingSwapRecord persists a mempool-observed swap that simulated into a
// cross-DEX opportunity (spec §4.11/§4.12), for lead-time analysis.
type PendingSwapRecord struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp       time.Time `gorm:"index;not null"`
	TxHash          string    `gorm:"type:varchar(66);index;not null"`
	Pair            string    `gorm:"index;not null"`
	TriggerDex      string    `gorm:"not null"`
	TriggerFunction string    `gorm:"not null"`
	PriceImpactPct  float64   `gorm:"not null"`
	ArbBuyDex       string    `gorm:"comment:empty if no cross-DEX opportunity opened"`
	ArbSellDex      string
	ArbSpreadPct    float64
	LeadTimeMs      int64 `gorm:"comment:mempool-to-block lead time once confirmed, -1 if unconfirmed"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

func (PendingSwapRecord) TableName() string { return "pending_swaps" }

var allModels = []interface{}{
	&OpportunityRecord{},
	&TradeRecord{},
	&RouteCooldownRecord{},
	&PendingSwapRecord{},
}

// MySQLRecorder persists detector/executor/cooldown/mempool activity via
// GORM against MySQL.
type MySQLRecorder struct {
	db *gorm.DB
}

// NewMySQLRecorder creates a new MySQLRecorder instance.
// dsn format: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
func NewMySQLRecorder(dsn string) (*MySQLRecorder, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	if err := db.AutoMigrate(allModels...); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &MySQLRecorder{db: db}, nil
}

// NewMySQLRecorderWithDB creates a new MySQLRecorder with an existing GORM
// DB instance (used by tests against sqlmock).
func NewMySQLRecorderWithDB(db *gorm.DB) (*MySQLRecorder, error) {
	if err := db.AutoMigrate(allModels...); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &MySQLRecorder{db: db}, nil
}

// RecordOpportunity persists one detector scan result.
func (r *MySQLRecorder) RecordOpportunity(o types.ArbitrageOpportunity, seenAt time.Time) error {
	record := OpportunityRecord{
		Timestamp:          seenAt,
		Pair:               o.Pair,
		BuyDex:             o.BuyDex.String(),
		SellDex:            o.SellDex.String(),
		SpreadPercent:      o.SpreadPercent,
		EstimatedProfitUSD: o.EstimatedProfitUSD,
		TradeSizeRaw:       bigIntToString(o.TradeSizeRaw),
		DetectedAtBlock:    o.DetectedAtBlock,
	}
	if result := r.db.Create(&record); result.Error != nil {
		return fmt.Errorf("failed to record opportunity: %w", result.Error)
	}
	return nil
}

// RecordTrade persists one executor attempt's outcome.
func (r *MySQLRecorder) RecordTrade(pair, buyDex, sellDex, mode string, success bool, txHash string, profitUSD, gasCostUSD float64, execErr error) error {
	errText := ""
	if execErr != nil {
		errText = execErr.Error()
	}
	record := TradeRecord{
		Timestamp:  time.Now(),
		Pair:       pair,
		BuyDex:     buyDex,
		SellDex:    sellDex,
		Mode:       mode,
		Success:    success,
		TxHash:     txHash,
		ProfitUSD:  profitUSD,
		GasCostUSD: gasCostUSD,
		ErrorText:  errText,
	}
	if result := r.db.Create(&record); result.Error != nil {
		return fmt.Errorf("failed to record trade: %w", result.Error)
	}
	return nil
}

// RecordCooldown persists a point-in-time snapshot of a route's cooldown
// state, typically called from RecordFailure/RecordSuccess call sites.
func (r *MySQLRecorder) RecordCooldown(entry types.CooldownEntry, blacklisted bool) error {
	record := RouteCooldownRecord{
		Timestamp:         time.Now(),
		Pair:              entry.Route.PairSymbol,
		BuyDex:            entry.Route.BuyDex.String(),
		SellDex:           entry.Route.SellDex.String(),
		FailureCount:      entry.FailureCount,
		SuccessCount:      entry.SuccessCount,
		CooldownBlocks:    entry.CooldownBlocks,
		MaxCooldownCycles: entry.MaxCooldownCycles,
		Blacklisted:       blacklisted,
	}
	if result := r.db.Create(&record); result.Error != nil {
		return fmt.Errorf("failed to record cooldown state: %w", result.Error)
	}
	return nil
}

// RecordPendingSwap persists a mempool-simulated swap observation.
// leadTime of nil means the transaction was never confirmed before
// eviction (spec §4.12).
func (r *MySQLRecorder) RecordPendingSwap(o types.SimulatedOpportunity, seenAt time.Time, leadTime *time.Duration) error {
	leadTimeMs := int64(-1)
	if leadTime != nil {
		leadTimeMs = leadTime.Milliseconds()
	}
	record := PendingSwapRecord{
		Timestamp:       seenAt,
		TxHash:          o.TxHash.Hex(),
		Pair:            o.Pair,
		TriggerDex:      o.TriggerDex.String(),
		TriggerFunction: o.TriggerFunction,
		PriceImpactPct:  o.PriceImpactPct,
		ArbBuyDex:       o.ArbBuyDex.String(),
		ArbSellDex:      o.ArbSellDex.String(),
		ArbSpreadPct:    o.ArbSpreadPct,
		LeadTimeMs:      leadTimeMs,
	}
	if result := r.db.Create(&record); result.Error != nil {
		return fmt.Errorf("failed to record pending swap: %w", result.Error)
	}
	return nil
}

// GetDB returns the underlying GORM DB instance for advanced queries.
func (r *MySQLRecorder) GetDB() *gorm.DB {
	return r.db
}

// Close closes the database connection.
func (r *MySQLRecorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying DB: %w", err)
	}
	return sqlDB.Close()
}

func bigIntToString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

// RecentTrades retrieves the most recent n trade records, newest first.
func (r *MySQLRecorder) RecentTrades(n int) ([]TradeRecord, error) {
	var records []TradeRecord
	result := r.db.Order("timestamp DESC").Limit(n).Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get recent trades: %w", result.Error)
	}
	return records, nil
}

// CountTrades returns the total number of recorded trade attempts.
func (r *MySQLRecorder) CountTrades() (int64, error) {
	var count int64
	result := r.db.Model(&TradeRecord{}).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count trades: %w", result.Error)
	}
	return count, nil
}
