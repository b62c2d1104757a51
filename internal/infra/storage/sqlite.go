package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"simtrader/internal/domain"
)

// FillRecord is the persisted form of an executed trade.
type FillRecord struct {
	ID         uint            `gorm:"primaryKey"`
	TradeID    string          `gorm:"uniqueIndex;size:36"`
	OrderID    string          `gorm:"index;size:36"`
	Symbol     string          `gorm:"index;size:20"`
	Side       string          `gorm:"size:4"`
	Quantity   decimal.Decimal `gorm:"type:text"`
	Price      decimal.Decimal `gorm:"type:text"`
	Notional   decimal.Decimal `gorm:"type:text"`
	Commission decimal.Decimal `gorm:"type:text"`
	Realized   decimal.Decimal `gorm:"type:text"`
	Strategy   string          `gorm:"size:40"`
	Timestamp  time.Time       `gorm:"index"`
}

// PerformanceRecord is a periodic portfolio snapshot.
type PerformanceRecord struct {
	ID               uint            `gorm:"primaryKey"`
	TotalValue       decimal.Decimal `gorm:"type:text"`
	AvailableBalance decimal.Decimal `gorm:"type:text"`
	PositionValue    decimal.Decimal `gorm:"type:text"`
	TotalPnL         decimal.Decimal `gorm:"type:text"`
	TotalReturnPct   decimal.Decimal `gorm:"type:text"`
	WinRate          float64
	TotalTrades      int
	Timestamp        time.Time `gorm:"index"`
}

// Storage persists fills and performance snapshots in SQLite.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the SQLite database at path.
func NewStorage(path string) (*Storage, error) {
	dbDir := filepath.Dir(path)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto Migration
	if err := db.AutoMigrate(&FillRecord{}, &PerformanceRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// SaveFill records an executed trade.
func (s *Storage) SaveFill(t domain.Trade, realized decimal.Decimal, strategy string) error {
	rec := FillRecord{
		TradeID:    t.ID,
		OrderID:    t.OrderID,
		Symbol:     t.Symbol,
		Side:       t.Side,
		Quantity:   t.Quantity,
		Price:      t.Price,
		Notional:   t.Notional,
		Commission: t.Commission,
		Realized:   realized,
		Strategy:   strategy,
		Timestamp:  t.Timestamp,
	}
	return s.db.Create(&rec).Error
}

// RecentFills returns up to limit fills, newest first.
func (s *Storage) RecentFills(limit int) ([]FillRecord, error) {
	var fills []FillRecord
	err := s.db.Order("timestamp DESC").Limit(limit).Find(&fills).Error
	return fills, err
}

// FillsBySymbol returns all fills for one symbol, oldest first.
func (s *Storage) FillsBySymbol(symbol string) ([]FillRecord, error) {
	var fills []FillRecord
	err := s.db.Where("symbol = ?", symbol).Order("timestamp ASC").Find(&fills).Error
	return fills, err
}

// SavePerformance records a portfolio snapshot.
func (s *Storage) SavePerformance(snap domain.PortfolioSnapshot, at time.Time) error {
	rec := PerformanceRecord{
		TotalValue:       snap.TotalValue,
		AvailableBalance: snap.AvailableBalance,
		PositionValue:    snap.PositionValue,
		TotalPnL:         snap.TotalPnL,
		TotalReturnPct:   snap.TotalReturnPct,
		WinRate:          snap.WinRate,
		TotalTrades:      snap.TotalTrades,
		Timestamp:        at,
	}
	return s.db.Create(&rec).Error
}

// RecentPerformance returns up to limit snapshots, newest first.
func (s *Storage) RecentPerformance(limit int) ([]PerformanceRecord, error) {
	var recs []PerformanceRecord
	err := s.db.Order("timestamp DESC").Limit(limit).Find(&recs).Error
	return recs, err
}
