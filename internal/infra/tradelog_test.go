package infra

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"simtrader/internal/domain"
)

func TestTradeLog_WritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	tl, err := NewTradeLog(dir)
	if err != nil {
		t.Fatalf("NewTradeLog failed: %v", err)
	}
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tl.now = func() time.Time { return at }

	trade := domain.Trade{
		ID:         "t1",
		Symbol:     "BTCUSDT",
		Side:       domain.SideBuy,
		Quantity:   decimal.RequireFromString("0.1"),
		Price:      decimal.NewFromInt(50000),
		Notional:   decimal.NewFromInt(5000),
		Commission: decimal.NewFromInt(5),
		Timestamp:  at,
	}
	if err := tl.RecordTrade(trade, "dual_ma", domain.OrderStatusFilled, decimal.Zero); err != nil {
		t.Fatalf("RecordTrade failed: %v", err)
	}
	if err := tl.RecordTrade(trade, "dual_ma", domain.OrderStatusFilled, decimal.Zero); err != nil {
		t.Fatalf("RecordTrade failed: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "trades_20250601.csv"))
	if err != nil {
		t.Fatalf("Trade file missing: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("CSV parse failed: %v", err)
	}
	// Header + two rows
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "timestamp" || rows[0][7] != "strategy" {
		t.Errorf("Unexpected header: %v", rows[0])
	}
	if rows[1][1] != "BTCUSDT" || rows[1][2] != domain.SideBuy {
		t.Errorf("Unexpected trade row: %v", rows[1])
	}
}

func TestTradeLog_PerformanceFile(t *testing.T) {
	dir := t.TempDir()
	tl, err := NewTradeLog(dir)
	if err != nil {
		t.Fatalf("NewTradeLog failed: %v", err)
	}
	at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	tl.now = func() time.Time { return at }

	snap := domain.PortfolioSnapshot{
		TotalValue:       decimal.NewFromInt(10500),
		AvailableBalance: decimal.NewFromInt(9000),
		PositionValue:    decimal.NewFromInt(1500),
		TotalPnL:         decimal.NewFromInt(500),
		TotalReturnPct:   decimal.NewFromInt(5),
		WinRate:          0.5,
		TotalTrades:      4,
	}
	if err := tl.RecordPerformance(snap); err != nil {
		t.Fatalf("RecordPerformance failed: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "performance_20250602.csv"))
	if err != nil {
		t.Fatalf("Performance file missing: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("CSV parse failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected header + 1 row, got %d", len(rows))
	}
	if rows[1][1] != "10500" {
		t.Errorf("Expected total value 10500, got %s", rows[1][1])
	}
}
