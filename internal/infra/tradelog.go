package infra

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"simtrader/internal/domain"
)

var tradeHeader = []string{
	"timestamp", "symbol", "side", "price", "quantity",
	"total", "fee", "strategy", "status", "pnl",
}

var performanceHeader = []string{
	"timestamp", "total_value", "available_balance", "position_value",
	"total_pnl", "return_pct", "win_rate", "total_trades",
}

// TradeLog appends fills and portfolio snapshots to daily CSV files under
// a reports directory. Files are named trades_YYYYMMDD.csv and
// performance_YYYYMMDD.csv; a header row is written when a file is created.
type TradeLog struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

// NewTradeLog creates the reports directory if needed.
func NewTradeLog(dir string) (*TradeLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create reports dir: %w", err)
	}
	return &TradeLog{dir: dir, now: time.Now}, nil
}

// RecordTrade appends one fill row to today's trade file.
func (tl *TradeLog) RecordTrade(t domain.Trade, strategy, status string, pnl decimal.Decimal) error {
	row := []string{
		t.Timestamp.UTC().Format(time.RFC3339),
		t.Symbol,
		t.Side,
		t.Price.String(),
		t.Quantity.String(),
		t.Notional.String(),
		t.Commission.String(),
		strategy,
		status,
		pnl.String(),
	}
	return tl.append("trades", tradeHeader, row)
}

// RecordPerformance appends one portfolio snapshot row to today's
// performance file.
func (tl *TradeLog) RecordPerformance(snap domain.PortfolioSnapshot) error {
	row := []string{
		tl.now().UTC().Format(time.RFC3339),
		snap.TotalValue.String(),
		snap.AvailableBalance.String(),
		snap.PositionValue.String(),
		snap.TotalPnL.String(),
		snap.TotalReturnPct.String(),
		fmt.Sprintf("%.4f", snap.WinRate),
		fmt.Sprintf("%d", snap.TotalTrades),
	}
	return tl.append("performance", performanceHeader, row)
}

func (tl *TradeLog) append(prefix string, header, row []string) error {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	name := fmt.Sprintf("%s_%s.csv", prefix, tl.now().UTC().Format("20060102"))
	path := filepath.Join(tl.dir, name)

	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(header); err != nil {
			return err
		}
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
