package ledger

import (
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"simtrader/internal/domain"
)

// Ledger is the single source of truth for cash, positions and trade
// history. All money math is decimal; a trade either applies fully or
// leaves every balance untouched.
type Ledger struct {
	mu               sync.Mutex
	initialBalance   decimal.Decimal
	availableBalance decimal.Decimal
	positions        map[string]*domain.Position
	trades           []domain.Trade
	lastPrices       map[string]decimal.Decimal
	winningSells     int
	totalSells       int
	totalCommission  decimal.Decimal
}

// New creates a ledger seeded with the starting cash balance.
func New(initialBalance decimal.Decimal) *Ledger {
	return &Ledger{
		initialBalance:   initialBalance,
		availableBalance: initialBalance,
		positions:        make(map[string]*domain.Position),
		lastPrices:       make(map[string]decimal.Decimal),
	}
}

// ApplyTrade applies a fill to cash and positions atomically and returns
// the realized P&L (zero for buys). The balance and position checks happen
// under the same lock as the mutation, so a rejected trade changes nothing.
func (l *Ledger) ApplyTrade(t domain.Trade) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch t.Side {
	case domain.SideBuy:
		cost := t.Notional.Add(t.Commission)
		if l.availableBalance.LessThan(cost) {
			return decimal.Zero, domain.ErrInsufficientBalance
		}
		pos, ok := l.positions[t.Symbol]
		if !ok {
			pos = &domain.Position{Symbol: t.Symbol}
			l.positions[t.Symbol] = pos
		}
		pos.ApplyBuy(t.Quantity, t.Price, t.Timestamp)
		pos.TotalCommission = pos.TotalCommission.Add(t.Commission)
		l.availableBalance = l.availableBalance.Sub(cost)
		l.finishTrade(t)
		return decimal.Zero, nil

	case domain.SideSell:
		pos, ok := l.positions[t.Symbol]
		if !ok || pos.Quantity.LessThan(t.Quantity) {
			return decimal.Zero, domain.ErrInsufficientPosition
		}
		realized, err := pos.ApplySell(t.Quantity, t.Price, t.Timestamp)
		if err != nil {
			return decimal.Zero, err
		}
		pos.TotalCommission = pos.TotalCommission.Add(t.Commission)
		l.availableBalance = l.availableBalance.Add(t.Notional).Sub(t.Commission)
		l.totalSells++
		if realized.IsPositive() {
			l.winningSells++
		}
		// A fully closed position stays on the books: its realized P&L and
		// commission history survive a later re-entry on the same symbol.
		l.finishTrade(t)
		return realized, nil

	default:
		return decimal.Zero, &domain.ValidationError{Field: "side", Reason: "must be BUY or SELL"}
	}
}

// finishTrade records the trade in history. Must be called with the lock held.
func (l *Ledger) finishTrade(t domain.Trade) {
	l.trades = append(l.trades, t)
	l.totalCommission = l.totalCommission.Add(t.Commission)
	slog.Debug("trade applied",
		slog.String("symbol", t.Symbol),
		slog.String("side", t.Side),
		slog.String("qty", t.Quantity.String()),
		slog.String("price", t.Price.String()),
		slog.String("balance", l.availableBalance.StringFixed(2)))
}

// MarkPrice records the latest observed price for a symbol and refreshes
// the symbol's unrealized P&L.
func (l *Ledger) MarkPrice(symbol string, price decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastPrices[symbol] = price
	if pos, ok := l.positions[symbol]; ok {
		pos.MarkToMarket(price)
	}
}

// AvailableBalance returns the free cash balance.
func (l *Ledger) AvailableBalance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.availableBalance
}

// PositionValue returns the marked value of all open positions.
func (l *Ledger) PositionValue() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.positionValueLocked()
}

func (l *Ledger) positionValueLocked() decimal.Decimal {
	total := decimal.Zero
	for sym, pos := range l.positions {
		price, ok := l.lastPrices[sym]
		if !ok {
			price = pos.AvgPrice
		}
		total = total.Add(pos.Quantity.Mul(price))
	}
	return total
}

// TotalEquity returns cash plus the marked value of all positions.
func (l *Ledger) TotalEquity() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.availableBalance.Add(l.positionValueLocked())
}

// Position returns a copy of the symbol's position, if any.
func (l *Ledger) Position(symbol string) (domain.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// Trades returns up to limit most recent trades, oldest first. A limit of
// zero or less returns the full history.
func (l *Ledger) Trades(limit int) []domain.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.trades)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Trade, n)
	copy(out, l.trades[len(l.trades)-n:])
	return out
}

// Snapshot returns a consistent view of the portfolio. The win rate is the
// fraction of sells that realized a profit; it is zero before any sell.
func (l *Ledger) Snapshot() domain.PortfolioSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	posValue := l.positionValueLocked()
	totalValue := l.availableBalance.Add(posValue)
	totalPnL := totalValue.Sub(l.initialBalance)

	returnPct := decimal.Zero
	if l.initialBalance.IsPositive() {
		returnPct = totalPnL.Div(l.initialBalance).Mul(decimal.NewFromInt(100))
	}

	winRate := 0.0
	if l.totalSells > 0 {
		winRate = float64(l.winningSells) / float64(l.totalSells)
	}

	positions := make([]domain.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		positions = append(positions, *pos)
	}

	return domain.PortfolioSnapshot{
		InitialBalance:   l.initialBalance,
		AvailableBalance: l.availableBalance,
		PositionValue:    posValue,
		TotalValue:       totalValue,
		TotalPnL:         totalPnL,
		TotalReturnPct:   returnPct,
		WinRate:          winRate,
		TotalTrades:      len(l.trades),
		TotalCommission:  l.totalCommission,
		Positions:        positions,
	}
}
