package risk

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"simtrader/internal/domain"
)

// Limits holds the risk configuration. Percentages are fractions
// (0.02 means 2%).
type Limits struct {
	MaxDailyTrades      int
	MaxDailyLossPct     decimal.Decimal
	MaxPositionFraction decimal.Decimal
	MinTradeAmount      decimal.Decimal
	StopLossPct         decimal.Decimal
	TakeProfitPct       decimal.Decimal
}

// EquityFunc reports the current total equity (cash plus marked positions).
type EquityFunc func() decimal.Decimal

// Position sides for stop/take-profit arming.
const (
	PositionLong  = "LONG"
	PositionShort = "SHORT"
)

// Intent reasons.
const (
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
)

// Intent is a liquidation request emitted when an armed trigger fires.
type Intent struct {
	Symbol       string
	Reason       string // ReasonStopLoss or ReasonTakeProfit
	TriggerPrice decimal.Decimal
	Price        decimal.Decimal // the tick that fired the trigger
}

// armedLevel is a stop or take-profit price with the position side it guards.
type armedLevel struct {
	price decimal.Decimal
	side  string
}

// dayBucket accumulates per-calendar-day counters. A new date starts a
// fresh bucket; stale buckets are pruned and never reused.
type dayBucket struct {
	trades       int
	realizedLoss decimal.Decimal // sum of |realized losses| for the day
	startEquity  decimal.Decimal
}

// Gate admits or rejects proposed trades against daily limits and watches
// per-symbol stop-loss/take-profit triggers. Admission checks are advisory:
// they mutate nothing; recording happens only on confirmed fills.
type Gate struct {
	mu     sync.Mutex
	limits Limits
	equity EquityFunc
	days   map[string]*dayBucket
	today  string
	stops  map[string]armedLevel
	takes  map[string]armedLevel
	now    func() time.Time
}

// NewGate creates a risk gate. equity must be non-nil.
func NewGate(limits Limits, equity EquityFunc) *Gate {
	return &Gate{
		limits: limits,
		equity: equity,
		days:   make(map[string]*dayBucket),
		stops:  make(map[string]armedLevel),
		takes:  make(map[string]armedLevel),
		now:    time.Now,
	}
}

// rolloverIfNeeded opens a fresh bucket when the calendar date changed and
// prunes stale ones. Must be called with the lock held.
func (g *Gate) rolloverIfNeeded(now time.Time) *dayBucket {
	key := now.Format("2006-01-02")
	if key != g.today {
		g.today = key
		g.days[key] = &dayBucket{startEquity: g.equity()}
		for k := range g.days {
			if k != key {
				delete(g.days, k)
			}
		}
		slog.Info("daily risk limits reset", slog.String("date", key))
	}
	return g.days[key]
}

// CanTrade checks whether a proposed trade passes the daily and position
// limits. Quantity and price may be zero when unknown (signal-time check);
// the notional limits then do not apply. A nil return admits the trade.
func (g *Gate) CanTrade(symbol, side string, quantity, price decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	bucket := g.rolloverIfNeeded(g.now())

	if bucket.trades >= g.limits.MaxDailyTrades {
		return &domain.RiskLimitError{
			Limit:  "daily_trades",
			Reason: fmt.Sprintf("%d trades today, limit %d", bucket.trades, g.limits.MaxDailyTrades),
		}
	}

	if bucket.startEquity.IsPositive() {
		lossFrac := bucket.realizedLoss.Div(bucket.startEquity)
		if lossFrac.GreaterThanOrEqual(g.limits.MaxDailyLossPct) {
			return &domain.RiskLimitError{
				Limit:  "daily_loss",
				Reason: fmt.Sprintf("realized loss %s of day-start equity, limit %s", lossFrac, g.limits.MaxDailyLossPct),
			}
		}
	}

	if quantity.IsPositive() && price.IsPositive() {
		notional := quantity.Mul(price)
		if side == domain.SideBuy {
			limit := g.limits.MaxPositionFraction.Mul(g.equity())
			if notional.GreaterThan(limit) {
				return &domain.RiskLimitError{
					Limit:  "position_size",
					Reason: fmt.Sprintf("notional %s exceeds limit %s", notional, limit),
				}
			}
		}
		if notional.LessThan(g.limits.MinTradeAmount) {
			return &domain.RiskLimitError{
				Limit:  "min_trade_amount",
				Reason: fmt.Sprintf("notional %s below minimum %s", notional, g.limits.MinTradeAmount),
			}
		}
	}

	return nil
}

// RecordTrade registers a confirmed fill against today's bucket. realized
// is the realized P&L of this fill (zero for buys).
func (g *Gate) RecordTrade(symbol, side string, realized decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	bucket := g.rolloverIfNeeded(g.now())
	bucket.trades++
	if side == domain.SideSell && realized.IsNegative() {
		bucket.realizedLoss = bucket.realizedLoss.Add(realized.Neg())
	}
}

// SetStopLoss arms a stop for the symbol at entryPrice×(1−pct) for a long
// position, entryPrice×(1+pct) for a short.
func (g *Gate) SetStopLoss(symbol string, entryPrice decimal.Decimal, side string) {
	pct := g.limits.StopLossPct
	stop := entryPrice.Mul(decimal.NewFromInt(1).Sub(pct))
	if side == PositionShort {
		stop = entryPrice.Mul(decimal.NewFromInt(1).Add(pct))
	}

	g.mu.Lock()
	g.stops[symbol] = armedLevel{price: stop, side: side}
	g.mu.Unlock()
	slog.Info("stop-loss armed", slog.String("symbol", symbol), slog.String("stop", stop.StringFixed(2)))
}

// SetTakeProfit arms a target at entryPrice×(1+pct) for a long position,
// entryPrice×(1−pct) for a short.
func (g *Gate) SetTakeProfit(symbol string, entryPrice decimal.Decimal, side string) {
	pct := g.limits.TakeProfitPct
	target := entryPrice.Mul(decimal.NewFromInt(1).Add(pct))
	if side == PositionShort {
		target = entryPrice.Mul(decimal.NewFromInt(1).Sub(pct))
	}

	g.mu.Lock()
	g.takes[symbol] = armedLevel{price: target, side: side}
	g.mu.Unlock()
	slog.Info("take-profit armed", slog.String("symbol", symbol), slog.String("target", target.StringFixed(2)))
}

// Disarm removes any armed stop-loss and take-profit for the symbol.
func (g *Gate) Disarm(symbol string) {
	g.mu.Lock()
	delete(g.stops, symbol)
	delete(g.takes, symbol)
	g.mu.Unlock()
}

// OnPriceTick evaluates armed triggers against the tick. A fired trigger
// is disarmed before the intent is returned, so it fires exactly once.
func (g *Gate) OnPriceTick(symbol string, price decimal.Decimal) []Intent {
	g.mu.Lock()
	defer g.mu.Unlock()

	var intents []Intent

	if lvl, ok := g.stops[symbol]; ok && crossedAdverse(lvl, price) {
		delete(g.stops, symbol)
		intents = append(intents, Intent{
			Symbol:       symbol,
			Reason:       ReasonStopLoss,
			TriggerPrice: lvl.price,
			Price:        price,
		})
		slog.Warn("stop-loss triggered",
			slog.String("symbol", symbol),
			slog.String("price", price.StringFixed(2)),
			slog.String("stop", lvl.price.StringFixed(2)))
	}

	if lvl, ok := g.takes[symbol]; ok && crossedFavorable(lvl, price) {
		delete(g.takes, symbol)
		intents = append(intents, Intent{
			Symbol:       symbol,
			Reason:       ReasonTakeProfit,
			TriggerPrice: lvl.price,
			Price:        price,
		})
		slog.Info("take-profit triggered",
			slog.String("symbol", symbol),
			slog.String("price", price.StringFixed(2)),
			slog.String("target", lvl.price.StringFixed(2)))
	}

	return intents
}

// crossedAdverse reports whether price has crossed to-or-past an armed stop
// in the adverse direction for the held side.
func crossedAdverse(lvl armedLevel, price decimal.Decimal) bool {
	if lvl.side == PositionShort {
		return price.GreaterThanOrEqual(lvl.price)
	}
	return price.LessThanOrEqual(lvl.price)
}

// crossedFavorable reports whether price has reached an armed target in the
// favorable direction for the held side.
func crossedFavorable(lvl armedLevel, price decimal.Decimal) bool {
	if lvl.side == PositionShort {
		return price.LessThanOrEqual(lvl.price)
	}
	return price.GreaterThanOrEqual(lvl.price)
}

// Metrics is a snapshot of the gate's state for reporting.
type Metrics struct {
	DailyTrades       int
	MaxDailyTrades    int
	DailyLoss         decimal.Decimal
	MaxDailyLossPct   decimal.Decimal
	ActiveStopLosses  int
	ActiveTakeProfits int
}

// Snapshot returns the current risk metrics.
func (g *Gate) Snapshot() Metrics {
	g.mu.Lock()
	defer g.mu.Unlock()

	bucket := g.rolloverIfNeeded(g.now())
	return Metrics{
		DailyTrades:       bucket.trades,
		MaxDailyTrades:    g.limits.MaxDailyTrades,
		DailyLoss:         bucket.realizedLoss,
		MaxDailyLossPct:   g.limits.MaxDailyLossPct,
		ActiveStopLosses:  len(g.stops),
		ActiveTakeProfits: len(g.takes),
	}
}
