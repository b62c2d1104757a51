package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"simtrader/internal/analytics"
	"simtrader/internal/domain"
	"simtrader/internal/event"
	"simtrader/internal/execution"
	"simtrader/internal/infra"
	"simtrader/internal/infra/storage"
	"simtrader/internal/risk"
	"simtrader/internal/strategy"
)

const maxCandleHistory = 1000

// Options configure the engine's trading behavior.
type Options struct {
	AutoTrade         bool
	MinSignalStrength float64
	PositionSizePct   decimal.Decimal
	CheckInterval     time.Duration
	InboxSize         int
}

// Engine is the single-threaded event processor. It owns candle history,
// drives the strategy registry and routes signals to the simulator. Run
// MUST be the only goroutine touching engine state.
type Engine struct {
	inbox    chan event.Event
	sim      *execution.Simulator
	gate     *risk.Gate
	registry *strategy.Registry
	analyzer *analytics.Analyzer

	tradeLog *infra.TradeLog
	store    *storage.Storage

	candles   map[string][]domain.Candle
	lastCheck map[string]time.Time

	opts Options

	// Boundary: used to notify push clients of portfolio changes
	onUpdate func(domain.PortfolioSnapshot)

	now func() time.Time
}

// New creates an engine. tradeLog, store and onUpdate may be nil.
func New(sim *execution.Simulator, gate *risk.Gate, registry *strategy.Registry, analyzer *analytics.Analyzer, opts Options) *Engine {
	if opts.InboxSize <= 0 {
		opts.InboxSize = 4096
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 5 * time.Second
	}
	e := &Engine{
		inbox:     make(chan event.Event, opts.InboxSize),
		sim:       sim,
		gate:      gate,
		registry:  registry,
		analyzer:  analyzer,
		candles:   make(map[string][]domain.Candle),
		lastCheck: make(map[string]time.Time),
		opts:      opts,
		now:       time.Now,
	}
	sim.SetFillHook(e.handleFill)
	return e
}

// SetTradeLog attaches the CSV sink. Must be called before Run.
func (e *Engine) SetTradeLog(tl *infra.TradeLog) {
	e.tradeLog = tl
}

// SetStorage attaches the SQLite sink. Must be called before Run.
func (e *Engine) SetStorage(s *storage.Storage) {
	e.store = s
}

// SetUpdateHook attaches the portfolio update callback. Must be called
// before Run.
func (e *Engine) SetUpdateHook(fn func(domain.PortfolioSnapshot)) {
	e.onUpdate = fn
}

// Inbox returns the event channel. External workers send events here.
func (e *Engine) Inbox() chan<- event.Event {
	return e.inbox
}

// Run starts the main event loop. This MUST be run in a single goroutine.
func (e *Engine) Run(ctx context.Context) {
	slog.Info("Engine started (Single-Thread Hotpath)")

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			e.DumpState("panic_dump.json")
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Engine stopping...")
			return
		case ev := <-e.inbox:
			e.Process(ev)
		}
	}
}

// Process handles one event synchronously. Exposed for backtests and tests;
// live traffic goes through Inbox and Run.
func (e *Engine) Process(ev event.Event) {
	switch ev := ev.(type) {
	case *event.PriceTickEvent:
		start := time.Now()
		e.handleTick(ev.Symbol, ev.Price, ev.Timestamp)
		infra.GlobalMetrics.RecordTick(time.Since(start).Nanoseconds())
		event.ReleasePriceTickEvent(ev)
	case *event.CandleEvent:
		e.handleCandle(ev.Symbol, ev.Candle)
		event.ReleaseCandleEvent(ev)
	default:
		slog.Warn("Unknown event type", slog.String("kind", ev.Kind()))
	}
}

func (e *Engine) handleTick(symbol string, price decimal.Decimal, at time.Time) {
	e.sim.OnPriceTick(symbol, price)

	if e.analyzer != nil {
		e.analyzer.Observe(at, e.sim.GetPortfolioSnapshot().TotalValue)
	}

	// Signal checks are throttled per symbol; candle closes check
	// unconditionally.
	if last, ok := e.lastCheck[symbol]; ok && at.Sub(last) < e.opts.CheckInterval {
		return
	}
	e.lastCheck[symbol] = at
	e.checkSignals(symbol)
}

func (e *Engine) handleCandle(symbol string, candle domain.Candle) {
	history := append(e.candles[symbol], candle)
	if len(history) > maxCandleHistory {
		history = history[len(history)-maxCandleHistory:]
	}
	e.candles[symbol] = history

	e.sim.OnPriceTick(symbol, candle.Close)
	e.checkSignals(symbol)
}

func (e *Engine) checkSignals(symbol string) {
	history := e.candles[symbol]
	if len(history) == 0 {
		return
	}

	sig := e.registry.Generate(history)
	if sig == nil {
		return
	}
	infra.GlobalMetrics.RecordSignal()
	slog.Info("signal generated",
		slog.String("symbol", symbol),
		slog.String("strategy", e.registry.ActiveName()),
		slog.String("signal", sig.String()))

	if !e.opts.AutoTrade {
		return
	}
	if sig.Strength < e.opts.MinSignalStrength {
		slog.Debug("signal below strength threshold",
			slog.String("symbol", symbol),
			slog.Float64("strength", sig.Strength))
		return
	}

	if _, err := e.sim.ExecuteSignal(sig, symbol, e.opts.PositionSizePct); err != nil {
		infra.GlobalMetrics.RecordError()
		slog.Warn("signal execution failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()))
	}
}

// handleFill runs after every simulator fill: it arms or clears protective
// exits and fans the fill out to the sinks.
func (e *Engine) handleFill(order domain.Order, trade domain.Trade, realized decimal.Decimal) {
	if order.Side == domain.SideBuy {
		e.gate.SetStopLoss(order.Symbol, order.AvgFillPrice, risk.PositionLong)
		e.gate.SetTakeProfit(order.Symbol, order.AvgFillPrice, risk.PositionLong)
	} else if pos, held := e.sim.GetPortfolioSnapshot().Find(order.Symbol); !held || !pos.Quantity.IsPositive() {
		e.gate.Disarm(order.Symbol)
	}

	strategyName := e.registry.ActiveName()
	if e.tradeLog != nil {
		if err := e.tradeLog.RecordTrade(trade, strategyName, order.Status, realized); err != nil {
			infra.GlobalMetrics.RecordError()
			slog.Warn("trade log write failed", slog.String("error", err.Error()))
		}
	}
	if e.store != nil {
		if err := e.store.SaveFill(trade, realized, strategyName); err != nil {
			infra.GlobalMetrics.RecordError()
			slog.Warn("fill persistence failed", slog.String("error", err.Error()))
		}
	}
	if e.onUpdate != nil {
		e.onUpdate(e.sim.GetPortfolioSnapshot())
	}
}

// RunBacktest replays candles for one symbol through the engine
// synchronously and returns the final portfolio snapshot.
func (e *Engine) RunBacktest(ctx context.Context, symbol string, candles []domain.Candle) (domain.PortfolioSnapshot, error) {
	slog.Info("backtest started",
		slog.String("symbol", symbol),
		slog.Int("candles", len(candles)))

	for i := range candles {
		select {
		case <-ctx.Done():
			return e.sim.GetPortfolioSnapshot(), ctx.Err()
		default:
		}
		ev := event.AcquireCandleEvent()
		ev.Symbol = symbol
		ev.Candle = candles[i]
		e.Process(ev)

		if e.analyzer != nil {
			e.analyzer.Observe(candles[i].Timestamp, e.sim.GetPortfolioSnapshot().TotalValue)
		}
	}

	e.sim.CancelAllOpen()
	snap := e.sim.GetPortfolioSnapshot()
	slog.Info("backtest finished",
		slog.String("symbol", symbol),
		slog.String("total_value", snap.TotalValue.StringFixed(2)),
		slog.String("return_pct", snap.TotalReturnPct.StringFixed(2)))
	return snap, nil
}

// CandleCount returns how many candles are held for a symbol.
func (e *Engine) CandleCount(symbol string) int {
	return len(e.candles[symbol])
}

// DumpState writes the engine's view of the world to a file (post-mortem).
func (e *Engine) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	counts := make(map[string]int, len(e.candles))
	for sym, history := range e.candles {
		counts[sym] = len(history)
	}

	data := struct {
		Candles   map[string]int           `json:"candles"`
		Portfolio domain.PortfolioSnapshot `json:"portfolio"`
		Open      []domain.Order           `json:"open_orders"`
	}{
		Candles:   counts,
		Portfolio: e.sim.GetPortfolioSnapshot(),
		Open:      e.sim.GetOpenOrders(""),
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
