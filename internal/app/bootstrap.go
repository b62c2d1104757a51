package app

import (
	"fmt"
	"log/slog"
	"time"

	"simtrader/internal/analytics"
	"simtrader/internal/engine"
	"simtrader/internal/execution"
	"simtrader/internal/infra"
	"simtrader/internal/infra/push"
	"simtrader/internal/infra/storage"
	"simtrader/internal/ledger"
	"simtrader/internal/risk"
	"simtrader/internal/strategy"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Storage   *storage.Storage
	TradeLog  *infra.TradeLog
	Registry  *strategy.Registry
	Ledger    *ledger.Ledger
	Gate      *risk.Gate
	Simulator *execution.Simulator
	Analyzer  *analytics.Analyzer
	Engine    *engine.Engine
	Push      *push.Server
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (DB, sinks, trading stack).
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping SimTrader...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized")

	// 4. CSV report sink
	tradeLog, err := infra.NewTradeLog(cfg.Reports.Dir)
	if err != nil {
		return err
	}
	b.TradeLog = tradeLog

	// 5. Trading stack: registry -> ledger -> gate -> simulator -> engine
	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	b.Registry = registry

	b.Ledger = ledger.New(cfg.Trading.InitialBalance)
	b.Gate = risk.NewGate(risk.Limits{
		MaxDailyTrades:      cfg.Risk.MaxDailyTrades,
		MaxDailyLossPct:     cfg.Risk.MaxDailyLossPct,
		MaxPositionFraction: cfg.Risk.MaxPositionFraction,
		MinTradeAmount:      cfg.Risk.MinTradeAmount,
		StopLossPct:         cfg.Risk.StopLossPct,
		TakeProfitPct:       cfg.Risk.TakeProfitPct,
	}, b.Ledger.TotalEquity)

	b.Simulator = execution.NewSimulator(execution.Config{
		CommissionRate: cfg.Trading.CommissionRate,
		Slippage:       cfg.Trading.Slippage,
		MinTradeAmount: cfg.Risk.MinTradeAmount,
	}, b.Ledger, b.Gate)

	b.Analyzer = analytics.NewAnalyzer()

	b.Engine = engine.New(b.Simulator, b.Gate, b.Registry, b.Analyzer, engine.Options{
		AutoTrade:         cfg.Trading.AutoTrading,
		MinSignalStrength: cfg.Trading.MinSignalStrength,
		PositionSizePct:   cfg.Trading.PositionSizePct,
		CheckInterval:     time.Duration(cfg.Trading.CheckIntervalSec) * time.Second,
	})
	b.Engine.SetTradeLog(b.TradeLog)
	b.Engine.SetStorage(b.Storage)

	if cfg.Push.Enabled {
		b.Push = push.NewServer(cfg.Push.Addr)
		b.Engine.SetUpdateHook(b.Push.Broadcast)
	}

	slog.Info("✅ Trading stack ready",
		slog.String("strategy", b.Registry.ActiveName()),
		slog.String("balance", cfg.Trading.InitialBalance.StringFixed(2)),
		slog.Bool("auto_trading", cfg.Trading.AutoTrading))
	return nil
}

// buildRegistry wires the configured strategies and a composite over them.
func buildRegistry(cfg *infra.Config) (*strategy.Registry, error) {
	registry := strategy.NewRegistry()

	dualMA := strategy.NewDualMA("dual_ma",
		cfg.Strategy.DualMA.ShortPeriod,
		cfg.Strategy.DualMA.LongPeriod,
		cfg.Strategy.DualMA.Threshold)
	rsi := strategy.NewRSIThreshold("rsi",
		cfg.Strategy.RSI.Period,
		cfg.Strategy.RSI.Overbought,
		cfg.Strategy.RSI.Oversold)
	macd := strategy.NewMACD("macd",
		cfg.Strategy.MACD.FastPeriod,
		cfg.Strategy.MACD.SlowPeriod,
		cfg.Strategy.MACD.SignalPeriod)

	registry.Register(dualMA)
	registry.Register(rsi)
	registry.Register(macd)

	if weights := cfg.Strategy.Composite.Weights; len(weights) > 0 {
		components := make([]strategy.SignalGenerator, 0, len(weights))
		values := make([]float64, 0, len(weights))
		for _, name := range []string{"dual_ma", "rsi", "macd"} {
			weight, ok := weights[name]
			if !ok {
				continue
			}
			component, ok := registry.Get(name)
			if !ok {
				continue
			}
			components = append(components, component)
			values = append(values, weight)
		}
		composite, err := strategy.NewComposite("composite", components, values)
		if err != nil {
			return nil, fmt.Errorf("composite strategy: %w", err)
		}
		registry.Register(composite)
	}

	if err := registry.SetActive(cfg.Strategy.Active); err != nil {
		return nil, err
	}
	return registry, nil
}
