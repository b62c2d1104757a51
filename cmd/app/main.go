package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"simtrader/internal/app"
	"simtrader/internal/event"
	"simtrader/internal/infra/binance"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	mode := flag.String("mode", "paper", "run mode: paper or backtest")
	backtestLimit := flag.Int("backtest-candles", 500, "number of historical candles per symbol in backtest mode")
	flag.Parse()

	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Warm the event pool before traffic arrives
	event.Warmup()

	switch *mode {
	case "backtest":
		runBacktest(ctx, bootstrap, *backtestLimit)
	default:
		runPaper(ctx, bootstrap)
	}
}

// runPaper runs live paper trading against the Binance stream until
// interrupted.
func runPaper(ctx context.Context, bootstrap *app.Bootstrap) {
	cfg := bootstrap.Config

	// Engine hotpath loop
	go bootstrap.Engine.Run(ctx)
	slog.InfoContext(ctx, "✅ Engine (Hotpath) started")

	if bootstrap.Push != nil {
		bootstrap.Push.Start(ctx)
	}

	// Preload candle history so strategies can signal immediately
	preloadHistory(ctx, bootstrap)

	worker := binance.NewWorker(cfg.API.Binance.WSURL, cfg.Trading.Symbols, bootstrap.Engine.Inbox())
	if err := worker.Connect(ctx); err != nil {
		slog.Error("Failed to connect Binance", slog.Any("error", err))
	}
	defer worker.Disconnect()
	slog.InfoContext(ctx, "✅ BinanceWorker started", slog.Int("symbols", len(cfg.Trading.Symbols)))

	slog.InfoContext(ctx, "✨ SimTrader fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")
	shutdown(bootstrap)
}

// preloadHistory seeds each symbol's candle window over REST.
func preloadHistory(ctx context.Context, bootstrap *app.Bootstrap) {
	rest := binance.NewRestClient(bootstrap.Config.API.Binance.RestURL)
	for _, symbol := range bootstrap.Config.Trading.Symbols {
		candles, err := rest.FetchKlines(ctx, symbol, "1m", 200)
		if err != nil {
			slog.Warn("History preload failed", slog.String("symbol", symbol), slog.Any("error", err))
			continue
		}
		for i := range candles {
			ev := event.AcquireCandleEvent()
			ev.Symbol = symbol
			ev.Candle = candles[i]
			bootstrap.Engine.Inbox() <- ev
		}
		slog.Info("History preloaded", slog.String("symbol", symbol), slog.Int("candles", len(candles)))
	}
}

// runBacktest replays historical candles for each configured symbol.
func runBacktest(ctx context.Context, bootstrap *app.Bootstrap, limit int) {
	rest := binance.NewRestClient(bootstrap.Config.API.Binance.RestURL)

	for _, symbol := range bootstrap.Config.Trading.Symbols {
		candles, err := rest.FetchKlines(ctx, symbol, "1m", limit)
		if err != nil {
			slog.Error("Failed to fetch backtest candles", slog.String("symbol", symbol), slog.Any("error", err))
			continue
		}
		if _, err := bootstrap.Engine.RunBacktest(ctx, symbol, candles); err != nil {
			slog.Error("Backtest aborted", slog.String("symbol", symbol), slog.Any("error", err))
			return
		}
	}
	shutdown(bootstrap)
}

// shutdown cancels open orders and logs the final session summary.
func shutdown(bootstrap *app.Bootstrap) {
	cancelled := bootstrap.Simulator.CancelAllOpen()
	if cancelled > 0 {
		slog.Info("Open orders cancelled", slog.Int("count", cancelled))
	}

	snap := bootstrap.Simulator.GetPortfolioSnapshot()
	if err := bootstrap.Storage.SavePerformance(snap, time.Now()); err != nil {
		slog.Warn("Final snapshot persistence failed", slog.Any("error", err))
	}
	if err := bootstrap.TradeLog.RecordPerformance(snap); err != nil {
		slog.Warn("Final performance report failed", slog.Any("error", err))
	}

	metrics := bootstrap.Analyzer.Metrics()
	slog.Info("📊 Session summary",
		slog.String("total_value", snap.TotalValue.StringFixed(2)),
		slog.String("total_pnl", snap.TotalPnL.StringFixed(2)),
		slog.String("return_pct", snap.TotalReturnPct.StringFixed(2)),
		slog.Float64("win_rate", snap.WinRate),
		slog.Int("trades", snap.TotalTrades),
		slog.Float64("sharpe", metrics.Sharpe),
		slog.Float64("max_drawdown_pct", metrics.MaxDrawdownPct))
}
