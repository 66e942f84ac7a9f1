// Ladder MM — an automated market-making engine for centralized crypto
// exchanges with a perpetual-futures hedge.
//
// Architecture:
//
//	main.go              — entry point: flags, logger, config, runner, signals
//	runner/runner.go     — orchestrator: drives the MM round clock, owns accounting
//	strategy/            — ladder planners: Spot, Curve, BidAsk, Auto over shared IQV math
//	vol/vol.go           — blended short/long/EWMA volatility estimator
//	hedge/hedge.go       — active (IQV-solve) and passive (trigger-order) hedge tasks
//	exchange/            — venue adapters: Binance spot+perp, Hyperliquid, GTX filler
//	feed/                — live aggTrade + depth WebSocket feeds, kline bootstrap
//	config/config.go     — viper config with validation
//	logx/                — slog setup with the extra severities and a rotating file sink
//	metrics/metrics.go   — Prometheus collectors
//
// How it makes money:
//
//	The engine rests a two-sided ladder of post-only limit orders around the
//	mid price and earns the spread as both sides fill. Inventory drift is
//	measured as the IQV move ratio; the planners shrink the heavy side of
//	the ladder as drift grows, and the hedger neutralizes what remains on a
//	perp venue — actively when drift passes its threshold, passively via
//	pre-armed stop triggers that catch price crashes.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"ladder-mm/internal/config"
	"ladder-mm/internal/exchange"
	"ladder-mm/internal/feed"
	"ladder-mm/internal/logx"
	"ladder-mm/internal/metrics"
	"ladder-mm/internal/runner"
	"ladder-mm/pkg/types"
)

func main() {
	configFile := pflag.StringP("config_file", "c", "configs/config.yaml", "path to the YAML config file")
	logFile := pflag.StringP("log_file", "l", "./tracks/mm.log", "path to the log file")
	pflag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", *configFile)
		os.Exit(1)
	}

	logger, err := logx.Setup(*logFile, cfg.LogLevel)
	if err != nil {
		slog.Error("failed to set up logging", "error", err, "path", *logFile)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	symbols := map[string]types.Symbol{
		cfg.LadderSymbol(): {
			Base: cfg.UnderlyingToken, Quote: cfg.QuoteToken,
			TickDecimals: cfg.TickDecimals, StepDecimals: cfg.StepDecimals,
		},
		cfg.HedgeSymbol(): {
			Base: cfg.UnderlyingToken, Quote: cfg.QuoteToken,
			TickDecimals: cfg.TickDecimals, StepDecimals: cfg.StepDecimals,
		},
	}

	binance := exchange.NewBinance(cfg.BinanceAPIKey, cfg.BinanceSecretKey, symbols, logger)

	var (
		ladderVenue exchange.LadderVenue
		connector   feed.Connector
	)
	switch cfg.Marketplace {
	case config.MarketBinanceSpot:
		ladderVenue = binance
		connector = feed.NewBinanceConnector(cfg.LadderSymbol(), logger)
	case config.MarketHyperliquid:
		hl, err := exchange.NewHyperliquid(cfg.HypePriKey, symbols, logger)
		if err != nil {
			logger.Error("failed to create hyperliquid adapter", "error", err)
			os.Exit(1)
		}
		ladderVenue = hl
		connector = feed.NewHyperliquidConnector(cfg.LadderSymbol(), logger)
	}

	m := metrics.New()
	if cfg.MetricsPort > 0 {
		go func() {
			if err := m.Serve(cfg.MetricsPort); err != nil {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
		logger.Info("metrics endpoint started", "port", cfg.MetricsPort)
	}

	r := runner.New(cfg, connector, ladderVenue, binance, feed.NewHistoryFetcher(), m, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("market maker starting",
		"pair", cfg.LadderSymbol(),
		"marketplace", cfg.Marketplace,
		"hedge", cfg.HedgeSymbol(),
		"mode", cfg.MMMode,
	)

	if err := r.Run(ctx); err != nil {
		logger.Error("engine terminated", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
