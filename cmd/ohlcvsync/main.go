// ohlcvsync fetches OHLCV candles for a trading pair from a ranked list of
// exchanges and keeps the stored series gap-free.
//
// Usage:
//
//	ohlcvsync [--config config.yaml] [--symbol BTC/USDT] [--timeframe 1h] [--days 30]
//	ohlcvsync --config config.yaml --schedule
//
// Exit codes: 0 success, 1 usage error, 2 configuration error, 4 data error.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/candlekeep/go-ohlcv-sync/internal/collector"
	"github.com/candlekeep/go-ohlcv-sync/internal/config"
	"github.com/candlekeep/go-ohlcv-sync/internal/exchange"
	"github.com/candlekeep/go-ohlcv-sync/internal/fetcher"
	"github.com/candlekeep/go-ohlcv-sync/internal/logger"
	"github.com/candlekeep/go-ohlcv-sync/internal/models"
	"github.com/candlekeep/go-ohlcv-sync/internal/ranking"
	"github.com/candlekeep/go-ohlcv-sync/internal/scheduler"
	"github.com/candlekeep/go-ohlcv-sync/internal/storage"
)

const (
	exitOK     = 0
	exitUsage  = 1
	exitConfig = 2
	exitData   = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := flag.NewFlagSet("ohlcvsync", flag.ContinueOnError)
	var (
		configPath = flags.String("config", "", "path to YAML configuration file")
		symbol     = flags.String("symbol", "", "trading pair, e.g. BTC/USDT (default from config)")
		timeframe  = flags.String("timeframe", "", "single timeframe to sync, e.g. 1h (default: all configured)")
		days       = flags.Int("days", 0, "days of history to sync (default from config)")
		schedule   = flags.Bool("schedule", false, "run configured cron tasks until interrupted")
	)
	if err := flags.Parse(args); err != nil {
		return exitUsage
	}

	// Optional; a missing .env file is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ohlcvsync: %v\n", err)
		return exitConfig
	}

	log, err := logger.Setup(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ohlcvsync: %v\n", err)
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, err := buildSink(ctx, cfg)
	if err != nil {
		log.Error("storage setup failed", "error", err)
		return exitConfig
	}
	defer sink.Close()

	if err := sink.Initialize(ctx); err != nil {
		log.Error("storage initialization failed", "error", err)
		return exitConfig
	}

	rank := ranking.New(
		ranking.NewFileStore(cfg.Data.CacheDir),
		cfg.Data.EnableDynamicSorting,
		log,
	)
	registry := exchange.NewRegistry(
		exchange.NewBinanceAdapter(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_SECRET_KEY"), log),
	)
	f := fetcher.New(registry, rank, cfg.Fetch.AttemptDelay.Std(), log)
	orch := collector.New(f, sink, cfg.Fetch.PageLimit, cfg.Data.EnableDataFilling, log)

	if *schedule {
		return runScheduler(ctx, cfg, orch, log)
	}
	return runOnce(ctx, cfg, f, orch, log, *symbol, *timeframe, *days)
}

func runOnce(ctx context.Context, cfg *config.Config, f *fetcher.Fetcher, orch *collector.Orchestrator, log *slog.Logger, symbol, timeframe string, days int) int {
	if symbol == "" {
		symbol = cfg.Data.DefaultSymbol
	}
	if days <= 0 {
		days = cfg.Data.DefaultDays
	}
	start := time.Now().UTC().AddDate(0, 0, -days)

	timeframes := cfg.ParsedTimeframes()
	if timeframe != "" {
		tf, err := models.ParseTimeframe(timeframe)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ohlcvsync: %v\n", err)
			return exitUsage
		}
		timeframes = []models.Timeframe{tf}
	}

	// Confirm the pair trades somewhere before burning exchange calls on
	// every timeframe.
	exchangeID, _, err := f.FetchMarkets(ctx, symbol)
	if err != nil {
		log.Error("symbol not tradable on any ranked exchange", "symbol", symbol, "error", err)
		return exitData
	}

	log.Info("sync starting",
		"symbol", symbol,
		"market_exchange", exchangeID,
		"days", days,
		"timeframes", len(timeframes))

	results, err := orch.FetchAllTimeframes(ctx, symbol, timeframes, start, time.Time{})
	if err != nil {
		log.Error("sync aborted", "error", err)
		return exitData
	}

	code := exitOK
	for tf, ok := range results {
		if !ok {
			log.Warn("timeframe incomplete", "symbol", symbol, "timeframe", tf)
			code = exitData
		}
	}
	if code == exitOK {
		log.Info("sync complete", "symbol", symbol)
	}
	return code
}

func runScheduler(ctx context.Context, cfg *config.Config, orch *collector.Orchestrator, log *slog.Logger) int {
	if len(cfg.Cron.Tasks) == 0 {
		log.Error("schedule mode requires cron.tasks in the configuration")
		return exitConfig
	}

	sched := scheduler.New(orch, cfg.ParsedTimeframes(), log)
	if err := sched.Register(cfg.Cron.Tasks); err != nil {
		log.Error("scheduler setup failed", "error", err)
		return exitConfig
	}

	sched.Start()
	<-ctx.Done()
	sched.Stop()
	return exitOK
}

func buildSink(ctx context.Context, cfg *config.Config) (storage.Sink, error) {
	switch cfg.Database.Type {
	case "csv":
		return storage.NewCSVSink(cfg.Data.DataDir), nil
	case "postgresql":
		return storage.NewPostgresSink(ctx, cfg.Database.PostgreSQL.DSN())
	default:
		return nil, fmt.Errorf("unsupported database type: %q", cfg.Database.Type)
	}
}
