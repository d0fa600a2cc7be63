// Command backfill runs the month-by-month historical backfill once and
// exits. With --full it replays from the configured start date; without it
// only the trailing months are processed, same as the daily scheduled run.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"marketStructureBot/config"
	"marketStructureBot/internal/adapters/binanceclient"
	"marketStructureBot/internal/adapters/logger"
	"marketStructureBot/internal/adapters/postgres"
	"marketStructureBot/internal/adapters/rediscache"
	"marketStructureBot/internal/adapters/sqlite"
	"marketStructureBot/internal/domain"
	"marketStructureBot/internal/lifecycle"
	"marketStructureBot/internal/ports"
	"marketStructureBot/internal/structure"
)

func main() {
	full := flag.Bool("full", false, "backfill the full configured history instead of only recent months")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hot, err := sqlite.New(sqlite.Config{DBPath: cfg.SQLitePath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize hot tier store: %v", err)
	}
	defer hot.Close()

	cold, err := postgres.New(postgres.Config{DSN: cfg.PostgresDSN, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize cold tier store: %v", err)
	}
	defer cold.Close()

	source, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize candle source: %v", err)
	}

	// Incremental runs read the daily trend snapshot for counter-trend
	// flags; full-history replays never consult it, so skip Redis there.
	var cache ports.StructureCache
	if !*full {
		redisCache, err := rediscache.New(ctx, rediscache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Logger:   appLogger,
		})
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize structure cache: %v", err)
		}
		defer redisCache.Close()
		cache = redisCache
	}

	tiers := &lifecycle.Tiered{Hot: hot, Cold: cold, Retention: cfg.Retention()}
	backfiller := lifecycle.NewBackfiller(lifecycle.BackfillConfig{
		Pairs:            cfg.Pairs,
		Timeframes:       cfg.Timeframes,
		Start:            cfg.BackfillStart,
		RecentMonths:     cfg.BackfillRecentMonths,
		MaxParallelPairs: cfg.MaxParallelPairs,
		StructureConfig: func(pair string, tf domain.Timeframe) structure.Config {
			return structure.Config{
				PipSize:               cfg.PipSize(pair),
				SwingLookback:         cfg.SwingLookback,
				EqualTolPips:          cfg.EqualTolerancePips,
				DisplacementBodyRatio: cfg.DisplacementBodyRatio,
				ReclaimTimeoutCandles: cfg.ReclaimTimeoutCandles,
				SweepLookaheadCandles: cfg.SweepLookaheadCandles,
				FillThreshold:         cfg.FillThreshold(tf),
				VolumeWindow:          cfg.VolumeBaselineWindow,
			}
		},
	}, source, tiers, cold, cache, appLogger)

	if err := backfiller.Run(ctx, *full); err != nil {
		log.Fatalf("FATAL: Backfill failed: %v", err)
	}
	appLogger.Info(ctx, "Backfill finished", map[string]interface{}{"full": *full})
}
