package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketStructureBot/config"
	"marketStructureBot/internal/domain"
	"marketStructureBot/internal/lifecycle"
	"marketStructureBot/internal/ports"
	"marketStructureBot/internal/scheduler"
	"marketStructureBot/internal/structure"
)

// Worker wires the lifecycle jobs into the scheduler and runs them until
// shutdown. It owns no business logic of its own.
type Worker struct {
	cfg      *config.Config
	logger   ports.Logger
	source   ports.CandleSource
	tiers    *lifecycle.Tiered
	cache    ports.StructureCache
	progress ports.ProgressStore
	sched    *scheduler.Scheduler
}

// New creates the worker and registers all scheduled jobs.
func New(
	cfg *config.Config,
	logger ports.Logger,
	source ports.CandleSource,
	hot ports.Store,
	cold ports.Store,
	cache ports.StructureCache,
	progress ports.ProgressStore,
) (*Worker, error) {
	if cfg == nil || logger == nil || source == nil || hot == nil || cold == nil || cache == nil || progress == nil {
		return nil, fmt.Errorf("missing required dependencies for worker")
	}

	w := &Worker{
		cfg:    cfg,
		logger: logger,
		source: source,
		tiers: &lifecycle.Tiered{
			Hot:       hot,
			Cold:      cold,
			Retention: cfg.Retention(),
		},
		cache:    cache,
		progress: progress,
		sched:    scheduler.New(logger),
	}

	calendar := lifecycle.NewCalendar(cfg.Holidays)

	gaps := lifecycle.NewGapCaretaker(lifecycle.GapConfig{
		Pairs:            cfg.Pairs,
		Timeframes:       cfg.Timeframes,
		ScanWindow:       time.Duration(cfg.GapScanWindowDays) * 24 * time.Hour,
		MinFetchCount:    cfg.MinGapFetchCount,
		MaxParallelPairs: cfg.MaxParallelPairs,
	}, source, w.tiers, calendar, logger)

	backfill := w.newBackfiller()

	refresher := lifecycle.NewFillRefresher(lifecycle.RefreshConfig{
		Pairs:           cfg.Pairs,
		Timeframes:      cfg.Timeframes,
		WindowCandles:   cfg.RefreshWindowCandles,
		StructureConfig: w.structureConfig,
	}, hot, logger)

	archiver := lifecycle.NewArchiver(lifecycle.ArchiveConfig{
		Retention: cfg.Retention(),
		BatchSize: cfg.ArchiveBatchSize,
	}, hot, cold, logger)

	snapshots := lifecycle.NewSnapshotRefresher(lifecycle.SnapshotConfig{
		Pairs:           cfg.Pairs,
		WindowCandles:   cfg.CacheWindowCandles,
		StructureConfig: w.structureConfig,
	}, w.tiers, cache, logger)

	w.sched.Add(scheduler.Job{Name: "gap_caretaker", Schedule: scheduler.Every(cfg.GapScanInterval), Run: gaps.Run})
	w.sched.Add(scheduler.Job{Name: "fill_refresher", Schedule: scheduler.Every(cfg.FillRefreshInterval), Run: refresher.Run})
	w.sched.Add(scheduler.Job{Name: "structure_cache", Schedule: scheduler.Every(cfg.StructureCacheInterval), Run: snapshots.Run})
	w.sched.Add(scheduler.Job{
		Name:     "incremental_backfill",
		Schedule: scheduler.DailyAt{Hour: cfg.BackfillHourUTC},
		Run: func(ctx context.Context) error {
			return backfill.Run(ctx, false)
		},
	})
	w.sched.Add(scheduler.Job{Name: "archiver", Schedule: scheduler.DailyAt{Hour: cfg.ArchiverHourUTC}, Run: archiver.Run})

	return w, nil
}

// newBackfiller builds the backfill job from config. It is shared by the
// daily incremental run and the full-range CLI mode.
func (w *Worker) newBackfiller() *lifecycle.Backfiller {
	return lifecycle.NewBackfiller(lifecycle.BackfillConfig{
		Pairs:            w.cfg.Pairs,
		Timeframes:       w.cfg.Timeframes,
		Start:            w.cfg.BackfillStart,
		RecentMonths:     w.cfg.BackfillRecentMonths,
		ContextCandles:   w.contextCandles(),
		MaxParallelPairs: w.cfg.MaxParallelPairs,
		StructureConfig:  w.structureConfig,
	}, w.source, w.tiers, w.progress, w.cache, w.logger)
}

// contextCandles sizes the lookback window fetched before each backfill
// month so swings near the boundary confirm and rolling baselines warm up.
func (w *Worker) contextCandles() int {
	n := 2*w.cfg.SwingLookback + 1
	if w.cfg.VolumeBaselineWindow > n {
		n = w.cfg.VolumeBaselineWindow
	}
	if w.cfg.ReclaimTimeoutCandles > n {
		n = w.cfg.ReclaimTimeoutCandles
	}
	return 2 * n
}

// structureConfig yields the detector tuning for one (pair, timeframe) key.
func (w *Worker) structureConfig(pair string, tf domain.Timeframe) structure.Config {
	return structure.Config{
		PipSize:               w.cfg.PipSize(pair),
		SwingLookback:         w.cfg.SwingLookback,
		EqualTolPips:          w.cfg.EqualTolerancePips,
		DisplacementBodyRatio: w.cfg.DisplacementBodyRatio,
		ReclaimTimeoutCandles: w.cfg.ReclaimTimeoutCandles,
		SweepLookaheadCandles: w.cfg.SweepLookaheadCandles,
		FillThreshold:         w.cfg.FillThreshold(tf),
		VolumeWindow:          w.cfg.VolumeBaselineWindow,
	}
}

// Start runs the scheduler until the context is canceled or a shutdown
// signal arrives.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info(ctx, "Starting market structure worker", map[string]interface{}{
		"pairs": len(w.cfg.Pairs), "timeframes": len(w.cfg.Timeframes),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	w.sched.Start(ctx)

	select {
	case sig := <-sigCh:
		w.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
	case <-ctx.Done():
	}

	w.sched.Stop()
	w.logger.Info(context.Background(), "Worker stopped")
	return nil
}

// RunFullBackfill executes one full-range backfill synchronously. Used by
// the backfill CLI; the worker's scheduler is not involved.
func (w *Worker) RunFullBackfill(ctx context.Context) error {
	return w.newBackfiller().Run(ctx, true)
}
