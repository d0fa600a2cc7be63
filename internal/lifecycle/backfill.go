package lifecycle

import (
	"context"
	"fmt"
	"time"

	"marketStructureBot/internal/domain"
	"marketStructureBot/internal/ports"
	"marketStructureBot/internal/structure"

	"golang.org/x/sync/errgroup"
)

// BackfillConfig holds configuration for the incremental backfiller.
type BackfillConfig struct {
	Pairs      []string
	Timeframes []domain.Timeframe
	// Start bounds a full backfill; months before it are never processed.
	Start time.Time
	// RecentMonths is how many trailing complete months an incremental run
	// covers.
	RecentMonths int
	// ContextCandles is how many candles before the month open are fetched
	// so swings near the boundary confirm and rolling baselines warm up.
	ContextCandles   int
	MaxParallelPairs int
	// StructureConfig yields the detector tuning for one key.
	StructureConfig func(pair string, tf domain.Timeframe) structure.Config
}

// Backfiller replays history month by month through the same computation
// the live path uses, writing candles and events into the tiers by age.
// Progress is an append-only log; completed months are skipped on rerun.
// The cache supplies the daily trend for counter-trend flags on incremental
// runs; it may be nil, in which case no break is flagged.
type Backfiller struct {
	cfg      BackfillConfig
	source   ports.CandleSource
	tiers    *Tiered
	progress ports.ProgressStore
	cache    ports.StructureCache
	logger   ports.Logger
}

// NewBackfiller creates the backfill job.
func NewBackfiller(cfg BackfillConfig, source ports.CandleSource, tiers *Tiered, progress ports.ProgressStore, cache ports.StructureCache, logger ports.Logger) *Backfiller {
	if cfg.RecentMonths <= 0 {
		cfg.RecentMonths = 2
	}
	if cfg.ContextCandles <= 0 {
		cfg.ContextCandles = 64
	}
	if cfg.MaxParallelPairs <= 0 {
		cfg.MaxParallelPairs = 2
	}
	return &Backfiller{cfg: cfg, source: source, tiers: tiers, progress: progress, cache: cache, logger: logger}
}

// Run backfills either the full configured history or only the trailing
// months. Per-month failures are recorded and retried on the next run.
func (b *Backfiller) Run(ctx context.Context, full bool) error {
	return b.run(ctx, full, time.Now().UTC())
}

// run is Run with an explicit clock.
func (b *Backfiller) run(ctx context.Context, full bool, now time.Time) error {
	months := b.months(now, full)

	// Incremental runs also recompute the forming month so recent events
	// stay current; it gets no progress row since it is not complete yet.
	// A month under two days old has too few candles to confirm anything.
	var forming time.Time
	if !full {
		m := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		if now.Sub(m) > 48*time.Hour {
			forming = m
		}
	}
	if len(months) == 0 && forming.IsZero() {
		return nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(b.cfg.MaxParallelPairs)

	for _, pair := range b.cfg.Pairs {
		pair := pair
		eg.Go(func() error {
			for _, tf := range b.cfg.Timeframes {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := b.backfillKey(ctx, pair, tf, months, forming, now, full); err != nil {
					b.logger.Error(ctx, err, "Backfill failed for key", map[string]interface{}{"pair": pair, "timeframe": tf})
				}
			}
			return nil
		})
	}
	return eg.Wait()
}

// months lists the complete months to process, ascending, as first-of-month
// instants.
func (b *Backfiller) months(now time.Time, full bool) []time.Time {
	currentMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	start := currentMonth.AddDate(0, -b.cfg.RecentMonths, 0)
	if full {
		start = time.Date(b.cfg.Start.Year(), b.cfg.Start.Month(), 1, 0, 0, 0, 0, time.UTC)
	}

	var out []time.Time
	for m := start; m.Before(currentMonth); m = m.AddDate(0, 1, 0) {
		out = append(out, m)
	}
	return out
}

func (b *Backfiller) backfillKey(ctx context.Context, pair string, tf domain.Timeframe, months []time.Time, forming, now time.Time, full bool) error {
	completed, err := b.progress.CompletedMonths(ctx, pair, tf)
	if err != nil {
		return fmt.Errorf("loading backfill progress: %w", err)
	}

	orch := structure.New(b.cfg.StructureConfig(pair, tf))

	// Incremental runs feed the cached daily trend into the computation so
	// breaks against it carry the counter-trend flag. Full-history replays
	// skip it: today's snapshot says nothing about years-old months.
	var higher map[domain.Timeframe]*domain.CurrentStructure
	if !full && b.cache != nil {
		cs, err := b.cache.GetCurrentStructure(ctx, pair, domain.TF1d)
		if err != nil {
			b.logger.Warn(ctx, "Reading daily structure snapshot failed", map[string]interface{}{"pair": pair, "error": err.Error()})
		} else if cs != nil {
			higher = map[domain.Timeframe]*domain.CurrentStructure{domain.TF1d: cs}
		}
	}

	for _, month := range months {
		if err := ctx.Err(); err != nil {
			return err
		}
		ym := month.Format("2006-01")
		if completed[ym] {
			continue
		}

		rows, err := b.backfillMonth(ctx, orch, pair, tf, month, now, higher)
		status := domain.BackfillComplete
		if err != nil {
			b.logger.Error(ctx, err, "Backfill month failed", map[string]interface{}{"pair": pair, "timeframe": tf, "month": ym})
			status = domain.BackfillError
		}
		rec := domain.BackfillProgress{
			Pair: pair, Timeframe: tf, YearMonth: ym,
			RowsWritten: rows, Status: status, RecordedAt: time.Now().UTC(),
		}
		if perr := b.progress.RecordProgress(ctx, rec); perr != nil {
			b.logger.Error(ctx, perr, "Recording backfill progress failed", map[string]interface{}{"pair": pair, "timeframe": tf, "month": ym})
		}
	}

	if !forming.IsZero() {
		if _, err := b.backfillMonth(ctx, orch, pair, tf, forming, now, higher); err != nil {
			b.logger.Error(ctx, err, "Backfill of forming month failed", map[string]interface{}{"pair": pair, "timeframe": tf, "month": forming.Format("2006-01")})
		}
	}
	return nil
}

// backfillMonth fetches one month plus leading context, recomputes the
// structure events, and persists only rows whose time falls in the month.
// Returns the number of rows written.
func (b *Backfiller) backfillMonth(ctx context.Context, orch *structure.Orchestrator, pair string, tf domain.Timeframe, month, now time.Time, higher map[domain.Timeframe]*domain.CurrentStructure) (int, error) {
	monthEnd := month.AddDate(0, 1, 0)
	contextStart := month.Add(-time.Duration(b.cfg.ContextCandles) * tf.Duration())

	candles, err := b.source.FetchCandles(ctx, pair, tf, contextStart, monthEnd)
	if err != nil {
		return 0, fmt.Errorf("fetching candles: %w", err)
	}
	if len(candles) == 0 {
		return 0, nil // markets with no data for the month, e.g. pre-listing
	}

	res, err := orch.ComputeStructure(structure.Input{
		Pair:      pair,
		Timeframe: tf,
		Candles:   candles,
		Higher:    higher,
	})
	if err != nil {
		if err == structure.ErrNotEnoughCandles {
			return 0, nil
		}
		return 0, fmt.Errorf("computing structure: %w", err)
	}

	inMonth := func(t time.Time) bool { return !t.Before(month) && t.Before(monthEnd) }

	var monthCandles []domain.Candle
	for _, c := range candles {
		if inMonth(c.OpenTime) {
			monthCandles = append(monthCandles, c)
		}
	}
	var swings []domain.SwingPoint
	for _, sp := range res.Swings {
		if inMonth(sp.Time) {
			swings = append(swings, sp)
		}
	}
	var bos []domain.BOSEvent
	for _, ev := range res.BOSEvents {
		if inMonth(ev.Time) {
			bos = append(bos, ev)
		}
	}
	var sweeps []domain.SweepEvent
	for _, ev := range res.SweepEvents {
		if inMonth(ev.Time) {
			sweeps = append(sweeps, ev)
		}
	}
	var fvgs []domain.FVGEvent
	for _, ev := range res.FVGEvents {
		if inMonth(ev.Time) {
			fvgs = append(fvgs, ev)
		}
	}

	if err := b.tiers.WriteCandles(ctx, now, monthCandles); err != nil {
		return 0, fmt.Errorf("writing candles: %w", err)
	}
	if err := b.tiers.WriteEvents(ctx, now, swings, bos, sweeps, fvgs); err != nil {
		return 0, fmt.Errorf("writing events: %w", err)
	}

	rows := len(monthCandles) + len(swings) + len(bos) + len(sweeps) + len(fvgs)
	b.logger.Info(ctx, "Backfilled month", map[string]interface{}{
		"pair": pair, "timeframe": tf, "month": month.Format("2006-01"), "rows": rows,
	})
	return rows, nil
}
