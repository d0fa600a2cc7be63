package lifecycle

import (
	"context"
	"fmt"
	"time"

	"marketStructureBot/internal/domain"
	"marketStructureBot/internal/ports"

	"golang.org/x/sync/errgroup"
)

// GapConfig holds configuration for the gap caretaker job.
type GapConfig struct {
	Pairs            []string
	Timeframes       []domain.Timeframe
	ScanWindow       time.Duration // how far back each scan looks
	MinFetchCount    int           // below this the source result is treated as a market closure
	MaxParallelPairs int
}

// GapCaretaker finds holes in stored candle history and refetches them.
// A hole is a delta between consecutive stored candles exceeding twice the
// timeframe interval; holes fully covered by market closures are skipped.
type GapCaretaker struct {
	cfg      GapConfig
	source   ports.CandleSource
	tiers    *Tiered
	calendar *Calendar
	logger   ports.Logger
}

// NewGapCaretaker creates the gap caretaker job.
func NewGapCaretaker(cfg GapConfig, source ports.CandleSource, tiers *Tiered, calendar *Calendar, logger ports.Logger) *GapCaretaker {
	if cfg.MaxParallelPairs <= 0 {
		cfg.MaxParallelPairs = 4
	}
	if cfg.MinFetchCount <= 0 {
		cfg.MinFetchCount = 1
	}
	return &GapCaretaker{cfg: cfg, source: source, tiers: tiers, calendar: calendar, logger: logger}
}

// Run scans all (pair, timeframe) keys once. Failures on one key are
// logged and do not stop the others; only context cancellation aborts.
func (g *GapCaretaker) Run(ctx context.Context) error {
	now := time.Now().UTC()

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.MaxParallelPairs)

	for _, pair := range g.cfg.Pairs {
		pair := pair
		eg.Go(func() error {
			for _, tf := range g.cfg.Timeframes {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := g.scanKey(ctx, pair, tf, now); err != nil {
					g.logger.Error(ctx, err, "Gap scan failed", map[string]interface{}{"pair": pair, "timeframe": tf})
				}
			}
			return nil
		})
	}
	return eg.Wait()
}

func (g *GapCaretaker) scanKey(ctx context.Context, pair string, tf domain.Timeframe, now time.Time) error {
	interval := tf.Duration()
	from := now.Add(-g.cfg.ScanWindow)

	times, err := g.tiers.CandleTimes(ctx, pair, tf, from, now)
	if err != nil {
		return fmt.Errorf("listing candle times: %w", err)
	}
	if len(times) == 0 {
		// Nothing stored in the window at all: one big hole.
		return g.fillGap(ctx, pair, tf, from.Truncate(interval), now, now)
	}

	for i := 1; i < len(times); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		delta := times[i].Sub(times[i-1])
		if delta <= 2*interval {
			continue
		}
		gapStart := times[i-1].Add(interval)
		gapEnd := times[i]
		if err := g.fillGap(ctx, pair, tf, gapStart, gapEnd, now); err != nil {
			g.logger.Error(ctx, err, "Gap fill failed", map[string]interface{}{
				"pair": pair, "timeframe": tf, "gapStart": gapStart, "gapEnd": gapEnd,
			})
		}
	}

	// Trailing hole between the newest stored candle and now.
	last := times[len(times)-1]
	if now.Sub(last) > 2*interval {
		if err := g.fillGap(ctx, pair, tf, last.Add(interval), now, now); err != nil {
			return err
		}
	}
	return nil
}

// fillGap fetches [gapStart, gapEnd) unless the whole span is covered by
// market closures, and routes the result into the tiers by age.
func (g *GapCaretaker) fillGap(ctx context.Context, pair string, tf domain.Timeframe, gapStart, gapEnd, now time.Time) error {
	if g.calendar.CoveredByClosure(gapStart, gapEnd) {
		return nil
	}

	candles, err := g.source.FetchCandles(ctx, pair, tf, gapStart, gapEnd)
	if err != nil {
		return fmt.Errorf("fetching gap candles: %w", err)
	}
	if len(candles) < g.cfg.MinFetchCount {
		// The source has nothing either, most likely a closure the calendar
		// does not know about. Leave the hole; rescans are cheap.
		g.logger.Warn(ctx, "Gap not closable from source", map[string]interface{}{
			"pair": pair, "timeframe": tf, "gapStart": gapStart, "gapEnd": gapEnd, "fetched": len(candles),
		})
		return nil
	}

	if err := g.tiers.WriteCandles(ctx, now, candles); err != nil {
		return fmt.Errorf("writing gap candles: %w", err)
	}
	g.logger.Info(ctx, "Gap filled", map[string]interface{}{
		"pair": pair, "timeframe": tf, "gapStart": gapStart, "gapEnd": gapEnd, "count": len(candles),
	})
	return nil
}
