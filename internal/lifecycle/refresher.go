package lifecycle

import (
	"context"
	"fmt"
	"time"

	"marketStructureBot/internal/domain"
	"marketStructureBot/internal/ports"
	"marketStructureBot/internal/structure"
)

// RefreshConfig holds configuration for the fill refresher job.
type RefreshConfig struct {
	Pairs      []string
	Timeframes []domain.Timeframe
	// WindowCandles bounds the candle window evaluated per run.
	WindowCandles int
	// StructureConfig yields the detector tuning for one key.
	StructureConfig func(pair string, tf domain.Timeframe) structure.Config
}

// FillRefresher advances the fill state of active gaps against recent
// candles. Only rows that actually changed are written back.
type FillRefresher struct {
	cfg    RefreshConfig
	hot    ports.Store
	logger ports.Logger
}

// NewFillRefresher creates the fill refresher job.
func NewFillRefresher(cfg RefreshConfig, hot ports.Store, logger ports.Logger) *FillRefresher {
	if cfg.WindowCandles <= 0 {
		cfg.WindowCandles = 500
	}
	return &FillRefresher{cfg: cfg, hot: hot, logger: logger}
}

// Run refreshes every (pair, timeframe) key once. Failures on one key are
// logged and do not stop the others.
func (r *FillRefresher) Run(ctx context.Context) error {
	now := time.Now().UTC()
	for _, pair := range r.cfg.Pairs {
		for _, tf := range r.cfg.Timeframes {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.refreshKey(ctx, pair, tf, now); err != nil {
				r.logger.Error(ctx, err, "Fill refresh failed", map[string]interface{}{"pair": pair, "timeframe": tf})
			}
		}
	}
	return nil
}

func (r *FillRefresher) refreshKey(ctx context.Context, pair string, tf domain.Timeframe, now time.Time) error {
	active, err := r.hot.ActiveFVGs(ctx, pair, tf)
	if err != nil {
		return fmt.Errorf("listing active gaps: %w", err)
	}
	if len(active) == 0 {
		return nil
	}

	from := now.Add(-time.Duration(r.cfg.WindowCandles) * tf.Duration())
	candles, err := r.hot.CandlesRange(ctx, pair, tf, from, now)
	if err != nil {
		return fmt.Errorf("reading recent candles: %w", err)
	}
	if len(candles) == 0 {
		return nil
	}

	scfg := r.cfg.StructureConfig(pair, tf)
	tracker := structure.NewFVGTracker(structure.FVGConfig{
		PipSize:       scfg.PipSize,
		FillThreshold: scfg.FillThreshold,
		VolumeWindow:  scfg.VolumeWindow,
	})

	var changed []domain.FVGEvent
	for i := range active {
		if tracker.Evaluate(&active[i], candles) {
			changed = append(changed, active[i])
		}
	}
	if len(changed) == 0 {
		return nil
	}

	if err := r.hot.UpsertFVGs(ctx, changed); err != nil {
		return fmt.Errorf("writing refreshed gaps: %w", err)
	}
	r.logger.Debug(ctx, "Refreshed gap fill state", map[string]interface{}{
		"pair": pair, "timeframe": tf, "active": len(active), "changed": len(changed),
	})
	return nil
}
