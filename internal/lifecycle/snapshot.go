package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketStructureBot/internal/domain"
	"marketStructureBot/internal/ports"
	"marketStructureBot/internal/structure"
)

// SnapshotConfig holds configuration for the structure snapshot job.
type SnapshotConfig struct {
	Pairs []string
	// WindowCandles is the candle window each higher-timeframe computation
	// reads.
	WindowCandles int
	// StructureConfig yields the detector tuning for one key.
	StructureConfig func(pair string, tf domain.Timeframe) structure.Config
}

// SnapshotRefresher recomputes the higher-timeframe current-structure
// snapshots and overwrites them in the cache. Lower-timeframe consumers
// read these instead of recomputing daily structure on every candle.
type SnapshotRefresher struct {
	cfg    SnapshotConfig
	tiers  *Tiered
	cache  ports.StructureCache
	logger ports.Logger
}

// NewSnapshotRefresher creates the snapshot job.
func NewSnapshotRefresher(cfg SnapshotConfig, tiers *Tiered, cache ports.StructureCache, logger ports.Logger) *SnapshotRefresher {
	if cfg.WindowCandles <= 0 {
		cfg.WindowCandles = 300
	}
	return &SnapshotRefresher{cfg: cfg, tiers: tiers, cache: cache, logger: logger}
}

// Run refreshes every pair once. The previous snapshots feed the new
// computation, so a pair's daily counter-trend flag reflects yesterday's
// cached direction, not a mid-run recompute.
func (s *SnapshotRefresher) Run(ctx context.Context) error {
	now := time.Now().UTC()
	for _, pair := range s.cfg.Pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.refreshPair(ctx, pair, now); err != nil {
			s.logger.Error(ctx, err, "Snapshot refresh failed", map[string]interface{}{"pair": pair})
		}
	}
	return nil
}

func (s *SnapshotRefresher) refreshPair(ctx context.Context, pair string, now time.Time) error {
	higher := make(map[domain.Timeframe]*domain.CurrentStructure, len(domain.HigherTimeframes))
	for _, tf := range domain.HigherTimeframes {
		cs, err := s.cache.GetCurrentStructure(ctx, pair, tf)
		if err != nil {
			return fmt.Errorf("reading cached snapshot %s: %w", tf, err)
		}
		higher[tf] = cs
	}

	for _, tf := range domain.HigherTimeframes {
		from := now.Add(-time.Duration(s.cfg.WindowCandles) * tf.Duration())
		candles, err := s.tiers.CandlesRange(ctx, pair, tf, from, now)
		if err != nil {
			return fmt.Errorf("reading candles %s: %w", tf, err)
		}

		orch := structure.New(s.cfg.StructureConfig(pair, tf))
		res, err := orch.ComputeStructure(structure.Input{
			Pair:      pair,
			Timeframe: tf,
			Candles:   candles,
			Higher:    higher,
		})
		if errors.Is(err, structure.ErrNotEnoughCandles) {
			s.logger.Warn(ctx, "Snapshot skipped, window too short", map[string]interface{}{
				"pair": pair, "timeframe": tf, "candles": len(candles),
			})
			continue
		}
		if err != nil {
			return fmt.Errorf("computing structure %s: %w", tf, err)
		}

		cs := res.CurrentStructure
		if err := s.cache.SetCurrentStructure(ctx, &cs); err != nil {
			return fmt.Errorf("writing snapshot %s: %w", tf, err)
		}
		higher[tf] = &cs
	}
	return nil
}
