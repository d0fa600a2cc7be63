package lifecycle

import (
	"context"
	"fmt"
	"time"

	"marketStructureBot/internal/domain"
	"marketStructureBot/internal/ports"
)

// ArchiveConfig holds configuration for the archiver job.
type ArchiveConfig struct {
	Retention time.Duration
	BatchSize int
}

// Archiver moves rows older than the retention horizon from the hot tier
// to the cold tier. Each batch is inserted cold first and deleted hot only
// after the insert succeeds, so a crash can duplicate rows but never lose
// them; cold upserts absorb the duplicates. Non-terminal FVGs are never
// archived.
type Archiver struct {
	cfg    ArchiveConfig
	hot    ports.Store
	cold   ports.Store
	logger ports.Logger
}

// NewArchiver creates the archiver job.
func NewArchiver(cfg ArchiveConfig, hot, cold ports.Store, logger ports.Logger) *Archiver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Archiver{cfg: cfg, hot: hot, cold: cold, logger: logger}
}

// Run archives all categories once. A failing category is logged and the
// others still run.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-a.cfg.Retention)

	categories := []struct {
		name    string
		archive func(context.Context, time.Time) (int64, error)
	}{
		{"candles", a.archiveCandles},
		{"swings", a.archiveSwings},
		{"bos", a.archiveBOS},
		{"sweeps", a.archiveSweeps},
		{"fvgs", a.archiveFVGs},
	}
	for _, cat := range categories {
		if err := ctx.Err(); err != nil {
			return err
		}
		moved, err := cat.archive(ctx, cutoff)
		if err != nil {
			a.logger.Error(ctx, err, "Archive pass failed", map[string]interface{}{"category": cat.name})
			continue
		}
		if moved > 0 {
			a.logger.Info(ctx, "Archived rows", map[string]interface{}{"category": cat.name, "rows": moved})
		}
	}
	return nil
}

func (a *Archiver) archiveCandles(ctx context.Context, cutoff time.Time) (int64, error) {
	return archiveBatches(ctx, a.cfg.BatchSize,
		func(ctx context.Context, limit int) ([]domain.Candle, error) {
			return a.hot.CandlesBefore(ctx, cutoff, limit)
		},
		a.cold.UpsertCandles,
		a.hot.DeleteCandlesRange,
		func(c domain.Candle) time.Time { return c.OpenTime },
	)
}

func (a *Archiver) archiveSwings(ctx context.Context, cutoff time.Time) (int64, error) {
	return archiveBatches(ctx, a.cfg.BatchSize,
		func(ctx context.Context, limit int) ([]domain.SwingPoint, error) {
			return a.hot.SwingsBefore(ctx, cutoff, limit)
		},
		a.cold.UpsertSwings,
		a.hot.DeleteSwingsRange,
		func(sp domain.SwingPoint) time.Time { return sp.Time },
	)
}

func (a *Archiver) archiveBOS(ctx context.Context, cutoff time.Time) (int64, error) {
	return archiveBatches(ctx, a.cfg.BatchSize,
		func(ctx context.Context, limit int) ([]domain.BOSEvent, error) {
			return a.hot.BOSBefore(ctx, cutoff, limit)
		},
		a.cold.UpsertBOSEvents,
		a.hot.DeleteBOSRange,
		func(ev domain.BOSEvent) time.Time { return ev.Time },
	)
}

func (a *Archiver) archiveSweeps(ctx context.Context, cutoff time.Time) (int64, error) {
	return archiveBatches(ctx, a.cfg.BatchSize,
		func(ctx context.Context, limit int) ([]domain.SweepEvent, error) {
			return a.hot.SweepsBefore(ctx, cutoff, limit)
		},
		a.cold.UpsertSweeps,
		a.hot.DeleteSweepsRange,
		func(ev domain.SweepEvent) time.Time { return ev.Time },
	)
}

func (a *Archiver) archiveFVGs(ctx context.Context, cutoff time.Time) (int64, error) {
	return archiveBatches(ctx, a.cfg.BatchSize,
		func(ctx context.Context, limit int) ([]domain.FVGEvent, error) {
			return a.hot.TerminalFVGsBefore(ctx, cutoff, limit)
		},
		a.cold.UpsertFVGs,
		a.hot.DeleteTerminalFVGsRange,
		func(ev domain.FVGEvent) time.Time { return ev.Time },
	)
}

// archiveBatches moves rows batch by batch until the category is drained.
// Because the hot delete is range-based and several keys can share one
// timestamp, a full batch is trimmed of its trailing max-timestamp rows so
// the delete range never covers rows the batch did not carry. When every
// row in a full batch shares one timestamp the trim is skipped; a single
// timestamp can never hold more rows than there are keys, which is far
// below any sane batch size.
func archiveBatches[T any](
	ctx context.Context,
	batchSize int,
	fetch func(ctx context.Context, limit int) ([]T, error),
	insert func(ctx context.Context, rows []T) error,
	deleteRange func(ctx context.Context, from, to time.Time) (int64, error),
	timeOf func(T) time.Time,
) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch, err := fetch(ctx, batchSize)
		if err != nil {
			return total, fmt.Errorf("fetching archive batch: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}

		fetchedFull := len(batch) == batchSize
		if fetchedFull {
			maxTime := timeOf(batch[len(batch)-1])
			trimmed := batch
			for len(trimmed) > 0 && timeOf(trimmed[len(trimmed)-1]).Equal(maxTime) {
				trimmed = trimmed[:len(trimmed)-1]
			}
			if len(trimmed) > 0 {
				batch = trimmed
			}
		}

		if err := insert(ctx, batch); err != nil {
			return total, fmt.Errorf("inserting archive batch: %w", err)
		}
		from := timeOf(batch[0])
		to := timeOf(batch[len(batch)-1])
		deleted, err := deleteRange(ctx, from, to)
		if err != nil {
			return total, fmt.Errorf("deleting archived rows: %w", err)
		}
		total += deleted

		if !fetchedFull {
			return total, nil
		}
	}
}
