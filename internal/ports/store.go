package ports

import (
	"context"
	"time"

	"marketStructureBot/internal/domain"
)

// CandleStore is the candle surface of one storage tier. All writes are
// idempotent upserts keyed by (pair, timeframe, open time); range scans
// return rows ordered ascending by open time.
type CandleStore interface {
	// UpsertCandles inserts or overwrites candles.
	UpsertCandles(ctx context.Context, candles []domain.Candle) error
	// CandlesRange returns candles with open time in [from, to).
	CandlesRange(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.Candle, error)
	// CandleTimes returns only the open times in [from, to), for gap scans.
	CandleTimes(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]time.Time, error)
	// LatestCandleTime returns the newest open time for the key, or the
	// zero time when the tier holds no candles for it.
	LatestCandleTime(ctx context.Context, pair string, tf domain.Timeframe) (time.Time, error)
	// CandlesBefore returns up to limit final candles older than cutoff,
	// ordered ascending. Used by the archiver.
	CandlesBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Candle, error)
	// DeleteCandlesRange removes final candles with open time in [from, to].
	DeleteCandlesRange(ctx context.Context, from, to time.Time) (int64, error)
}

// EventStore is the structure-event surface of one storage tier. Upserts
// are keyed by (pair, timeframe, time) plus direction where two directions
// can coincide on one candle; the cold tier must tolerate duplicate
// archival inserts. Range scans return rows ordered ascending by time.
type EventStore interface {
	UpsertSwings(ctx context.Context, swings []domain.SwingPoint) error
	SwingsRange(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.SwingPoint, error)
	SwingsBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.SwingPoint, error)
	DeleteSwingsRange(ctx context.Context, from, to time.Time) (int64, error)

	UpsertBOSEvents(ctx context.Context, events []domain.BOSEvent) error
	BOSRange(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.BOSEvent, error)
	BOSBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.BOSEvent, error)
	DeleteBOSRange(ctx context.Context, from, to time.Time) (int64, error)

	UpsertSweeps(ctx context.Context, sweeps []domain.SweepEvent) error
	SweepsRange(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.SweepEvent, error)
	SweepsBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.SweepEvent, error)
	DeleteSweepsRange(ctx context.Context, from, to time.Time) (int64, error)

	UpsertFVGs(ctx context.Context, fvgs []domain.FVGEvent) error
	FVGsRange(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.FVGEvent, error)
	// ActiveFVGs returns non-terminal (fresh or partial) gaps for the key.
	ActiveFVGs(ctx context.Context, pair string, tf domain.Timeframe) ([]domain.FVGEvent, error)
	// TerminalFVGsBefore returns only filled/inverted gaps older than cutoff.
	// Non-terminal gaps are never archived, whatever their age.
	TerminalFVGsBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.FVGEvent, error)
	DeleteTerminalFVGsRange(ctx context.Context, from, to time.Time) (int64, error)
}

// Store is a full storage tier.
type Store interface {
	CandleStore
	EventStore
}

// ProgressStore records and reads the append-only backfill progress log.
type ProgressStore interface {
	// RecordProgress appends one progress row.
	RecordProgress(ctx context.Context, p domain.BackfillProgress) error
	// CompletedMonths returns the set of year-months whose latest row for
	// the key is complete.
	CompletedMonths(ctx context.Context, pair string, tf domain.Timeframe) (map[string]bool, error)
	// ListProgress returns the latest row per (pair, timeframe, month),
	// ordered by pair, timeframe, month. Read-only operational surface.
	ListProgress(ctx context.Context) ([]domain.BackfillProgress, error)
}

// StructureCache is the current-structure snapshot store.
type StructureCache interface {
	// GetCurrentStructure returns the snapshot for the key, or nil, nil
	// when no snapshot has been computed yet.
	GetCurrentStructure(ctx context.Context, pair string, tf domain.Timeframe) (*domain.CurrentStructure, error)
	// SetCurrentStructure overwrites the snapshot for its key.
	SetCurrentStructure(ctx context.Context, cs *domain.CurrentStructure) error
}
