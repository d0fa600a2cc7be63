package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"marketStructureBot/internal/domain"
	"marketStructureBot/internal/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // Postgres driver
)

// Store implements ports.Store as the cold tier and ports.ProgressStore for
// the backfill log. Timestamps are TIMESTAMPTZ; upserts make archival
// inserts duplicate-tolerant.
type Store struct {
	db     *sqlx.DB
	logger ports.Logger
}

// Config holds configuration for the Postgres store.
type Config struct {
	DSN    string
	Logger ports.Logger
}

// New connects to Postgres and initializes the schema.
func New(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Postgres store")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required: %w", ports.ErrConfigurationError)
	}

	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		err = fmt.Errorf("failed to connect to postgres: %w: %w", ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "Postgres store initialization failed")
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, logger: cfg.Logger}
	if err := s.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize postgres schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "Postgres store initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Postgres store ready")
	return s, nil
}

func (s *Store) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS candles (
		pair       TEXT NOT NULL,
		timeframe  TEXT NOT NULL,
		open_time  TIMESTAMPTZ NOT NULL,
		open       DOUBLE PRECISION NOT NULL,
		high       DOUBLE PRECISION NOT NULL,
		low        DOUBLE PRECISION NOT NULL,
		close      DOUBLE PRECISION NOT NULL,
		volume     DOUBLE PRECISION NOT NULL,
		is_final   BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (pair, timeframe, open_time)
	);

	CREATE TABLE IF NOT EXISTS swing_points (
		pair       TEXT NOT NULL,
		timeframe  TEXT NOT NULL,
		time       TIMESTAMPTZ NOT NULL,
		kind       TEXT NOT NULL,
		price      DOUBLE PRECISION NOT NULL,
		label      TEXT NOT NULL,
		lookback   INTEGER NOT NULL,
		true_range DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (pair, timeframe, time, kind)
	);

	CREATE TABLE IF NOT EXISTS bos_events (
		pair               TEXT NOT NULL,
		timeframe          TEXT NOT NULL,
		time               TIMESTAMPTZ NOT NULL,
		direction          TEXT NOT NULL,
		status             TEXT NOT NULL,
		broken_level       DOUBLE PRECISION NOT NULL,
		broken_swing_time  TIMESTAMPTZ NOT NULL,
		confirming_close   DOUBLE PRECISION NOT NULL,
		magnitude_pips     DOUBLE PRECISION NOT NULL,
		is_displacement    BOOLEAN NOT NULL,
		is_counter_trend   BOOLEAN NOT NULL,
		reclaimed_at       TIMESTAMPTZ,
		reclaimed_by_close DOUBLE PRECISION NOT NULL DEFAULT 0,
		time_til_reclaim   BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (pair, timeframe, time, direction)
	);

	CREATE TABLE IF NOT EXISTS sweep_events (
		pair             TEXT NOT NULL,
		timeframe        TEXT NOT NULL,
		time             TIMESTAMPTZ NOT NULL,
		direction        TEXT NOT NULL,
		swept_level      DOUBLE PRECISION NOT NULL,
		wick_extreme     DOUBLE PRECISION NOT NULL,
		swept_level_type TEXT NOT NULL,
		followed_by_bos  BOOLEAN NOT NULL,
		PRIMARY KEY (pair, timeframe, time, direction, swept_level_type)
	);

	CREATE TABLE IF NOT EXISTS fvg_events (
		pair              TEXT NOT NULL,
		timeframe         TEXT NOT NULL,
		time              TIMESTAMPTZ NOT NULL,
		direction         TEXT NOT NULL,
		status            TEXT NOT NULL,
		top               DOUBLE PRECISION NOT NULL,
		bottom            DOUBLE PRECISION NOT NULL,
		midline           DOUBLE PRECISION NOT NULL,
		gap_size_pips     DOUBLE PRECISION NOT NULL,
		body_ratio        DOUBLE PRECISION NOT NULL,
		gap_to_body_ratio DOUBLE PRECISION NOT NULL,
		rel_volume        DOUBLE PRECISION NOT NULL,
		tier              INTEGER NOT NULL,
		fill_percent      DOUBLE PRECISION NOT NULL,
		max_fill_percent  DOUBLE PRECISION NOT NULL,
		body_filled       BOOLEAN NOT NULL,
		wick_touched      BOOLEAN NOT NULL,
		first_touch_at    TIMESTAMPTZ,
		retest_count      INTEGER NOT NULL,
		midline_respected BOOLEAN NOT NULL,
		filled_at         TIMESTAMPTZ,
		inverted_at       TIMESTAMPTZ,
		PRIMARY KEY (pair, timeframe, time, direction)
	);

	CREATE TABLE IF NOT EXISTS backfill_progress (
		id           BIGSERIAL PRIMARY KEY,
		pair         TEXT NOT NULL,
		timeframe    TEXT NOT NULL,
		year_month   TEXT NOT NULL,
		rows_written INTEGER NOT NULL,
		status       TEXT NOT NULL,
		recorded_at  TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_candles_open_time ON candles (open_time);
	CREATE INDEX IF NOT EXISTS idx_swing_points_time ON swing_points (time);
	CREATE INDEX IF NOT EXISTS idx_bos_events_time ON bos_events (time);
	CREATE INDEX IF NOT EXISTS idx_sweep_events_time ON sweep_events (time);
	CREATE INDEX IF NOT EXISTS idx_fvg_events_time ON fvg_events (time);
	CREATE INDEX IF NOT EXISTS idx_backfill_progress_key ON backfill_progress (pair, timeframe, year_month, recorded_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		s.logger.Info(context.Background(), "Closing Postgres connection")
		return s.db.Close()
	}
	return nil
}

// namedUpsert runs one named upsert per row inside a transaction.
func (s *Store) namedUpsert(ctx context.Context, query string, rows []interface{}) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w: %w", ports.ErrUpsertFailed, err)
	}
	defer tx.Rollback()
	for _, row := range rows {
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return fmt.Errorf("named upsert: %w: %w", ports.ErrUpsertFailed, err)
		}
	}
	return tx.Commit()
}

// --- CandleStore ---

func (s *Store) UpsertCandles(ctx context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	const query = `
	INSERT INTO candles (pair, timeframe, open_time, open, high, low, close, volume, is_final)
	VALUES (:pair, :timeframe, :open_time, :open, :high, :low, :close, :volume, :is_final)
	ON CONFLICT (pair, timeframe, open_time) DO UPDATE SET
		open = excluded.open, high = excluded.high, low = excluded.low,
		close = excluded.close, volume = excluded.volume, is_final = excluded.is_final`
	rows := make([]interface{}, len(candles))
	for i := range candles {
		rows[i] = candles[i]
	}
	return s.namedUpsert(ctx, query, rows)
}

func (s *Store) CandlesRange(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.Candle, error) {
	const query = `
	SELECT * FROM candles
	WHERE pair = $1 AND timeframe = $2 AND open_time >= $3 AND open_time < $4
	ORDER BY open_time ASC`
	var out []domain.Candle
	if err := s.db.SelectContext(ctx, &out, query, pair, tf, from, to); err != nil {
		return nil, fmt.Errorf("query candles range: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}

func (s *Store) CandleTimes(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]time.Time, error) {
	const query = `
	SELECT open_time FROM candles
	WHERE pair = $1 AND timeframe = $2 AND open_time >= $3 AND open_time < $4
	ORDER BY open_time ASC`
	var out []time.Time
	if err := s.db.SelectContext(ctx, &out, query, pair, tf, from, to); err != nil {
		return nil, fmt.Errorf("query candle times: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}

func (s *Store) LatestCandleTime(ctx context.Context, pair string, tf domain.Timeframe) (time.Time, error) {
	const query = `SELECT open_time FROM candles WHERE pair = $1 AND timeframe = $2 ORDER BY open_time DESC LIMIT 1`
	var t time.Time
	err := s.db.GetContext(ctx, &t, query, pair, tf)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("query latest candle time: %w: %w", ports.ErrQueryFailed, err)
	}
	return t, nil
}

func (s *Store) CandlesBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Candle, error) {
	const query = `
	SELECT * FROM candles WHERE open_time < $1 AND is_final
	ORDER BY open_time ASC LIMIT $2`
	var out []domain.Candle
	if err := s.db.SelectContext(ctx, &out, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("query candles before: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}

func (s *Store) DeleteCandlesRange(ctx context.Context, from, to time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM candles WHERE open_time >= $1 AND open_time <= $2 AND is_final`, from, to)
	if err != nil {
		return 0, fmt.Errorf("delete candles range: %w: %w", ports.ErrDeleteFailed, err)
	}
	return res.RowsAffected()
}

// --- EventStore: swings ---

func (s *Store) UpsertSwings(ctx context.Context, swings []domain.SwingPoint) error {
	if len(swings) == 0 {
		return nil
	}
	const query = `
	INSERT INTO swing_points (pair, timeframe, time, kind, price, label, lookback, true_range)
	VALUES (:pair, :timeframe, :time, :kind, :price, :label, :lookback, :true_range)
	ON CONFLICT (pair, timeframe, time, kind) DO UPDATE SET
		price = excluded.price, label = excluded.label,
		lookback = excluded.lookback, true_range = excluded.true_range`
	rows := make([]interface{}, len(swings))
	for i := range swings {
		rows[i] = swings[i]
	}
	return s.namedUpsert(ctx, query, rows)
}

func (s *Store) SwingsRange(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.SwingPoint, error) {
	const query = `
	SELECT * FROM swing_points
	WHERE pair = $1 AND timeframe = $2 AND time >= $3 AND time < $4
	ORDER BY time ASC`
	var out []domain.SwingPoint
	if err := s.db.SelectContext(ctx, &out, query, pair, tf, from, to); err != nil {
		return nil, fmt.Errorf("query swings range: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}

func (s *Store) SwingsBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.SwingPoint, error) {
	const query = `SELECT * FROM swing_points WHERE time < $1 ORDER BY time ASC LIMIT $2`
	var out []domain.SwingPoint
	if err := s.db.SelectContext(ctx, &out, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("query swings before: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}

func (s *Store) DeleteSwingsRange(ctx context.Context, from, to time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM swing_points WHERE time >= $1 AND time <= $2`, from, to)
	if err != nil {
		return 0, fmt.Errorf("delete swings range: %w: %w", ports.ErrDeleteFailed, err)
	}
	return res.RowsAffected()
}

// --- EventStore: BOS ---

func (s *Store) UpsertBOSEvents(ctx context.Context, events []domain.BOSEvent) error {
	if len(events) == 0 {
		return nil
	}
	const query = `
	INSERT INTO bos_events (pair, timeframe, time, direction, status, broken_level,
		broken_swing_time, confirming_close, magnitude_pips, is_displacement,
		is_counter_trend, reclaimed_at, reclaimed_by_close, time_til_reclaim)
	VALUES (:pair, :timeframe, :time, :direction, :status, :broken_level,
		:broken_swing_time, :confirming_close, :magnitude_pips, :is_displacement,
		:is_counter_trend, :reclaimed_at, :reclaimed_by_close, :time_til_reclaim)
	ON CONFLICT (pair, timeframe, time, direction) DO UPDATE SET
		status = excluded.status, reclaimed_at = excluded.reclaimed_at,
		reclaimed_by_close = excluded.reclaimed_by_close,
		time_til_reclaim = excluded.time_til_reclaim`
	rows := make([]interface{}, len(events))
	for i := range events {
		rows[i] = events[i]
	}
	return s.namedUpsert(ctx, query, rows)
}

func (s *Store) BOSRange(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.BOSEvent, error) {
	const query = `
	SELECT * FROM bos_events
	WHERE pair = $1 AND timeframe = $2 AND time >= $3 AND time < $4
	ORDER BY time ASC`
	var out []domain.BOSEvent
	if err := s.db.SelectContext(ctx, &out, query, pair, tf, from, to); err != nil {
		return nil, fmt.Errorf("query bos range: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}

func (s *Store) BOSBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.BOSEvent, error) {
	const query = `SELECT * FROM bos_events WHERE time < $1 ORDER BY time ASC LIMIT $2`
	var out []domain.BOSEvent
	if err := s.db.SelectContext(ctx, &out, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("query bos before: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}

func (s *Store) DeleteBOSRange(ctx context.Context, from, to time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bos_events WHERE time >= $1 AND time <= $2`, from, to)
	if err != nil {
		return 0, fmt.Errorf("delete bos range: %w: %w", ports.ErrDeleteFailed, err)
	}
	return res.RowsAffected()
}

// --- EventStore: sweeps ---

func (s *Store) UpsertSweeps(ctx context.Context, sweeps []domain.SweepEvent) error {
	if len(sweeps) == 0 {
		return nil
	}
	const query = `
	INSERT INTO sweep_events (pair, timeframe, time, direction, swept_level,
		wick_extreme, swept_level_type, followed_by_bos)
	VALUES (:pair, :timeframe, :time, :direction, :swept_level,
		:wick_extreme, :swept_level_type, :followed_by_bos)
	ON CONFLICT (pair, timeframe, time, direction, swept_level_type) DO UPDATE SET
		swept_level = excluded.swept_level, wick_extreme = excluded.wick_extreme,
		followed_by_bos = excluded.followed_by_bos`
	rows := make([]interface{}, len(sweeps))
	for i := range sweeps {
		rows[i] = sweeps[i]
	}
	return s.namedUpsert(ctx, query, rows)
}

func (s *Store) SweepsRange(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.SweepEvent, error) {
	const query = `
	SELECT * FROM sweep_events
	WHERE pair = $1 AND timeframe = $2 AND time >= $3 AND time < $4
	ORDER BY time ASC`
	var out []domain.SweepEvent
	if err := s.db.SelectContext(ctx, &out, query, pair, tf, from, to); err != nil {
		return nil, fmt.Errorf("query sweeps range: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}

func (s *Store) SweepsBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.SweepEvent, error) {
	const query = `SELECT * FROM sweep_events WHERE time < $1 ORDER BY time ASC LIMIT $2`
	var out []domain.SweepEvent
	if err := s.db.SelectContext(ctx, &out, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("query sweeps before: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}

func (s *Store) DeleteSweepsRange(ctx context.Context, from, to time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sweep_events WHERE time >= $1 AND time <= $2`, from, to)
	if err != nil {
		return 0, fmt.Errorf("delete sweeps range: %w: %w", ports.ErrDeleteFailed, err)
	}
	return res.RowsAffected()
}

// --- EventStore: FVGs ---

func (s *Store) UpsertFVGs(ctx context.Context, fvgs []domain.FVGEvent) error {
	if len(fvgs) == 0 {
		return nil
	}
	const query = `
	INSERT INTO fvg_events (pair, timeframe, time, direction, status, top, bottom,
		midline, gap_size_pips, body_ratio, gap_to_body_ratio, rel_volume, tier,
		fill_percent, max_fill_percent, body_filled, wick_touched, first_touch_at,
		retest_count, midline_respected, filled_at, inverted_at)
	VALUES (:pair, :timeframe, :time, :direction, :status, :top, :bottom,
		:midline, :gap_size_pips, :body_ratio, :gap_to_body_ratio, :rel_volume, :tier,
		:fill_percent, :max_fill_percent, :body_filled, :wick_touched, :first_touch_at,
		:retest_count, :midline_respected, :filled_at, :inverted_at)
	ON CONFLICT (pair, timeframe, time, direction) DO UPDATE SET
		status = excluded.status, fill_percent = excluded.fill_percent,
		max_fill_percent = excluded.max_fill_percent, body_filled = excluded.body_filled,
		wick_touched = excluded.wick_touched, first_touch_at = excluded.first_touch_at,
		retest_count = excluded.retest_count, midline_respected = excluded.midline_respected,
		filled_at = excluded.filled_at, inverted_at = excluded.inverted_at`
	rows := make([]interface{}, len(fvgs))
	for i := range fvgs {
		rows[i] = fvgs[i]
	}
	return s.namedUpsert(ctx, query, rows)
}

func (s *Store) FVGsRange(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.FVGEvent, error) {
	const query = `
	SELECT * FROM fvg_events
	WHERE pair = $1 AND timeframe = $2 AND time >= $3 AND time < $4
	ORDER BY time ASC`
	var out []domain.FVGEvent
	if err := s.db.SelectContext(ctx, &out, query, pair, tf, from, to); err != nil {
		return nil, fmt.Errorf("query fvgs range: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}

func (s *Store) ActiveFVGs(ctx context.Context, pair string, tf domain.Timeframe) ([]domain.FVGEvent, error) {
	const query = `
	SELECT * FROM fvg_events
	WHERE pair = $1 AND timeframe = $2 AND status IN ('fresh', 'partial')
	ORDER BY time ASC`
	var out []domain.FVGEvent
	if err := s.db.SelectContext(ctx, &out, query, pair, tf); err != nil {
		return nil, fmt.Errorf("query active fvgs: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}

func (s *Store) TerminalFVGsBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.FVGEvent, error) {
	const query = `
	SELECT * FROM fvg_events
	WHERE time < $1 AND status IN ('filled', 'inverted')
	ORDER BY time ASC LIMIT $2`
	var out []domain.FVGEvent
	if err := s.db.SelectContext(ctx, &out, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("query terminal fvgs before: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}

func (s *Store) DeleteTerminalFVGsRange(ctx context.Context, from, to time.Time) (int64, error) {
	const query = `DELETE FROM fvg_events WHERE time >= $1 AND time <= $2 AND status IN ('filled', 'inverted')`
	res, err := s.db.ExecContext(ctx, query, from, to)
	if err != nil {
		return 0, fmt.Errorf("delete terminal fvgs range: %w: %w", ports.ErrDeleteFailed, err)
	}
	return res.RowsAffected()
}

// --- ProgressStore ---

// RecordProgress appends one progress row; the log is never updated in place.
func (s *Store) RecordProgress(ctx context.Context, p domain.BackfillProgress) error {
	const query = `
	INSERT INTO backfill_progress (pair, timeframe, year_month, rows_written, status, recorded_at)
	VALUES (:pair, :timeframe, :year_month, :rows_written, :status, :recorded_at)`
	if _, err := s.db.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("record backfill progress: %w: %w", ports.ErrUpsertFailed, err)
	}
	return nil
}

// CompletedMonths returns months whose latest row for the key is complete.
func (s *Store) CompletedMonths(ctx context.Context, pair string, tf domain.Timeframe) (map[string]bool, error) {
	const query = `
	SELECT DISTINCT ON (year_month) year_month, status
	FROM backfill_progress
	WHERE pair = $1 AND timeframe = $2
	ORDER BY year_month, recorded_at DESC, id DESC`
	var rows []struct {
		YearMonth string                `db:"year_month"`
		Status    domain.BackfillStatus `db:"status"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, pair, tf); err != nil {
		return nil, fmt.Errorf("query completed months: %w: %w", ports.ErrQueryFailed, err)
	}
	out := make(map[string]bool, len(rows))
	for _, r := range rows {
		if r.Status == domain.BackfillComplete {
			out[r.YearMonth] = true
		}
	}
	return out, nil
}

// ListProgress returns the latest row per (pair, timeframe, month).
func (s *Store) ListProgress(ctx context.Context) ([]domain.BackfillProgress, error) {
	const query = `
	SELECT DISTINCT ON (pair, timeframe, year_month)
		pair, timeframe, year_month, rows_written, status, recorded_at
	FROM backfill_progress
	ORDER BY pair, timeframe, year_month, recorded_at DESC, id DESC`
	var out []domain.BackfillProgress
	if err := s.db.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("query backfill progress: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}
