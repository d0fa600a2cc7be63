package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"marketStructureBot/internal/domain"
	"marketStructureBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store implements ports.Store as the hot tier. All timestamps are stored
// as INTEGER unix milliseconds so range scans compare deterministically.
type Store struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite store.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// New creates a new SQLite store instance and initializes the schema.
func New(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite store")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/market_structure.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, logger: cfg.Logger}
	if err := s.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite store ready", map[string]interface{}{"path": dbPath})
	return s, nil
}

func (s *Store) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS candles (
		pair       TEXT NOT NULL,
		timeframe  TEXT NOT NULL,
		open_time  INTEGER NOT NULL,
		open       REAL NOT NULL,
		high       REAL NOT NULL,
		low        REAL NOT NULL,
		close      REAL NOT NULL,
		volume     REAL NOT NULL,
		is_final   INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (pair, timeframe, open_time)
	);

	CREATE TABLE IF NOT EXISTS swing_points (
		pair       TEXT NOT NULL,
		timeframe  TEXT NOT NULL,
		time       INTEGER NOT NULL,
		kind       TEXT NOT NULL,
		price      REAL NOT NULL,
		label      TEXT NOT NULL,
		lookback   INTEGER NOT NULL,
		true_range REAL NOT NULL,
		PRIMARY KEY (pair, timeframe, time, kind)
	);

	CREATE TABLE IF NOT EXISTS bos_events (
		pair               TEXT NOT NULL,
		timeframe          TEXT NOT NULL,
		time               INTEGER NOT NULL,
		direction          TEXT NOT NULL,
		status             TEXT NOT NULL,
		broken_level       REAL NOT NULL,
		broken_swing_time  INTEGER NOT NULL,
		confirming_close   REAL NOT NULL,
		magnitude_pips     REAL NOT NULL,
		is_displacement    INTEGER NOT NULL,
		is_counter_trend   INTEGER NOT NULL,
		reclaimed_at       INTEGER,
		reclaimed_by_close REAL NOT NULL DEFAULT 0,
		time_til_reclaim_ms INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (pair, timeframe, time, direction)
	);

	CREATE TABLE IF NOT EXISTS sweep_events (
		pair             TEXT NOT NULL,
		timeframe        TEXT NOT NULL,
		time             INTEGER NOT NULL,
		direction        TEXT NOT NULL,
		swept_level      REAL NOT NULL,
		wick_extreme     REAL NOT NULL,
		swept_level_type TEXT NOT NULL,
		followed_by_bos  INTEGER NOT NULL,
		PRIMARY KEY (pair, timeframe, time, direction, swept_level_type)
	);

	CREATE TABLE IF NOT EXISTS fvg_events (
		pair              TEXT NOT NULL,
		timeframe         TEXT NOT NULL,
		time              INTEGER NOT NULL,
		direction         TEXT NOT NULL,
		status            TEXT NOT NULL,
		top               REAL NOT NULL,
		bottom            REAL NOT NULL,
		midline           REAL NOT NULL,
		gap_size_pips     REAL NOT NULL,
		body_ratio        REAL NOT NULL,
		gap_to_body_ratio REAL NOT NULL,
		rel_volume        REAL NOT NULL,
		tier              INTEGER NOT NULL,
		fill_percent      REAL NOT NULL,
		max_fill_percent  REAL NOT NULL,
		body_filled       INTEGER NOT NULL,
		wick_touched      INTEGER NOT NULL,
		first_touch_at    INTEGER,
		retest_count      INTEGER NOT NULL,
		midline_respected INTEGER NOT NULL,
		filled_at         INTEGER,
		inverted_at       INTEGER,
		PRIMARY KEY (pair, timeframe, time, direction)
	);

	CREATE INDEX IF NOT EXISTS idx_candles_open_time ON candles (open_time);
	CREATE INDEX IF NOT EXISTS idx_swing_points_time ON swing_points (time);
	CREATE INDEX IF NOT EXISTS idx_bos_events_time ON bos_events (time);
	CREATE INDEX IF NOT EXISTS idx_sweep_events_time ON sweep_events (time);
	CREATE INDEX IF NOT EXISTS idx_fvg_events_time ON fvg_events (time);
	CREATE INDEX IF NOT EXISTS idx_fvg_events_status ON fvg_events (pair, timeframe, status);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		s.logger.Info(context.Background(), "Closing SQLite database connection")
		return s.db.Close()
	}
	return nil
}

func ms(t time.Time) int64 { return t.UnixMilli() }

func msPtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

// --- CandleStore ---

// UpsertCandles inserts or overwrites candles inside one transaction.
func (s *Store) UpsertCandles(ctx context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	const query = `
	INSERT INTO candles (pair, timeframe, open_time, open, high, low, close, volume, is_final)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (pair, timeframe, open_time) DO UPDATE SET
		open = excluded.open, high = excluded.high, low = excluded.low,
		close = excluded.close, volume = excluded.volume, is_final = excluded.is_final`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert candles: %w: %w", ports.ErrUpsertFailed, err)
	}
	defer tx.Rollback()

	for _, c := range candles {
		if _, err := tx.ExecContext(ctx, query,
			c.Pair, c.Timeframe, ms(c.OpenTime), c.Open, c.High, c.Low, c.Close, c.Volume, c.IsFinal); err != nil {
			return fmt.Errorf("upsert candle %s/%s@%d: %w: %w", c.Pair, c.Timeframe, ms(c.OpenTime), ports.ErrUpsertFailed, err)
		}
	}
	return tx.Commit()
}

// CandlesRange returns candles with open time in [from, to), ascending.
func (s *Store) CandlesRange(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.Candle, error) {
	const query = `
	SELECT pair, timeframe, open_time, open, high, low, close, volume, is_final
	FROM candles WHERE pair = ? AND timeframe = ? AND open_time >= ? AND open_time < ?
	ORDER BY open_time ASC`
	rows, err := s.db.QueryContext(ctx, query, pair, tf, ms(from), ms(to))
	if err != nil {
		return nil, fmt.Errorf("query candles range: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()
	return scanCandles(rows)
}

// CandleTimes returns only open times in [from, to), ascending.
func (s *Store) CandleTimes(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]time.Time, error) {
	const query = `
	SELECT open_time FROM candles
	WHERE pair = ? AND timeframe = ? AND open_time >= ? AND open_time < ?
	ORDER BY open_time ASC`
	rows, err := s.db.QueryContext(ctx, query, pair, tf, ms(from), ms(to))
	if err != nil {
		return nil, fmt.Errorf("query candle times: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t int64
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan candle time: %w", err)
		}
		times = append(times, time.UnixMilli(t).UTC())
	}
	return times, rows.Err()
}

// LatestCandleTime returns the newest open time for the key, or zero time.
func (s *Store) LatestCandleTime(ctx context.Context, pair string, tf domain.Timeframe) (time.Time, error) {
	const query = `SELECT MAX(open_time) FROM candles WHERE pair = ? AND timeframe = ?`
	var t sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query, pair, tf).Scan(&t); err != nil {
		return time.Time{}, fmt.Errorf("query latest candle time: %w: %w", ports.ErrQueryFailed, err)
	}
	if !t.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(t.Int64).UTC(), nil
}

// CandlesBefore returns up to limit final candles older than cutoff, ascending.
func (s *Store) CandlesBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Candle, error) {
	const query = `
	SELECT pair, timeframe, open_time, open, high, low, close, volume, is_final
	FROM candles WHERE open_time < ? AND is_final = 1
	ORDER BY open_time ASC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, ms(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("query candles before: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()
	return scanCandles(rows)
}

// DeleteCandlesRange removes final candles with open time in [from, to].
func (s *Store) DeleteCandlesRange(ctx context.Context, from, to time.Time) (int64, error) {
	const query = `DELETE FROM candles WHERE open_time >= ? AND open_time <= ? AND is_final = 1`
	res, err := s.db.ExecContext(ctx, query, ms(from), ms(to))
	if err != nil {
		return 0, fmt.Errorf("delete candles range: %w: %w", ports.ErrDeleteFailed, err)
	}
	return res.RowsAffected()
}

func scanCandles(rows *sql.Rows) ([]domain.Candle, error) {
	var out []domain.Candle
	for rows.Next() {
		var c domain.Candle
		var openTime int64
		if err := rows.Scan(&c.Pair, &c.Timeframe, &openTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.IsFinal); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.OpenTime = time.UnixMilli(openTime).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- EventStore: swings ---

func (s *Store) UpsertSwings(ctx context.Context, swings []domain.SwingPoint) error {
	if len(swings) == 0 {
		return nil
	}
	const query = `
	INSERT INTO swing_points (pair, timeframe, time, kind, price, label, lookback, true_range)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (pair, timeframe, time, kind) DO UPDATE SET
		price = excluded.price, label = excluded.label,
		lookback = excluded.lookback, true_range = excluded.true_range`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert swings: %w: %w", ports.ErrUpsertFailed, err)
	}
	defer tx.Rollback()
	for _, sp := range swings {
		if _, err := tx.ExecContext(ctx, query,
			sp.Pair, sp.Timeframe, ms(sp.Time), sp.Kind, sp.Price, sp.Label, sp.Lookback, sp.TrueRange); err != nil {
			return fmt.Errorf("upsert swing %s/%s@%d: %w: %w", sp.Pair, sp.Timeframe, ms(sp.Time), ports.ErrUpsertFailed, err)
		}
	}
	return tx.Commit()
}

func (s *Store) SwingsRange(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.SwingPoint, error) {
	const query = `
	SELECT pair, timeframe, time, kind, price, label, lookback, true_range
	FROM swing_points WHERE pair = ? AND timeframe = ? AND time >= ? AND time < ?
	ORDER BY time ASC`
	rows, err := s.db.QueryContext(ctx, query, pair, tf, ms(from), ms(to))
	if err != nil {
		return nil, fmt.Errorf("query swings range: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()
	return scanSwings(rows)
}

func (s *Store) SwingsBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.SwingPoint, error) {
	const query = `
	SELECT pair, timeframe, time, kind, price, label, lookback, true_range
	FROM swing_points WHERE time < ? ORDER BY time ASC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, ms(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("query swings before: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()
	return scanSwings(rows)
}

func (s *Store) DeleteSwingsRange(ctx context.Context, from, to time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM swing_points WHERE time >= ? AND time <= ?`, ms(from), ms(to))
	if err != nil {
		return 0, fmt.Errorf("delete swings range: %w: %w", ports.ErrDeleteFailed, err)
	}
	return res.RowsAffected()
}

func scanSwings(rows *sql.Rows) ([]domain.SwingPoint, error) {
	var out []domain.SwingPoint
	for rows.Next() {
		var sp domain.SwingPoint
		var t int64
		if err := rows.Scan(&sp.Pair, &sp.Timeframe, &t, &sp.Kind, &sp.Price, &sp.Label, &sp.Lookback, &sp.TrueRange); err != nil {
			return nil, fmt.Errorf("scan swing: %w", err)
		}
		sp.Time = time.UnixMilli(t).UTC()
		out = append(out, sp)
	}
	return out, rows.Err()
}

// --- EventStore: BOS ---

func (s *Store) UpsertBOSEvents(ctx context.Context, events []domain.BOSEvent) error {
	if len(events) == 0 {
		return nil
	}
	const query = `
	INSERT INTO bos_events (pair, timeframe, time, direction, status, broken_level,
		broken_swing_time, confirming_close, magnitude_pips, is_displacement,
		is_counter_trend, reclaimed_at, reclaimed_by_close, time_til_reclaim_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (pair, timeframe, time, direction) DO UPDATE SET
		status = excluded.status, broken_level = excluded.broken_level,
		broken_swing_time = excluded.broken_swing_time,
		confirming_close = excluded.confirming_close,
		magnitude_pips = excluded.magnitude_pips,
		is_displacement = excluded.is_displacement,
		is_counter_trend = excluded.is_counter_trend,
		reclaimed_at = excluded.reclaimed_at,
		reclaimed_by_close = excluded.reclaimed_by_close,
		time_til_reclaim_ms = excluded.time_til_reclaim_ms`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert bos: %w: %w", ports.ErrUpsertFailed, err)
	}
	defer tx.Rollback()
	for _, ev := range events {
		if _, err := tx.ExecContext(ctx, query,
			ev.Pair, ev.Timeframe, ms(ev.Time), ev.Direction, ev.Status, ev.BrokenLevel,
			ms(ev.BrokenSwingTime), ev.ConfirmingClose, ev.MagnitudePips, ev.IsDisplacement,
			ev.IsCounterTrend, msPtr(ev.ReclaimedAt), ev.ReclaimedByClose, ev.TimeTilReclaim.Milliseconds()); err != nil {
			return fmt.Errorf("upsert bos %s/%s@%d: %w: %w", ev.Pair, ev.Timeframe, ms(ev.Time), ports.ErrUpsertFailed, err)
		}
	}
	return tx.Commit()
}

func (s *Store) BOSRange(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.BOSEvent, error) {
	const query = bosSelect + ` WHERE pair = ? AND timeframe = ? AND time >= ? AND time < ? ORDER BY time ASC`
	rows, err := s.db.QueryContext(ctx, query, pair, tf, ms(from), ms(to))
	if err != nil {
		return nil, fmt.Errorf("query bos range: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()
	return scanBOS(rows)
}

func (s *Store) BOSBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.BOSEvent, error) {
	const query = bosSelect + ` WHERE time < ? ORDER BY time ASC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, ms(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("query bos before: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()
	return scanBOS(rows)
}

func (s *Store) DeleteBOSRange(ctx context.Context, from, to time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bos_events WHERE time >= ? AND time <= ?`, ms(from), ms(to))
	if err != nil {
		return 0, fmt.Errorf("delete bos range: %w: %w", ports.ErrDeleteFailed, err)
	}
	return res.RowsAffected()
}

const bosSelect = `
	SELECT pair, timeframe, time, direction, status, broken_level, broken_swing_time,
		confirming_close, magnitude_pips, is_displacement, is_counter_trend,
		reclaimed_at, reclaimed_by_close, time_til_reclaim_ms
	FROM bos_events`

func scanBOS(rows *sql.Rows) ([]domain.BOSEvent, error) {
	var out []domain.BOSEvent
	for rows.Next() {
		var ev domain.BOSEvent
		var t, brokenAt, reclaimMs int64
		var reclaimedAt sql.NullInt64
		if err := rows.Scan(&ev.Pair, &ev.Timeframe, &t, &ev.Direction, &ev.Status, &ev.BrokenLevel,
			&brokenAt, &ev.ConfirmingClose, &ev.MagnitudePips, &ev.IsDisplacement, &ev.IsCounterTrend,
			&reclaimedAt, &ev.ReclaimedByClose, &reclaimMs); err != nil {
			return nil, fmt.Errorf("scan bos: %w", err)
		}
		ev.Time = time.UnixMilli(t).UTC()
		ev.BrokenSwingTime = time.UnixMilli(brokenAt).UTC()
		ev.ReclaimedAt = timePtr(reclaimedAt)
		ev.TimeTilReclaim = time.Duration(reclaimMs) * time.Millisecond
		out = append(out, ev)
	}
	return out, rows.Err()
}

// --- EventStore: sweeps ---

func (s *Store) UpsertSweeps(ctx context.Context, sweeps []domain.SweepEvent) error {
	if len(sweeps) == 0 {
		return nil
	}
	const query = `
	INSERT INTO sweep_events (pair, timeframe, time, direction, swept_level,
		wick_extreme, swept_level_type, followed_by_bos)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (pair, timeframe, time, direction, swept_level_type) DO UPDATE SET
		swept_level = excluded.swept_level, wick_extreme = excluded.wick_extreme,
		followed_by_bos = excluded.followed_by_bos`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert sweeps: %w: %w", ports.ErrUpsertFailed, err)
	}
	defer tx.Rollback()
	for _, ev := range sweeps {
		if _, err := tx.ExecContext(ctx, query,
			ev.Pair, ev.Timeframe, ms(ev.Time), ev.Direction, ev.SweptLevel,
			ev.WickExtreme, ev.SweptLevelType, ev.FollowedByBOS); err != nil {
			return fmt.Errorf("upsert sweep %s/%s@%d: %w: %w", ev.Pair, ev.Timeframe, ms(ev.Time), ports.ErrUpsertFailed, err)
		}
	}
	return tx.Commit()
}

func (s *Store) SweepsRange(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.SweepEvent, error) {
	const query = sweepSelect + ` WHERE pair = ? AND timeframe = ? AND time >= ? AND time < ? ORDER BY time ASC`
	rows, err := s.db.QueryContext(ctx, query, pair, tf, ms(from), ms(to))
	if err != nil {
		return nil, fmt.Errorf("query sweeps range: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()
	return scanSweeps(rows)
}

func (s *Store) SweepsBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.SweepEvent, error) {
	const query = sweepSelect + ` WHERE time < ? ORDER BY time ASC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, ms(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("query sweeps before: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()
	return scanSweeps(rows)
}

func (s *Store) DeleteSweepsRange(ctx context.Context, from, to time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sweep_events WHERE time >= ? AND time <= ?`, ms(from), ms(to))
	if err != nil {
		return 0, fmt.Errorf("delete sweeps range: %w: %w", ports.ErrDeleteFailed, err)
	}
	return res.RowsAffected()
}

const sweepSelect = `
	SELECT pair, timeframe, time, direction, swept_level, wick_extreme,
		swept_level_type, followed_by_bos
	FROM sweep_events`

func scanSweeps(rows *sql.Rows) ([]domain.SweepEvent, error) {
	var out []domain.SweepEvent
	for rows.Next() {
		var ev domain.SweepEvent
		var t int64
		if err := rows.Scan(&ev.Pair, &ev.Timeframe, &t, &ev.Direction, &ev.SweptLevel,
			&ev.WickExtreme, &ev.SweptLevelType, &ev.FollowedByBOS); err != nil {
			return nil, fmt.Errorf("scan sweep: %w", err)
		}
		ev.Time = time.UnixMilli(t).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
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
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (pair, timeframe, time, direction) DO UPDATE SET
		status = excluded.status, top = excluded.top, bottom = excluded.bottom,
		midline = excluded.midline, gap_size_pips = excluded.gap_size_pips,
		body_ratio = excluded.body_ratio, gap_to_body_ratio = excluded.gap_to_body_ratio,
		rel_volume = excluded.rel_volume, tier = excluded.tier,
		fill_percent = excluded.fill_percent, max_fill_percent = excluded.max_fill_percent,
		body_filled = excluded.body_filled, wick_touched = excluded.wick_touched,
		first_touch_at = excluded.first_touch_at, retest_count = excluded.retest_count,
		midline_respected = excluded.midline_respected,
		filled_at = excluded.filled_at, inverted_at = excluded.inverted_at`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert fvgs: %w: %w", ports.ErrUpsertFailed, err)
	}
	defer tx.Rollback()
	for _, ev := range fvgs {
		if _, err := tx.ExecContext(ctx, query,
			ev.Pair, ev.Timeframe, ms(ev.Time), ev.Direction, ev.Status, ev.Top, ev.Bottom,
			ev.Midline, ev.GapSizePips, ev.BodyRatio, ev.GapToBodyRatio, ev.RelVolume, ev.Tier,
			ev.FillPercent, ev.MaxFillPercent, ev.BodyFilled, ev.WickTouched, msPtr(ev.FirstTouchAt),
			ev.RetestCount, ev.MidlineRespected, msPtr(ev.FilledAt), msPtr(ev.InvertedAt)); err != nil {
			return fmt.Errorf("upsert fvg %s/%s@%d: %w: %w", ev.Pair, ev.Timeframe, ms(ev.Time), ports.ErrUpsertFailed, err)
		}
	}
	return tx.Commit()
}

func (s *Store) FVGsRange(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.FVGEvent, error) {
	const query = fvgSelect + ` WHERE pair = ? AND timeframe = ? AND time >= ? AND time < ? ORDER BY time ASC`
	rows, err := s.db.QueryContext(ctx, query, pair, tf, ms(from), ms(to))
	if err != nil {
		return nil, fmt.Errorf("query fvgs range: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()
	return scanFVGs(rows)
}

// ActiveFVGs returns fresh and partial gaps for the key, ascending by time.
func (s *Store) ActiveFVGs(ctx context.Context, pair string, tf domain.Timeframe) ([]domain.FVGEvent, error) {
	const query = fvgSelect + ` WHERE pair = ? AND timeframe = ? AND status IN ('fresh', 'partial') ORDER BY time ASC`
	rows, err := s.db.QueryContext(ctx, query, pair, tf)
	if err != nil {
		return nil, fmt.Errorf("query active fvgs: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()
	return scanFVGs(rows)
}

// TerminalFVGsBefore returns filled/inverted gaps older than cutoff. Open
// gaps are kept in the hot tier whatever their age.
func (s *Store) TerminalFVGsBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.FVGEvent, error) {
	const query = fvgSelect + ` WHERE time < ? AND status IN ('filled', 'inverted') ORDER BY time ASC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, ms(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("query terminal fvgs before: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()
	return scanFVGs(rows)
}

func (s *Store) DeleteTerminalFVGsRange(ctx context.Context, from, to time.Time) (int64, error) {
	const query = `DELETE FROM fvg_events WHERE time >= ? AND time <= ? AND status IN ('filled', 'inverted')`
	res, err := s.db.ExecContext(ctx, query, ms(from), ms(to))
	if err != nil {
		return 0, fmt.Errorf("delete terminal fvgs range: %w: %w", ports.ErrDeleteFailed, err)
	}
	return res.RowsAffected()
}

const fvgSelect = `
	SELECT pair, timeframe, time, direction, status, top, bottom, midline,
		gap_size_pips, body_ratio, gap_to_body_ratio, rel_volume, tier,
		fill_percent, max_fill_percent, body_filled, wick_touched, first_touch_at,
		retest_count, midline_respected, filled_at, inverted_at
	FROM fvg_events`

func scanFVGs(rows *sql.Rows) ([]domain.FVGEvent, error) {
	var out []domain.FVGEvent
	for rows.Next() {
		var ev domain.FVGEvent
		var t int64
		var firstTouch, filledAt, invertedAt sql.NullInt64
		if err := rows.Scan(&ev.Pair, &ev.Timeframe, &t, &ev.Direction, &ev.Status, &ev.Top, &ev.Bottom,
			&ev.Midline, &ev.GapSizePips, &ev.BodyRatio, &ev.GapToBodyRatio, &ev.RelVolume, &ev.Tier,
			&ev.FillPercent, &ev.MaxFillPercent, &ev.BodyFilled, &ev.WickTouched, &firstTouch,
			&ev.RetestCount, &ev.MidlineRespected, &filledAt, &invertedAt); err != nil {
			return nil, fmt.Errorf("scan fvg: %w", err)
		}
		ev.Time = time.UnixMilli(t).UTC()
		ev.FirstTouchAt = timePtr(firstTouch)
		ev.FilledAt = timePtr(filledAt)
		ev.InvertedAt = timePtr(invertedAt)
		out = append(out, ev)
	}
	return out, rows.Err()
}
