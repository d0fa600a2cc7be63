package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketStructureBot/internal/domain"
	"marketStructureBot/internal/ports"
	"marketStructureBot/internal/structure"
)

func testStructureConfig(string, domain.Timeframe) structure.Config {
	return structure.Config{
		PipSize:               0.01,
		SwingLookback:         2,
		EqualTolPips:          1,
		DisplacementBodyRatio: 0.7,
		ReclaimTimeoutCandles: 12,
		SweepLookaheadCandles: 6,
		FillThreshold:         85,
		VolumeWindow:          20,
	}
}

func newTestBackfiller(source *fakeSource, tiers *Tiered, progress *memProgress, cache *memCache, recentMonths int) *Backfiller {
	now := time.Now().UTC()
	var sc ports.StructureCache
	if cache != nil {
		sc = cache
	}
	return NewBackfiller(BackfillConfig{
		Pairs:           []string{"EURUSD"},
		Timeframes:      []domain.Timeframe{domain.TF1d},
		Start:           now.AddDate(0, -recentMonths, 0),
		RecentMonths:    recentMonths,
		ContextCandles:  16,
		StructureConfig: testStructureConfig,
	}, source, tiers, progress, sc, nopLogger{})
}

func TestBackfillerFullRunRecordsProgress(t *testing.T) {
	ctx := context.Background()
	tiers, _, _ := newTestTiers()
	tiers.Retention = 10 * 365 * 24 * time.Hour
	progress := &memProgress{}
	source := &fakeSource{serve: func(pair string, tf domain.Timeframe, from, to time.Time) ([]domain.Candle, error) {
		return genCandles(pair, tf, from, to), nil
	}}

	b := newTestBackfiller(source, tiers, progress, nil, 2)
	if err := b.Run(ctx, true); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	rows := progress.all()
	if len(rows) != 2 {
		t.Fatalf("expected 2 progress rows for 2 complete months, got %d", len(rows))
	}
	for _, p := range rows {
		if p.Status != domain.BackfillComplete {
			t.Errorf("month %s not complete: %s", p.YearMonth, p.Status)
		}
		if p.RowsWritten == 0 {
			t.Errorf("month %s wrote no rows", p.YearMonth)
		}
	}

	// Candles landed in the tiers, and only inside the backfill span.
	now := time.Now().UTC()
	firstMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -2, 0)
	stored, _ := tiers.CandlesRange(ctx, "EURUSD", domain.TF1d, firstMonth.AddDate(0, 0, -60), now)
	if len(stored) == 0 {
		t.Fatal("no candles stored")
	}
	if stored[0].OpenTime.Before(firstMonth) {
		t.Errorf("context candle leaked into storage: %v", stored[0].OpenTime)
	}
}

func TestBackfillerSkipsCompletedMonths(t *testing.T) {
	ctx := context.Background()
	tiers, _, _ := newTestTiers()
	tiers.Retention = 10 * 365 * 24 * time.Hour
	progress := &memProgress{}
	source := &fakeSource{serve: func(pair string, tf domain.Timeframe, from, to time.Time) ([]domain.Candle, error) {
		return genCandles(pair, tf, from, to), nil
	}}

	b := newTestBackfiller(source, tiers, progress, nil, 2)
	if err := b.Run(ctx, true); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	fetched := source.callCount()

	if err := b.Run(ctx, true); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if source.callCount() != fetched {
		t.Errorf("completed months were refetched: %d -> %d calls", fetched, source.callCount())
	}
	if got := len(progress.all()); got != 2 {
		t.Errorf("expected no new progress rows, got %d total", got)
	}
}

func TestBackfillerIncrementalCoversFormingMonth(t *testing.T) {
	ctx := context.Background()
	tiers, _, _ := newTestTiers()
	tiers.Retention = 10 * 365 * 24 * time.Hour
	progress := &memProgress{}
	source := &fakeSource{serve: func(pair string, tf domain.Timeframe, from, to time.Time) ([]domain.Candle, error) {
		return genCandles(pair, tf, from, to), nil
	}}

	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	b := newTestBackfiller(source, tiers, progress, nil, 2)
	if err := b.run(ctx, false, now); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// Two complete months plus the forming month.
	if got := source.callCount(); got != 3 {
		t.Fatalf("expected 3 fetches, got %d", got)
	}
	// The forming month leaves no progress row.
	for _, p := range progress.all() {
		if p.YearMonth == "2024-03" {
			t.Errorf("forming month must not be recorded: %+v", p)
		}
	}

	// The forming month's candles are stored.
	monthStart := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	stored, _ := tiers.CandlesRange(ctx, "EURUSD", domain.TF1d, monthStart, now)
	if len(stored) == 0 {
		t.Errorf("forming month candles not stored")
	}
}

func TestBackfillerWaitsForYoungFormingMonth(t *testing.T) {
	ctx := context.Background()
	tiers, _, _ := newTestTiers()
	tiers.Retention = 10 * 365 * 24 * time.Hour
	progress := &memProgress{}
	source := &fakeSource{serve: func(pair string, tf domain.Timeframe, from, to time.Time) ([]domain.Candle, error) {
		return genCandles(pair, tf, from, to), nil
	}}

	// 36 hours into the month: too few candles to confirm anything yet.
	now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	b := newTestBackfiller(source, tiers, progress, nil, 2)
	if err := b.run(ctx, false, now); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got := source.callCount(); got != 2 {
		t.Fatalf("expected only the 2 complete months fetched, got %d", got)
	}
	monthStart := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	stored, _ := tiers.CandlesRange(ctx, "EURUSD", domain.TF1d, monthStart, now)
	if len(stored) != 0 {
		t.Errorf("young forming month must not be processed, stored %d candles", len(stored))
	}
}

func TestBackfillerFlagsCounterTrendBreaks(t *testing.T) {
	ctx := context.Background()
	tiers, hot, _ := newTestTiers()
	tiers.Retention = 10 * 365 * 24 * time.Hour
	progress := &memProgress{}
	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	monthStart := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	// Daily series with a swing high at 103 confirmed mid-month, then a
	// candle closing through it.
	ohlc := [][4]float64{
		{100, 100.5, 99.5, 100.2},
		{100.2, 101, 99.8, 100.8},
		{100.8, 103, 98, 102.5},
		{102.5, 101.5, 99.5, 101},
		{101, 100.8, 100.2, 100.5},
		{100.5, 100.9, 100, 100.6},
		{100.6, 106, 100.5, 104},
	}
	var month []domain.Candle
	for i, v := range ohlc {
		month = append(month, domain.Candle{
			OpenTime: monthStart.AddDate(0, 0, i), Pair: "EURUSD", Timeframe: domain.TF1d,
			Open: v[0], High: v[1], Low: v[2], Close: v[3], Volume: 100, IsFinal: true,
		})
	}
	source := &fakeSource{serve: func(_ string, _ domain.Timeframe, _, to time.Time) ([]domain.Candle, error) {
		// Only the forming month's window reaches past now.
		if to.After(now) {
			return month, nil
		}
		return nil, nil
	}}

	cache := newMemCache()
	if err := cache.SetCurrentStructure(ctx, &domain.CurrentStructure{
		Pair: "EURUSD", Timeframe: domain.TF1d, Direction: domain.Bearish, ComputedAt: now,
	}); err != nil {
		t.Fatalf("seeding cache failed: %v", err)
	}

	b := newTestBackfiller(source, tiers, progress, cache, 1)
	if err := b.run(ctx, false, now); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	bos, _ := hot.BOSRange(ctx, "EURUSD", domain.TF1d, monthStart, monthStart.AddDate(0, 1, 0))
	if len(bos) != 1 {
		t.Fatalf("expected 1 BOS event, got %d", len(bos))
	}
	if bos[0].Direction != domain.Bullish {
		t.Errorf("expected bullish break, got %s", bos[0].Direction)
	}
	if !bos[0].IsCounterTrend {
		t.Errorf("bullish break against the cached bearish daily trend must be flagged")
	}
}

func TestBackfillerRecordsFailedMonth(t *testing.T) {
	ctx := context.Background()
	tiers, _, _ := newTestTiers()
	tiers.Retention = 10 * 365 * 24 * time.Hour
	progress := &memProgress{}

	now := time.Now().UTC()
	failMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -2, 0)
	source := &fakeSource{serve: func(pair string, tf domain.Timeframe, from, to time.Time) ([]domain.Candle, error) {
		if to.Equal(failMonth.AddDate(0, 1, 0)) {
			return nil, errors.New("source down")
		}
		return genCandles(pair, tf, from, to), nil
	}}

	b := newTestBackfiller(source, tiers, progress, nil, 2)
	if err := b.Run(ctx, true); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var failed, complete int
	for _, p := range progress.all() {
		switch p.Status {
		case domain.BackfillError:
			failed++
			if p.YearMonth != failMonth.Format("2006-01") {
				t.Errorf("wrong failed month: %s", p.YearMonth)
			}
		case domain.BackfillComplete:
			complete++
		}
	}
	if failed != 1 || complete != 1 {
		t.Fatalf("expected 1 failed and 1 complete month, got %d/%d", failed, complete)
	}

	// A later run retries the failed month only.
	source.serve = func(pair string, tf domain.Timeframe, from, to time.Time) ([]domain.Candle, error) {
		return genCandles(pair, tf, from, to), nil
	}
	if err := b.Run(ctx, true); err != nil {
		t.Fatalf("retry run failed: %v", err)
	}
	completed, _ := progress.CompletedMonths(ctx, "EURUSD", domain.TF1d)
	if !completed[failMonth.Format("2006-01")] {
		t.Errorf("failed month not completed on retry")
	}
}
