package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketStructureBot/internal/adapters/logger"
	"marketStructureBot/internal/domain"
)

var baseTime = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(Config{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: logger.NewStdLogger(logger.LevelError),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testCandle(i int, final bool) domain.Candle {
	return domain.Candle{
		OpenTime:  baseTime.Add(time.Duration(i) * time.Hour),
		Pair:      "BTCUSDT",
		Timeframe: domain.TF1h,
		Open:      100 + float64(i),
		High:      101 + float64(i),
		Low:       99 + float64(i),
		Close:     100.5 + float64(i),
		Volume:    10,
		IsFinal:   final,
	}
}

func TestUpsertCandlesIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	candles := []domain.Candle{testCandle(0, true), testCandle(1, true), testCandle(2, true)}
	require.NoError(t, store.UpsertCandles(ctx, candles))

	// Overwrite the middle candle with a corrected close.
	candles[1].Close = 999
	require.NoError(t, store.UpsertCandles(ctx, candles))

	got, err := store.CandlesRange(ctx, "BTCUSDT", domain.TF1h, baseTime, baseTime.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 999.0, got[1].Close)
	assert.Equal(t, candles[0], got[0])
}

func TestCandlesRangeExclusiveUpperBound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertCandles(ctx, []domain.Candle{
		testCandle(0, true), testCandle(1, true), testCandle(2, true),
	}))

	got, err := store.CandlesRange(ctx, "BTCUSDT", domain.TF1h, baseTime, baseTime.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].OpenTime.Equal(baseTime))
	assert.True(t, got[1].OpenTime.Equal(baseTime.Add(time.Hour)))

	times, err := store.CandleTimes(ctx, "BTCUSDT", domain.TF1h, baseTime, baseTime.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, times, 2)
	assert.True(t, times[1].Equal(baseTime.Add(time.Hour)))
}

func TestLatestCandleTime(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.LatestCandleTime(ctx, "BTCUSDT", domain.TF1h)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	require.NoError(t, store.UpsertCandles(ctx, []domain.Candle{testCandle(0, true), testCandle(5, true)}))

	got, err = store.LatestCandleTime(ctx, "BTCUSDT", domain.TF1h)
	require.NoError(t, err)
	assert.True(t, got.Equal(baseTime.Add(5*time.Hour)))
}

func TestCandlesBeforeAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertCandles(ctx, []domain.Candle{
		testCandle(0, true), testCandle(1, false), testCandle(2, true), testCandle(3, true),
	}))

	cutoff := baseTime.Add(3 * time.Hour)
	old, err := store.CandlesBefore(ctx, cutoff, 10)
	require.NoError(t, err)
	// The forming candle at index 1 is never eligible.
	require.Len(t, old, 2)
	assert.True(t, old[0].OpenTime.Equal(baseTime))
	assert.True(t, old[1].OpenTime.Equal(baseTime.Add(2*time.Hour)))

	deleted, err := store.DeleteCandlesRange(ctx, baseTime, baseTime.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	// The non-final candle inside the range survives.
	remaining, err := store.CandlesRange(ctx, "BTCUSDT", domain.TF1h, baseTime, baseTime.Add(4*time.Hour))
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.False(t, remaining[0].IsFinal)
}

func TestSwingsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	swings := []domain.SwingPoint{
		{Time: baseTime, Pair: "BTCUSDT", Timeframe: domain.TF1h, Price: 103, Kind: domain.SwingHigh, Label: domain.LabelHH, Lookback: 3, TrueRange: 2.5},
		{Time: baseTime.Add(time.Hour), Pair: "BTCUSDT", Timeframe: domain.TF1h, Price: 98, Kind: domain.SwingLow, Label: domain.LabelLL, Lookback: 3, TrueRange: 1.5},
	}
	require.NoError(t, store.UpsertSwings(ctx, swings))
	require.NoError(t, store.UpsertSwings(ctx, swings)) // idempotent

	got, err := store.SwingsRange(ctx, "BTCUSDT", domain.TF1h, baseTime, baseTime.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, swings[0], got[0])
	assert.Equal(t, swings[1], got[1])

	deleted, err := store.DeleteSwingsRange(ctx, baseTime, baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestBOSUpsertUpdatesStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ev := domain.BOSEvent{
		Time:            baseTime,
		Pair:            "BTCUSDT",
		Timeframe:       domain.TF1h,
		Direction:       domain.Bullish,
		Status:          domain.BOSOpen,
		BrokenLevel:     103,
		BrokenSwingTime: baseTime.Add(-4 * time.Hour),
		ConfirmingClose: 104,
		MagnitudePips:   1,
		IsDisplacement:  true,
	}
	require.NoError(t, store.UpsertBOSEvents(ctx, []domain.BOSEvent{ev}))

	// Later pass flips the event to reclaimed.
	at := baseTime.Add(2 * time.Hour)
	ev.Status = domain.BOSReclaimed
	ev.ReclaimedAt = &at
	ev.ReclaimedByClose = 102
	ev.TimeTilReclaim = 2 * time.Hour
	require.NoError(t, store.UpsertBOSEvents(ctx, []domain.BOSEvent{ev}))

	got, err := store.BOSRange(ctx, "BTCUSDT", domain.TF1h, baseTime, baseTime.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.BOSReclaimed, got[0].Status)
	require.NotNil(t, got[0].ReclaimedAt)
	assert.True(t, got[0].ReclaimedAt.Equal(at))
	assert.Equal(t, 102.0, got[0].ReclaimedByClose)
	assert.Equal(t, 2*time.Hour, got[0].TimeTilReclaim)
	assert.True(t, got[0].BrokenSwingTime.Equal(ev.BrokenSwingTime))
}

func TestSweepsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ev := domain.SweepEvent{
		Time:           baseTime,
		Pair:           "BTCUSDT",
		Timeframe:      domain.TF1h,
		Direction:      domain.Bearish,
		SweptLevel:     103,
		WickExtreme:    103.8,
		SweptLevelType: domain.SweptSwing,
	}
	require.NoError(t, store.UpsertSweeps(ctx, []domain.SweepEvent{ev}))

	// The lookahead window later confirms the sweep.
	ev.FollowedByBOS = true
	require.NoError(t, store.UpsertSweeps(ctx, []domain.SweepEvent{ev}))

	got, err := store.SweepsRange(ctx, "BTCUSDT", domain.TF1h, baseTime, baseTime.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ev, got[0])
}

func TestFVGActiveAndTerminal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mkFVG := func(i int, status domain.FVGStatus) domain.FVGEvent {
		return domain.FVGEvent{
			Time:             baseTime.Add(time.Duration(i) * time.Hour),
			Pair:             "BTCUSDT",
			Timeframe:        domain.TF1h,
			Direction:        domain.Bullish,
			Status:           status,
			Top:              1.1070,
			Bottom:           1.1050,
			Midline:          1.1060,
			GapSizePips:      20,
			Tier:             domain.TierStandard,
			MidlineRespected: true,
		}
	}

	fvgs := []domain.FVGEvent{
		mkFVG(0, domain.FVGFilled),
		mkFVG(1, domain.FVGInverted),
		mkFVG(2, domain.FVGFresh),
		mkFVG(3, domain.FVGPartial),
	}
	require.NoError(t, store.UpsertFVGs(ctx, fvgs))

	active, err := store.ActiveFVGs(ctx, "BTCUSDT", domain.TF1h)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, domain.FVGFresh, active[0].Status)
	assert.Equal(t, domain.FVGPartial, active[1].Status)

	terminal, err := store.TerminalFVGsBefore(ctx, baseTime.Add(4*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, terminal, 2)

	deleted, err := store.DeleteTerminalFVGsRange(ctx, baseTime, baseTime.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	// Active gaps survive a terminal delete over their range.
	active, err = store.ActiveFVGs(ctx, "BTCUSDT", domain.TF1h)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestFVGNullableTimestamps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	touch := baseTime.Add(time.Hour)
	filled := baseTime.Add(2 * time.Hour)
	ev := domain.FVGEvent{
		Time:             baseTime,
		Pair:             "BTCUSDT",
		Timeframe:        domain.TF1h,
		Direction:        domain.Bullish,
		Status:           domain.FVGFilled,
		Top:              1.1070,
		Bottom:           1.1050,
		Midline:          1.1060,
		GapSizePips:      20,
		Tier:             domain.TierPremium,
		FillPercent:      100,
		MaxFillPercent:   100,
		BodyFilled:       true,
		WickTouched:      true,
		FirstTouchAt:     &touch,
		RetestCount:      2,
		MidlineRespected: false,
		FilledAt:         &filled,
	}
	require.NoError(t, store.UpsertFVGs(ctx, []domain.FVGEvent{ev}))

	got, err := store.FVGsRange(ctx, "BTCUSDT", domain.TF1h, baseTime, baseTime.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].FirstTouchAt)
	assert.True(t, got[0].FirstTouchAt.Equal(touch))
	require.NotNil(t, got[0].FilledAt)
	assert.True(t, got[0].FilledAt.Equal(filled))
	assert.Nil(t, got[0].InvertedAt)
	assert.Equal(t, 2, got[0].RetestCount)
}
