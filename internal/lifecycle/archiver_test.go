package lifecycle

import (
	"context"
	"testing"
	"time"

	"marketStructureBot/internal/domain"
)

func TestArchiverMovesOldRows(t *testing.T) {
	ctx := context.Background()
	hot, cold := newMemStore(), newMemStore()
	now := time.Now().UTC()
	retention := 30 * 24 * time.Hour
	oldTime := now.Add(-40 * 24 * time.Hour)
	newTime := now.Add(-time.Hour)

	var candles []domain.Candle
	for i := 0; i < 10; i++ {
		candles = append(candles, tieredCandle(oldTime.Add(time.Duration(i)*time.Hour), 100+float64(i)))
	}
	candles = append(candles, tieredCandle(newTime, 200))
	if err := hot.UpsertCandles(ctx, candles); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := hot.UpsertSwings(ctx, []domain.SwingPoint{
		{Time: oldTime, Pair: "EURUSD", Timeframe: domain.TF1h, Price: 103, Kind: domain.SwingHigh, Label: domain.LabelHH},
		{Time: newTime, Pair: "EURUSD", Timeframe: domain.TF1h, Price: 105, Kind: domain.SwingHigh, Label: domain.LabelHH},
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := hot.UpsertBOSEvents(ctx, []domain.BOSEvent{
		{Time: oldTime, Pair: "EURUSD", Timeframe: domain.TF1h, Direction: domain.Bullish, Status: domain.BOSOpen, BrokenLevel: 103},
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := hot.UpsertSweeps(ctx, []domain.SweepEvent{
		{Time: oldTime, Pair: "EURUSD", Timeframe: domain.TF1h, Direction: domain.Bearish, SweptLevel: 103, WickExtreme: 103.8, SweptLevelType: domain.SweptSwing},
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	// A small batch size exercises the batching loop.
	a := NewArchiver(ArchiveConfig{Retention: retention, BatchSize: 3}, hot, cold, nopLogger{})
	if err := a.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	cutoff := now.Add(-retention)
	left, _ := hot.CandlesBefore(ctx, cutoff, 100)
	if len(left) != 0 {
		t.Errorf("%d old candles left in the hot tier", len(left))
	}
	moved, _ := cold.CandlesRange(ctx, "EURUSD", domain.TF1h, oldTime, oldTime.Add(11*time.Hour))
	if len(moved) != 10 {
		t.Errorf("expected 10 candles archived, got %d", len(moved))
	}

	recent, _ := hot.CandlesRange(ctx, "EURUSD", domain.TF1h, newTime, now)
	if len(recent) != 1 {
		t.Errorf("recent candle must stay hot")
	}

	coldSwings, _ := cold.SwingsRange(ctx, "EURUSD", domain.TF1h, oldTime, now)
	if len(coldSwings) != 1 {
		t.Errorf("expected 1 archived swing, got %d", len(coldSwings))
	}
	hotSwings, _ := hot.SwingsRange(ctx, "EURUSD", domain.TF1h, oldTime, now)
	if len(hotSwings) != 1 || !hotSwings[0].Time.Equal(newTime) {
		t.Errorf("recent swing must stay hot: %+v", hotSwings)
	}
	coldBOS, _ := cold.BOSRange(ctx, "EURUSD", domain.TF1h, oldTime, now)
	if len(coldBOS) != 1 {
		t.Errorf("expected 1 archived BOS event, got %d", len(coldBOS))
	}
	coldSweeps, _ := cold.SweepsRange(ctx, "EURUSD", domain.TF1h, oldTime, now)
	if len(coldSweeps) != 1 {
		t.Errorf("expected 1 archived sweep, got %d", len(coldSweeps))
	}
}

func TestArchiverSkipsActiveFVGs(t *testing.T) {
	ctx := context.Background()
	hot, cold := newMemStore(), newMemStore()
	now := time.Now().UTC()
	oldTime := now.Add(-40 * 24 * time.Hour)

	mkFVG := func(offset time.Duration, status domain.FVGStatus) domain.FVGEvent {
		return domain.FVGEvent{
			Time: oldTime.Add(offset), Pair: "EURUSD", Timeframe: domain.TF1h,
			Direction: domain.Bullish, Status: status, Top: 2, Bottom: 1,
		}
	}
	if err := hot.UpsertFVGs(ctx, []domain.FVGEvent{
		mkFVG(0, domain.FVGFilled),
		mkFVG(time.Hour, domain.FVGInverted),
		mkFVG(2*time.Hour, domain.FVGPartial), // old but still open
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	a := NewArchiver(ArchiveConfig{Retention: 30 * 24 * time.Hour, BatchSize: 100}, hot, cold, nopLogger{})
	if err := a.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	coldFVGs, _ := cold.FVGsRange(ctx, "EURUSD", domain.TF1h, oldTime, now)
	if len(coldFVGs) != 2 {
		t.Errorf("expected 2 archived terminal gaps, got %d", len(coldFVGs))
	}
	active, _ := hot.ActiveFVGs(ctx, "EURUSD", domain.TF1h)
	if len(active) != 1 || active[0].Status != domain.FVGPartial {
		t.Errorf("open gap must survive archiving: %+v", active)
	}
}
