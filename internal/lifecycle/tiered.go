package lifecycle

import (
	"context"
	"sort"
	"time"

	"marketStructureBot/internal/domain"
	"marketStructureBot/internal/ports"
)

// Tiered routes reads and writes across the hot and cold storage tiers.
// Rows younger than the retention horizon belong to the hot tier, older
// rows to the cold tier; active FVGs stay hot whatever their age.
type Tiered struct {
	Hot       ports.Store
	Cold      ports.Store
	Retention time.Duration
}

// Cutoff is the hot/cold boundary relative to now.
func (t *Tiered) Cutoff(now time.Time) time.Time {
	return now.Add(-t.Retention)
}

// WriteCandles splits candles by age and upserts each half into its tier.
func (t *Tiered) WriteCandles(ctx context.Context, now time.Time, candles []domain.Candle) error {
	cutoff := t.Cutoff(now)
	var hot, cold []domain.Candle
	for _, c := range candles {
		if c.OpenTime.Before(cutoff) {
			cold = append(cold, c)
		} else {
			hot = append(hot, c)
		}
	}
	if err := t.Cold.UpsertCandles(ctx, cold); err != nil {
		return err
	}
	return t.Hot.UpsertCandles(ctx, hot)
}

// WriteEvents routes all event categories by age. FVGs are the exception:
// a non-terminal gap is always written hot so the fill refresher sees it.
func (t *Tiered) WriteEvents(ctx context.Context, now time.Time,
	swings []domain.SwingPoint, bos []domain.BOSEvent,
	sweeps []domain.SweepEvent, fvgs []domain.FVGEvent) error {

	cutoff := t.Cutoff(now)

	var hotSwings, coldSwings []domain.SwingPoint
	for _, sp := range swings {
		if sp.Time.Before(cutoff) {
			coldSwings = append(coldSwings, sp)
		} else {
			hotSwings = append(hotSwings, sp)
		}
	}
	if err := t.Cold.UpsertSwings(ctx, coldSwings); err != nil {
		return err
	}
	if err := t.Hot.UpsertSwings(ctx, hotSwings); err != nil {
		return err
	}

	var hotBOS, coldBOS []domain.BOSEvent
	for _, ev := range bos {
		if ev.Time.Before(cutoff) {
			coldBOS = append(coldBOS, ev)
		} else {
			hotBOS = append(hotBOS, ev)
		}
	}
	if err := t.Cold.UpsertBOSEvents(ctx, coldBOS); err != nil {
		return err
	}
	if err := t.Hot.UpsertBOSEvents(ctx, hotBOS); err != nil {
		return err
	}

	var hotSweeps, coldSweeps []domain.SweepEvent
	for _, ev := range sweeps {
		if ev.Time.Before(cutoff) {
			coldSweeps = append(coldSweeps, ev)
		} else {
			hotSweeps = append(hotSweeps, ev)
		}
	}
	if err := t.Cold.UpsertSweeps(ctx, coldSweeps); err != nil {
		return err
	}
	if err := t.Hot.UpsertSweeps(ctx, hotSweeps); err != nil {
		return err
	}

	var hotFVGs, coldFVGs []domain.FVGEvent
	for _, ev := range fvgs {
		if ev.Time.Before(cutoff) && ev.Status.IsTerminal() {
			coldFVGs = append(coldFVGs, ev)
		} else {
			hotFVGs = append(hotFVGs, ev)
		}
	}
	if err := t.Cold.UpsertFVGs(ctx, coldFVGs); err != nil {
		return err
	}
	return t.Hot.UpsertFVGs(ctx, hotFVGs)
}

// CandleTimes merges open times from both tiers, deduplicated ascending.
func (t *Tiered) CandleTimes(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]time.Time, error) {
	hot, err := t.Hot.CandleTimes(ctx, pair, tf, from, to)
	if err != nil {
		return nil, err
	}
	cold, err := t.Cold.CandleTimes(ctx, pair, tf, from, to)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(hot)+len(cold))
	var merged []time.Time
	for _, ts := range append(cold, hot...) {
		k := ts.UnixMilli()
		if seen[k] {
			continue
		}
		seen[k] = true
		merged = append(merged, ts.UTC())
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Before(merged[j]) })
	return merged, nil
}

// CandlesRange merges candles from both tiers ascending by open time,
// preferring the hot tier's copy when a row exists in both.
func (t *Tiered) CandlesRange(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.Candle, error) {
	hot, err := t.Hot.CandlesRange(ctx, pair, tf, from, to)
	if err != nil {
		return nil, err
	}
	cold, err := t.Cold.CandlesRange(ctx, pair, tf, from, to)
	if err != nil {
		return nil, err
	}

	byTime := make(map[int64]domain.Candle, len(hot)+len(cold))
	for _, c := range cold {
		byTime[c.OpenTime.UnixMilli()] = c
	}
	for _, c := range hot {
		byTime[c.OpenTime.UnixMilli()] = c
	}
	merged := make([]domain.Candle, 0, len(byTime))
	for _, c := range byTime {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].OpenTime.Before(merged[j].OpenTime) })
	return merged, nil
}
