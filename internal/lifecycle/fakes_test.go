package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"marketStructureBot/internal/domain"
	"marketStructureBot/internal/ports"
)

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...map[string]interface{})        {}
func (nopLogger) Info(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Warn(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Error(context.Context, error, string, ...map[string]interface{}) {}

func key(pair string, tf domain.Timeframe, t time.Time, extra string) string {
	return fmt.Sprintf("%s|%s|%d|%s", pair, tf, t.UnixMilli(), extra)
}

// memStore is an in-memory ports.Store shared by the lifecycle job tests.
type memStore struct {
	mu      sync.Mutex
	candles map[string]domain.Candle
	swings  map[string]domain.SwingPoint
	bos     map[string]domain.BOSEvent
	sweeps  map[string]domain.SweepEvent
	fvgs    map[string]domain.FVGEvent
}

func newMemStore() *memStore {
	return &memStore{
		candles: make(map[string]domain.Candle),
		swings:  make(map[string]domain.SwingPoint),
		bos:     make(map[string]domain.BOSEvent),
		sweeps:  make(map[string]domain.SweepEvent),
		fvgs:    make(map[string]domain.FVGEvent),
	}
}

func (m *memStore) UpsertCandles(_ context.Context, candles []domain.Candle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range candles {
		m.candles[key(c.Pair, c.Timeframe, c.OpenTime, "")] = c
	}
	return nil
}

func (m *memStore) CandlesRange(_ context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Candle
	for _, c := range m.candles {
		if c.Pair == pair && c.Timeframe == tf && !c.OpenTime.Before(from) && c.OpenTime.Before(to) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out, nil
}

func (m *memStore) CandleTimes(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]time.Time, error) {
	candles, _ := m.CandlesRange(ctx, pair, tf, from, to)
	times := make([]time.Time, len(candles))
	for i, c := range candles {
		times[i] = c.OpenTime
	}
	return times, nil
}

func (m *memStore) LatestCandleTime(_ context.Context, pair string, tf domain.Timeframe) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest time.Time
	for _, c := range m.candles {
		if c.Pair == pair && c.Timeframe == tf && c.OpenTime.After(latest) {
			latest = c.OpenTime
		}
	}
	return latest, nil
}

func (m *memStore) CandlesBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Candle
	for _, c := range m.candles {
		if c.IsFinal && c.OpenTime.Before(cutoff) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) DeleteCandlesRange(_ context.Context, from, to time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, c := range m.candles {
		if c.IsFinal && !c.OpenTime.Before(from) && !c.OpenTime.After(to) {
			delete(m.candles, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) UpsertSwings(_ context.Context, swings []domain.SwingPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sp := range swings {
		m.swings[key(sp.Pair, sp.Timeframe, sp.Time, string(sp.Kind))] = sp
	}
	return nil
}

func (m *memStore) SwingsRange(_ context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.SwingPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SwingPoint
	for _, sp := range m.swings {
		if sp.Pair == pair && sp.Timeframe == tf && !sp.Time.Before(from) && sp.Time.Before(to) {
			out = append(out, sp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (m *memStore) SwingsBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.SwingPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SwingPoint
	for _, sp := range m.swings {
		if sp.Time.Before(cutoff) {
			out = append(out, sp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) DeleteSwingsRange(_ context.Context, from, to time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, sp := range m.swings {
		if !sp.Time.Before(from) && !sp.Time.After(to) {
			delete(m.swings, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) UpsertBOSEvents(_ context.Context, events []domain.BOSEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range events {
		m.bos[key(ev.Pair, ev.Timeframe, ev.Time, string(ev.Direction))] = ev
	}
	return nil
}

func (m *memStore) BOSRange(_ context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.BOSEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BOSEvent
	for _, ev := range m.bos {
		if ev.Pair == pair && ev.Timeframe == tf && !ev.Time.Before(from) && ev.Time.Before(to) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (m *memStore) BOSBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.BOSEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BOSEvent
	for _, ev := range m.bos {
		if ev.Time.Before(cutoff) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) DeleteBOSRange(_ context.Context, from, to time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, ev := range m.bos {
		if !ev.Time.Before(from) && !ev.Time.After(to) {
			delete(m.bos, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) UpsertSweeps(_ context.Context, sweeps []domain.SweepEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range sweeps {
		m.sweeps[key(ev.Pair, ev.Timeframe, ev.Time, string(ev.Direction)+string(ev.SweptLevelType))] = ev
	}
	return nil
}

func (m *memStore) SweepsRange(_ context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.SweepEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SweepEvent
	for _, ev := range m.sweeps {
		if ev.Pair == pair && ev.Timeframe == tf && !ev.Time.Before(from) && ev.Time.Before(to) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (m *memStore) SweepsBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.SweepEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SweepEvent
	for _, ev := range m.sweeps {
		if ev.Time.Before(cutoff) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) DeleteSweepsRange(_ context.Context, from, to time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, ev := range m.sweeps {
		if !ev.Time.Before(from) && !ev.Time.After(to) {
			delete(m.sweeps, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) UpsertFVGs(_ context.Context, fvgs []domain.FVGEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range fvgs {
		m.fvgs[key(ev.Pair, ev.Timeframe, ev.Time, string(ev.Direction))] = ev
	}
	return nil
}

func (m *memStore) FVGsRange(_ context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.FVGEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.FVGEvent
	for _, ev := range m.fvgs {
		if ev.Pair == pair && ev.Timeframe == tf && !ev.Time.Before(from) && ev.Time.Before(to) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (m *memStore) ActiveFVGs(_ context.Context, pair string, tf domain.Timeframe) ([]domain.FVGEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.FVGEvent
	for _, ev := range m.fvgs {
		if ev.Pair == pair && ev.Timeframe == tf && !ev.Status.IsTerminal() {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (m *memStore) TerminalFVGsBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.FVGEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.FVGEvent
	for _, ev := range m.fvgs {
		if ev.Status.IsTerminal() && ev.Time.Before(cutoff) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) DeleteTerminalFVGsRange(_ context.Context, from, to time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, ev := range m.fvgs {
		if ev.Status.IsTerminal() && !ev.Time.Before(from) && !ev.Time.After(to) {
			delete(m.fvgs, k)
			n++
		}
	}
	return n, nil
}

var _ ports.Store = (*memStore)(nil)

// fetchCall records one FetchCandles invocation.
type fetchCall struct {
	pair string
	tf   domain.Timeframe
	from time.Time
	to   time.Time
}

// fakeSource serves candles from a generator function and records calls.
type fakeSource struct {
	mu    sync.Mutex
	calls []fetchCall
	serve func(pair string, tf domain.Timeframe, from, to time.Time) ([]domain.Candle, error)
}

func (f *fakeSource) FetchCandles(_ context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.Candle, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{pair: pair, tf: tf, from: from, to: to})
	f.mu.Unlock()
	if f.serve == nil {
		return nil, nil
	}
	return f.serve(pair, tf, from, to)
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSource) recorded() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fetchCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// genCandles produces deterministic candles spaced by the timeframe in
// [from, to), mildly oscillating so detectors have something to find.
func genCandles(pair string, tf domain.Timeframe, from, to time.Time) []domain.Candle {
	var out []domain.Candle
	step := tf.Duration()
	i := 0
	for t := from.Truncate(step); t.Before(to); t = t.Add(step) {
		if t.Before(from) {
			i++
			continue
		}
		base := 100 + 3*float64((i%7))-float64(i%3)
		out = append(out, domain.Candle{
			OpenTime:  t,
			Pair:      pair,
			Timeframe: tf,
			Open:      base,
			High:      base + 1.5,
			Low:       base - 1.5,
			Close:     base + 0.5,
			Volume:    100,
			IsFinal:   true,
		})
		i++
	}
	return out
}

// memProgress is an in-memory append-only ports.ProgressStore.
type memProgress struct {
	mu   sync.Mutex
	rows []domain.BackfillProgress
}

func (m *memProgress) RecordProgress(_ context.Context, p domain.BackfillProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, p)
	return nil
}

func (m *memProgress) CompletedMonths(_ context.Context, pair string, tf domain.Timeframe) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := make(map[string]domain.BackfillStatus)
	for _, p := range m.rows {
		if p.Pair == pair && p.Timeframe == tf {
			latest[p.YearMonth] = p.Status
		}
	}
	out := make(map[string]bool)
	for ym, status := range latest {
		if status == domain.BackfillComplete {
			out[ym] = true
		}
	}
	return out, nil
}

func (m *memProgress) ListProgress(_ context.Context) ([]domain.BackfillProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.BackfillProgress, len(m.rows))
	copy(out, m.rows)
	return out, nil
}

func (m *memProgress) all() []domain.BackfillProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.BackfillProgress, len(m.rows))
	copy(out, m.rows)
	return out
}

var _ ports.ProgressStore = (*memProgress)(nil)

// memCache is an in-memory ports.StructureCache.
type memCache struct {
	mu        sync.Mutex
	snapshots map[string]*domain.CurrentStructure
}

func newMemCache() *memCache {
	return &memCache{snapshots: make(map[string]*domain.CurrentStructure)}
}

func (m *memCache) GetCurrentStructure(_ context.Context, pair string, tf domain.Timeframe) (*domain.CurrentStructure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.snapshots[pair+"|"+string(tf)]
	if !ok {
		return nil, nil
	}
	cp := *cs
	return &cp, nil
}

func (m *memCache) SetCurrentStructure(_ context.Context, cs *domain.CurrentStructure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *cs
	m.snapshots[cs.Pair+"|"+string(cs.Timeframe)] = &cp
	return nil
}

var _ ports.StructureCache = (*memCache)(nil)
