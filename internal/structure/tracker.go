package structure

import (
	"marketStructureBot/internal/domain"
)

// TrackerConfig holds configuration shared by the BOS and sweep trackers.
type TrackerConfig struct {
	PipSize               float64
	DisplacementBodyRatio float64 // body/range ratio marking a displacement break
	ReclaimTimeoutCandles int     // reclaim watch window after a break
	SweepLookaheadCandles int     // window for the followedByBOS flag
}

// refLevels is the mutable active-level state of one tracking pass: the
// most recent unbroken swing point per kind. It is scoped to a single Run
// call, never shared across calls.
type refLevels struct {
	high *domain.SwingPoint
	low  *domain.SwingPoint
}

// LevelTracker runs the break-of-structure and liquidity-sweep detection
// over one candle window in a single pass. Both detectors share the same
// reference levels: a close through a level is a BOS and retires it, a
// wick-only violation is a sweep and leaves it active.
type LevelTracker struct {
	cfg         TrackerConfig
	higherTrend domain.Direction
}

// NewLevelTracker creates a tracker. higherTrend is the cached
// higher-timeframe structure direction used for the counter-trend flag;
// pass domain.Neutral when no snapshot is available.
func NewLevelTracker(cfg TrackerConfig, higherTrend domain.Direction) *LevelTracker {
	if cfg.PipSize <= 0 {
		cfg.PipSize = 1.0
	}
	if cfg.DisplacementBodyRatio <= 0 {
		cfg.DisplacementBodyRatio = 0.7
	}
	if cfg.ReclaimTimeoutCandles <= 0 {
		cfg.ReclaimTimeoutCandles = 36
	}
	if cfg.SweepLookaheadCandles <= 0 {
		cfg.SweepLookaheadCandles = 12
	}
	return &LevelTracker{cfg: cfg, higherTrend: higherTrend}
}

// Run processes the candles against their detected swings and returns BOS
// and sweep events ordered by time. Swings must come from the same candle
// window; a swing becomes an active reference only once confirmed, i.e.
// Lookback candles after its extremum.
func (t *LevelTracker) Run(candles []domain.Candle, swings []domain.SwingPoint) ([]domain.BOSEvent, []domain.SweepEvent) {
	if len(candles) == 0 {
		return nil, nil
	}

	activations := scheduleActivations(candles, swings)
	refs := &refLevels{}
	bos := newBOSState(t.cfg, t.higherTrend)
	sweeps := newSweepState(t.cfg)
	sessions := newSessionLevels(candles[0].Timeframe)

	for i, c := range candles {
		// Newly confirmed swings become active references. A new swing on
		// a broken side also supersedes that side's reclaim watch.
		for _, sp := range activations[i] {
			if sp.Kind == domain.SwingHigh {
				refs.high = sp
				bos.supersede(domain.SwingHigh)
			} else {
				refs.low = sp
				bos.supersede(domain.SwingLow)
			}
		}

		// Sweeps are checked before breaks: a close through the level is a
		// BOS, not a sweep, and the two are mutually exclusive per candle.
		sweeps.onCandle(i, c, refs, sessions)
		bos.onCandle(i, c, refs, sweeps)

		sessions.onCandle(c)
	}

	return bos.events, sweeps.events
}

// scheduleActivations maps each candle index to the swings confirmed at
// that index (extremum index + lookback).
func scheduleActivations(candles []domain.Candle, swings []domain.SwingPoint) map[int][]*domain.SwingPoint {
	byTime := make(map[int64]int, len(candles))
	for i, c := range candles {
		byTime[c.OpenTime.UnixMilli()] = i
	}

	out := make(map[int][]*domain.SwingPoint)
	for i := range swings {
		sp := &swings[i]
		idx, ok := byTime[sp.Time.UnixMilli()]
		if !ok {
			continue
		}
		confirmAt := idx + sp.Lookback
		if confirmAt >= len(candles) {
			continue // unconfirmed inside this window
		}
		out[confirmAt] = append(out[confirmAt], sp)
	}
	return out
}

// sessionLevels tracks the prior completed day's high and low, used as
// sweep reference levels on intraday timeframes.
type sessionLevels struct {
	enabled  bool
	day      int // year*1000 + yday of the day being accumulated
	curHigh  float64
	curLow   float64
	prevHigh float64
	prevLow  float64
	prevSet  bool
}

func newSessionLevels(tf domain.Timeframe) *sessionLevels {
	return &sessionLevels{enabled: tf.IsIntraday()}
}

// onCandle folds a candle into the running day after the candle has been
// evaluated, rolling the completed day into the prior-day levels.
func (s *sessionLevels) onCandle(c domain.Candle) {
	if !s.enabled {
		return
	}
	t := c.OpenTime.UTC()
	day := t.Year()*1000 + t.YearDay()
	if day != s.day {
		if s.day != 0 {
			s.prevHigh, s.prevLow, s.prevSet = s.curHigh, s.curLow, true
		}
		s.day = day
		s.curHigh, s.curLow = c.High, c.Low
		return
	}
	if c.High > s.curHigh {
		s.curHigh = c.High
	}
	if c.Low < s.curLow {
		s.curLow = c.Low
	}
}
