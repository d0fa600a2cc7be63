package structure

import (
	"fmt"

	"marketStructureBot/internal/domain"
)

// pendingSweep waits for a same-direction BOS inside the lookahead window.
type pendingSweep struct {
	eventIdx  int
	direction domain.Direction
	deadline  int
}

// sweepState accumulates liquidity-sweep events during one tracking pass.
// A sweep fires at most once per reference level.
type sweepState struct {
	cfg     TrackerConfig
	events  []domain.SweepEvent
	swept   map[string]bool
	pending []pendingSweep
}

func newSweepState(cfg TrackerConfig) *sweepState {
	return &sweepState{cfg: cfg, swept: make(map[string]bool)}
}

// onCandle checks the candle's wicks against the active swing references
// and the prior session's high/low. A violation is a sweep only when the
// close stays on the original side of the level; a close through it is
// handled as a BOS by the caller.
func (s *sweepState) onCandle(i int, c domain.Candle, refs *refLevels, sessions *sessionLevels) {
	if refs.high != nil && c.High > refs.high.Price && c.Close < refs.high.Price {
		key := fmt.Sprintf("swing:%s:%d", refs.high.Kind, refs.high.Time.UnixMilli())
		// A sweep above buy-side liquidity anticipates a move down.
		s.emit(i, c, refs.high.Price, c.High, domain.SweptSwing, domain.Bearish, key)
	}
	if refs.low != nil && c.Low < refs.low.Price && c.Close > refs.low.Price {
		key := fmt.Sprintf("swing:%s:%d", refs.low.Kind, refs.low.Time.UnixMilli())
		s.emit(i, c, refs.low.Price, c.Low, domain.SweptSwing, domain.Bullish, key)
	}

	if sessions.prevSet {
		if c.High > sessions.prevHigh && c.Close < sessions.prevHigh {
			key := fmt.Sprintf("session:high:%d", sessions.day)
			s.emit(i, c, sessions.prevHigh, c.High, domain.SweptSession, domain.Bearish, key)
		}
		if c.Low < sessions.prevLow && c.Close > sessions.prevLow {
			key := fmt.Sprintf("session:low:%d", sessions.day)
			s.emit(i, c, sessions.prevLow, c.Low, domain.SweptSession, domain.Bullish, key)
		}
	}
}

func (s *sweepState) emit(i int, c domain.Candle, level, wick float64, lt domain.SweptLevelType, dir domain.Direction, key string) {
	if s.swept[key] {
		return // first violation per level only
	}
	s.swept[key] = true
	s.events = append(s.events, domain.SweepEvent{
		Time:           c.OpenTime,
		Pair:           c.Pair,
		Timeframe:      c.Timeframe,
		Direction:      dir,
		SweptLevel:     level,
		WickExtreme:    wick,
		SweptLevelType: lt,
		FollowedByBOS:  false,
	})
	s.pending = append(s.pending, pendingSweep{
		eventIdx:  len(s.events) - 1,
		direction: dir,
		deadline:  i + s.cfg.SweepLookaheadCandles,
	})
}

// onBOS resolves pending sweeps: a same-direction break inside the
// lookahead window confirms the sweep. Once the window elapses the flag is
// frozen false.
func (s *sweepState) onBOS(i int, dir domain.Direction) {
	kept := s.pending[:0]
	for _, p := range s.pending {
		if i > p.deadline {
			continue
		}
		if p.direction == dir {
			s.events[p.eventIdx].FollowedByBOS = true
			continue
		}
		kept = append(kept, p)
	}
	s.pending = kept
}
