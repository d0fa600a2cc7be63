package structure

import (
	"marketStructureBot/internal/domain"
)

// reclaimWatch follows one open BOS event until its broken level is
// reclaimed, a new swing supersedes the level, or the watch times out.
type reclaimWatch struct {
	eventIdx   int              // index into bosState.events
	brokenKind domain.SwingKind // side of the broken level
	deadline   int              // candle index after which the watch lapses
}

// bosState accumulates break-of-structure events during one tracking pass.
type bosState struct {
	cfg         TrackerConfig
	higherTrend domain.Direction
	events      []domain.BOSEvent
	watches     []reclaimWatch
}

func newBOSState(cfg TrackerConfig, higherTrend domain.Direction) *bosState {
	return &bosState{cfg: cfg, higherTrend: higherTrend}
}

// onCandle checks the close against the active opposite-kind references,
// emits break events, and advances open reclaim watches.
func (b *bosState) onCandle(i int, c domain.Candle, refs *refLevels, sweeps *sweepState) {
	b.checkReclaims(i, c)

	// A close above the active swing high is a bullish break.
	if refs.high != nil && c.Close > refs.high.Price {
		b.emit(i, c, refs.high, domain.Bullish, sweeps)
		refs.high = nil // broken level is retired as an active reference
	}
	// A close below the active swing low is a bearish break.
	if refs.low != nil && c.Close < refs.low.Price {
		b.emit(i, c, refs.low, domain.Bearish, sweeps)
		refs.low = nil
	}
}

func (b *bosState) emit(i int, c domain.Candle, broken *domain.SwingPoint, dir domain.Direction, sweeps *sweepState) {
	ev := domain.BOSEvent{
		Time:            c.OpenTime,
		Pair:            c.Pair,
		Timeframe:       c.Timeframe,
		Direction:       dir,
		Status:          domain.BOSOpen,
		BrokenLevel:     broken.Price,
		BrokenSwingTime: broken.Time,
		ConfirmingClose: c.Close,
		MagnitudePips:   magnitudePips(c.Close, broken.Price, b.cfg.PipSize),
		IsDisplacement:  c.BodyRatio() >= b.cfg.DisplacementBodyRatio,
		IsCounterTrend:  b.higherTrend != domain.Neutral && dir == b.higherTrend.Opposite(),
	}
	b.events = append(b.events, ev)
	b.watches = append(b.watches, reclaimWatch{
		eventIdx:   len(b.events) - 1,
		brokenKind: broken.Kind,
		deadline:   i + b.cfg.ReclaimTimeoutCandles,
	})
	sweeps.onBOS(i, dir)
}

// checkReclaims flips an open event to reclaimed when a later close crosses
// back through its broken level. Each event is mutated at most once.
func (b *bosState) checkReclaims(i int, c domain.Candle) {
	kept := b.watches[:0]
	for _, w := range b.watches {
		if i > w.deadline {
			continue // watch lapsed
		}
		ev := &b.events[w.eventIdx]
		reclaimed := (ev.Direction == domain.Bullish && c.Close < ev.BrokenLevel) ||
			(ev.Direction == domain.Bearish && c.Close > ev.BrokenLevel)
		if reclaimed {
			at := c.OpenTime
			ev.Status = domain.BOSReclaimed
			ev.ReclaimedAt = &at
			ev.ReclaimedByClose = c.Close
			ev.TimeTilReclaim = at.Sub(ev.Time)
			continue
		}
		kept = append(kept, w)
	}
	b.watches = kept
}

// supersede ends reclaim watches on a side once a new swing point forms
// there: the new level replaces the broken one as the reference.
func (b *bosState) supersede(kind domain.SwingKind) {
	kept := b.watches[:0]
	for _, w := range b.watches {
		if w.brokenKind != kind {
			kept = append(kept, w)
		}
	}
	b.watches = kept
}

// magnitudePips is the distance from the broken level to the confirming
// close, in pips. Always non-negative for a genuine break.
func magnitudePips(close, level, pipSize float64) float64 {
	d := close - level
	if d < 0 {
		d = -d
	}
	return d / pipSize
}
