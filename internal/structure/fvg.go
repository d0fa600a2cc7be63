package structure

import (
	"math"

	"marketStructureBot/internal/domain"
)

// FVGConfig holds configuration for the fair-value-gap tracker.
type FVGConfig struct {
	PipSize       float64
	FillThreshold float64 // fill percent at which a gap counts as filled
	VolumeWindow  int     // rolling baseline window for relative volume

	// Tier thresholds on the middle candle's displacement metrics.
	TierBodyRatio float64
	TierGapBody   float64
	TierRelVolume float64
}

// FVGTracker detects three-candle price gaps and evolves their fill state.
type FVGTracker struct {
	cfg FVGConfig
}

// NewFVGTracker creates a new FVG tracker instance.
func NewFVGTracker(cfg FVGConfig) *FVGTracker {
	if cfg.PipSize <= 0 {
		cfg.PipSize = 1.0
	}
	if cfg.FillThreshold <= 0 {
		cfg.FillThreshold = 85.0
	}
	if cfg.VolumeWindow <= 0 {
		cfg.VolumeWindow = 20
	}
	if cfg.TierBodyRatio <= 0 {
		cfg.TierBodyRatio = 0.6
	}
	if cfg.TierGapBody <= 0 {
		cfg.TierGapBody = 0.25
	}
	if cfg.TierRelVolume <= 0 {
		cfg.TierRelVolume = 1.3
	}
	return &FVGTracker{cfg: cfg}
}

// Detect finds all gaps in the window and evaluates each against the
// candles that follow it inside the same window. For consecutive candles
// (a, b, c) a bullish gap exists when a.high < c.low; bearish is the
// mirror. Events are ordered by creation time.
func (t *FVGTracker) Detect(candles []domain.Candle) []domain.FVGEvent {
	var fvgs []domain.FVGEvent
	var createdAt []int

	for i := 2; i < len(candles); i++ {
		a, b, c := candles[i-2], candles[i-1], candles[i]

		if a.High < c.Low {
			fvgs = append(fvgs, t.newGap(candles, i, domain.Bullish, a.High, c.Low, b))
			createdAt = append(createdAt, i)
		}
		if a.Low > c.High {
			fvgs = append(fvgs, t.newGap(candles, i, domain.Bearish, c.High, a.Low, b))
			createdAt = append(createdAt, i)
		}
	}

	for k := range fvgs {
		t.Evaluate(&fvgs[k], candles[createdAt[k]+1:])
	}
	return fvgs
}

func (t *FVGTracker) newGap(candles []domain.Candle, i int, dir domain.Direction, bottom, top float64, b domain.Candle) domain.FVGEvent {
	c := candles[i]
	gapSize := top - bottom

	bodyRatio := b.BodyRatio()
	gapToBody := 0.0
	if b.Body() > 0 {
		gapToBody = gapSize / b.Body()
	}
	relVolume := relativeVolume(candles, i-1, t.cfg.VolumeWindow)

	return domain.FVGEvent{
		Time:             c.OpenTime,
		Pair:             c.Pair,
		Timeframe:        c.Timeframe,
		Direction:        dir,
		Status:           domain.FVGFresh,
		Top:              top,
		Bottom:           bottom,
		Midline:          (top + bottom) / 2,
		GapSizePips:      gapSize / t.cfg.PipSize,
		BodyRatio:        bodyRatio,
		GapToBodyRatio:   gapToBody,
		RelVolume:        relVolume,
		Tier:             t.classify(bodyRatio, gapToBody, relVolume),
		MidlineRespected: true,
	}
}

// classify ranks a gap by how many displacement criteria the middle candle
// meets.
func (t *FVGTracker) classify(bodyRatio, gapToBody, relVolume float64) domain.FVGTier {
	met := 0
	if bodyRatio >= t.cfg.TierBodyRatio {
		met++
	}
	if gapToBody >= t.cfg.TierGapBody {
		met++
	}
	if relVolume >= t.cfg.TierRelVolume {
		met++
	}
	switch met {
	case 3:
		return domain.TierPremium
	case 2:
		return domain.TierStandard
	default:
		return domain.TierWeak
	}
}

// Evaluate runs the fill evaluation over completed candles strictly after
// the gap's creation and reports whether any field changed. Evaluation stops once a
// terminal status is reached. Every metric merges monotonically: fills only
// grow, and the retest count is recounted over the window and kept only
// when higher, so re-running over already-seen candles never changes state.
func (t *FVGTracker) Evaluate(fvg *domain.FVGEvent, candles []domain.Candle) bool {
	changed := false
	entries := 0
	prevInside := false
	for _, c := range candles {
		if fvg.Status.IsTerminal() {
			break
		}
		if !c.OpenTime.After(fvg.Time) {
			continue
		}
		// Forming candles carry a transient close; status transitions wait
		// for the completed candle.
		if !c.IsFinal {
			continue
		}
		inside := c.Low <= fvg.Top && c.High >= fvg.Bottom
		if inside && !prevInside {
			entries++
		}
		if t.evalCandle(fvg, c) {
			changed = true
		}
		prevInside = inside
	}
	// A window that slid past earlier retests sees fewer entries than the
	// stored count; the stored count wins.
	if entries > fvg.RetestCount {
		fvg.RetestCount = entries
		changed = true
	}
	return changed
}

// evalCandle applies one candle to the gap's fill state.
func (t *FVGTracker) evalCandle(fvg *domain.FVGEvent, c domain.Candle) bool {
	gapSize := fvg.Top - fvg.Bottom
	if gapSize <= 0 {
		return false
	}
	changed := false

	// Wick touch: price re-entered [bottom, top].
	if c.Low <= fvg.Top && c.High >= fvg.Bottom {
		if !fvg.WickTouched {
			fvg.WickTouched = true
			changed = true
		}
		if fvg.FirstTouchAt == nil {
			at := c.OpenTime
			fvg.FirstTouchAt = &at
			changed = true
		}
	}

	// Body overlap drives the fill percent.
	bodyLow := math.Min(c.Open, c.Close)
	bodyHigh := math.Max(c.Open, c.Close)
	overlap := math.Min(bodyHigh, fvg.Top) - math.Max(bodyLow, fvg.Bottom)
	if overlap > 0 {
		fill := overlap / gapSize * 100
		if fill > fvg.FillPercent {
			fvg.FillPercent = fill
			changed = true
		}
		if bodyLow <= fvg.Bottom && bodyHigh >= fvg.Top && !fvg.BodyFilled {
			fvg.BodyFilled = true
			changed = true
		}
		// Midline respect: the filling side's bodies stay on their half.
		crossed := (fvg.Direction == domain.Bullish && bodyLow < fvg.Midline) ||
			(fvg.Direction == domain.Bearish && bodyHigh > fvg.Midline)
		if crossed && fvg.MidlineRespected {
			fvg.MidlineRespected = false
			changed = true
		}
	}
	if fvg.FillPercent > fvg.MaxFillPercent {
		fvg.MaxFillPercent = fvg.FillPercent
		changed = true
	}

	// Status transition, evaluated in order: filled, inverted, partial.
	switch {
	case fvg.FillPercent >= t.cfg.FillThreshold:
		at := c.OpenTime
		fvg.Status = domain.FVGFilled
		fvg.FilledAt = &at
		changed = true
	case fvg.Direction == domain.Bullish && c.Close < fvg.Bottom,
		fvg.Direction == domain.Bearish && c.Close > fvg.Top:
		at := c.OpenTime
		fvg.Status = domain.FVGInverted
		fvg.InvertedAt = &at
		changed = true
	case fvg.FillPercent > 0 && fvg.Status == domain.FVGFresh:
		fvg.Status = domain.FVGPartial
		changed = true
	}
	return changed
}

// relativeVolume compares the candle at idx against the mean volume of the
// window candles preceding it. Returns 1 when no baseline is available.
func relativeVolume(candles []domain.Candle, idx, window int) float64 {
	start := idx - window
	if start < 0 {
		start = 0
	}
	if start == idx {
		return 1.0
	}
	sum := 0.0
	for _, c := range candles[start:idx] {
		sum += c.Volume
	}
	mean := sum / float64(idx-start)
	if mean <= 0 {
		return 1.0
	}
	return candles[idx].Volume / mean
}
