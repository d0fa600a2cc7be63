package structure

import (
	"math"

	"marketStructureBot/internal/domain"
)

// SwingConfig holds configuration for the swing detector.
type SwingConfig struct {
	Lookback     int     // candles required on each side of an extremum
	EqualTolPips float64 // price tolerance for EQH/EQL labels, in pips
	PipSize      float64
}

// SwingDetector finds local price extrema and labels them relative to the
// nearest prior extremum of the same kind.
type SwingDetector struct {
	cfg SwingConfig
}

// NewSwingDetector creates a new swing detector instance.
func NewSwingDetector(cfg SwingConfig) *SwingDetector {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 3
	}
	if cfg.PipSize <= 0 {
		cfg.PipSize = 1.0
	}
	return &SwingDetector{cfg: cfg}
}

// Detect returns all confirmed swing points in the candle window, ordered
// by time. The first and last Lookback candles cannot produce extrema, so
// callers must supply lookback context beyond the window of interest.
// Labels depend only on same-kind swings strictly before each swing; no
// swing is re-labeled retroactively.
func (d *SwingDetector) Detect(candles []domain.Candle) []domain.SwingPoint {
	n := d.cfg.Lookback
	if len(candles) < 2*n+1 {
		return nil
	}

	tol := d.cfg.EqualTolPips * d.cfg.PipSize
	var swings []domain.SwingPoint
	var lastHigh, lastLow *domain.SwingPoint

	for i := n; i < len(candles)-n; i++ {
		c := candles[i]

		if isLocalHigh(candles, i, n) {
			sp := domain.SwingPoint{
				Time:      c.OpenTime,
				Pair:      c.Pair,
				Timeframe: c.Timeframe,
				Price:     c.High,
				Kind:      domain.SwingHigh,
				Label:     labelHigh(c.High, lastHigh, tol),
				Lookback:  n,
				TrueRange: trueRange(candles, i),
			}
			swings = append(swings, sp)
			lastHigh = &swings[len(swings)-1]
		}

		if isLocalLow(candles, i, n) {
			sp := domain.SwingPoint{
				Time:      c.OpenTime,
				Pair:      c.Pair,
				Timeframe: c.Timeframe,
				Price:     c.Low,
				Kind:      domain.SwingLow,
				Label:     labelLow(c.Low, lastLow, tol),
				Lookback:  n,
				TrueRange: trueRange(candles, i),
			}
			swings = append(swings, sp)
			lastLow = &swings[len(swings)-1]
		}
	}

	return swings
}

// isLocalHigh reports whether candle i strictly exceeds the n candles on
// both sides.
func isLocalHigh(candles []domain.Candle, i, n int) bool {
	for j := i - n; j <= i+n; j++ {
		if j == i {
			continue
		}
		if candles[j].High >= candles[i].High {
			return false
		}
	}
	return true
}

func isLocalLow(candles []domain.Candle, i, n int) bool {
	for j := i - n; j <= i+n; j++ {
		if j == i {
			continue
		}
		if candles[j].Low <= candles[i].Low {
			return false
		}
	}
	return true
}

// labelHigh classifies a swing high against the previous swing high. The
// first swing of a kind has no reference and is labeled as a new extreme.
func labelHigh(price float64, prev *domain.SwingPoint, tol float64) domain.SwingLabel {
	if prev == nil {
		return domain.LabelHH
	}
	if math.Abs(price-prev.Price) <= tol {
		return domain.LabelEQH
	}
	if price > prev.Price {
		return domain.LabelHH
	}
	return domain.LabelLH
}

func labelLow(price float64, prev *domain.SwingPoint, tol float64) domain.SwingLabel {
	if prev == nil {
		return domain.LabelLL
	}
	if math.Abs(price-prev.Price) <= tol {
		return domain.LabelEQL
	}
	if price < prev.Price {
		return domain.LabelLL
	}
	return domain.LabelHL
}

// trueRange computes the standard true range at index i: the greatest of
// high-low, |high-prevClose| and |low-prevClose|.
func trueRange(candles []domain.Candle, i int) float64 {
	c := candles[i]
	if i == 0 {
		return c.High - c.Low
	}
	prevClose := candles[i-1].Close
	tr := c.High - c.Low
	tr = math.Max(tr, math.Abs(c.High-prevClose))
	tr = math.Max(tr, math.Abs(c.Low-prevClose))
	return tr
}
