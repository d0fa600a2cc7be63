package domain

import (
	"math"
	"strings"
	"time"
)

// Candle represents a single OHLCV candle for a pair and timeframe.
// A candle is immutable once IsFinal is set; the most recent candle per
// (pair, timeframe) may be overwritten in place while still forming.
type Candle struct {
	OpenTime  time.Time `json:"open_time" db:"open_time"`
	Pair      string    `json:"pair" db:"pair"`
	Timeframe Timeframe `json:"timeframe" db:"timeframe"`
	Open      float64   `json:"open" db:"open"`
	High      float64   `json:"high" db:"high"`
	Low       float64   `json:"low" db:"low"`
	Close     float64   `json:"close" db:"close"`
	Volume    float64   `json:"volume" db:"volume"`
	IsFinal   bool      `json:"is_final" db:"is_final"`
}

// Body returns the absolute open-to-close distance.
func (c Candle) Body() float64 {
	return math.Abs(c.Close - c.Open)
}

// Range returns the high-to-low distance.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// BodyRatio returns body/range, or 0 for a zero-range candle.
func (c Candle) BodyRatio() float64 {
	r := c.Range()
	if r <= 0 {
		return 0
	}
	return c.Body() / r
}

// IsBullish reports whether the candle closed above its open.
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// DefaultPipSize returns the conventional pip size for a pair: 0.01 for
// JPY-quoted forex pairs, 0.0001 for other six-letter forex pairs, and
// 1.0 (one quote unit) for everything else, e.g. crypto symbols.
func DefaultPipSize(pair string) float64 {
	p := strings.ToUpper(pair)
	if len(p) == 6 {
		if strings.HasSuffix(p, "JPY") {
			return 0.01
		}
		return 0.0001
	}
	return 1.0
}
