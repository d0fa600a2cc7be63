package domain

import (
	"fmt"
	"time"
)

// Timeframe identifies the candle aggregation interval.
type Timeframe string

const (
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
	TF1w  Timeframe = "1w"
	TF1M  Timeframe = "1M"
)

// HigherTimeframes are the timeframes snapshotted by the current-structure cache.
var HigherTimeframes = []Timeframe{TF1d, TF1w, TF1M}

// ParseTimeframe validates a timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	switch Timeframe(s) {
	case TF5m, TF15m, TF30m, TF1h, TF4h, TF1d, TF1w, TF1M:
		return Timeframe(s), nil
	}
	return "", fmt.Errorf("unknown timeframe %q", s)
}

// Duration returns the expected spacing between consecutive candles.
// Weeks and months are nominal: gap detection compares against a multiple
// of this value, so calendar-length drift does not matter there.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF30m:
		return 30 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	case TF1w:
		return 7 * 24 * time.Hour
	case TF1M:
		return 30 * 24 * time.Hour
	}
	return 0
}

// IsIntraday reports whether the timeframe is below the daily aggregate.
func (tf Timeframe) IsIntraday() bool {
	switch tf {
	case TF5m, TF15m, TF30m, TF1h, TF4h:
		return true
	}
	return false
}
