package ports

import (
	"context"
	"time"

	"marketStructureBot/internal/domain"
)

// CandleSource fetches OHLCV candles from an upstream quote provider.
// This abstraction decouples the lifecycle jobs from any specific provider.
type CandleSource interface {
	// FetchCandles retrieves candles for the pair and timeframe in
	// [from, to), ordered ascending by open time. The fetch itself does
	// not retry; callers decide how to handle a per-unit failure.
	FetchCandles(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.Candle, error)
}
