package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"marketStructureBot/internal/domain"
	"marketStructureBot/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	// maxLimit is the largest page the klines endpoint serves per request.
	maxLimit = 1500
)

// Client implements ports.CandleSource using the go-binance library.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
}

// Config holds configuration specific to the Binance adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance candle source adapter. Keys may be empty since
// the klines endpoints are public.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL})

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
	}, nil
}

// intervalFor maps a timeframe to the Binance interval string.
func intervalFor(tf domain.Timeframe) string {
	return string(tf)
}

// FetchCandles retrieves all completed candles for pair/timeframe whose open
// time falls in [from, to), paging through the klines endpoint as needed.
// Results are ascending by open time. Retrying on transient failure is the
// caller's concern.
func (c *Client) FetchCandles(ctx context.Context, pair string, tf domain.Timeframe, from, to time.Time) ([]domain.Candle, error) {
	op := "FetchCandles"
	now := time.Now().UTC()
	var all []domain.Candle
	cursor := from

	for cursor.Before(to) {
		klines, err := c.futuresClient.NewKlinesService().
			Symbol(pair).
			Interval(intervalFor(tf)).
			StartTime(cursor.UnixMilli()).
			EndTime(to.UnixMilli() - 1).
			Limit(maxLimit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		for _, bk := range klines {
			candle, err := translateKline(bk, pair, tf, now)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("translating kline: %w", err), op)
			}
			if !candle.OpenTime.Before(to) {
				continue
			}
			// A range reaching the present includes the still-forming
			// kline; its close is transient and must not be persisted.
			if !candle.IsFinal {
				continue
			}
			all = append(all, candle)
		}
		last := klines[len(klines)-1]
		next := time.UnixMilli(last.CloseTime)
		if !next.After(cursor) || len(klines) < maxLimit {
			break
		}
		cursor = next
	}

	c.logger.Debug(ctx, op+" completed", map[string]interface{}{
		"pair": pair, "timeframe": tf, "from": from, "to": to, "count": len(all),
	})
	return all, nil
}

// Ping checks connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Invalid signature
			mappedErr = ports.ErrAuthenticationFailed
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1120, -1121, -1127: // Parameter/request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2014, -2015: // API-key invalid or lacking permissions
			mappedErr = ports.ErrAuthenticationFailed
		default:
			mappedErr = ports.ErrSourceUnavailable
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s canceled: %w", operation, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrSourceUnavailable, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrSourceUnavailable, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

func translateKline(bk *futures.Kline, pair string, tf domain.Timeframe, now time.Time) (domain.Candle, error) {
	if bk == nil {
		return domain.Candle{}, errors.New("received nil kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return domain.Candle{
		OpenTime:  time.UnixMilli(bk.OpenTime),
		Pair:      pair,
		Timeframe: tf,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
		IsFinal:   !time.UnixMilli(bk.CloseTime).After(now), // final once its close time has passed
	}, nil
}
