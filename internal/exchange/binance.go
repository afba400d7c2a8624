package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	apperrors "github.com/candlekeep/go-ohlcv-sync/internal/errors"
	"github.com/candlekeep/go-ohlcv-sync/internal/models"
)

// Binance API error codes that mean the symbol does not exist.
const (
	binanceInvalidSymbol = -1121
	binanceBadSymbol     = -1100
)

// BinanceAdapter serves market data through the official Binance REST client.
// Requests are rate limited and transient failures are retried with
// exponential backoff before the error is surfaced to the fetcher.
type BinanceAdapter struct {
	client     *binance.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	maxRetries uint64
}

// NewBinanceAdapter creates an adapter over the Binance REST API. Market data
// endpoints need no credentials; keys may be empty.
func NewBinanceAdapter(apiKey, secretKey string, logger *slog.Logger) *BinanceAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &BinanceAdapter{
		client: binance.NewClient(apiKey, secretKey),
		// Binance allows 1200 request weight per minute; 10 req/s with a
		// small burst stays well under it.
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
		logger:     logger.With("exchange", "binance"),
		maxRetries: 3,
	}
}

// ID implements Adapter.
func (b *BinanceAdapter) ID() string {
	return "binance"
}

// ListMarkets implements Adapter.
func (b *BinanceAdapter) ListMarkets(ctx context.Context) (map[string]Market, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var info *binance.ExchangeInfo
	op := func() error {
		var err error
		info, err = b.client.NewExchangeInfoService().Do(ctx)
		return b.classify(err)
	}
	if err := b.retry(ctx, op); err != nil {
		return nil, fmt.Errorf("binance: list markets: %w", err)
	}

	markets := make(map[string]Market, len(info.Symbols))
	for _, s := range info.Symbols {
		unified := s.BaseAsset + "/" + s.QuoteAsset
		markets[unified] = Market{
			Symbol: unified,
			Base:   s.BaseAsset,
			Quote:  s.QuoteAsset,
			Active: s.Status == "TRADING",
		}
	}
	return markets, nil
}

// FetchOHLCV implements Adapter. Binance returns klines in ascending order
// with millisecond open times, matching the contract directly.
func (b *BinanceAdapter) FetchOHLCV(ctx context.Context, symbol string, timeframe models.Timeframe, since time.Time, limit int) ([]models.Candle, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var klines []*binance.Kline
	op := func() error {
		var err error
		klines, err = b.client.NewKlinesService().
			Symbol(toBinanceSymbol(symbol)).
			Interval(string(timeframe)).
			StartTime(since.UnixMilli()).
			Limit(limit).
			Do(ctx)
		return b.classify(err)
	}
	if err := b.retry(ctx, op); err != nil {
		return nil, fmt.Errorf("binance: fetch ohlcv %s %s: %w", symbol, timeframe, err)
	}

	candles := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		candles = append(candles, models.Candle{
			Timestamp: time.UnixMilli(k.OpenTime).UTC(),
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
		})
	}
	return candles, nil
}

// classify maps Binance client errors onto the shared taxonomy and marks
// non-retryable failures permanent so the backoff loop stops early.
func (b *BinanceAdapter) classify(err error) error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*common.APIError); ok {
		switch apiErr.Code {
		case binanceInvalidSymbol, binanceBadSymbol:
			return backoff.Permanent(fmt.Errorf("%v: %w", apiErr, apperrors.ErrMarketNotFound))
		}
		if apiErr.Code == -1003 || strings.Contains(strings.ToLower(apiErr.Message), "too many requests") {
			return fmt.Errorf("%v: %w", apiErr, apperrors.ErrExchangeUnavailable)
		}
	}
	if apperrors.IsTransient(err) {
		return err
	}
	return backoff.Permanent(err)
}

func (b *BinanceAdapter) retry(ctx context.Context, op backoff.Operation) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), b.maxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		b.logger.Warn("retrying after transient failure",
			"error", err,
			"wait", wait.String())
	}
	return backoff.RetryNotify(op, policy, notify)
}

// toBinanceSymbol converts unified "BTC/USDT" notation to Binance's "BTCUSDT".
func toBinanceSymbol(symbol string) string {
	return strings.ReplaceAll(strings.ToUpper(symbol), "/", "")
}
