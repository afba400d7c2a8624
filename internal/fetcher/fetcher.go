// Package fetcher walks the exchange ranking until one exchange produces the
// requested data. Failures on one exchange fall through to the next; only
// exhausting the whole ranking surfaces an error, and that error means "no
// data", not "broken".
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/candlekeep/go-ohlcv-sync/internal/errors"
	"github.com/candlekeep/go-ohlcv-sync/internal/exchange"
	"github.com/candlekeep/go-ohlcv-sync/internal/models"
	"github.com/candlekeep/go-ohlcv-sync/internal/ranking"
)

// Fetcher performs ranked-fallback market and candle fetches.
type Fetcher struct {
	client       exchange.MarketClient
	ranking      *ranking.Ranking
	attemptDelay time.Duration
	logger       *slog.Logger
}

// New builds a fetcher. attemptDelay is the pause between consecutive
// exchange attempts within one logical call, giving rate limiters room.
func New(client exchange.MarketClient, rank *ranking.Ranking, attemptDelay time.Duration, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:       client,
		ranking:      rank,
		attemptDelay: attemptDelay,
		logger:       logger,
	}
}

// FetchMarkets returns the first ranked exchange that lists the symbol as an
// active market, together with the market details. The winning exchange moves
// to the front of the ranking.
func (f *Fetcher) FetchMarkets(ctx context.Context, symbol string) (string, exchange.Market, error) {
	order := f.ranking.Order()
	for i, exchangeID := range order {
		if err := f.pause(ctx, i); err != nil {
			return "", exchange.Market{}, err
		}

		markets, err := f.client.ListMarkets(ctx, exchangeID)
		if err != nil {
			f.logAttempt(exchangeID, symbol, "", "list_markets", err)
			continue
		}

		market, ok := markets[symbol]
		if !ok || !market.Active {
			f.logAttempt(exchangeID, symbol, "", "list_markets", apperrors.ErrMarketNotFound)
			continue
		}

		f.logger.Info("market found",
			"exchange", exchangeID,
			"symbol", symbol)
		f.ranking.RecordSuccess(exchangeID)
		return exchangeID, market, nil
	}

	f.ranking.RecordNothingFound()
	return "", exchange.Market{}, fmt.Errorf("markets for %s: %w", symbol, apperrors.ErrAllExchangesExhausted)
}

// FetchOHLCV returns candles from the first ranked exchange that has any for
// the symbol, timeframe, and start time. An exchange returning an empty page
// simply has no data there and the walk continues. The winning exchange moves
// to the front of the ranking; exhausting the ranking returns
// ErrAllExchangesExhausted with the order unchanged.
func (f *Fetcher) FetchOHLCV(ctx context.Context, symbol string, timeframe models.Timeframe, since time.Time, limit int) (string, []models.Candle, error) {
	order := f.ranking.Order()
	for i, exchangeID := range order {
		if err := f.pause(ctx, i); err != nil {
			return "", nil, err
		}

		candles, err := f.client.FetchOHLCV(ctx, exchangeID, symbol, timeframe, since, limit)
		if err != nil {
			f.logAttempt(exchangeID, symbol, string(timeframe), "fetch_ohlcv", err)
			continue
		}
		if len(candles) == 0 {
			f.logger.Debug("exchange attempt returned no data",
				"exchange", exchangeID,
				"symbol", symbol,
				"timeframe", timeframe,
				"since", since.UTC().Format(time.RFC3339))
			continue
		}

		f.logger.Info("candles fetched",
			"exchange", exchangeID,
			"symbol", symbol,
			"timeframe", timeframe,
			"count", len(candles))
		f.ranking.RecordSuccess(exchangeID)
		return exchangeID, candles, nil
	}

	f.ranking.RecordNothingFound()
	return "", nil, fmt.Errorf("ohlcv for %s %s since %s: %w",
		symbol, timeframe, since.UTC().Format(time.RFC3339), apperrors.ErrAllExchangesExhausted)
}

// pause sleeps the attempt delay before every attempt after the first.
func (f *Fetcher) pause(ctx context.Context, attempt int) error {
	if attempt == 0 || f.attemptDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(f.attemptDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// logAttempt records a failed exchange attempt. Transient and terminal
// failures take the same control path; the classification only colors the log.
func (f *Fetcher) logAttempt(exchangeID, symbol, timeframe, op string, err error) {
	kind := "terminal"
	if apperrors.IsTransient(err) {
		kind = "transient"
	}
	attrs := []any{
		"exchange", exchangeID,
		"symbol", symbol,
		"operation", op,
		"classification", kind,
		"error", err,
	}
	if timeframe != "" {
		attrs = append(attrs, "timeframe", timeframe)
	}
	f.logger.Warn("exchange attempt failed", attrs...)
}
