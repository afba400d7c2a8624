package fetcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/candlekeep/go-ohlcv-sync/internal/errors"
	"github.com/candlekeep/go-ohlcv-sync/internal/exchange"
	"github.com/candlekeep/go-ohlcv-sync/internal/models"
	"github.com/candlekeep/go-ohlcv-sync/internal/ranking"
)

// scriptedClient returns a per-exchange scripted response and records the
// order of attempts.
type scriptedClient struct {
	candles  map[string][]models.Candle
	errs     map[string]error
	markets  map[string]map[string]exchange.Market
	attempts []string
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{
		candles: make(map[string][]models.Candle),
		errs:    make(map[string]error),
		markets: make(map[string]map[string]exchange.Market),
	}
}

func (c *scriptedClient) ListMarkets(ctx context.Context, exchangeID string) (map[string]exchange.Market, error) {
	c.attempts = append(c.attempts, exchangeID)
	if err := c.errs[exchangeID]; err != nil {
		return nil, err
	}
	return c.markets[exchangeID], nil
}

func (c *scriptedClient) FetchOHLCV(ctx context.Context, exchangeID string, symbol string, tf models.Timeframe, since time.Time, limit int) ([]models.Candle, error) {
	c.attempts = append(c.attempts, exchangeID)
	if err := c.errs[exchangeID]; err != nil {
		return nil, err
	}
	return c.candles[exchangeID], nil
}

func someCandles(n int) []models.Candle {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      "1", High: "1", Low: "1", Close: "1", Volume: "0",
		})
	}
	return out
}

func TestFetchOHLCVFallsThroughToSecondExchange(t *testing.T) {
	rank := ranking.New(ranking.NewMemoryStore(), true, nil)
	client := newScriptedClient()
	client.errs["binance"] = apperrors.ErrExchangeUnavailable
	client.candles["coinbase"] = someCandles(5)

	f := New(client, rank, 0, nil)
	id, candles, err := f.FetchOHLCV(context.Background(), "BTC/USDT", models.Timeframe1h, time.Now(), 100)

	require.NoError(t, err)
	assert.Equal(t, "coinbase", id)
	assert.Len(t, candles, 5)
	assert.Equal(t, []string{"binance", "coinbase"}, client.attempts)
	assert.Equal(t, "coinbase", rank.Order()[0])
}

func TestFetchOHLCVSkipsEmptyPages(t *testing.T) {
	rank := ranking.New(ranking.NewMemoryStore(), true, nil)
	client := newScriptedClient()
	// binance answers but has no candles there; okx has data.
	client.candles["binance"] = nil
	client.errs["coinbase"] = apperrors.ErrMarketNotFound
	client.candles["okx"] = someCandles(2)

	f := New(client, rank, 0, nil)
	id, candles, err := f.FetchOHLCV(context.Background(), "BTC/USDT", models.Timeframe1h, time.Now(), 100)

	require.NoError(t, err)
	assert.Equal(t, "okx", id)
	assert.Len(t, candles, 2)
}

func TestFetchOHLCVExhaustionKeepsRankingUnchanged(t *testing.T) {
	rank := ranking.New(ranking.NewMemoryStore(), true, nil)
	before := rank.Order()

	client := newScriptedClient()
	for _, id := range before {
		client.errs[id] = apperrors.ErrExchangeUnavailable
	}

	f := New(client, rank, 0, nil)
	_, _, err := f.FetchOHLCV(context.Background(), "BTC/USDT", models.Timeframe1h, time.Now(), 100)

	assert.ErrorIs(t, err, apperrors.ErrAllExchangesExhausted)
	assert.Equal(t, before, rank.Order())
	// Fallback completeness: every ranked exchange tried exactly once.
	assert.Equal(t, before, client.attempts)
}

func TestFetchOHLCVRecordsSuccessOnce(t *testing.T) {
	store := ranking.NewMemoryStore()
	rank := ranking.New(store, true, nil)
	client := newScriptedClient()
	client.errs["binance"] = errors.New("HTTP 500")
	client.candles["coinbase"] = someCandles(1)

	f := New(client, rank, 0, nil)
	_, _, err := f.FetchOHLCV(context.Background(), "BTC/USDT", models.Timeframe1h, time.Now(), 100)

	require.NoError(t, err)
	assert.Equal(t, 1, store.SaveCount())
}

func TestFetchMarkets(t *testing.T) {
	rank := ranking.New(ranking.NewMemoryStore(), true, nil)
	client := newScriptedClient()
	client.errs["binance"] = apperrors.ErrExchangeUnavailable
	// coinbase lists the pair but inactive; bybit has it live.
	client.markets["coinbase"] = map[string]exchange.Market{
		"BTC/USDT": {Symbol: "BTC/USDT", Base: "BTC", Quote: "USDT", Active: false},
	}
	client.markets["okx"] = map[string]exchange.Market{}
	client.markets["bybit"] = map[string]exchange.Market{
		"BTC/USDT": {Symbol: "BTC/USDT", Base: "BTC", Quote: "USDT", Active: true},
	}

	f := New(client, rank, 0, nil)
	id, market, err := f.FetchMarkets(context.Background(), "BTC/USDT")

	require.NoError(t, err)
	assert.Equal(t, "bybit", id)
	assert.True(t, market.Active)
	assert.Equal(t, "bybit", rank.Order()[0])
}

func TestFetchMarketsExhaustion(t *testing.T) {
	rank := ranking.New(ranking.NewMemoryStore(), true, nil)
	client := newScriptedClient()

	f := New(client, rank, 0, nil)
	_, _, err := f.FetchMarkets(context.Background(), "NOPE/USDT")

	assert.ErrorIs(t, err, apperrors.ErrAllExchangesExhausted)
}

func TestAttemptDelayHonorsContextCancellation(t *testing.T) {
	rank := ranking.New(ranking.NewMemoryStore(), true, nil)
	client := newScriptedClient()
	for _, id := range rank.Order() {
		client.errs[id] = apperrors.ErrExchangeUnavailable
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(client, rank, time.Hour, nil)
	_, _, err := f.FetchOHLCV(ctx, "BTC/USDT", models.Timeframe1h, time.Now(), 100)

	assert.ErrorIs(t, err, context.Canceled)
	// First attempt runs without delay, cancellation stops the second.
	assert.Len(t, client.attempts, 1)
}
