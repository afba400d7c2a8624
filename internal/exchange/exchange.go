// Package exchange provides access to cryptocurrency exchange market data
// through thin adapters over existing client libraries. A registry maps
// exchange ids to adapters so callers can address exchanges by the ids carried
// in the ranking.
package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/candlekeep/go-ohlcv-sync/internal/errors"
	"github.com/candlekeep/go-ohlcv-sync/internal/models"
)

// Market describes one tradable pair as listed by an exchange.
type Market struct {
	// Symbol in unified "BASE/QUOTE" notation, e.g. "BTC/USDT".
	Symbol string
	// Base and Quote currency codes.
	Base  string
	Quote string
	// Active reports whether the exchange currently allows trading the pair.
	Active bool
}

// Adapter is the per-exchange capability surface. Implementations delegate to
// an existing exchange client library and normalize its responses.
type Adapter interface {
	// ID returns the exchange identifier used in rankings and configuration.
	ID() string

	// ListMarkets returns the markets the exchange lists, keyed by unified
	// symbol.
	ListMarkets(ctx context.Context) (map[string]Market, error)

	// FetchOHLCV returns up to limit candles for the symbol and timeframe,
	// starting at or after since, in ascending timestamp order. A nil or empty
	// slice with a nil error means the exchange has no data in that span.
	FetchOHLCV(ctx context.Context, symbol string, timeframe models.Timeframe, since time.Time, limit int) ([]models.Candle, error)
}

// MarketClient is the surface the fetcher consumes: adapter calls addressed
// by exchange id.
type MarketClient interface {
	ListMarkets(ctx context.Context, exchangeID string) (map[string]Market, error)
	FetchOHLCV(ctx context.Context, exchangeID string, symbol string, timeframe models.Timeframe, since time.Time, limit int) ([]models.Candle, error)
}

// Registry maps exchange ids to adapters and implements MarketClient.
// Lookups for ids with no registered adapter fail with ErrUnknownExchange,
// which the fetcher treats as terminal for that exchange within the call.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry over the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.ID()] = a
	}
	return r
}

// Register adds or replaces the adapter for its exchange id.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.ID()] = a
}

// ListMarkets implements MarketClient.
func (r *Registry) ListMarkets(ctx context.Context, exchangeID string) (map[string]Market, error) {
	a, ok := r.adapters[exchangeID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", exchangeID, errors.ErrUnknownExchange)
	}
	return a.ListMarkets(ctx)
}

// FetchOHLCV implements MarketClient.
func (r *Registry) FetchOHLCV(ctx context.Context, exchangeID string, symbol string, timeframe models.Timeframe, since time.Time, limit int) ([]models.Candle, error) {
	a, ok := r.adapters[exchangeID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", exchangeID, errors.ErrUnknownExchange)
	}
	return a.FetchOHLCV(ctx, symbol, timeframe, since, limit)
}
