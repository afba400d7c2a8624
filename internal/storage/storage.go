// Package storage provides the persistence sinks for candle data. Every sink
// merges idempotently: re-storing a candle that already exists replaces it
// in place, keyed by (symbol, timeframe, timestamp).
package storage

import (
	"context"

	"github.com/candlekeep/go-ohlcv-sync/internal/models"
)

// Sink persists candle series and serves them back for gap detection.
type Sink interface {
	// Initialize prepares the backend (directories, schema). Safe to call on
	// an already-initialized backend.
	Initialize(ctx context.Context) error

	// ReadRange returns the stored candles for the pair and timeframe whose
	// timestamps fall inside the half-open range, ascending.
	ReadRange(ctx context.Context, symbol string, timeframe models.Timeframe, r models.CoverageRange) ([]models.Candle, error)

	// Merge upserts a batch of candles fetched from the named exchange.
	// Existing candles with the same timestamp are replaced.
	Merge(ctx context.Context, symbol string, timeframe models.Timeframe, exchange string, candles []models.Candle) error

	// Close releases backend resources.
	Close() error
}
