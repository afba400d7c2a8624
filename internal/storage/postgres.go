package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/candlekeep/go-ohlcv-sync/internal/errors"
	"github.com/candlekeep/go-ohlcv-sync/internal/models"
)

const createOHLCVTable = `
CREATE TABLE IF NOT EXISTS ohlcv_data (
	symbol    TEXT        NOT NULL,
	timeframe TEXT        NOT NULL,
	exchange  TEXT        NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	open      NUMERIC     NOT NULL,
	high      NUMERIC     NOT NULL,
	low       NUMERIC     NOT NULL,
	close     NUMERIC     NOT NULL,
	volume    NUMERIC     NOT NULL,
	PRIMARY KEY (symbol, timeframe, timestamp)
)`

const upsertCandle = `
INSERT INTO ohlcv_data (symbol, timeframe, exchange, timestamp, open, high, low, close, volume)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (symbol, timeframe, timestamp)
DO UPDATE SET exchange = EXCLUDED.exchange,
              open = EXCLUDED.open,
              high = EXCLUDED.high,
              low = EXCLUDED.low,
              close = EXCLUDED.close,
              volume = EXCLUDED.volume`

const selectRange = `
SELECT timestamp, open::text, high::text, low::text, close::text, volume::text
FROM ohlcv_data
WHERE symbol = $1 AND timeframe = $2 AND timestamp >= $3 AND timestamp < $4
ORDER BY timestamp`

// PostgresSink stores candles in the ohlcv_data table, one row per
// (symbol, timeframe, timestamp), upserting on conflict. Prices are NUMERIC
// columns read back as text so decimal precision survives the round trip.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects a pool to the given DSN.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, apperrors.NewStorageError("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.NewStorageError("connect", err)
	}
	return &PostgresSink{pool: pool}, nil
}

// Initialize implements Sink. Creates the ohlcv_data table when absent.
func (s *PostgresSink) Initialize(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createOHLCVTable); err != nil {
		return apperrors.NewStorageError("initialize", err)
	}
	return nil
}

// ReadRange implements Sink.
func (s *PostgresSink) ReadRange(ctx context.Context, symbol string, timeframe models.Timeframe, r models.CoverageRange) ([]models.Candle, error) {
	rows, err := s.pool.Query(ctx, selectRange, symbol, string(timeframe), r.Start, r.End)
	if err != nil {
		return nil, apperrors.NewStorageError("read", err)
	}
	defer rows.Close()

	var out []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, apperrors.NewStorageError("read", err)
		}
		c.Timestamp = c.Timestamp.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("read", err)
	}
	return out, nil
}

// Merge implements Sink. The batch is written in one pgx batch round trip.
func (s *PostgresSink) Merge(ctx context.Context, symbol string, timeframe models.Timeframe, exchange string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range candles {
		batch.Queue(upsertCandle,
			symbol, string(timeframe), exchange, c.Timestamp,
			c.Open, c.High, c.Low, c.Close, c.Volume)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range candles {
		if _, err := results.Exec(); err != nil {
			return apperrors.NewStorageError("merge", fmt.Errorf("upsert %s %s: %w", symbol, timeframe, err))
		}
	}
	return nil
}

// Close implements Sink.
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
