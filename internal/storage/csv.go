package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/candlekeep/go-ohlcv-sync/internal/errors"
	"github.com/candlekeep/go-ohlcv-sync/internal/models"
)

var csvHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// CSVSink stores one file per (symbol, timeframe) pair under a data directory,
// named "<symbol>_<timeframe>.csv" with "/" in the symbol replaced by "_".
// Timestamps are written as unix milliseconds so exchange-reported open times
// round-trip exactly. Merges rewrite the file atomically through a temp file.
type CSVSink struct {
	dataDir string
}

// NewCSVSink returns a sink writing under dataDir.
func NewCSVSink(dataDir string) *CSVSink {
	return &CSVSink{dataDir: dataDir}
}

// Initialize implements Sink.
func (s *CSVSink) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return apperrors.NewStorageError("initialize", err)
	}
	return nil
}

// ReadRange implements Sink.
func (s *CSVSink) ReadRange(ctx context.Context, symbol string, timeframe models.Timeframe, r models.CoverageRange) ([]models.Candle, error) {
	all, err := s.readFile(symbol, timeframe)
	if err != nil {
		return nil, apperrors.NewStorageError("read", err)
	}

	var out []models.Candle
	for _, c := range all {
		if r.Contains(c.Timestamp) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Merge implements Sink. The exchange name is not part of the CSV format and
// is ignored.
func (s *CSVSink) Merge(ctx context.Context, symbol string, timeframe models.Timeframe, exchange string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	existing, err := s.readFile(symbol, timeframe)
	if err != nil {
		return apperrors.NewStorageError("merge", err)
	}

	byTime := make(map[int64]models.Candle, len(existing)+len(candles))
	for _, c := range existing {
		byTime[c.Timestamp.UnixMilli()] = c
	}
	for _, c := range candles {
		byTime[c.Timestamp.UnixMilli()] = c
	}

	merged := make([]models.Candle, 0, len(byTime))
	for _, c := range byTime {
		merged = append(merged, c)
	}
	models.SortCandles(merged)

	if err := s.writeFile(symbol, timeframe, merged); err != nil {
		return apperrors.NewStorageError("merge", err)
	}
	return nil
}

// Close implements Sink.
func (s *CSVSink) Close() error {
	return nil
}

func (s *CSVSink) filePath(symbol string, timeframe models.Timeframe) string {
	name := strings.ReplaceAll(symbol, "/", "_") + "_" + string(timeframe) + ".csv"
	return filepath.Join(s.dataDir, name)
}

func (s *CSVSink) readFile(symbol string, timeframe models.Timeframe) ([]models.Candle, error) {
	f, err := os.Open(s.filePath(symbol, timeframe))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.filePath(symbol, timeframe), err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	candles := make([]models.Candle, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != len(csvHeader) {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", i+2, len(csvHeader), len(rec))
		}
		ms, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid timestamp %q: %w", i+2, rec[0], err)
		}
		candles = append(candles, models.Candle{
			Timestamp: time.UnixMilli(ms).UTC(),
			Open:      rec[1],
			High:      rec[2],
			Low:       rec[3],
			Close:     rec[4],
			Volume:    rec[5],
		})
	}
	return candles, nil
}

func (s *CSVSink) writeFile(symbol string, timeframe models.Timeframe, candles []models.Candle) error {
	path := s.filePath(symbol, timeframe)
	tmp, err := os.CreateTemp(s.dataDir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	writer := csv.NewWriter(tmp)
	if err := writer.Write(csvHeader); err != nil {
		tmp.Close()
		return err
	}
	for _, c := range candles {
		row := []string{
			strconv.FormatInt(c.Timestamp.UnixMilli(), 10),
			c.Open, c.High, c.Low, c.Close, c.Volume,
		}
		if err := writer.Write(row); err != nil {
			tmp.Close()
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
