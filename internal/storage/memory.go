package storage

import (
	"context"
	"sync"

	"github.com/candlekeep/go-ohlcv-sync/internal/models"
)

// MemorySink keeps candles in process memory. It backs engine tests and has
// the same merge semantics as the durable sinks.
type MemorySink struct {
	mu       sync.RWMutex
	series   map[string]map[int64]models.Candle
	mergeErr error
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{series: make(map[string]map[int64]models.Candle)}
}

// FailMergesWith makes every subsequent Merge return err. Test hook.
func (m *MemorySink) FailMergesWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeErr = err
}

func seriesKey(symbol string, timeframe models.Timeframe) string {
	return symbol + "|" + string(timeframe)
}

// Initialize implements Sink.
func (m *MemorySink) Initialize(ctx context.Context) error {
	return nil
}

// ReadRange implements Sink.
func (m *MemorySink) ReadRange(ctx context.Context, symbol string, timeframe models.Timeframe, r models.CoverageRange) ([]models.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byTime := m.series[seriesKey(symbol, timeframe)]
	var out []models.Candle
	for _, c := range byTime {
		if r.Contains(c.Timestamp) {
			out = append(out, c)
		}
	}
	models.SortCandles(out)
	return out, nil
}

// Merge implements Sink.
func (m *MemorySink) Merge(ctx context.Context, symbol string, timeframe models.Timeframe, exchange string, candles []models.Candle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mergeErr != nil {
		return m.mergeErr
	}

	key := seriesKey(symbol, timeframe)
	byTime := m.series[key]
	if byTime == nil {
		byTime = make(map[int64]models.Candle, len(candles))
		m.series[key] = byTime
	}
	for _, c := range candles {
		byTime[c.Timestamp.UnixMilli()] = c
	}
	return nil
}

// Close implements Sink.
func (m *MemorySink) Close() error {
	return nil
}

// Count returns how many candles are stored for a pair and timeframe.
func (m *MemorySink) Count(symbol string, timeframe models.Timeframe) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.series[seriesKey(symbol, timeframe)])
}
