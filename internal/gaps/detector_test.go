package gaps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candlekeep/go-ohlcv-sync/internal/models"
)

func hourlyCandles(start time.Time, count int) []models.Candle {
	candles := make([]models.Candle, 0, count)
	for i := 0; i < count; i++ {
		candles = append(candles, models.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      "1", High: "1", Low: "1", Close: "1", Volume: "0",
		})
	}
	return candles
}

func TestMissingRangesEmptyStorage(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	requested := models.CoverageRange{Start: start, End: start.Add(24 * time.Hour)}

	d := NewDetector(1000)
	missing := d.MissingRanges(requested, nil, models.Timeframe1h)

	require.Len(t, missing, 1)
	assert.Equal(t, requested, missing[0])
}

func TestMissingRangesFullCoverage(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	requested := models.CoverageRange{Start: start, End: start.Add(24 * time.Hour)}

	d := NewDetector(1000)
	missing := d.MissingRanges(requested, hourlyCandles(start, 24), models.Timeframe1h)

	assert.Empty(t, missing)
}

func TestMissingRangesMiddleGap(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	requested := models.CoverageRange{Start: start, End: start.Add(24 * time.Hour)}

	// Hours 0-7 and 16-23 present, 8-15 missing.
	existing := append(hourlyCandles(start, 8), hourlyCandles(start.Add(16*time.Hour), 8)...)

	d := NewDetector(0)
	missing := d.MissingRanges(requested, existing, models.Timeframe1h)

	require.Len(t, missing, 1)
	assert.Equal(t, start.Add(8*time.Hour), missing[0].Start)
	assert.Equal(t, start.Add(16*time.Hour), missing[0].End)
}

func TestMissingRangesEdges(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	requested := models.CoverageRange{Start: start, End: start.Add(10 * time.Hour)}

	// Only hours 3-6 present: missing runs at both edges.
	existing := hourlyCandles(start.Add(3*time.Hour), 4)

	d := NewDetector(0)
	missing := d.MissingRanges(requested, existing, models.Timeframe1h)

	require.Len(t, missing, 2)
	assert.Equal(t, models.CoverageRange{Start: start, End: start.Add(3 * time.Hour)}, missing[0])
	assert.Equal(t, models.CoverageRange{Start: start.Add(7 * time.Hour), End: requested.End}, missing[1])
}

func TestCoalesceMergesAcrossShortPresentSpan(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	requested := models.CoverageRange{Start: start, End: start.Add(20 * time.Hour)}

	// Hours 5-9 present, the rest missing. With a page limit of 10 the five
	// present candles are cheaper to refetch than a second call.
	existing := hourlyCandles(start.Add(5*time.Hour), 5)

	d := NewDetector(10)
	missing := d.MissingRanges(requested, existing, models.Timeframe1h)

	require.Len(t, missing, 1)
	assert.Equal(t, requested, missing[0])
}

func TestCoalesceKeepsRunsSeparatedByFullPage(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	requested := models.CoverageRange{Start: start, End: start.Add(30 * time.Hour)}

	// Hours 5-14 present: ten present candles, exactly one page, so the runs
	// stay separate.
	existing := hourlyCandles(start.Add(5*time.Hour), 10)

	d := NewDetector(10)
	missing := d.MissingRanges(requested, existing, models.Timeframe1h)

	require.Len(t, missing, 2)
	assert.Equal(t, start.Add(5*time.Hour), missing[0].End)
	assert.Equal(t, start.Add(15*time.Hour), missing[1].Start)
}

func TestMissingRangesAlignsGridToSpacing(t *testing.T) {
	// Callers pass arbitrary wall-clock starts; exchange candles open on the
	// epoch grid. The expected grid must follow the candles, not the caller.
	start := time.Date(2024, 3, 1, 13, 47, 12, 0, time.UTC)
	requested := models.CoverageRange{Start: start, End: start.AddDate(0, 0, 3)}

	d := NewDetector(1000)

	// Nothing stored: the single missing range starts at the first aligned
	// candle open after start, not at start itself.
	missing := d.MissingRanges(requested, nil, models.Timeframe1d)
	require.Len(t, missing, 1)
	aligned := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, aligned, missing[0].Start)
	assert.Equal(t, aligned.AddDate(0, 0, 2), missing[0].End)

	// Midnight-aligned candles covering the grid leave nothing missing even
	// though none of them sits on the caller's start instant.
	existing := []models.Candle{
		{Timestamp: aligned, Open: "1", High: "1", Low: "1", Close: "1", Volume: "0"},
		{Timestamp: aligned.AddDate(0, 0, 1), Open: "1", High: "1", Low: "1", Close: "1", Volume: "0"},
	}
	assert.Empty(t, d.MissingRanges(requested, existing, models.Timeframe1d))
}

func TestMissingRangesRangeShorterThanOneCandle(t *testing.T) {
	start := time.Date(2024, 3, 1, 13, 47, 0, 0, time.UTC)
	requested := models.CoverageRange{Start: start, End: start.Add(30 * time.Minute)}

	d := NewDetector(1000)
	assert.Empty(t, d.MissingRanges(requested, nil, models.Timeframe1d))
}

func TestMissingRangesEmptyRequest(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	d := NewDetector(1000)
	missing := d.MissingRanges(models.CoverageRange{Start: start, End: start}, nil, models.Timeframe1h)

	assert.Empty(t, missing)
}

func TestMissingRangesPartialTrailingCandleExcluded(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	// 90 minutes of 1h candles: only the candle at start fits fully.
	requested := models.CoverageRange{Start: start, End: start.Add(90 * time.Minute)}

	d := NewDetector(1000)
	missing := d.MissingRanges(requested, hourlyCandles(start, 1), models.Timeframe1h)

	assert.Empty(t, missing)
}
