// Package gaps computes the minimal set of missing candle ranges a fetch run
// has to fill. Ranges are derived per run from stored data and discarded
// afterwards.
package gaps

import (
	"time"

	"github.com/candlekeep/go-ohlcv-sync/internal/models"
)

// Detector walks the expected candle timestamps of a requested range and
// turns runs of missing candles into half-open coverage ranges.
//
// PageLimit controls coalescing: two missing runs separated by a present span
// shorter than one API page are merged into a single range, because refetching
// a few already-stored candles is cheaper than an extra exchange call. A
// PageLimit of zero or less disables coalescing.
type Detector struct {
	PageLimit int
}

// NewDetector returns a detector coalescing runs across present spans shorter
// than pageLimit candles.
func NewDetector(pageLimit int) *Detector {
	return &Detector{PageLimit: pageLimit}
}

// MissingRanges returns the candle spans inside requested that have no stored
// candle, ascending and non-overlapping. Expected timestamps are whole
// multiples of the timeframe spacing on the epoch grid, the same grid
// exchanges report candle opens on (UTC midnight for 1d), starting at the
// first grid point at or after requested.Start and strictly before
// requested.End. An empty result means the range is fully covered and nothing
// needs fetching.
func (d *Detector) MissingRanges(requested models.CoverageRange, existing []models.Candle, timeframe models.Timeframe) []models.CoverageRange {
	if requested.IsEmpty() {
		return nil
	}

	spacing := timeframe.Duration()
	// Align the grid to the timeframe spacing. A caller's start is usually an
	// arbitrary wall-clock instant (now minus N days); exchange candle opens
	// are not.
	gridStart := requested.Start.Truncate(spacing)
	if gridStart.Before(requested.Start) {
		gridStart = gridStart.Add(spacing)
	}
	// A trailing partial candle period is not expected: only candles whose
	// full period fits inside the range count.
	expected := int(requested.End.Sub(gridStart) / spacing)
	if expected <= 0 {
		return nil
	}

	present := make(map[int64]bool, len(existing))
	for _, c := range existing {
		present[c.Timestamp.UnixMilli()] = true
	}

	var (
		ranges   []models.CoverageRange
		runStart time.Time
		inRun    bool
	)
	for i := 0; i < expected; i++ {
		ts := gridStart.Add(time.Duration(i) * spacing)
		if present[ts.UnixMilli()] {
			if inRun {
				ranges = append(ranges, models.CoverageRange{Start: runStart, End: ts})
				inRun = false
			}
			continue
		}
		if !inRun {
			runStart = ts
			inRun = true
		}
	}
	if inRun {
		ranges = append(ranges, models.CoverageRange{
			Start: runStart,
			End:   gridStart.Add(time.Duration(expected) * spacing),
		})
	}

	return d.coalesce(ranges, timeframe)
}

// coalesce merges adjacent missing runs when the present span between them is
// shorter than one API page.
func (d *Detector) coalesce(ranges []models.CoverageRange, timeframe models.Timeframe) []models.CoverageRange {
	if d.PageLimit <= 0 || len(ranges) < 2 {
		return ranges
	}

	threshold := time.Duration(d.PageLimit) * timeframe.Duration()
	merged := []models.CoverageRange{ranges[0]}
	for _, r := range ranges[1:] {
		last := &merged[len(merged)-1]
		if r.Start.Sub(last.End) < threshold {
			last.End = r.End
			continue
		}
		merged = append(merged, r)
	}
	return merged
}
