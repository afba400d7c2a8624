package models

import (
	"fmt"
	"time"
)

// CoverageRange is a half-open time span [Start, End) aligned to a timeframe's
// candle spacing. Ranges are computed per run and never persisted.
type CoverageRange struct {
	Start time.Time
	End   time.Time
}

// IsEmpty reports whether the range covers no candles.
func (r CoverageRange) IsEmpty() bool {
	return !r.Start.Before(r.End)
}

// Contains reports whether t falls inside the half-open range.
func (r CoverageRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// CandleCount returns the number of candle slots the range spans at the given
// timeframe spacing.
func (r CoverageRange) CandleCount(tf Timeframe) int {
	if r.IsEmpty() {
		return 0
	}
	return int(r.End.Sub(r.Start) / tf.Duration())
}

// String implements fmt.Stringer.
func (r CoverageRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start.UTC().Format(time.RFC3339), r.End.UTC().Format(time.RFC3339))
}
