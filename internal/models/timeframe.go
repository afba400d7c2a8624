package models

import (
	"fmt"
	"time"
)

// Timeframe identifies a candle interval using the exchange-standard notation
// (for example "5m" or "1d").
type Timeframe string

// Supported timeframes, ordered from shortest to longest.
const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe8h  Timeframe = "8h"
	Timeframe12h Timeframe = "12h"
	Timeframe1d  Timeframe = "1d"
)

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe30m: 30 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe8h:  8 * time.Hour,
	Timeframe12h: 12 * time.Hour,
	Timeframe1d:  24 * time.Hour,
}

var allTimeframes = []Timeframe{
	Timeframe1m, Timeframe5m, Timeframe15m, Timeframe30m,
	Timeframe1h, Timeframe4h, Timeframe8h, Timeframe12h, Timeframe1d,
}

// AllTimeframes returns every supported timeframe, shortest first.
func AllTimeframes() []Timeframe {
	out := make([]Timeframe, len(allTimeframes))
	copy(out, allTimeframes)
	return out
}

// ParseTimeframe validates a timeframe string and returns its typed form.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("unsupported timeframe: %q", s)
	}
	return tf, nil
}

// Duration returns the candle spacing for the timeframe. It panics on an
// unknown timeframe; construct values through ParseTimeframe or the constants.
func (tf Timeframe) Duration() time.Duration {
	d, ok := timeframeDurations[tf]
	if !ok {
		panic(fmt.Sprintf("unknown timeframe: %q", string(tf)))
	}
	return d
}

// Valid reports whether the timeframe is one of the supported intervals.
func (tf Timeframe) Valid() bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// String implements fmt.Stringer.
func (tf Timeframe) String() string {
	return string(tf)
}
