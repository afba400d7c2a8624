// Package collector orchestrates a sync run: read what is stored, compute the
// missing ranges, page them in from the ranked exchanges, and merge every
// batch immediately so a failure later in the run never discards earlier data.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/candlekeep/go-ohlcv-sync/internal/errors"
	"github.com/candlekeep/go-ohlcv-sync/internal/fetcher"
	"github.com/candlekeep/go-ohlcv-sync/internal/gaps"
	"github.com/candlekeep/go-ohlcv-sync/internal/models"
	"github.com/candlekeep/go-ohlcv-sync/internal/storage"
)

// Orchestrator drives the fetch pipeline for one or more timeframes of a
// trading pair. Timeframes run strictly sequentially and independently.
type Orchestrator struct {
	fetcher     *fetcher.Fetcher
	sink        storage.Sink
	detector    *gaps.Detector
	pageLimit   int
	fillEnabled bool
	logger      *slog.Logger
	now         func() time.Time
}

// New builds an orchestrator. pageLimit caps candles per exchange call; with
// fillEnabled false the stored series is ignored and the whole requested
// range is refetched.
func New(f *fetcher.Fetcher, sink storage.Sink, pageLimit int, fillEnabled bool, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		fetcher:     f,
		sink:        sink,
		detector:    gaps.NewDetector(pageLimit),
		pageLimit:   pageLimit,
		fillEnabled: fillEnabled,
		logger:      logger,
		now:         time.Now,
	}
}

// FetchAndStore brings the stored series for (symbol, timeframe) up to date
// over [start, end). A zero end means now. It returns true when the range is
// covered as far as the exchanges have data; false only when a missing range
// produced no candles and nothing was stored before. Storage failures abort
// the timeframe and are returned as errors.
func (o *Orchestrator) FetchAndStore(ctx context.Context, symbol string, timeframe models.Timeframe, start, end time.Time) (bool, error) {
	if end.IsZero() {
		end = o.now()
	}
	requested := models.CoverageRange{Start: start.UTC(), End: end.UTC()}

	log := o.logger.With(
		"run_id", uuid.New().String(),
		"symbol", symbol,
		"timeframe", timeframe,
	)

	existing, err := o.sink.ReadRange(ctx, symbol, timeframe, requested)
	if err != nil {
		return false, err
	}

	var missing []models.CoverageRange
	if o.fillEnabled {
		missing = o.detector.MissingRanges(requested, existing, timeframe)
	} else {
		// Filling disabled: refetch the whole aligned range regardless of
		// what is stored.
		missing = o.detector.MissingRanges(requested, nil, timeframe)
	}

	if len(missing) == 0 {
		log.Info("series already complete", "range", requested.String())
		return true, nil
	}
	log.Info("starting fetch",
		"range", requested.String(),
		"stored", len(existing),
		"missing_ranges", len(missing))

	merged := 0
	for _, r := range missing {
		n, err := o.fillRange(ctx, log, symbol, timeframe, r)
		if err != nil {
			return false, err
		}
		merged += n
	}

	ok := merged > 0 || len(existing) > 0
	log.Info("fetch finished", "merged", merged, "success", ok)
	return ok, nil
}

// FetchAllTimeframes runs FetchAndStore for each timeframe in order. A
// failure in one timeframe is logged and recorded; the remaining timeframes
// still run. The returned map has one success flag per requested timeframe.
func (o *Orchestrator) FetchAllTimeframes(ctx context.Context, symbol string, timeframes []models.Timeframe, start, end time.Time) (map[models.Timeframe]bool, error) {
	results := make(map[models.Timeframe]bool, len(timeframes))
	for _, tf := range timeframes {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		ok, err := o.FetchAndStore(ctx, symbol, tf, start, end)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return results, err
			}
			o.logger.Error("timeframe failed",
				"symbol", symbol,
				"timeframe", tf,
				"error", err)
			results[tf] = false
			continue
		}
		results[tf] = ok
	}
	return results, nil
}

// fillRange pages one missing range in pageLimit-sized chunks, merging each
// batch as soon as it arrives. Returns the number of candles merged.
func (o *Orchestrator) fillRange(ctx context.Context, log *slog.Logger, symbol string, timeframe models.Timeframe, r models.CoverageRange) (int, error) {
	spacing := timeframe.Duration()
	since := r.Start
	merged := 0

	for since.Before(r.End) {
		remaining := int(r.End.Sub(since) / spacing)
		if remaining <= 0 {
			break
		}
		limit := o.pageLimit
		if remaining < limit {
			limit = remaining
		}

		exchangeID, candles, err := o.fetcher.FetchOHLCV(ctx, symbol, timeframe, since, limit)
		if err != nil {
			if errors.Is(err, apperrors.ErrAllExchangesExhausted) {
				log.Warn("no exchange has data for chunk",
					"since", since.UTC().Format(time.RFC3339),
					"range", r.String())
				break
			}
			return merged, err
		}

		batch := o.validBatch(log, trimToRange(candles, since, r.End))
		if len(batch) > 0 {
			if err := o.sink.Merge(ctx, symbol, timeframe, exchangeID, batch); err != nil {
				return merged, err
			}
			merged += len(batch)
		}

		last := candles[len(candles)-1].Timestamp
		if len(candles) < limit {
			// Short page: the exchange has nothing further in this range.
			break
		}
		next := last.Add(spacing)
		if !next.After(since) {
			break
		}
		since = next
	}
	return merged, nil
}

// validBatch drops candles that fail validation before they reach storage.
// A malformed candle from one exchange must not poison the stored series.
func (o *Orchestrator) validBatch(log *slog.Logger, candles []models.Candle) []models.Candle {
	out := make([]models.Candle, 0, len(candles))
	for _, c := range candles {
		if err := c.Validate(); err != nil {
			log.Warn("dropping invalid candle",
				"timestamp", c.Timestamp.UTC().Format(time.RFC3339),
				"error", err)
			continue
		}
		out = append(out, c)
	}
	return out
}

// trimToRange drops candles outside [since, end). Exchanges may return
// candles past the requested end of a coalesced range.
func trimToRange(candles []models.Candle, since, end time.Time) []models.Candle {
	out := make([]models.Candle, 0, len(candles))
	for _, c := range candles {
		if c.Timestamp.Before(since) || !c.Timestamp.Before(end) {
			continue
		}
		out = append(out, c)
	}
	return out
}
