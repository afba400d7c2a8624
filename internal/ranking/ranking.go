// Package ranking maintains the ordered list of exchanges the fetcher tries.
// The order starts from a fixed default, moves an exchange to the front each
// time it serves data, and survives process restarts through a small JSON
// cache file.
package ranking

import (
	"fmt"
	"log/slog"
	"sync"
)

// DefaultOrder is the initial exchange priority, roughly the largest spot
// exchanges by market capitalization.
var DefaultOrder = []string{
	"binance", "coinbase", "okx", "bybit", "kucoin",
	"bitfinex", "kraken", "huobi", "gate", "mexc",
}

// Store persists and recalls an exchange order.
type Store interface {
	// Load returns the persisted order, or nil if none has been saved yet.
	Load() ([]string, error)
	// Save persists the order, replacing any previous one.
	Save(order []string) error
}

// Ranking holds the current exchange order. RecordSuccess moves the winning
// exchange to the front and persists immediately; a persistence failure is
// logged and the in-memory order keeps the update. With dynamic sorting
// disabled the order is pinned to the default and never persisted.
type Ranking struct {
	mu      sync.Mutex
	order   []string
	store   Store
	dynamic bool
	logger  *slog.Logger
}

// New loads the persisted order from store, falling back to DefaultOrder when
// the store is empty or unreadable. When dynamic is false the persisted state
// is ignored and the default order is pinned.
func New(store Store, dynamic bool, logger *slog.Logger) *Ranking {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Ranking{
		order:   append([]string(nil), DefaultOrder...),
		store:   store,
		dynamic: dynamic,
		logger:  logger,
	}
	if !dynamic {
		return r
	}

	saved, err := store.Load()
	if err != nil {
		logger.Warn("failed to load exchange ranking, using default order", "error", err)
		return r
	}
	if len(saved) > 0 {
		r.order = normalize(saved)
	}
	return r
}

// Order returns a copy of the current exchange order.
func (r *Ranking) Order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// RecordSuccess moves exchangeID to the front of the order, keeping the
// relative order of all other exchanges, and persists the result. Unknown ids
// are inserted at the front. No-op when dynamic sorting is disabled.
func (r *Ranking) RecordSuccess(exchangeID string) {
	if !r.dynamic {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.order) > 0 && r.order[0] == exchangeID {
		// Already at the front; nothing to reorder or persist.
		return
	}

	next := make([]string, 0, len(r.order)+1)
	next = append(next, exchangeID)
	for _, id := range r.order {
		if id != exchangeID {
			next = append(next, id)
		}
	}
	r.order = next

	if err := r.store.Save(r.order); err != nil {
		r.logger.Warn("failed to persist exchange ranking",
			"exchange", exchangeID,
			"error", err)
	}
}

// RecordNothingFound is called when a logical fetch exhausted every exchange
// without finding data. The order is deliberately left untouched: an empty
// result says nothing about exchange quality.
func (r *Ranking) RecordNothingFound() {}

// normalize deduplicates a loaded order and appends any default exchanges the
// cache predates, so new defaults still get tried.
func normalize(saved []string) []string {
	seen := make(map[string]bool, len(saved))
	out := make([]string, 0, len(saved))
	for _, id := range saved {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, id := range DefaultOrder {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

// String implements fmt.Stringer for log output.
func (r *Ranking) String() string {
	return fmt.Sprintf("Ranking%v", r.Order())
}
