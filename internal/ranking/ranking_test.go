package ranking

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOrder(t *testing.T) {
	r := New(NewMemoryStore(), true, nil)

	order := r.Order()
	require.Len(t, order, 10)
	assert.Equal(t, "binance", order[0])
	assert.Equal(t, "mexc", order[9])
}

func TestRecordSuccessMovesToFront(t *testing.T) {
	store := NewMemoryStore()
	r := New(store, true, nil)

	r.RecordSuccess("kucoin")

	order := r.Order()
	assert.Equal(t, "kucoin", order[0])
	// Relative order of all other exchanges is preserved.
	assert.Equal(t, []string{"kucoin", "binance", "coinbase", "okx", "bybit",
		"bitfinex", "kraken", "huobi", "gate", "mexc"}, order)
	assert.Equal(t, 1, store.SaveCount())
}

func TestRecordSuccessFrontIsNoop(t *testing.T) {
	store := NewMemoryStore()
	r := New(store, true, nil)

	r.RecordSuccess("binance")

	assert.Equal(t, "binance", r.Order()[0])
	assert.Equal(t, 0, store.SaveCount())
}

func TestRecordSuccessUnknownExchangeInserted(t *testing.T) {
	r := New(NewMemoryStore(), true, nil)

	r.RecordSuccess("upstart")

	order := r.Order()
	assert.Equal(t, "upstart", order[0])
	assert.Len(t, order, 11)
}

func TestRecordNothingFoundLeavesOrderUnchanged(t *testing.T) {
	store := NewMemoryStore()
	r := New(store, true, nil)
	before := r.Order()

	r.RecordNothingFound()

	assert.Equal(t, before, r.Order())
	assert.Equal(t, 0, store.SaveCount())
}

func TestDynamicSortingDisabled(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save([]string{"mexc", "gate"}))

	r := New(store, false, nil)

	assert.Equal(t, DefaultOrder, r.Order())

	r.RecordSuccess("kraken")
	assert.Equal(t, DefaultOrder, r.Order())
}

func TestPersistFailureKeepsInMemoryOrder(t *testing.T) {
	store := NewMemoryStore()
	r := New(store, true, nil)
	store.FailSavesWith(errors.New("disk full"))

	r.RecordSuccess("okx")

	assert.Equal(t, "okx", r.Order()[0])
}

func TestNormalizeAppendsNewDefaults(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save([]string{"kraken", "binance", "kraken"}))

	r := New(store, true, nil)

	order := r.Order()
	assert.Equal(t, "kraken", order[0])
	assert.Equal(t, "binance", order[1])
	// Dedup plus every default exchange appended.
	assert.Len(t, order, 10)
	assert.Contains(t, order, "mexc")
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "cache"))

	// Missing file is not an error.
	order, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, order)

	require.NoError(t, store.Save([]string{"bybit", "binance"}))

	order, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"bybit", "binance"}, order)
}

func TestRankingSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	first := New(store, true, nil)
	first.RecordSuccess("coinbase")

	second := New(NewFileStore(dir), true, nil)
	assert.Equal(t, "coinbase", second.Order()[0])
}
