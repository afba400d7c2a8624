package ranking

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// rankingFileName is the cache file kept under the configured cache directory.
const rankingFileName = "exchange_ranking.json"

type rankingFile struct {
	Order []string `json:"order"`
}

// FileStore persists the exchange order as a JSON file in a cache directory.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to <cacheDir>/exchange_ranking.json.
func NewFileStore(cacheDir string) *FileStore {
	return &FileStore{path: filepath.Join(cacheDir, rankingFileName)}
}

// Load implements Store. A missing file is not an error; it returns nil.
func (s *FileStore) Load() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ranking cache: %w", err)
	}

	var f rankingFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse ranking cache %s: %w", s.path, err)
	}
	return f.Order, nil
}

// Save implements Store. The file is written via a temp file and rename so a
// crash mid-write never leaves a truncated cache.
func (s *FileStore) Save(order []string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := json.MarshalIndent(rankingFile{Order: order}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ranking: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write ranking cache: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace ranking cache: %w", err)
	}
	return nil
}

// MemoryStore keeps the order in memory. Used by tests and by runs where no
// cache directory is configured.
type MemoryStore struct {
	order   []string
	saveErr error
	saves   int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FailSavesWith makes every subsequent Save return err.
func (s *MemoryStore) FailSavesWith(err error) {
	s.saveErr = err
}

// SaveCount returns how many successful saves have happened.
func (s *MemoryStore) SaveCount() int {
	return s.saves
}

// Load implements Store.
func (s *MemoryStore) Load() ([]string, error) {
	if s.order == nil {
		return nil, nil
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out, nil
}

// Save implements Store.
func (s *MemoryStore) Save(order []string) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.order = make([]string, len(order))
	copy(s.order, order)
	s.saves++
	return nil
}
