// Package memory stores scrape records in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

// ResultStore keeps records in a map and returns pseudo URIs. The last write for a key wins.
type ResultStore struct {
	mu      sync.RWMutex
	records map[string]scrape.Record
	writes  map[string]int
}

// NewResultStore creates a new in-memory result store.
func NewResultStore() *ResultStore {
	return &ResultStore{
		records: make(map[string]scrape.Record),
		writes:  make(map[string]int),
	}
}

// Put stores a copy of record under key and returns a memory:// URI.
func (s *ResultStore) Put(_ context.Context, key string, record scrape.Record) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	if err := record.Validate(); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = record.Clone()
	s.writes[key]++
	return fmt.Sprintf("memory://%s", key), nil
}

// Get returns a copy of the record stored under key.
func (s *ResultStore) Get(_ context.Context, key string) (scrape.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[key]
	if !ok {
		return scrape.Record{}, fmt.Errorf("get %s: %w", key, scrape.ErrNotFound)
	}
	return record.Clone(), nil
}

// Writes reports how many times key has been written.
func (s *ResultStore) Writes(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes[key]
}

// Len reports the number of stored keys.
func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
