// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/newsloom/ingestd/internal/ingest"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = ingest.ErrNotFound

// SourceStore implements ingest.SourceStore in memory.
type SourceStore struct {
	mu      sync.RWMutex
	sources map[string]ingest.Source
}

// NewSourceStore constructs a SourceStore.
func NewSourceStore() *SourceStore {
	return &SourceStore{sources: make(map[string]ingest.Source)}
}

// Load fetches a source by ID.
func (s *SourceStore) Load(_ context.Context, id string) (ingest.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[id]
	if !ok {
		return ingest.Source{}, ErrNotFound
	}
	return src, nil
}

// Save upserts a source record.
func (s *SourceStore) Save(_ context.Context, src ingest.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[src.ID] = src
	return nil
}

// List returns all sources, ordered by ID.
func (s *SourceStore) List(_ context.Context) ([]ingest.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ingest.Source, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListDue returns active sources whose backoff window has expired.
func (s *SourceStore) ListDue(_ context.Context, now time.Time) ([]ingest.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ingest.Source
	for _, src := range s.sources {
		if !src.Active() {
			continue
		}
		if src.BackoffUntil.After(now) {
			continue
		}
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
