// Package memstore is an in-memory Store, used as the default backend in
// tests and as a reference implementation of the contract every tier
// backend (hot/warm/cold) must satisfy.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	memerrors "github.com/memcore-dev/memcore/internal/errors"
	"github.com/memcore-dev/memcore/internal/vectormath"
	"github.com/memcore-dev/memcore/pkg/types"
)

const op = "memstore"

// Store is a mutex-guarded map-backed Store, supporting both vector and
// text search so it can stand in for any tier in tests.
type Store struct {
	mu           sync.RWMutex
	records      map[string]*types.Record
	capabilities types.Capabilities
}

// New creates an in-memory store advertising the given capability hints.
func New(capabilities types.Capabilities) *Store {
	return &Store{
		records:      make(map[string]*types.Record),
		capabilities: capabilities,
	}
}

func (s *Store) Put(_ context.Context, r *types.Record) error {
	if r.ID == "" {
		return memerrors.InvalidInputf(op, "record id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = r.Clone()
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*types.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, memerrors.NotFoundf(op, "record %s not found", id)
	}
	return r.Clone(), nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return memerrors.NotFoundf(op, "record %s not found", id)
	}
	delete(s.records, id)
	return nil
}

func (s *Store) ListByFilter(_ context.Context, filter types.Filter) ([]*types.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Record
	for _, r := range s.records {
		if !matches(r, filter) {
			continue
		}
		out = append(out, r.Clone())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matches(r *types.Record, filter types.Filter) bool {
	if r.IsTombstoned() && !filter.IncludeTombstoned {
		return false
	}
	if filter.Type != "" && r.Type != filter.Type {
		return false
	}
	if filter.Tier != "" && r.Tier != filter.Tier {
		return false
	}
	if filter.Tag != "" && !r.HasTag(filter.Tag) {
		return false
	}
	if filter.MinImportance > 0 && r.Importance < filter.MinImportance {
		return false
	}
	return true
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *Store) Capabilities() types.Capabilities {
	return s.capabilities
}

// SearchByVector ranks stored records by 0.6*cosine similarity to embedding
// + 0.4*importance. Used by tests standing in for a vector-search-capable
// backend.
func (s *Store) SearchByVector(_ context.Context, embedding []float64, k int) ([]types.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]types.SearchResult, 0, len(s.records))
	for _, r := range s.records {
		if r.IsTombstoned() || len(r.Embedding) == 0 {
			continue
		}
		sim := vectormath.Cosine(embedding, r.Embedding)
		results = append(results, types.SearchResult{
			Record:    r.Clone(),
			Relevance: sim,
			Score:     0.6*sim + 0.4*r.Importance,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// SearchByText performs a case-insensitive substring match over content, a
// reference text search used where no full-text index is available.
func (s *Store) SearchByText(_ context.Context, query string, k int) ([]types.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)
	results := make([]types.SearchResult, 0)
	for _, r := range s.records {
		if r.IsTombstoned() {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(r.Content), needle) {
			continue
		}
		results = append(results, types.SearchResult{
			Record:    r.Clone(),
			Relevance: 0.7,
			Score:     0.6*0.7 + 0.4*r.Importance,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}
