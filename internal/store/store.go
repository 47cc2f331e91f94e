// Package store defines the abstract memory-store contract (C2, §4.2)
// every tier backend implements, plus the capability hints the core uses
// to route around a backend's missing features instead of failing.
package store

import (
	"context"

	"github.com/memcore-dev/memcore/pkg/types"
)

// Store is the contract a single-tier backend satisfies. Every operation
// is single-record and idempotent by id. Backends do not enforce the
// record invariants in §3.2 — the core does — and may observe temporary
// inconsistency during a tier move (§4.4, §5).
type Store interface {
	Put(ctx context.Context, r *types.Record) error
	GetByID(ctx context.Context, id string) (*types.Record, error)
	Delete(ctx context.Context, id string) error
	ListByFilter(ctx context.Context, filter types.Filter) ([]*types.Record, error)
	Count(ctx context.Context) (int, error)

	// Capabilities reports what this backend can and can't do so the core
	// can degrade gracefully (e.g. brute-force search when a warm backend
	// lacks native vector search).
	Capabilities() types.Capabilities
}

// VectorSearcher is implemented by backends that answer vector queries,
// natively when their Capabilities report SupportsVectorSearch or by a
// brute-force scan (the qdrantstore SQLite fallback reports false).
type VectorSearcher interface {
	SearchByVector(ctx context.Context, embedding []float64, k int) ([]types.SearchResult, error)
}

// TextSearcher is implemented by backends that support keyword/full-text
// search (the cold tier, per §4.3).
type TextSearcher interface {
	SearchByText(ctx context.Context, query string, k int) ([]types.SearchResult, error)
}
