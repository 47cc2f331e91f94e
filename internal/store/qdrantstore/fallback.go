package qdrantstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3" // driver registration

	memerrors "github.com/memcore-dev/memcore/internal/errors"
	"github.com/memcore-dev/memcore/internal/vectormath"
	"github.com/memcore-dev/memcore/pkg/types"
)

const fallbackOp = "qdrantstore.fallback"
const sampleWindow = 5000

// FallbackStore is a SQLite-backed warm-tier substitute used when Qdrant
// lacks vector search (or is unreachable): it stores each record as a JSON
// blob and answers vector queries with brute-force cosine similarity over a
// sampled window, per §6's "falls back to brute-force cosine over a sampled
// window" carve-out.
type FallbackStore struct {
	db *sql.DB
}

// NewFallback opens (or creates) the SQLite database at path.
func NewFallback(path string) (*FallbackStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, memerrors.Wrap(memerrors.BackendUnavailable, fallbackOp, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`); err != nil {
		return nil, memerrors.Wrap(memerrors.BackendUnavailable, fallbackOp, err)
	}
	return &FallbackStore{db: db}, nil
}

func (f *FallbackStore) Put(ctx context.Context, r *types.Record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return memerrors.Wrap(memerrors.Internal, fallbackOp, err)
	}
	_, err = f.db.ExecContext(ctx,
		`INSERT INTO records (id, payload, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`,
		r.ID, string(raw), r.CreatedAt.UnixMilli())
	if err != nil {
		return memerrors.Wrap(memerrors.BackendUnavailable, fallbackOp, err)
	}
	return nil
}

func (f *FallbackStore) GetByID(ctx context.Context, id string) (*types.Record, error) {
	var payload string
	err := f.db.QueryRowContext(ctx, `SELECT payload FROM records WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, memerrors.NotFoundf(fallbackOp, "record %s not found", id)
	}
	if err != nil {
		return nil, memerrors.Wrap(memerrors.BackendUnavailable, fallbackOp, err)
	}
	var r types.Record
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, memerrors.Wrap(memerrors.Internal, fallbackOp, err)
	}
	return &r, nil
}

func (f *FallbackStore) Delete(ctx context.Context, id string) error {
	res, err := f.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return memerrors.Wrap(memerrors.BackendUnavailable, fallbackOp, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memerrors.NotFoundf(fallbackOp, "record %s not found", id)
	}
	return nil
}

func (f *FallbackStore) ListByFilter(ctx context.Context, filter types.Filter) ([]*types.Record, error) {
	limit := 1000
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	rows, err := f.db.QueryContext(ctx,
		`SELECT payload FROM records ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, memerrors.Wrap(memerrors.BackendUnavailable, fallbackOp, err)
	}
	defer rows.Close()

	var out []*types.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			continue
		}
		var r types.Record
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			continue
		}
		if r.IsTombstoned() && !filter.IncludeTombstoned {
			continue
		}
		if filter.Type != "" && r.Type != filter.Type {
			continue
		}
		if filter.Tag != "" && !r.HasTag(filter.Tag) {
			continue
		}
		if filter.MinImportance > 0 && r.Importance < filter.MinImportance {
			continue
		}
		out = append(out, &r)
	}
	return out, nil
}

func (f *FallbackStore) Count(ctx context.Context) (int, error) {
	var n int
	err := f.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n)
	if err != nil {
		return 0, memerrors.Wrap(memerrors.BackendUnavailable, fallbackOp, err)
	}
	return n, nil
}

func (f *FallbackStore) Capabilities() types.Capabilities {
	return types.Capabilities{
		SupportsVectorSearch: false,
		TypicalLatency:       15 * time.Millisecond,
		Durability:           types.DurabilityDurable,
	}
}

// SearchByVector samples up to sampleWindow most-recent records and ranks
// them by brute-force cosine similarity, since this backend has no native
// vector index.
func (f *FallbackStore) SearchByVector(ctx context.Context, embedding []float64, k int) ([]types.SearchResult, error) {
	rows, err := f.db.QueryContext(ctx,
		`SELECT payload FROM records ORDER BY created_at DESC LIMIT ?`, sampleWindow)
	if err != nil {
		return nil, memerrors.Wrap(memerrors.BackendUnavailable, fallbackOp, err)
	}
	defer rows.Close()

	var results []types.SearchResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			continue
		}
		var r types.Record
		if err := json.Unmarshal([]byte(payload), &r); err != nil || r.IsTombstoned() || len(r.Embedding) == 0 {
			continue
		}
		sim := vectormath.Cosine(embedding, r.Embedding)
		results = append(results, types.SearchResult{
			Record:    &r,
			Relevance: sim,
			Score:     0.6*sim + 0.4*r.Importance,
		})
	}

	for i := 0; i < len(results); i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Score > results[i].Score {
				results[i], results[j] = results[j], results[i]
			}
		}
	}
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (f *FallbackStore) Close() error {
	return f.db.Close()
}
