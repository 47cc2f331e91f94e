// Package pgstore is the cold-tier reference backend: durable append-only
// storage in Postgres with keyword search over a generated tsvector column
// (§6's "durable append-only with keyword search").
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/lib/pq" // driver registration

	"github.com/memcore-dev/memcore/internal/config"
	memerrors "github.com/memcore-dev/memcore/internal/errors"
	"github.com/memcore-dev/memcore/pkg/types"
)

const op = "pgstore"

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	search_vector TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', content)) STORED
);
CREATE INDEX IF NOT EXISTS records_search_idx ON records USING GIN (search_vector);
`

// Store implements store.Store and store.TextSearcher against Postgres.
type Store struct {
	db *sql.DB
}

// New opens a connection pool and ensures the schema exists.
func New(ctx context.Context, cfg config.ColdConfig) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Put(ctx context.Context, r *types.Record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return memerrors.Wrap(memerrors.Internal, op, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (id, content, payload, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET content = excluded.content, payload = excluded.payload`,
		r.ID, r.Content, raw, r.CreatedAt)
	if err != nil {
		return memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*types.Record, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM records WHERE id = $1`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, memerrors.NotFoundf(op, "record %s not found", id)
	}
	if err != nil {
		return nil, memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}
	var r types.Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, memerrors.Wrap(memerrors.Internal, op, err)
	}
	return &r, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = $1`, id)
	if err != nil {
		return memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memerrors.NotFoundf(op, "record %s not found", id)
	}
	return nil
}

func (s *Store) ListByFilter(ctx context.Context, filter types.Filter) ([]*types.Record, error) {
	limit := 1000
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM records ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}
	defer rows.Close()

	var out []*types.Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			continue
		}
		var r types.Record
		if err := json.Unmarshal(raw, &r); err != nil {
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

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}
	return n, nil
}

func (s *Store) Capabilities() types.Capabilities {
	return types.Capabilities{
		SupportsVectorSearch: false,
		TypicalLatency:       40 * time.Millisecond,
		Durability:           types.DurabilityArchival,
	}
}

// SearchByText ranks matches by Postgres's ts_rank over the generated
// tsvector column (§4.3's cold-tier keyword search).
func (s *Store) SearchByText(ctx context.Context, query string, k int) ([]types.SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload, ts_rank(search_vector, plainto_tsquery('english', $1)) AS rank
		FROM records
		WHERE search_vector @@ plainto_tsquery('english', $1)
		ORDER BY rank DESC
		LIMIT $2`, query, k)
	if err != nil {
		return nil, memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}
	defer rows.Close()

	var results []types.SearchResult
	for rows.Next() {
		var raw []byte
		var rank float64
		if err := rows.Scan(&raw, &rank); err != nil {
			continue
		}
		var r types.Record
		if err := json.Unmarshal(raw, &r); err != nil || r.IsTombstoned() {
			continue
		}
		relevance := rank
		if relevance > 1 {
			relevance = 1
		}
		results = append(results, types.SearchResult{
			Record:    &r,
			Relevance: relevance,
			Score:     0.6*relevance + 0.4*r.Importance,
		})
	}
	return results, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
