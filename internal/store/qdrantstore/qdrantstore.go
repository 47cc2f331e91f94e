// Package qdrantstore is the warm-tier reference backend: vector search
// over Qdrant, with payload-encoded record fields alongside the embedding.
package qdrantstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/memcore-dev/memcore/internal/config"
	memerrors "github.com/memcore-dev/memcore/internal/errors"
	"github.com/memcore-dev/memcore/pkg/types"
)

const op = "qdrantstore"
const payloadKey = "record"

// Store implements store.Store and store.VectorSearcher against Qdrant.
type Store struct {
	client         *qdrant.Client
	collectionName string
	embeddingDim   int
}

// New connects to Qdrant and ensures the configured collection exists.
func New(ctx context.Context, cfg config.WarmConfig) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   cfg.QdrantAddr,
		APIKey:                 cfg.QdrantAPIKey,
		UseTLS:                 cfg.UseTLS,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}

	s := &Store{
		client:         client,
		collectionName: cfg.QdrantCollection,
		embeddingDim:   cfg.EmbeddingDim,
	}

	exists, err := client.CollectionExists(ctx, s.collectionName)
	if err != nil {
		return nil, memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}
	if !exists {
		if err := client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collectionName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(cfg.EmbeddingDim),
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			return nil, memerrors.Wrap(memerrors.BackendUnavailable, op, err)
		}
	}

	return s, nil
}

func (s *Store) Put(ctx context.Context, r *types.Record) error {
	if len(r.Embedding) != s.embeddingDim {
		return memerrors.InvalidInputf(op, "embedding dimension %d, want %d", len(r.Embedding), s.embeddingDim)
	}

	raw, err := json.Marshal(r)
	if err != nil {
		return memerrors.Wrap(memerrors.Internal, op, err)
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(r.ID),
		Vectors: qdrant.NewVectors(toFloat32(r.Embedding)...),
		Payload: qdrant.NewValueMap(map[string]any{payloadKey: string(raw)}),
	}

	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collectionName,
		Points:         []*qdrant.PointStruct{point},
	}); err != nil {
		return memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*types.Record, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collectionName,
		Ids:            []*qdrant.PointId{qdrant.NewID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}
	if len(points) == 0 {
		return nil, memerrors.NotFoundf(op, "record %s not found", id)
	}
	return recordFromPayload(points[0].GetPayload())
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collectionName,
		Points:         qdrant.NewPointsSelector(qdrant.NewID(id)),
	}); err != nil {
		return memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}
	return nil
}

func (s *Store) ListByFilter(ctx context.Context, filter types.Filter) ([]*types.Record, error) {
	limit := uint32(1000)
	if filter.Limit > 0 {
		limit = uint32(filter.Limit)
	}

	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collectionName,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}

	var out []*types.Record
	for _, p := range points {
		r, err := recordFromPayload(p.GetPayload())
		if err != nil {
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
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.collectionName)
	if err != nil {
		return 0, memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}
	return int(info.GetPointsCount()), nil
}

func (s *Store) Capabilities() types.Capabilities {
	return types.Capabilities{
		SupportsVectorSearch: true,
		TypicalLatency:       20 * time.Millisecond,
		Durability:           types.DurabilityDurable,
	}
}

// SearchByVector performs native Qdrant vector search (§4.3).
func (s *Store) SearchByVector(ctx context.Context, embedding []float64, k int) ([]types.SearchResult, error) {
	limit := uint64(k)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collectionName,
		Query:          qdrant.NewQuery(toFloat32(embedding)...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}

	results := make([]types.SearchResult, 0, len(points))
	for _, p := range points {
		r, err := recordFromPayload(p.GetPayload())
		if err != nil || r.IsTombstoned() {
			continue
		}
		relevance := float64(p.GetScore())
		results = append(results, types.SearchResult{
			Record:    r,
			Relevance: relevance,
			Score:     0.6*relevance + 0.4*r.Importance,
		})
	}
	return results, nil
}

func recordFromPayload(payload map[string]*qdrant.Value) (*types.Record, error) {
	v, ok := payload[payloadKey]
	if !ok {
		return nil, memerrors.Newf(memerrors.Internal, op, "payload missing %q key", payloadKey)
	}
	var r types.Record
	if err := json.Unmarshal([]byte(v.GetStringValue()), &r); err != nil {
		return nil, fmt.Errorf("decoding record payload: %w", err)
	}
	return &r, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
