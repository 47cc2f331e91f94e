// Package redisstore is the hot-tier reference backend: TTL-on-write,
// backed by Redis. Put writes every record with the configured default TTL
// (6h when unset). No per-access extension or 24h cap is applied: nothing
// in this module calls Extend or TTL, and the placement engine does not
// read a record's remaining TTL.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/memcore-dev/memcore/internal/config"
	memerrors "github.com/memcore-dev/memcore/internal/errors"
	"github.com/memcore-dev/memcore/pkg/types"
)

const op = "redisstore"
const indexSetKey = "memcore:hot:index"

// Store implements store.Store and store.TextSearcher against Redis: each
// record is a TTL'd string value, with its id tracked in a separate set so
// ListByFilter/Count don't need a KEYS scan.
type Store struct {
	client     *redis.Client
	defaultTTL time.Duration
}

// New creates a hot-tier store against the given Redis address.
func New(cfg config.HotConfig) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	return &Store{client: client, defaultTTL: cfg.DefaultTTL}
}

func key(id string) string { return "memcore:hot:record:" + id }

func (s *Store) Put(ctx context.Context, r *types.Record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return memerrors.Wrap(memerrors.Internal, op, err)
	}

	ttl := s.defaultTTL
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key(r.ID), raw, ttl)
	pipe.SAdd(ctx, indexSetKey, r.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}
	return nil
}

// Extend refreshes a record's TTL without rewriting its payload.
func (s *Store) Extend(ctx context.Context, id string, ttl time.Duration) error {
	ok, err := s.client.Expire(ctx, key(id), ttl).Result()
	if err != nil {
		return memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}
	if !ok {
		return memerrors.NotFoundf(op, "record %s not found", id)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*types.Record, error) {
	raw, err := s.client.Get(ctx, key(id)).Bytes()
	if err == redis.Nil {
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
	pipe := s.client.TxPipeline()
	delCmd := pipe.Del(ctx, key(id))
	pipe.SRem(ctx, indexSetKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}
	if delCmd.Val() == 0 {
		return memerrors.NotFoundf(op, "record %s not found", id)
	}
	return nil
}

func (s *Store) ListByFilter(ctx context.Context, filter types.Filter) ([]*types.Record, error) {
	ids, err := s.client.SMembers(ctx, indexSetKey).Result()
	if err != nil {
		return nil, memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}

	var out []*types.Record
	for _, id := range ids {
		r, err := s.GetByID(ctx, id)
		if memerrors.Is(err, memerrors.NotFound) {
			// TTL expired since SMEMBERS; stale index entry.
			s.client.SRem(ctx, indexSetKey, id)
			continue
		}
		if err != nil {
			return nil, err
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
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, indexSetKey).Result()
	if err != nil {
		return 0, memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}
	return int(n), nil
}

func (s *Store) Capabilities() types.Capabilities {
	return types.Capabilities{
		SupportsVectorSearch: false,
		TypicalLatency:       2 * time.Millisecond,
		Durability:           types.DurabilityEphemeral,
	}
}

// TTL reports the remaining time-to-live for a record.
func (s *Store) TTL(ctx context.Context, id string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, key(id)).Result()
	if err != nil {
		return 0, memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}
	return ttl, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
