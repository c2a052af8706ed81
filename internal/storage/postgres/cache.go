package postgres

import (
	"context"
	"time"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/storage/model"
)

type cacheRow struct {
	Key       string    `db:"key"`
	Kind      string    `db:"kind"`
	ServerID  string    `db:"server_id"`
	Name      string    `db:"name"`
	ParamHash string    `db:"param_hash"`
	Value     []byte    `db:"value"`
	ExpiresAt time.Time `db:"expires_at"`
	HitCount  int64     `db:"hit_count"`
	LastHitAt time.Time `db:"last_hit_at"`
	CreatedAt time.Time `db:"created_at"`
}

// CacheStore persists the durable tier of the Response Cache (spec §4.4).
type CacheStore struct{ *BaseStore }

func NewCacheStore(b *BaseStore) *CacheStore { return &CacheStore{b} }

func (s *CacheStore) Get(ctx context.Context, key string, now time.Time) (model.CacheEntry, bool, error) {
	var r cacheRow
	err := s.Querier(ctx).GetContext(ctx, &r, `SELECT key, kind, server_id, name, param_hash, value, expires_at, hit_count, last_hit_at, created_at FROM response_cache WHERE key = $1 AND expires_at > $2`, key, now)
	if isNoRows(err) {
		return model.CacheEntry{}, false, nil
	}
	if err != nil {
		return model.CacheEntry{}, false, errs.Internal("get cache entry", err)
	}
	return model.CacheEntry{
		Key: r.Key, Kind: model.CapabilityKind(r.Kind), ServerID: r.ServerID, Name: r.Name,
		ParamHash: r.ParamHash, Value: r.Value, ExpiresAt: r.ExpiresAt,
		HitCount: r.HitCount, LastHitAt: r.LastHitAt, CreatedAt: r.CreatedAt,
	}, true, nil
}

func (s *CacheStore) Put(ctx context.Context, e model.CacheEntry) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO response_cache (key, kind, server_id, name, param_hash, value, expires_at, hit_count, last_hit_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $8)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at,
			hit_count = 0`,
		e.Key, string(e.Kind), e.ServerID, e.Name, e.ParamHash, e.Value, e.ExpiresAt, e.CreatedAt)
	if err != nil {
		return errs.Internal("put cache entry", err)
	}
	return nil
}

func (s *CacheStore) RecordHit(ctx context.Context, key string, at time.Time) error {
	if _, err := s.Querier(ctx).ExecContext(ctx, `UPDATE response_cache SET hit_count = hit_count + 1, last_hit_at = $2 WHERE key = $1`, key, at); err != nil {
		return errs.Internal("record cache hit", err)
	}
	return nil
}

func (s *CacheStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM response_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, errs.Internal("delete expired cache entries", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *CacheStore) InvalidateByServer(ctx context.Context, serverID string) error {
	if _, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM response_cache WHERE server_id = $1`, serverID); err != nil {
		return errs.Internal("invalidate cache by server", err)
	}
	return nil
}

func (s *CacheStore) InvalidateAll(ctx context.Context) error {
	if _, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM response_cache`); err != nil {
		return errs.Internal("invalidate all cache entries", err)
	}
	return nil
}
