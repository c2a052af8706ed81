package postgres

import (
	"context"
	"time"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/storage/model"
)

type rateLimitRow struct {
	KeyID         string    `db:"key_id"`
	ServerID      string    `db:"server_id"`
	MinuteCount   int64     `db:"minute_count"`
	MinuteResetAt time.Time `db:"minute_reset_at"`
	DayCount      int64     `db:"day_count"`
	DayResetAt    time.Time `db:"day_reset_at"`
}

// RateLimitStore persists the durable two-window fixed-bucket counters
// backing internal/ratelimit (spec §4.4).
type RateLimitStore struct{ *BaseStore }

func NewRateLimitStore(b *BaseStore) *RateLimitStore { return &RateLimitStore{b} }

func (s *RateLimitStore) GetOrInit(ctx context.Context, keyID, serverID string, now time.Time) (model.RateLimitBucket, error) {
	minuteReset := now.Truncate(time.Minute).Add(time.Minute)
	dayReset := now.Truncate(24 * time.Hour).Add(24 * time.Hour)

	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO rate_limit_buckets (key_id, server_id, minute_count, minute_reset_at, day_count, day_reset_at)
		VALUES ($1, $2, 0, $3, 0, $4)
		ON CONFLICT (key_id, server_id) DO NOTHING`,
		keyID, serverID, minuteReset, dayReset)
	if err != nil {
		return model.RateLimitBucket{}, errs.Internal("init rate limit bucket", err)
	}

	return s.get(ctx, keyID, serverID)
}

// Increment rolls any expired window forward to a fresh one anchored at now,
// then atomically increments both counters, in a single round trip.
func (s *RateLimitStore) Increment(ctx context.Context, keyID, serverID string, now time.Time) (model.RateLimitBucket, error) {
	minuteReset := now.Truncate(time.Minute).Add(time.Minute)
	dayReset := now.Truncate(24 * time.Hour).Add(24 * time.Hour)

	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO rate_limit_buckets (key_id, server_id, minute_count, minute_reset_at, day_count, day_reset_at)
		VALUES ($1, $2, 1, $3, 1, $4)
		ON CONFLICT (key_id, server_id) DO UPDATE SET
			minute_count = CASE WHEN rate_limit_buckets.minute_reset_at <= $5 THEN 1 ELSE rate_limit_buckets.minute_count + 1 END,
			minute_reset_at = CASE WHEN rate_limit_buckets.minute_reset_at <= $5 THEN $3 ELSE rate_limit_buckets.minute_reset_at END,
			day_count = CASE WHEN rate_limit_buckets.day_reset_at <= $5 THEN 1 ELSE rate_limit_buckets.day_count + 1 END,
			day_reset_at = CASE WHEN rate_limit_buckets.day_reset_at <= $5 THEN $4 ELSE rate_limit_buckets.day_reset_at END`,
		keyID, serverID, minuteReset, dayReset, now)
	if err != nil {
		return model.RateLimitBucket{}, errs.Internal("increment rate limit bucket", err)
	}

	return s.get(ctx, keyID, serverID)
}

// Release decrements both counters by one, but only if the bucket's reset
// timestamps still match the window the caller charged against; if the
// window has since rolled over there is nothing to compensate.
func (s *RateLimitStore) Release(ctx context.Context, keyID, serverID string, minuteResetAt, dayResetAt time.Time) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		UPDATE rate_limit_buckets SET
			minute_count = CASE WHEN minute_reset_at = $3 AND minute_count > 0 THEN minute_count - 1 ELSE minute_count END,
			day_count = CASE WHEN day_reset_at = $4 AND day_count > 0 THEN day_count - 1 ELSE day_count END
		WHERE key_id = $1 AND server_id = $2`,
		keyID, serverID, minuteResetAt, dayResetAt)
	if err != nil {
		return errs.Internal("release rate limit charge", err)
	}
	return nil
}

// DeleteByServer removes every bucket row for serverID across all keys,
// called when a ServerConfig is deleted (spec §3's rate-limit-state cascade).
func (s *RateLimitStore) DeleteByServer(ctx context.Context, serverID string) error {
	if _, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM rate_limit_buckets WHERE server_id = $1`, serverID); err != nil {
		return errs.Internal("delete rate limit buckets by server", err)
	}
	return nil
}

func (s *RateLimitStore) get(ctx context.Context, keyID, serverID string) (model.RateLimitBucket, error) {
	var r rateLimitRow
	err := s.Querier(ctx).GetContext(ctx, &r, `SELECT key_id, server_id, minute_count, minute_reset_at, day_count, day_reset_at FROM rate_limit_buckets WHERE key_id = $1 AND server_id = $2`, keyID, serverID)
	if err != nil {
		return model.RateLimitBucket{}, errs.Internal("get rate limit bucket", err)
	}
	return model.RateLimitBucket{
		KeyID: r.KeyID, ServerID: r.ServerID,
		MinuteCount: r.MinuteCount, MinuteResetAt: r.MinuteResetAt,
		DayCount: r.DayCount, DayResetAt: r.DayResetAt,
	}, nil
}
