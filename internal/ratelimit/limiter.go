// Package ratelimit implements the per (key, server) two-window fixed-bucket
// rate limiter (spec §4.4), with an in-process token-bucket burst guard
// layered in front of the durable windows so a caller spraying a tight loop
// never reaches the store before being throttled.
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/storage"
	"github.com/opencore/mcpgate/internal/storage/model"
)

// Policy is the per-server limit configuration (spec §3's RateLimitPolicy),
// plus the burst guard's rate, which has no durable analogue.
type Policy struct {
	PerMinute int64
	PerDay    int64

	// BurstPerSecond bounds the in-process token bucket; zero disables the
	// burst guard and leaves throttling entirely to the durable windows.
	BurstPerSecond rate.Limit
	BurstSize      int
}

// Result mirrors spec §4.4's "{remainingPerMinute, remainingPerDay, resetAt}"
// return shape, reported on both success and rejection.
type Result struct {
	Allowed            bool
	RemainingPerMinute int64
	RemainingPerDay    int64
	MinuteResetAt      time.Time
	DayResetAt         time.Time
}

// Limiter charges one (key, server) bucket per call, atomically rolling
// expired windows forward. No lock is held across distinct (key, server)
// pairs: the durable store's per-row UPDATE is the only serialization point.
type Limiter struct {
	store storage.RateLimitStore

	mu     sync.Mutex
	bursts map[string]*rate.Limiter
}

func New(store storage.RateLimitStore) *Limiter {
	return &Limiter{store: store, bursts: make(map[string]*rate.Limiter)}
}

// Allow attempts to charge one unit against keyID/serverID under policy,
// returning the resulting remaining counts whether the charge was accepted
// or rejected, and an error only for a rejection or a storage failure.
func (l *Limiter) Allow(ctx context.Context, keyID, serverID string, policy Policy) (Result, *errs.GatewayError) {
	now := time.Now()

	if policy.BurstPerSecond > 0 {
		if !l.burstFor(keyID, serverID, policy).Allow() {
			bucket, err := l.store.GetOrInit(ctx, keyID, serverID, now)
			if err != nil {
				return Result{}, errs.Internal("rate limit burst guard", err)
			}
			return resultFrom(bucket, policy, false), errs.RateLimited(
				remaining(policy.PerMinute, bucket.MinuteCount), remaining(policy.PerDay, bucket.DayCount),
				bucket.MinuteResetAt, bucket.DayResetAt,
			)
		}
	}

	bucket, err := l.store.Increment(ctx, keyID, serverID, now)
	if err != nil {
		return Result{}, errs.Internal("rate limit increment", err)
	}

	overMinute := policy.PerMinute > 0 && bucket.MinuteCount > policy.PerMinute
	overDay := policy.PerDay > 0 && bucket.DayCount > policy.PerDay
	if !overMinute && !overDay {
		return resultFrom(bucket, policy, true), nil
	}

	if releaseErr := l.store.Release(ctx, keyID, serverID, bucket.MinuteResetAt, bucket.DayResetAt); releaseErr != nil {
		return Result{}, errs.Internal("rate limit release", releaseErr)
	}
	bucket.MinuteCount--
	bucket.DayCount--
	return resultFrom(bucket, policy, false), errs.RateLimited(
		remaining(policy.PerMinute, bucket.MinuteCount), remaining(policy.PerDay, bucket.DayCount),
		bucket.MinuteResetAt, bucket.DayResetAt,
	)
}

func (l *Limiter) burstFor(keyID, serverID string, policy Policy) *rate.Limiter {
	key := keyID + ":" + serverID
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.bursts[key]
	if !ok {
		size := policy.BurstSize
		if size <= 0 {
			size = 1
		}
		b = rate.NewLimiter(policy.BurstPerSecond, size)
		l.bursts[key] = b
	}
	return b
}

// Forget drops the in-process burst guard for a (key, server) pair, e.g.
// when the server is removed.
func (l *Limiter) Forget(keyID, serverID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.bursts, keyID+":"+serverID)
}

// ForgetServer drops every in-process burst guard keyed against serverID,
// across all callers, and deletes the durable bucket rows for it — the
// rate-limit-state half of spec §3's ServerConfig deletion cascade.
func (l *Limiter) ForgetServer(ctx context.Context, serverID string) error {
	l.mu.Lock()
	suffix := ":" + serverID
	for key := range l.bursts {
		if strings.HasSuffix(key, suffix) {
			delete(l.bursts, key)
		}
	}
	l.mu.Unlock()
	return l.store.DeleteByServer(ctx, serverID)
}

func resultFrom(b model.RateLimitBucket, policy Policy, allowed bool) Result {
	return Result{
		Allowed:            allowed,
		RemainingPerMinute: remaining(policy.PerMinute, b.MinuteCount),
		RemainingPerDay:    remaining(policy.PerDay, b.DayCount),
		MinuteResetAt:      b.MinuteResetAt,
		DayResetAt:         b.DayResetAt,
	}
}

// remaining reports cap-count floored at zero; a cap of zero means
// unlimited, reported as -1 so callers can distinguish it from "exhausted".
func remaining(cap, count int64) int64 {
	if cap <= 0 {
		return -1
	}
	return max64(cap-count, 0)
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
