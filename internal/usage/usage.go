// Package usage implements reporting over the usage_history table (spec
// §6's usage history surface, supplemented per SPEC_FULL.md §12). The
// Router and Workflow Engine write UsageRecords directly through
// storage.UsageStore as calls happen; this package is the read side used
// by admin reporting endpoints and by the Budget Enforcer's cost lookups.
package usage

import (
	"context"
	"time"

	"github.com/opencore/mcpgate/internal/storage"
	"github.com/opencore/mcpgate/internal/storage/model"
)

// Reporter answers usage-history queries for a given API key.
type Reporter struct {
	store storage.UsageStore
}

func New(store storage.UsageStore) *Reporter {
	return &Reporter{store: store}
}

// Summary aggregates a key's usage over a window.
type Summary struct {
	KeyID        string
	Since        time.Time
	CallCount    int
	SuccessCount int
	FailureCount int
	TotalTokens  int64
	TotalCost    float64
}

// History returns the raw per-invocation rows for a key since a cutoff.
func (r *Reporter) History(ctx context.Context, keyID string, since time.Time) ([]model.UsageRecord, error) {
	return r.store.ListByKey(ctx, keyID, since)
}

// Summarize aggregates History's rows into call counts and totals the way
// an admin dashboard or a per-key budget report needs.
func (r *Reporter) Summarize(ctx context.Context, keyID string, since time.Time) (Summary, error) {
	records, err := r.store.ListByKey(ctx, keyID, since)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{KeyID: keyID, Since: since}
	for _, rec := range records {
		s.CallCount++
		if rec.Success {
			s.SuccessCount++
		} else {
			s.FailureCount++
		}
		s.TotalTokens += rec.TokensUsed
		s.TotalCost += rec.CostCredits
	}
	return s, nil
}

// CostSince is a thin pass-through to the store's pre-aggregated sum,
// used where only the total matters and materializing every row would
// be wasteful (e.g. a budget check on the hot path).
func (r *Reporter) CostSince(ctx context.Context, keyID string, since time.Time) (float64, error) {
	return r.store.SumCostByKey(ctx, keyID, since)
}
