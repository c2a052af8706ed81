package workflow

import (
	"context"
	"time"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/storage"
	"github.com/opencore/mcpgate/internal/storage/model"
)

// BudgetEnforcer admits or denies a workflow execution against every
// applicable budget scope (global, tenant, workflow) and records cost
// against them once an execution completes (spec §4.3's pre-execution
// gate and post-execution cost aggregation).
type BudgetEnforcer struct {
	store storage.BudgetStore
}

func NewBudgetEnforcer(store storage.BudgetStore) *BudgetEnforcer {
	return &BudgetEnforcer{store: store}
}

// scopes returns the (scope, scopeID) pairs applicable to an execution,
// in admission-check order: global first, then tenant, then workflow.
func scopes(workflowID, tenantID string) [][2]string {
	pairs := [][2]string{{string(model.BudgetScopeGlobal), ""}}
	if tenantID != "" {
		pairs = append(pairs, [2]string{string(model.BudgetScopeTenant), tenantID})
	}
	pairs = append(pairs, [2]string{string(model.BudgetScopeWorkflow), workflowID})
	return pairs
}

// Admit denies admission if any applicable scope's accrued usage plus
// expectedCost would exceed that scope's configured limit.
func (b *BudgetEnforcer) Admit(ctx context.Context, workflowID, tenantID string, expectedCost float64) error {
	for _, pair := range scopes(workflowID, tenantID) {
		rules, err := b.store.ListRules(ctx, model.BudgetScope(pair[0]), pair[1])
		if err != nil {
			return errs.Internal("list budget rules", err)
		}
		for _, rule := range rules {
			start, end := periodBounds(rule.Period, time.Now())
			usage, err := b.store.GetOrInitUsage(ctx, rule.ID, start, end)
			if err != nil {
				return errs.Internal("get budget usage", err)
			}
			if usage.Used+expectedCost > rule.Limit {
				return errs.BudgetExceeded(string(rule.Scope), int64(rule.Limit), int64(usage.Used))
			}
		}
	}
	return nil
}

// RecordCost charges actualCost against every applicable scope's current
// period usage row.
func (b *BudgetEnforcer) RecordCost(ctx context.Context, workflowID, tenantID string, actualCost float64) error {
	if actualCost == 0 {
		return nil
	}
	for _, pair := range scopes(workflowID, tenantID) {
		rules, err := b.store.ListRules(ctx, model.BudgetScope(pair[0]), pair[1])
		if err != nil {
			return errs.Internal("list budget rules", err)
		}
		for _, rule := range rules {
			start, _ := periodBounds(rule.Period, time.Now())
			if _, err := b.store.AddUsage(ctx, rule.ID, start, actualCost); err != nil {
				return errs.Internal("record budget usage", err)
			}
		}
	}
	return nil
}

// periodBounds computes the [start, end) window containing now for a
// BudgetPeriod, used to key the BudgetUsage row for the current period.
func periodBounds(period model.BudgetPeriod, now time.Time) (time.Time, time.Time) {
	switch period {
	case model.BudgetPeriodDay:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return start, start.Add(24 * time.Hour)
	case model.BudgetPeriodWeek:
		weekday := int(now.Weekday())
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -weekday)
		return start, start.Add(7 * 24 * time.Hour)
	case model.BudgetPeriodMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(0, 1, 0)
	default:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return start, start.Add(24 * time.Hour)
	}
}
