package postgres

import (
	"context"
	"time"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/storage/model"
)

type budgetRuleRow struct {
	ID      string  `db:"id"`
	Scope   string  `db:"scope"`
	ScopeID string  `db:"scope_id"`
	Limit   float64 `db:"limit_credits"`
	Period  string  `db:"period"`
}

type budgetUsageRow struct {
	RuleID      string    `db:"rule_id"`
	PeriodStart time.Time `db:"period_start"`
	PeriodEnd   time.Time `db:"period_end"`
	Used        float64   `db:"used"`
}

// BudgetStore persists BudgetRule configuration and accrued BudgetUsage.
type BudgetStore struct{ *BaseStore }

func NewBudgetStore(b *BaseStore) *BudgetStore { return &BudgetStore{b} }

func (s *BudgetStore) CreateRule(ctx context.Context, r model.BudgetRule) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO budget_rules (id, scope, scope_id, limit_credits, period)
		VALUES ($1, $2, $3, $4, $5)`,
		r.ID, string(r.Scope), r.ScopeID, r.Limit, string(r.Period))
	if err != nil {
		return errs.Internal("insert budget rule", err)
	}
	return nil
}

func (s *BudgetStore) GetRule(ctx context.Context, id string) (model.BudgetRule, error) {
	var r budgetRuleRow
	err := s.Querier(ctx).GetContext(ctx, &r, `SELECT id, scope, scope_id, limit_credits, period FROM budget_rules WHERE id = $1`, id)
	if isNoRows(err) {
		return model.BudgetRule{}, errs.NotFound("budget_rule", id)
	}
	if err != nil {
		return model.BudgetRule{}, errs.Internal("get budget rule", err)
	}
	return rowToBudgetRule(r), nil
}

func (s *BudgetStore) ListRules(ctx context.Context, scope model.BudgetScope, scopeID string) ([]model.BudgetRule, error) {
	var rows []budgetRuleRow
	var err error
	if scope == "" {
		err = s.Querier(ctx).SelectContext(ctx, &rows, `SELECT id, scope, scope_id, limit_credits, period FROM budget_rules ORDER BY id`)
	} else {
		err = s.Querier(ctx).SelectContext(ctx, &rows, `SELECT id, scope, scope_id, limit_credits, period FROM budget_rules WHERE scope = $1 AND scope_id = $2 ORDER BY id`, string(scope), scopeID)
	}
	if err != nil {
		return nil, errs.Internal("list budget rules", err)
	}
	out := make([]model.BudgetRule, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToBudgetRule(r))
	}
	return out, nil
}

func (s *BudgetStore) DeleteRule(ctx context.Context, id string) error {
	res, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM budget_rules WHERE id = $1`, id)
	if err != nil {
		return errs.Internal("delete budget rule", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("budget_rule", id)
	}
	return nil
}

func (s *BudgetStore) GetOrInitUsage(ctx context.Context, ruleID string, periodStart, periodEnd time.Time) (model.BudgetUsage, error) {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO budget_usage (rule_id, period_start, period_end, used)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (rule_id, period_start) DO NOTHING`,
		ruleID, periodStart, periodEnd)
	if err != nil {
		return model.BudgetUsage{}, errs.Internal("init budget usage", err)
	}
	return s.getUsage(ctx, ruleID, periodStart)
}

func (s *BudgetStore) AddUsage(ctx context.Context, ruleID string, periodStart time.Time, delta float64) (model.BudgetUsage, error) {
	_, err := s.Querier(ctx).ExecContext(ctx, `UPDATE budget_usage SET used = used + $3 WHERE rule_id = $1 AND period_start = $2`, ruleID, periodStart, delta)
	if err != nil {
		return model.BudgetUsage{}, errs.Internal("add budget usage", err)
	}
	return s.getUsage(ctx, ruleID, periodStart)
}

func (s *BudgetStore) DeleteUsageOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM budget_usage WHERE period_end < $1`, cutoff)
	if err != nil {
		return 0, errs.Internal("delete old budget usage", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *BudgetStore) getUsage(ctx context.Context, ruleID string, periodStart time.Time) (model.BudgetUsage, error) {
	var r budgetUsageRow
	err := s.Querier(ctx).GetContext(ctx, &r, `SELECT rule_id, period_start, period_end, used FROM budget_usage WHERE rule_id = $1 AND period_start = $2`, ruleID, periodStart)
	if err != nil {
		return model.BudgetUsage{}, errs.Internal("get budget usage", err)
	}
	return model.BudgetUsage{RuleID: r.RuleID, PeriodStart: r.PeriodStart, PeriodEnd: r.PeriodEnd, Used: r.Used}, nil
}

func rowToBudgetRule(r budgetRuleRow) model.BudgetRule {
	return model.BudgetRule{ID: r.ID, Scope: model.BudgetScope(r.Scope), ScopeID: r.ScopeID, Limit: r.Limit, Period: model.BudgetPeriod(r.Period)}
}
