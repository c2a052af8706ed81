package postgres

import (
	"context"
	"time"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/storage/model"
)

type usageRow struct {
	ID          string    `db:"id"`
	KeyID       string    `db:"key_id"`
	ServerID    string    `db:"server_id"`
	ToolName    string    `db:"tool_name"`
	Success     bool      `db:"success"`
	DurationMs  int64     `db:"duration_ms"`
	TokensUsed  int64     `db:"tokens_used"`
	CostCredits float64   `db:"cost_credits"`
	CreatedAt   time.Time `db:"created_at"`
}

// UsageStore persists per-invocation usage rows consumed by the Budget
// Enforcer and admin reporting.
type UsageStore struct{ *BaseStore }

func NewUsageStore(b *BaseStore) *UsageStore { return &UsageStore{b} }

func (s *UsageStore) Create(ctx context.Context, u model.UsageRecord) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO usage_history (id, key_id, server_id, tool_name, success, duration_ms, tokens_used, cost_credits, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.KeyID, u.ServerID, u.ToolName, u.Success, u.DurationMs, u.TokensUsed, u.CostCredits, u.CreatedAt)
	if err != nil {
		return errs.Internal("insert usage record", err)
	}
	return nil
}

func (s *UsageStore) ListByKey(ctx context.Context, keyID string, since time.Time) ([]model.UsageRecord, error) {
	var rows []usageRow
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `SELECT id, key_id, server_id, tool_name, success, duration_ms, tokens_used, cost_credits, created_at FROM usage_history WHERE key_id = $1 AND created_at >= $2 ORDER BY created_at DESC`, keyID, since); err != nil {
		return nil, errs.Internal("list usage records", err)
	}
	out := make([]model.UsageRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.UsageRecord{
			ID: r.ID, KeyID: r.KeyID, ServerID: r.ServerID, ToolName: r.ToolName, Success: r.Success,
			DurationMs: r.DurationMs, TokensUsed: r.TokensUsed, CostCredits: r.CostCredits, CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

func (s *UsageStore) SumCostByKey(ctx context.Context, keyID string, since time.Time) (float64, error) {
	var total float64
	err := s.Querier(ctx).GetContext(ctx, &total, `SELECT COALESCE(SUM(cost_credits), 0) FROM usage_history WHERE key_id = $1 AND created_at >= $2`, keyID, since)
	if err != nil {
		return 0, errs.Internal("sum usage cost", err)
	}
	return total, nil
}

type auditRow struct {
	ID           string    `db:"id"`
	Action       string    `db:"action"`
	KeyID        string    `db:"key_id"`
	TenantID     string    `db:"tenant_id"`
	ResourceType string    `db:"resource_type"`
	ResourceID   string    `db:"resource_id"`
	DurationMs   int64     `db:"duration_ms"`
	Success      bool      `db:"success"`
	Error        string    `db:"error"`
	CreatedAt    time.Time `db:"created_at"`
}

// AuditStore persists the admin audit log (spec §7).
type AuditStore struct{ *BaseStore }

func NewAuditStore(b *BaseStore) *AuditStore { return &AuditStore{b} }

func (s *AuditStore) Create(ctx context.Context, a model.AuditEntry) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO audit_log (id, action, key_id, tenant_id, resource_type, resource_id, duration_ms, success, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.Action, a.KeyID, a.TenantID, a.ResourceType, a.ResourceID, a.DurationMs, a.Success, a.Error, a.CreatedAt)
	if err != nil {
		return errs.Internal("insert audit entry", err)
	}
	return nil
}

func (s *AuditStore) List(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	var rows []auditRow
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `SELECT id, action, key_id, tenant_id, resource_type, resource_id, duration_ms, success, error, created_at FROM audit_log ORDER BY created_at DESC LIMIT $1`, limit); err != nil {
		return nil, errs.Internal("list audit entries", err)
	}
	out := make([]model.AuditEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.AuditEntry{
			ID: r.ID, Action: r.Action, KeyID: r.KeyID, TenantID: r.TenantID,
			ResourceType: r.ResourceType, ResourceID: r.ResourceID, DurationMs: r.DurationMs,
			Success: r.Success, Error: r.Error, CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}
