package postgres

import (
	"context"
	"time"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/storage/model"
)

type tenantRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

type apiKeyRow struct {
	ID         string    `db:"id"`
	TenantID   string    `db:"tenant_id"`
	HashedKey  string    `db:"hashed_key"`
	BcryptHash string    `db:"bcrypt_hash"`
	Label      string    `db:"label"`
	CreatedAt  time.Time `db:"created_at"`
	Revoked    bool      `db:"revoked"`
}

// TenantStore persists Tenants and APIKeys (spec §6 admin surface).
type TenantStore struct{ *BaseStore }

func NewTenantStore(b *BaseStore) *TenantStore { return &TenantStore{b} }

func (s *TenantStore) CreateTenant(ctx context.Context, t model.Tenant) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `INSERT INTO tenants (id, name, created_at) VALUES ($1, $2, $3)`, t.ID, t.Name, t.CreatedAt)
	if err != nil {
		return errs.Internal("insert tenant", err)
	}
	return nil
}

func (s *TenantStore) GetTenant(ctx context.Context, id string) (model.Tenant, error) {
	var r tenantRow
	err := s.Querier(ctx).GetContext(ctx, &r, `SELECT id, name, created_at FROM tenants WHERE id = $1`, id)
	if isNoRows(err) {
		return model.Tenant{}, errs.NotFound("tenant", id)
	}
	if err != nil {
		return model.Tenant{}, errs.Internal("get tenant", err)
	}
	return model.Tenant{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt}, nil
}

func (s *TenantStore) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	var rows []tenantRow
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `SELECT id, name, created_at FROM tenants ORDER BY name`); err != nil {
		return nil, errs.Internal("list tenants", err)
	}
	out := make([]model.Tenant, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Tenant{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt})
	}
	return out, nil
}

func (s *TenantStore) CreateAPIKey(ctx context.Context, k model.APIKey) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO api_keys (id, tenant_id, hashed_key, bcrypt_hash, label, created_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		k.ID, k.TenantID, k.HashedKey, k.BcryptHash, k.Label, k.CreatedAt, k.Revoked)
	if err != nil {
		return errs.Internal("insert api key", err)
	}
	return nil
}

func (s *TenantStore) GetAPIKeyByHash(ctx context.Context, hashedKey string) (model.APIKey, error) {
	var r apiKeyRow
	err := s.Querier(ctx).GetContext(ctx, &r, `SELECT id, tenant_id, hashed_key, bcrypt_hash, label, created_at, revoked FROM api_keys WHERE hashed_key = $1`, hashedKey)
	if isNoRows(err) {
		return model.APIKey{}, errs.Unauthenticated("unknown api key")
	}
	if err != nil {
		return model.APIKey{}, errs.Internal("get api key", err)
	}
	return rowToAPIKey(r), nil
}

func (s *TenantStore) ListAPIKeys(ctx context.Context, tenantID string) ([]model.APIKey, error) {
	var rows []apiKeyRow
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `SELECT id, tenant_id, hashed_key, bcrypt_hash, label, created_at, revoked FROM api_keys WHERE tenant_id = $1 ORDER BY created_at`, tenantID); err != nil {
		return nil, errs.Internal("list api keys", err)
	}
	out := make([]model.APIKey, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToAPIKey(r))
	}
	return out, nil
}

func (s *TenantStore) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.Querier(ctx).ExecContext(ctx, `UPDATE api_keys SET revoked = true WHERE id = $1`, id)
	if err != nil {
		return errs.Internal("revoke api key", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("api_key", id)
	}
	return nil
}

func rowToAPIKey(r apiKeyRow) model.APIKey {
	return model.APIKey{
		ID: r.ID, TenantID: r.TenantID, HashedKey: r.HashedKey, BcryptHash: r.BcryptHash,
		Label: r.Label, CreatedAt: r.CreatedAt, Revoked: r.Revoked,
	}
}
