package postgres

import (
	"context"
	"time"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/storage/model"
)

type capabilityRow struct {
	Kind          string    `db:"kind"`
	QualifiedName string    `db:"qualified_name"`
	ServerID      string    `db:"server_id"`
	ServerName    string    `db:"server_name"`
	LocalName     string    `db:"local_name"`
	Description   string    `db:"description"`
	InputSchema   []byte    `db:"input_schema"`
	URI           string    `db:"uri"`
	RegisteredAt  time.Time `db:"registered_at"`
}

// CapabilityStore persists the Registry's tool/prompt/resource catalog.
type CapabilityStore struct{ *BaseStore }

func NewCapabilityStore(b *BaseStore) *CapabilityStore { return &CapabilityStore{b} }

func (s *CapabilityStore) Upsert(ctx context.Context, c model.CapabilityEntry) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO capabilities (kind, qualified_name, server_id, server_name, local_name, description, input_schema, uri, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (kind, qualified_name) DO UPDATE SET
			server_name = EXCLUDED.server_name,
			local_name = EXCLUDED.local_name,
			description = EXCLUDED.description,
			input_schema = EXCLUDED.input_schema,
			uri = EXCLUDED.uri,
			registered_at = EXCLUDED.registered_at`,
		c.Kind, c.QualifiedName, c.ServerID, c.ServerName, c.LocalName, c.Description, c.InputSchema, c.URI, c.RegisteredAt)
	if err != nil {
		return errs.Internal("upsert capability", err)
	}
	return nil
}

func (s *CapabilityStore) DeleteByServer(ctx context.Context, serverID string) error {
	if _, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM capabilities WHERE server_id = $1`, serverID); err != nil {
		return errs.Internal("delete capabilities by server", err)
	}
	return nil
}

func (s *CapabilityStore) List(ctx context.Context, kind model.CapabilityKind) ([]model.CapabilityEntry, error) {
	var rows []capabilityRow
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `SELECT kind, qualified_name, server_id, server_name, local_name, description, input_schema, uri, registered_at FROM capabilities WHERE kind = $1 ORDER BY qualified_name`, string(kind)); err != nil {
		return nil, errs.Internal("list capabilities", err)
	}
	out := make([]model.CapabilityEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToCapability(r))
	}
	return out, nil
}

func (s *CapabilityStore) Get(ctx context.Context, kind model.CapabilityKind, qualifiedName string) (model.CapabilityEntry, error) {
	var r capabilityRow
	err := s.Querier(ctx).GetContext(ctx, &r, `SELECT kind, qualified_name, server_id, server_name, local_name, description, input_schema, uri, registered_at FROM capabilities WHERE kind = $1 AND qualified_name = $2`, string(kind), qualifiedName)
	if isNoRows(err) {
		return model.CapabilityEntry{}, errs.NotFound(string(kind), qualifiedName)
	}
	if err != nil {
		return model.CapabilityEntry{}, errs.Internal("get capability", err)
	}
	return rowToCapability(r), nil
}

func rowToCapability(r capabilityRow) model.CapabilityEntry {
	return model.CapabilityEntry{
		Kind:          model.CapabilityKind(r.Kind),
		QualifiedName: r.QualifiedName,
		ServerID:      r.ServerID,
		ServerName:    r.ServerName,
		LocalName:     r.LocalName,
		Description:   r.Description,
		InputSchema:   r.InputSchema,
		URI:           r.URI,
		RegisteredAt:  r.RegisteredAt,
	}
}
