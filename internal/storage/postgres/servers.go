package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/storage/model"
)

type serverRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Transport []byte    `db:"transport"`
	Auth      []byte    `db:"auth"`
	Health    []byte    `db:"health"`
	RateLimit []byte    `db:"rate_limit"`
	Tags      []byte    `db:"tags"`
	Category  string    `db:"category"`
	Enabled   bool      `db:"enabled"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ServerStore persists ServerConfig rows under the "servers" table.
type ServerStore struct{ *BaseStore }

func NewServerStore(b *BaseStore) *ServerStore { return &ServerStore{b} }

func (s *ServerStore) Create(ctx context.Context, c model.ServerConfig) error {
	transport, err := jsonCol(c.Transport)
	if err != nil {
		return errs.Internal("marshal transport", err)
	}
	auth, err := jsonCol(c.Auth)
	if err != nil {
		return errs.Internal("marshal auth", err)
	}
	health, err := jsonCol(c.Health)
	if err != nil {
		return errs.Internal("marshal health", err)
	}
	rl, err := jsonCol(c.RateLimit)
	if err != nil {
		return errs.Internal("marshal rate limit", err)
	}
	tags, err := jsonCol(c.Tags)
	if err != nil {
		return errs.Internal("marshal tags", err)
	}

	_, err = s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO servers (id, name, transport, auth, health, rate_limit, tags, category, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.Name, transport, auth, health, rl, tags, c.Category, c.Enabled, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return errs.Internal("insert server", err)
	}
	return nil
}

func (s *ServerStore) Get(ctx context.Context, id string) (model.ServerConfig, error) {
	var row serverRow
	err := s.Querier(ctx).GetContext(ctx, &row, `SELECT id, name, transport, auth, health, rate_limit, tags, category, enabled, created_at, updated_at FROM servers WHERE id = $1`, id)
	if isNoRows(err) {
		return model.ServerConfig{}, errs.NotFound("server", id)
	}
	if err != nil {
		return model.ServerConfig{}, errs.Internal("get server", err)
	}
	return rowToServer(row)
}

func (s *ServerStore) List(ctx context.Context) ([]model.ServerConfig, error) {
	var rows []serverRow
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `SELECT id, name, transport, auth, health, rate_limit, tags, category, enabled, created_at, updated_at FROM servers ORDER BY name`); err != nil {
		return nil, errs.Internal("list servers", err)
	}
	out := make([]model.ServerConfig, 0, len(rows))
	for _, r := range rows {
		c, err := rowToServer(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *ServerStore) Update(ctx context.Context, c model.ServerConfig) error {
	transport, _ := jsonCol(c.Transport)
	auth, _ := jsonCol(c.Auth)
	health, _ := jsonCol(c.Health)
	rl, _ := jsonCol(c.RateLimit)
	tags, _ := jsonCol(c.Tags)

	res, err := s.Querier(ctx).ExecContext(ctx, `
		UPDATE servers SET name=$2, transport=$3, auth=$4, health=$5, rate_limit=$6, tags=$7, category=$8, enabled=$9, updated_at=$10
		WHERE id=$1`,
		c.ID, c.Name, transport, auth, health, rl, tags, c.Category, c.Enabled, c.UpdatedAt)
	if err != nil {
		return errs.Internal("update server", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("server", c.ID)
	}
	return nil
}

func (s *ServerStore) Delete(ctx context.Context, id string) error {
	res, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM servers WHERE id = $1`, id)
	if err != nil {
		return errs.Internal("delete server", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("server", id)
	}
	return nil
}

func rowToServer(r serverRow) (model.ServerConfig, error) {
	var c model.ServerConfig
	c.ID, c.Name, c.Category, c.Enabled = r.ID, r.Name, r.Category, r.Enabled
	c.CreatedAt, c.UpdatedAt = r.CreatedAt, r.UpdatedAt
	if err := unjsonCol(r.Transport, &c.Transport); err != nil {
		return c, errs.Internal(fmt.Sprintf("unmarshal transport for %s", r.ID), err)
	}
	if err := unjsonCol(r.Auth, &c.Auth); err != nil {
		return c, errs.Internal(fmt.Sprintf("unmarshal auth for %s", r.ID), err)
	}
	if err := unjsonCol(r.Health, &c.Health); err != nil {
		return c, errs.Internal(fmt.Sprintf("unmarshal health for %s", r.ID), err)
	}
	if err := unjsonCol(r.RateLimit, &c.RateLimit); err != nil {
		return c, errs.Internal(fmt.Sprintf("unmarshal rate limit for %s", r.ID), err)
	}
	if err := unjsonCol(r.Tags, &c.Tags); err != nil {
		return c, errs.Internal(fmt.Sprintf("unmarshal tags for %s", r.ID), err)
	}
	return c, nil
}
