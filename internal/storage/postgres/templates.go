package postgres

import (
	"context"
	"time"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/storage/model"
)

type serverTemplateRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Defaults    []byte    `db:"defaults"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type workflowTemplateRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Defaults    []byte    `db:"defaults"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// TemplateStore persists ServerTemplates and WorkflowTemplates (spec §6's
// template catalog).
type TemplateStore struct{ *BaseStore }

func NewTemplateStore(b *BaseStore) *TemplateStore { return &TemplateStore{b} }

func (s *TemplateStore) CreateServerTemplate(ctx context.Context, t model.ServerTemplate) error {
	defaults, err := jsonCol(t.Defaults)
	if err != nil {
		return errs.Internal("marshal server template defaults", err)
	}
	_, err = s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO server_templates (id, name, description, defaults, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Name, t.Description, defaults, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return errs.Internal("insert server template", err)
	}
	return nil
}

func (s *TemplateStore) GetServerTemplate(ctx context.Context, id string) (model.ServerTemplate, error) {
	var r serverTemplateRow
	err := s.Querier(ctx).GetContext(ctx, &r, `SELECT id, name, description, defaults, created_at, updated_at FROM server_templates WHERE id = $1`, id)
	if isNoRows(err) {
		return model.ServerTemplate{}, errs.NotFound("server_template", id)
	}
	if err != nil {
		return model.ServerTemplate{}, errs.Internal("get server template", err)
	}
	return rowToServerTemplate(r)
}

func (s *TemplateStore) ListServerTemplates(ctx context.Context) ([]model.ServerTemplate, error) {
	var rows []serverTemplateRow
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `SELECT id, name, description, defaults, created_at, updated_at FROM server_templates ORDER BY name`); err != nil {
		return nil, errs.Internal("list server templates", err)
	}
	out := make([]model.ServerTemplate, 0, len(rows))
	for _, r := range rows {
		t, err := rowToServerTemplate(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *TemplateStore) UpdateServerTemplate(ctx context.Context, t model.ServerTemplate) error {
	defaults, _ := jsonCol(t.Defaults)
	res, err := s.Querier(ctx).ExecContext(ctx, `
		UPDATE server_templates SET name=$2, description=$3, defaults=$4, updated_at=$5 WHERE id=$1`,
		t.ID, t.Name, t.Description, defaults, t.UpdatedAt)
	if err != nil {
		return errs.Internal("update server template", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("server_template", t.ID)
	}
	return nil
}

func (s *TemplateStore) DeleteServerTemplate(ctx context.Context, id string) error {
	res, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM server_templates WHERE id = $1`, id)
	if err != nil {
		return errs.Internal("delete server template", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("server_template", id)
	}
	return nil
}

func (s *TemplateStore) CreateWorkflowTemplate(ctx context.Context, t model.WorkflowTemplate) error {
	defaults, err := jsonCol(t.Defaults)
	if err != nil {
		return errs.Internal("marshal workflow template defaults", err)
	}
	_, err = s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO workflow_templates (id, name, description, defaults, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Name, t.Description, defaults, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return errs.Internal("insert workflow template", err)
	}
	return nil
}

func (s *TemplateStore) GetWorkflowTemplate(ctx context.Context, id string) (model.WorkflowTemplate, error) {
	var r workflowTemplateRow
	err := s.Querier(ctx).GetContext(ctx, &r, `SELECT id, name, description, defaults, created_at, updated_at FROM workflow_templates WHERE id = $1`, id)
	if isNoRows(err) {
		return model.WorkflowTemplate{}, errs.NotFound("workflow_template", id)
	}
	if err != nil {
		return model.WorkflowTemplate{}, errs.Internal("get workflow template", err)
	}
	return rowToWorkflowTemplate(r)
}

func (s *TemplateStore) ListWorkflowTemplates(ctx context.Context) ([]model.WorkflowTemplate, error) {
	var rows []workflowTemplateRow
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `SELECT id, name, description, defaults, created_at, updated_at FROM workflow_templates ORDER BY name`); err != nil {
		return nil, errs.Internal("list workflow templates", err)
	}
	out := make([]model.WorkflowTemplate, 0, len(rows))
	for _, r := range rows {
		t, err := rowToWorkflowTemplate(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *TemplateStore) UpdateWorkflowTemplate(ctx context.Context, t model.WorkflowTemplate) error {
	defaults, _ := jsonCol(t.Defaults)
	res, err := s.Querier(ctx).ExecContext(ctx, `
		UPDATE workflow_templates SET name=$2, description=$3, defaults=$4, updated_at=$5 WHERE id=$1`,
		t.ID, t.Name, t.Description, defaults, t.UpdatedAt)
	if err != nil {
		return errs.Internal("update workflow template", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("workflow_template", t.ID)
	}
	return nil
}

func (s *TemplateStore) DeleteWorkflowTemplate(ctx context.Context, id string) error {
	res, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM workflow_templates WHERE id = $1`, id)
	if err != nil {
		return errs.Internal("delete workflow template", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("workflow_template", id)
	}
	return nil
}

func rowToServerTemplate(r serverTemplateRow) (model.ServerTemplate, error) {
	t := model.ServerTemplate{ID: r.ID, Name: r.Name, Description: r.Description, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
	if err := unjsonCol(r.Defaults, &t.Defaults); err != nil {
		return t, errs.Internal("unmarshal server template defaults for "+r.ID, err)
	}
	return t, nil
}

func rowToWorkflowTemplate(r workflowTemplateRow) (model.WorkflowTemplate, error) {
	t := model.WorkflowTemplate{ID: r.ID, Name: r.Name, Description: r.Description, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
	if err := unjsonCol(r.Defaults, &t.Defaults); err != nil {
		return t, errs.Internal("unmarshal workflow template defaults for "+r.ID, err)
	}
	return t, nil
}
