package postgres

import (
	"context"
	"time"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/storage/model"
)

type workflowRow struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	Description   string    `db:"description"`
	Steps         []byte    `db:"steps"`
	ErrorStrategy string    `db:"error_strategy"`
	TimeoutMs     int64     `db:"timeout_ms"`
	Enabled       bool      `db:"enabled"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// WorkflowStore persists Workflow definitions (spec §3, §4.3).
type WorkflowStore struct{ *BaseStore }

func NewWorkflowStore(b *BaseStore) *WorkflowStore { return &WorkflowStore{b} }

func (s *WorkflowStore) Create(ctx context.Context, w model.Workflow) error {
	steps, err := jsonCol(w.Steps)
	if err != nil {
		return errs.Internal("marshal steps", err)
	}
	_, err = s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO workflows (id, name, description, steps, error_strategy, timeout_ms, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		w.ID, w.Name, w.Description, steps, string(w.ErrorStrategy), w.TimeoutMs, w.Enabled, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return errs.Internal("insert workflow", err)
	}
	return nil
}

func (s *WorkflowStore) Get(ctx context.Context, id string) (model.Workflow, error) {
	var r workflowRow
	err := s.Querier(ctx).GetContext(ctx, &r, `SELECT id, name, description, steps, error_strategy, timeout_ms, enabled, created_at, updated_at FROM workflows WHERE id = $1`, id)
	if isNoRows(err) {
		return model.Workflow{}, errs.NotFound("workflow", id)
	}
	if err != nil {
		return model.Workflow{}, errs.Internal("get workflow", err)
	}
	return rowToWorkflow(r)
}

func (s *WorkflowStore) List(ctx context.Context) ([]model.Workflow, error) {
	var rows []workflowRow
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `SELECT id, name, description, steps, error_strategy, timeout_ms, enabled, created_at, updated_at FROM workflows ORDER BY name`); err != nil {
		return nil, errs.Internal("list workflows", err)
	}
	out := make([]model.Workflow, 0, len(rows))
	for _, r := range rows {
		w, err := rowToWorkflow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *WorkflowStore) Update(ctx context.Context, w model.Workflow) error {
	steps, _ := jsonCol(w.Steps)
	res, err := s.Querier(ctx).ExecContext(ctx, `
		UPDATE workflows SET name=$2, description=$3, steps=$4, error_strategy=$5, timeout_ms=$6, enabled=$7, updated_at=$8
		WHERE id=$1`,
		w.ID, w.Name, w.Description, steps, string(w.ErrorStrategy), w.TimeoutMs, w.Enabled, w.UpdatedAt)
	if err != nil {
		return errs.Internal("update workflow", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("workflow", w.ID)
	}
	return nil
}

func (s *WorkflowStore) Delete(ctx context.Context, id string) error {
	res, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return errs.Internal("delete workflow", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("workflow", id)
	}
	return nil
}

func rowToWorkflow(r workflowRow) (model.Workflow, error) {
	w := model.Workflow{
		ID: r.ID, Name: r.Name, Description: r.Description,
		ErrorStrategy: model.OnErrorPolicy(r.ErrorStrategy), TimeoutMs: r.TimeoutMs,
		Enabled: r.Enabled, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
	if err := unjsonCol(r.Steps, &w.Steps); err != nil {
		return w, errs.Internal("unmarshal steps for "+r.ID, err)
	}
	return w, nil
}
