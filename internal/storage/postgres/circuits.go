package postgres

import (
	"context"
	"time"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/storage/model"
)

type circuitRow struct {
	ServerID           string    `db:"server_id"`
	State              string    `db:"state"`
	FailureCount       int       `db:"failure_count"`
	ConsecutiveSuccess int       `db:"consecutive_success"`
	OpenedAt           time.Time `db:"opened_at"`
	LastStateChangeAt  time.Time `db:"last_state_change_at"`
}

// CircuitStateStore persists breaker snapshots for status queries and
// restart recovery (the live state machine is internal/resilience's).
type CircuitStateStore struct{ *BaseStore }

func NewCircuitStateStore(b *BaseStore) *CircuitStateStore { return &CircuitStateStore{b} }

func (s *CircuitStateStore) Upsert(ctx context.Context, c model.CircuitState) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO circuit_states (server_id, state, failure_count, consecutive_success, opened_at, last_state_change_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (server_id) DO UPDATE SET
			state = EXCLUDED.state,
			failure_count = EXCLUDED.failure_count,
			consecutive_success = EXCLUDED.consecutive_success,
			opened_at = EXCLUDED.opened_at,
			last_state_change_at = EXCLUDED.last_state_change_at`,
		c.ServerID, c.State, c.FailureCount, c.ConsecutiveSuccess, c.OpenedAt, c.LastStateChangeAt)
	if err != nil {
		return errs.Internal("upsert circuit state", err)
	}
	return nil
}

func (s *CircuitStateStore) List(ctx context.Context) ([]model.CircuitState, error) {
	var rows []circuitRow
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `SELECT server_id, state, failure_count, consecutive_success, opened_at, last_state_change_at FROM circuit_states ORDER BY server_id`); err != nil {
		return nil, errs.Internal("list circuit states", err)
	}
	out := make([]model.CircuitState, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.CircuitState{
			ServerID: r.ServerID, State: r.State,
			FailureCount: r.FailureCount, ConsecutiveSuccess: r.ConsecutiveSuccess,
			OpenedAt: r.OpenedAt, LastStateChangeAt: r.LastStateChangeAt,
		})
	}
	return out, nil
}
