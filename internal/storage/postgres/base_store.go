// Package postgres implements storage.Store against PostgreSQL via sqlx and
// lib/pq, adapted from the teacher's pkg/storage/postgres BaseStore:
// context-carried transactions, a shared querier indirection, and small
// null-conversion helpers. Complex nested fields (steps, tags, descriptors)
// are stored as JSONB columns and marshaled at the store boundary rather
// than split across relational tables, matching the opaque-JSON columns the
// teacher uses for its own provider-specific config blobs.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Querier is satisfied by both *sqlx.DB and *sqlx.Tx.
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// BaseStore provides the shared querier-from-context indirection every
// table-specific store embeds.
type BaseStore struct {
	db *sqlx.DB
}

func NewBaseStore(db *sqlx.DB) *BaseStore {
	return &BaseStore{db: db}
}

type txKey struct{}

// TxFromContext extracts an active transaction, if any, from ctx.
func TxFromContext(ctx context.Context) *sqlx.Tx {
	tx, _ := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx
}

// ContextWithTx attaches a transaction to ctx.
func ContextWithTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// Querier returns the transaction in ctx if present, else the pool.
func (s *BaseStore) Querier(ctx context.Context) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

// WithTx runs fn inside a single transaction, committing on success.
func (s *BaseStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	txCtx := ContextWithTx(ctx, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// jsonCol marshals v for storage in a JSONB column.
func jsonCol(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// unjsonCol unmarshals a JSONB column into dest, tolerating NULL/empty.
func unjsonCol(raw []byte, dest any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

// isNoRows reports whether err is sql.ErrNoRows.
func isNoRows(err error) bool {
	return err == sql.ErrNoRows
}
