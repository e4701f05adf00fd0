package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxRunner executes a function inside a serializable transaction on the
// current tenant scope's pinned connection. Serializable isolation is what
// makes compound writes (state change plus audit append, version flip plus
// insert) atomic under concurrency.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

type scopeTxRunner struct{}

// NewTxRunner creates a TxRunner backed by the tenant scope in context.
func NewTxRunner() TxRunner {
	return &scopeTxRunner{}
}

var _ TxRunner = (*scopeTxRunner)(nil)

func (r *scopeTxRunner) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	scope, ok := GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	tx, err := scope.Conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
