package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type txKey struct{}

type hooksKey struct{}

type commitHooks struct {
	fns []func()
}

// OnCommit defers fn until the enclosing WithTx commits. Hooks from a
// rolled-back transaction are discarded. Outside a transaction fn runs
// immediately.
func OnCommit(ctx context.Context, fn func()) {
	if h, ok := ctx.Value(hooksKey{}).(*commitHooks); ok {
		h.fns = append(h.fns, fn)
		return
	}
	fn()
}

// TxBeginner is the slice of pgxpool.Pool that WithTx needs.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// TxFromContext returns the transaction an enclosing WithTx opened, if any.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

// InTx reports whether ctx already carries an open transaction.
func InTx(ctx context.Context) bool {
	_, ok := TxFromContext(ctx)
	return ok
}

// WithTx executes a function within a transaction using the RepeatableRead
// isolation level. The invariant-critical read-modify-write paths (stock
// deduction, counter allocation, payment application) all run through here.
//
// When ctx already carries a transaction the call joins it instead of
// opening a nested one, so cross-engine work such as part approval plus
// stock deduction commits or rolls back as a single unit.
func WithTx(ctx context.Context, pool TxBeginner, fn func(context.Context, pgx.Tx) error) error {
	if tx, ok := TxFromContext(ctx); ok {
		return fn(ctx, tx)
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	hooks := &commitHooks{}
	ctx = context.WithValue(context.WithValue(ctx, txKey{}, tx), hooksKey{}, hooks)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	for _, hook := range hooks.fns {
		hook()
	}
	return nil
}
