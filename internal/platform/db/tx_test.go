package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type stubTx struct {
	pgx.Tx
	commits   int
	rollbacks int
	commitErr error
}

func (t *stubTx) Commit(_ context.Context) error {
	t.commits++
	return t.commitErr
}

func (t *stubTx) Rollback(_ context.Context) error {
	t.rollbacks++
	return nil
}

type stubPool struct {
	tx     *stubTx
	begins int
}

func (p *stubPool) BeginTx(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	p.begins++
	return p.tx, nil
}

func TestWithTxCommitsThenRunsHooks(t *testing.T) {
	pool := &stubPool{tx: &stubTx{}}
	var order []string

	err := WithTx(context.Background(), pool, func(ctx context.Context, _ pgx.Tx) error {
		OnCommit(ctx, func() { order = append(order, "hook") })
		order = append(order, "work")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"work", "hook"}, order)
	require.Equal(t, 1, pool.tx.commits)
}

func TestNestedWithTxJoinsEnclosingTransaction(t *testing.T) {
	pool := &stubPool{tx: &stubTx{}}
	var inner pgx.Tx
	var hookRuns int

	err := WithTx(context.Background(), pool, func(ctx context.Context, outer pgx.Tx) error {
		require.True(t, InTx(ctx))
		// The nested call must reuse the open transaction, not begin a
		// second one, so both sides commit or roll back together.
		joinErr := WithTx(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
			inner = tx
			OnCommit(ctx, func() { hookRuns++ })
			return nil
		})
		require.NoError(t, joinErr)
		require.Same(t, outer, inner)
		// The nested hook waits for the enclosing commit.
		require.Zero(t, hookRuns)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, pool.begins)
	require.Equal(t, 1, pool.tx.commits)
	require.Equal(t, 1, hookRuns)
}

func TestFailedCallbackRollsBackAndDiscardsHooks(t *testing.T) {
	pool := &stubPool{tx: &stubTx{}}
	boom := errors.New("boom")
	var hookRuns int

	err := WithTx(context.Background(), pool, func(ctx context.Context, _ pgx.Tx) error {
		OnCommit(ctx, func() { hookRuns++ })
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Zero(t, pool.tx.commits)
	require.Equal(t, 1, pool.tx.rollbacks)
	require.Zero(t, hookRuns)
}

func TestCommitFailureDiscardsHooks(t *testing.T) {
	pool := &stubPool{tx: &stubTx{commitErr: errors.New("serialization")}}
	var hookRuns int

	err := WithTx(context.Background(), pool, func(ctx context.Context, _ pgx.Tx) error {
		OnCommit(ctx, func() { hookRuns++ })
		return nil
	})
	require.Error(t, err)
	require.Zero(t, hookRuns)
}

func TestOnCommitOutsideTransactionRunsImmediately(t *testing.T) {
	var ran bool
	OnCommit(context.Background(), func() { ran = true })
	require.True(t, ran)
}
