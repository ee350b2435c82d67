package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconciliationRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReconciliationRepository(db)
	ctx := context.Background()

	ev := &model.ReconciliationEvent{
		PrincipalID: "user-1",
		RefType:     model.RefTransformation,
		RefID:       "job-1",
		Amount:      10,
		Reason:      model.ReasonInsufficientBalance,
	}
	ok, err := repo.InsertOnce(ctx, ev)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.InsertOnce(ctx, ev)
	require.NoError(t, err)
	assert.False(t, ok)

	open, err := repo.ListOpen(ctx, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, model.ReasonInsufficientBalance, open[0].Reason)

	n, err := repo.Resolve(ctx, model.Ref{Type: model.RefTransformation, ID: "job-1"},
		[]model.ReconciliationReason{model.ReasonInsufficientBalance, model.ReasonDebitFailed}, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	open, err = repo.ListOpen(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("retries transient errors", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return assert.AnError
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after four attempts", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, func(ctx context.Context) error {
			calls++
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, 4, calls)
	})

	t.Run("business errors are not retried", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, func(ctx context.Context) error {
			calls++
			return model.ErrInsufficientBalance
		})
		assert.ErrorIs(t, err, model.ErrInsufficientBalance)
		assert.Equal(t, 1, calls)
	})

	t.Run("unique violations are not retried", func(t *testing.T) {
		txns := NewTransactionRepository(setupTestDB(t))
		txn := func() *model.Transaction {
			return &model.Transaction{PrincipalID: "user-1", Delta: 5, Reason: "bonus", RefType: model.RefBonus, RefID: "grant-1"}
		}
		_, err := txns.Insert(ctx, txn())
		require.NoError(t, err)

		calls := 0
		err = WithRetry(ctx, func(ctx context.Context) error {
			calls++
			_, err := txns.Insert(ctx, txn())
			return err
		})
		require.Error(t, err)
		assert.True(t, isUniqueViolation(err))
		assert.Equal(t, 1, calls)
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		calls := 0
		err := WithRetry(cancelled, func(ctx context.Context) error {
			calls++
			return assert.AnError
		})
		require.Error(t, err)
		assert.LessOrEqual(t, calls, 1)
	})
}
