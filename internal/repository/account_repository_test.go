package repository

import (
	"context"
	"testing"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountRepository_Ensure(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Ensure(ctx, "user-1"))
	require.NoError(t, repo.Ensure(ctx, "user-1"))

	acc, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.Balance)
	assert.False(t, acc.Unlimited)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAccountRepository_AdjustBalance(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Ensure(ctx, "user-1"))

	t.Run("credit", func(t *testing.T) {
		applied, err := repo.AdjustBalance(ctx, "user-1", 100)
		require.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("debit within balance", func(t *testing.T) {
		applied, err := repo.AdjustBalance(ctx, "user-1", -30)
		require.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("debit above balance is not applied", func(t *testing.T) {
		applied, err := repo.AdjustBalance(ctx, "user-1", -71)
		require.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("exact balance", func(t *testing.T) {
		applied, err := repo.AdjustBalance(ctx, "user-1", -70)
		require.NoError(t, err)
		assert.True(t, applied)
	})

	acc, err := repo.Lock(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.Balance)
}

func TestAccountRepository_SetUnlimited(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.SetUnlimited(ctx, "dev", true))
	acc, err := repo.Get(ctx, "dev")
	require.NoError(t, err)
	assert.True(t, acc.Unlimited)
}
