package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/pg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueuedJob(owner, key string) *model.Job {
	return &model.Job{
		OwnerID:        owner,
		Kind:           model.JobKindTransformation,
		Params:         model.TransformationParams{Text: "hello"},
		Status:         model.JobStatusQueued,
		IdempotencyKey: key,
	}
}

func TestJobRepository_CreateOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	job, created, err := repo.CreateOnce(ctx, newQueuedJob("user-1", "key-1"))
	require.NoError(t, err)
	require.True(t, created)
	assert.NotEmpty(t, job.ID)

	_, created, err = repo.CreateOnce(ctx, newQueuedJob("user-1", "key-1"))
	require.NoError(t, err)
	assert.False(t, created)

	_, created, err = repo.CreateOnce(ctx, newQueuedJob("user-2", "key-1"))
	require.NoError(t, err)
	assert.True(t, created, "idempotency keys are scoped per owner")

	t.Run("jobs without key never collide", func(t *testing.T) {
		_, c1, err := repo.CreateOnce(ctx, newQueuedJob("user-1", ""))
		require.NoError(t, err)
		_, c2, err := repo.CreateOnce(ctx, newQueuedJob("user-1", ""))
		require.NoError(t, err)
		assert.True(t, c1)
		assert.True(t, c2)
	})

	found, err := repo.FindByOwnerAndKey(ctx, "user-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, found.ID)
	assert.Equal(t, model.TransformationParams{Text: "hello"}, found.Params)
}

func TestJobRepository_Transitions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	job, _, err := repo.CreateOnce(ctx, newQueuedJob("user-1", ""))
	require.NoError(t, err)

	ok, err := repo.MarkCompleted(ctx, job.ID, model.TransformationOutput{Text: "x"}, 10, now)
	require.NoError(t, err)
	assert.False(t, ok, "complete from queued must not apply")

	ok, err = repo.MarkProcessing(ctx, job.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkProcessing(ctx, job.ID, now)
	require.NoError(t, err)
	assert.False(t, ok, "second start loses")

	ok, err = repo.MarkCompleted(ctx, job.ID, model.TransformationOutput{Text: "done"}, 10, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkFailed(ctx, job.ID, "boom", now)
	require.NoError(t, err)
	assert.False(t, ok, "terminal jobs never transition")

	found, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, found.Status)
	assert.Equal(t, model.TransformationOutput{Text: "done"}, found.Output)
	require.NotNil(t, found.Cost)
	assert.Equal(t, int64(10), *found.Cost)
	assert.NotNil(t, found.StartedAt)
	assert.NotNil(t, found.FinishedAt)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestJobRepository_ListStaleAndUnbilled(t *testing.T) {
	db := setupTestDB(t)
	jobs := NewJobRepository(db)
	txns := NewTransactionRepository(db)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)
	now := time.Now().UTC()

	stuck, _, err := jobs.CreateOnce(ctx, newQueuedJob("user-1", ""))
	require.NoError(t, err)
	_, err = jobs.MarkProcessing(ctx, stuck.ID, past)
	require.NoError(t, err)

	fresh, _, err := jobs.CreateOnce(ctx, newQueuedJob("user-1", ""))
	require.NoError(t, err)
	_, err = jobs.MarkProcessing(ctx, fresh.ID, now)
	require.NoError(t, err)

	stale, err := jobs.ListStale(ctx, model.JobStatusProcessing, now.Add(-30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, stuck.ID, stale[0].ID)

	_, err = jobs.MarkCompleted(ctx, fresh.ID, model.TransformationOutput{Text: "x"}, 10, now)
	require.NoError(t, err)

	unbilled, err := jobs.ListUnbilled(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, unbilled, 1)
	assert.Equal(t, fresh.ID, unbilled[0].ID)

	_, _, err = txns.InsertOnce(ctx, &model.Transaction{
		PrincipalID: "user-1",
		Delta:       -10,
		Reason:      "transformation",
		RefType:     model.RefTransformation,
		RefID:       fresh.ID,
	})
	require.NoError(t, err)

	unbilled, err = jobs.ListUnbilled(ctx, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, unbilled)
}

func TestJobRepository_ListUnbilledSkipsUnlimitedOwners(t *testing.T) {
	db := setupTestDB(t)
	jobs := NewJobRepository(db)
	accounts := NewAccountRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	complete := func(owner string) string {
		job, _, err := jobs.CreateOnce(ctx, newQueuedJob(owner, ""))
		require.NoError(t, err)
		_, err = jobs.MarkProcessing(ctx, job.ID, now)
		require.NoError(t, err)
		_, err = jobs.MarkCompleted(ctx, job.ID, model.TransformationOutput{Text: "x"}, 10, now)
		require.NoError(t, err)
		return job.ID
	}
	complete("vip")
	complete("admin")
	billable := complete("user-1")

	require.NoError(t, accounts.SetUnlimited(ctx, "vip", true))
	require.NoError(t, accounts.Ensure(ctx, "user-1"))

	unbilled, err := jobs.ListUnbilled(ctx, []string{"admin"}, 10)
	require.NoError(t, err)
	require.Len(t, unbilled, 1)
	assert.Equal(t, billable, unbilled[0].ID)
}

func TestJobRepository_FindByOwnerAndKeyReadsPrimary(t *testing.T) {
	primary := openTestGorm(t)
	replica := openTestGorm(t)
	ctx := context.Background()

	repo := NewJobRepository(pg.NewDB(replica, primary))
	created, _, err := repo.CreateOnce(ctx, newQueuedJob("user-1", "key-1"))
	require.NoError(t, err)

	found, err := repo.FindByOwnerAndKey(ctx, "user-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = repo.FindByID(ctx, created.ID)
	assert.ErrorIs(t, err, model.ErrNotFound, "plain reads go to the replica")

	found, err = repo.FindByID(pg.ReadPrimary(ctx), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}
