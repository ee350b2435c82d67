package processor

import (
	"context"
	"testing"
	"time"

	"github.com/Pguillen87/arcanum-ai-sub001/pkg/redis"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, redis.NewAdapter(client, "test:")
}

func TestIdempotencyService_LockIsExclusive(t *testing.T) {
	_, adapter := setupTestRedis(t)
	svc := NewIdempotencyService(adapter, IdempotencyConfig{LockTTL: time.Minute})
	ctx := context.Background()

	lock, err := svc.Acquire(ctx, "job-1")
	require.NoError(t, err)

	_, err = svc.Acquire(ctx, "job-1")
	assert.ErrorIs(t, err, ErrLockAcquireFailed)

	other, err := svc.Acquire(ctx, "job-2")
	require.NoError(t, err, "locks are per job")
	require.NoError(t, svc.Release(ctx, other))

	require.NoError(t, svc.Release(ctx, lock))
	lock, err = svc.Acquire(ctx, "job-1")
	require.NoError(t, err, "released lock can be taken again")
	require.NoError(t, svc.Release(ctx, lock))
}

func TestIdempotencyService_MarkDone(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	svc := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
	ctx := context.Background()

	lock, err := svc.Acquire(ctx, "job-1")
	require.NoError(t, err)
	require.NoError(t, svc.MarkDone(ctx, lock))

	done, err := svc.IsProcessed(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, done)
	assert.True(t, mr.Exists("test:job:done:job-1"), "keys carry the adapter prefix")
	assert.False(t, mr.Exists("test:job:lock:job-1"))

	_, err = svc.Acquire(ctx, "job-1")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	mr.FastForward(25 * time.Hour)
	done, err = svc.IsProcessed(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestIdempotencyService_ExpiredLockIsNotStolenBack(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	svc := NewIdempotencyService(adapter, IdempotencyConfig{LockTTL: time.Second})
	ctx := context.Background()

	stale, err := svc.Acquire(ctx, "job-1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	fresh, err := svc.Acquire(ctx, "job-1")
	require.NoError(t, err)

	require.NoError(t, svc.Release(ctx, stale))
	assert.True(t, mr.Exists("test:job:lock:job-1"), "stale holder must not release the new lock")

	require.NoError(t, svc.Release(ctx, fresh))
	assert.False(t, mr.Exists("test:job:lock:job-1"))

	assert.NoError(t, svc.Release(ctx, fresh), "double release is a no-op")
	assert.NoError(t, svc.Release(ctx, nil))
}

func TestIdempotencyService_RedisDown(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	svc := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
	mr.Close()

	_, err := svc.Acquire(context.Background(), "job-1")
	assert.ErrorIs(t, err, ErrLockAcquireFailed)
}
