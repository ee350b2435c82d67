package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/Pguillen87/arcanum-ai-sub001/internal/repository"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/pg"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/redis"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB opens an in-memory sqlite database with every table migrated.
// Read and write share one connection so transactions see their own writes.
func SetupTestDB(t *testing.T) *pg.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&repository.AccountEntity{},
		&repository.TransactionEntity{},
		&repository.JobEntity{},
		&repository.ReconciliationEntity{},
	))
	return pg.NewDB(db, db)
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, redis.NewAdapter(client, "")
}

// CreateTestAccount inserts an empty account row. Balances should be seeded
// through the ledger so the transaction log stays consistent.
func CreateTestAccount(t *testing.T, db *pg.DB, principalID string, unlimited bool) *repository.AccountEntity {
	t.Helper()
	account := &repository.AccountEntity{
		PrincipalID: principalID,
		Unlimited:   unlimited,
	}
	require.NoError(t, db.Write(context.Background()).Create(account).Error)
	return account
}

// CreateTestJob stores a queued job directly, bypassing dispatch.
func CreateTestJob(t *testing.T, db *pg.DB, ownerID string, params model.JobParams) *model.Job {
	t.Helper()
	job, created, err := repository.NewJobRepository(db).CreateOnce(context.Background(), &model.Job{
		OwnerID: ownerID,
		Kind:    params.Kind(),
		Params:  params,
		Status:  model.JobStatusQueued,
	})
	require.NoError(t, err)
	require.True(t, created)
	return job
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func Ptr[T any](v T) *T {
	return &v
}
