package repository

import (
	"testing"

	"github.com/Pguillen87/arcanum-ai-sub001/pkg/pg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *pg.DB {
	db := openTestGorm(t)
	return pg.NewDB(db, db)
}

// openTestGorm opens a migrated in-memory database. Two of them stand in
// for a primary and a replica that has not caught up.
func openTestGorm(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = db.AutoMigrate(&AccountEntity{}, &TransactionEntity{}, &JobEntity{}, &ReconciliationEntity{})
	require.NoError(t, err)
	return db
}
