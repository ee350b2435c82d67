package services

import (
	"context"
	"sync"
	"testing"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/Pguillen87/arcanum-ai-sub001/internal/repository"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/pg"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testStore struct {
	db           *pg.DB
	accounts     *repository.AccountRepository
	transactions *repository.TransactionRepository
	jobs         *repository.JobRepository
	recon        *repository.ReconciliationRepository
}

func setupStore(t *testing.T) *testStore {
	t.Helper()
	db := openTestGorm(t)
	return newTestStore(pg.NewDB(db, db))
}

// setupSplitStore reads from a replica that only changes through copyRows.
func setupSplitStore(t *testing.T) (store *testStore, primary, replica *gorm.DB) {
	t.Helper()
	primary = openTestGorm(t)
	replica = openTestGorm(t)
	return newTestStore(pg.NewDB(replica, primary)), primary, replica
}

func openTestGorm(t *testing.T) *gorm.DB {
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
	return db
}

func newTestStore(db *pg.DB) *testStore {
	return &testStore{
		db:           db,
		accounts:     repository.NewAccountRepository(db),
		transactions: repository.NewTransactionRepository(db),
		jobs:         repository.NewJobRepository(db),
		recon:        repository.NewReconciliationRepository(db),
	}
}

// copyRows replaces the replica's jobs and accounts with the primary's.
func copyRows(t *testing.T, primary, replica *gorm.DB) {
	t.Helper()
	var jobs []repository.JobEntity
	require.NoError(t, primary.Find(&jobs).Error)
	var accounts []repository.AccountEntity
	require.NoError(t, primary.Find(&accounts).Error)

	require.NoError(t, replica.Where("1 = 1").Delete(&repository.JobEntity{}).Error)
	require.NoError(t, replica.Where("1 = 1").Delete(&repository.AccountEntity{}).Error)
	if len(jobs) > 0 {
		require.NoError(t, replica.Create(&jobs).Error)
	}
	if len(accounts) > 0 {
		require.NoError(t, replica.Create(&accounts).Error)
	}
}

func (s *testStore) ledger(opts LedgerOptions) *LedgerService {
	return NewLedgerService(s.accounts, s.transactions, s.recon, nil, opts)
}

// seed credits principal without a ref.
func seed(t *testing.T, l *LedgerService, principal string, amount int64) {
	t.Helper()
	_, err := l.Credit(context.Background(), principal, amount, "seed", nil)
	require.NoError(t, err)
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) Record(_ context.Context, action string, _ ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
}

func (a *recordingAudit) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.actions...)
}

type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error) {
	args := m.Called(ctx, data, metadata)
	return args.String(0), args.Error(1)
}

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, job *model.Job) (model.JobOutput, error) {
	args := m.Called(ctx, job)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(model.JobOutput), args.Error(1)
}

type MockCompletionClient struct {
	mock.Mock
}

func (m *MockCompletionClient) Complete(ctx context.Context, req model.CompletionRequest) (*model.Completion, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Completion), args.Error(1)
}

type MockTranscriptionClient struct {
	mock.Mock
}

func (m *MockTranscriptionClient) Transcribe(ctx context.Context, req model.TranscriptionRequest) (*model.Transcript, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transcript), args.Error(1)
}

type MockAssetFetcher struct {
	mock.Mock
}

func (m *MockAssetFetcher) Fetch(ctx context.Context, url string) (*model.Asset, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Asset), args.Error(1)
}

type MockNormalizer struct {
	mock.Mock
}

func (m *MockNormalizer) Normalize(ctx context.Context, data []byte, declaredMime, filename string) (*model.NormalizedMedia, error) {
	args := m.Called(ctx, data, declaredMime, filename)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.NormalizedMedia), args.Error(1)
}

var testPrices = PriceTable{
	Transformation:         10,
	TranscriptionPerMinute: 5,
	TranscriptionMinimum:   5,
	VideoShort:             25,
	VideoShortPer30Seconds: 10,
}
