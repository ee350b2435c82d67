package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Pguillen87/arcanum-ai-sub001/pkg/logger"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/redis"
	"github.com/google/uuid"
)

var (
	ErrAlreadyProcessed  = errors.New("job already processed")
	ErrLockAcquireFailed = errors.New("failed to acquire job lock")
)

type IdempotencyConfig struct {
	LockTTL            time.Duration
	ProcessedTTL       time.Duration
	LockKeyPrefix      string
	ProcessedKeyPrefix string
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		LockTTL:            15 * time.Minute,
		ProcessedTTL:       24 * time.Hour,
		LockKeyPrefix:      "job:lock:",
		ProcessedKeyPrefix: "job:done:",
	}
}

// IdempotencyService keeps duplicate stream deliveries of one job from
// running at the same time. The job row remains the authority; the lock only
// saves work.
type IdempotencyService struct {
	redis  redis.RedisAdapter
	config IdempotencyConfig
}

func NewIdempotencyService(adapter redis.RedisAdapter, config IdempotencyConfig) *IdempotencyService {
	def := DefaultIdempotencyConfig()
	if config.LockTTL <= 0 {
		config.LockTTL = def.LockTTL
	}
	if config.ProcessedTTL <= 0 {
		config.ProcessedTTL = def.ProcessedTTL
	}
	if config.LockKeyPrefix == "" {
		config.LockKeyPrefix = def.LockKeyPrefix
	}
	if config.ProcessedKeyPrefix == "" {
		config.ProcessedKeyPrefix = def.ProcessedKeyPrefix
	}
	return &IdempotencyService{redis: adapter, config: config}
}

// JobLock is a held processing lock.
type JobLock struct {
	JobID string
	token string
	held  bool
}

// Acquire takes the lock for jobID. It returns ErrAlreadyProcessed when the
// job finished recently and ErrLockAcquireFailed when another consumer holds
// the lock.
func (s *IdempotencyService) Acquire(ctx context.Context, jobID string) (*JobLock, error) {
	exists, err := s.redis.Exist(s.config.ProcessedKeyPrefix + jobID)
	if err != nil {
		// the database transition still rejects a second run
		logger.Warn("processed marker check failed", "job_id", jobID, "error", err)
	} else if exists > 0 {
		return nil, ErrAlreadyProcessed
	}

	token := uuid.NewString()
	acquired, err := s.redis.SetNX(s.config.LockKeyPrefix+jobID, []byte(token), s.config.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
	}
	if !acquired {
		return nil, ErrLockAcquireFailed
	}
	logger.Debug("job lock acquired", "job_id", jobID, "ttl", s.config.LockTTL)
	return &JobLock{JobID: jobID, token: token, held: true}, nil
}

// MarkDone records that the job reached a terminal state and releases the
// lock.
func (s *IdempotencyService) MarkDone(ctx context.Context, lock *JobLock) error {
	if err := s.redis.Set(s.config.ProcessedKeyPrefix+lock.JobID, []byte("1"), s.config.ProcessedTTL); err != nil {
		logger.Warn("processed marker write failed", "job_id", lock.JobID, "error", err)
	}
	return s.Release(ctx, lock)
}

// Release drops the lock if it is still ours. A lock that expired and was
// taken by someone else is left alone.
func (s *IdempotencyService) Release(ctx context.Context, lock *JobLock) error {
	if lock == nil || !lock.held {
		return nil
	}
	lock.held = false
	released, err := s.redis.DelIfEqual(s.config.LockKeyPrefix+lock.JobID, []byte(lock.token))
	if err != nil {
		logger.Warn("job lock release failed", "job_id", lock.JobID, "error", err)
		return err
	}
	if !released {
		logger.Warn("job lock expired before release", "job_id", lock.JobID)
	}
	return nil
}

func (s *IdempotencyService) IsProcessed(ctx context.Context, jobID string) (bool, error) {
	exists, err := s.redis.Exist(s.config.ProcessedKeyPrefix + jobID)
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
