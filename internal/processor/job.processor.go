package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/Pguillen87/arcanum-ai-sub001/internal/queue"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/logger"
)

// JobRunner runs one queued job to a terminal state.
type JobRunner interface {
	Run(ctx context.Context, id string) (*model.Job, error)
}

type JobLocker interface {
	Acquire(ctx context.Context, jobID string) (*JobLock, error)
	MarkDone(ctx context.Context, lock *JobLock) error
	Release(ctx context.Context, lock *JobLock) error
}

// JobProcessor turns a dispatched queue message into a JobService run.
type JobProcessor struct {
	runner JobRunner
	locks  JobLocker
}

func NewJobProcessor(runner JobRunner, locks JobLocker) *JobProcessor {
	return &JobProcessor{runner: runner, locks: locks}
}

func (p *JobProcessor) GetType() string {
	return "job"
}

// Process returns nil when the message should be acked. Errors leave the
// message pending for redelivery.
func (p *JobProcessor) Process(ctx context.Context, msg *queue.Message) error {
	var dispatch model.JobDispatch
	if err := msg.Decode(&dispatch); err != nil || dispatch.JobID == "" {
		// redelivery cannot fix a bad payload; let it reach the DLQ
		return fmt.Errorf("malformed job dispatch %s: %v", msg.ID, err)
	}
	jobID := dispatch.JobID

	lock, err := p.locks.Acquire(ctx, jobID)
	switch {
	case errors.Is(err, ErrAlreadyProcessed):
		logger.Debug("job already processed, acking duplicate", "job_id", jobID)
		return nil
	case errors.Is(err, ErrLockAcquireFailed):
		return fmt.Errorf("job %s is locked by another consumer: %w", jobID, err)
	case err != nil:
		return err
	}

	job, err := p.runner.Run(ctx, jobID)
	switch {
	case err == nil:
		logger.Info("job finished", "job_id", jobID, "kind", string(job.Kind), "status", string(job.Status), "attempt", msg.Attempts)
		_ = p.locks.MarkDone(ctx, lock)
		return nil
	case errors.Is(err, model.ErrJobNotQueued):
		// started elsewhere or already terminal
		logger.Info("job is not queued, acking", "job_id", jobID)
		_ = p.locks.Release(ctx, lock)
		return nil
	case errors.Is(err, model.ErrNotFound):
		logger.Warn("dispatched job does not exist", "job_id", jobID)
		_ = p.locks.Release(ctx, lock)
		return nil
	default:
		_ = p.locks.Release(ctx, lock)
		return fmt.Errorf("run job %s: %w", jobID, err)
	}
}
