package services

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/Pguillen87/arcanum-ai-sub001/internal/repository"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/logger"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/pg"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/prom"
)

const maxErrorLength = 2000

type JobRepository interface {
	CreateOnce(ctx context.Context, job *model.Job) (*model.Job, bool, error)
	FindByID(ctx context.Context, id string) (*model.Job, error)
	FindByOwnerAndKey(ctx context.Context, ownerID, key string) (*model.Job, error)
	MarkProcessing(ctx context.Context, id string, now time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id string, output model.JobOutput, cost int64, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, id string, errText string, now time.Time) (bool, error)
	Touch(ctx context.Context, id string, status model.JobStatus, now time.Time) error
	ListStale(ctx context.Context, status model.JobStatus, before time.Time, limit int) ([]*model.Job, error)
	ListUnbilled(ctx context.Context, excludeOwners []string, limit int) ([]*model.Job, error)
}

// Ledger is the part of LedgerService the orchestrator bills through.
type Ledger interface {
	GetBalance(ctx context.Context, principalID string) (*model.Balance, error)
	Debit(ctx context.Context, principalID string, amount int64, ref model.Ref) (*model.Balance, error)
	// ConfiguredUnlimited reports the principals that are never charged by
	// configuration. all is true when nobody is charged.
	ConfiguredUnlimited() (all bool, principals []string)
}

// JobQueue dispatches jobs to the processor.
type JobQueue interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

// Executor performs the work of one job kind.
type Executor interface {
	Execute(ctx context.Context, job *model.Job) (model.JobOutput, error)
}

type PriceCalculator interface {
	Estimate(params model.JobParams) int64
	Price(job *model.Job, output model.JobOutput) (int64, error)
}

type JobOptions struct {
	// JobTimeout bounds one Run.
	JobTimeout time.Duration
	// StaleAfter is how long a job may stay queued or processing before the
	// reconciler acts on it.
	StaleAfter     time.Duration
	ReconcileBatch int
}

// JobService drives jobs through queued -> processing -> completed|failed.
// Work is delivered first and billed after; billing failures never undo a
// completed job and end up as reconciliation events instead.
type JobService struct {
	jobs      JobRepository
	ledger    Ledger
	recon     ReconciliationRepository
	queue     JobQueue
	pricer    PriceCalculator
	executors map[model.JobKind]Executor
	audit     AuditSink
	opts      JobOptions
	now       func() time.Time
}

func NewJobService(jobs JobRepository, ledger Ledger, recon ReconciliationRepository, queue JobQueue, pricer PriceCalculator, audit AuditSink, opts JobOptions) *JobService {
	if audit == nil {
		audit = NopAudit{}
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 10 * time.Minute
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 3 * opts.JobTimeout
	}
	if opts.ReconcileBatch <= 0 {
		opts.ReconcileBatch = 100
	}
	return &JobService{
		jobs:      jobs,
		ledger:    ledger,
		recon:     recon,
		queue:     queue,
		pricer:    pricer,
		executors: make(map[model.JobKind]Executor),
		audit:     audit,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RegisterExecutor sets the executor Run uses for kind.
func (s *JobService) RegisterExecutor(kind model.JobKind, e Executor) {
	s.executors[kind] = e
}

// Create validates params and stores a queued job. When the owner already
// has a job with the same idempotency key that job is returned and created
// is false.
func (s *JobService) Create(ctx context.Context, req model.CreateJobRequest) (job *model.Job, created bool, err error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}
	ctx = pg.ReadPrimary(ctx)
	params, err := model.ParseParams(req.Kind, req.Params)
	if err != nil {
		return nil, false, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.findByKey(ctx, req.OwnerID, req.IdempotencyKey)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, false, err
		}
	}

	balance, err := s.ledger.GetBalance(ctx, req.OwnerID)
	if err != nil {
		return nil, false, err
	}
	if need := s.pricer.Estimate(params); !balance.IsUnlimited && balance.Balance < need {
		return nil, false, fmt.Errorf("%w: %s needs at least %d credits, balance is %d", model.ErrInsufficientBalance, req.Kind, need, balance.Balance)
	}

	var ok bool
	err = repository.WithRetry(ctx, func(ctx context.Context) error {
		var err error
		job, ok, err = s.jobs.CreateOnce(ctx, &model.Job{
			OwnerID:        req.OwnerID,
			Kind:           req.Kind,
			Params:         params,
			Status:         model.JobStatusQueued,
			IdempotencyKey: req.IdempotencyKey,
		})
		return err
	})
	if err != nil {
		return nil, false, storageErr("create job", err)
	}
	if !ok {
		// lost a race against a concurrent create with the same key
		existing, err := s.findByKey(ctx, req.OwnerID, req.IdempotencyKey)
		return existing, false, err
	}

	prom.JobTransition(string(job.Kind), string(job.Status))
	s.audit.Record(ctx, "job.created", "job_id", job.ID, "owner_id", job.OwnerID, "kind", string(job.Kind))
	s.dispatch(ctx, job)
	return job, true, nil
}

func (s *JobService) Get(ctx context.Context, id string) (*model.Job, error) {
	if id == "" {
		return nil, model.NewValidationError("jobId", "is required")
	}
	var job *model.Job
	err := repository.WithRetry(ctx, func(ctx context.Context) error {
		var err error
		job, err = s.jobs.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, storageErr("get job", err)
	}
	return job, nil
}

// current reads the job from the primary before a state transition.
func (s *JobService) current(ctx context.Context, id string) (*model.Job, error) {
	return s.Get(pg.ReadPrimary(ctx), id)
}

// Start moves a queued job to processing. Exactly one concurrent caller
// wins; the others get ErrJobNotQueued.
func (s *JobService) Start(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.current(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var ok bool
	err = repository.WithRetry(ctx, func(ctx context.Context) error {
		var err error
		ok, err = s.jobs.MarkProcessing(ctx, id, now)
		return err
	})
	if err != nil {
		return nil, storageErr("start job", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: job %s", model.ErrJobNotQueued, id)
	}

	job.Status = model.JobStatusProcessing
	job.StartedAt = &now
	job.UpdatedAt = now
	prom.JobTransition(string(job.Kind), string(job.Status))
	s.audit.Record(ctx, "job.started", "job_id", job.ID, "owner_id", job.OwnerID, "kind", string(job.Kind))
	return job, nil
}

// Complete stores the output and cost of a processing job, then debits the
// owner. Replaying Complete on a completed job re-issues the same idempotent
// debit with the stored cost.
func (s *JobService) Complete(ctx context.Context, id string, output model.JobOutput, cost int64) (*model.Job, error) {
	job, err := s.current(ctx, id)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case model.JobStatusCompleted:
		s.bill(ctx, job)
		return job, nil
	case model.JobStatusProcessing:
	default:
		return nil, fmt.Errorf("%w: complete from %s", model.ErrIllegalTransition, job.Status)
	}

	if output == nil || output.Kind() != job.Kind {
		return nil, model.NewValidationError("outputs", "must be a %s output", job.Kind)
	}
	if cost < 0 {
		return nil, model.NewValidationError("cost", "must not be negative")
	}

	now := s.now()
	var ok bool
	err = repository.WithRetry(ctx, func(ctx context.Context) error {
		var err error
		ok, err = s.jobs.MarkCompleted(ctx, id, output, cost, now)
		return err
	})
	if err != nil {
		return nil, storageErr("complete job", err)
	}

	if !ok {
		// another caller moved the job first; bill whatever it stored
		job, err = s.current(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status != model.JobStatusCompleted {
			return nil, fmt.Errorf("%w: complete from %s", model.ErrIllegalTransition, job.Status)
		}
		s.bill(ctx, job)
		return job, nil
	}

	job.Status = model.JobStatusCompleted
	job.Output = output
	job.Cost = &cost
	job.FinishedAt = &now
	job.UpdatedAt = now
	prom.JobTransition(string(job.Kind), string(job.Status))
	s.audit.Record(ctx, "job.completed", "job_id", job.ID, "owner_id", job.OwnerID, "kind", string(job.Kind), "cost", cost)

	s.bill(ctx, job)
	return job, nil
}

// Fail marks a processing job failed with the scrubbed error text. It never
// touches the ledger.
func (s *JobService) Fail(ctx context.Context, id string, cause error) (*model.Job, error) {
	job, err := s.current(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusProcessing {
		return nil, fmt.Errorf("%w: fail from %s", model.ErrIllegalTransition, job.Status)
	}

	text := errorText(cause)
	now := s.now()
	var ok bool
	err = repository.WithRetry(ctx, func(ctx context.Context) error {
		var err error
		ok, err = s.jobs.MarkFailed(ctx, id, text, now)
		return err
	})
	if err != nil {
		return nil, storageErr("fail job", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: job %s left processing concurrently", model.ErrIllegalTransition, id)
	}

	job.Status = model.JobStatusFailed
	job.Error = text
	job.FinishedAt = &now
	job.UpdatedAt = now
	prom.JobTransition(string(job.Kind), string(job.Status))
	s.audit.Record(ctx, "job.failed", "job_id", job.ID, "owner_id", job.OwnerID, "kind", string(job.Kind), "error", text)
	return job, nil
}

// Run starts the job, executes it under JobTimeout and completes or fails
// it. Caller cancellation does not interrupt a started job. The returned
// error is only set when the job could not be started or its final state
// could not be stored.
func (s *JobService) Run(ctx context.Context, id string) (*model.Job, error) {
	ctx = context.WithoutCancel(ctx)

	job, err := s.Start(ctx, id)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	output, cost, execErr := s.execute(ctx, job)
	if execErr != nil {
		logger.Warn("job execution failed", "job_id", job.ID, "kind", string(job.Kind), "error", execErr)
		prom.JobRunDuration(time.Since(started).Seconds(), string(job.Kind), "failed")
		return s.Fail(ctx, job.ID, execErr)
	}

	completed, err := s.Complete(ctx, job.ID, output, cost)
	if errors.Is(err, model.ErrValidation) {
		// the executor produced something that cannot be stored
		logger.Warn("job output rejected", "job_id", job.ID, "kind", string(job.Kind), "error", err)
		prom.JobRunDuration(time.Since(started).Seconds(), string(job.Kind), "failed")
		return s.Fail(ctx, job.ID, fmt.Errorf("invalid executor output: %w", err))
	}
	prom.JobRunDuration(time.Since(started).Seconds(), string(job.Kind), "completed")
	return completed, err
}

func (s *JobService) execute(ctx context.Context, job *model.Job) (output model.JobOutput, cost int64, err error) {
	exec, ok := s.executors[job.Kind]
	if !ok {
		return nil, 0, fmt.Errorf("no executor registered for %s", job.Kind)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()

	output, err = exec.Execute(ctx, job)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("job timed out after %s: %w", s.opts.JobTimeout, err)
		}
		return nil, 0, err
	}
	cost, err = s.pricer.Price(job, output)
	return output, cost, err
}

// Reconcile fails jobs stuck in processing, re-dispatches old queued jobs
// and retries the debit of completed jobs that were never billed.
func (s *JobService) Reconcile(ctx context.Context) (model.ReconcileReport, error) {
	var report model.ReconcileReport
	now := s.now()
	cutoff := now.Add(-s.opts.StaleAfter)

	stuck, err := s.jobs.ListStale(ctx, model.JobStatusProcessing, cutoff, s.opts.ReconcileBatch)
	if err != nil {
		return report, storageErr("list stale jobs", err)
	}
	for _, job := range stuck {
		if err := s.failStale(ctx, job, now); err != nil {
			report.Errors++
			logger.Error("reconcile: failing stale job", "job_id", job.ID, "error", err)
			continue
		}
		report.StaleFailed++
	}

	queued, err := s.jobs.ListStale(ctx, model.JobStatusQueued, cutoff, s.opts.ReconcileBatch)
	if err != nil {
		return report, storageErr("list queued jobs", err)
	}
	for _, job := range queued {
		if !s.dispatch(ctx, job) {
			report.Errors++
			continue
		}
		if err := s.jobs.Touch(ctx, job.ID, model.JobStatusQueued, now); err != nil {
			logger.Warn("reconcile: touch queued job", "job_id", job.ID, "error", err)
		}
		report.Redispatched++
	}

	if all, unlimited := s.ledger.ConfiguredUnlimited(); !all {
		unbilled, err := s.jobs.ListUnbilled(ctx, unlimited, s.opts.ReconcileBatch)
		if err != nil {
			return report, storageErr("list unbilled jobs", err)
		}
		for _, job := range unbilled {
			switch s.bill(ctx, job) {
			case billCharged:
				report.Rebilled++
			case billFailed:
				report.Errors++
			}
		}
	}

	if report != (model.ReconcileReport{}) {
		logger.Info("reconcile sweep finished", "stale_failed", report.StaleFailed, "redispatched", report.Redispatched, "rebilled", report.Rebilled, "errors", report.Errors)
	}
	return report, nil
}

func (s *JobService) failStale(ctx context.Context, job *model.Job, now time.Time) error {
	text := fmt.Sprintf("job timed out: processing for more than %s", s.opts.StaleAfter)
	ok, err := s.jobs.MarkFailed(ctx, job.ID, text, now)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	prom.JobTransition(string(job.Kind), string(model.JobStatusFailed))
	s.audit.Record(ctx, "job.failed", "job_id", job.ID, "owner_id", job.OwnerID, "kind", string(job.Kind), "error", text)
	s.recordEvent(ctx, job, 0, model.ReasonStaleJob, text)
	return nil
}

type billOutcome int

const (
	// billSettled: nothing was charged now, either because the job is free,
	// the owner is unlimited or the debit already existed.
	billSettled billOutcome = iota
	billCharged
	billFailed
)

// bill issues the idempotent debit of a completed job.
func (s *JobService) bill(ctx context.Context, job *model.Job) billOutcome {
	if job.Cost == nil || *job.Cost <= 0 {
		return billSettled
	}
	ref := model.Ref{Type: job.Kind.RefType(), ID: job.ID}
	balance, err := s.ledger.Debit(ctx, job.OwnerID, *job.Cost, ref)
	switch {
	case err == nil:
		if _, err := s.recon.Resolve(ctx, ref, []model.ReconciliationReason{model.ReasonInsufficientBalance, model.ReasonDebitFailed}, s.now()); err != nil {
			logger.Warn("resolve reconciliation events", "job_id", job.ID, "error", err)
		}
		if balance.IsUnlimited || balance.Replayed {
			return billSettled
		}
		return billCharged
	case errors.Is(err, model.ErrInsufficientBalance):
		s.recordEvent(ctx, job, *job.Cost, model.ReasonInsufficientBalance, err.Error())
	default:
		s.recordEvent(ctx, job, *job.Cost, model.ReasonDebitFailed, err.Error())
	}
	logger.Warn("job delivered but not billed", "job_id", job.ID, "owner_id", job.OwnerID, "cost", *job.Cost, "error", err)
	return billFailed
}

func (s *JobService) recordEvent(ctx context.Context, job *model.Job, amount int64, reason model.ReconciliationReason, detail string) {
	created, err := s.recon.InsertOnce(ctx, &model.ReconciliationEvent{
		PrincipalID: job.OwnerID,
		RefType:     job.Kind.RefType(),
		RefID:       job.ID,
		Amount:      amount,
		Reason:      reason,
		Detail:      logger.Scrub(detail),
	})
	if err != nil {
		logger.Error("record reconciliation event", "job_id", job.ID, "reason", string(reason), "error", err)
		return
	}
	if created {
		prom.ReconciliationEvent(string(reason))
		s.audit.Record(ctx, "reconciliation.recorded", "job_id", job.ID, "owner_id", job.OwnerID, "reason", string(reason), "amount", amount)
	}
}

func (s *JobService) dispatch(ctx context.Context, job *model.Job) bool {
	if s.queue == nil {
		return false
	}
	_, err := s.queue.PublishJSON(ctx, model.JobDispatch{JobID: job.ID, OwnerID: job.OwnerID, Kind: job.Kind}, map[string]string{"kind": string(job.Kind)})
	if err != nil {
		logger.Warn("job dispatch failed, reconciler will retry", "job_id", job.ID, "error", err)
		return false
	}
	return true
}

func (s *JobService) findByKey(ctx context.Context, ownerID, key string) (*model.Job, error) {
	var job *model.Job
	err := repository.WithRetry(ctx, func(ctx context.Context) error {
		var err error
		job, err = s.jobs.FindByOwnerAndKey(ctx, ownerID, key)
		return err
	})
	if err != nil {
		return nil, storageErr("find job by key", err)
	}
	return job, nil
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	text := logger.Scrub(err.Error())
	if utf8.RuneCountInString(text) > maxErrorLength {
		text = string([]rune(text)[:maxErrorLength])
	}
	return text
}

// storageErr maps repository failures to ErrStorageUnavailable and passes
// domain outcomes through.
func storageErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrValidation),
		errors.Is(err, model.ErrStorageUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	logger.Error("storage failure", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %v", model.ErrStorageUnavailable, op, err)
}
