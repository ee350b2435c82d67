package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/logger"
	"github.com/robfig/cron/v3"
)

type JobReconciler interface {
	Reconcile(ctx context.Context) (model.ReconcileReport, error)
}

// Reconciler runs JobReconciler sweeps on a cron schedule. A sweep is
// skipped while the previous one is still running.
type Reconciler struct {
	target   JobReconciler
	schedule string
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
}

func NewReconciler(target JobReconciler, schedule string) (*Reconciler, error) {
	if target == nil {
		return nil, errors.New("reconcile target is required")
	}
	// accepts standard 5-field specs and descriptors like "@every 1m"
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}
	return &Reconciler{target: target, schedule: schedule}, nil
}

func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return errors.New("reconciler already started")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	r.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := r.cron.AddFunc(r.schedule, func() { r.RunOnce(r.ctx) }); err != nil {
		r.cancel()
		r.cron = nil
		return err
	}
	r.cron.Start()
	logger.Info("reconciler started", "schedule", r.schedule)
	return nil
}

// RunOnce performs one sweep and logs its outcome.
func (r *Reconciler) RunOnce(ctx context.Context) model.ReconcileReport {
	report, err := r.target.Reconcile(ctx)
	if err != nil {
		logger.Error("reconcile sweep failed", "error", err)
	}
	return report
}

// Stop cancels the schedule and waits for a running sweep.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	c, cancel := r.cron, r.cancel
	r.cron = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	cancel()
	logger.Info("reconciler stopped")
}
