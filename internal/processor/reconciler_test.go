package processor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReconciler struct {
	calls atomic.Int32
}

func (c *countingReconciler) Reconcile(context.Context) (model.ReconcileReport, error) {
	c.calls.Add(1)
	return model.ReconcileReport{Rebilled: 1}, nil
}

func TestReconciler_Schedule(t *testing.T) {
	target := &countingReconciler{}
	r, err := NewReconciler(target, "@every 1s")
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	assert.Error(t, r.Start(context.Background()))

	require.Eventually(t, func() bool { return target.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	r.Stop()
	r.Stop()
}

func TestReconciler_RunOnce(t *testing.T) {
	target := &countingReconciler{}
	r, err := NewReconciler(target, "*/5 * * * *")
	require.NoError(t, err)
	assert.Equal(t, 1, r.RunOnce(context.Background()).Rebilled)
}

func TestNewReconciler_InvalidSchedule(t *testing.T) {
	_, err := NewReconciler(&countingReconciler{}, "every minute")
	assert.Error(t, err)
	_, err = NewReconciler(nil, "@every 1m")
	assert.Error(t, err)
}
