package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type JobRepository struct {
	*pg.DB
}

func NewJobRepository(db *pg.DB) *JobRepository {
	return &JobRepository{
		db,
	}
}

// CreateOnce inserts a queued job. created is false when the owner already
// has a job with the same idempotency key.
func (r *JobRepository) CreateOnce(ctx context.Context, job *model.Job) (*model.Job, bool, error) {
	entity, err := toJobEntity(job)
	if err != nil {
		return nil, false, err
	}
	res := r.Write(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entity)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}
	created, err := toJobModel(entity)
	return created, true, err
}

func (r *JobRepository) FindByID(ctx context.Context, id string) (*model.Job, error) {
	var entity JobEntity
	err := r.Read(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return toJobModel(&entity)
}

// FindByOwnerAndKey reads from the primary: it decides whether a create is
// a replay.
func (r *JobRepository) FindByOwnerAndKey(ctx context.Context, ownerID, key string) (*model.Job, error) {
	var entity JobEntity
	err := r.Write(ctx).
		Where("owner_id = ? AND idempotency_key = ?", ownerID, key).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return toJobModel(&entity)
}

// MarkProcessing moves a queued job to processing. ok is false when the job
// was not queued.
func (r *JobRepository) MarkProcessing(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.transition(ctx, id, model.JobStatusQueued, map[string]any{
		"status":     string(model.JobStatusProcessing),
		"started_at": now,
		"updated_at": now,
	})
}

func (r *JobRepository) MarkCompleted(ctx context.Context, id string, output model.JobOutput, cost int64, now time.Time) (bool, error) {
	raw, err := json.Marshal(output)
	if err != nil {
		return false, fmt.Errorf("encode outputs: %w", err)
	}
	return r.transition(ctx, id, model.JobStatusProcessing, map[string]any{
		"status":      string(model.JobStatusCompleted),
		"outputs":     string(raw),
		"cost":        cost,
		"finished_at": now,
		"updated_at":  now,
	})
}

func (r *JobRepository) MarkFailed(ctx context.Context, id string, errText string, now time.Time) (bool, error) {
	return r.transition(ctx, id, model.JobStatusProcessing, map[string]any{
		"status":      string(model.JobStatusFailed),
		"error":       errText,
		"finished_at": now,
		"updated_at":  now,
	})
}

// Touch bumps updated_at of a job still in status.
func (r *JobRepository) Touch(ctx context.Context, id string, status model.JobStatus, now time.Time) error {
	_, err := r.transition(ctx, id, status, map[string]any{"updated_at": now})
	return err
}

func (r *JobRepository) transition(ctx context.Context, id string, from model.JobStatus, updates map[string]any) (bool, error) {
	res := r.Write(ctx).
		Model(&JobEntity{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListStale returns jobs in status whose last update is older than before.
func (r *JobRepository) ListStale(ctx context.Context, status model.JobStatus, before time.Time, limit int) ([]*model.Job, error) {
	var entities []*JobEntity
	err := r.Read(ctx).
		Where("status = ? AND updated_at < ?", string(status), before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toJobModels(entities)
}

// ListUnbilled returns completed jobs with a positive cost and no debit
// transaction. Jobs of unlimited accounts and of excludeOwners are never
// debited and are left out.
func (r *JobRepository) ListUnbilled(ctx context.Context, excludeOwners []string, limit int) ([]*model.Job, error) {
	var entities []*JobEntity
	q := r.Read(ctx).
		Where("status = ? AND cost > 0", string(model.JobStatusCompleted)).
		Where("NOT EXISTS (SELECT 1 FROM transactions t WHERE t.principal_id = jobs.owner_id AND t.ref_type = jobs.kind AND t.ref_id = jobs.id)").
		Where("NOT EXISTS (SELECT 1 FROM accounts a WHERE a.principal_id = jobs.owner_id AND a.unlimited = ?)", true)
	if len(excludeOwners) > 0 {
		q = q.Where("owner_id NOT IN ?", excludeOwners)
	}
	err := q.Order("updated_at ASC").
		Limit(limit).
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toJobModels(entities)
}
