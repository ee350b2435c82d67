package repository

import (
	"context"
	"time"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/pg"
	"gorm.io/gorm/clause"
)

type ReconciliationRepository struct {
	*pg.DB
}

func NewReconciliationRepository(db *pg.DB) *ReconciliationRepository {
	return &ReconciliationRepository{
		db,
	}
}

// InsertOnce records ev unless the same (ref_type, ref_id, reason) exists.
func (r *ReconciliationRepository) InsertOnce(ctx context.Context, ev *model.ReconciliationEvent) (bool, error) {
	res := r.Write(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(toReconciliationEntity(ev))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Resolve closes the open events of a reference with one of reasons.
func (r *ReconciliationRepository) Resolve(ctx context.Context, ref model.Ref, reasons []model.ReconciliationReason, now time.Time) (int64, error) {
	rs := make([]string, len(reasons))
	for i, reason := range reasons {
		rs[i] = string(reason)
	}
	res := r.Write(ctx).
		Model(&ReconciliationEntity{}).
		Where("ref_type = ? AND ref_id = ? AND resolved_at IS NULL", string(ref.Type), ref.ID).
		Where("reason IN ?", rs).
		Updates(map[string]any{"resolved_at": now, "updated_at": now})
	return res.RowsAffected, res.Error
}

func (r *ReconciliationRepository) ListOpen(ctx context.Context, limit int) ([]*model.ReconciliationEvent, error) {
	var entities []*ReconciliationEntity
	err := r.Read(ctx).
		Where("resolved_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	events := make([]*model.ReconciliationEvent, len(entities))
	for i, e := range entities {
		events[i] = toReconciliationModel(e)
	}
	return events, nil
}
