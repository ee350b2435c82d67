package repository

import (
	"time"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/pg"
)

type ReconciliationEntity struct {
	pg.Model
	PrincipalID string     `gorm:"column:principal_id;type:varchar(128);not null;index"`
	RefType     string     `gorm:"column:ref_type;type:varchar(32);not null;uniqueIndex:ux_reconciliation_ref,priority:1"`
	RefID       string     `gorm:"column:ref_id;type:varchar(255);not null;uniqueIndex:ux_reconciliation_ref,priority:2"`
	Reason      string     `gorm:"column:reason;type:varchar(32);not null;uniqueIndex:ux_reconciliation_ref,priority:3"`
	Amount      int64      `gorm:"column:amount;not null"`
	Detail      string     `gorm:"column:detail;type:text"`
	ResolvedAt  *time.Time `gorm:"column:resolved_at"`
}

func (ReconciliationEntity) TableName() string {
	return "reconciliation_events"
}

func toReconciliationEntity(m *model.ReconciliationEvent) *ReconciliationEntity {
	return &ReconciliationEntity{
		Model:       pg.Model{ID: m.ID, CreatedAt: m.CreatedAt},
		PrincipalID: m.PrincipalID,
		RefType:     string(m.RefType),
		RefID:       m.RefID,
		Reason:      string(m.Reason),
		Amount:      m.Amount,
		Detail:      m.Detail,
		ResolvedAt:  m.ResolvedAt,
	}
}

func toReconciliationModel(e *ReconciliationEntity) *model.ReconciliationEvent {
	return &model.ReconciliationEvent{
		ID:          e.ID,
		PrincipalID: e.PrincipalID,
		RefType:     model.RefType(e.RefType),
		RefID:       e.RefID,
		Reason:      model.ReconciliationReason(e.Reason),
		Amount:      e.Amount,
		Detail:      e.Detail,
		CreatedAt:   e.CreatedAt,
		ResolvedAt:  e.ResolvedAt,
	}
}
