package repository

import (
	"time"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransactionEntity is an immutable ledger row. Seq orders the log;
// (principal_id, ref_type, ref_id) is unique whenever ref_id is set.
type TransactionEntity struct {
	Seq         int64     `gorm:"primaryKey;autoIncrement;column:seq"`
	ID          string    `gorm:"column:id;type:varchar(36);not null;uniqueIndex"`
	PrincipalID string    `gorm:"column:principal_id;type:varchar(128);not null;index;uniqueIndex:ux_transactions_ref,priority:1"`
	Delta       int64     `gorm:"column:delta;not null"`
	Reason      string    `gorm:"column:reason;type:text;not null"`
	RefType     *string   `gorm:"column:ref_type;type:varchar(32);uniqueIndex:ux_transactions_ref,priority:2"`
	RefID       *string   `gorm:"column:ref_id;type:varchar(255);uniqueIndex:ux_transactions_ref,priority:3"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

func (e *TransactionEntity) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	e := &TransactionEntity{
		ID:          m.ID,
		PrincipalID: m.PrincipalID,
		Delta:       m.Delta,
		Reason:      m.Reason,
		CreatedAt:   m.CreatedAt,
	}
	if m.RefType != "" {
		rt := string(m.RefType)
		e.RefType = &rt
	}
	if m.RefID != "" {
		rid := m.RefID
		e.RefID = &rid
	}
	return e
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	m := &model.Transaction{
		ID:          e.ID,
		PrincipalID: e.PrincipalID,
		Delta:       e.Delta,
		Reason:      e.Reason,
		CreatedAt:   e.CreatedAt,
	}
	if e.RefType != nil {
		m.RefType = model.RefType(*e.RefType)
	}
	if e.RefID != nil {
		m.RefID = *e.RefID
	}
	return m
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	if entities == nil {
		return nil
	}
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}
