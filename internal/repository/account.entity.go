package repository

import (
	"time"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
)

type AccountEntity struct {
	PrincipalID string    `gorm:"primaryKey;column:principal_id;type:varchar(128)"`
	Balance     int64     `gorm:"column:balance;not null;default:0"`
	Unlimited   bool      `gorm:"column:unlimited;not null;default:false"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

func (AccountEntity) TableName() string {
	return "accounts"
}

func toAccountModel(e *AccountEntity) *model.Account {
	if e == nil {
		return nil
	}
	return &model.Account{
		PrincipalID: e.PrincipalID,
		Balance:     e.Balance,
		Unlimited:   e.Unlimited,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}
