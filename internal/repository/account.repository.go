package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccountRepository struct {
	*pg.DB
}

func NewAccountRepository(db *pg.DB) *AccountRepository {
	return &AccountRepository{
		db,
	}
}

// Ensure creates a zero balance row for the principal if none exists.
func (r *AccountRepository) Ensure(ctx context.Context, principalID string) error {
	return r.Write(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&AccountEntity{PrincipalID: principalID}).
		Error
}

func (r *AccountRepository) Get(ctx context.Context, principalID string) (*model.Account, error) {
	var entity AccountEntity
	err := r.Read(ctx).
		Where("principal_id = ?", principalID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return toAccountModel(&entity), nil
}

// Lock reads the account row with SELECT ... FOR UPDATE. It must run inside
// WithinTransaction to hold the lock.
func (r *AccountRepository) Lock(ctx context.Context, principalID string) (*model.Account, error) {
	var entity AccountEntity
	err := r.Write(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("principal_id = ?", principalID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return toAccountModel(&entity), nil
}

// AdjustBalance adds delta to the balance. A negative delta only applies when
// the balance covers it; applied is false otherwise.
func (r *AccountRepository) AdjustBalance(ctx context.Context, principalID string, delta int64) (applied bool, err error) {
	q := r.Write(ctx).
		Model(&AccountEntity{}).
		Where("principal_id = ?", principalID)
	if delta < 0 {
		q = q.Where("balance >= ?", -delta)
	}
	result := q.Updates(map[string]any{
		"balance":    gorm.Expr("balance + ?", delta),
		"updated_at": time.Now().UTC(),
	})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *AccountRepository) SetUnlimited(ctx context.Context, principalID string, unlimited bool) error {
	if err := r.Ensure(ctx, principalID); err != nil {
		return err
	}
	return r.Write(ctx).
		Model(&AccountEntity{}).
		Where("principal_id = ?", principalID).
		Updates(map[string]any{"unlimited": unlimited, "updated_at": time.Now().UTC()}).
		Error
}
