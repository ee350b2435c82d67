package repository

import (
	"context"
	"errors"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TransactionRepository struct {
	*pg.DB
}

func NewTransactionRepository(db *pg.DB) *TransactionRepository {
	return &TransactionRepository{
		db,
	}
}

// Insert appends a transaction without a reference.
func (r *TransactionRepository) Insert(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	entity := toTransactionEntity(txn)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toTransactionModel(entity), nil
}

// InsertOnce appends txn unless a row with the same (principal, ref_type, ref_id)
// exists. created is false when the insert collided.
func (r *TransactionRepository) InsertOnce(ctx context.Context, txn *model.Transaction) (*model.Transaction, bool, error) {
	entity := toTransactionEntity(txn)
	res := r.Write(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entity)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}
	return toTransactionModel(entity), true, nil
}

func (r *TransactionRepository) FindByRef(ctx context.Context, principalID string, ref model.Ref) (*model.Transaction, error) {
	var entity TransactionEntity
	err := r.Read(ctx).
		Where("principal_id = ? AND ref_type = ? AND ref_id = ?", principalID, string(ref.Type), ref.ID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return toTransactionModel(&entity), nil
}

// List returns the newest transactions of a principal first.
func (r *TransactionRepository) List(ctx context.Context, principalID string, limit int) ([]*model.Transaction, error) {
	var entities []*TransactionEntity
	err := r.Read(ctx).
		Where("principal_id = ?", principalID).
		Order("seq DESC").
		Limit(limit).
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toTransactionModels(entities), nil
}

// Sum returns the sum of all deltas of a principal.
func (r *TransactionRepository) Sum(ctx context.Context, principalID string) (int64, error) {
	var total int64
	err := r.Read(ctx).
		Model(&TransactionEntity{}).
		Where("principal_id = ?", principalID).
		Select("COALESCE(SUM(delta), 0)").
		Scan(&total).
		Error
	return total, err
}
