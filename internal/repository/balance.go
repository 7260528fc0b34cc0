package repository

import (
	"context"
	"errors"

	"fabrika/internal/model"

	"gorm.io/gorm"
)

type BalanceInterface interface {
	Append(ctx context.Context, snapshot *model.BalanceSnapshot) error
	Latest(ctx context.Context) (*model.BalanceSnapshot, error)
	WithTx(tx *gorm.DB) BalanceInterface
}

type BalanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) Append(ctx context.Context, snapshot *model.BalanceSnapshot) error {
	return r.db.WithContext(ctx).Create(snapshot).Error
}

func (r *BalanceRepository) Latest(ctx context.Context) (*model.BalanceSnapshot, error) {
	var snapshot model.BalanceSnapshot
	err := r.db.WithContext(ctx).Order("id DESC").First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *BalanceRepository) WithTx(tx *gorm.DB) BalanceInterface {
	return &BalanceRepository{db: tx}
}
