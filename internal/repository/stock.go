package repository

import (
	"context"
	"errors"

	"fabrika/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StockInterface interface {
	Get(ctx context.Context, material string) (int, error)
	Add(ctx context.Context, material string, units int) error
	Consume(ctx context.Context, material string, units int) error
	WithTx(tx *gorm.DB) StockInterface
}

var ErrInsufficientStock = errors.New("insufficient stock")

type StockRepository struct {
	db *gorm.DB
}

func NewStockRepository(db *gorm.DB) *StockRepository {
	return &StockRepository{db: db}
}

func (r *StockRepository) Get(ctx context.Context, material string) (int, error) {
	var stock model.MaterialStock
	err := r.db.WithContext(ctx).Where("material = ?", material).First(&stock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return stock.Units, nil
}

func (r *StockRepository) Add(ctx context.Context, material string, units int) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "material"}},
		DoUpdates: clause.Assignments(map[string]any{"units": gorm.Expr("units + ?", units)}),
	}).Create(&model.MaterialStock{Material: material, Units: units}).Error
}

func (r *StockRepository) Consume(ctx context.Context, material string, units int) error {
	res := r.db.WithContext(ctx).Model(&model.MaterialStock{}).
		Where("material = ? AND units >= ?", material, units).
		Update("units", gorm.Expr("units - ?", units))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (r *StockRepository) WithTx(tx *gorm.DB) StockInterface {
	return &StockRepository{db: tx}
}
