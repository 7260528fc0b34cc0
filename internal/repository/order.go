package repository

import (
	"context"
	"errors"

	"fabrika/internal/model"

	"gorm.io/gorm"
)

type OrderInterface interface {
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id uint64) (*model.Order, error)
	UpdateStatus(ctx context.Context, id uint64, status string) error
	ListByStatus(ctx context.Context, status string, limit int) ([]model.Order, error)
	ListRecent(ctx context.Context, limit int) ([]model.Order, error)
	WithTx(tx *gorm.DB) OrderInterface
}

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// GetByID returns (nil, nil) when no order exists, so callers can tell
// "stale reference" apart from a storage failure.
func (r *OrderRepository) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id uint64, status string) error {
	return r.db.WithContext(ctx).Model(&model.Order{}).Where("id = ?", id).
		Update("status", status).Error
}

func (r *OrderRepository) ListByStatus(ctx context.Context, status string, limit int) ([]model.Order, error) {
	var orders []model.Order
	if err := r.db.WithContext(ctx).Where("status = ?", status).
		Limit(limit).Order("id ASC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) ListRecent(ctx context.Context, limit int) ([]model.Order, error) {
	var orders []model.Order
	if err := r.db.WithContext(ctx).Limit(limit).Order("id DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) WithTx(tx *gorm.DB) OrderInterface {
	return &OrderRepository{db: tx}
}
