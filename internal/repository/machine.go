package repository

import (
	"context"

	"fabrika/internal/model"

	"gorm.io/gorm"
)

type MachineInterface interface {
	Create(ctx context.Context, machine *model.Machine) error
	ListOperable(ctx context.Context) ([]model.Machine, error)
	UpdateStatus(ctx context.Context, id uint64, status string) error
	WithTx(tx *gorm.DB) MachineInterface
}

type MachineRepository struct {
	db *gorm.DB
}

func NewMachineRepository(db *gorm.DB) *MachineRepository {
	return &MachineRepository{db: db}
}

func (r *MachineRepository) Create(ctx context.Context, machine *model.Machine) error {
	return r.db.WithContext(ctx).Create(machine).Error
}

func (r *MachineRepository) ListOperable(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	if err := r.db.WithContext(ctx).Where("status = ?", model.MachineOK).
		Order("id ASC").Find(&machines).Error; err != nil {
		return nil, err
	}
	return machines, nil
}

func (r *MachineRepository) UpdateStatus(ctx context.Context, id uint64, status string) error {
	return r.db.WithContext(ctx).Model(&model.Machine{}).Where("id = ?", id).
		Update("status", status).Error
}

func (r *MachineRepository) WithTx(tx *gorm.DB) MachineInterface {
	return &MachineRepository{db: tx}
}
