package repository

import (
	"context"
	"errors"
	"time"

	"boxshop/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InstallmentRepo interface {
	Create(ctx context.Context, p *models.InstallmentPlan) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.InstallmentPlan, error)
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.InstallmentPlan, error)
	Save(ctx context.Context, p *models.InstallmentPlan) error
	// ListDue возвращает активные планы с датой списания не позже due.
	ListDue(ctx context.Context, due time.Time) ([]*models.InstallmentPlan, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.InstallmentPlan, error)
}

type installmentRepo struct{ db *gorm.DB }

func NewInstallmentRepo(db *gorm.DB) InstallmentRepo { return &installmentRepo{db: db} }

func (r *installmentRepo) Create(ctx context.Context, p *models.InstallmentPlan) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *installmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.InstallmentPlan, error) {
	var p models.InstallmentPlan
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &p, err
}

func (r *installmentRepo) GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.InstallmentPlan, error) {
	var p models.InstallmentPlan
	err := r.db.WithContext(ctx).First(&p, "order_id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &p, err
}

func (r *installmentRepo) Save(ctx context.Context, p *models.InstallmentPlan) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *installmentRepo) ListDue(ctx context.Context, due time.Time) ([]*models.InstallmentPlan, error) {
	var list []*models.InstallmentPlan
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_charge_at <= ?", models.InstallmentStatusActive, due).
		Order("next_charge_at ASC").
		Find(&list).Error
	return list, err
}

func (r *installmentRepo) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.InstallmentPlan, error) {
	var list []*models.InstallmentPlan
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&list).Error
	return list, err
}
