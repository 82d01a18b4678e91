package repository

import (
	"context"
	"errors"

	"boxshop/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrDiscountExhausted = errors.New("discount usage limit reached")

type DiscountRepo interface {
	Create(ctx context.Context, d *models.Discount) error
	GetByCode(ctx context.Context, code string) (*models.Discount, error)
	// IncrementUsage атомарно увеличивает счётчик применений, не позволяя
	// превысить лимит.
	IncrementUsage(ctx context.Context, id uuid.UUID) error
	CreateRedemption(ctx context.Context, red *models.DiscountRedemption) error
	CountRedemptionsByCustomer(ctx context.Context, discountID, customerID uuid.UUID) (int64, error)
	CountRedemptionsByIP(ctx context.Context, discountID uuid.UUID, ip string) (int64, error)
}

type discountRepo struct{ db *gorm.DB }

func NewDiscountRepo(db *gorm.DB) DiscountRepo { return &discountRepo{db: db} }

func (r *discountRepo) Create(ctx context.Context, d *models.Discount) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *discountRepo) GetByCode(ctx context.Context, code string) (*models.Discount, error) {
	var d models.Discount
	err := r.db.WithContext(ctx).First(&d, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &d, err
}

func (r *discountRepo) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&models.Discount{}).
		Where("id = ? AND (usage_limit IS NULL OR used_count < usage_limit)", id).
		Update("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDiscountExhausted
	}
	return nil
}

func (r *discountRepo) CreateRedemption(ctx context.Context, red *models.DiscountRedemption) error {
	return r.db.WithContext(ctx).Create(red).Error
}

func (r *discountRepo) CountRedemptionsByCustomer(ctx context.Context, discountID, customerID uuid.UUID) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&models.DiscountRedemption{}).
		Where("discount_id = ? AND customer_id = ?", discountID, customerID).
		Count(&cnt).Error
	return cnt, err
}

func (r *discountRepo) CountRedemptionsByIP(ctx context.Context, discountID uuid.UUID, ip string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&models.DiscountRedemption{}).
		Where("discount_id = ? AND buyer_ip = ?", discountID, ip).
		Count(&cnt).Error
	return cnt, err
}
