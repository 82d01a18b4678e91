package repository

import (
	"context"
	"errors"

	"boxshop/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrGiftCardInsufficient = errors.New("gift card balance insufficient")

type GiftCardRepo interface {
	Create(ctx context.Context, gc *models.GiftCard) error
	GetByCode(ctx context.Context, code string) (*models.GiftCard, error)
	// Debit атомарно списывает amount с баланса карты.
	Debit(ctx context.Context, id uuid.UUID, amount float64) error
	Credit(ctx context.Context, id uuid.UUID, amount float64) error
}

type giftCardRepo struct{ db *gorm.DB }

func NewGiftCardRepo(db *gorm.DB) GiftCardRepo { return &giftCardRepo{db: db} }

func (r *giftCardRepo) Create(ctx context.Context, gc *models.GiftCard) error {
	return r.db.WithContext(ctx).Create(gc).Error
}

func (r *giftCardRepo) GetByCode(ctx context.Context, code string) (*models.GiftCard, error) {
	var gc models.GiftCard
	err := r.db.WithContext(ctx).First(&gc, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &gc, err
}

func (r *giftCardRepo) Debit(ctx context.Context, id uuid.UUID, amount float64) error {
	res := r.db.WithContext(ctx).Model(&models.GiftCard{}).
		Where("id = ? AND balance >= ?", id, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrGiftCardInsufficient
	}
	return nil
}

func (r *giftCardRepo) Credit(ctx context.Context, id uuid.UUID, amount float64) error {
	return r.db.WithContext(ctx).Model(&models.GiftCard{}).
		Where("id = ?", id).
		Update("balance", gorm.Expr("balance + ?", amount)).Error
}
