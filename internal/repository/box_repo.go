package repository

import (
	"context"
	"errors"

	"boxshop/internal/models"

	"gorm.io/gorm"
)

var ErrBoxOutOfStock = errors.New("shopping box out of stock")

type BoxRepo interface {
	Create(ctx context.Context, b *models.ShoppingBox) error
	GetByKey(ctx context.Context, key string) (*models.ShoppingBox, error)
	GetBySlug(ctx context.Context, slug string) (*models.ShoppingBox, error)
	// DecrementStock атомарно списывает одну коробку; ErrBoxOutOfStock,
	// если тираж исчерпан.
	DecrementStock(ctx context.Context, key string) error
	IncrementStock(ctx context.Context, key string) error
	ListSellable(ctx context.Context) ([]*models.ShoppingBox, error)
}

type boxRepo struct{ db *gorm.DB }

func NewBoxRepo(db *gorm.DB) BoxRepo { return &boxRepo{db: db} }

func (r *boxRepo) Create(ctx context.Context, b *models.ShoppingBox) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *boxRepo) GetByKey(ctx context.Context, key string) (*models.ShoppingBox, error) {
	var b models.ShoppingBox
	err := r.db.WithContext(ctx).First(&b, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &b, err
}

func (r *boxRepo) GetBySlug(ctx context.Context, slug string) (*models.ShoppingBox, error) {
	var b models.ShoppingBox
	err := r.db.WithContext(ctx).First(&b, "slug = ?", slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &b, err
}

func (r *boxRepo) DecrementStock(ctx context.Context, key string) error {
	res := r.db.WithContext(ctx).Model(&models.ShoppingBox{}).
		Where("key = ? AND stock > 0", key).
		Update("stock", gorm.Expr("stock - 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrBoxOutOfStock
	}
	return nil
}

func (r *boxRepo) IncrementStock(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Model(&models.ShoppingBox{}).
		Where("key = ?", key).
		Update("stock", gorm.Expr("stock + 1")).Error
}

func (r *boxRepo) ListSellable(ctx context.Context) ([]*models.ShoppingBox, error) {
	var list []*models.ShoppingBox
	err := r.db.WithContext(ctx).
		Where("sellable = TRUE AND stock > 0").
		Order("year ASC, month ASC").
		Find(&list).Error
	return list, err
}
