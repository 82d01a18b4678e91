package repository

import (
	"context"
	"errors"

	"boxshop/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProductRepo interface {
	Create(ctx context.Context, p *models.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetBySKU(ctx context.Context, sku string) (*models.Product, error)
	ListBySKUs(ctx context.Context, skus []string) ([]*models.Product, error)
	ListByCategory(ctx context.Context, slug string) ([]*models.Product, error)
}

type productRepo struct{ db *gorm.DB }

func NewProductRepo(db *gorm.DB) ProductRepo { return &productRepo{db: db} }

func (r *productRepo) Create(ctx context.Context, p *models.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *productRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	err := r.db.WithContext(ctx).Preload("Categories").First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &p, err
}

func (r *productRepo) GetBySKU(ctx context.Context, sku string) (*models.Product, error) {
	var p models.Product
	err := r.db.WithContext(ctx).Preload("Categories").First(&p, "sku = ?", sku).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &p, err
}

func (r *productRepo) ListBySKUs(ctx context.Context, skus []string) ([]*models.Product, error) {
	if len(skus) == 0 {
		return nil, nil
	}
	var list []*models.Product
	err := r.db.WithContext(ctx).Preload("Categories").Where("sku IN ?", skus).Find(&list).Error
	return list, err
}

func (r *productRepo) ListByCategory(ctx context.Context, slug string) ([]*models.Product, error) {
	var list []*models.Product
	err := r.db.WithContext(ctx).Preload("Categories").
		Joins("JOIN product_categories pc ON pc.product_id = products.id").
		Where("pc.slug = ?", slug).
		Find(&list).Error
	return list, err
}
