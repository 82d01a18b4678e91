package repository

import (
	"context"
	"errors"
	"time"

	"boxshop/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubscriptionRepo interface {
	Create(ctx context.Context, s *models.Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	GetActiveByCustomer(ctx context.Context, customerID uuid.UUID) (*models.Subscription, error)
	Save(ctx context.Context, s *models.Subscription) error
	ListDue(ctx context.Context, billingDay int) ([]*models.Subscription, error)

	CreateCommitment(ctx context.Context, c *models.Commitment) error
	SaveCommitment(ctx context.Context, c *models.Commitment) error
	CurrentCommitment(ctx context.Context, subscriptionID uuid.UUID) (*models.Commitment, error)
	NextPendingCommitment(ctx context.Context, subscriptionID uuid.UUID) (*models.Commitment, error)
	ListCommitments(ctx context.Context, subscriptionID uuid.UUID) ([]*models.Commitment, error)

	AddSkip(ctx context.Context, skip *models.SubscriptionSkip) error
	RemoveSkip(ctx context.Context, subscriptionID uuid.UUID, boxKey string) error
	ListSkips(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionSkip, error)
	CountSkipsSince(ctx context.Context, subscriptionID uuid.UUID, since time.Time) (int64, error)

	AddGift(ctx context.Context, g *models.SubscriptionGift) error
	ListGifts(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionGift, error)

	AddAddon(ctx context.Context, a *models.SubscriptionAddon) error
	ListAddons(ctx context.Context, subscriptionID uuid.UUID, boxKey string) ([]models.SubscriptionAddon, error)

	AddExchange(ctx context.Context, e *models.SubscriptionExchange) error
	FindExchangeForBox(ctx context.Context, subscriptionID uuid.UUID, boxKey string) (*models.SubscriptionExchange, error)

	AddDiscount(ctx context.Context, d *models.SubscriptionDiscount) error
	ListDiscounts(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionDiscount, error)
	FindDiscountForBox(ctx context.Context, subscriptionID uuid.UUID, boxKey string) (*models.SubscriptionDiscount, error)
	MarkDiscountUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}

type subscriptionRepo struct{ db *gorm.DB }

func NewSubscriptionRepo(db *gorm.DB) SubscriptionRepo { return &subscriptionRepo{db: db} }

func (r *subscriptionRepo) Create(ctx context.Context, s *models.Subscription) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *subscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var s models.Subscription
	err := r.db.WithContext(ctx).Preload("Commitments").First(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &s, err
}

func (r *subscriptionRepo) GetActiveByCustomer(ctx context.Context, customerID uuid.UUID) (*models.Subscription, error) {
	var s models.Subscription
	err := r.db.WithContext(ctx).Preload("Commitments").
		Where("customer_id = ? AND status <> ?", customerID, models.SubscriptionStatusStopped).
		Order("created_at DESC").
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &s, err
}

func (r *subscriptionRepo) Save(ctx context.Context, s *models.Subscription) error {
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *subscriptionRepo) ListDue(ctx context.Context, billingDay int) ([]*models.Subscription, error) {
	var list []*models.Subscription
	err := r.db.WithContext(ctx).Preload("Commitments").
		Where("status = ? AND billing_day = ?", models.SubscriptionStatusActive, billingDay).
		Find(&list).Error
	return list, err
}

func (r *subscriptionRepo) CreateCommitment(ctx context.Context, c *models.Commitment) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *subscriptionRepo) SaveCommitment(ctx context.Context, c *models.Commitment) error {
	return r.db.WithContext(ctx).Save(c).Error
}

func (r *subscriptionRepo) CurrentCommitment(ctx context.Context, subscriptionID uuid.UUID) (*models.Commitment, error) {
	var c models.Commitment
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND status = ?", subscriptionID, models.CommitmentStatusCurrent).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &c, err
}

func (r *subscriptionRepo) NextPendingCommitment(ctx context.Context, subscriptionID uuid.UUID) (*models.Commitment, error) {
	var c models.Commitment
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND status = ?", subscriptionID, models.CommitmentStatusPending).
		Order("position ASC").
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &c, err
}

func (r *subscriptionRepo) ListCommitments(ctx context.Context, subscriptionID uuid.UUID) ([]*models.Commitment, error) {
	var list []*models.Commitment
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("position ASC").
		Find(&list).Error
	return list, err
}

func (r *subscriptionRepo) AddSkip(ctx context.Context, skip *models.SubscriptionSkip) error {
	return r.db.WithContext(ctx).Create(skip).Error
}

func (r *subscriptionRepo) RemoveSkip(ctx context.Context, subscriptionID uuid.UUID, boxKey string) error {
	return r.db.WithContext(ctx).
		Where("subscription_id = ? AND box_key = ?", subscriptionID, boxKey).
		Delete(&models.SubscriptionSkip{}).Error
}

func (r *subscriptionRepo) ListSkips(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionSkip, error) {
	var rows []models.SubscriptionSkip
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *subscriptionRepo) CountSkipsSince(ctx context.Context, subscriptionID uuid.UUID, since time.Time) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&models.SubscriptionSkip{}).
		Where("subscription_id = ? AND created_at >= ?", subscriptionID, since).
		Count(&cnt).Error
	return cnt, err
}

func (r *subscriptionRepo) AddGift(ctx context.Context, g *models.SubscriptionGift) error {
	return r.db.WithContext(ctx).Create(g).Error
}

func (r *subscriptionRepo) ListGifts(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionGift, error) {
	var rows []models.SubscriptionGift
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Find(&rows).Error
	return rows, err
}

func (r *subscriptionRepo) AddAddon(ctx context.Context, a *models.SubscriptionAddon) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *subscriptionRepo) ListAddons(ctx context.Context, subscriptionID uuid.UUID, boxKey string) ([]models.SubscriptionAddon, error) {
	var rows []models.SubscriptionAddon
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND box_key = ?", subscriptionID, boxKey).
		Find(&rows).Error
	return rows, err
}

func (r *subscriptionRepo) AddExchange(ctx context.Context, e *models.SubscriptionExchange) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *subscriptionRepo) FindExchangeForBox(ctx context.Context, subscriptionID uuid.UUID, boxKey string) (*models.SubscriptionExchange, error) {
	var e models.SubscriptionExchange
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND box_key = ?", subscriptionID, boxKey).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &e, err
}

func (r *subscriptionRepo) AddDiscount(ctx context.Context, d *models.SubscriptionDiscount) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *subscriptionRepo) ListDiscounts(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionDiscount, error) {
	var rows []models.SubscriptionDiscount
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *subscriptionRepo) FindDiscountForBox(ctx context.Context, subscriptionID uuid.UUID, boxKey string) (*models.SubscriptionDiscount, error) {
	var d models.SubscriptionDiscount
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND box_key = ? AND used_at IS NULL", subscriptionID, boxKey).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &d, err
}

func (r *subscriptionRepo) MarkDiscountUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.SubscriptionDiscount{}).
		Where("id = ?", id).
		Update("used_at", at).Error
}
