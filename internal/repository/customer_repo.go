package repository

import (
	"context"
	"errors"
	"time"

	"boxshop/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CustomerRepo interface {
	Create(ctx context.Context, c *models.Customer) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	GetByEmail(ctx context.Context, email string) (*models.Customer, error)
	GetByShareCode(ctx context.Context, code string) (*models.Customer, error)
	SetShareCode(ctx context.Context, id uuid.UUID, code string) error
	SetPaymentToken(ctx context.Context, id uuid.UUID, token string) error
	AddTag(ctx context.Context, id uuid.UUID, name string) error
	RemoveTag(ctx context.Context, id uuid.UUID, name string) error
	CountPaidOrders(ctx context.Context, id uuid.UUID) (int64, error)

	CreateInvitation(ctx context.Context, inv *models.Invitation) error
	FindInvitationByOrder(ctx context.Context, orderID uuid.UUID) (*models.Invitation, error)
	ListUnrewardedInvitations(ctx context.Context, completedBefore time.Time) ([]*models.Invitation, error)
	MarkInvitationRewarded(ctx context.Context, id uuid.UUID, at time.Time) error

	AddHistory(ctx context.Context, h *models.HistoryEntry) error
	ListHistory(ctx context.Context, modelType string, modelID uuid.UUID) ([]models.HistoryEntry, error)
}

type customerRepo struct{ db *gorm.DB }

func NewCustomerRepo(db *gorm.DB) CustomerRepo { return &customerRepo{db: db} }

func (r *customerRepo) Create(ctx context.Context, c *models.Customer) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *customerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var c models.Customer
	err := r.db.WithContext(ctx).Preload("Tags").First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &c, err
}

func (r *customerRepo) GetByEmail(ctx context.Context, email string) (*models.Customer, error) {
	var c models.Customer
	err := r.db.WithContext(ctx).Preload("Tags").First(&c, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &c, err
}

func (r *customerRepo) GetByShareCode(ctx context.Context, code string) (*models.Customer, error) {
	var c models.Customer
	err := r.db.WithContext(ctx).Preload("Tags").First(&c, "share_code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &c, err
}

func (r *customerRepo) SetShareCode(ctx context.Context, id uuid.UUID, code string) error {
	return r.db.WithContext(ctx).Model(&models.Customer{}).Where("id = ?", id).
		Update("share_code", code).Error
}

func (r *customerRepo) SetPaymentToken(ctx context.Context, id uuid.UUID, token string) error {
	return r.db.WithContext(ctx).Model(&models.Customer{}).Where("id = ?", id).
		Update("payment_token", token).Error
}

func (r *customerRepo) AddTag(ctx context.Context, id uuid.UUID, name string) error {
	tag := models.CustomerTag{CustomerID: id, Name: name}
	// Повторное добавление того же тега не ошибка.
	err := r.db.WithContext(ctx).Create(&tag).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

func (r *customerRepo) RemoveTag(ctx context.Context, id uuid.UUID, name string) error {
	return r.db.WithContext(ctx).
		Where("customer_id = ? AND name = ?", id, name).
		Delete(&models.CustomerTag{}).Error
}

func (r *customerRepo) CountPaidOrders(ctx context.Context, id uuid.UUID) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("customer_id = ? AND status IN ?", id,
			[]models.OrderStatus{models.OrderStatusProcessing, models.OrderStatusCompleted}).
		Count(&cnt).Error
	return cnt, err
}

func (r *customerRepo) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	return r.db.WithContext(ctx).Create(inv).Error
}

func (r *customerRepo) FindInvitationByOrder(ctx context.Context, orderID uuid.UUID) (*models.Invitation, error) {
	var inv models.Invitation
	err := r.db.WithContext(ctx).First(&inv, "order_id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &inv, err
}

// ListUnrewardedInvitations возвращает приглашения, чей заказ завершён
// раньше completedBefore и кредит по которым ещё не начислен.
func (r *customerRepo) ListUnrewardedInvitations(ctx context.Context, completedBefore time.Time) ([]*models.Invitation, error) {
	var list []*models.Invitation
	err := r.db.WithContext(ctx).
		Joins("JOIN orders ON orders.id = invitations.order_id").
		Where("invitations.rewarded_at IS NULL").
		Where("orders.status = ?", models.OrderStatusCompleted).
		Where("orders.completed_at < ?", completedBefore).
		Find(&list).Error
	return list, err
}

func (r *customerRepo) MarkInvitationRewarded(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Invitation{}).Where("id = ?", id).
		Update("rewarded_at", at).Error
}

func (r *customerRepo) AddHistory(ctx context.Context, h *models.HistoryEntry) error {
	return r.db.WithContext(ctx).Create(h).Error
}

func (r *customerRepo) ListHistory(ctx context.Context, modelType string, modelID uuid.UUID) ([]models.HistoryEntry, error) {
	var rows []models.HistoryEntry
	err := r.db.WithContext(ctx).
		Where("model_type = ? AND model_id = ?", modelType, modelID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
