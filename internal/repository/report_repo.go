package repository

import (
	"context"
	"errors"
	"time"

	"boxshop/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReportRepo interface {
	Add(ctx context.Context, row *models.BoxRunReport) error
	ListForDate(ctx context.Context, date time.Time) ([]models.BoxRunReport, error)
	FindForDay(ctx context.Context, subscriptionID uuid.UUID, date time.Time) (*models.BoxRunReport, error)
}

type reportRepo struct{ db *gorm.DB }

func NewReportRepo(db *gorm.DB) ReportRepo { return &reportRepo{db: db} }

func (r *reportRepo) Add(ctx context.Context, row *models.BoxRunReport) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *reportRepo) ListForDate(ctx context.Context, date time.Time) ([]models.BoxRunReport, error) {
	var rows []models.BoxRunReport
	err := r.db.WithContext(ctx).
		Where("run_date = ?", date.Format("2006-01-02")).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *reportRepo) FindForDay(ctx context.Context, subscriptionID uuid.UUID, date time.Time) (*models.BoxRunReport, error) {
	var row models.BoxRunReport
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND run_date = ?", subscriptionID, date.Format("2006-01-02")).
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &row, err
}
