package models

import (
	"time"

	"github.com/google/uuid"
)

type InstallmentStatus string

const (
	InstallmentStatusActive     InstallmentStatus = "active"
	InstallmentStatusCompleted  InstallmentStatus = "completed"
	InstallmentStatusIncomplete InstallmentStatus = "incomplete"
	InstallmentStatusCancelled  InstallmentStatus = "cancelled"
)

// InstallmentPlan — рассрочка по заказу: фиксированное число списаний
// равными долями. Неуспешное списание сдвигает дату по ретрай-лестнице,
// после исчерпания попыток план помечается incomplete.
type InstallmentPlan struct {
	ID         uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID    uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex"`
	CustomerID uuid.UUID         `gorm:"type:uuid;not null;index"`
	Status     InstallmentStatus `gorm:"type:text;not null;default:'active';index"`

	// Депозит списывается вместе с заказом, остаток — по графику. Amount
	// задаёт размер доли явно; ноль — остаток делится поровну.
	Total            float64 `gorm:"not null"`
	Deposit          float64 `gorm:"not null;default:0"`
	Amount           float64 `gorm:"not null;default:0"`
	InstallmentCount int     `gorm:"not null"`
	PaidCount        int     `gorm:"not null;default:0"`

	// Дата следующего списания; nil для завершённых планов.
	NextChargeAt *time.Time `gorm:"index"`

	// Неуспешные попытки текущего списания; сбрасывается успехом.
	FailedAttempts int `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (InstallmentPlan) TableName() string { return "installment_plans" }

// InstallmentAmount — размер одного платежа.
func (p *InstallmentPlan) InstallmentAmount() float64 {
	if p.Amount > 0 {
		return p.Amount
	}
	if p.InstallmentCount == 0 {
		return 0
	}
	return (p.Total - p.Deposit) / float64(p.InstallmentCount)
}

func (p *InstallmentPlan) RemainingAmount() float64 {
	return p.Total - p.Deposit - float64(p.PaidCount)*p.InstallmentAmount()
}
