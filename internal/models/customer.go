package models

import (
	"time"

	"github.com/google/uuid"
)

type Customer struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email     string    `gorm:"type:text;not null;uniqueIndex"`
	FirstName string    `gorm:"type:text"`
	LastName  string    `gorm:"type:text"`

	// Оптовик: отдельное ценообразование, доставка и approve первого заказа.
	IsWholesaler bool `gorm:"not null;default:false"`
	TaxExempt    bool `gorm:"not null;default:false"`

	// Реферальный share-код клиента (выдаётся по запросу).
	ShareCode *string `gorm:"type:text;uniqueIndex"`

	PaymentToken *string `gorm:"type:text"` // токен аккаунта в платёжном шлюзе

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`

	Tags []CustomerTag `gorm:"foreignKey:CustomerID;constraint:OnDelete:CASCADE"`
}

func (Customer) TableName() string { return "customers" }

func (c *Customer) HasTag(name string) bool {
	for _, t := range c.Tags {
		if t.Name == name {
			return true
		}
	}
	return false
}

func (c *Customer) TagNames() []string {
	names := make([]string, 0, len(c.Tags))
	for _, t := range c.Tags {
		names = append(names, t.Name)
	}
	return names
}

type CustomerTag struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:ux_customer_tags_customer_name"`
	Name       string    `gorm:"type:text;not null;uniqueIndex:ux_customer_tags_customer_name"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (CustomerTag) TableName() string { return "customer_tags" }

// Invitation связывает приглашённого клиента с реферером. Создаётся при
// применении реферального кода; кредит рефереру начисляется отдельно,
// после завершения заказа и анти-фрод паузы.
type Invitation struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID uuid.UUID  `gorm:"type:uuid;not null;index"` // приглашённый
	ReferrerID uuid.UUID  `gorm:"type:uuid;not null;index"`
	OrderID    *uuid.UUID `gorm:"type:uuid;index"`

	RewardedAt *time.Time
	CreatedAt  time.Time `gorm:"not null;default:now()"`
}

func (Invitation) TableName() string { return "invitations" }

// HistoryEntry — журнал событий по сущности (например, списания по
// installment-плану).
type HistoryEntry struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ModelType string         `gorm:"type:text;not null;index:ix_history_model"`
	ModelID   uuid.UUID      `gorm:"type:uuid;not null;index:ix_history_model"`
	Type      string         `gorm:"type:text;not null"`
	Data      map[string]any `gorm:"serializer:json"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (HistoryEntry) TableName() string { return "history" }
