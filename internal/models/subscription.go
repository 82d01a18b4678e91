package models

import (
	"time"

	"github.com/google/uuid"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive  SubscriptionStatus = "active"
	SubscriptionStatusPaused  SubscriptionStatus = "paused"
	SubscriptionStatusStopped SubscriptionStatus = "stopped"
)

type Subscription struct {
	ID         uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID uuid.UUID          `gorm:"type:uuid;not null;index"`
	Status     SubscriptionStatus `gorm:"type:text;not null;default:'active';index"`

	// SKU подписочного продукта, по которому клиент подписался.
	ProductSKU string `gorm:"type:text;not null"`

	// День месяца для списания (после консолидации: 1..28, хвост месяца
	// прижат к 20-му).
	BillingDay int `gorm:"not null"`

	// 1 — ежемесячно, 3 — поквартально.
	IntervalMonths int `gorm:"not null;default:1"`

	// Исчерпание последнего commitment-блока открывает новый вместо
	// остановки подписки.
	AutoRenew bool `gorm:"not null;default:false"`

	// Ключ последней оплаченной коробки ("January 2006"); пустой до первого
	// списания.
	LastBoxKey string `gorm:"type:text"`

	Price float64 `gorm:"not null"`

	// Подряд идущие неуспешные списания; сбрасывается успешным.
	FailedCharges int `gorm:"not null;default:0"`

	// До какого месяца подписка на паузе (включительно, ключ коробки).
	PausedUntil *time.Time

	ShippingAddress Address `gorm:"serializer:json"`

	StoppedAt *time.Time
	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`

	Commitments []Commitment `gorm:"foreignKey:SubscriptionID;constraint:OnDelete:CASCADE"`
}

func (Subscription) TableName() string { return "subscriptions" }

type CommitmentStatus string

const (
	CommitmentStatusCurrent CommitmentStatus = "current"
	CommitmentStatusPending CommitmentStatus = "pending"
	CommitmentStatusDone    CommitmentStatus = "done"
)

// Commitment — предоплаченный блок коробок. Одновременно существует один
// current и заранее созданные pending; по исчерпании current следующий
// pending продвигается, а при отсутствии pending подписка останавливается.
type Commitment struct {
	ID             uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID uuid.UUID        `gorm:"type:uuid;not null;index"`
	Status         CommitmentStatus `gorm:"type:text;not null;default:'pending';index"`

	// Сколько коробок покрывает блок и сколько уже отгружено.
	BoxCount  int `gorm:"not null"`
	BoxesUsed int `gorm:"not null;default:0"`

	// Порядок продвижения pending-блоков.
	Position int `gorm:"not null;default:0"`

	// Заказ, которым блок был оплачен (pending-блоки ещё не оплачены).
	OrderID *uuid.UUID `gorm:"type:uuid"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Commitment) TableName() string { return "commitments" }

func (c *Commitment) Remaining() int { return c.BoxCount - c.BoxesUsed }

// SubscriptionSkip — пропуск конкретного месяца (по ключу коробки).
type SubscriptionSkip struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:ux_subscription_skips_sub_box"`
	BoxKey         string    `gorm:"type:text;not null;uniqueIndex:ux_subscription_skips_sub_box"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (SubscriptionSkip) TableName() string { return "subscription_skips" }

// SubscriptionGift — отправка коробки месяца по другому адресу (подарок).
type SubscriptionGift struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:ux_subscription_gifts_sub_box"`
	BoxKey         string    `gorm:"type:text;not null;uniqueIndex:ux_subscription_gifts_sub_box"`

	RecipientName  string  `gorm:"type:text;not null"`
	RecipientEmail string  `gorm:"type:text"`
	Address        Address `gorm:"serializer:json"`
	Message        string  `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (SubscriptionGift) TableName() string { return "subscription_gifts" }

// SubscriptionAddon — дополнительный товар, прикреплённый к месяцу.
type SubscriptionAddon struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID uuid.UUID `gorm:"type:uuid;not null;index"`
	BoxKey         string    `gorm:"type:text;not null;index"`
	ProductSKU     string    `gorm:"type:text;not null"`
	Quantity       int       `gorm:"not null;default:1"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (SubscriptionAddon) TableName() string { return "subscription_addons" }

// SubscriptionExchange — замена коробки месяца на другой товар: в цикле
// BoxKey вместо подписочного SKU отгружается ProductSKU.
type SubscriptionExchange struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:ux_subscription_exchanges_sub_box"`
	BoxKey         string    `gorm:"type:text;not null;uniqueIndex:ux_subscription_exchanges_sub_box"`
	ProductSKU     string    `gorm:"type:text;not null"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (SubscriptionExchange) TableName() string { return "subscription_exchanges" }

// SubscriptionDiscount — скидка, закреплённая за будущим месяцем подписки
// (например, referral50 создаёт несколько таких строк вперёд).
type SubscriptionDiscount struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:ux_subscription_discounts_sub_box"`
	BoxKey         string    `gorm:"type:text;not null;uniqueIndex:ux_subscription_discounts_sub_box"`

	Code   string  `gorm:"type:text;not null"`
	Amount float64 `gorm:"not null"`

	UsedAt    *time.Time
	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (SubscriptionDiscount) TableName() string { return "subscription_discounts" }
