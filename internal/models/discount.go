package models

import (
	"time"

	"github.com/google/uuid"
)

// DiscountKind — закрытый набор видов скидок. Каждому виду соответствует
// своя ветка расчёта в evaluator'е.
type DiscountKind string

const (
	KindPercentage           DiscountKind = "percentage"
	KindFixed                DiscountKind = "fixed"
	KindFreeShipping         DiscountKind = "free_shipping"
	KindFreeFirstMonth       DiscountKind = "free_first_month"
	KindBuyOneGetOne         DiscountKind = "buy_one_get_one"
	KindTiered               DiscountKind = "tiered"
	KindSpecialOfferCategory DiscountKind = "special_offer_category"
	KindFreeProductPlus      DiscountKind = "free_product_plus_discount"
	KindReferral             DiscountKind = "referral"
	KindReferral50           DiscountKind = "referral50"
)

// TierRule — ступень tiered-скидки: при сумме корзины от Threshold
// действует Amount (фиксированная сумма либо процент — по Percentage).
// Ступень может дополнительно дарить свои допы.
type TierRule struct {
	Threshold     float64  `json:"threshold"`
	Amount        float64  `json:"amount"`
	Percentage    bool     `json:"percentage"`
	FreeAddonSKUs []string `json:"free_addon_skus,omitempty"`
}

// DiscountOptions — параметры скидки с фиксированными полями. Поля
// осмысленны только для соответствующего Kind, остальные игнорируются.
type DiscountOptions struct {
	// percentage / fixed
	Value float64 `json:"value,omitempty"`

	// Область действия: пустой срез — вся корзина.
	CategorySlugs []string `json:"category_slugs,omitempty"`
	SKUs          []string `json:"skus,omitempty"`

	// buy_one_get_one: скидка на парный (более дешёвый) товар, в процентах.
	PairPercent float64 `json:"pair_percent,omitempty"`

	// tiered
	Tiers []TierRule `json:"tiers,omitempty"`

	// special_offer_category: каждые GroupSize товаров категории — по GroupPrice.
	GroupSize  int     `json:"group_size,omitempty"`
	GroupPrice float64 `json:"group_price,omitempty"`

	// free_product_plus_discount
	FreeSKU string `json:"free_sku,omitempty"`

	// Скидка любого вида дополнительно дарит доставку.
	FreeShipping bool `json:"free_shipping,omitempty"`

	// Скидка на будущие месяцы подписки: FutureValue на каждый из
	// FutureMonths циклов вперёд.
	FutureValue  float64 `json:"future_value,omitempty"`
	FutureMonths int     `json:"future_months,omitempty"`

	// Бесплатные допы, добавляемые скидкой в заказ.
	FreeAddonSKUs []string `json:"free_addon_skus,omitempty"`

	// Требования к клиенту.
	RequiredTag     string `json:"required_tag,omitempty"`
	FirstOrderOnly  bool   `json:"first_order_only,omitempty"`
	SubscribersOnly bool   `json:"subscribers_only,omitempty"`

	// Одно применение с каждого IP-адреса.
	PerIPAddress bool `json:"per_ip_address,omitempty"`

	// Скидка действует только на подписочный чек-аут; reactivation-коды
	// вдобавок не принимаются в корзине вовсе — их сажает на подписку
	// возобновление.
	SubscriptionBoxOnly bool `json:"subscription_box_only,omitempty"`
	ReactivationOnly    bool `json:"reactivation_only,omitempty"`

	// Требования к корзине.
	MinimumAmount   float64  `json:"minimum_amount,omitempty"`
	MinimumQuantity int      `json:"minimum_quantity,omitempty"`
	RequiredSKUs    []string `json:"required_skus,omitempty"`
}

type Discount struct {
	ID   uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Code string       `gorm:"type:text;not null;uniqueIndex"`
	Kind DiscountKind `gorm:"type:text;not null"`

	Options DiscountOptions `gorm:"serializer:json;not null"`

	// Ограничения по времени и числу применений.
	StartsAt   *time.Time
	ExpiresAt  *time.Time
	UsageLimit *int // nil — без лимита
	UsedCount  int  `gorm:"not null;default:0"`

	// Персональная скидка: применима только этим клиентом.
	CustomerID *uuid.UUID `gorm:"type:uuid;index"`

	Enabled bool `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Discount) TableName() string { return "discounts" }

func (d *Discount) Exhausted() bool {
	return d.UsageLimit != nil && d.UsedCount >= *d.UsageLimit
}

// DiscountRedemption фиксирует применение скидки в оплаченном заказе.
type DiscountRedemption struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DiscountID uuid.UUID `gorm:"type:uuid;not null;index"`
	OrderID    uuid.UUID `gorm:"type:uuid;not null;index"`
	CustomerID uuid.UUID `gorm:"type:uuid;not null;index"`
	Amount     float64   `gorm:"not null"`

	// Откуда пришёл покупатель: рекламная кампания и IP на момент заказа.
	Campaign string `gorm:"type:text"`
	BuyerIP  string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (DiscountRedemption) TableName() string { return "discount_redemptions" }

type GiftCard struct {
	ID      uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Code    string    `gorm:"type:text;not null;uniqueIndex"`
	Balance float64   `gorm:"not null;default:0"`

	// Покупатель карты и заказ, в котором она была куплена.
	PurchaserID *uuid.UUID `gorm:"type:uuid;index"`
	OrderID     *uuid.UUID `gorm:"type:uuid;index"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (GiftCard) TableName() string { return "gift_cards" }
