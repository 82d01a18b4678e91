package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "pending"
	OrderStatusNeedsApproval OrderStatus = "needs_approval"
	OrderStatusProcessing    OrderStatus = "processing"
	OrderStatusCompleted     OrderStatus = "completed"
	OrderStatusCancelled     OrderStatus = "cancelled"
	OrderStatusRefunded      OrderStatus = "refunded"
	OrderStatusFailed        OrderStatus = "failed"
)

// Address — снапшот адреса на момент оформления. Хранится внутри заказа,
// изменения профиля клиента на историю заказов не влияют.
type Address struct {
	Name    string `json:"name"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	Region  string `json:"region,omitempty"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
	Phone   string `json:"phone,omitempty"`
}

type Order struct {
	ID         uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Number     string      `gorm:"type:text;not null;uniqueIndex"`
	CustomerID uuid.UUID   `gorm:"type:uuid;not null;index"`
	Status     OrderStatus `gorm:"type:text;not null;default:'pending';index"`

	// Итоги. Все суммы — в валюте магазина, float64.
	Subtotal       float64 `gorm:"not null;default:0"`
	DiscountTotal  float64 `gorm:"not null;default:0"`
	ShippingTotal  float64 `gorm:"not null;default:0"`
	TaxTotal       float64 `gorm:"not null;default:0"`
	GiftCardAmount float64 `gorm:"not null;default:0"`
	GrandTotal     float64 `gorm:"not null;default:0"`
	Currency       string  `gorm:"type:text;not null;default:'USD'"`

	DiscountCode *string    `gorm:"type:text"`
	GiftCardID   *uuid.UUID `gorm:"type:uuid"`

	ShippingService string  `gorm:"type:text"` // standard / rush
	ShippingAddress Address `gorm:"serializer:json"`
	BillingAddress  Address `gorm:"serializer:json"`

	// Версионированный снапшот корзины: пересчёт заказа воспроизводим,
	// даже если логика расчёта с тех пор менялась.
	Snapshot        OrderSnapshot `gorm:"serializer:json"`
	SnapshotVersion int           `gorm:"not null;default:1"`

	Notes string `gorm:"type:text"`

	PaidAt      *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) IsPaid() bool {
	return o.Status == OrderStatusProcessing || o.Status == OrderStatusCompleted
}

type OrderItem struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	ProductID *uuid.UUID `gorm:"type:uuid"`

	SKU      string  `gorm:"type:text;not null"`
	Name     string  `gorm:"type:text;not null"`
	Quantity int     `gorm:"not null;default:1"`
	Price    float64 `gorm:"not null"` // цена за единицу на момент покупки
	Discount float64 `gorm:"not null;default:0"`
	Weight   float64 `gorm:"not null;default:0"` // за единицу, в граммах
	Free     bool    `gorm:"not null;default:false"`

	// Для подписочных позиций: к какому месяцу относится коробка.
	BoxKey *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (OrderItem) TableName() string { return "order_items" }

func (i *OrderItem) LineTotal() float64 {
	return float64(i.Quantity)*i.Price - i.Discount
}

// OrderSnapshot — зафиксированное состояние корзины и входов расчёта.
type OrderSnapshot struct {
	Items        []SnapshotItem `json:"items"`
	DiscountCode string         `json:"discount_code,omitempty"`
	GiftCardCode string         `json:"gift_card_code,omitempty"`
	TaxRate      float64        `json:"tax_rate"`
	Wholesale    bool           `json:"wholesale"`
	Country      string         `json:"country"`
}

type SnapshotItem struct {
	SKU      string  `json:"sku"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Free     bool    `json:"free,omitempty"`
	BoxKey   string  `json:"box_key,omitempty"`
}

// BoxRunReport — строка отчёта ежедневного прогона подписок.
type BoxRunReport struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	RunDate        time.Time  `gorm:"type:date;not null;index"`
	SubscriptionID uuid.UUID  `gorm:"type:uuid;not null;index"`
	CustomerID     uuid.UUID  `gorm:"type:uuid;not null"`
	BoxKey         string     `gorm:"type:text;not null"`
	Outcome        string     `gorm:"type:text;not null"` // charged / failed / skipped / paused
	OrderID        *uuid.UUID `gorm:"type:uuid"`
	Detail         string     `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (BoxRunReport) TableName() string { return "box_run_reports" }
