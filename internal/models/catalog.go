package models

import (
	"time"

	"github.com/google/uuid"
)

type ProductType string

const (
	ProductTypeOneOff       ProductType = "one_off"
	ProductTypeSubscription ProductType = "subscription"
	ProductTypeGiftCard     ProductType = "gift_card"
)

type Product struct {
	ID   uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SKU  string      `gorm:"type:text;not null;uniqueIndex"`
	Name string      `gorm:"type:text;not null"`
	Type ProductType `gorm:"type:text;not null;default:'one_off'"`

	// Цены в валюте магазина; wholesale-цена действует для оптовиков.
	Price          float64  `gorm:"not null"`
	WholesalePrice *float64 // nil — оптовой цены нет, берём обычную

	// Подписочные поля.
	IntervalMonths int  `gorm:"not null;default:1"`     // 1 — ежемесячно, 3 — поквартально
	BoxCount       int  `gorm:"not null;default:0"`     // сколько коробок покрывает покупка (commitment)
	AutoRenew      bool `gorm:"not null;default:false"` // исчерпанный commitment продлевается сам

	// Условия рассрочки: депозит при оформлении и N последующих списаний.
	// InstallmentAmount == 0 — остаток делится равными долями.
	InstallmentCount   int     `gorm:"not null;default:0"`
	InstallmentDeposit float64 `gorm:"not null;default:0"`
	InstallmentAmount  float64 `gorm:"not null;default:0"`

	// Вес единицы в граммах; уходит партнёру по доставке.
	Weight float64 `gorm:"not null;default:0"`

	// Номинал подарочной карты (для Type == gift_card).
	GiftCardValue *float64

	FreeShipping bool `gorm:"not null;default:false"`
	Taxable      bool `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`

	Categories []ProductCategory `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

func (Product) TableName() string { return "products" }

func (p *Product) InCategory(slug string) bool {
	for _, c := range p.Categories {
		if c.Slug == slug {
			return true
		}
	}
	return false
}

// EffectivePrice возвращает цену для клиента с учётом оптового прайса.
func (p *Product) EffectivePrice(wholesale bool) float64 {
	if wholesale && p.WholesalePrice != nil {
		return *p.WholesalePrice
	}
	return p.Price
}

func (p *Product) IsSubscription() bool { return p.Type == ProductTypeSubscription }

type ProductCategory struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:ux_product_categories_product_slug"`
	Slug      string    `gorm:"type:text;not null;index;uniqueIndex:ux_product_categories_product_slug"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (ProductCategory) TableName() string { return "product_categories" }

// ShoppingBox — месячная коробка с ограниченным тиражом. Key имеет вид
// "January 2006", Slug — "january-2006".
type ShoppingBox struct {
	ID   uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Key  string    `gorm:"type:text;not null;uniqueIndex"`
	Slug string    `gorm:"type:text;not null;uniqueIndex"`

	Year  int `gorm:"not null"`
	Month int `gorm:"not null"`

	Stock    int  `gorm:"not null;default:0"`
	Sellable bool `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (ShoppingBox) TableName() string { return "shopping_boxes" }

func (b *ShoppingBox) InStock() bool { return b.Sellable && b.Stock > 0 }
