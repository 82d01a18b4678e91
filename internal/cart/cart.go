// Package cart — корзина запроса: типизированные позиции и операции над
// ними до сборки заказа. Состояние живёт в рамках одного запроса.
package cart

import (
	"github.com/google/uuid"
)

// LineItem — позиция корзины. Цена уже разрешена с учётом оптового
// прайса; Free помечает товары, добавленные скидкой бесплатно.
type LineItem struct {
	ProductID    *uuid.UUID
	SKU          string
	Name         string
	Categories   []string
	Quantity     int
	Price        float64 // эффективная цена за единицу
	RegularPrice float64
	FreeShipping bool
	Taxable      bool
	Free         bool

	// Подписочные поля (нулевые для обычных товаров).
	Subscription   bool
	IntervalMonths int
	BoxCount       int
	BoxKey         string
	AutoRenew      bool

	// Товар продаётся в рассрочку: депозит сейчас, остаток в N платежей.
	InstallmentCount   int
	InstallmentDeposit float64
	InstallmentAmount  float64

	// Вес единицы в граммах.
	Weight float64
}

func (i *LineItem) InCategory(slug string) bool {
	for _, c := range i.Categories {
		if c == slug {
			return true
		}
	}
	return false
}

// LineTotal: количество меньше единицы считается как одна штука.
func (i *LineItem) LineTotal() float64 {
	q := i.Quantity
	if q < 0 {
		q = -q
	}
	if q < 1 {
		q = 1
	}
	return i.Price * float64(q)
}

type Cart struct {
	Items []*LineItem

	DiscountCode string
	GiftCardCode string

	// Ручная скидка оператора поверх кода (не более одной).
	ManualDiscount float64

	Notes           string
	Country         string
	ShippingService string

	// Атрибуция заказа: рекламная кампания и IP покупателя.
	Campaign string
	BuyerIP  string

	// Подписка оформляется даже если коробка месяца распродана.
	KeepOutOfStock bool
}

func New(country string) *Cart {
	return &Cart{Country: country}
}

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

// Add добавляет позицию, объединяя одинаковые SKU.
func (c *Cart) Add(item *LineItem) {
	if !item.Free {
		for _, it := range c.Items {
			if it.SKU == item.SKU && !it.Free {
				it.Quantity += item.Quantity
				return
			}
		}
	}
	c.Items = append(c.Items, item)
}

// SetQuantity меняет количество; ноль удаляет позицию.
func (c *Cart) SetQuantity(sku string, qty int) {
	if qty <= 0 {
		c.Remove(sku)
		return
	}
	for _, it := range c.Items {
		if it.SKU == sku && !it.Free {
			it.Quantity = qty
			return
		}
	}
}

func (c *Cart) Remove(sku string) {
	kept := c.Items[:0]
	for _, it := range c.Items {
		if it.SKU != sku {
			kept = append(kept, it)
		}
	}
	c.Items = kept
}

// ClearFree убирает бесплатные позиции перед пересчётом скидки.
func (c *Cart) ClearFree() {
	kept := c.Items[:0]
	for _, it := range c.Items {
		if !it.Free {
			kept = append(kept, it)
		}
	}
	c.Items = kept
}

func (c *Cart) Find(sku string) *LineItem {
	for _, it := range c.Items {
		if it.SKU == sku {
			return it
		}
	}
	return nil
}

func (c *Cart) HasSKU(sku string) bool { return c.Find(sku) != nil }

// SubscriptionItem возвращает первую подписочную позицию корзины.
func (c *Cart) SubscriptionItem() *LineItem {
	for _, it := range c.Items {
		if it.Subscription {
			return it
		}
	}
	return nil
}

func (c *Cart) TotalQuantity() int {
	n := 0
	for _, it := range c.Items {
		if !it.Free {
			n += it.Quantity
		}
	}
	return n
}

// Subtotal — сумма позиций без учёта скидок; бесплатные не считаются.
func (c *Cart) Subtotal() float64 {
	var sum float64
	for _, it := range c.Items {
		if it.Free {
			continue
		}
		sum += it.LineTotal()
	}
	return sum
}

// ScopedSubtotal — сумма позиций, попадающих в область действия скидки.
// Пустые списки означают «вся корзина».
func (c *Cart) ScopedSubtotal(skus, categories []string) float64 {
	var sum float64
	for _, it := range c.Items {
		if it.Free {
			continue
		}
		if inScope(it, skus, categories) {
			sum += it.LineTotal()
		}
	}
	return sum
}

// ScopedUnitPrices разворачивает попавшие в область позиции в список цен
// по одной на единицу товара (для парных и групповых скидок).
func (c *Cart) ScopedUnitPrices(skus, categories []string) []float64 {
	var prices []float64
	for _, it := range c.Items {
		if it.Free {
			continue
		}
		if !inScope(it, skus, categories) {
			continue
		}
		q := it.Quantity
		if q < 1 {
			q = 1
		}
		for j := 0; j < q; j++ {
			prices = append(prices, it.Price)
		}
	}
	return prices
}

func inScope(it *LineItem, skus, categories []string) bool {
	if len(skus) == 0 && len(categories) == 0 {
		return true
	}
	for _, s := range skus {
		if it.SKU == s {
			return true
		}
	}
	for _, cat := range categories {
		if it.InCategory(cat) {
			return true
		}
	}
	return false
}
