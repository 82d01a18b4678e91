// Package pricing — расчёт итогов заказа: подсумма, скидка, налог,
// доставка, подарочная карта, итог. Вся арифметика — в полном float64,
// округление только на границе вывода.
package pricing

import (
	"math"

	"boxshop/config"
	"boxshop/internal/cart"
	"boxshop/internal/models"
)

type Totals struct {
	Subtotal      float64
	DiscountTotal float64
	ShippingTotal float64
	TaxTotal      float64
	GiftCardTotal float64
	GrandTotal    float64
}

// Input — всё, что нужно для расчёта. Скидка уже проверена на
// применимость, её сумма посчитана evaluator'ом.
type Input struct {
	Cart     *cart.Cart
	Customer *models.Customer

	Discount       *models.Discount
	DiscountAmount float64

	// Скидки, закреплённые за месяцем подписки; складываются с корзинной.
	SubscriptionDiscount float64

	GiftCardBalance float64
	TaxRate         float64
	ShippingRate    float64
}

type Calculator struct {
	policy config.PricingPolicy
}

func NewCalculator(policy config.PricingPolicy) *Calculator {
	return &Calculator{policy: policy}
}

func (c *Calculator) Compute(in Input) Totals {
	var t Totals

	t.Subtotal = in.Cart.Subtotal()

	t.DiscountTotal = in.DiscountAmount + in.SubscriptionDiscount + in.Cart.ManualDiscount
	if t.DiscountTotal < 0 {
		t.DiscountTotal = 0
	}

	t.ShippingTotal = c.shipping(in)

	// Налог считается от подсуммы за вычетом скидки.
	if in.Customer == nil || !in.Customer.TaxExempt {
		taxable := t.Subtotal - t.DiscountTotal
		if taxable > 0 {
			t.TaxTotal = taxable * in.TaxRate / 100
		}
	}

	before := t.Subtotal + t.TaxTotal + t.ShippingTotal - t.DiscountTotal
	if before < 0 {
		before = 0
	}
	t.GiftCardTotal = math.Min(in.GiftCardBalance, before)

	t.GrandTotal = before - t.GiftCardTotal
	if t.GrandTotal < 0 {
		t.GrandTotal = 0
	}
	return t
}

func (c *Calculator) shipping(in Input) float64 {
	// Товар с бесплатной доставкой перебивает любой выбранный метод.
	for _, it := range in.Cart.Items {
		if it.FreeShipping {
			return 0
		}
	}
	for _, sku := range c.policy.FreeShippingSKUs {
		if in.Cart.HasSKU(sku) {
			return 0
		}
	}

	if in.Discount != nil {
		if in.Discount.Options.FreeShipping {
			return 0
		}
		switch in.Discount.Kind {
		case models.KindFreeShipping:
			return 0
		case models.KindFreeFirstMonth:
			// Коробка бесплатна, доставка — фиксированной ставкой.
			return c.policy.FreeFirstMonthShippingFee
		}
	}

	if in.Customer != nil && in.Customer.IsWholesaler {
		return c.policy.WholesaleShippingFee
	}

	return in.ShippingRate
}

// RequestedService возвращает службу доставки для передачи в fulfillment:
// наличие rush-SKU в корзине переключает её на ускоренную.
func (c *Calculator) RequestedService(ct *cart.Cart) string {
	if c.policy.RushShippingSKU != "" && ct.HasSKU(c.policy.RushShippingSKU) {
		return "rush"
	}
	if ct.ShippingService != "" {
		return ct.ShippingService
	}
	return "standard"
}

// Round2 — округление для границ вывода (снапшоты, события, API).
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
