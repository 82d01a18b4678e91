// Package discount — проверка применимости скидок и расчёт их суммы.
// Отказ в применении — ожидаемая ветка, возвращается значением-ошибкой.
package discount

import (
	"errors"
	"sort"
	"time"

	"boxshop/config"
	"boxshop/internal/cart"
	"boxshop/internal/models"
)

var (
	ErrInactive              = errors.New("discount is not active")
	ErrNotStarted            = errors.New("discount is not started yet")
	ErrExpired               = errors.New("discount has expired")
	ErrUsageLimit            = errors.New("discount usage limit reached")
	ErrAlreadyRedeemed       = errors.New("discount already redeemed by customer")
	ErrWrongCustomer         = errors.New("discount belongs to another customer")
	ErrTagRequired           = errors.New("customer is missing required tag")
	ErrFirstOrderOnly        = errors.New("discount is valid for first order only")
	ErrSubscribersOnly       = errors.New("discount is for subscribers only")
	ErrMinimumNotMet         = errors.New("cart does not meet discount minimum")
	ErrRequiredSKUMissing    = errors.New("cart is missing required product")
	ErrIPLimitReached        = errors.New("discount already redeemed from this address")
	ErrReactivationOnly      = errors.New("discount is reserved for subscription reactivation")
	ErrSubscriptionRequired  = errors.New("discount requires a subscription item")
	ErrCommitmentRequired    = errors.New("discount requires a commitment subscription")
	ErrHasActiveSubscription = errors.New("customer already has an active subscription")
	ErrReferralSelfUse       = errors.New("referral code cannot be used by its owner")
)

// Context — сведения о клиенте, нужные для проверки применимости.
// Собирается оркестратором из репозиториев до вызова Eligible.
type Context struct {
	Customer              *models.Customer
	HasActiveSubscription bool
	PaidOrderCount        int64
	RedemptionCount       int64 // применений этого кода этим клиентом
	IPRedemptionCount     int64 // применений этого кода с IP покупателя
	Referrer              *models.Customer
}

type Evaluator struct {
	subscription config.SubscriptionPolicy
	referral     config.ReferralPolicy
	now          func() time.Time
}

func NewEvaluator(sub config.SubscriptionPolicy, ref config.ReferralPolicy, now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{subscription: sub, referral: ref, now: now}
}

// Eligible проверяет цепочку условий в фиксированном порядке; первая
// несработавшая проверка отклоняет скидку.
func (e *Evaluator) Eligible(d *models.Discount, c *cart.Cart, ctx Context) error {
	now := e.now()

	if !d.Enabled {
		return ErrInactive
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return ErrNotStarted
	}
	if d.ExpiresAt != nil && now.After(*d.ExpiresAt) {
		return ErrExpired
	}
	if d.Exhausted() {
		return ErrUsageLimit
	}
	if ctx.RedemptionCount > 0 {
		return ErrAlreadyRedeemed
	}
	if d.CustomerID != nil && (ctx.Customer == nil || *d.CustomerID != ctx.Customer.ID) {
		return ErrWrongCustomer
	}
	if d.Options.PerIPAddress && ctx.IPRedemptionCount > 0 {
		return ErrIPLimitReached
	}
	if d.Options.RequiredTag != "" {
		if ctx.Customer == nil || !ctx.Customer.HasTag(d.Options.RequiredTag) {
			return ErrTagRequired
		}
	}
	if d.Options.FirstOrderOnly && ctx.PaidOrderCount > 0 {
		return ErrFirstOrderOnly
	}
	if d.Options.SubscribersOnly && !ctx.HasActiveSubscription {
		return ErrSubscribersOnly
	}
	if d.Options.MinimumAmount > 0 {
		scoped := c.ScopedSubtotal(d.Options.SKUs, d.Options.CategorySlugs)
		if scoped < d.Options.MinimumAmount {
			return ErrMinimumNotMet
		}
	}
	if d.Options.MinimumQuantity > 0 {
		if len(c.ScopedUnitPrices(d.Options.SKUs, d.Options.CategorySlugs)) < d.Options.MinimumQuantity {
			return ErrMinimumNotMet
		}
	}
	for _, sku := range d.Options.RequiredSKUs {
		if !c.HasSKU(sku) {
			return ErrRequiredSKUMissing
		}
	}

	return e.structuralCheck(d, c, ctx)
}

// structuralCheck — требования, специфичные для вида скидки и состава
// корзины.
func (e *Evaluator) structuralCheck(d *models.Discount, c *cart.Cart, ctx Context) error {
	// Reactivation-коды в корзине не принимаются: их закрепляет за
	// подпиской возобновление.
	if d.Options.ReactivationOnly {
		return ErrReactivationOnly
	}
	// Скидка подписочной коробки (в том числе растянутая на будущие
	// месяцы) требует подписочной позиции в корзине.
	if (d.Options.SubscriptionBoxOnly || d.Options.FutureMonths > 0) && c.SubscriptionItem() == nil {
		return ErrSubscriptionRequired
	}

	switch d.Kind {
	case models.KindFreeFirstMonth:
		item := c.SubscriptionItem()
		if item == nil {
			return ErrSubscriptionRequired
		}
		if item.BoxCount <= 1 {
			return ErrCommitmentRequired
		}
		if ctx.HasActiveSubscription {
			return ErrHasActiveSubscription
		}
	case models.KindReferral:
		if ctx.Referrer == nil {
			return ErrInactive
		}
		if ctx.Customer != nil && ctx.Referrer.ID == ctx.Customer.ID {
			return ErrReferralSelfUse
		}
	case models.KindReferral50:
		if ctx.Referrer != nil && ctx.Customer != nil && ctx.Referrer.ID == ctx.Customer.ID {
			return ErrReferralSelfUse
		}
	}
	return nil
}

// Amount считает денежный размер скидки для корзины. Проценты всегда
// берутся от отфильтрованной по области подсуммы, не от всей корзины.
func (e *Evaluator) Amount(d *models.Discount, c *cart.Cart) float64 {
	opt := d.Options
	scoped := c.ScopedSubtotal(opt.SKUs, opt.CategorySlugs)

	switch d.Kind {
	case models.KindPercentage:
		return scoped * opt.Value / 100

	case models.KindFixed:
		if opt.Value > scoped {
			return scoped
		}
		return opt.Value

	case models.KindFreeShipping:
		return 0

	case models.KindFreeFirstMonth:
		// Коробка первого месяца бесплатна; доставка оплачивается
		// отдельной фиксированной ставкой (см. расчёт доставки).
		if item := c.SubscriptionItem(); item != nil {
			return item.Price
		}
		return 0

	case models.KindBuyOneGetOne:
		return bogoAmount(c.ScopedUnitPrices(opt.SKUs, opt.CategorySlugs), opt.PairPercent)

	case models.KindTiered:
		return tieredAmount(opt.Tiers, scoped)

	case models.KindSpecialOfferCategory:
		return groupAmount(c.ScopedUnitPrices(opt.SKUs, opt.CategorySlugs), opt.GroupSize, opt.GroupPrice)

	case models.KindFreeProductPlus:
		var amount float64
		if item := c.Find(opt.FreeSKU); item != nil && !item.Free {
			amount = item.Price
		}
		if opt.Value > 0 {
			rest := scoped - amount
			if rest < 0 {
				rest = 0
			}
			amount += rest * opt.Value / 100
		}
		return amount

	case models.KindReferral:
		return e.referral.DiscountValue

	case models.KindReferral50:
		return e.referral.Referral50Amount
	}

	return 0
}

// FreeAddonSKUs — товары, добавляемые скидкой бесплатно. Tiered-скидка
// дополнительно дарит допы выигравшей ступени.
func (e *Evaluator) FreeAddonSKUs(d *models.Discount, c *cart.Cart) []string {
	skus := d.Options.FreeAddonSKUs
	if d.Kind == models.KindTiered {
		scoped := c.ScopedSubtotal(d.Options.SKUs, d.Options.CategorySlugs)
		if t := bestTier(d.Options.Tiers, scoped); t != nil && len(t.FreeAddonSKUs) > 0 {
			skus = append(append([]string(nil), skus...), t.FreeAddonSKUs...)
		}
	}
	return skus
}

// bogoAmount — парная скидка "купи один — получи скидку на второй":
// единицы сортируются по убыванию цены и соединяются в пары, скидка
// берётся с более дешёвого в каждой паре. Непарная единица не считается.
func bogoAmount(prices []float64, pairPercent float64) float64 {
	if len(prices) < 2 || pairPercent <= 0 {
		return 0
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(prices)))

	var total float64
	for i := 0; i+1 < len(prices); i += 2 {
		total += prices[i+1] * pairPercent / 100
	}
	return total
}

// bestTier выбирает наивысшую ступень, чей порог достигнут (не первую
// подходящую).
func bestTier(tiers []models.TierRule, scoped float64) *models.TierRule {
	best := -1
	for i, t := range tiers {
		if scoped >= t.Threshold && (best == -1 || t.Threshold > tiers[best].Threshold) {
			best = i
		}
	}
	if best == -1 {
		return nil
	}
	return &tiers[best]
}

func tieredAmount(tiers []models.TierRule, scoped float64) float64 {
	t := bestTier(tiers, scoped)
	if t == nil {
		return 0
	}
	if t.Percentage {
		return scoped * t.Amount / 100
	}
	if t.Amount > scoped {
		return scoped
	}
	return t.Amount
}

// groupAmount: каждые groupSize единиц категории продаются за groupPrice.
// Единицы группируются от дешёвых к дорогим, неполная группа не считается.
func groupAmount(prices []float64, groupSize int, groupPrice float64) float64 {
	if groupSize < 1 || len(prices) < groupSize {
		return 0
	}
	sort.Float64s(prices)

	var total float64
	for i := 0; i+groupSize <= len(prices); i += groupSize {
		var group float64
		for j := 0; j < groupSize; j++ {
			group += prices[i+j]
		}
		if d := group - groupPrice; d > 0 {
			total += d
		}
	}
	return total
}
