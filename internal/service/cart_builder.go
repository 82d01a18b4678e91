package service

import (
	"context"
	"time"

	"boxshop/internal/cart"
	"boxshop/internal/models"
	"boxshop/internal/schedule"

	"github.com/google/uuid"
)

type CartInputItem struct {
	SKU      string
	Quantity int
}

type CartInput struct {
	Items        []CartInputItem
	DiscountCode string
	GiftCardCode string
	Notes        string
	Keep         bool
	Country      string
	Campaign     string
	BuyerIP      string
}

// BuildCart превращает список SKU в типизированную корзину с ценами из
// каталога. Оптовый прайс разрешается здесь же.
func (s *OrderService) BuildCart(ctx context.Context, customerID uuid.UUID, in CartInput) (*cart.Cart, error) {
	customer, err := s.repo.Customers.GetByID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, ErrCustomerNotFound
	}

	c := cart.New(in.Country)
	c.DiscountCode = in.DiscountCode
	c.GiftCardCode = in.GiftCardCode
	c.Notes = in.Notes
	c.KeepOutOfStock = in.Keep
	c.Campaign = in.Campaign
	c.BuyerIP = in.BuyerIP

	now := s.now()
	for _, it := range in.Items {
		p, err := s.repo.Products.GetBySKU(ctx, it.SKU)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, ErrProductNotFound
		}

		qty := it.Quantity
		if qty < 1 {
			qty = 1
		}

		categories := make([]string, 0, len(p.Categories))
		for _, cat := range p.Categories {
			categories = append(categories, cat.Slug)
		}

		id := p.ID
		line := &cart.LineItem{
			ProductID:    &id,
			SKU:          p.SKU,
			Name:         p.Name,
			Categories:   categories,
			Quantity:     qty,
			Price:        p.EffectivePrice(customer.IsWholesaler),
			RegularPrice: p.Price,
			FreeShipping: p.FreeShipping,
			Taxable:      p.Taxable,
			Weight:       p.Weight,
		}
		if p.IsSubscription() {
			line.Subscription = true
			line.IntervalMonths = p.IntervalMonths
			line.BoxCount = p.BoxCount
			line.BoxKey = schedule.BoxKey(now)
			line.AutoRenew = p.AutoRenew
		}
		if p.InstallmentCount > 1 {
			line.InstallmentCount = p.InstallmentCount
			line.InstallmentDeposit = p.InstallmentDeposit
			line.InstallmentAmount = p.InstallmentAmount
		}
		c.Add(line)
	}
	return c, nil
}

// Get возвращает заказ по идентификатору.
func (s *OrderService) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.Orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// PreviewDiscount проверяет код на корзине без оформления заказа и
// возвращает размер скидки с бесплатными допами.
func (s *OrderService) PreviewDiscount(ctx context.Context, customerID uuid.UUID, in CartInput) (float64, []string, error) {
	if in.DiscountCode == "" {
		return 0, nil, ErrDiscountNotFound
	}

	c, err := s.BuildCart(ctx, customerID, in)
	if err != nil {
		return 0, nil, err
	}

	customer, err := s.repo.Customers.GetByID(ctx, customerID)
	if err != nil {
		return 0, nil, err
	}

	d, referrer, err := s.ResolveDiscount(ctx, in.DiscountCode)
	if err != nil {
		return 0, nil, err
	}

	dctx, err := s.discountContext(ctx, customer, d, referrer, c.BuyerIP)
	if err != nil {
		return 0, nil, err
	}
	if err := s.eval.Eligible(d, c, dctx); err != nil {
		return 0, nil, err
	}

	return s.eval.Amount(d, c), s.eval.FreeAddonSKUs(d, c), nil
}

// SetNow подменяет источник времени в тестах.
func (s *OrderService) SetNow(now func() time.Time) { s.now = now }

func (s *SubscriptionService) SetNow(now func() time.Time) { s.now = now }

func (s *InstallmentService) SetNow(now func() time.Time) { s.now = now }

func (s *BoxRunService) SetNow(now func() time.Time) { s.now = now }
