package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"boxshop/config"
	"boxshop/internal/cart"
	"boxshop/internal/discount"
	"boxshop/internal/fulfillment"
	"boxshop/internal/models"
	"boxshop/internal/pricing"
	"boxshop/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderService struct {
	repo        *repository.Repository
	calc        *pricing.Calculator
	eval        *discount.Evaluator
	tax         TaxService
	fulfillment fulfillment.Client
	events      EventBus
	shop        config.ShopConfig
	log         *zap.Logger
	now         func() time.Time
}

func NewOrderService(
	repo *repository.Repository,
	calc *pricing.Calculator,
	eval *discount.Evaluator,
	tax TaxService,
	fc fulfillment.Client,
	events EventBus,
	shop config.ShopConfig,
	log *zap.Logger,
) *OrderService {
	return &OrderService{
		repo:        repo,
		calc:        calc,
		eval:        eval,
		tax:         tax,
		fulfillment: fc,
		events:      events,
		shop:        shop,
		log:         log,
		now:         time.Now,
	}
}

type CheckoutInput struct {
	CustomerID      uuid.UUID
	Cart            *cart.Cart
	ShippingAddress models.Address
	BillingAddress  *models.Address // nil — совпадает с доставкой
	ShippingRate    float64
}

// ResolveDiscount находит скидку по коду. Код, совпадающий с
// share-кодом клиента, превращается в реферальную скидку на лету.
func (s *OrderService) ResolveDiscount(ctx context.Context, code string) (*models.Discount, *models.Customer, error) {
	d, err := s.repo.Discounts.GetByCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if d != nil {
		return d, nil, nil
	}

	referrer, err := s.repo.Customers.GetByShareCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if referrer == nil {
		return nil, nil, ErrDiscountNotFound
	}
	return &models.Discount{
		Code:    code,
		Kind:    models.KindReferral,
		Enabled: true,
	}, referrer, nil
}

// discountContext собирает сведения о клиенте для проверки применимости.
func (s *OrderService) discountContext(ctx context.Context, customer *models.Customer, d *models.Discount, referrer *models.Customer, buyerIP string) (discount.Context, error) {
	dctx := discount.Context{Customer: customer, Referrer: referrer}

	paid, err := s.repo.Customers.CountPaidOrders(ctx, customer.ID)
	if err != nil {
		return dctx, err
	}
	dctx.PaidOrderCount = paid

	sub, err := s.repo.Subscriptions.GetActiveByCustomer(ctx, customer.ID)
	if err != nil {
		return dctx, err
	}
	dctx.HasActiveSubscription = sub != nil

	if d.ID != uuid.Nil {
		reds, err := s.repo.Discounts.CountRedemptionsByCustomer(ctx, d.ID, customer.ID)
		if err != nil {
			return dctx, err
		}
		dctx.RedemptionCount = reds

		if d.Options.PerIPAddress && buyerIP != "" {
			ipReds, err := s.repo.Discounts.CountRedemptionsByIP(ctx, d.ID, buyerIP)
			if err != nil {
				return dctx, err
			}
			dctx.IPRedemptionCount = ipReds
		}
	}

	if referrer == nil && d.Kind == models.KindReferral {
		ref, err := s.repo.Customers.GetByShareCode(ctx, d.Code)
		if err != nil {
			return dctx, err
		}
		dctx.Referrer = ref
	}

	return dctx, nil
}

// Checkout собирает корзину в заказ: перепроверяет скидку, считает
// итоги, сохраняет заказ с позициями и запускает сопутствующие эффекты
// (подписка, рассрочка, списание подарочной карты).
func (s *OrderService) Checkout(ctx context.Context, in CheckoutInput) (*models.Order, error) {
	if in.Cart == nil || in.Cart.IsEmpty() {
		return nil, ErrEmptyCart
	}
	if in.CustomerID == uuid.Nil {
		return nil, ErrNoCustomer
	}

	customer, err := s.repo.Customers.GetByID(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, ErrCustomerNotFound
	}

	now := s.now()

	// Скидка перепроверяется на момент оформления; переставшая подходить
	// молча снимается, бесплатные допы пересчитываются.
	var (
		appliedDiscount *models.Discount
		referrer        *models.Customer
		discountAmount  float64
	)
	in.Cart.ClearFree()
	if in.Cart.DiscountCode != "" {
		d, ref, err := s.ResolveDiscount(ctx, in.Cart.DiscountCode)
		if err != nil && err != ErrDiscountNotFound {
			return nil, err
		}
		if d != nil {
			dctx, err := s.discountContext(ctx, customer, d, ref, in.Cart.BuyerIP)
			if err != nil {
				return nil, err
			}
			if eligErr := s.eval.Eligible(d, in.Cart, dctx); eligErr != nil {
				s.log.Info("Скидка снята при оформлении заказа",
					zap.String("code", d.Code), zap.Error(eligErr))
				in.Cart.DiscountCode = ""
			} else {
				appliedDiscount = d
				referrer = dctx.Referrer
				if err := s.attachFreeAddons(ctx, d, in.Cart); err != nil {
					return nil, err
				}
				discountAmount = s.eval.Amount(d, in.Cart)
			}
		} else {
			in.Cart.DiscountCode = ""
		}
	}

	if customer.IsWholesaler && in.Cart.Subtotal() < s.shop.Pricing.WholesaleMinimumOrder {
		return nil, ErrWholesaleMinimum
	}

	var giftCard *models.GiftCard
	if in.Cart.GiftCardCode != "" {
		giftCard, err = s.repo.GiftCards.GetByCode(ctx, in.Cart.GiftCardCode)
		if err != nil {
			return nil, err
		}
		if giftCard == nil {
			return nil, ErrGiftCardNotFound
		}
		if giftCard.Balance <= 0 {
			return nil, ErrGiftCardEmpty
		}
	}

	var taxRate float64
	if !customer.TaxExempt {
		taxRate, err = s.tax.RateFor(ctx, in.ShippingAddress.Country, in.ShippingAddress.Region, in.ShippingAddress.Zip)
		if err != nil {
			return nil, err
		}
	}

	var giftBalance float64
	if giftCard != nil {
		giftBalance = giftCard.Balance
	}
	totals := s.calc.Compute(pricing.Input{
		Cart:            in.Cart,
		Customer:        customer,
		Discount:        appliedDiscount,
		DiscountAmount:  discountAmount,
		GiftCardBalance: giftBalance,
		TaxRate:         taxRate,
		ShippingRate:    in.ShippingRate,
	})

	number, err := s.nextOrderNumber(ctx, now)
	if err != nil {
		return nil, err
	}

	status := models.OrderStatusPending
	if customer.IsWholesaler {
		// Первый оптовый заказ уходит на ручное подтверждение.
		paid, err := s.repo.Customers.CountPaidOrders(ctx, customer.ID)
		if err != nil {
			return nil, err
		}
		if paid == 0 {
			status = models.OrderStatusNeedsApproval
		}
	}

	order := &models.Order{
		Number:          number,
		CustomerID:      customer.ID,
		Status:          status,
		Subtotal:        totals.Subtotal,
		DiscountTotal:   totals.DiscountTotal,
		ShippingTotal:   totals.ShippingTotal,
		TaxTotal:        totals.TaxTotal,
		GiftCardAmount:  totals.GiftCardTotal,
		GrandTotal:      totals.GrandTotal,
		Currency:        s.shop.Currency,
		ShippingService: s.calc.RequestedService(in.Cart),
		ShippingAddress: in.ShippingAddress,
		Notes:           in.Cart.Notes,
		Snapshot:        buildSnapshot(in.Cart, taxRate, customer),
		SnapshotVersion: 1,
		CreatedAt:       now,
		UpdatedAt:       now,
		Items:           buildOrderItems(in.Cart, now),
	}
	if appliedDiscount != nil {
		code := appliedDiscount.Code
		order.DiscountCode = &code
	}
	if giftCard != nil {
		order.GiftCardID = &giftCard.ID
	}
	if in.BillingAddress != nil && *in.BillingAddress != in.ShippingAddress {
		order.BillingAddress = *in.BillingAddress
	} else {
		order.BillingAddress = in.ShippingAddress
	}

	err = s.repo.WithTx(func(tx *repository.Repository) error {
		if err := tx.Orders.Create(ctx, order); err != nil {
			return err
		}

		if appliedDiscount != nil && appliedDiscount.ID != uuid.Nil {
			if err := tx.Discounts.IncrementUsage(ctx, appliedDiscount.ID); err != nil {
				return err
			}
			if err := tx.Discounts.CreateRedemption(ctx, &models.DiscountRedemption{
				DiscountID: appliedDiscount.ID,
				OrderID:    order.ID,
				CustomerID: customer.ID,
				Amount:     discountAmount,
				Campaign:   in.Cart.Campaign,
				BuyerIP:    in.Cart.BuyerIP,
			}); err != nil {
				return err
			}
		}

		if giftCard != nil && totals.GiftCardTotal > 0 {
			if err := tx.GiftCards.Debit(ctx, giftCard.ID, totals.GiftCardTotal); err != nil {
				return err
			}
		}

		if referrer != nil {
			if err := tx.Customers.CreateInvitation(ctx, &models.Invitation{
				CustomerID: customer.ID,
				ReferrerID: referrer.ID,
				OrderID:    &order.ID,
			}); err != nil {
				return err
			}
		}

		if item := in.Cart.SubscriptionItem(); item != nil {
			if err := s.subscribeInTx(ctx, tx, customer, order, in.Cart, item, appliedDiscount, now); err != nil {
				return err
			}
		}

		for _, it := range in.Cart.Items {
			if it.InstallmentCount > 1 {
				if err := s.createInstallmentPlanInTx(ctx, tx, customer, order, it, now); err != nil {
					return err
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.events.PublishOrderCreated(ctx, OrderCreatedEvent{
		OrderID:     order.ID,
		Number:      order.Number,
		CustomerID:  customer.ID,
		GrandTotal:  pricing.Round2(order.GrandTotal),
		Currency:    order.Currency,
		Subscribing: in.Cart.SubscriptionItem() != nil,
		CreatedAt:   now,
	}); err != nil {
		s.log.Error("Не удалось опубликовать событие создания заказа",
			zap.String("order", order.Number), zap.Error(err))
	}

	return order, nil
}

func (s *OrderService) attachFreeAddons(ctx context.Context, d *models.Discount, c *cart.Cart) error {
	skus := s.eval.FreeAddonSKUs(d, c)
	if len(skus) == 0 {
		return nil
	}
	products, err := s.repo.Products.ListBySKUs(ctx, skus)
	if err != nil {
		return err
	}
	for _, p := range products {
		id := p.ID
		c.Add(&cart.LineItem{
			ProductID: &id,
			SKU:       p.SKU,
			Name:      p.Name,
			Quantity:  1,
			Price:     0,
			Free:      true,
		})
	}
	return nil
}

func (s *OrderService) nextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	cnt, err := s.repo.Orders.CountForDay(ctx, now)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("BX-%s-%04d", now.Format("20060102"), cnt+1), nil
}

// buildOrderItems раскладывает позиции: сначала обычные по имени, затем
// бесплатные допы.
func buildOrderItems(c *cart.Cart, now time.Time) []models.OrderItem {
	regular := make([]*cart.LineItem, 0, len(c.Items))
	free := make([]*cart.LineItem, 0)
	for _, it := range c.Items {
		if it.Free {
			free = append(free, it)
		} else {
			regular = append(regular, it)
		}
	}
	sort.Slice(regular, func(i, j int) bool { return regular[i].Name < regular[j].Name })

	out := make([]models.OrderItem, 0, len(c.Items))
	for _, it := range append(regular, free...) {
		row := models.OrderItem{
			ProductID: it.ProductID,
			SKU:       it.SKU,
			Name:      it.Name,
			Quantity:  maxInt(1, it.Quantity),
			Price:     it.Price,
			Weight:    it.Weight,
			Free:      it.Free,
			CreatedAt: now,
		}
		if it.BoxKey != "" {
			key := it.BoxKey
			row.BoxKey = &key
			if it.Subscription {
				row.Name = fmt.Sprintf("%s (%s)", it.Name, key)
			}
		}
		out = append(out, row)
	}
	return out
}

func buildSnapshot(c *cart.Cart, taxRate float64, customer *models.Customer) models.OrderSnapshot {
	snap := models.OrderSnapshot{
		DiscountCode: c.DiscountCode,
		GiftCardCode: c.GiftCardCode,
		TaxRate:      taxRate,
		Wholesale:    customer.IsWholesaler,
		Country:      c.Country,
	}
	for _, it := range c.Items {
		snap.Items = append(snap.Items, models.SnapshotItem{
			SKU:      it.SKU,
			Name:     it.Name,
			Quantity: maxInt(1, it.Quantity),
			Price:    it.Price,
			Free:     it.Free,
			BoxKey:   it.BoxKey,
		})
	}
	return snap
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
