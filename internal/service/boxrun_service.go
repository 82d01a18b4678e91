package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"boxshop/config"
	"boxshop/internal/cart"
	"boxshop/internal/models"
	"boxshop/internal/pricing"
	"boxshop/internal/repository"
	"boxshop/internal/schedule"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BoxRunService — ежедневный прогон подписок: списания за коробки
// месяца, отчёт по каждой подписке, пауза после серии неудач и выдача
// реферальных кредитов после анти-фрод окна.
type BoxRunService struct {
	repo    *repository.Repository
	subs    *SubscriptionService
	calc    *pricing.Calculator
	tax     TaxService
	gateway PaymentGateway
	events  EventBus
	shop    config.ShopConfig
	log     *zap.Logger
	now     func() time.Time
}

func NewBoxRunService(
	repo *repository.Repository,
	subs *SubscriptionService,
	calc *pricing.Calculator,
	tax TaxService,
	gateway PaymentGateway,
	events EventBus,
	shop config.ShopConfig,
	log *zap.Logger,
) *BoxRunService {
	return &BoxRunService{
		repo:    repo,
		subs:    subs,
		calc:    calc,
		tax:     tax,
		gateway: gateway,
		events:  events,
		shop:    shop,
		log:     log,
		now:     time.Now,
	}
}

// Run обрабатывает все подписки с сегодняшним днём списания. Подписки
// независимы: ошибка одной не прерывает прогон остальных.
func (s *BoxRunService) Run(ctx context.Context) error {
	now := s.now()
	due, err := s.repo.Subscriptions.ListDue(ctx, now.Day())
	if err != nil {
		return err
	}
	s.log.Info("Запуск прогона подписок",
		zap.Int("day", now.Day()), zap.Int("count", len(due)))

	for _, sub := range due {
		if err := s.processSubscription(ctx, sub, now); err != nil {
			s.log.Error("Подписка не обработана",
				zap.String("subscription", sub.ID.String()), zap.Error(err))
		}
	}

	if err := s.rewardReferrals(ctx, now); err != nil {
		s.log.Error("Выдача реферальных кредитов не выполнена", zap.Error(err))
	}
	return nil
}

func (s *BoxRunService) processSubscription(ctx context.Context, sub *models.Subscription, now time.Time) error {
	// Подписка уже обрабатывалась сегодня (в том числе неуспешно):
	// повторная попытка будет не раньше следующего прогона.
	prior, err := s.repo.Reports.FindForDay(ctx, sub.ID, now)
	if err != nil {
		return err
	}
	if prior != nil {
		return nil
	}
	return s.chargeSubscription(ctx, sub, now)
}

func (s *BoxRunService) chargeSubscription(ctx context.Context, sub *models.Subscription, now time.Time) error {
	next, err := s.subs.NextBox(ctx, sub.ID)
	if err != nil {
		return err
	}
	if next == nil {
		return s.report(ctx, sub, now, "", "skipped", nil, "nothing to ship")
	}

	boxMonth, err := schedule.ParseBoxKey(next.BoxKey)
	if err != nil {
		return err
	}
	// Коробка ещё не подошла: списываем только в её месяц.
	if boxMonth.Year() != now.Year() || boxMonth.Month() != now.Month() {
		return s.report(ctx, sub, now, next.BoxKey, "skipped", nil, "box month not due")
	}

	customer, err := s.repo.Customers.GetByID(ctx, sub.CustomerID)
	if err != nil {
		return err
	}
	if customer == nil {
		return ErrCustomerNotFound
	}

	order, totals, err := s.buildMonthOrder(ctx, sub, customer, next, now)
	if err != nil {
		return err
	}

	var token string
	if customer.PaymentToken != nil {
		token = *customer.PaymentToken
	}
	res, err := s.gateway.Charge(ctx, token, totals.GrandTotal)
	if err != nil {
		return err
	}
	if !res.Success {
		return s.chargeFailed(ctx, sub, next.BoxKey, now, res)
	}

	err = s.repo.WithTx(func(tx *repository.Repository) error {
		if err := tx.Orders.Create(ctx, order); err != nil {
			return err
		}
		if err := tx.Boxes.DecrementStock(ctx, next.BoxKey); err != nil &&
			!errors.Is(err, repository.ErrBoxOutOfStock) {
			return err
		}
		if next.Discount != nil {
			if err := tx.Subscriptions.MarkDiscountUsed(ctx, next.Discount.ID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.subs.consumeBox(ctx, sub, next.BoxKey); err != nil {
		return err
	}

	if err := s.events.PublishOrderCreated(ctx, OrderCreatedEvent{
		OrderID:     order.ID,
		Number:      order.Number,
		CustomerID:  customer.ID,
		GrandTotal:  pricing.Round2(order.GrandTotal),
		Currency:    order.Currency,
		Subscribing: true,
		CreatedAt:   now,
	}); err != nil {
		s.log.Error("Не удалось опубликовать событие заказа прогона", zap.Error(err))
	}

	return s.report(ctx, sub, now, next.BoxKey, "charged", &order.ID, "")
}

// UpdatePaymentMethod сохраняет новый платёжный токен клиента. Если по
// подписке копились неуспешные списания, серия сбрасывается и коробка
// месяца списывается сразу, не дожидаясь следующего прогона.
func (s *BoxRunService) UpdatePaymentMethod(ctx context.Context, customerID uuid.UUID, token string) error {
	customer, err := s.repo.Customers.GetByID(ctx, customerID)
	if err != nil {
		return err
	}
	if customer == nil {
		return ErrCustomerNotFound
	}
	if err := s.repo.Customers.SetPaymentToken(ctx, customerID, token); err != nil {
		return err
	}
	customer.PaymentToken = &token

	sub, err := s.repo.Subscriptions.GetActiveByCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	if sub == nil || sub.FailedCharges == 0 {
		return nil
	}

	now := s.now()
	sub.FailedCharges = 0
	if sub.Status == models.SubscriptionStatusPaused {
		sub.Status = models.SubscriptionStatusActive
		sub.PausedUntil = nil
	}
	sub.UpdatedAt = now
	if err := s.repo.Subscriptions.Save(ctx, sub); err != nil {
		return err
	}

	return s.chargeSubscription(ctx, sub, now)
}

// buildMonthOrder собирает заказ месяца: коробка по цене подписки
// (либо товар замены месяца), прикреплённые допы и скидка месяца.
func (s *BoxRunService) buildMonthOrder(ctx context.Context, sub *models.Subscription, customer *models.Customer, fm *FutureMonth, now time.Time) (*models.Order, pricing.Totals, error) {
	c := cart.New(sub.ShippingAddress.Country)
	box := &cart.LineItem{
		SKU:          sub.ProductSKU,
		Name:         fm.BoxKey,
		Quantity:     1,
		Price:        sub.Price,
		Subscription: true,
		BoxKey:       fm.BoxKey,
	}
	if fm.Exchange != nil {
		p, err := s.repo.Products.GetBySKU(ctx, fm.Exchange.ProductSKU)
		if err != nil {
			return nil, pricing.Totals{}, err
		}
		if p != nil {
			id := p.ID
			box.ProductID = &id
			box.SKU = p.SKU
			box.Name = p.Name
			box.Price = p.EffectivePrice(customer.IsWholesaler)
		}
	}
	c.Add(box)
	for _, ad := range fm.Addons {
		p, err := s.repo.Products.GetBySKU(ctx, ad.ProductSKU)
		if err != nil {
			return nil, pricing.Totals{}, err
		}
		if p == nil {
			continue
		}
		id := p.ID
		c.Add(&cart.LineItem{
			ProductID: &id,
			SKU:       p.SKU,
			Name:      p.Name,
			Quantity:  ad.Quantity,
			Price:     p.EffectivePrice(customer.IsWholesaler),
		})
	}

	address := sub.ShippingAddress
	if fm.Gift != nil {
		address = fm.Gift.Address
	}

	var taxRate float64
	if !customer.TaxExempt {
		rate, err := s.tax.RateFor(ctx, address.Country, address.Region, address.Zip)
		if err != nil {
			return nil, pricing.Totals{}, err
		}
		taxRate = rate
	}

	var monthDiscount float64
	if fm.Discount != nil {
		monthDiscount = fm.Discount.Amount
	}

	// Подписочные заказы в домашнюю страну едут бесплатно.
	var shippingRate float64
	if address.Country != s.shop.Pricing.HomeCountry {
		shippingRate = s.shop.Pricing.FreeFirstMonthShippingFee
	}

	totals := s.calc.Compute(pricing.Input{
		Cart:                 c,
		Customer:             customer,
		SubscriptionDiscount: monthDiscount,
		TaxRate:              taxRate,
		ShippingRate:         shippingRate,
	})

	cnt, err := s.repo.Orders.CountForDay(ctx, now)
	if err != nil {
		return nil, pricing.Totals{}, err
	}

	order := &models.Order{
		Number:          fmt.Sprintf("BX-%s-%04d", now.Format("20060102"), cnt+1),
		CustomerID:      customer.ID,
		Status:          models.OrderStatusProcessing,
		Subtotal:        totals.Subtotal,
		DiscountTotal:   totals.DiscountTotal,
		ShippingTotal:   totals.ShippingTotal,
		TaxTotal:        totals.TaxTotal,
		GrandTotal:      totals.GrandTotal,
		Currency:        s.shop.Currency,
		ShippingService: "standard",
		ShippingAddress: address,
		BillingAddress:  sub.ShippingAddress,
		Snapshot:        buildSnapshot(c, taxRate, customer),
		SnapshotVersion: 1,
		PaidAt:          &now,
		CreatedAt:       now,
		UpdatedAt:       now,
		Items:           buildOrderItems(c, now),
	}
	return order, totals, nil
}

func (s *BoxRunService) chargeFailed(ctx context.Context, sub *models.Subscription, boxKey string, now time.Time, res ChargeResult) error {
	sub.FailedCharges++
	sub.UpdatedAt = now

	outcome := "failed"
	if sub.FailedCharges >= s.shop.Subscription.PauseAfterFailedCharges {
		// Серия неудач: подписка уходит в паузу до ручного возобновления.
		sub.Status = models.SubscriptionStatusPaused
		until := schedule.AddMonths(now, s.shop.Subscription.PauseLimitMonths)
		sub.PausedUntil = &until
		outcome = "paused"
	}
	if err := s.repo.Subscriptions.Save(ctx, sub); err != nil {
		return err
	}

	detail := res.DeclineReason
	if detail == "" {
		detail = res.DeclineCode
	}
	return s.report(ctx, sub, now, boxKey, outcome, nil, detail)
}

func (s *BoxRunService) report(ctx context.Context, sub *models.Subscription, now time.Time, boxKey, outcome string, orderID *uuid.UUID, detail string) error {
	return s.repo.Reports.Add(ctx, &models.BoxRunReport{
		RunDate:        time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		SubscriptionID: sub.ID,
		CustomerID:     sub.CustomerID,
		BoxKey:         boxKey,
		Outcome:        outcome,
		OrderID:        orderID,
		Detail:         detail,
	})
}

// rewardReferrals начисляет кредит рефererу за завершённые заказы,
// пролежавшие дольше анти-фрод окна.
func (s *BoxRunService) rewardReferrals(ctx context.Context, now time.Time) error {
	holdEnd := now.AddDate(0, 0, -s.shop.Referral.FraudHoldDays)
	pending, err := s.repo.Customers.ListUnrewardedInvitations(ctx, holdEnd)
	if err != nil {
		return err
	}

	for _, inv := range pending {
		amount := s.shop.Referral.DiscountValue
		err := s.repo.WithTx(func(tx *repository.Repository) error {
			// Кредит — персональная fixed-скидка на следующий заказ
			// реферера.
			limit := 1
			d := &models.Discount{
				Code:       fmt.Sprintf("REF-CREDIT-%s", inv.ID.String()[:8]),
				Kind:       models.KindFixed,
				Options:    models.DiscountOptions{Value: amount},
				UsageLimit: &limit,
				CustomerID: &inv.ReferrerID,
				Enabled:    true,
			}
			if err := tx.Discounts.Create(ctx, d); err != nil {
				return err
			}
			return tx.Customers.MarkInvitationRewarded(ctx, inv.ID, now)
		})
		if err != nil {
			s.log.Error("Не удалось начислить реферальный кредит",
				zap.String("invitation", inv.ID.String()), zap.Error(err))
			continue
		}
		if err := s.events.PublishReferralRewarded(ctx, ReferralRewardedEvent{
			InvitationID: inv.ID,
			ReferrerID:   inv.ReferrerID,
			Amount:       amount,
			At:           now,
		}); err != nil {
			s.log.Error("Не удалось опубликовать реферальное событие", zap.Error(err))
		}
	}
	return nil
}
