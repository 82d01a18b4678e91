package service

import (
	"context"
	"time"

	"boxshop/internal/cart"
	"boxshop/internal/fulfillment"
	"boxshop/internal/giftcode"
	"boxshop/internal/models"
	"boxshop/internal/pricing"
	"boxshop/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MarkPaid переводит оплаченный заказ в processing, выпускает купленные
// подарочные карты и передаёт отправление партнёру по доставке. Ошибка
// интеграции логируется, заказ остаётся в processing.
func (s *OrderService) MarkPaid(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	if order.IsPaid() {
		return order, nil
	}

	now := s.now()
	if err := s.repo.Orders.UpdateStatus(ctx, orderID, models.OrderStatusProcessing, now); err != nil {
		return nil, err
	}
	order.Status = models.OrderStatusProcessing
	order.PaidAt = &now

	if err := s.issueGiftCards(ctx, order); err != nil {
		return nil, err
	}

	if s.fulfillment != nil {
		req := fulfillment.BuildRequest(order, order.ShippingService)
		if err := s.fulfillment.CreateShipment(ctx, req); err != nil {
			s.log.Error("Не удалось создать отправление",
				zap.String("order", order.Number), zap.Error(err))
		}
	}

	s.publishStatus(ctx, order, now)
	return order, nil
}

// Approve подтверждает первый заказ оптовика.
func (s *OrderService) Approve(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status != models.OrderStatusNeedsApproval {
		return order, nil
	}

	now := s.now()
	if err := s.repo.Orders.UpdateStatus(ctx, orderID, models.OrderStatusPending, now); err != nil {
		return nil, err
	}
	order.Status = models.OrderStatusPending
	s.publishStatus(ctx, order, now)
	return order, nil
}

// Complete завершает заказ.
func (s *OrderService) Complete(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	if order.Status == models.OrderStatusCompleted {
		return order, nil
	}

	now := s.now()
	if err := s.repo.Orders.UpdateStatus(ctx, orderID, models.OrderStatusCompleted, now); err != nil {
		return nil, err
	}
	order.Status = models.OrderStatusCompleted
	order.CompletedAt = &now

	s.publishStatus(ctx, order, now)
	return order, nil
}

// Refund помечает оплаченный заказ возвращённым. Само движение денег
// выполняет платёжный шлюз, ядро фиксирует статус.
func (s *OrderService) Refund(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	if order.Status == models.OrderStatusRefunded {
		return order, nil
	}
	if !order.IsPaid() {
		return nil, ErrOrderNotRefundable
	}

	now := s.now()
	if err := s.repo.Orders.UpdateStatus(ctx, orderID, models.OrderStatusRefunded, now); err != nil {
		return nil, err
	}
	order.Status = models.OrderStatusRefunded
	s.publishStatus(ctx, order, now)
	return order, nil
}

// MarkFailed фиксирует неуспех оплаты заказа.
func (s *OrderService) MarkFailed(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status == models.OrderStatusFailed {
		return order, nil
	}
	if order.Status != models.OrderStatusPending && order.Status != models.OrderStatusNeedsApproval {
		return nil, ErrOrderNotFailable
	}

	now := s.now()
	if err := s.repo.Orders.UpdateStatus(ctx, orderID, models.OrderStatusFailed, now); err != nil {
		return nil, err
	}
	order.Status = models.OrderStatusFailed
	s.publishStatus(ctx, order, now)
	return order, nil
}

// Cancel отменяет заказ; активная рассрочка по нему тоже отменяется.
func (s *OrderService) Cancel(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	now := s.now()
	err = s.repo.WithTx(func(tx *repository.Repository) error {
		if err := tx.Orders.UpdateStatus(ctx, orderID, models.OrderStatusCancelled, now); err != nil {
			return err
		}
		plan, err := tx.Installments.GetByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if plan != nil && plan.Status == models.InstallmentStatusActive {
			plan.Status = models.InstallmentStatusCancelled
			plan.NextChargeAt = nil
			plan.UpdatedAt = now
			if err := tx.Installments.Save(ctx, plan); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	order.Status = models.OrderStatusCancelled
	order.CancelledAt = &now
	s.publishStatus(ctx, order, now)
	return order, nil
}

// Recalculate пересчитывает итоги заказа из сохранённого снапшота —
// например, после правки налоговой ставки. Тотал заказа меняется только
// этим явным путём.
func (s *OrderService) Recalculate(ctx context.Context, orderID uuid.UUID, taxRate *float64) (*models.Order, error) {
	order, err := s.repo.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if len(order.Snapshot.Items) == 0 {
		return nil, ErrOrderNotRecalculable
	}

	customer, err := s.repo.Customers.GetByID(ctx, order.CustomerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, ErrCustomerNotFound
	}

	c := cartFromSnapshot(order.Snapshot)

	var (
		appliedDiscount *models.Discount
		discountAmount  float64
	)
	if c.DiscountCode != "" {
		d, _, err := s.ResolveDiscount(ctx, c.DiscountCode)
		if err != nil && err != ErrDiscountNotFound {
			return nil, err
		}
		if d != nil {
			appliedDiscount = d
			discountAmount = s.eval.Amount(d, c)
		}
	}

	rate := order.Snapshot.TaxRate
	if taxRate != nil {
		rate = *taxRate
	}

	totals := s.calc.Compute(pricing.Input{
		Cart:            c,
		Customer:        customer,
		Discount:        appliedDiscount,
		DiscountAmount:  discountAmount,
		GiftCardBalance: order.GiftCardAmount, // уже списанная сумма фиксирована
		TaxRate:         rate,
		ShippingRate:    order.ShippingTotal,
	})

	order.Subtotal = totals.Subtotal
	order.DiscountTotal = totals.DiscountTotal
	order.TaxTotal = totals.TaxTotal
	order.GiftCardAmount = totals.GiftCardTotal
	order.GrandTotal = totals.GrandTotal
	order.Snapshot.TaxRate = rate
	order.UpdatedAt = s.now()

	if err := s.repo.Orders.Save(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) issueGiftCards(ctx context.Context, order *models.Order) error {
	for _, it := range order.Items {
		if it.SKU != s.shop.Subscription.GiftCardSKU {
			continue
		}
		for n := 0; n < it.Quantity; n++ {
			code, err := giftcode.Unique(giftcode.GiftCard, func(c string) (bool, error) {
				gc, err := s.repo.GiftCards.GetByCode(ctx, c)
				return gc != nil, err
			})
			if err != nil {
				return err
			}
			gc := &models.GiftCard{
				Code:        code,
				Balance:     it.Price,
				PurchaserID: &order.CustomerID,
				OrderID:     &order.ID,
			}
			if err := s.repo.GiftCards.Create(ctx, gc); err != nil {
				return err
			}
			if err := s.events.PublishGiftCardIssued(ctx, GiftCardIssuedEvent{
				GiftCardID: gc.ID,
				OrderID:    order.ID,
				Code:       gc.Code,
				Balance:    gc.Balance,
				At:         s.now(),
			}); err != nil {
				s.log.Error("Не удалось опубликовать событие выпуска подарочной карты",
					zap.String("order", order.Number), zap.Error(err))
			}
		}
	}
	return nil
}

func (s *OrderService) publishStatus(ctx context.Context, order *models.Order, at time.Time) {
	if err := s.events.PublishOrderStatus(ctx, OrderStatusEvent{
		OrderID:    order.ID,
		Number:     order.Number,
		CustomerID: order.CustomerID,
		Status:     string(order.Status),
		At:         at,
	}); err != nil {
		s.log.Error("Не удалось опубликовать смену статуса заказа",
			zap.String("order", order.Number), zap.Error(err))
	}
}

func cartFromSnapshot(snap models.OrderSnapshot) *cart.Cart {
	c := cart.New(snap.Country)
	c.DiscountCode = snap.DiscountCode
	c.GiftCardCode = snap.GiftCardCode
	for _, it := range snap.Items {
		c.Add(&cart.LineItem{
			SKU:      it.SKU,
			Name:     it.Name,
			Quantity: it.Quantity,
			Price:    it.Price,
			Free:     it.Free,
			BoxKey:   it.BoxKey,
		})
	}
	return c
}
