package service

import (
	"context"
	"errors"
	"time"

	"boxshop/config"
	"boxshop/internal/cart"
	"boxshop/internal/models"
	"boxshop/internal/repository"
	"boxshop/internal/schedule"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SubscriptionService struct {
	repo   *repository.Repository
	events EventBus
	shop   config.ShopConfig
	log    *zap.Logger
	now    func() time.Time
}

func NewSubscriptionService(repo *repository.Repository, events EventBus, shop config.ShopConfig, log *zap.Logger) *SubscriptionService {
	return &SubscriptionService{
		repo:   repo,
		events: events,
		shop:   shop,
		log:    log,
		now:    time.Now,
	}
}

func (s *SubscriptionService) policy() schedule.Policy {
	return schedule.Policy{
		SnapFrom: s.shop.Subscription.ScheduleSnapFrom,
		SnapDay:  s.shop.Subscription.ScheduleSnapDay,
		MaxDay:   s.shop.Subscription.ScheduleMaxDay,
	}
}

// subscribeInTx создаёт (или возобновляет) подписку при оформлении
// заказа с подписочным товаром. Первая коробка уходит с этим заказом.
func (s *OrderService) subscribeInTx(
	ctx context.Context,
	tx *repository.Repository,
	customer *models.Customer,
	order *models.Order,
	c *cart.Cart,
	item *cart.LineItem,
	appliedDiscount *models.Discount,
	now time.Time,
) error {
	pol := schedule.Policy{
		SnapFrom: s.shop.Subscription.ScheduleSnapFrom,
		SnapDay:  s.shop.Subscription.ScheduleSnapDay,
		MaxDay:   s.shop.Subscription.ScheduleMaxDay,
	}

	existing, err := tx.Subscriptions.GetActiveByCustomer(ctx, customer.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		// Повторная подписка возобновляет приостановленную.
		if existing.Status == models.SubscriptionStatusPaused {
			existing.Status = models.SubscriptionStatusActive
			existing.PausedUntil = nil
			existing.FailedCharges = 0
			existing.UpdatedAt = now
			return tx.Subscriptions.Save(ctx, existing)
		}
		return nil
	}

	// Первый месяц: текущий, если коробка в наличии (или клиент просил
	// оформить несмотря на распроданный тираж), иначе следующий.
	firstMonth := schedule.AddMonths(now, 0)
	boxKey := schedule.BoxKey(firstMonth)
	box, err := tx.Boxes.GetByKey(ctx, boxKey)
	if err != nil {
		return err
	}
	if box != nil && !box.InStock() && !c.KeepOutOfStock {
		firstMonth = schedule.AddMonths(now, 1)
		boxKey = schedule.BoxKey(firstMonth)
		box, err = tx.Boxes.GetByKey(ctx, boxKey)
		if err != nil {
			return err
		}
	}
	if box != nil && box.InStock() {
		if err := tx.Boxes.DecrementStock(ctx, boxKey); err != nil && !errors.Is(err, repository.ErrBoxOutOfStock) {
			return err
		}
	}

	interval := item.IntervalMonths
	if interval < 1 {
		interval = 1
	}

	sub := &models.Subscription{
		CustomerID:      customer.ID,
		Status:          models.SubscriptionStatusActive,
		ProductSKU:      item.SKU,
		BillingDay:      pol.Consolidate(now.Day()),
		IntervalMonths:  interval,
		AutoRenew:       item.AutoRenew,
		LastBoxKey:      boxKey,
		Price:           item.Price,
		ShippingAddress: order.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.Subscriptions.Create(ctx, sub); err != nil {
		return err
	}

	// Commitment-подписка: текущий блок плюс заранее созданные pending.
	if item.BoxCount > 1 {
		current := &models.Commitment{
			SubscriptionID: sub.ID,
			Status:         models.CommitmentStatusCurrent,
			BoxCount:       item.BoxCount,
			BoxesUsed:      1, // первая коробка в этом заказе
			Position:       0,
			OrderID:        &order.ID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Subscriptions.CreateCommitment(ctx, current); err != nil {
			return err
		}
		for p := 1; p < s.shop.Subscription.PreallocatedCommitments; p++ {
			pend := &models.Commitment{
				SubscriptionID: sub.ID,
				Status:         models.CommitmentStatusPending,
				BoxCount:       item.BoxCount,
				Position:       p,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := tx.Subscriptions.CreateCommitment(ctx, pend); err != nil {
				return err
			}
		}
	}

	// Скидки на будущие месяцы: referral50 берёт параметры из политики,
	// остальные виды — из опций самой скидки.
	if appliedDiscount != nil {
		months, amount, code := 0, 0.0, appliedDiscount.Code
		switch {
		case appliedDiscount.Kind == models.KindReferral50:
			ref := s.shop.Referral
			months, amount, code = ref.Referral50Months, ref.Referral50Amount, ref.Referral50Code
		case appliedDiscount.Options.FutureMonths > 0:
			months, amount = appliedDiscount.Options.FutureMonths, appliedDiscount.Options.FutureValue
		}
		for m := 1; m <= months; m++ {
			row := &models.SubscriptionDiscount{
				SubscriptionID: sub.ID,
				BoxKey:         schedule.BoxKey(schedule.AddMonths(firstMonth, m*interval)),
				Code:           code,
				Amount:         amount,
				CreatedAt:      now,
			}
			if err := tx.Subscriptions.AddDiscount(ctx, row); err != nil {
				return err
			}
		}
	}

	if err := s.events.PublishSubscription(ctx, SubscriptionEvent{
		SubscriptionID: sub.ID,
		CustomerID:     customer.ID,
		Action:         "created",
		BoxKey:         boxKey,
		At:             now,
	}); err != nil {
		s.log.Error("Не удалось опубликовать событие подписки", zap.Error(err))
	}
	return nil
}

// FutureMonth — проекция одного будущего цикла подписки.
type FutureMonth struct {
	BoxKey       string
	Date         time.Time
	Skipped      bool
	SkipReason   string // skipped / out_of_stock / paused
	CommitmentID *uuid.UUID
	Gift         *models.SubscriptionGift
	Addons       []models.SubscriptionAddon
	Exchange     *models.SubscriptionExchange
	Discount     *models.SubscriptionDiscount
}

// FutureMonths проецирует ближайшие циклы подписки с учётом пропусков,
// пауз, наличия коробок и commitment-блоков. Для commitment-подписки
// проекция обрывается на последней оплаченной коробке.
func (s *SubscriptionService) FutureMonths(ctx context.Context, subscriptionID uuid.UUID, count int) ([]FutureMonth, error) {
	sub, err := s.repo.Subscriptions.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}
	if count <= 0 {
		count = s.shop.Subscription.FutureMonths
	}
	return s.projectMonths(ctx, sub, count)
}

func (s *SubscriptionService) projectMonths(ctx context.Context, sub *models.Subscription, count int) ([]FutureMonth, error) {
	if sub.Status == models.SubscriptionStatusStopped {
		return nil, nil
	}

	skips, err := s.repo.Subscriptions.ListSkips(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	skipped := make(map[string]bool, len(skips))
	for _, sk := range skips {
		skipped[sk.BoxKey] = true
	}

	gifts, err := s.repo.Subscriptions.ListGifts(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	giftByKey := make(map[string]*models.SubscriptionGift, len(gifts))
	for i := range gifts {
		giftByKey[gifts[i].BoxKey] = &gifts[i]
	}

	commitments, err := s.repo.Subscriptions.ListCommitments(ctx, sub.ID)
	if err != nil {
		return nil, err
	}

	// Бюджет коробок по commitment-блокам: остаток текущего, затем
	// pending по порядку.
	type slot struct {
		id        uuid.UUID
		remaining int
	}
	var slots []slot
	committed := false
	for _, c := range commitments {
		switch c.Status {
		case models.CommitmentStatusCurrent:
			committed = true
			slots = append([]slot{{id: c.ID, remaining: c.Remaining()}}, slots...)
		case models.CommitmentStatusPending:
			committed = true
			slots = append(slots, slot{id: c.ID, remaining: c.BoxCount})
		}
	}

	start, err := schedule.ParseBoxKey(sub.LastBoxKey)
	if err != nil {
		// Подписка без отгруженных коробок стартует с текущего месяца.
		start = schedule.AddMonths(s.now(), -sub.IntervalMonths)
	}

	var out []FutureMonth
	slotIdx := 0
	for m := 1; len(out) < count; m++ {
		month := schedule.AddMonths(start, m*sub.IntervalMonths)
		key := schedule.BoxKey(month)
		fm := FutureMonth{
			BoxKey: key,
			Date:   time.Date(month.Year(), month.Month(), sub.BillingDay, 0, 0, 0, 0, month.Location()),
		}

		if sub.PausedUntil != nil && !month.After(*sub.PausedUntil) {
			fm.Skipped = true
			fm.SkipReason = "paused"
			out = append(out, fm)
			continue
		}
		if skipped[key] {
			fm.Skipped = true
			fm.SkipReason = "skipped"
			out = append(out, fm)
			continue
		}

		box, err := s.repo.Boxes.GetByKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if box != nil && !box.InStock() {
			fm.Skipped = true
			fm.SkipReason = "out_of_stock"
			out = append(out, fm)
			continue
		}

		if committed {
			for slotIdx < len(slots) && slots[slotIdx].remaining == 0 {
				slotIdx++
			}
			if slotIdx >= len(slots) {
				// Блоки кончились: дальше месяцев нет.
				break
			}
			id := slots[slotIdx].id
			fm.CommitmentID = &id
			slots[slotIdx].remaining--
		}

		fm.Gift = giftByKey[key]
		fm.Addons, err = s.repo.Subscriptions.ListAddons(ctx, sub.ID, key)
		if err != nil {
			return nil, err
		}
		fm.Exchange, err = s.repo.Subscriptions.FindExchangeForBox(ctx, sub.ID, key)
		if err != nil {
			return nil, err
		}
		fm.Discount, err = s.repo.Subscriptions.FindDiscountForBox(ctx, sub.ID, key)
		if err != nil {
			return nil, err
		}
		out = append(out, fm)
	}
	return out, nil
}

// NextBox возвращает ближайший месяц, который реально будет отгружен,
// либо nil, если подписке больше нечего отгружать.
func (s *SubscriptionService) NextBox(ctx context.Context, subscriptionID uuid.UUID) (*FutureMonth, error) {
	months, err := s.FutureMonths(ctx, subscriptionID, s.shop.Subscription.FutureMonths)
	if err != nil {
		return nil, err
	}
	for i := range months {
		if !months[i].Skipped {
			return &months[i], nil
		}
	}
	return nil, nil
}

// Skip помечает месяц пропущенным. Пропуск за границу текущего
// commitment-блока и сверх лимита пропусков отклоняется.
func (s *SubscriptionService) Skip(ctx context.Context, subscriptionID uuid.UUID, boxKey string) error {
	sub, err := s.repo.Subscriptions.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return ErrSubscriptionNotFound
	}
	if sub.Status == models.SubscriptionStatusStopped {
		return ErrSubscriptionStopped
	}

	skips, err := s.repo.Subscriptions.ListSkips(ctx, sub.ID)
	if err != nil {
		return err
	}
	for _, sk := range skips {
		if sk.BoxKey == boxKey {
			return ErrMonthAlreadySkipped
		}
	}

	current, err := s.repo.Subscriptions.CurrentCommitment(ctx, sub.ID)
	if err != nil {
		return err
	}
	if current != nil {
		cnt, err := s.repo.Subscriptions.CountSkipsSince(ctx, sub.ID, current.CreatedAt)
		if err != nil {
			return err
		}
		if cnt >= int64(s.shop.Subscription.CommitmentSkipLimit) {
			return ErrSkipLimitReached
		}

		// Месяц должен попадать в покрытие текущего блока.
		months, err := s.projectMonths(ctx, sub, current.Remaining()+len(skips)+1)
		if err != nil {
			return err
		}
		ok := false
		for _, fm := range months {
			if fm.BoxKey == boxKey && (fm.CommitmentID == nil || *fm.CommitmentID == current.ID) {
				ok = true
				break
			}
		}
		if !ok {
			return ErrSkipPastCommitment
		}
	}

	if err := s.repo.Subscriptions.AddSkip(ctx, &models.SubscriptionSkip{
		SubscriptionID: sub.ID,
		BoxKey:         boxKey,
		CreatedAt:      s.now(),
	}); err != nil {
		return err
	}
	s.publish(ctx, sub, "skipped", boxKey)
	return nil
}

// Unskip отменяет пропуск месяца.
func (s *SubscriptionService) Unskip(ctx context.Context, subscriptionID uuid.UUID, boxKey string) error {
	return s.repo.Subscriptions.RemoveSkip(ctx, subscriptionID, boxKey)
}

// GiftMonth отправляет коробку месяца по другому адресу.
func (s *SubscriptionService) GiftMonth(ctx context.Context, subscriptionID uuid.UUID, g models.SubscriptionGift) error {
	sub, err := s.repo.Subscriptions.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return ErrSubscriptionNotFound
	}
	g.SubscriptionID = sub.ID
	g.CreatedAt = s.now()
	return s.repo.Subscriptions.AddGift(ctx, &g)
}

// AddAddon прикрепляет дополнительный товар к месяцу подписки.
func (s *SubscriptionService) AddAddon(ctx context.Context, subscriptionID uuid.UUID, boxKey, sku string, qty int) error {
	sub, err := s.repo.Subscriptions.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return ErrSubscriptionNotFound
	}
	p, err := s.repo.Products.GetBySKU(ctx, sku)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrProductNotFound
	}
	if qty < 1 {
		qty = 1
	}
	return s.repo.Subscriptions.AddAddon(ctx, &models.SubscriptionAddon{
		SubscriptionID: sub.ID,
		BoxKey:         boxKey,
		ProductSKU:     sku,
		Quantity:       qty,
		CreatedAt:      s.now(),
	})
}

// ExchangeMonth заменяет коробку месяца другим товаром: в цикле boxKey
// отгрузится он, а не подписочный SKU.
func (s *SubscriptionService) ExchangeMonth(ctx context.Context, subscriptionID uuid.UUID, boxKey, sku string) error {
	sub, err := s.repo.Subscriptions.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return ErrSubscriptionNotFound
	}
	if sub.Status == models.SubscriptionStatusStopped {
		return ErrSubscriptionStopped
	}
	p, err := s.repo.Products.GetBySKU(ctx, sku)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrProductNotFound
	}
	return s.repo.Subscriptions.AddExchange(ctx, &models.SubscriptionExchange{
		SubscriptionID: sub.ID,
		BoxKey:         boxKey,
		ProductSKU:     sku,
		CreatedAt:      s.now(),
	})
}

// Pause останавливает списания до месяца until включительно. Паузу
// нельзя увести дальше последней коробки commitment-блоков плюс
// настроенного окна.
func (s *SubscriptionService) Pause(ctx context.Context, subscriptionID uuid.UUID, until time.Time) error {
	sub, err := s.repo.Subscriptions.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return ErrSubscriptionNotFound
	}
	if sub.Status == models.SubscriptionStatusStopped {
		return ErrSubscriptionStopped
	}

	limit, err := s.pauseLimit(ctx, sub)
	if err != nil {
		return err
	}
	if until.After(limit) {
		return ErrPauseTooLong
	}

	sub.Status = models.SubscriptionStatusPaused
	u := until
	sub.PausedUntil = &u
	sub.UpdatedAt = s.now()
	if err := s.repo.Subscriptions.Save(ctx, sub); err != nil {
		return err
	}
	s.publish(ctx, sub, "paused", schedule.BoxKey(until))
	return nil
}

func (s *SubscriptionService) pauseLimit(ctx context.Context, sub *models.Subscription) (time.Time, error) {
	last, err := schedule.ParseBoxKey(sub.LastBoxKey)
	if err != nil {
		last = s.now()
	}

	commitments, err := s.repo.Subscriptions.ListCommitments(ctx, sub.ID)
	if err != nil {
		return time.Time{}, err
	}
	remaining := 0
	for _, c := range commitments {
		switch c.Status {
		case models.CommitmentStatusCurrent:
			remaining += c.Remaining()
		case models.CommitmentStatusPending:
			remaining += c.BoxCount
		}
	}

	lastBox := schedule.AddMonths(last, remaining*sub.IntervalMonths)
	return schedule.AddMonths(lastBox, s.shop.Subscription.PauseLimitMonths), nil
}

// Continue возобновляет приостановленную подписку. Настроенный
// reactivation-код закрепляется скидкой за следующей коробкой.
func (s *SubscriptionService) Continue(ctx context.Context, subscriptionID uuid.UUID) error {
	sub, err := s.repo.Subscriptions.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return ErrSubscriptionNotFound
	}
	if sub.Status == models.SubscriptionStatusStopped {
		return ErrSubscriptionStopped
	}
	wasPaused := sub.Status == models.SubscriptionStatusPaused
	sub.Status = models.SubscriptionStatusActive
	sub.PausedUntil = nil
	sub.FailedCharges = 0
	sub.UpdatedAt = s.now()
	if err := s.repo.Subscriptions.Save(ctx, sub); err != nil {
		return err
	}
	if wasPaused {
		if err := s.seedReactivationDiscount(ctx, sub); err != nil {
			return err
		}
	}
	s.publish(ctx, sub, "resumed", "")
	return nil
}

// seedReactivationDiscount вешает скидку reactivation-кода на следующую
// коробку возобновлённой подписки. Код применим только здесь: в корзине
// evaluator его отклоняет.
func (s *SubscriptionService) seedReactivationDiscount(ctx context.Context, sub *models.Subscription) error {
	code := s.shop.Subscription.ReactivationCode
	if code == "" {
		return nil
	}
	d, err := s.repo.Discounts.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if d == nil || !d.Enabled || !d.Options.ReactivationOnly {
		return nil
	}

	start, err := schedule.ParseBoxKey(sub.LastBoxKey)
	if err != nil {
		start = schedule.AddMonths(s.now(), -sub.IntervalMonths)
	}
	boxKey := schedule.BoxKey(schedule.AddMonths(start, sub.IntervalMonths))

	existing, err := s.repo.Subscriptions.FindDiscountForBox(ctx, sub.ID, boxKey)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	amount := d.Options.Value
	if d.Kind == models.KindPercentage {
		amount = sub.Price * d.Options.Value / 100
	}
	return s.repo.Subscriptions.AddDiscount(ctx, &models.SubscriptionDiscount{
		SubscriptionID: sub.ID,
		BoxKey:         boxKey,
		Code:           d.Code,
		Amount:         amount,
		CreatedAt:      s.now(),
	})
}

// Stop окончательно останавливает подписку.
func (s *SubscriptionService) Stop(ctx context.Context, subscriptionID uuid.UUID) error {
	sub, err := s.repo.Subscriptions.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return ErrSubscriptionNotFound
	}
	return s.stop(ctx, sub)
}

func (s *SubscriptionService) stop(ctx context.Context, sub *models.Subscription) error {
	now := s.now()
	sub.Status = models.SubscriptionStatusStopped
	sub.StoppedAt = &now
	sub.UpdatedAt = now
	if err := s.repo.Subscriptions.Save(ctx, sub); err != nil {
		return err
	}
	s.publish(ctx, sub, "stopped", "")
	return nil
}

// UpdateSchedule меняет день списания с той же консолидацией, что и при
// подписке.
func (s *SubscriptionService) UpdateSchedule(ctx context.Context, subscriptionID uuid.UUID, day int) error {
	sub, err := s.repo.Subscriptions.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return ErrSubscriptionNotFound
	}
	sub.BillingDay = s.policy().Consolidate(day)
	sub.UpdatedAt = s.now()
	return s.repo.Subscriptions.Save(ctx, sub)
}

// NextBillingDate — ближайшая дата списания после from.
func (s *SubscriptionService) NextBillingDate(sub *models.Subscription, from time.Time) time.Time {
	return schedule.NextBillingDate(from, sub.BillingDay, sub.IntervalMonths)
}

// SellableBoxes возвращает коробки, открытые к продаже.
func (s *SubscriptionService) SellableBoxes(ctx context.Context) ([]*models.ShoppingBox, error) {
	return s.repo.Boxes.ListSellable(ctx)
}

// BoxBySlug возвращает коробку по её slug.
func (s *SubscriptionService) BoxBySlug(ctx context.Context, slug string) (*models.ShoppingBox, error) {
	box, err := s.repo.Boxes.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if box == nil {
		return nil, ErrBoxNotFound
	}
	return box, nil
}

// consumeBox фиксирует отгрузку коробки: двигает LastBoxKey и счётчики
// commitment-блоков; исчерпание последнего блока останавливает подписку.
func (s *SubscriptionService) consumeBox(ctx context.Context, sub *models.Subscription, boxKey string) error {
	now := s.now()
	sub.LastBoxKey = boxKey
	sub.FailedCharges = 0
	sub.UpdatedAt = now
	if err := s.repo.Subscriptions.Save(ctx, sub); err != nil {
		return err
	}

	current, err := s.repo.Subscriptions.CurrentCommitment(ctx, sub.ID)
	if err != nil {
		return err
	}
	if current == nil {
		return nil
	}

	current.BoxesUsed++
	current.UpdatedAt = now
	if current.Remaining() > 0 {
		return s.repo.Subscriptions.SaveCommitment(ctx, current)
	}

	// Блок исчерпан: продвигаем следующий pending, при автопродлении
	// открываем новый блок, иначе останавливаемся.
	current.Status = models.CommitmentStatusDone
	if err := s.repo.Subscriptions.SaveCommitment(ctx, current); err != nil {
		return err
	}
	next, err := s.repo.Subscriptions.NextPendingCommitment(ctx, sub.ID)
	if err != nil {
		return err
	}
	if next == nil {
		if !sub.AutoRenew {
			return s.stop(ctx, sub)
		}
		renewed := &models.Commitment{
			SubscriptionID: sub.ID,
			Status:         models.CommitmentStatusCurrent,
			BoxCount:       current.BoxCount,
			Position:       current.Position + 1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.Subscriptions.CreateCommitment(ctx, renewed); err != nil {
			return err
		}
		s.publish(ctx, sub, "renewed", boxKey)
		return nil
	}
	next.Status = models.CommitmentStatusCurrent
	next.UpdatedAt = now
	return s.repo.Subscriptions.SaveCommitment(ctx, next)
}

func (s *SubscriptionService) publish(ctx context.Context, sub *models.Subscription, action, boxKey string) {
	if err := s.events.PublishSubscription(ctx, SubscriptionEvent{
		SubscriptionID: sub.ID,
		CustomerID:     sub.CustomerID,
		Action:         action,
		BoxKey:         boxKey,
		At:             s.now(),
	}); err != nil {
		s.log.Error("Не удалось опубликовать событие подписки",
			zap.String("action", action), zap.Error(err))
	}
}
