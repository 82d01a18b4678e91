package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"boxshop/config"
	"boxshop/internal/cart"
	"boxshop/internal/discount"
	"boxshop/internal/models"
	"boxshop/internal/pricing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var checkoutNow = time.Date(2026, time.April, 10, 12, 0, 0, 0, time.UTC)

type orderFixture struct {
	svc     *OrderService
	repo    *mockOrderRepo
	bus     *mockEventBus
	created *models.Order
}

func newOrderFixture(t *testing.T, customer *models.Customer, mutate func(r *mockCustomerRepo, d *mockDiscountRepo, g *mockGiftCardRepo, s *mockSubscriptionRepo, i *mockInstallmentRepo)) *orderFixture {
	t.Helper()

	f := &orderFixture{bus: &mockEventBus{}}

	customers := &mockCustomerRepo{
		getByID: func(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
			if customer != nil && id == customer.ID {
				return customer, nil
			}
			return nil, nil
		},
	}
	discounts := &mockDiscountRepo{}
	giftCards := &mockGiftCardRepo{}
	subs := &mockSubscriptionRepo{}
	installments := &mockInstallmentRepo{}
	if mutate != nil {
		mutate(customers, discounts, giftCards, subs, installments)
	}

	f.repo = &mockOrderRepo{
		create: func(ctx context.Context, o *models.Order) error {
			o.ID = uuid.New()
			f.created = o
			return nil
		},
	}

	repo := newMockRepository()
	repo.Customers = customers
	repo.Discounts = discounts
	repo.GiftCards = giftCards
	repo.Subscriptions = subs
	repo.Installments = installments
	repo.Orders = f.repo

	cfg := config.DefaultShopConfig()
	calc := pricing.NewCalculator(cfg.Pricing)
	eval := discount.NewEvaluator(cfg.Subscription, cfg.Referral, func() time.Time { return checkoutNow })

	f.svc = NewOrderService(repo, calc, eval, mockTax{rate: 10}, nil, f.bus, cfg, zap.NewNop())
	f.svc.SetNow(func() time.Time { return checkoutNow })
	return f
}

func checkoutCart(prices ...float64) *cart.Cart {
	c := cart.New("US")
	for i, p := range prices {
		c.Add(&cart.LineItem{
			SKU:      string(rune('A' + i)),
			Name:     string(rune('A' + i)),
			Quantity: 1,
			Price:    p,
			Taxable:  true,
		})
	}
	return c
}

func usAddress() models.Address {
	return models.Address{Line1: "1 Main St", City: "Austin", Region: "TX", Zip: "78701", Country: "US"}
}

func TestCheckoutValidation(t *testing.T) {
	customer := &models.Customer{ID: uuid.New(), Email: "c@example.com"}
	f := newOrderFixture(t, customer, nil)

	if _, err := f.svc.Checkout(context.Background(), CheckoutInput{CustomerID: customer.ID}); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("пустая корзина: %v", err)
	}
	if _, err := f.svc.Checkout(context.Background(), CheckoutInput{Cart: checkoutCart(10)}); !errors.Is(err, ErrNoCustomer) {
		t.Fatalf("без клиента: %v", err)
	}
	if _, err := f.svc.Checkout(context.Background(), CheckoutInput{CustomerID: uuid.New(), Cart: checkoutCart(10)}); !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("неизвестный клиент: %v", err)
	}
}

func TestCheckoutHappyPath(t *testing.T) {
	customer := &models.Customer{ID: uuid.New(), Email: "c@example.com"}
	f := newOrderFixture(t, customer, nil)

	order, err := f.svc.Checkout(context.Background(), CheckoutInput{
		CustomerID:      customer.ID,
		Cart:            checkoutCart(100),
		ShippingAddress: usAddress(),
		ShippingRate:    5,
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if order.Status != models.OrderStatusPending {
		t.Fatalf("статус: %s", order.Status)
	}
	if !strings.HasPrefix(order.Number, "BX-20260410-") {
		t.Fatalf("номер заказа: %s", order.Number)
	}
	// 100 + 10% налога + 5 доставки.
	if order.GrandTotal != 115 {
		t.Fatalf("итог: %v", order.GrandTotal)
	}
	if order.Snapshot.TaxRate != 10 || order.SnapshotVersion != 1 {
		t.Fatalf("снапшот: %+v", order.Snapshot)
	}
	if len(f.bus.published) != 1 || f.bus.published[0] != "order.created" {
		t.Fatalf("события: %v", f.bus.published)
	}
}

func TestCheckoutDropsIneligibleDiscount(t *testing.T) {
	customer := &models.Customer{ID: uuid.New(), Email: "c@example.com"}
	expired := &models.Discount{
		ID:      uuid.New(),
		Code:    "OLD10",
		Kind:    models.KindPercentage,
		Options: models.DiscountOptions{Value: 10},
		Enabled: true,
	}
	past := checkoutNow.AddDate(0, -1, 0)
	expired.ExpiresAt = &past

	var usageBumped bool
	f := newOrderFixture(t, customer, func(r *mockCustomerRepo, d *mockDiscountRepo, g *mockGiftCardRepo, s *mockSubscriptionRepo, i *mockInstallmentRepo) {
		d.getByCode = func(ctx context.Context, code string) (*models.Discount, error) {
			return expired, nil
		}
		d.incrementUsage = func(ctx context.Context, id uuid.UUID) error {
			usageBumped = true
			return nil
		}
	})

	c := checkoutCart(100)
	c.DiscountCode = "OLD10"
	order, err := f.svc.Checkout(context.Background(), CheckoutInput{
		CustomerID:      customer.ID,
		Cart:            c,
		ShippingAddress: usAddress(),
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	// Скидка снята молча: заказ проходит без неё.
	if order.DiscountTotal != 0 || order.DiscountCode != nil {
		t.Fatalf("снятая скидка: total=%v code=%v", order.DiscountTotal, order.DiscountCode)
	}
	if usageBumped {
		t.Fatal("счётчик применений вырос для снятой скидки")
	}
}

func TestCheckoutAppliesDiscountAndRedemption(t *testing.T) {
	customer := &models.Customer{ID: uuid.New(), Email: "c@example.com"}
	d10 := &models.Discount{
		ID:      uuid.New(),
		Code:    "SAVE10",
		Kind:    models.KindPercentage,
		Options: models.DiscountOptions{Value: 10},
		Enabled: true,
	}

	var redemption *models.DiscountRedemption
	f := newOrderFixture(t, customer, func(r *mockCustomerRepo, d *mockDiscountRepo, g *mockGiftCardRepo, s *mockSubscriptionRepo, i *mockInstallmentRepo) {
		d.getByCode = func(ctx context.Context, code string) (*models.Discount, error) {
			return d10, nil
		}
		d.createRed = func(ctx context.Context, red *models.DiscountRedemption) error {
			redemption = red
			return nil
		}
	})

	c := checkoutCart(100)
	c.DiscountCode = "SAVE10"
	order, err := f.svc.Checkout(context.Background(), CheckoutInput{
		CustomerID:      customer.ID,
		Cart:            c,
		ShippingAddress: usAddress(),
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if order.DiscountTotal != 10 {
		t.Fatalf("скидка: %v", order.DiscountTotal)
	}
	// Налог считается от уценённой суммы: (100-10) * 10%.
	if order.TaxTotal != 9 {
		t.Fatalf("налог: %v", order.TaxTotal)
	}
	if order.DiscountCode == nil || *order.DiscountCode != "SAVE10" {
		t.Fatalf("код на заказе: %v", order.DiscountCode)
	}
	if redemption == nil || redemption.Amount != 10 || redemption.CustomerID != customer.ID {
		t.Fatalf("применение: %+v", redemption)
	}
}

func TestCheckoutShareCodeCreatesInvitation(t *testing.T) {
	referrer := &models.Customer{ID: uuid.New(), Email: "ref@example.com"}
	customer := &models.Customer{ID: uuid.New(), Email: "c@example.com"}

	var invitation *models.Invitation
	f := newOrderFixture(t, customer, func(r *mockCustomerRepo, d *mockDiscountRepo, g *mockGiftCardRepo, s *mockSubscriptionRepo, i *mockInstallmentRepo) {
		r.getByShareCode = func(ctx context.Context, code string) (*models.Customer, error) {
			if code == "FRIEND42" {
				return referrer, nil
			}
			return nil, nil
		}
		r.createInvite = func(ctx context.Context, inv *models.Invitation) error {
			invitation = inv
			return nil
		}
	})

	c := checkoutCart(100)
	c.DiscountCode = "FRIEND42"
	order, err := f.svc.Checkout(context.Background(), CheckoutInput{
		CustomerID:      customer.ID,
		Cart:            c,
		ShippingAddress: usAddress(),
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if order.DiscountTotal != config.DefaultShopConfig().Referral.DiscountValue {
		t.Fatalf("реферальная скидка: %v", order.DiscountTotal)
	}
	if invitation == nil || invitation.ReferrerID != referrer.ID || invitation.CustomerID != customer.ID {
		t.Fatalf("приглашение: %+v", invitation)
	}
}

func TestCheckoutWholesaler(t *testing.T) {
	customer := &models.Customer{ID: uuid.New(), Email: "w@example.com", IsWholesaler: true}
	f := newOrderFixture(t, customer, nil)

	// Ниже минимального оптового заказа.
	small := checkoutCart(50)
	if _, err := f.svc.Checkout(context.Background(), CheckoutInput{
		CustomerID:      customer.ID,
		Cart:            small,
		ShippingAddress: usAddress(),
	}); !errors.Is(err, ErrWholesaleMinimum) {
		t.Fatalf("малый оптовый заказ: %v", err)
	}

	// Первый оптовый заказ уходит на подтверждение.
	big := checkoutCart(300)
	order, err := f.svc.Checkout(context.Background(), CheckoutInput{
		CustomerID:      customer.ID,
		Cart:            big,
		ShippingAddress: usAddress(),
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if order.Status != models.OrderStatusNeedsApproval {
		t.Fatalf("статус первого оптового заказа: %s", order.Status)
	}
	// Плоская оптовая доставка.
	if order.ShippingTotal != 0 {
		t.Fatalf("оптовая доставка: %v", order.ShippingTotal)
	}
}

func TestCheckoutGiftCard(t *testing.T) {
	customer := &models.Customer{ID: uuid.New(), Email: "c@example.com"}
	card := &models.GiftCard{ID: uuid.New(), Code: "AAAA-BBBB-CCCC-DDDD", Balance: 30}

	var debited float64
	f := newOrderFixture(t, customer, func(r *mockCustomerRepo, d *mockDiscountRepo, g *mockGiftCardRepo, s *mockSubscriptionRepo, i *mockInstallmentRepo) {
		g.getByCode = func(ctx context.Context, code string) (*models.GiftCard, error) {
			if code == card.Code {
				return card, nil
			}
			return nil, nil
		}
		g.debit = func(ctx context.Context, id uuid.UUID, amount float64) error {
			debited = amount
			return nil
		}
	})

	c := checkoutCart(100)
	c.GiftCardCode = card.Code
	order, err := f.svc.Checkout(context.Background(), CheckoutInput{
		CustomerID:      customer.ID,
		Cart:            c,
		ShippingAddress: usAddress(),
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if order.GiftCardAmount != 30 || debited != 30 {
		t.Fatalf("списание с карты: order=%v debit=%v", order.GiftCardAmount, debited)
	}
	// 100 + 10 налога - 30 с карты.
	if order.GrandTotal != 80 {
		t.Fatalf("итог: %v", order.GrandTotal)
	}

	c2 := checkoutCart(100)
	c2.GiftCardCode = "XXXX-XXXX-XXXX-XXXX"
	if _, err := f.svc.Checkout(context.Background(), CheckoutInput{
		CustomerID:      customer.ID,
		Cart:            c2,
		ShippingAddress: usAddress(),
	}); !errors.Is(err, ErrGiftCardNotFound) {
		t.Fatalf("неизвестная карта: %v", err)
	}
}

func TestCheckoutSubscriptionCreatesSubAndCommitments(t *testing.T) {
	customer := &models.Customer{ID: uuid.New(), Email: "c@example.com"}

	var sub *models.Subscription
	var commitments []*models.Commitment
	f := newOrderFixture(t, customer, func(r *mockCustomerRepo, d *mockDiscountRepo, g *mockGiftCardRepo, s *mockSubscriptionRepo, i *mockInstallmentRepo) {
		s.create = func(ctx context.Context, created *models.Subscription) error {
			created.ID = uuid.New()
			sub = created
			return nil
		}
		s.createCommit = func(ctx context.Context, c *models.Commitment) error {
			commitments = append(commitments, c)
			return nil
		}
	})

	c := cart.New("US")
	c.Add(&cart.LineItem{
		SKU:            "SUB-3MO",
		Name:           "Quarterly box",
		Quantity:       1,
		Price:          90,
		Taxable:        true,
		Subscription:   true,
		IntervalMonths: 1,
		BoxCount:       3,
		BoxKey:         "April 2026",
	})
	order, err := f.svc.Checkout(context.Background(), CheckoutInput{
		CustomerID:      customer.ID,
		Cart:            c,
		ShippingAddress: usAddress(),
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	if sub == nil {
		t.Fatal("подписка не создана")
	}
	if sub.BillingDay != 10 || sub.LastBoxKey != "April 2026" {
		t.Fatalf("подписка: day=%d box=%s", sub.BillingDay, sub.LastBoxKey)
	}
	// Текущий блок плюс два pending про запас.
	if len(commitments) != 3 {
		t.Fatalf("блоков: %d", len(commitments))
	}
	if commitments[0].Status != models.CommitmentStatusCurrent || commitments[0].BoxesUsed != 1 {
		t.Fatalf("текущий блок: %+v", commitments[0])
	}
	if commitments[0].OrderID == nil || *commitments[0].OrderID != order.ID {
		t.Fatal("текущий блок не привязан к заказу")
	}
	for _, c := range commitments[1:] {
		if c.Status != models.CommitmentStatusPending {
			t.Fatalf("запасной блок: %+v", c)
		}
	}
}

func TestCheckoutCreatesInstallmentPlan(t *testing.T) {
	customer := &models.Customer{ID: uuid.New(), Email: "c@example.com"}

	var plan *models.InstallmentPlan
	f := newOrderFixture(t, customer, func(r *mockCustomerRepo, d *mockDiscountRepo, g *mockGiftCardRepo, s *mockSubscriptionRepo, i *mockInstallmentRepo) {
		i.create = func(ctx context.Context, p *models.InstallmentPlan) error {
			plan = p
			return nil
		}
	})

	c := cart.New("US")
	c.Add(&cart.LineItem{
		SKU:              "BOX-ANNUAL",
		Name:             "Annual box",
		Quantity:         1,
		Price:            500,
		Taxable:          true,
		InstallmentCount: 5,
	})
	if _, err := f.svc.Checkout(context.Background(), CheckoutInput{
		CustomerID:      customer.ID,
		Cart:            c,
		ShippingAddress: usAddress(),
	}); err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	if plan == nil {
		t.Fatal("рассрочка не создана")
	}
	if plan.Total != 500 || plan.InstallmentCount != 5 {
		t.Fatalf("план: %+v", plan)
	}
	if plan.InstallmentAmount() != 100 {
		t.Fatalf("доля платежа: %v", plan.InstallmentAmount())
	}
	if plan.NextChargeAt == nil || plan.NextChargeAt.Month() != time.May {
		t.Fatalf("первое списание: %v", plan.NextChargeAt)
	}
}

// Депозит уходит вместе с заказом, по графику списывается остаток.
func TestCheckoutInstallmentDeposit(t *testing.T) {
	customer := &models.Customer{ID: uuid.New(), Email: "c@example.com"}

	var plan *models.InstallmentPlan
	f := newOrderFixture(t, customer, func(r *mockCustomerRepo, d *mockDiscountRepo, g *mockGiftCardRepo, s *mockSubscriptionRepo, i *mockInstallmentRepo) {
		i.create = func(ctx context.Context, p *models.InstallmentPlan) error {
			plan = p
			return nil
		}
	})

	c := cart.New("US")
	c.Add(&cart.LineItem{
		SKU:                "BOX-ANNUAL",
		Name:               "Annual box",
		Quantity:           1,
		Price:              599,
		Taxable:            true,
		InstallmentCount:   5,
		InstallmentDeposit: 99,
	})
	if _, err := f.svc.Checkout(context.Background(), CheckoutInput{
		CustomerID:      customer.ID,
		Cart:            c,
		ShippingAddress: usAddress(),
	}); err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	if plan == nil {
		t.Fatal("рассрочка не создана")
	}
	if plan.Deposit != 99 || plan.Total != 599 {
		t.Fatalf("план: %+v", plan)
	}
	if plan.InstallmentAmount() != 100 {
		t.Fatalf("доля платежа: %v", plan.InstallmentAmount())
	}
	if plan.RemainingAmount() != 500 {
		t.Fatalf("остаток: %v", plan.RemainingAmount())
	}
}

// Код с per_ip_address снимается, если с адреса покупателя он уже
// применялся.
func TestCheckoutDropsDiscountRedeemedFromSameIP(t *testing.T) {
	customer := &models.Customer{ID: uuid.New(), Email: "c@example.com"}
	perIP := &models.Discount{
		ID:      uuid.New(),
		Code:    "ONCE-PER-IP",
		Kind:    models.KindPercentage,
		Options: models.DiscountOptions{Value: 10, PerIPAddress: true},
		Enabled: true,
	}

	var countedIP string
	f := newOrderFixture(t, customer, func(r *mockCustomerRepo, d *mockDiscountRepo, g *mockGiftCardRepo, s *mockSubscriptionRepo, i *mockInstallmentRepo) {
		d.getByCode = func(ctx context.Context, code string) (*models.Discount, error) {
			return perIP, nil
		}
		d.countRedIP = func(ctx context.Context, discountID uuid.UUID, ip string) (int64, error) {
			countedIP = ip
			return 1, nil
		}
	})

	c := checkoutCart(100)
	c.DiscountCode = "ONCE-PER-IP"
	c.BuyerIP = "203.0.113.7"
	order, err := f.svc.Checkout(context.Background(), CheckoutInput{
		CustomerID:      customer.ID,
		Cart:            c,
		ShippingAddress: usAddress(),
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if countedIP != "203.0.113.7" {
		t.Fatalf("проверен адрес: %q", countedIP)
	}
	if order.DiscountTotal != 0 || order.DiscountCode != nil {
		t.Fatalf("скидка с занятого адреса: total=%v code=%v", order.DiscountTotal, order.DiscountCode)
	}
}
