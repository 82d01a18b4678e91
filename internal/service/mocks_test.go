package service

import (
	"context"
	"time"

	"boxshop/internal/models"
	"boxshop/internal/repository"

	"github.com/google/uuid"
)

// Мок-репозитории в стиле структур с функциональными полями: тест
// задаёт только нужные ветки, остальные возвращают нули.

type mockCustomerRepo struct {
	getByID        func(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	getByShareCode func(ctx context.Context, code string) (*models.Customer, error)
	countPaid      func(ctx context.Context, id uuid.UUID) (int64, error)
	addTag         func(ctx context.Context, id uuid.UUID, name string) error
	removeTag      func(ctx context.Context, id uuid.UUID, name string) error
	addHistory     func(ctx context.Context, h *models.HistoryEntry) error
	createInvite   func(ctx context.Context, inv *models.Invitation) error
	listUnrewarded func(ctx context.Context, before time.Time) ([]*models.Invitation, error)
	markRewarded   func(ctx context.Context, id uuid.UUID, at time.Time) error
	setShareCode   func(ctx context.Context, id uuid.UUID, code string) error
	setToken       func(ctx context.Context, id uuid.UUID, token string) error
}

func (m *mockCustomerRepo) Create(ctx context.Context, c *models.Customer) error { return nil }
func (m *mockCustomerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	if m.getByID != nil {
		return m.getByID(ctx, id)
	}
	return nil, nil
}
func (m *mockCustomerRepo) GetByEmail(ctx context.Context, email string) (*models.Customer, error) {
	return nil, nil
}
func (m *mockCustomerRepo) GetByShareCode(ctx context.Context, code string) (*models.Customer, error) {
	if m.getByShareCode != nil {
		return m.getByShareCode(ctx, code)
	}
	return nil, nil
}
func (m *mockCustomerRepo) SetShareCode(ctx context.Context, id uuid.UUID, code string) error {
	if m.setShareCode != nil {
		return m.setShareCode(ctx, id, code)
	}
	return nil
}
func (m *mockCustomerRepo) SetPaymentToken(ctx context.Context, id uuid.UUID, token string) error {
	if m.setToken != nil {
		return m.setToken(ctx, id, token)
	}
	return nil
}
func (m *mockCustomerRepo) AddTag(ctx context.Context, id uuid.UUID, name string) error {
	if m.addTag != nil {
		return m.addTag(ctx, id, name)
	}
	return nil
}
func (m *mockCustomerRepo) RemoveTag(ctx context.Context, id uuid.UUID, name string) error {
	if m.removeTag != nil {
		return m.removeTag(ctx, id, name)
	}
	return nil
}
func (m *mockCustomerRepo) CountPaidOrders(ctx context.Context, id uuid.UUID) (int64, error) {
	if m.countPaid != nil {
		return m.countPaid(ctx, id)
	}
	return 0, nil
}
func (m *mockCustomerRepo) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	if m.createInvite != nil {
		return m.createInvite(ctx, inv)
	}
	return nil
}
func (m *mockCustomerRepo) FindInvitationByOrder(ctx context.Context, orderID uuid.UUID) (*models.Invitation, error) {
	return nil, nil
}
func (m *mockCustomerRepo) ListUnrewardedInvitations(ctx context.Context, before time.Time) ([]*models.Invitation, error) {
	if m.listUnrewarded != nil {
		return m.listUnrewarded(ctx, before)
	}
	return nil, nil
}
func (m *mockCustomerRepo) MarkInvitationRewarded(ctx context.Context, id uuid.UUID, at time.Time) error {
	if m.markRewarded != nil {
		return m.markRewarded(ctx, id, at)
	}
	return nil
}
func (m *mockCustomerRepo) AddHistory(ctx context.Context, h *models.HistoryEntry) error {
	if m.addHistory != nil {
		return m.addHistory(ctx, h)
	}
	return nil
}
func (m *mockCustomerRepo) ListHistory(ctx context.Context, modelType string, modelID uuid.UUID) ([]models.HistoryEntry, error) {
	return nil, nil
}

type mockProductRepo struct {
	getBySKU func(ctx context.Context, sku string) (*models.Product, error)
}

func (m *mockProductRepo) Create(ctx context.Context, p *models.Product) error { return nil }
func (m *mockProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return nil, nil
}
func (m *mockProductRepo) GetBySKU(ctx context.Context, sku string) (*models.Product, error) {
	if m.getBySKU != nil {
		return m.getBySKU(ctx, sku)
	}
	return nil, nil
}
func (m *mockProductRepo) ListBySKUs(ctx context.Context, skus []string) ([]*models.Product, error) {
	var out []*models.Product
	if m.getBySKU == nil {
		return nil, nil
	}
	for _, sku := range skus {
		p, err := m.getBySKU(ctx, sku)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}
func (m *mockProductRepo) ListByCategory(ctx context.Context, slug string) ([]*models.Product, error) {
	return nil, nil
}

type mockBoxRepo struct {
	getByKey  func(ctx context.Context, key string) (*models.ShoppingBox, error)
	decrement func(ctx context.Context, key string) error
}

func (m *mockBoxRepo) Create(ctx context.Context, b *models.ShoppingBox) error { return nil }
func (m *mockBoxRepo) GetByKey(ctx context.Context, key string) (*models.ShoppingBox, error) {
	if m.getByKey != nil {
		return m.getByKey(ctx, key)
	}
	return nil, nil
}
func (m *mockBoxRepo) GetBySlug(ctx context.Context, slug string) (*models.ShoppingBox, error) {
	return nil, nil
}
func (m *mockBoxRepo) DecrementStock(ctx context.Context, key string) error {
	if m.decrement != nil {
		return m.decrement(ctx, key)
	}
	return nil
}
func (m *mockBoxRepo) IncrementStock(ctx context.Context, key string) error { return nil }
func (m *mockBoxRepo) ListSellable(ctx context.Context) ([]*models.ShoppingBox, error) {
	return nil, nil
}

type mockDiscountRepo struct {
	getByCode      func(ctx context.Context, code string) (*models.Discount, error)
	incrementUsage func(ctx context.Context, id uuid.UUID) error
	createRed      func(ctx context.Context, red *models.DiscountRedemption) error
	countRed       func(ctx context.Context, discountID, customerID uuid.UUID) (int64, error)
	countRedIP     func(ctx context.Context, discountID uuid.UUID, ip string) (int64, error)
	create         func(ctx context.Context, d *models.Discount) error
}

func (m *mockDiscountRepo) Create(ctx context.Context, d *models.Discount) error {
	if m.create != nil {
		return m.create(ctx, d)
	}
	return nil
}
func (m *mockDiscountRepo) GetByCode(ctx context.Context, code string) (*models.Discount, error) {
	if m.getByCode != nil {
		return m.getByCode(ctx, code)
	}
	return nil, nil
}
func (m *mockDiscountRepo) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	if m.incrementUsage != nil {
		return m.incrementUsage(ctx, id)
	}
	return nil
}
func (m *mockDiscountRepo) CreateRedemption(ctx context.Context, red *models.DiscountRedemption) error {
	if m.createRed != nil {
		return m.createRed(ctx, red)
	}
	return nil
}
func (m *mockDiscountRepo) CountRedemptionsByCustomer(ctx context.Context, discountID, customerID uuid.UUID) (int64, error) {
	if m.countRed != nil {
		return m.countRed(ctx, discountID, customerID)
	}
	return 0, nil
}
func (m *mockDiscountRepo) CountRedemptionsByIP(ctx context.Context, discountID uuid.UUID, ip string) (int64, error) {
	if m.countRedIP != nil {
		return m.countRedIP(ctx, discountID, ip)
	}
	return 0, nil
}

type mockGiftCardRepo struct {
	getByCode func(ctx context.Context, code string) (*models.GiftCard, error)
	debit     func(ctx context.Context, id uuid.UUID, amount float64) error
	create    func(ctx context.Context, gc *models.GiftCard) error
}

func (m *mockGiftCardRepo) Create(ctx context.Context, gc *models.GiftCard) error {
	if m.create != nil {
		return m.create(ctx, gc)
	}
	return nil
}
func (m *mockGiftCardRepo) GetByCode(ctx context.Context, code string) (*models.GiftCard, error) {
	if m.getByCode != nil {
		return m.getByCode(ctx, code)
	}
	return nil, nil
}
func (m *mockGiftCardRepo) Debit(ctx context.Context, id uuid.UUID, amount float64) error {
	if m.debit != nil {
		return m.debit(ctx, id, amount)
	}
	return nil
}
func (m *mockGiftCardRepo) Credit(ctx context.Context, id uuid.UUID, amount float64) error {
	return nil
}

type mockOrderRepo struct {
	create       func(ctx context.Context, o *models.Order) error
	getByID      func(ctx context.Context, id uuid.UUID) (*models.Order, error)
	save         func(ctx context.Context, o *models.Order) error
	updateStatus func(ctx context.Context, id uuid.UUID, status models.OrderStatus, at time.Time) error
	countForDay  func(ctx context.Context, day time.Time) (int64, error)
}

func (m *mockOrderRepo) Create(ctx context.Context, o *models.Order) error {
	if m.create != nil {
		return m.create(ctx, o)
	}
	return nil
}
func (m *mockOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if m.getByID != nil {
		return m.getByID(ctx, id)
	}
	return nil, nil
}
func (m *mockOrderRepo) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	return nil, nil
}
func (m *mockOrderRepo) Save(ctx context.Context, o *models.Order) error {
	if m.save != nil {
		return m.save(ctx, o)
	}
	return nil
}
func (m *mockOrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus, at time.Time) error {
	if m.updateStatus != nil {
		return m.updateStatus(ctx, id, status, at)
	}
	return nil
}
func (m *mockOrderRepo) List(ctx context.Context, f repository.OrderListFilter) ([]*models.Order, int64, error) {
	return nil, 0, nil
}
func (m *mockOrderRepo) CountForDay(ctx context.Context, day time.Time) (int64, error) {
	if m.countForDay != nil {
		return m.countForDay(ctx, day)
	}
	return 0, nil
}

type mockSubscriptionRepo struct {
	create          func(ctx context.Context, s *models.Subscription) error
	getByID         func(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	getActive       func(ctx context.Context, customerID uuid.UUID) (*models.Subscription, error)
	save            func(ctx context.Context, s *models.Subscription) error
	listDue         func(ctx context.Context, billingDay int) ([]*models.Subscription, error)
	createCommit    func(ctx context.Context, c *models.Commitment) error
	saveCommit      func(ctx context.Context, c *models.Commitment) error
	currentCommit   func(ctx context.Context, subID uuid.UUID) (*models.Commitment, error)
	nextPending     func(ctx context.Context, subID uuid.UUID) (*models.Commitment, error)
	listCommits     func(ctx context.Context, subID uuid.UUID) ([]*models.Commitment, error)
	addSkip         func(ctx context.Context, skip *models.SubscriptionSkip) error
	listSkips       func(ctx context.Context, subID uuid.UUID) ([]models.SubscriptionSkip, error)
	countSkipsSince func(ctx context.Context, subID uuid.UUID, since time.Time) (int64, error)
	addExchange     func(ctx context.Context, e *models.SubscriptionExchange) error
	findExchange    func(ctx context.Context, subID uuid.UUID, boxKey string) (*models.SubscriptionExchange, error)
	addDiscount     func(ctx context.Context, d *models.SubscriptionDiscount) error
	findDiscount    func(ctx context.Context, subID uuid.UUID, boxKey string) (*models.SubscriptionDiscount, error)
}

func (m *mockSubscriptionRepo) Create(ctx context.Context, s *models.Subscription) error {
	if m.create != nil {
		return m.create(ctx, s)
	}
	return nil
}
func (m *mockSubscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	if m.getByID != nil {
		return m.getByID(ctx, id)
	}
	return nil, nil
}
func (m *mockSubscriptionRepo) GetActiveByCustomer(ctx context.Context, customerID uuid.UUID) (*models.Subscription, error) {
	if m.getActive != nil {
		return m.getActive(ctx, customerID)
	}
	return nil, nil
}
func (m *mockSubscriptionRepo) Save(ctx context.Context, s *models.Subscription) error {
	if m.save != nil {
		return m.save(ctx, s)
	}
	return nil
}
func (m *mockSubscriptionRepo) ListDue(ctx context.Context, billingDay int) ([]*models.Subscription, error) {
	if m.listDue != nil {
		return m.listDue(ctx, billingDay)
	}
	return nil, nil
}
func (m *mockSubscriptionRepo) CreateCommitment(ctx context.Context, c *models.Commitment) error {
	if m.createCommit != nil {
		return m.createCommit(ctx, c)
	}
	return nil
}
func (m *mockSubscriptionRepo) SaveCommitment(ctx context.Context, c *models.Commitment) error {
	if m.saveCommit != nil {
		return m.saveCommit(ctx, c)
	}
	return nil
}
func (m *mockSubscriptionRepo) CurrentCommitment(ctx context.Context, subID uuid.UUID) (*models.Commitment, error) {
	if m.currentCommit != nil {
		return m.currentCommit(ctx, subID)
	}
	return nil, nil
}
func (m *mockSubscriptionRepo) NextPendingCommitment(ctx context.Context, subID uuid.UUID) (*models.Commitment, error) {
	if m.nextPending != nil {
		return m.nextPending(ctx, subID)
	}
	return nil, nil
}
func (m *mockSubscriptionRepo) ListCommitments(ctx context.Context, subID uuid.UUID) ([]*models.Commitment, error) {
	if m.listCommits != nil {
		return m.listCommits(ctx, subID)
	}
	return nil, nil
}
func (m *mockSubscriptionRepo) AddSkip(ctx context.Context, skip *models.SubscriptionSkip) error {
	if m.addSkip != nil {
		return m.addSkip(ctx, skip)
	}
	return nil
}
func (m *mockSubscriptionRepo) RemoveSkip(ctx context.Context, subID uuid.UUID, boxKey string) error {
	return nil
}
func (m *mockSubscriptionRepo) ListSkips(ctx context.Context, subID uuid.UUID) ([]models.SubscriptionSkip, error) {
	if m.listSkips != nil {
		return m.listSkips(ctx, subID)
	}
	return nil, nil
}
func (m *mockSubscriptionRepo) CountSkipsSince(ctx context.Context, subID uuid.UUID, since time.Time) (int64, error) {
	if m.countSkipsSince != nil {
		return m.countSkipsSince(ctx, subID, since)
	}
	return 0, nil
}
func (m *mockSubscriptionRepo) AddGift(ctx context.Context, g *models.SubscriptionGift) error {
	return nil
}
func (m *mockSubscriptionRepo) ListGifts(ctx context.Context, subID uuid.UUID) ([]models.SubscriptionGift, error) {
	return nil, nil
}
func (m *mockSubscriptionRepo) AddAddon(ctx context.Context, a *models.SubscriptionAddon) error {
	return nil
}
func (m *mockSubscriptionRepo) ListAddons(ctx context.Context, subID uuid.UUID, boxKey string) ([]models.SubscriptionAddon, error) {
	return nil, nil
}
func (m *mockSubscriptionRepo) AddExchange(ctx context.Context, e *models.SubscriptionExchange) error {
	if m.addExchange != nil {
		return m.addExchange(ctx, e)
	}
	return nil
}
func (m *mockSubscriptionRepo) FindExchangeForBox(ctx context.Context, subID uuid.UUID, boxKey string) (*models.SubscriptionExchange, error) {
	if m.findExchange != nil {
		return m.findExchange(ctx, subID, boxKey)
	}
	return nil, nil
}
func (m *mockSubscriptionRepo) AddDiscount(ctx context.Context, d *models.SubscriptionDiscount) error {
	if m.addDiscount != nil {
		return m.addDiscount(ctx, d)
	}
	return nil
}
func (m *mockSubscriptionRepo) ListDiscounts(ctx context.Context, subID uuid.UUID) ([]models.SubscriptionDiscount, error) {
	return nil, nil
}
func (m *mockSubscriptionRepo) FindDiscountForBox(ctx context.Context, subID uuid.UUID, boxKey string) (*models.SubscriptionDiscount, error) {
	if m.findDiscount != nil {
		return m.findDiscount(ctx, subID, boxKey)
	}
	return nil, nil
}
func (m *mockSubscriptionRepo) MarkDiscountUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

type mockInstallmentRepo struct {
	create     func(ctx context.Context, p *models.InstallmentPlan) error
	getByID    func(ctx context.Context, id uuid.UUID) (*models.InstallmentPlan, error)
	getByOrder func(ctx context.Context, orderID uuid.UUID) (*models.InstallmentPlan, error)
	save       func(ctx context.Context, p *models.InstallmentPlan) error
	listDue    func(ctx context.Context, due time.Time) ([]*models.InstallmentPlan, error)
}

func (m *mockInstallmentRepo) Create(ctx context.Context, p *models.InstallmentPlan) error {
	if m.create != nil {
		return m.create(ctx, p)
	}
	return nil
}
func (m *mockInstallmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.InstallmentPlan, error) {
	if m.getByID != nil {
		return m.getByID(ctx, id)
	}
	return nil, nil
}
func (m *mockInstallmentRepo) GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.InstallmentPlan, error) {
	if m.getByOrder != nil {
		return m.getByOrder(ctx, orderID)
	}
	return nil, nil
}
func (m *mockInstallmentRepo) Save(ctx context.Context, p *models.InstallmentPlan) error {
	if m.save != nil {
		return m.save(ctx, p)
	}
	return nil
}
func (m *mockInstallmentRepo) ListDue(ctx context.Context, due time.Time) ([]*models.InstallmentPlan, error) {
	if m.listDue != nil {
		return m.listDue(ctx, due)
	}
	return nil, nil
}
func (m *mockInstallmentRepo) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.InstallmentPlan, error) {
	return nil, nil
}

type mockReportRepo struct {
	add        func(ctx context.Context, row *models.BoxRunReport) error
	findForDay func(ctx context.Context, subID uuid.UUID, date time.Time) (*models.BoxRunReport, error)
}

func (m *mockReportRepo) Add(ctx context.Context, row *models.BoxRunReport) error {
	if m.add != nil {
		return m.add(ctx, row)
	}
	return nil
}
func (m *mockReportRepo) ListForDate(ctx context.Context, date time.Time) ([]models.BoxRunReport, error) {
	return nil, nil
}
func (m *mockReportRepo) FindForDay(ctx context.Context, subID uuid.UUID, date time.Time) (*models.BoxRunReport, error) {
	if m.findForDay != nil {
		return m.findForDay(ctx, subID, date)
	}
	return nil, nil
}

type mockEventBus struct {
	published []string
}

func (m *mockEventBus) PublishOrderCreated(ctx context.Context, e OrderCreatedEvent) error {
	m.published = append(m.published, "order.created")
	return nil
}
func (m *mockEventBus) PublishOrderStatus(ctx context.Context, e OrderStatusEvent) error {
	m.published = append(m.published, "order."+e.Status)
	return nil
}
func (m *mockEventBus) PublishSubscription(ctx context.Context, e SubscriptionEvent) error {
	m.published = append(m.published, "subscription."+e.Action)
	return nil
}
func (m *mockEventBus) PublishInstallmentCharge(ctx context.Context, e InstallmentChargeEvent) error {
	m.published = append(m.published, "installment.charge")
	return nil
}
func (m *mockEventBus) PublishGiftCardIssued(ctx context.Context, e GiftCardIssuedEvent) error {
	m.published = append(m.published, "giftcard.issued")
	return nil
}
func (m *mockEventBus) PublishReferralRewarded(ctx context.Context, e ReferralRewardedEvent) error {
	m.published = append(m.published, "referral.rewarded")
	return nil
}

type mockGateway struct {
	charge func(ctx context.Context, token string, amount float64) (ChargeResult, error)
}

func (m *mockGateway) Charge(ctx context.Context, token string, amount float64) (ChargeResult, error) {
	if m.charge != nil {
		return m.charge(ctx, token, amount)
	}
	return ChargeResult{Success: true, TransactionID: "tx"}, nil
}

type mockTax struct {
	rate float64
}

func (m mockTax) RateFor(ctx context.Context, country, region, zip string) (float64, error) {
	return m.rate, nil
}

func newMockRepository() *repository.Repository {
	return &repository.Repository{
		Customers:     &mockCustomerRepo{},
		Products:      &mockProductRepo{},
		Boxes:         &mockBoxRepo{},
		Discounts:     &mockDiscountRepo{},
		GiftCards:     &mockGiftCardRepo{},
		Orders:        &mockOrderRepo{},
		Subscriptions: &mockSubscriptionRepo{},
		Installments:  &mockInstallmentRepo{},
		Reports:       &mockReportRepo{},
	}
}
