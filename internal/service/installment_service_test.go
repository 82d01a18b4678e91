package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"boxshop/config"
	"boxshop/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type installmentFixture struct {
	svc   *InstallmentService
	plan  *models.InstallmentPlan
	tags  map[string]bool
	saves int
	bus   *mockEventBus
}

func newInstallmentFixture(plan *models.InstallmentPlan, gw *mockGateway) *installmentFixture {
	f := &installmentFixture{plan: plan, tags: map[string]bool{}, bus: &mockEventBus{}}

	token := "tok-123"
	customer := &models.Customer{ID: plan.CustomerID, Email: "c@example.com", PaymentToken: &token}

	repo := newMockRepository()
	repo.Installments = &mockInstallmentRepo{
		getByID: func(ctx context.Context, id uuid.UUID) (*models.InstallmentPlan, error) {
			if id == plan.ID {
				return plan, nil
			}
			return nil, nil
		},
		save: func(ctx context.Context, p *models.InstallmentPlan) error {
			f.saves++
			return nil
		},
	}
	repo.Customers = &mockCustomerRepo{
		getByID: func(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
			return customer, nil
		},
		addTag: func(ctx context.Context, id uuid.UUID, name string) error {
			f.tags[name] = true
			return nil
		},
		removeTag: func(ctx context.Context, id uuid.UUID, name string) error {
			delete(f.tags, name)
			return nil
		},
	}

	f.svc = NewInstallmentService(repo, gw, f.bus, config.DefaultShopConfig().Installment, zap.NewNop())
	return f
}

func testPlan() *models.InstallmentPlan {
	start := time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC) // среда
	return &models.InstallmentPlan{
		ID:               uuid.New(),
		OrderID:          uuid.New(),
		CustomerID:       uuid.New(),
		Status:           models.InstallmentStatusActive,
		Total:            500,
		InstallmentCount: 5,
		NextChargeAt:     &start,
	}
}

// Последовательные неудачи идут по лестнице: +2 дня, ближайшая суббота,
// следующая суббота, суббота через одну, после чего план становится
// incomplete.
func TestChargeRetryLadder(t *testing.T) {
	plan := testPlan()
	gw := &mockGateway{charge: func(ctx context.Context, token string, amount float64) (ChargeResult, error) {
		return ChargeResult{Success: false, DeclineReason: "insufficient_funds", DeclineCode: "51"}, nil
	}}
	f := newInstallmentFixture(plan, gw)

	clock := time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)
	f.svc.SetNow(func() time.Time { return clock })

	steps := []struct {
		wantDay     int
		wantWeekday time.Weekday
	}{
		{6, time.Friday},    // +2 дня
		{7, time.Saturday},  // ближайшая суббота
		{14, time.Saturday}, // следующая суббота
		{28, time.Saturday}, // суббота через одну
	}
	for i, step := range steps {
		got, err := f.svc.Charge(context.Background(), plan.ID)
		if err != nil {
			t.Fatalf("попытка %d: %v", i+1, err)
		}
		if got.FailedAttempts != i+1 {
			t.Fatalf("попытка %d: счётчик неудач %d", i+1, got.FailedAttempts)
		}
		if got.NextChargeAt == nil {
			t.Fatalf("попытка %d: нет даты ретрая", i+1)
		}
		if got.NextChargeAt.Day() != step.wantDay || got.NextChargeAt.Weekday() != step.wantWeekday {
			t.Fatalf("попытка %d: ретрай %v", i+1, got.NextChargeAt)
		}
		clock = *got.NextChargeAt
	}

	if !f.tags[TagInstallmentFailed] {
		t.Fatal("нет тега неудачного списания")
	}
	if f.tags[TagInstallmentIncomplete] {
		t.Fatal("тег incomplete до пятой неудачи")
	}

	// Пятая неудача: план прекращается.
	got, err := f.svc.Charge(context.Background(), plan.ID)
	if err != nil {
		t.Fatalf("пятая попытка: %v", err)
	}
	if got.Status != models.InstallmentStatusIncomplete {
		t.Fatalf("статус после пятой неудачи: %s", got.Status)
	}
	if got.NextChargeAt != nil {
		t.Fatalf("incomplete план с датой ретрая: %v", got.NextChargeAt)
	}
	if !f.tags[TagInstallmentIncomplete] {
		t.Fatal("нет тега incomplete")
	}

	// Дальнейшие списания по плану невозможны.
	if _, err := f.svc.Charge(context.Background(), plan.ID); !errors.Is(err, ErrInstallmentFinished) {
		t.Fatalf("списание по incomplete плану: %v", err)
	}
}

func TestChargeSuccessResetsFailures(t *testing.T) {
	plan := testPlan()
	plan.FailedAttempts = 2
	var charged float64
	gw := &mockGateway{charge: func(ctx context.Context, token string, amount float64) (ChargeResult, error) {
		charged = amount
		return ChargeResult{Success: true, TransactionID: "tx-1"}, nil
	}}
	f := newInstallmentFixture(plan, gw)
	f.tags[TagInstallmentFailed] = true

	now := time.Date(2026, time.March, 7, 9, 0, 0, 0, time.UTC)
	f.svc.SetNow(func() time.Time { return now })

	got, err := f.svc.Charge(context.Background(), plan.ID)
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if charged != 100 {
		t.Fatalf("сумма списания: %v", charged)
	}
	if got.PaidCount != 1 || got.FailedAttempts != 0 {
		t.Fatalf("после успеха: paid=%d failed=%d", got.PaidCount, got.FailedAttempts)
	}
	if got.NextChargeAt == nil || got.NextChargeAt.Month() != time.April {
		t.Fatalf("следующее списание: %v", got.NextChargeAt)
	}
	if f.tags[TagInstallmentFailed] {
		t.Fatal("тег неудачи не снят")
	}
}

func TestChargeCompletesPlan(t *testing.T) {
	plan := testPlan()
	plan.PaidCount = 4
	f := newInstallmentFixture(plan, &mockGateway{})

	got, err := f.svc.Charge(context.Background(), plan.ID)
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if got.Status != models.InstallmentStatusCompleted {
		t.Fatalf("статус: %s", got.Status)
	}
	if got.NextChargeAt != nil {
		t.Fatalf("завершённый план с датой списания: %v", got.NextChargeAt)
	}
}

func TestChargeTransportErrorKeepsState(t *testing.T) {
	plan := testPlan()
	gw := &mockGateway{charge: func(ctx context.Context, token string, amount float64) (ChargeResult, error) {
		return ChargeResult{}, errors.New("gateway unreachable")
	}}
	f := newInstallmentFixture(plan, gw)

	if _, err := f.svc.Charge(context.Background(), plan.ID); err == nil {
		t.Fatal("ожидалась ошибка транспорта")
	}
	if f.saves != 0 {
		t.Fatalf("план сохранён при ошибке транспорта: %d", f.saves)
	}
	if plan.FailedAttempts != 0 {
		t.Fatalf("счётчик неудач изменён: %d", plan.FailedAttempts)
	}
}

func TestChargeUnknownPlan(t *testing.T) {
	f := newInstallmentFixture(testPlan(), &mockGateway{})
	if _, err := f.svc.Charge(context.Background(), uuid.New()); !errors.Is(err, ErrInstallmentNotFound) {
		t.Fatalf("неизвестный план: %v", err)
	}
}
