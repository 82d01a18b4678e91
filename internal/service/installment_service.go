package service

import (
	"context"
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

const (
	TagInstallmentFailed     = "installment-failed-charge"
	TagInstallmentIncomplete = "installment-incomplete"

	historyModelInstallment = "installment_plan"
)

type InstallmentService struct {
	repo    *repository.Repository
	gateway PaymentGateway
	events  EventBus
	policy  config.InstallmentPolicy
	log     *zap.Logger
	now     func() time.Time
}

func NewInstallmentService(repo *repository.Repository, gateway PaymentGateway, events EventBus, policy config.InstallmentPolicy, log *zap.Logger) *InstallmentService {
	return &InstallmentService{
		repo:    repo,
		gateway: gateway,
		events:  events,
		policy:  policy,
		log:     log,
		now:     time.Now,
	}
}

// createInstallmentPlanInTx создаёт рассрочку по позиции заказа. Каждый
// платёж — полная доля, частичных списаний нет.
func (s *OrderService) createInstallmentPlanInTx(
	ctx context.Context,
	tx *repository.Repository,
	customer *models.Customer,
	order *models.Order,
	item *cart.LineItem,
	now time.Time,
) error {
	qty := item.Quantity
	if qty < 1 {
		qty = 1
	}
	first := schedule.NextInstallmentDate(now, s.shop.Installment.ScheduleMaxDay)
	plan := &models.InstallmentPlan{
		OrderID:          order.ID,
		CustomerID:       customer.ID,
		Status:           models.InstallmentStatusActive,
		Total:            item.LineTotal(),
		Deposit:          item.InstallmentDeposit * float64(qty),
		Amount:           item.InstallmentAmount * float64(qty),
		InstallmentCount: item.InstallmentCount,
		NextChargeAt:     &first,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return tx.Installments.Create(ctx, plan)
}

// Charge выполняет одно списание по плану и двигает его состояние:
// успех сбрасывает счётчик неудач и назначает следующий месяц, неудача
// идёт по ретрай-лестнице вплоть до статуса incomplete.
func (s *InstallmentService) Charge(ctx context.Context, planID uuid.UUID) (*models.InstallmentPlan, error) {
	plan, err := s.repo.Installments.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, ErrInstallmentNotFound
	}
	if plan.Status != models.InstallmentStatusActive {
		return nil, ErrInstallmentFinished
	}

	customer, err := s.repo.Customers.GetByID(ctx, plan.CustomerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, ErrCustomerNotFound
	}

	now := s.now()
	amount := plan.InstallmentAmount()

	var token string
	if customer.PaymentToken != nil {
		token = *customer.PaymentToken
	}
	res, err := s.gateway.Charge(ctx, token, amount)
	if err != nil {
		// Ошибка транспорта до шлюза: состояние плана не меняем,
		// попытка повторится следующим прогоном.
		return nil, err
	}

	if res.Success {
		return s.chargeSucceeded(ctx, plan, customer, amount, res, now)
	}
	return s.chargeFailed(ctx, plan, customer, res, now)
}

func (s *InstallmentService) chargeSucceeded(ctx context.Context, plan *models.InstallmentPlan, customer *models.Customer, amount float64, res ChargeResult, now time.Time) (*models.InstallmentPlan, error) {
	plan.PaidCount++
	plan.FailedAttempts = 0
	plan.UpdatedAt = now
	if plan.PaidCount >= plan.InstallmentCount {
		plan.Status = models.InstallmentStatusCompleted
		plan.NextChargeAt = nil
	} else {
		next := schedule.NextInstallmentDate(now, s.policy.ScheduleMaxDay)
		plan.NextChargeAt = &next
	}

	err := s.repo.WithTx(func(tx *repository.Repository) error {
		if err := tx.Installments.Save(ctx, plan); err != nil {
			return err
		}
		if err := tx.Customers.RemoveTag(ctx, customer.ID, TagInstallmentFailed); err != nil {
			return err
		}
		if err := tx.Customers.RemoveTag(ctx, customer.ID, TagInstallmentIncomplete); err != nil {
			return err
		}
		return tx.Customers.AddHistory(ctx, &models.HistoryEntry{
			ModelType: historyModelInstallment,
			ModelID:   plan.ID,
			Type:      "charge_succeeded",
			Data: map[string]any{
				"amount":         pricing.Round2(amount),
				"paid_count":     plan.PaidCount,
				"transaction_id": res.TransactionID,
			},
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.publishCharge(ctx, plan, true, now)
	return plan, nil
}

func (s *InstallmentService) chargeFailed(ctx context.Context, plan *models.InstallmentPlan, customer *models.Customer, res ChargeResult, now time.Time) (*models.InstallmentPlan, error) {
	plan.FailedAttempts++
	plan.UpdatedAt = now

	incomplete := plan.FailedAttempts > s.policy.MaxFailedAttempts
	if incomplete {
		plan.Status = models.InstallmentStatusIncomplete
		plan.NextChargeAt = nil
	} else {
		next := schedule.NextRetry(now, plan.FailedAttempts)
		plan.NextChargeAt = &next
	}

	err := s.repo.WithTx(func(tx *repository.Repository) error {
		if err := tx.Installments.Save(ctx, plan); err != nil {
			return err
		}
		if err := tx.Customers.AddTag(ctx, customer.ID, TagInstallmentFailed); err != nil {
			return err
		}
		if incomplete {
			if err := tx.Customers.AddTag(ctx, customer.ID, TagInstallmentIncomplete); err != nil {
				return err
			}
		}
		return tx.Customers.AddHistory(ctx, &models.HistoryEntry{
			ModelType: historyModelInstallment,
			ModelID:   plan.ID,
			Type:      "charge_failed",
			Data: map[string]any{
				"attempt":        plan.FailedAttempts,
				"decline_reason": res.DeclineReason,
				"decline_code":   res.DeclineCode,
			},
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.publishCharge(ctx, plan, false, now)
	return plan, nil
}

// ChargeDue прогоняет все планы с подошедшей датой списания.
func (s *InstallmentService) ChargeDue(ctx context.Context) error {
	due, err := s.repo.Installments.ListDue(ctx, s.now())
	if err != nil {
		return err
	}
	for _, plan := range due {
		if _, err := s.Charge(ctx, plan.ID); err != nil {
			s.log.Error("Списание по рассрочке не выполнено",
				zap.String("plan", plan.ID.String()), zap.Error(err))
		}
	}
	return nil
}

func (s *InstallmentService) publishCharge(ctx context.Context, plan *models.InstallmentPlan, success bool, now time.Time) {
	if err := s.events.PublishInstallmentCharge(ctx, InstallmentChargeEvent{
		PlanID:     plan.ID,
		CustomerID: plan.CustomerID,
		Success:    success,
		PaidCount:  plan.PaidCount,
		Status:     string(plan.Status),
		At:         now,
	}); err != nil {
		s.log.Error("Не удалось опубликовать событие списания", zap.Error(err))
	}
}
