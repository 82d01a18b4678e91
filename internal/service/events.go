package service

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Доменные события возвращаются сервисами как значения и публикуются
// отдельным диспетчером; ядро не знает про транспорт.

type OrderCreatedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	Number      string    `json:"number"`
	CustomerID  uuid.UUID `json:"customer_id"`
	GrandTotal  float64   `json:"grand_total"`
	Currency    string    `json:"currency"`
	Subscribing bool      `json:"subscribing"`
	CreatedAt   time.Time `json:"created_at"`
}

type OrderStatusEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	Number     string    `json:"number"`
	CustomerID uuid.UUID `json:"customer_id"`
	Status     string    `json:"status"`
	At         time.Time `json:"at"`
}

type SubscriptionEvent struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	CustomerID     uuid.UUID `json:"customer_id"`
	Action         string    `json:"action"` // created / skipped / paused / resumed / stopped
	BoxKey         string    `json:"box_key,omitempty"`
	At             time.Time `json:"at"`
}

type InstallmentChargeEvent struct {
	PlanID     uuid.UUID `json:"plan_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	Success    bool      `json:"success"`
	PaidCount  int       `json:"paid_count"`
	Status     string    `json:"status"`
	At         time.Time `json:"at"`
}

type GiftCardIssuedEvent struct {
	GiftCardID uuid.UUID `json:"gift_card_id"`
	OrderID    uuid.UUID `json:"order_id"`
	Code       string    `json:"code"`
	Balance    float64   `json:"balance"`
	At         time.Time `json:"at"`
}

type ReferralRewardedEvent struct {
	InvitationID uuid.UUID `json:"invitation_id"`
	ReferrerID   uuid.UUID `json:"referrer_id"`
	Amount       float64   `json:"amount"`
	At           time.Time `json:"at"`
}

type EventBus interface {
	PublishOrderCreated(ctx context.Context, e OrderCreatedEvent) error
	PublishOrderStatus(ctx context.Context, e OrderStatusEvent) error
	PublishSubscription(ctx context.Context, e SubscriptionEvent) error
	PublishInstallmentCharge(ctx context.Context, e InstallmentChargeEvent) error
	PublishGiftCardIssued(ctx context.Context, e GiftCardIssuedEvent) error
	PublishReferralRewarded(ctx context.Context, e ReferralRewardedEvent) error
}
