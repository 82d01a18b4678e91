package producer

import (
	"context"
	"encoding/json"

	"boxshop/internal/service"
)

// KafkaEventBus приводит доменные события к общей форме
// {event_name, payload} и публикует их через EventProducer.
type KafkaEventBus struct {
	producer *EventProducer
}

func NewKafkaEventBus(p *EventProducer) *KafkaEventBus {
	return &KafkaEventBus{producer: p}
}

func (b *KafkaEventBus) publish(ctx context.Context, name, key string, event any) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return b.producer.Publish(ctx, key, EventMessage{EventName: name, Payload: payload})
}

func (b *KafkaEventBus) PublishOrderCreated(ctx context.Context, e service.OrderCreatedEvent) error {
	return b.publish(ctx, "order.created", e.OrderID.String(), e)
}

func (b *KafkaEventBus) PublishOrderStatus(ctx context.Context, e service.OrderStatusEvent) error {
	return b.publish(ctx, "order."+e.Status, e.OrderID.String(), e)
}

func (b *KafkaEventBus) PublishSubscription(ctx context.Context, e service.SubscriptionEvent) error {
	return b.publish(ctx, "subscription."+e.Action, e.SubscriptionID.String(), e)
}

func (b *KafkaEventBus) PublishInstallmentCharge(ctx context.Context, e service.InstallmentChargeEvent) error {
	name := "installment.charge_failed"
	if e.Success {
		name = "installment.charge_succeeded"
	}
	return b.publish(ctx, name, e.PlanID.String(), e)
}

func (b *KafkaEventBus) PublishGiftCardIssued(ctx context.Context, e service.GiftCardIssuedEvent) error {
	return b.publish(ctx, "giftcard.issued", e.GiftCardID.String(), e)
}

func (b *KafkaEventBus) PublishReferralRewarded(ctx context.Context, e service.ReferralRewardedEvent) error {
	return b.publish(ctx, "referral.rewarded", e.InvitationID.String(), e)
}
