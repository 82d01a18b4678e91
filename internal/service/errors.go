package service

import "errors"

var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrNoCustomer           = errors.New("customer is required")
	ErrCustomerNotFound     = errors.New("customer not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrDiscountNotFound     = errors.New("discount code not found")
	ErrGiftCardNotFound     = errors.New("gift card not found")
	ErrGiftCardEmpty        = errors.New("gift card has no balance")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSubscriptionStopped  = errors.New("subscription is stopped")
	ErrSkipPastCommitment   = errors.New("cannot skip past the current commitment")
	ErrSkipLimitReached     = errors.New("skip limit for this commitment reached")
	ErrMonthAlreadySkipped  = errors.New("month is already skipped")
	ErrPauseTooLong         = errors.New("pause exceeds the allowed window")
	ErrBoxNotFound          = errors.New("shopping box not found")
	ErrInstallmentNotFound  = errors.New("installment plan not found")
	ErrInstallmentFinished  = errors.New("installment plan is not active")
	ErrOrderNotRecalculable = errors.New("order has no snapshot to recalculate from")
	ErrOrderNotRefundable   = errors.New("order is not paid, nothing to refund")
	ErrOrderNotFailable     = errors.New("order is past the payment stage")
	ErrAlreadyCancelled     = errors.New("order already cancelled")
	ErrWholesaleMinimum     = errors.New("wholesale minimum order amount not met")
)
