package service

import "context"

// ChargeResult — результат обращения к платёжному шлюзу. Отказ — не
// ошибка транспорта: Success=false с заполненным Declined.
type ChargeResult struct {
	Success       bool
	TransactionID string
	DeclineReason string
	DeclineCode   string
}

// PaymentGateway — внешний платёжный шлюз. Ядро не ретраит вызовы само,
// повторные попытки — дело планировщиков.
type PaymentGateway interface {
	Charge(ctx context.Context, accountToken string, amount float64) (ChargeResult, error)
}

// TaxService возвращает ставку налога в процентах для адреса доставки.
type TaxService interface {
	RateFor(ctx context.Context, country, region, zip string) (float64, error)
}
