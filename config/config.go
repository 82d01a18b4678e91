package config

import (
	"os"
	"strings"

	"boxshop/pkg/database"

	"go.uber.org/zap"
)

type Config struct {
	Port string
	DB   database.Config

	KafkaBrokers []string
	KafkaTopic   string

	// Внешние коллабораторы; пустое значение включает dev-заглушку.
	PaymentGatewayURL string
	FulfillmentURL    string
	FulfillmentAPIKey string

	Shop ShopConfig
}

// ShopConfig — бизнес-настройки магазина. В оригинале это были разрозненные
// option-лукапы; здесь всё собрано в одну явную структуру.
type ShopConfig struct {
	Currency string

	Pricing      PricingPolicy
	Subscription SubscriptionPolicy
	Installment  InstallmentPolicy
	Referral     ReferralPolicy
}

type PricingPolicy struct {
	// Флэт-ставка доставки для оптовиков (подменяет обычную доставку).
	WholesaleShippingFee  float64
	WholesaleMinimumOrder float64

	// Плата за доставку при купоне "бесплатный первый месяц":
	// сама коробка бесплатна, доставка — нет.
	FreeFirstMonthShippingFee float64

	// SKU, наличие которых в корзине делает доставку бесплатной.
	FreeShippingSKUs []string

	// SKU ускоренной доставки: его наличие переключает requested service.
	RushShippingSKU string

	// Страна, в которую подписочные заказы едут бесплатно.
	HomeCountry string
}

type SubscriptionPolicy struct {
	MonthlySKU        string
	Monthly2019SKU    string
	StarterBoxSKU     string
	CommitmentBox6SKU string
	CommitmentBox3SKU string
	BonusBoxSKU       string
	GiftCardSKU       string

	// Консолидация дня списания: дни из [SnapFrom..31] прижимаются к SnapDay,
	// остальные ограничиваются MaxDay. Пороговые значения — бизнес-политика.
	ScheduleSnapFrom int
	ScheduleSnapDay  int
	ScheduleMaxDay   int

	// Сколько месяцев можно пропустить внутри текущего commitment.
	CommitmentSkipLimit int

	// На сколько месяцев дальше последней коробки commitment можно поставить паузу.
	PauseLimitMonths int

	// После скольких неуспешных списаний подписка уходит в паузу.
	PauseAfterFailedCharges int

	// Сколько commitment'ов держим заранее (current + pending).
	PreallocatedCommitments int

	// Горизонт проекции будущих месяцев для обычной подписки.
	FutureMonths int

	// Код reactivation-скидки, закрепляемой за следующей коробкой при
	// возобновлении паузы; пусто — предложение выключено.
	ReactivationCode string
}

type InstallmentPolicy struct {
	// Кол-во неуспешных попыток, после которого план становится incomplete.
	MaxFailedAttempts int
	ScheduleMaxDay    int
}

type ReferralPolicy struct {
	// Величина скидки по реферальному коду.
	DiscountValue float64

	// referral50: число будущих месяцев со скидкой и её размер.
	Referral50Months int
	Referral50Amount float64
	Referral50Code   string

	// Сколько дней заказ должен провисеть завершённым, прежде чем
	// рефереру начислится кредит (анти-фрод).
	FraudHoldDays int
}

func DefaultShopConfig() ShopConfig {
	return ShopConfig{
		Currency: "USD",
		Pricing: PricingPolicy{
			WholesaleShippingFee:      0,
			WholesaleMinimumOrder:     100,
			FreeFirstMonthShippingFee: 9.99,
			FreeShippingSKUs:          []string{"ACC-FREE-SHIPPING"},
			RushShippingSKU:           "ACC-RUSH-SHIPPING",
			HomeCountry:               "US",
		},
		Subscription: SubscriptionPolicy{
			MonthlySKU:              "subscription-monthly",
			Monthly2019SKU:          "REC-MONTHLY2019",
			StarterBoxSKU:           "starter-box",
			CommitmentBox6SKU:       "commitment-box-6",
			CommitmentBox3SKU:       "commitment-box-3",
			BonusBoxSKU:             "bonus-box",
			GiftCardSKU:             "gift-card",
			ScheduleSnapFrom:        21,
			ScheduleSnapDay:         20,
			ScheduleMaxDay:          28,
			CommitmentSkipLimit:     2,
			PauseLimitMonths:        6,
			PauseAfterFailedCharges: 5,
			PreallocatedCommitments: 3,
			FutureMonths:            6,
			ReactivationCode:        "REACTIVATE10",
		},
		Installment: InstallmentPolicy{
			MaxFailedAttempts: 4,
			ScheduleMaxDay:    28,
		},
		Referral: ReferralPolicy{
			DiscountValue:    10,
			Referral50Months: 4,
			Referral50Amount: 10,
			Referral50Code:   "REFERRAL50OFF",
			FraudHoldDays:    14,
		},
	}
}

func Load(log *zap.Logger) *Config {
	return &Config{
		Port: getEnv("APP_PORT", log),
		DB: database.Config{
			Host:     getEnv("DB_HOST", log),
			Port:     getEnv("DB_PORT", log),
			User:     getEnv("DB_USER", log),
			Password: getEnv("DB_PASSWORD", log),
			Name:     getEnv("DB_NAME", log),
			SSLMode:  getEnv("DB_SSLMODE", log),
		},
		KafkaBrokers:      splitAndTrim(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:        os.Getenv("KAFKA_TOPIC_EVENTS"),
		PaymentGatewayURL: os.Getenv("PAYMENT_GATEWAY_URL"),
		FulfillmentURL:    os.Getenv("FULFILLMENT_URL"),
		FulfillmentAPIKey: os.Getenv("FULFILLMENT_API_KEY"),
		Shop:              DefaultShopConfig(),
	}
}

func getEnv(key string, log *zap.Logger) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	log.Error("Обязательная переменная окружения не установлена", zap.String("key", key))
	panic("missing required environment variable: " + key)
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(s, ",") {
		if pt := strings.TrimSpace(p); pt != "" {
			parts = append(parts, pt)
		}
	}
	return parts
}
