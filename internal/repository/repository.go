package repository

import "gorm.io/gorm"

type Repository struct {
	DB            *gorm.DB
	Customers     CustomerRepo
	Products      ProductRepo
	Boxes         BoxRepo
	Discounts     DiscountRepo
	GiftCards     GiftCardRepo
	Orders        OrderRepo
	Subscriptions SubscriptionRepo
	Installments  InstallmentRepo
	Reports       ReportRepo
}

func buildRepository(db *gorm.DB) *Repository {
	return &Repository{
		DB:            db,
		Customers:     NewCustomerRepo(db),
		Products:      NewProductRepo(db),
		Boxes:         NewBoxRepo(db),
		Discounts:     NewDiscountRepo(db),
		GiftCards:     NewGiftCardRepo(db),
		Orders:        NewOrderRepo(db),
		Subscriptions: NewSubscriptionRepo(db),
		Installments:  NewInstallmentRepo(db),
		Reports:       NewReportRepo(db),
	}
}

func New(db *gorm.DB) *Repository { return buildRepository(db) }

// WithTx выполняет fn в транзакции поверх полного набора репозиториев.
// Без подключения к базе (в тестах с мок-репозиториями) fn выполняется
// как есть.
func (r *Repository) WithTx(fn func(tx *Repository) error) error {
	if r.DB == nil {
		return fn(r)
	}
	return r.DB.Transaction(func(tx *gorm.DB) error {
		return fn(buildRepository(tx))
	})
}
