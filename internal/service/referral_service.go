package service

import (
	"context"

	"boxshop/internal/giftcode"
	"boxshop/internal/models"

	"github.com/google/uuid"
)

// EnsureShareCode выдаёт клиенту реферальный share-код, если его ещё
// нет, и возвращает его.
func (s *OrderService) EnsureShareCode(ctx context.Context, customerID uuid.UUID) (string, error) {
	customer, err := s.repo.Customers.GetByID(ctx, customerID)
	if err != nil {
		return "", err
	}
	if customer == nil {
		return "", ErrCustomerNotFound
	}
	if customer.ShareCode != nil && *customer.ShareCode != "" {
		return *customer.ShareCode, nil
	}

	code, err := giftcode.Unique(giftcode.ShareCode, func(c string) (bool, error) {
		owner, err := s.repo.Customers.GetByShareCode(ctx, c)
		if err != nil {
			return false, err
		}
		if owner != nil {
			return true, nil
		}
		// Share-код не должен совпадать и с обычным кодом скидки.
		d, err := s.repo.Discounts.GetByCode(ctx, c)
		return d != nil, err
	})
	if err != nil {
		return "", err
	}

	if err := s.repo.Customers.SetShareCode(ctx, customerID, code); err != nil {
		return "", err
	}
	return code, nil
}

// InstallmentHistory возвращает журнал списаний по плану рассрочки.
func (s *OrderService) InstallmentHistory(ctx context.Context, planID uuid.UUID) ([]models.HistoryEntry, error) {
	return s.repo.Customers.ListHistory(ctx, historyModelInstallment, planID)
}
