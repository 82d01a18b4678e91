package migrate

import (
	"boxshop/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Migrate выполняет автомиграцию схемы и добавляет ограничения, которые
// gorm сам не создаёт (CHECK, частичные индексы).
func Migrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("Запуск миграций базы данных")

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error; err != nil {
		log.Error("Не удалось создать расширение pgcrypto", zap.Error(err))
		return err
	}

	if err := db.AutoMigrate(
		&models.Customer{},
		&models.CustomerTag{},
		&models.Invitation{},
		&models.HistoryEntry{},
		&models.Product{},
		&models.ProductCategory{},
		&models.ShoppingBox{},
		&models.Discount{},
		&models.DiscountRedemption{},
		&models.GiftCard{},
		&models.Order{},
		&models.OrderItem{},
		&models.BoxRunReport{},
		&models.Subscription{},
		&models.Commitment{},
		&models.SubscriptionSkip{},
		&models.SubscriptionGift{},
		&models.SubscriptionAddon{},
		&models.SubscriptionExchange{},
		&models.SubscriptionDiscount{},
		&models.InstallmentPlan{},
	); err != nil {
		log.Error("Ошибка автомиграции", zap.Error(err))
		return err
	}

	constraints := []struct {
		name string
		sql  string
	}{
		{
			name: "chk_orders_status",
			sql: `ALTER TABLE orders ADD CONSTRAINT chk_orders_status
				CHECK (status IN ('pending','needs_approval','processing','completed','cancelled','refunded','failed'))`,
		},
		{
			name: "chk_orders_grand_total",
			sql:  `ALTER TABLE orders ADD CONSTRAINT chk_orders_grand_total CHECK (grand_total >= 0)`,
		},
		{
			name: "chk_subscriptions_status",
			sql: `ALTER TABLE subscriptions ADD CONSTRAINT chk_subscriptions_status
				CHECK (status IN ('active','paused','stopped'))`,
		},
		{
			name: "chk_subscriptions_billing_day",
			sql: `ALTER TABLE subscriptions ADD CONSTRAINT chk_subscriptions_billing_day
				CHECK (billing_day BETWEEN 1 AND 28)`,
		},
		{
			name: "chk_commitments_status",
			sql: `ALTER TABLE commitments ADD CONSTRAINT chk_commitments_status
				CHECK (status IN ('current','pending','done'))`,
		},
		{
			name: "chk_commitments_boxes_used",
			sql: `ALTER TABLE commitments ADD CONSTRAINT chk_commitments_boxes_used
				CHECK (boxes_used >= 0 AND boxes_used <= box_count)`,
		},
		{
			name: "chk_installment_plans_status",
			sql: `ALTER TABLE installment_plans ADD CONSTRAINT chk_installment_plans_status
				CHECK (status IN ('active','completed','incomplete','cancelled'))`,
		},
		{
			name: "chk_installment_plans_paid_count",
			sql: `ALTER TABLE installment_plans ADD CONSTRAINT chk_installment_plans_paid_count
				CHECK (paid_count >= 0 AND paid_count <= installment_count)`,
		},
		{
			name: "chk_gift_cards_balance",
			sql:  `ALTER TABLE gift_cards ADD CONSTRAINT chk_gift_cards_balance CHECK (balance >= 0)`,
		},
		{
			name: "chk_shopping_boxes_stock",
			sql:  `ALTER TABLE shopping_boxes ADD CONSTRAINT chk_shopping_boxes_stock CHECK (stock >= 0)`,
		},
	}

	for _, c := range constraints {
		var exists bool
		if err := db.Raw(
			`SELECT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = ?)`, c.name,
		).Scan(&exists).Error; err != nil {
			log.Error("Не удалось проверить наличие ограничения", zap.String("name", c.name), zap.Error(err))
			return err
		}
		if exists {
			continue
		}
		if err := db.Exec(c.sql).Error; err != nil {
			log.Error("Не удалось добавить ограничение", zap.String("name", c.name), zap.Error(err))
			return err
		}
		log.Info("Добавлено ограничение", zap.String("name", c.name))
	}

	indexes := []string{
		// Ровно один current-commitment на подписку.
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_commitments_current
			ON commitments (subscription_id) WHERE status = 'current'`,
		// Активные планы выбираются по дате следующего списания.
		`CREATE INDEX IF NOT EXISTS ix_installment_plans_due
			ON installment_plans (next_charge_at) WHERE status = 'active'`,
		// Прогон подписок выбирает активные по дню списания.
		`CREATE INDEX IF NOT EXISTS ix_subscriptions_billing
			ON subscriptions (billing_day) WHERE status = 'active'`,
	}
	for _, sql := range indexes {
		if err := db.Exec(sql).Error; err != nil {
			log.Error("Не удалось создать индекс", zap.Error(err))
			return err
		}
	}

	log.Info("Миграции выполнены успешно")
	return nil
}
