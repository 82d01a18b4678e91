package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"boxshop/config"
	"boxshop/internal/payment"
	"boxshop/internal/pricing"
	"boxshop/internal/producer"
	"boxshop/internal/repository"
	"boxshop/internal/runner"
	"boxshop/internal/service"
	"boxshop/internal/tax"
	"boxshop/pkg/database"
	"boxshop/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Демон ежедневного прогона: списания за коробки месяца и платежи по
// рассрочкам. Флаг -once выполняет один прогон и выходит.
func main() {
	_ = godotenv.Load()
	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}

	defer logger.Sync()

	log := logger.L()

	cfg := config.Load(log)
	db := database.ConnectDB(&cfg.DB, log)
	defer database.CloseDB(db, log)

	repos := repository.New(db)

	if len(cfg.KafkaBrokers) == 0 {
		log.Fatal("KAFKA_BROKERS не задан")
	}
	events := producer.NewEventProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer events.Close()
	bus := producer.NewKafkaEventBus(events)

	var gateway service.PaymentGateway
	if cfg.PaymentGatewayURL != "" {
		gateway = payment.NewHTTPGateway(cfg.PaymentGatewayURL)
	} else {
		log.Warn("PAYMENT_GATEWAY_URL не задан, используется статический шлюз")
		gateway = payment.StaticGateway{Approve: true}
	}

	taxes := tax.FlatRate{HomeCountry: cfg.Shop.Pricing.HomeCountry, Rate: 8.25}
	calc := pricing.NewCalculator(cfg.Shop.Pricing)

	subs := service.NewSubscriptionService(repos, bus, cfg.Shop, log)
	installments := service.NewInstallmentService(repos, gateway, bus, cfg.Shop.Installment, log)
	boxrun := service.NewBoxRunService(repos, subs, calc, taxes, gateway, bus, cfg.Shop, log)

	once := len(os.Args) > 1 && os.Args[1] == "-once"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if once {
		if err := boxrun.Run(ctx); err != nil {
			log.Fatal("Прогон подписок завершился ошибкой", zap.Error(err))
		}
		if err := installments.ChargeDue(ctx); err != nil {
			log.Fatal("Прогон рассрочек завершился ошибкой", zap.Error(err))
		}
		return
	}

	sched := runner.NewScheduler(boxrun, installments, 24*time.Hour, log)
	sched.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sched.Stop()
	log.Info("Прогон остановлен")
}
