package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"boxshop/config"
	"boxshop/internal/discount"
	"boxshop/internal/fulfillment"
	"boxshop/internal/payment"
	"boxshop/internal/pricing"
	"boxshop/internal/producer"
	"boxshop/internal/repository"
	"boxshop/internal/service"
	"boxshop/internal/tax"
	transport "boxshop/internal/transport/http"
	"boxshop/pkg/database"
	"boxshop/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

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

	var shipper fulfillment.Client
	if cfg.FulfillmentURL != "" {
		shipper = fulfillment.NewHTTPClient(cfg.FulfillmentURL, cfg.FulfillmentAPIKey)
	}

	taxes := tax.FlatRate{HomeCountry: cfg.Shop.Pricing.HomeCountry, Rate: 8.25}

	calc := pricing.NewCalculator(cfg.Shop.Pricing)
	eval := discount.NewEvaluator(cfg.Shop.Subscription, cfg.Shop.Referral, nil)

	orders := service.NewOrderService(repos, calc, eval, taxes, shipper, bus, cfg.Shop, log)
	subs := service.NewSubscriptionService(repos, bus, cfg.Shop, log)
	installments := service.NewInstallmentService(repos, gateway, bus, cfg.Shop.Installment, log)
	boxrun := service.NewBoxRunService(repos, subs, calc, taxes, gateway, bus, cfg.Shop, log)

	if !isDev {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	transport.NewHandler(orders, subs, installments, boxrun).Register(r)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("Запуск HTTP-сервера", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP-сервер упал", zap.Error(err))
		}
	}()

	<-quit
	log.Info("Остановка HTTP-сервера...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Ошибка при остановке сервера", zap.Error(err))
	}
	log.Info("HTTP-сервер остановлен")
}
