package main

import (
	"placemats-be/internal/catalog"
	"placemats-be/internal/config"
	"placemats-be/internal/db"
	"placemats-be/internal/handler"
	"placemats-be/internal/logger"
	"placemats-be/internal/notify"
	"placemats-be/internal/order"
	"placemats-be/internal/payment"
	"placemats-be/internal/payment/webhook"
	"placemats-be/internal/server"

	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := db.InitDB(cfg)
	defer database.Close()

	catalogRepo := catalog.NewRepository(database)
	orderRepo := order.NewRepository(database)
	eventLog := payment.NewEventLog(database)

	gateway := payment.NewStripeGateway(
		cfg.StripeSecretKey,
		cfg.StripeWebhookSecret,
		cfg.FrontendURL,
	)

	orderSvc := order.NewService(
		orderRepo,
		catalogRepo,
		gateway,
		notify.NewLogNotifier(),
		cfg.FreeShippingThreshold,
		cfg.FlatShippingFee,
	)

	checkoutHandler := handler.NewCheckoutHandler(orderSvc)
	webhookHandler := webhook.NewHandler(orderSvc, gateway, eventLog)

	e := server.New(cfg, checkoutHandler, webhookHandler)

	logger.L().Info("checkout server listening",
		zap.String("port", cfg.AppPort),
		zap.String("env", cfg.AppEnv),
	)
	logger.L().Fatal("server stopped", zap.Error(e.Start(":"+cfg.AppPort)))
}
