package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go"

	"event-settlement/config"
	"event-settlement/handlers"
	"event-settlement/internal/connect"
	"event-settlement/internal/fees"
	"event-settlement/internal/notify"
	"event-settlement/internal/payment"
	"event-settlement/internal/payout"
	"event-settlement/internal/provider"
	"event-settlement/internal/webhook"
	_ "event-settlement/migrations"
	"event-settlement/monitoring"
	"event-settlement/security"
	"event-settlement/utils"
)

func Start() error {
	app := pocketbase.New()
	cfg := config.LoadConfig()

	redisClient, err := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey
	notifier := notify.New(pubnub.NewPubNub(pnConfig))

	calculator, err := fees.NewCalculator(
		cfg.ProviderFeeRate, cfg.ProviderFeeFixed,
		cfg.PlatformFeeRate, cfg.PlatformFeeFixed,
		cfg.PlatformFeeMin, cfg.PlatformFeeMax,
	)
	if err != nil {
		return err
	}

	providerClient := provider.NewStripeClient(cfg.ProviderSecretKey)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel)

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		db := app.DB()

		paymentStore := payment.NewStore(db)
		machine := payment.NewMachine(paymentStore)
		payoutStore := payout.NewStore(db)
		ledger := webhook.NewLedger(db)

		connectService := connect.NewService(db, redisClient, providerClient, cfg.AccountCacheTTL)
		limiter := security.NewRateLimiter(redisClient, cfg.CheckoutRateLimit, cfg.CheckoutRateWindow)

		paymentService := payment.NewService(paymentStore, machine, providerClient, connectService, limiter, notifier, payment.ServiceConfig{
			Currency:        cfg.Currency,
			SuccessURL:      cfg.CheckoutSuccessURL,
			CancelURL:       cfg.CheckoutCancelURL,
			ProviderTimeout: cfg.ProviderTimeout,
		})
		payoutService := payout.NewService(payoutStore, paymentStore, calculator, providerClient, connectService, notifier, payout.ServiceConfig{
			Currency:        cfg.Currency,
			TransferTimeout: cfg.TransferTimeout,
		})
		gate := webhook.NewGate(redisClient, ledger, paymentStore, machine, connectService, payoutService, notifier, webhook.GateConfig{
			WebhookSecret: cfg.ProviderWebhookSecret,
			DedupeTTL:     cfg.WebhookDedupeTTL,
			MaxRetries:    cfg.WebhookMaxRetries,
			NotFoundWait:  cfg.WebhookNotFoundWait,
		})

		paymentHandler := handlers.NewPaymentHandler(paymentService)
		payoutHandler := handlers.NewPayoutHandler(payoutService)
		webhookHandler := handlers.NewWebhookHandler(gate)
		connectHandler := handlers.NewConnectHandler(connectService)

		e.Router.POST("/api/v1/payments/checkout-session", paymentHandler.CreateCheckoutSession)
		e.Router.PATCH("/api/v1/payments/{paymentId}/cash", paymentHandler.UpdateCashStatus)
		e.Router.GET("/api/v1/payments/{paymentId}", paymentHandler.GetPayment)

		e.Router.POST("/api/v1/webhooks/provider", webhookHandler.HandleProviderWebhook)

		e.Router.GET("/api/v1/connect/status", connectHandler.GetStatus)
		e.Router.POST("/api/v1/connect/register", connectHandler.Register)

		e.Router.POST("/api/v1/events/{eventId}/payout", payoutHandler.CreatePayout)
		e.Router.POST("/api/v1/payouts/{payoutId}/retry", payoutHandler.RetryPayout)
		e.Router.POST("/api/v1/payouts/{payoutId}/reconcile", payoutHandler.ReconcilePayout)
		e.Router.GET("/api/v1/payouts/{payoutId}", payoutHandler.GetPayout)

		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		// Deleting an organizer account flags their sub-account;
		// best-effort, never blocks the deletion.
		app.OnRecordAfterDeleteSuccess("users").BindFunc(func(e *core.RecordEvent) error {
			connectService.Disable(e.Record.Id)
			return e.Next()
		})

		go payoutService.RunReconciler(ctx, cfg.ReconcileInterval)
		if cfg.EnableMetrics {
			go monitoring.NewMonitor(db).Collect(ctx)
			go monitoring.StartMetricsServer(ctx, cfg.MetricsPort)
		}

		slog.Info("settlement engine routes registered", "environment", cfg.Environment)
		return e.Next()
	})

	return app.Start()
}

func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Info("shutdown signal received")
	cancel()
}
