package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/auth"
	"storefront/internal/broker"
	"storefront/internal/cart"
	"storefront/internal/payment"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, "storefront"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront")

	tp, err := util.InitTracer("storefront", cfg.Observ.JaegerEndpoint, cfg.SampleRatio())
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	logger.Info("Database connected and migrated")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Cart.TTL)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	var publisher service.OrderEventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		logger.Warn("No Kafka brokers configured, order events disabled")
	}

	gateway := payment.NewGateway(cfg.Stripe.SecretKey, payment.Options{
		BaseURL:         cfg.Stripe.BaseURL,
		Currency:        cfg.Stripe.Currency,
		ShippingCountry: cfg.Stripe.ShippingCountry,
		WebhookSecret:   cfg.Stripe.WebhookSecret,
		Timeout:         time.Duration(cfg.Business.ProviderTimeoutSeconds) * time.Second,
	})

	dispatcher := worker.NewDispatcher(time.Duration(cfg.Business.TaskTimeoutSeconds) * time.Second)

	checkoutService := service.NewCheckoutService(db, gateway)
	webhookService := service.NewWebhookService(gateway, db, db, db, publisher, dispatcher)
	dashboardService := service.NewDashboardService(db)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Deps{
		Checkout:      checkoutService,
		Webhooks:      webhookService,
		Catalog:       db,
		Orders:        db,
		Dashboard:     dashboardService,
		Carts:         cart.NewPersister(redisClient, cfg.Cart.StoreName),
		Auth:          auth.NewAuthenticator(cfg.Admin.Secret),
		Passwords:     auth.NewPasswordChecker(cfg.Admin.Secret, cfg.Admin.PasswordHash),
		SecureCookies: cfg.IsProduction(),
		Readiness: map[string]api.Pinger{
			"postgres": db,
			"redis":    redisClient,
		},
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	if err := dispatcher.Stop(shutdownCtx); err != nil {
		logger.Warn("Background tasks did not finish", zap.Error(err))
	}

	logger.Info("Server exited")
}
