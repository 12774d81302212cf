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
	"storefront/internal/broker"
	"storefront/internal/mail"
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

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront")

	tp, err := util.InitTracer(util.TracerOptions{
		ServiceName:    "storefront",
		Environment:    cfg.Server.Env,
		JaegerEndpoint: cfg.Observ.JaegerEndpoint,
		SampleRatio:    cfg.Observ.SampleRatio,
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	// Cart writes run under the restricted role so row-level security scopes
	// them to the caller's session. Reads and admin writes use the service role.
	restrictedStore, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database (restricted role)", zap.Error(err))
	}
	defer restrictedStore.Close()

	serviceStore, err := store.NewStore(cfg.Database.ServiceURL)
	if err != nil {
		logger.Fatal("Failed to connect to database (service role)", zap.Error(err))
	}
	defer serviceStore.Close()
	logger.Info("Database connected")

	if cfg.Database.AutoMigrate {
		if err := serviceStore.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to migrate schema", zap.Error(err))
		}
		logger.Info("Schema migrated")
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicStorefront)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicStorefront))

	eventPublisher := broker.NewEventPublisher(producer)

	sendGrid := mail.NewSendGrid(cfg.Mail.SendGridAPIKey, cfg.Mail.From, cfg.Mail.SendGridURL)
	if !sendGrid.Configured() {
		logger.Warn("SendGrid not configured, order updates fall back to mailto links")
	}

	services := api.Services{
		Cart:      service.NewCartService(serviceStore),
		Mutator:   service.NewCartMutator(restrictedStore, eventPublisher),
		Admin:     service.NewAdminService(serviceStore, redisClient, eventPublisher, cfg.Business.IdempotencyTTL),
		Captcha:   service.NewCaptchaService(cfg.Captcha.SecretKey, cfg.Captcha.SiteKey, cfg.Captcha.VerifyURL, cfg.Captcha.AllowedOrigins),
		TwoFactor: service.NewTwoFactorService(serviceStore, redisClient, sendGrid, cfg.Business.TwoFactorTTL),
		Notify:    service.NewNotifyService(sendGrid),
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	orderConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	notificationWorker := worker.NewNotificationWorker(orderConsumer, services.Notify)
	go func() {
		if err := notificationWorker.Start(workerCtx); err != nil {
			logger.Error("Notification worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(services, cfg.Admin.APIToken, cfg.Server.RequestTimeout,
		api.ReadinessCheck{Name: "database", Check: serviceStore.Ping},
		api.ReadinessCheck{Name: "database_restricted", Check: restrictedStore.Ping},
		api.ReadinessCheck{Name: "redis", Check: redisClient.Ping},
	)
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
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := notificationWorker.Stop(); err != nil {
		logger.Error("Notification worker stop failed", zap.Error(err))
	}

	logger.Info("Server exited")
}
