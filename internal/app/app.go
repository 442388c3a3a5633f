package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"elimu_backend/internal/auth"
	"elimu_backend/internal/config"
	"elimu_backend/internal/email"
	"elimu_backend/internal/handlers"
	"elimu_backend/internal/logger"
	"elimu_backend/internal/middleware"
	"elimu_backend/internal/models"
	"elimu_backend/internal/ratelimit"
	"elimu_backend/internal/repositories"
	"elimu_backend/internal/routes"
	"elimu_backend/internal/services"
	"elimu_backend/internal/services/payments"
	"elimu_backend/internal/validator"
	"elimu_backend/internal/workers"
)

// Run wires the whole application and blocks serving HTTP.
func Run() error {
	_ = godotenv.Load()

	config.LoadConfig()
	cfg := config.GetConfig()

	logger.Init(cfg.Server.Env)
	log := logger.GetLogger()

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.School{},
		&models.PaymentTransaction{},
		&models.WebhookEvent{},
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if err := seedFirstAdmin(db, cfg); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	userRepo := repositories.NewUserRepository(db)
	schoolRepo := repositories.NewSchoolRepository(db)
	txRepo := repositories.NewTransactionRepository(db)
	eventRepo := repositories.NewWebhookEventRepository(db)

	emailProvider := email.NewSMTPProvider(cfg)

	daraja := payments.NewDarajaClient(payments.DarajaConfig{
		BaseURL:        cfg.Mpesa.BaseURL,
		ConsumerKey:    cfg.Mpesa.ConsumerKey,
		ConsumerSecret: cfg.Mpesa.ConsumerSecret,
		Shortcode:      cfg.Mpesa.Shortcode,
		Passkey:        cfg.Mpesa.Passkey,
		CallbackURL:    cfg.Mpesa.CallbackURL,
	})
	paystack := payments.NewPaystackClient(payments.PaystackConfig{
		BaseURL:     cfg.Paystack.BaseURL,
		SecretKey:   cfg.Paystack.SecretKey,
		CallbackURL: cfg.Paystack.CallbackURL,
	})

	// Missing signatures pass only outside production, for sandbox callbacks.
	verifier := payments.NewVerifier(cfg.Webhook.SigningSecret, cfg.Server.Env != "production")
	limiter := ratelimit.New(cfg.Webhook.RateLimit, time.Duration(cfg.Webhook.RateWindow)*time.Second)

	subscriptionSvc := services.NewSubscriptionService(userRepo, schoolRepo, emailProvider, cfg.Subscription.SchoolSlots)
	paymentSvc := services.NewPaymentService(txRepo, eventRepo, subscriptionSvc, daraja, paystack, verifier, limiter, services.PaymentConfig{
		MaxAmount:      cfg.Mpesa.MaxAmount,
		PollInterval:   time.Duration(cfg.Mpesa.PollInterval) * time.Second,
		PollAttempts:   cfg.Mpesa.PollAttempts,
		PaystackSecret: cfg.Paystack.SecretKey,
	})

	validate := validator.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter.StartSweep(ctx, time.Minute)
	workers.NewSubscriptionWorker(subscriptionSvc, time.Duration(cfg.Subscription.SweepInterval)*time.Minute).Start(ctx)
	workers.NewTransactionWorker(paymentSvc, time.Minute, time.Duration(cfg.Mpesa.PendingMaxAge)*time.Minute).Start(ctx)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggingMiddleware())

	routes.RegisterRoutes(r, routes.Handlers{
		Payments:      handlers.NewPaymentHandler(paymentSvc, validate),
		Webhooks:      handlers.NewWebhookHandler(paymentSvc),
		Subscriptions: handlers.NewSubscriptionHandler(subscriptionSvc),
	})

	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("server starting", "address", address, "env", cfg.Server.Env)
	return r.Run(address)
}

// seedFirstAdmin creates the bootstrap admin account when none exists and
// credentials are configured.
func seedFirstAdmin(db *gorm.DB, cfg *config.Config) error {
	if cfg.Admin.Email == "" || cfg.Admin.Password == "" {
		return nil
	}

	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", models.UserRoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := auth.HashPassword(cfg.Admin.Password)
	if err != nil {
		return err
	}
	admin := models.User{
		Email:        cfg.Admin.Email,
		PasswordHash: hash,
		FullName:     "Administrator",
		Role:         models.UserRoleAdmin,
		Tier:         models.TierFree,
	}
	return db.Create(&admin).Error
}
