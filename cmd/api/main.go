package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/luxtransfer/booking/internal/bookings"
	"github.com/luxtransfer/booking/internal/directions"
	"github.com/luxtransfer/booking/internal/notifications"
	"github.com/luxtransfer/booking/internal/payments"
	"github.com/luxtransfer/booking/internal/pricing"
	"github.com/luxtransfer/booking/internal/quotes"
	"github.com/luxtransfer/booking/pkg/config"
	"github.com/luxtransfer/booking/pkg/database"
	"github.com/luxtransfer/booking/pkg/eventbus"
	"github.com/luxtransfer/booking/pkg/logger"
	"github.com/luxtransfer/booking/pkg/middleware"
	"github.com/luxtransfer/booking/pkg/redis"
	"github.com/luxtransfer/booking/pkg/secrets"
	"github.com/luxtransfer/booking/pkg/tracing"
)

func main() {
	cfg, err := config.Load("api")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	// Resolve provider-held credentials before anything connects.
	if cfg.Secrets.Provider != "" {
		mgr, err := secrets.NewManager(&cfg.Secrets)
		if err != nil {
			log.Fatalf("Failed to init secrets provider: %v", err)
		}
		secrets.Overlay(ctx, mgr, cfg)
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Server.Environment,
		}); err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	if cfg.OTLP.Enabled {
		shutdown, err := tracing.Init(ctx, &cfg.OTLP, cfg.Server.ServiceName)
		if err != nil {
			logger.Warn("tracing init failed", zap.Error(err))
		} else {
			defer func() { _ = shutdown(ctx) }()
		}
	}

	if err := database.RunMigrations(&cfg.Database); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := database.NewPostgresPool(&cfg.Database)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer database.Close(pool)

	redisClient, err := redis.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	defer func() { _ = redisClient.Close() }()

	var events bookings.Publisher
	if cfg.NATS.Enabled {
		bus, err := eventbus.Connect(cfg.NATS.URL)
		if err != nil {
			logger.Fatal("nats connection failed", zap.Error(err))
		}
		defer bus.Close()
		events = bus
	}

	distance, err := directions.NewGoogleProvider(cfg.Maps.APIKey)
	if err != nil {
		logger.Fatal("maps client init failed", zap.Error(err))
	}

	// Repositories.
	pricingRepo := pricing.NewRepository(pool)
	quotesRepo := quotes.NewRepository(pool)
	bookingsRepo := bookings.NewRepository(pool)
	paymentsRepo := payments.NewRepository(pool)
	notificationsRepo := notifications.NewRepository(pool)

	activeConfig, err := pricingRepo.EnsureDefault(ctx)
	if err != nil {
		logger.Fatal("pricing config load failed", zap.Error(err))
	}

	engine, err := pricing.NewEngine(activeConfig, distance, quotesRepo, cfg.Business.ExtendedTripMiles)
	if err != nil {
		logger.Fatal("pricing engine init failed", zap.Error(err))
	}

	// Services.
	pricingSvc := pricing.NewService(pricingRepo, engine)
	quotesSvc := quotes.NewService(pricingSvc, quotesRepo, redisClient)
	paymentsSvc := payments.NewService(paymentsRepo, payments.NewStripeGateway(cfg.Stripe.APIKey))
	outbox := notifications.NewOutbox(notificationsRepo)
	bookingsSvc := bookings.NewService(bookingsRepo, quotesSvc, pricingSvc, paymentsSvc, paymentsSvc, outbox, events, cfg.Business)
	webhookProcessor := payments.NewWebhookProcessor(paymentsRepo, redisClient, bookingsSvc)

	// Handlers.
	quotesHandler := quotes.NewHandler(quotesSvc)
	bookingsHandler := bookings.NewHandler(bookingsSvc)
	paymentsHandler := payments.NewHandler(webhookProcessor, cfg.Stripe.WebhookSecret)
	pricingHandler := pricing.NewAdminHandler(pricingSvc)

	router := gin.New()
	router.Use(middleware.Recovery())
	if cfg.Sentry.Enabled {
		router.Use(middleware.SentryReporter())
	}
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Metrics())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.Server.CORSOrigins, ",")
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Correlation-ID"}
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.Server.ServiceName})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		quotesHandler.RegisterRoutes(api)
		bookingsHandler.RegisterRoutes(api)
		paymentsHandler.RegisterRoutes(api)

		admin := api.Group("/admin",
			middleware.AuthMiddleware(cfg.JWT.Secret),
			middleware.RequireRole("admin"),
		)
		{
			pricingHandler.RegisterRoutes(admin)
			quotesHandler.RegisterAdminRoutes(admin)
			bookingsHandler.RegisterAdminRoutes(admin)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("api listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
