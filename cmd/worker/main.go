package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/luxtransfer/booking/internal/bookings"
	"github.com/luxtransfer/booking/internal/directions"
	"github.com/luxtransfer/booking/internal/notifications"
	"github.com/luxtransfer/booking/internal/payments"
	"github.com/luxtransfer/booking/internal/pricing"
	"github.com/luxtransfer/booking/internal/quotes"
	"github.com/luxtransfer/booking/internal/scheduler"
	"github.com/luxtransfer/booking/pkg/config"
	"github.com/luxtransfer/booking/pkg/database"
	"github.com/luxtransfer/booking/pkg/eventbus"
	"github.com/luxtransfer/booking/pkg/logger"
	"github.com/luxtransfer/booking/pkg/redis"
	"github.com/luxtransfer/booking/pkg/secrets"
)

func main() {
	cfg, err := config.Load("worker")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

		// Queue-grouped so the audit trail records each event once across
		// worker instances.
		if err := bus.Subscribe(ctx, eventbus.SubjectBookingAll, "booking-audit", logBookingEvent); err != nil {
			logger.Warn("event subscription failed", zap.Error(err))
		}
	}

	distance, err := directions.NewGoogleProvider(cfg.Maps.APIKey)
	if err != nil {
		logger.Fatal("maps client init failed", zap.Error(err))
	}

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

	gateway := payments.NewStripeGateway(cfg.Stripe.APIKey)
	pricingSvc := pricing.NewService(pricingRepo, engine)
	quotesSvc := quotes.NewService(pricingSvc, quotesRepo, redisClient)
	paymentsSvc := payments.NewService(paymentsRepo, gateway)
	outbox := notifications.NewOutbox(notificationsRepo)
	bookingsSvc := bookings.NewService(bookingsRepo, quotesSvc, pricingSvc, paymentsSvc, paymentsSvc, outbox, events, cfg.Business)
	reconciler := payments.NewReconciler(paymentsRepo, gateway, bookingsSvc)

	var sms notifications.SMSSender = notifications.NewTwilioClient(&cfg.Twilio)
	var email notifications.EmailSender = notifications.NewSMTPClient(&cfg.SMTP)
	dispatcher := notifications.NewDispatcher(notificationsRepo, sms, email)

	worker := scheduler.NewWorker(scheduler.Tasks(quotesSvc, bookingsSvc, dispatcher, pricingSvc, reconciler)...)

	logger.Info("worker started")
	worker.Start(ctx)
	logger.Info("worker stopped")
}

// logBookingEvent records every booking lifecycle event as a structured
// audit entry.
func logBookingEvent(_ context.Context, event *eventbus.Event) error {
	logger.Info("booking event",
		zap.String("subject", event.Subject),
		zap.String("event_id", event.ID.String()),
		zap.Time("occurred_at", event.OccurredAt),
		zap.ByteString("data", event.Data),
	)
	return nil
}
