package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luxtransfer/booking/pkg/logger"
)

// Gateway event types the processor understands.
const (
	EventChargeSucceeded = "payment_intent.succeeded"
	EventChargeFailed    = "payment_intent.payment_failed"
	EventRefundCompleted = "charge.refunded"
)

const eventDedupTTL = 24 * time.Hour

// BookingLifecycle is the booking-side surface webhook processing drives.
type BookingLifecycle interface {
	ConfirmBooking(ctx context.Context, bookingID uuid.UUID) error
	MarkRefundCompleted(ctx context.Context, bookingID uuid.UUID) error
}

// WebhookProcessor applies gateway callbacks to payments and bookings.
// Processing is idempotent: replayed events are detected twice, first in
// redis and then durably against the webhook_events table, and produce no
// double-effects.
type WebhookProcessor struct {
	store    Store
	dedup    Deduper
	bookings BookingLifecycle
}

// NewWebhookProcessor creates a webhook processor.
func NewWebhookProcessor(store Store, dedup Deduper, bookings BookingLifecycle) *WebhookProcessor {
	return &WebhookProcessor{store: store, dedup: dedup, bookings: bookings}
}

// Process applies one gateway event. Errors are returned for logging only;
// the HTTP handler acknowledges regardless, so failures here are reconciled
// manually rather than retried into a pile-up.
func (p *WebhookProcessor) Process(ctx context.Context, eventID, eventType, providerPaymentID, failureReason string) error {
	if p.dedup != nil {
		fresh, err := p.dedup.ClaimOnce(ctx, "webhook:"+eventID, eventDedupTTL)
		if err == nil && !fresh {
			logger.WithContext(ctx).Debug("webhook event replayed, skipping",
				zap.String("event_id", eventID))
			return nil
		}
	}

	if err := p.store.RecordEvent(ctx, eventID, eventType); err != nil {
		if errors.Is(err, ErrEventSeen) {
			logger.WithContext(ctx).Debug("webhook event already processed",
				zap.String("event_id", eventID))
			return nil
		}
		return err
	}

	switch eventType {
	case EventChargeSucceeded:
		return p.handleChargeSucceeded(ctx, providerPaymentID)
	case EventChargeFailed:
		return p.handleChargeFailed(ctx, providerPaymentID, failureReason)
	case EventRefundCompleted:
		return p.handleRefundCompleted(ctx, providerPaymentID)
	default:
		logger.WithContext(ctx).Debug("unhandled webhook event",
			zap.String("event_type", eventType))
		return nil
	}
}

func (p *WebhookProcessor) handleChargeSucceeded(ctx context.Context, providerPaymentID string) error {
	payment, err := p.store.GetByProviderID(ctx, providerPaymentID)
	if err != nil {
		return err
	}

	if err := p.store.UpdateStatus(ctx, payment.ID, StatusSucceeded); err != nil {
		return err
	}

	if err := p.bookings.ConfirmBooking(ctx, payment.BookingID); err != nil {
		// Already-confirmed is a replay artifact, not a failure.
		logger.WithContext(ctx).Warn("booking confirmation after charge success failed",
			zap.String("booking_id", payment.BookingID.String()),
			zap.Error(err),
		)
		return nil
	}

	logger.WithContext(ctx).Info("charge succeeded",
		zap.String("booking_id", payment.BookingID.String()),
		zap.String("provider_payment_id", providerPaymentID),
	)
	return nil
}

func (p *WebhookProcessor) handleChargeFailed(ctx context.Context, providerPaymentID, reason string) error {
	payment, err := p.store.GetByProviderID(ctx, providerPaymentID)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = "charge declined by gateway"
	}

	// The booking stays PENDING; the customer can retry payment.
	if err := p.store.MarkFailed(ctx, payment.ID, reason); err != nil {
		return err
	}

	logger.WithContext(ctx).Warn("charge failed",
		zap.String("booking_id", payment.BookingID.String()),
		zap.String("provider_payment_id", providerPaymentID),
		zap.String("reason", reason),
	)
	return nil
}

func (p *WebhookProcessor) handleRefundCompleted(ctx context.Context, providerPaymentID string) error {
	payment, err := p.store.GetByProviderID(ctx, providerPaymentID)
	if err != nil {
		return err
	}

	if err := p.store.UpdateStatus(ctx, payment.ID, StatusRefunded); err != nil {
		return err
	}

	if err := p.bookings.MarkRefundCompleted(ctx, payment.BookingID); err != nil {
		logger.WithContext(ctx).Warn("failed to record refund completion on cancellation",
			zap.String("booking_id", payment.BookingID.String()),
			zap.Error(err),
		)
		return nil
	}

	logger.WithContext(ctx).Info("refund completed",
		zap.String("booking_id", payment.BookingID.String()),
		zap.String("provider_payment_id", providerPaymentID),
	)
	return nil
}
