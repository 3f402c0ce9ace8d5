package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luxtransfer/booking/pkg/common"
	"github.com/luxtransfer/booking/pkg/logger"
)

const defaultCurrency = "usd"

// Store is the persistence surface the payment service needs.
type Store interface {
	CreatePending(ctx context.Context, payment *Payment) error
	GetInFlightByBookingID(ctx context.Context, bookingID uuid.UUID) (*Payment, error)
	GetSucceededByBookingID(ctx context.Context, bookingID uuid.UUID) (*Payment, error)
	GetByProviderID(ctx context.Context, providerID string) (*Payment, error)
	AttachProvider(ctx context.Context, id uuid.UUID, providerID string, status PaymentStatus) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status PaymentStatus) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	RecordEvent(ctx context.Context, eventID, eventType string) error
	ListStaleInFlight(ctx context.Context, olderThan time.Time) ([]*Payment, error)
}

// Deduper provides fast webhook replay detection ahead of the durable
// database check.
type Deduper interface {
	ClaimOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Service charges bookings and issues refunds against the gateway.
type Service struct {
	store   Store
	gateway Gateway
}

// NewService creates a new payment service
func NewService(store Store, gateway Gateway) *Service {
	return &Service{store: store, gateway: gateway}
}

// InitiateCharge starts a charge for a booking amount. At most one charge
// per booking is ever in flight: a concurrent second caller reuses the
// first's pending record instead of creating a second gateway charge. The
// idempotency key makes retries after ambiguous gateway failures converge
// on the same charge.
func (s *Service) InitiateCharge(ctx context.Context, bookingID uuid.UUID, amount float64, customerEmail string) error {
	amountCents := ToCents(amount)
	if amountCents <= 0 {
		return common.NewBadRequestError("charge amount must be positive", nil)
	}

	payment := &Payment{
		ID:             uuid.New(),
		BookingID:      bookingID,
		AmountCents:    amountCents,
		Currency:       defaultCurrency,
		Status:         StatusPending,
		IdempotencyKey: IdempotencyKey(bookingID, amountCents),
	}

	if err := s.store.CreatePending(ctx, payment); err != nil {
		if errors.Is(err, ErrChargeInFlight) {
			existing, getErr := s.store.GetInFlightByBookingID(ctx, bookingID)
			if getErr == nil {
				logger.WithContext(ctx).Info("reusing in-flight payment",
					zap.String("booking_id", bookingID.String()),
					zap.String("payment_id", existing.ID.String()),
				)
				return nil
			}
			return nil
		}
		return common.NewInternalError("failed to record payment", err)
	}

	charge, err := s.gateway.CreateCharge(ctx, ChargeParams{
		AmountCents:    amountCents,
		Currency:       defaultCurrency,
		CustomerEmail:  customerEmail,
		IdempotencyKey: payment.IdempotencyKey,
		Metadata: map[string]string{
			"booking_id": bookingID.String(),
			"payment_id": payment.ID.String(),
		},
	})
	if err != nil {
		// Ambiguous failures (the gateway may have accepted the charge
		// before the response was lost) are resolved by retrying with the
		// same idempotency key: the gateway replays the original outcome.
		charge, err = s.gateway.CreateCharge(ctx, ChargeParams{
			AmountCents:    amountCents,
			Currency:       defaultCurrency,
			CustomerEmail:  customerEmail,
			IdempotencyKey: payment.IdempotencyKey,
			Metadata: map[string]string{
				"booking_id": bookingID.String(),
				"payment_id": payment.ID.String(),
			},
		})
	}
	if err != nil {
		logger.WithContext(ctx).Error("charge creation failed",
			zap.String("booking_id", bookingID.String()),
			zap.Int64("amount_cents", amountCents),
			zap.String("idempotency_key", payment.IdempotencyKey),
			zap.Error(err),
		)
		if markErr := s.store.MarkFailed(ctx, payment.ID, err.Error()); markErr != nil {
			logger.WithContext(ctx).Error("failed to record charge failure",
				zap.String("payment_id", payment.ID.String()), zap.Error(markErr))
		}
		return common.NewUpstreamError("payment gateway rejected the charge", err)
	}

	status := StatusProcessing
	if charge.Status == ChargeSucceeded {
		status = StatusSucceeded
	}
	if err := s.store.AttachProvider(ctx, payment.ID, charge.ProviderID, status); err != nil {
		return common.NewInternalError("failed to record gateway charge", err)
	}

	logger.WithContext(ctx).Info("charge initiated",
		zap.String("booking_id", bookingID.String()),
		zap.String("provider_payment_id", charge.ProviderID),
		zap.Int64("amount_cents", amountCents),
	)
	return nil
}

// IssueRefund refunds an amount against the booking's successful charge.
func (s *Service) IssueRefund(ctx context.Context, bookingID uuid.UUID, amount float64) error {
	payment, err := s.store.GetSucceededByBookingID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return common.NewNotFoundError("no successful payment to refund", err)
		}
		return common.NewInternalError("failed to find payment for refund", err)
	}
	if payment.ProviderPaymentID == nil {
		return common.NewInternalError("payment has no gateway reference", nil)
	}

	refund, err := s.gateway.CreateRefund(ctx, *payment.ProviderPaymentID, ToCents(amount), map[string]string{
		"booking_id": bookingID.String(),
		"payment_id": payment.ID.String(),
	})
	if err != nil {
		logger.WithContext(ctx).Error("refund creation failed",
			zap.String("booking_id", bookingID.String()),
			zap.String("provider_payment_id", *payment.ProviderPaymentID),
			zap.Float64("amount", amount),
			zap.Error(err),
		)
		return err
	}

	if err := s.store.UpdateStatus(ctx, payment.ID, StatusRefundProcessing); err != nil {
		return common.NewInternalError("failed to record refund progress", err)
	}

	logger.WithContext(ctx).Info("refund issued",
		zap.String("booking_id", bookingID.String()),
		zap.String("provider_refund_id", refund.ProviderID),
		zap.Float64("amount", amount),
	)
	return nil
}
