package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luxtransfer/booking/internal/pricing"
	"github.com/luxtransfer/booking/internal/quotes"
	"github.com/luxtransfer/booking/pkg/common"
	"github.com/luxtransfer/booking/pkg/config"
	"github.com/luxtransfer/booking/pkg/eventbus"
	"github.com/luxtransfer/booking/pkg/logger"
)

// Store is the persistence surface the booking service needs.
type Store interface {
	CreateWithConfirmation(ctx context.Context, booking *Booking, confirmation *Confirmation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	GetByQuoteID(ctx context.Context, quoteID uuid.UUID) (*Booking, error)
	GetConfirmation(ctx context.Context, bookingID uuid.UUID) (*Confirmation, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error
	CreateModification(ctx context.Context, mod *Modification) error
	GetModification(ctx context.Context, bookingID, modID uuid.UUID) (*Modification, error)
	ApplyModification(ctx context.Context, booking *Booking, mod *Modification) error
	CreateCancellation(ctx context.Context, cancellation *Cancellation, from Status) error
	GetCancellation(ctx context.Context, bookingID uuid.UUID) (*Cancellation, error)
	UpdateRefundStatus(ctx context.Context, bookingID uuid.UUID, status RefundStatus) error
	HasCompletedBookingForEmail(ctx context.Context, email string) (bool, error)
	ListDueReminders(ctx context.Context, windowEnd time.Time) ([]*Booking, error)
}

// QuoteSource supplies and locks quotes for booking creation.
type QuoteSource interface {
	CreateQuote(ctx context.Context, req *pricing.BookingRequest) (*quotes.Quote, error)
	LockQuote(ctx context.Context, id uuid.UUID) (*quotes.Quote, error)
	ReleaseQuote(ctx context.Context, id uuid.UUID) error
}

// Pricer re-runs the pricing engine for modification price differences.
type Pricer interface {
	Quote(ctx context.Context, req *pricing.BookingRequest) (*pricing.QuoteBreakdown, error)
}

// ChargeInitiator starts a payment charge for a booking amount.
type ChargeInitiator interface {
	InitiateCharge(ctx context.Context, bookingID uuid.UUID, amount float64, customerEmail string) error
}

// RefundIssuer issues a refund against a booking's charge.
type RefundIssuer interface {
	IssueRefund(ctx context.Context, bookingID uuid.UUID, amount float64) error
}

// Outbox enqueues customer notifications; delivery happens asynchronously in
// the worker, never inside a booking transaction.
type Outbox interface {
	EnqueueBookingConfirmed(ctx context.Context, booking *Booking, confirmation *Confirmation) error
	EnqueueBookingModified(ctx context.Context, booking *Booking, mod *Modification) error
	EnqueueBookingCancelled(ctx context.Context, booking *Booking, cancellation *Cancellation) error
	EnqueuePickupReminder(ctx context.Context, booking *Booking) error
}

// Publisher publishes domain events for downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// CreateBookingRequest is the input for booking creation: either a locked
// quote ID or a fresh request to be priced.
type CreateBookingRequest struct {
	QuoteID        *uuid.UUID              `json:"quote_id,omitempty"`
	Request        *pricing.BookingRequest `json:"request,omitempty"`
	Contact        ContactInfo             `json:"contact" binding:"required"`
	TripProtection bool                    `json:"trip_protection"`
}

// Service drives the booking lifecycle.
type Service struct {
	store    Store
	quotes   QuoteSource
	pricer   Pricer
	payments ChargeInitiator
	refunds  RefundIssuer
	outbox   Outbox
	events   Publisher
	policy   CancellationPolicy
	business config.BusinessConfig
	now      func() time.Time
}

// NewService creates a new booking service
func NewService(store Store, quoteSource QuoteSource, pricer Pricer, payments ChargeInitiator, refunds RefundIssuer, outbox Outbox, events Publisher, business config.BusinessConfig) *Service {
	return &Service{
		store:    store,
		quotes:   quoteSource,
		pricer:   pricer,
		payments: payments,
		refunds:  refunds,
		outbox:   outbox,
		events:   events,
		policy: CancellationPolicy{
			StandardFee:       business.CancelStandardFee,
			LastMinuteFee:     business.CancelLastMinuteFee,
			TripProtectionFee: business.TripProtectionFee,
		},
		business: business,
		now:      time.Now,
	}
}

// CreateBooking creates a booking from a locked quote, or prices the request
// fresh when no quote is supplied. The locked quote's frozen total is used
// verbatim; it is never recomputed. Calling again with the same quote returns
// the existing booking.
func (s *Service) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*Booking, error) {
	if req.QuoteID == nil && req.Request == nil {
		return nil, common.NewBadRequestError("either quote_id or a booking request is required", nil)
	}

	quote, err := s.resolveQuote(ctx, req)
	if err != nil {
		return nil, err
	}

	booking := &Booking{
		ID:             uuid.New(),
		QuoteID:        quote.ID,
		Reference:      quote.Reference,
		Status:         StatusPending,
		Contact:        req.Contact,
		Request:        quote.Request,
		Breakdown:      quote.Breakdown,
		TotalAmount:    quote.Breakdown.Total,
		TripProtection: req.TripProtection,
	}
	confirmation := &Confirmation{
		ID:                 uuid.New(),
		BookingID:          booking.ID,
		ConfirmationNumber: fmt.Sprintf("LT-%s", quote.Reference),
	}

	if err := s.store.CreateWithConfirmation(ctx, booking, confirmation); err != nil {
		if errors.Is(err, ErrDuplicateQuote) {
			existing, getErr := s.store.GetByQuoteID(ctx, quote.ID)
			if getErr == nil {
				return existing, nil
			}
			return nil, common.NewConflictError("quote is already booked", err)
		}
		// The quote stays usable after a storage failure.
		if releaseErr := s.quotes.ReleaseQuote(ctx, quote.ID); releaseErr != nil {
			logger.WithContext(ctx).Warn("failed to release quote after booking failure",
				zap.String("quote_id", quote.ID.String()), zap.Error(releaseErr))
		}
		return nil, common.NewInternalError("failed to create booking", err)
	}

	logger.WithContext(ctx).Info("booking created",
		zap.String("booking_id", booking.ID.String()),
		zap.String("reference", booking.Reference),
		zap.Float64("total", booking.TotalAmount),
	)

	if err := s.payments.InitiateCharge(ctx, booking.ID, booking.TotalAmount, booking.Contact.Email); err != nil {
		// The booking stays PENDING; payment can be retried. Surface the
		// failure so the client knows payment did not start.
		logger.WithContext(ctx).Error("payment initiation failed",
			zap.String("booking_id", booking.ID.String()),
			zap.Float64("amount", booking.TotalAmount),
			zap.Error(err),
		)
		return booking, common.NewPaymentRequiredError("payment could not be initiated", err)
	}

	return booking, nil
}

func (s *Service) resolveQuote(ctx context.Context, req *CreateBookingRequest) (*quotes.Quote, error) {
	if req.QuoteID != nil {
		quote, err := s.quotes.LockQuote(ctx, *req.QuoteID)
		if err != nil {
			appErr := common.AsAppError(err)
			if appErr != nil && appErr.Code == 409 {
				// Locked already: idempotent re-create returns the booking
				// that consumed the quote.
				if existing, getErr := s.store.GetByQuoteID(ctx, *req.QuoteID); getErr == nil {
					return nil, common.NewConflictError(
						fmt.Sprintf("quote already booked under reference %s", existing.Reference), err)
				}
			}
			return nil, err
		}
		return quote, nil
	}

	// No quote supplied: price fresh, then lock immediately.
	if loyal, err := s.store.HasCompletedBookingForEmail(ctx, req.Contact.Email); err == nil && loyal {
		req.Request.ReturningCustomer = true
	}
	quote, err := s.quotes.CreateQuote(ctx, req.Request)
	if err != nil {
		return nil, err
	}
	return s.quotes.LockQuote(ctx, quote.ID)
}

// GetBooking returns a booking by ID.
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	booking, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, common.NewNotFoundError("booking not found", err)
		}
		return nil, common.NewInternalError("failed to load booking", err)
	}
	return booking, nil
}

// ConfirmBooking transitions PENDING to CONFIRMED. Called when the payment
// gateway reports a successful charge.
func (s *Service) ConfirmBooking(ctx context.Context, id uuid.UUID) error {
	if err := s.transition(ctx, id, StatusPending, StatusConfirmed); err != nil {
		return err
	}

	booking, err := s.store.GetByID(ctx, id)
	if err != nil {
		return common.NewInternalError("failed to load confirmed booking", err)
	}
	confirmation, err := s.store.GetConfirmation(ctx, id)
	if err != nil {
		return common.NewInternalError("failed to load booking confirmation", err)
	}

	if err := s.outbox.EnqueueBookingConfirmed(ctx, booking, confirmation); err != nil {
		logger.WithContext(ctx).Error("failed to enqueue confirmation notification",
			zap.String("booking_id", id.String()), zap.Error(err))
	}
	s.publish(ctx, eventbus.SubjectBookingConfirmed, eventbus.BookingConfirmedData{
		BookingID:          booking.ID,
		ConfirmationNumber: confirmation.ConfirmationNumber,
		PickupAt:           booking.PickupAt(),
		TotalAmount:        booking.TotalAmount,
	})
	return nil
}

// StartTrip transitions CONFIRMED to IN_PROGRESS.
func (s *Service) StartTrip(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, StatusConfirmed, StatusInProgress)
}

// CompleteTrip transitions IN_PROGRESS to COMPLETED.
func (s *Service) CompleteTrip(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, StatusInProgress, StatusCompleted)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, from, to Status) error {
	if !from.CanTransitionTo(to) {
		return common.NewStateError(fmt.Sprintf("cannot move a %s booking to %s", from, to))
	}
	if err := s.store.UpdateStatus(ctx, id, from, to); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return common.NewNotFoundError("booking not found", err)
		case errors.Is(err, ErrStateConflict):
			booking, getErr := s.store.GetByID(ctx, id)
			if getErr == nil {
				return common.NewStateError(fmt.Sprintf("booking is %s, expected %s", booking.Status, from))
			}
			return common.NewStateError("booking is not in the expected state")
		default:
			return common.NewInternalError("failed to update booking status", err)
		}
	}
	logger.WithContext(ctx).Info("booking status changed",
		zap.String("booking_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return nil
}

// ProposeModification computes the price impact of a change and records it
// in pending status. The booking itself is untouched until apply.
func (s *Service) ProposeModification(ctx context.Context, bookingID uuid.UUID, change *Change) (*Modification, error) {
	if err := change.Validate(); err != nil {
		return nil, common.NewBadRequestError(err.Error(), err)
	}

	booking, err := s.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.modifiable(booking); err != nil {
		return nil, err
	}

	newRequest := change.ApplyTo(booking.Request)

	mod := &Modification{
		ID:              uuid.New(),
		BookingID:       booking.ID,
		Change:          *change,
		Status:          ModificationPending,
		OriginalRequest: booking.Request,
		NewRequest:      newRequest,
		OriginalTotal:   booking.TotalAmount,
	}
	if change.IncursFee() {
		mod.ModificationFee = s.business.ModificationFee
	}

	if change.Repriced() {
		breakdown, err := s.pricer.Quote(ctx, &newRequest)
		if err != nil {
			return nil, err
		}
		mod.PriceDifference = roundCents(breakdown.Total - booking.TotalAmount)
		mod.NewTotal = roundCents(breakdown.Total + mod.ModificationFee)
	} else if change.Type == ChangeEnhancement {
		mod.PriceDifference = roundCents(change.Enhancement.Amount)
		mod.NewTotal = roundCents(booking.TotalAmount + change.Enhancement.Amount + mod.ModificationFee)
	} else {
		mod.NewTotal = roundCents(booking.TotalAmount + mod.ModificationFee)
	}

	if err := s.store.CreateModification(ctx, mod); err != nil {
		return nil, common.NewInternalError("failed to store modification", err)
	}

	logger.WithContext(ctx).Info("modification proposed",
		zap.String("booking_id", booking.ID.String()),
		zap.String("modification_id", mod.ID.String()),
		zap.String("change_type", string(change.Type)),
		zap.Float64("price_difference", mod.PriceDifference),
	)
	return mod, nil
}

// ApplyModification performs the actual mutation: the only path that changes
// a booking's total. Collects the price difference plus fee when positive.
func (s *Service) ApplyModification(ctx context.Context, bookingID, modID uuid.UUID) (*Booking, error) {
	booking, err := s.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.modifiable(booking); err != nil {
		return nil, err
	}

	mod, err := s.store.GetModification(ctx, bookingID, modID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, common.NewNotFoundError("modification not found", err)
		}
		return nil, common.NewInternalError("failed to load modification", err)
	}
	if mod.Status != ModificationPending {
		return nil, common.NewStateError("modification has already been applied")
	}

	booking.Request = mod.NewRequest
	booking.TotalAmount = mod.NewTotal
	if mod.Change.Repriced() {
		breakdown, err := s.pricer.Quote(ctx, &mod.NewRequest)
		if err != nil {
			return nil, err
		}
		booking.Breakdown = *breakdown
	}

	if err := s.store.ApplyModification(ctx, booking, mod); err != nil {
		if errors.Is(err, ErrStateConflict) {
			return nil, common.NewStateError("modification has already been applied")
		}
		return nil, common.NewInternalError("failed to apply modification", err)
	}
	booking.ModificationCount++
	booking.IsModified = true

	amountDue := mod.PriceDifference + mod.ModificationFee
	if amountDue > 0 {
		if err := s.payments.InitiateCharge(ctx, booking.ID, amountDue, booking.Contact.Email); err != nil {
			logger.WithContext(ctx).Error("failed to charge modification difference",
				zap.String("booking_id", booking.ID.String()),
				zap.Float64("amount", amountDue),
				zap.Error(err),
			)
			return booking, common.NewPaymentRequiredError("modification applied but payment could not be initiated", err)
		}
	}

	if err := s.outbox.EnqueueBookingModified(ctx, booking, mod); err != nil {
		logger.WithContext(ctx).Error("failed to enqueue modification notification",
			zap.String("booking_id", booking.ID.String()), zap.Error(err))
	}
	s.publish(ctx, eventbus.SubjectBookingModified, eventbus.BookingModifiedData{
		BookingID:       booking.ID,
		ModificationID:  mod.ID,
		PriceDifference: mod.PriceDifference,
		NewTotalAmount:  booking.TotalAmount,
	})

	return booking, nil
}

func (s *Service) modifiable(booking *Booking) error {
	if booking.Status == StatusCancelled || booking.Status == StatusCompleted {
		return common.NewStateError(fmt.Sprintf("a %s booking cannot be modified", booking.Status))
	}
	deadline := booking.PickupAt().Add(-time.Duration(s.business.ModificationDeadlineHours) * time.Hour)
	if !s.now().Before(deadline) {
		return common.NewStateError(fmt.Sprintf(
			"modifications close %d hours before pickup", s.business.ModificationDeadlineHours))
	}
	if booking.ModificationCount >= s.business.ModificationLimit {
		return common.NewStateError(fmt.Sprintf(
			"booking has reached the limit of %d modifications", s.business.ModificationLimit))
	}
	return nil
}

// CancelBooking cancels the booking and computes the refund per policy. A
// refund failure never reverses the cancellation; it is recorded for retry.
func (s *Service) CancelBooking(ctx context.Context, id uuid.UUID, reason string, cancellationType CancellationType) (*Cancellation, error) {
	booking, err := s.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status == StatusCancelled {
		return nil, common.NewStateError("booking is already cancelled")
	}
	if booking.Status == StatusCompleted {
		return nil, common.NewStateError("a completed booking cannot be cancelled")
	}

	decision := s.policy.Evaluate(
		booking.TotalAmount, cancellationType, reason,
		s.now(), booking.PickupAt(), booking.TripProtection,
	)

	cancellation := &Cancellation{
		ID:                    uuid.New(),
		BookingID:             booking.ID,
		Reason:                reason,
		Type:                  cancellationType,
		RefundAmount:          decision.RefundAmount,
		RefundStatus:          RefundNotApplicable,
		TripProtectionApplied: decision.TripProtectionApplied,
	}
	if decision.RefundAmount > 0 {
		cancellation.RefundStatus = RefundPending
	}

	if err := s.store.CreateCancellation(ctx, cancellation, booking.Status); err != nil {
		if errors.Is(err, ErrStateConflict) {
			return nil, common.NewStateError("booking state changed; cancellation not applied")
		}
		return nil, common.NewInternalError("failed to cancel booking", err)
	}

	logger.WithContext(ctx).Info("booking cancelled",
		zap.String("booking_id", booking.ID.String()),
		zap.String("reason", reason),
		zap.Float64("refund_amount", decision.RefundAmount),
	)

	if decision.RefundAmount > 0 {
		if err := s.refunds.IssueRefund(ctx, booking.ID, decision.RefundAmount); err != nil {
			// Cancellation stands. The failed refund is reconciled separately.
			logger.WithContext(ctx).Error("refund issuance failed",
				zap.String("booking_id", booking.ID.String()),
				zap.Float64("amount", decision.RefundAmount),
				zap.Error(err),
			)
			cancellation.RefundStatus = RefundFailed
			if updateErr := s.store.UpdateRefundStatus(ctx, booking.ID, RefundFailed); updateErr != nil {
				logger.WithContext(ctx).Error("failed to record refund failure",
					zap.String("booking_id", booking.ID.String()), zap.Error(updateErr))
			}
		} else {
			cancellation.RefundStatus = RefundProcessing
			if updateErr := s.store.UpdateRefundStatus(ctx, booking.ID, RefundProcessing); updateErr != nil {
				logger.WithContext(ctx).Error("failed to record refund progress",
					zap.String("booking_id", booking.ID.String()), zap.Error(updateErr))
			}
		}
	}

	if err := s.outbox.EnqueueBookingCancelled(ctx, booking, cancellation); err != nil {
		logger.WithContext(ctx).Error("failed to enqueue cancellation notification",
			zap.String("booking_id", booking.ID.String()), zap.Error(err))
	}
	s.publish(ctx, eventbus.SubjectBookingCancelled, eventbus.BookingCancelledData{
		BookingID:    booking.ID,
		Reason:       reason,
		RefundAmount: decision.RefundAmount,
	})

	return cancellation, nil
}

// MarkRefundCompleted records the gateway's refund-completed callback.
func (s *Service) MarkRefundCompleted(ctx context.Context, bookingID uuid.UUID) error {
	if err := s.store.UpdateRefundStatus(ctx, bookingID, RefundCompleted); err != nil {
		if errors.Is(err, ErrNotFound) {
			return common.NewNotFoundError("cancellation not found", err)
		}
		return common.NewInternalError("failed to record refund completion", err)
	}
	return nil
}

// EnqueueDueReminders finds confirmed bookings inside the reminder window
// and enqueues a pickup reminder for each. Idempotent: the persisted
// reminder job is the already-reminded marker.
func (s *Service) EnqueueDueReminders(ctx context.Context) (int, error) {
	windowEnd := s.now().Add(time.Duration(s.business.ReminderLeadHours) * time.Hour)
	due, err := s.store.ListDueReminders(ctx, windowEnd)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, booking := range due {
		if err := s.outbox.EnqueuePickupReminder(ctx, booking); err != nil {
			logger.WithContext(ctx).Error("failed to enqueue pickup reminder",
				zap.String("booking_id", booking.ID.String()), zap.Error(err))
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

func (s *Service) publish(ctx context.Context, subject string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, subject, payload); err != nil {
		logger.WithContext(ctx).Warn("failed to publish event",
			zap.String("subject", subject), zap.Error(err))
	}
}
