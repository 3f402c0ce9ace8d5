package payments

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/luxtransfer/booking/pkg/logger"
)

// A charge still in flight after this long has most likely lost its webhook.
const staleChargeAge = 15 * time.Minute

// Reconciler resolves payments stuck in flight by asking the gateway for
// the charge's current state. It is the fallback path for webhooks lost in
// transit: without it a booking whose charge succeeded at the gateway would
// wait for a confirmation that never comes.
type Reconciler struct {
	store    Store
	gateway  Gateway
	bookings BookingLifecycle
	now      func() time.Time
}

// NewReconciler creates a payment reconciler.
func NewReconciler(store Store, gateway Gateway, bookings BookingLifecycle) *Reconciler {
	return &Reconciler{store: store, gateway: gateway, bookings: bookings, now: time.Now}
}

// ReconcileStale looks up every stale in-flight payment at the gateway and
// applies any terminal outcome. Charges the gateway still reports as in
// progress are left for the next sweep. Returns the number of payments
// resolved.
func (r *Reconciler) ReconcileStale(ctx context.Context) (int, error) {
	stale, err := r.store.ListStaleInFlight(ctx, r.now().Add(-staleChargeAge))
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, payment := range stale {
		charge, err := r.gateway.RetrieveCharge(ctx, *payment.ProviderPaymentID)
		if err != nil {
			logger.WithContext(ctx).Warn("charge lookup failed during reconciliation",
				zap.String("payment_id", payment.ID.String()),
				zap.String("provider_payment_id", *payment.ProviderPaymentID),
				zap.Error(err),
			)
			continue
		}

		switch charge.Status {
		case ChargeSucceeded:
			if err := r.store.UpdateStatus(ctx, payment.ID, StatusSucceeded); err != nil {
				logger.WithContext(ctx).Error("failed to record reconciled charge",
					zap.String("payment_id", payment.ID.String()), zap.Error(err))
				continue
			}
			// The webhook may have landed between the stale scan and now,
			// in which case the booking is already confirmed.
			if err := r.bookings.ConfirmBooking(ctx, payment.BookingID); err != nil {
				logger.WithContext(ctx).Warn("booking confirmation during reconciliation failed",
					zap.String("booking_id", payment.BookingID.String()), zap.Error(err))
			}
			resolved++
		case ChargeFailed:
			if err := r.store.MarkFailed(ctx, payment.ID, "charge did not complete at the gateway"); err != nil {
				logger.WithContext(ctx).Error("failed to record reconciled failure",
					zap.String("payment_id", payment.ID.String()), zap.Error(err))
				continue
			}
			resolved++
		}
	}

	if resolved > 0 {
		logger.WithContext(ctx).Info("stale payments reconciled", zap.Int("resolved", resolved))
	}
	return resolved, nil
}
