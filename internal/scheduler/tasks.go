package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/luxtransfer/booking/pkg/logger"
)

// Sweep intervals.
const (
	QuoteSweepInterval       = 5 * time.Minute
	OutboxDispatchInterval   = 30 * time.Second
	ReminderScanInterval     = 5 * time.Minute
	PricingRefreshInterval   = time.Minute
	PaymentReconcileInterval = 10 * time.Minute
)

// QuoteSweeper deletes expired, unlocked quotes.
type QuoteSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// ReminderEnqueuer queues pickup reminders for bookings entering the
// reminder window.
type ReminderEnqueuer interface {
	EnqueueDueReminders(ctx context.Context) (int, error)
}

// OutboxDispatcher delivers due notification jobs.
type OutboxDispatcher interface {
	DispatchDue(ctx context.Context) (int, error)
}

// PricingRefresher swaps in a newly effective pricing config version.
type PricingRefresher interface {
	RefreshActive(ctx context.Context) error
}

// PaymentReconciler resolves payments whose gateway webhook never arrived.
type PaymentReconciler interface {
	ReconcileStale(ctx context.Context) (int, error)
}

// Tasks assembles the standard background task set.
func Tasks(quotes QuoteSweeper, reminders ReminderEnqueuer, outbox OutboxDispatcher, pricing PricingRefresher, payments PaymentReconciler) []Task {
	return []Task{
		{
			Name:     "quote_sweep",
			Interval: QuoteSweepInterval,
			Run: func(ctx context.Context) error {
				removed, err := quotes.SweepExpired(ctx)
				if err != nil {
					return err
				}
				if removed > 0 {
					logger.Info("swept expired quotes", zap.Int64("removed", removed))
				}
				return nil
			},
		},
		{
			Name:     "outbox_dispatch",
			Interval: OutboxDispatchInterval,
			Run: func(ctx context.Context) error {
				_, err := outbox.DispatchDue(ctx)
				return err
			},
		},
		{
			Name:     "reminder_scan",
			Interval: ReminderScanInterval,
			Run: func(ctx context.Context) error {
				queued, err := reminders.EnqueueDueReminders(ctx)
				if err != nil {
					return err
				}
				if queued > 0 {
					logger.Info("queued pickup reminders", zap.Int("queued", queued))
				}
				return nil
			},
		},
		{
			Name:     "pricing_refresh",
			Interval: PricingRefreshInterval,
			Run: func(ctx context.Context) error {
				return pricing.RefreshActive(ctx)
			},
		},
		{
			Name:     "payment_reconcile",
			Interval: PaymentReconcileInterval,
			Run: func(ctx context.Context) error {
				_, err := payments.ReconcileStale(ctx)
				return err
			},
		},
	}
}
