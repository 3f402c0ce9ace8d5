package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luxtransfer/booking/pkg/logger"
)

const (
	maxAttempts   = 5
	baseRetryWait = time.Minute
	claimBatch    = 50
)

// JobStore is the persistence surface the dispatcher needs.
type JobStore interface {
	ClaimDue(ctx context.Context, limit int) ([]*Job, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkRetry(ctx context.Context, id uuid.UUID, nextAttempt time.Time, reason string) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Dispatcher delivers claimed outbox jobs over their channel. Failed
// deliveries are retried with exponential backoff until the attempt cap,
// then parked as failed.
type Dispatcher struct {
	store JobStore
	sms   SMSSender
	email EmailSender

	now func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(store JobStore, sms SMSSender, email EmailSender) *Dispatcher {
	return &Dispatcher{store: store, sms: sms, email: email, now: time.Now}
}

// DispatchDue claims due jobs and attempts delivery. Returns the count of
// successful deliveries.
func (d *Dispatcher) DispatchDue(ctx context.Context) (int, error) {
	jobs, err := d.store.ClaimDue(ctx, claimBatch)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, job := range jobs {
		if err := d.deliver(ctx, job); err != nil {
			d.recordFailure(ctx, job, err)
			continue
		}
		if err := d.store.MarkSent(ctx, job.ID); err != nil {
			logger.WithContext(ctx).Error("failed to mark notification sent",
				zap.String("job_id", job.ID.String()), zap.Error(err))
			continue
		}
		sent++
	}

	if len(jobs) > 0 {
		logger.WithContext(ctx).Info("notification dispatch cycle",
			zap.Int("claimed", len(jobs)), zap.Int("sent", sent))
	}
	return sent, nil
}

func (d *Dispatcher) deliver(ctx context.Context, job *Job) error {
	switch job.Channel {
	case ChannelSMS:
		return d.sms.SendSMS(ctx, job.Payload.To, job.Payload.Body)
	case ChannelEmail:
		return d.email.SendEmail(ctx, job.Payload.To, job.Payload.Subject, job.Payload.Body, job.Payload.ICS)
	default:
		return fmt.Errorf("unsupported channel: %s", job.Channel)
	}
}

func (d *Dispatcher) recordFailure(ctx context.Context, job *Job, cause error) {
	attempt := job.Attempts + 1
	if attempt >= maxAttempts {
		if err := d.store.MarkFailed(ctx, job.ID, cause.Error()); err != nil {
			logger.WithContext(ctx).Error("failed to park notification job",
				zap.String("job_id", job.ID.String()), zap.Error(err))
			return
		}
		logger.WithContext(ctx).Error("notification delivery exhausted",
			zap.String("job_id", job.ID.String()),
			zap.String("kind", job.Kind),
			zap.String("channel", job.Channel),
			zap.Int("attempts", attempt),
			zap.Error(cause),
		)
		return
	}

	next := d.now().Add(retryDelay(job.Attempts))
	if err := d.store.MarkRetry(ctx, job.ID, next, cause.Error()); err != nil {
		logger.WithContext(ctx).Error("failed to schedule notification retry",
			zap.String("job_id", job.ID.String()), zap.Error(err))
		return
	}
	logger.WithContext(ctx).Warn("notification delivery failed, retrying",
		zap.String("job_id", job.ID.String()),
		zap.String("channel", job.Channel),
		zap.Int("attempt", attempt),
		zap.Time("next_attempt_at", next),
		zap.Error(cause),
	)
}

// retryDelay doubles per completed attempt: 1m, 2m, 4m, 8m.
func retryDelay(attempts int) time.Duration {
	return baseRetryWait << attempts
}
