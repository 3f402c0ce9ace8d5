package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles database operations for notification jobs
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new notifications repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Enqueue inserts an outbox job. Reminder jobs are deduplicated by the
// unique (booking_id, kind) index for kind='reminder_24h'; a duplicate
// enqueue is a silent no-op.
func (r *Repository) Enqueue(ctx context.Context, job *Job) error {
	payloadJSON, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	query := `
		INSERT INTO notification_jobs (id, booking_id, kind, channel, payload, status, attempts, next_attempt_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, NOW(), NOW())
		ON CONFLICT DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query,
		job.ID, job.BookingID, job.Kind, job.Channel, payloadJSON, JobQueued,
	); err != nil {
		return fmt.Errorf("failed to enqueue notification job: %w", err)
	}
	return nil
}

// ClaimDue atomically claims up to limit due jobs for delivery. SKIP LOCKED
// keeps concurrent worker instances from claiming the same job, and the
// claim holds a five minute lease on next_attempt_at: a worker that dies
// between claiming and marking leaves the job in 'sending' with an expired
// lease, where the next sweep reclaims it.
func (r *Repository) ClaimDue(ctx context.Context, limit int) ([]*Job, error) {
	query := `
		UPDATE notification_jobs
		SET status = $1, next_attempt_at = NOW() + INTERVAL '5 minutes'
		WHERE id IN (
			SELECT id FROM notification_jobs
			WHERE status IN ($1, $2) AND next_attempt_at <= NOW()
			ORDER BY next_attempt_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, booking_id, kind, channel, payload, status, attempts, next_attempt_at, last_error, created_at, sent_at
	`
	rows, err := r.db.Query(ctx, query, JobSending, JobQueued, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim notification jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var (
			job         Job
			payloadJSON []byte
		)
		if err := rows.Scan(
			&job.ID, &job.BookingID, &job.Kind, &job.Channel, &payloadJSON,
			&job.Status, &job.Attempts, &job.NextAttemptAt, &job.LastError,
			&job.CreatedAt, &job.SentAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification job: %w", err)
		}
		if err := json.Unmarshal(payloadJSON, &job.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job payload: %w", err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

// MarkSent records successful delivery.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE notification_jobs
		SET status = $2, sent_at = NOW(), last_error = NULL
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id, JobSent); err != nil {
		return fmt.Errorf("failed to mark job sent: %w", err)
	}
	return nil
}

// MarkRetry requeues a failed delivery attempt for a later retry.
func (r *Repository) MarkRetry(ctx context.Context, id uuid.UUID, nextAttempt time.Time, reason string) error {
	query := `
		UPDATE notification_jobs
		SET status = $2, attempts = attempts + 1, next_attempt_at = $3, last_error = $4
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id, JobQueued, nextAttempt, reason); err != nil {
		return fmt.Errorf("failed to schedule job retry: %w", err)
	}
	return nil
}

// MarkFailed parks a job permanently after its attempts are exhausted.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE notification_jobs
		SET status = $2, attempts = attempts + 1, last_error = $3
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id, JobFailed, reason); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}
