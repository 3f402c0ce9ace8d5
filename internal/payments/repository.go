package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates no matching payment record.
var ErrNotFound = errors.New("payments: not found")

// ErrChargeInFlight indicates another charge for the booking is already
// pending or processing.
var ErrChargeInFlight = errors.New("payments: charge already in flight")

// ErrEventSeen indicates the webhook event was already processed.
var ErrEventSeen = errors.New("payments: event already processed")

const uniqueViolation = "23505"

// Repository handles database operations for payments
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new payments repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreatePending inserts a new in-flight payment. The partial unique index on
// booking_id (WHERE status IN ('pending','processing')) is the at-most-one-
// in-flight guard: the second concurrent caller gets ErrChargeInFlight from
// the database, not from an in-memory lock.
func (r *Repository) CreatePending(ctx context.Context, payment *Payment) error {
	query := `
		INSERT INTO payments (
			id, booking_id, amount_cents, currency, status, idempotency_key,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		payment.ID, payment.BookingID, payment.AmountCents, payment.Currency,
		payment.Status, payment.IdempotencyKey,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrChargeInFlight
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// GetInFlightByBookingID returns the pending or processing payment for a
// booking, if one exists.
func (r *Repository) GetInFlightByBookingID(ctx context.Context, bookingID uuid.UUID) (*Payment, error) {
	query := paymentSelect + `
		WHERE booking_id = $1 AND status IN ('pending', 'processing')
	`
	return r.queryOne(ctx, query, bookingID)
}

// GetSucceededByBookingID returns the most recent successful payment for a
// booking. Refunds are issued against it.
func (r *Repository) GetSucceededByBookingID(ctx context.Context, bookingID uuid.UUID) (*Payment, error) {
	query := paymentSelect + `
		WHERE booking_id = $1 AND status IN ('succeeded', 'refund_processing')
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.queryOne(ctx, query, bookingID)
}

// GetByProviderID returns the payment carrying a gateway payment ID.
func (r *Repository) GetByProviderID(ctx context.Context, providerID string) (*Payment, error) {
	query := paymentSelect + ` WHERE provider_payment_id = $1`
	return r.queryOne(ctx, query, providerID)
}

// AttachProvider records the gateway charge on the payment and moves it to
// processing.
func (r *Repository) AttachProvider(ctx context.Context, id uuid.UUID, providerID string, status PaymentStatus) error {
	query := `
		UPDATE payments
		SET provider_payment_id = $2, status = $3, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, providerID, status)
	if err != nil {
		return fmt.Errorf("failed to attach provider payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus moves a payment to a new status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status PaymentStatus) error {
	query := `UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed terminates an in-flight payment with the gateway's reason.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE payments
		SET status = $2, failure_reason = $3, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, StatusFailed, reason)
	if err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordEvent inserts the webhook event ID, failing with ErrEventSeen on a
// replay. The insert is the durable half of webhook deduplication.
func (r *Repository) RecordEvent(ctx context.Context, eventID, eventType string) error {
	query := `
		INSERT INTO webhook_events (id, type, processed_at)
		VALUES ($1, $2, NOW())
	`
	if _, err := r.db.Exec(ctx, query, eventID, eventType); err != nil {
		if isUniqueViolation(err) {
			return ErrEventSeen
		}
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	return nil
}

// ListStaleInFlight returns in-flight payments that have a gateway
// reference but have not moved since olderThan. These are the candidates
// for reconciliation when a webhook never arrived.
func (r *Repository) ListStaleInFlight(ctx context.Context, olderThan time.Time) ([]*Payment, error) {
	query := paymentSelect + `
		WHERE status IN ($1, $2)
		  AND provider_payment_id IS NOT NULL
		  AND updated_at < $3
		ORDER BY updated_at
	`
	rows, err := r.db.Query(ctx, query, StatusPending, StatusProcessing, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale payments: %w", err)
	}
	defer rows.Close()

	var stale []*Payment
	for rows.Next() {
		payment := &Payment{}
		if err := rows.Scan(
			&payment.ID, &payment.BookingID, &payment.AmountCents, &payment.Currency,
			&payment.Status, &payment.IdempotencyKey,
			&payment.ProviderPaymentID, &payment.FailureReason,
			&payment.CreatedAt, &payment.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stale payment: %w", err)
		}
		stale = append(stale, payment)
	}
	return stale, rows.Err()
}

const paymentSelect = `
	SELECT id, booking_id, amount_cents, currency, status, idempotency_key,
	       provider_payment_id, failure_reason, created_at, updated_at
	FROM payments
`

func (r *Repository) queryOne(ctx context.Context, query string, args ...any) (*Payment, error) {
	payment := &Payment{}
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&payment.ID, &payment.BookingID, &payment.AmountCents, &payment.Currency,
		&payment.Status, &payment.IdempotencyKey,
		&payment.ProviderPaymentID, &payment.FailureReason,
		&payment.CreatedAt, &payment.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query payment: %w", err)
	}
	return payment, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
