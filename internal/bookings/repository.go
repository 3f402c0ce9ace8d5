package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the booking or modification does not exist.
var ErrNotFound = errors.New("bookings: not found")

// ErrDuplicateQuote indicates a booking already exists for the quote.
var ErrDuplicateQuote = errors.New("bookings: quote already booked")

// ErrStateConflict indicates the booking was not in the expected state when
// a transition was attempted.
var ErrStateConflict = errors.New("bookings: state conflict")

const uniqueViolation = "23505"

// Repository handles database operations for bookings
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new bookings repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateWithConfirmation inserts the booking and its confirmation in one
// transaction. A failure on either leaves no trace of the other. The unique
// index on quote_id makes double-booking a locked quote impossible even
// under concurrent calls.
func (r *Repository) CreateWithConfirmation(ctx context.Context, booking *Booking, confirmation *Confirmation) error {
	requestJSON, err := json.Marshal(booking.Request)
	if err != nil {
		return fmt.Errorf("failed to marshal booking request: %w", err)
	}
	breakdownJSON, err := json.Marshal(booking.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal booking breakdown: %w", err)
	}
	contactJSON, err := json.Marshal(booking.Contact)
	if err != nil {
		return fmt.Errorf("failed to marshal booking contact: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	bookingQuery := `
		INSERT INTO bookings (
			id, quote_id, reference, status, contact, request, breakdown,
			total_amount, trip_protection, pickup_at, modification_count,
			is_modified, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, false, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err = tx.QueryRow(ctx, bookingQuery,
		booking.ID, booking.QuoteID, booking.Reference, booking.Status,
		contactJSON, requestJSON, breakdownJSON,
		booking.TotalAmount, booking.TripProtection, booking.Request.PickupAt,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateQuote
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	confirmationQuery := `
		INSERT INTO booking_confirmations (id, booking_id, confirmation_number, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING created_at
	`
	err = tx.QueryRow(ctx, confirmationQuery,
		confirmation.ID, confirmation.BookingID, confirmation.ConfirmationNumber,
	).Scan(&confirmation.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert booking confirmation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit booking creation: %w", err)
	}
	return nil
}

// GetByID returns a booking.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	query := bookingSelect + ` WHERE id = $1`
	booking, err := r.scanBooking(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// GetByQuoteID returns the booking created from a quote, if any.
func (r *Repository) GetByQuoteID(ctx context.Context, quoteID uuid.UUID) (*Booking, error) {
	query := bookingSelect + ` WHERE quote_id = $1`
	booking, err := r.scanBooking(r.db.QueryRow(ctx, query, quoteID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking by quote: %w", err)
	}
	return booking, nil
}

// GetConfirmation returns the confirmation record for a booking.
func (r *Repository) GetConfirmation(ctx context.Context, bookingID uuid.UUID) (*Confirmation, error) {
	query := `
		SELECT id, booking_id, confirmation_number, created_at
		FROM booking_confirmations
		WHERE booking_id = $1
	`
	confirmation := &Confirmation{}
	err := r.db.QueryRow(ctx, query, bookingID).Scan(
		&confirmation.ID, &confirmation.BookingID,
		&confirmation.ConfirmationNumber, &confirmation.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking confirmation: %w", err)
	}
	return confirmation, nil
}

// UpdateStatus transitions the booking from an expected state. The WHERE
// clause is the concurrency guard: a stale caller affects zero rows and gets
// ErrStateConflict instead of clobbering a concurrent transition.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	query := `
		UPDATE bookings
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	tag, err := r.db.Exec(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrStateConflict
	}
	return nil
}

// CreateModification persists a proposed modification without touching the
// booking.
func (r *Repository) CreateModification(ctx context.Context, mod *Modification) error {
	changeJSON, err := json.Marshal(mod.Change)
	if err != nil {
		return fmt.Errorf("failed to marshal modification change: %w", err)
	}
	originalJSON, err := json.Marshal(mod.OriginalRequest)
	if err != nil {
		return fmt.Errorf("failed to marshal original request: %w", err)
	}
	newJSON, err := json.Marshal(mod.NewRequest)
	if err != nil {
		return fmt.Errorf("failed to marshal modified request: %w", err)
	}

	query := `
		INSERT INTO booking_modifications (
			id, booking_id, change, price_difference, modification_fee,
			status, original_request, new_request, original_total, new_total,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING created_at
	`
	err = r.db.QueryRow(ctx, query,
		mod.ID, mod.BookingID, changeJSON, mod.PriceDifference, mod.ModificationFee,
		mod.Status, originalJSON, newJSON, mod.OriginalTotal, mod.NewTotal,
	).Scan(&mod.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert booking modification: %w", err)
	}
	return nil
}

// GetModification returns a modification belonging to a booking.
func (r *Repository) GetModification(ctx context.Context, bookingID, modID uuid.UUID) (*Modification, error) {
	query := `
		SELECT id, booking_id, change, price_difference, modification_fee,
		       status, original_request, new_request, original_total, new_total,
		       created_at, applied_at
		FROM booking_modifications
		WHERE id = $1 AND booking_id = $2
	`
	mod, err := r.scanModification(r.db.QueryRow(ctx, query, modID, bookingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking modification: %w", err)
	}
	return mod, nil
}

// ApplyModification mutates the booking and completes the modification in
// one transaction. The status guard on the modification row makes a double
// apply affect zero rows.
func (r *Repository) ApplyModification(ctx context.Context, booking *Booking, mod *Modification) error {
	requestJSON, err := json.Marshal(booking.Request)
	if err != nil {
		return fmt.Errorf("failed to marshal booking request: %w", err)
	}
	breakdownJSON, err := json.Marshal(booking.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal booking breakdown: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	modQuery := `
		UPDATE booking_modifications
		SET status = $2, applied_at = NOW()
		WHERE id = $1 AND status = $3
	`
	tag, err := tx.Exec(ctx, modQuery, mod.ID, ModificationCompleted, ModificationPending)
	if err != nil {
		return fmt.Errorf("failed to complete modification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStateConflict
	}

	bookingQuery := `
		UPDATE bookings
		SET request = $2, breakdown = $3, total_amount = $4, pickup_at = $5,
		    modification_count = modification_count + 1, is_modified = true,
		    updated_at = NOW()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, bookingQuery,
		booking.ID, requestJSON, breakdownJSON, booking.TotalAmount, booking.Request.PickupAt,
	); err != nil {
		return fmt.Errorf("failed to apply modification to booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit modification: %w", err)
	}
	return nil
}

// CreateCancellation records the cancellation and transitions the booking to
// CANCELLED in one transaction, guarded by the expected current status.
func (r *Repository) CreateCancellation(ctx context.Context, cancellation *Cancellation, from Status) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	statusQuery := `
		UPDATE bookings
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	tag, err := tx.Exec(ctx, statusQuery, cancellation.BookingID, from, StatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStateConflict
	}

	query := `
		INSERT INTO cancellations (
			id, booking_id, reason, type, refund_amount, refund_status,
			trip_protection_applied, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err = tx.QueryRow(ctx, query,
		cancellation.ID, cancellation.BookingID, cancellation.Reason, cancellation.Type,
		cancellation.RefundAmount, cancellation.RefundStatus, cancellation.TripProtectionApplied,
	).Scan(&cancellation.CreatedAt, &cancellation.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert cancellation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit cancellation: %w", err)
	}
	return nil
}

// GetCancellation returns the cancellation record for a booking.
func (r *Repository) GetCancellation(ctx context.Context, bookingID uuid.UUID) (*Cancellation, error) {
	query := `
		SELECT id, booking_id, reason, type, refund_amount, refund_status,
		       trip_protection_applied, created_at, updated_at
		FROM cancellations
		WHERE booking_id = $1
	`
	cancellation := &Cancellation{}
	err := r.db.QueryRow(ctx, query, bookingID).Scan(
		&cancellation.ID, &cancellation.BookingID, &cancellation.Reason,
		&cancellation.Type, &cancellation.RefundAmount, &cancellation.RefundStatus,
		&cancellation.TripProtectionApplied, &cancellation.CreatedAt, &cancellation.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cancellation: %w", err)
	}
	return cancellation, nil
}

// UpdateRefundStatus advances the refund side of a cancellation.
func (r *Repository) UpdateRefundStatus(ctx context.Context, bookingID uuid.UUID, status RefundStatus) error {
	query := `
		UPDATE cancellations
		SET refund_status = $2, updated_at = NOW()
		WHERE booking_id = $1
	`
	tag, err := r.db.Exec(ctx, query, bookingID, status)
	if err != nil {
		return fmt.Errorf("failed to update refund status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// HasCompletedBookingForEmail reports whether the customer has at least one
// completed trip, which qualifies them for the loyalty discount.
func (r *Repository) HasCompletedBookingForEmail(ctx context.Context, email string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE contact->>'email' = $1 AND status = $2
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, email, StatusCompleted).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check completed bookings: %w", err)
	}
	return exists, nil
}

// ListDueReminders returns confirmed bookings whose pickup falls inside the
// reminder window and that have no reminder notification recorded yet. The
// persisted notification row is the idempotency guard, so re-running the
// sweep never re-reminds.
func (r *Repository) ListDueReminders(ctx context.Context, windowEnd time.Time) ([]*Booking, error) {
	query := bookingSelect + `
		WHERE status = $1
		  AND pickup_at > NOW()
		  AND pickup_at <= $2
		  AND NOT EXISTS (
			SELECT 1 FROM notification_jobs
			WHERE notification_jobs.booking_id = bookings.id
			  AND notification_jobs.kind = 'reminder_24h'
		  )
	`
	rows, err := r.db.Query(ctx, query, StatusConfirmed, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to list due reminders: %w", err)
	}
	defer rows.Close()

	result := make([]*Booking, 0)
	for rows.Next() {
		booking, err := r.scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		result = append(result, booking)
	}
	return result, rows.Err()
}

const bookingSelect = `
	SELECT id, quote_id, reference, status, contact, request, breakdown,
	       total_amount, trip_protection, modification_count, is_modified,
	       created_at, updated_at
	FROM bookings
`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanBooking(row rowScanner) (*Booking, error) {
	booking := &Booking{}
	var contactJSON, requestJSON, breakdownJSON []byte

	err := row.Scan(
		&booking.ID, &booking.QuoteID, &booking.Reference, &booking.Status,
		&contactJSON, &requestJSON, &breakdownJSON,
		&booking.TotalAmount, &booking.TripProtection,
		&booking.ModificationCount, &booking.IsModified,
		&booking.CreatedAt, &booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(contactJSON, &booking.Contact); err != nil {
		return nil, fmt.Errorf("failed to unmarshal booking contact: %w", err)
	}
	if err := json.Unmarshal(requestJSON, &booking.Request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal booking request: %w", err)
	}
	if err := json.Unmarshal(breakdownJSON, &booking.Breakdown); err != nil {
		return nil, fmt.Errorf("failed to unmarshal booking breakdown: %w", err)
	}
	return booking, nil
}

func (r *Repository) scanModification(row rowScanner) (*Modification, error) {
	mod := &Modification{}
	var changeJSON, originalJSON, newJSON []byte

	err := row.Scan(
		&mod.ID, &mod.BookingID, &changeJSON, &mod.PriceDifference, &mod.ModificationFee,
		&mod.Status, &originalJSON, &newJSON, &mod.OriginalTotal, &mod.NewTotal,
		&mod.CreatedAt, &mod.AppliedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(changeJSON, &mod.Change); err != nil {
		return nil, fmt.Errorf("failed to unmarshal modification change: %w", err)
	}
	if err := json.Unmarshal(originalJSON, &mod.OriginalRequest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal original request: %w", err)
	}
	if err := json.Unmarshal(newJSON, &mod.NewRequest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal modified request: %w", err)
	}
	return mod, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
