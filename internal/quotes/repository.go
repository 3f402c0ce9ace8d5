package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the quote does not exist.
var ErrNotFound = errors.New("quotes: not found")

// ErrLockConflict indicates the quote was already locked or had expired when
// the lock was attempted.
var ErrLockConflict = errors.New("quotes: lock conflict")

// Repository handles database operations for quotes
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new quotes repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create persists a new quote with its frozen request and breakdown.
func (r *Repository) Create(ctx context.Context, quote *Quote) error {
	requestJSON, err := json.Marshal(quote.Request)
	if err != nil {
		return fmt.Errorf("failed to marshal quote request: %w", err)
	}
	breakdownJSON, err := json.Marshal(quote.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal quote breakdown: %w", err)
	}

	query := `
		INSERT INTO quotes (id, reference, request, breakdown, valid_until, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at
	`
	err = r.db.QueryRow(ctx, query,
		quote.ID, quote.Reference, requestJSON, breakdownJSON, quote.ValidUntil,
	).Scan(&quote.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert quote: %w", err)
	}
	return nil
}

// GetByID returns a quote regardless of expiry; callers decide how to treat
// expired quotes.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Quote, error) {
	query := `
		SELECT id, reference, request, breakdown, valid_until, locked_at, created_at
		FROM quotes
		WHERE id = $1
	`
	quote, err := r.scanQuote(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	return quote, nil
}

// Lock claims the quote for a booking attempt. The compare-and-set condition
// makes concurrent claims race safely in the database: exactly one caller
// observes a rowcount of 1.
func (r *Repository) Lock(ctx context.Context, id uuid.UUID) (*Quote, error) {
	query := `
		UPDATE quotes
		SET locked_at = NOW()
		WHERE id = $1
		  AND locked_at IS NULL
		  AND valid_until > NOW()
		RETURNING id, reference, request, breakdown, valid_until, locked_at, created_at
	`
	quote, err := r.scanQuote(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish missing from conflicting for the caller.
			if _, getErr := r.GetByID(ctx, id); errors.Is(getErr, ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, ErrLockConflict
		}
		return nil, fmt.Errorf("failed to lock quote: %w", err)
	}
	return quote, nil
}

// Unlock releases a lock after a failed booking attempt so the quote can be
// retried while still valid.
func (r *Repository) Unlock(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE quotes SET locked_at = NULL WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to unlock quote: %w", err)
	}
	return nil
}

// ListRecent returns the newest still-valid quotes, most recent first.
// Expired quotes carry stale pricing and never appear here.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]*Quote, error) {
	query := `
		SELECT id, reference, request, breakdown, valid_until, locked_at, created_at
		FROM quotes
		WHERE valid_until > NOW()
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	defer rows.Close()

	result := make([]*Quote, 0, limit)
	for rows.Next() {
		quote, err := r.scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		result = append(result, quote)
	}
	return result, rows.Err()
}

// SweepExpired deletes quotes past their validity window. Quotes referenced
// by a booking are kept for audit; the booking record owns their history.
func (r *Repository) SweepExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		DELETE FROM quotes
		WHERE valid_until < $1
		  AND locked_at IS NULL
		  AND NOT EXISTS (SELECT 1 FROM bookings WHERE bookings.quote_id = quotes.id)
	`
	tag, err := r.db.Exec(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired quotes: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ReferenceExists reports whether a booking reference is already assigned to
// any quote. The pricing engine uses this for collision checks.
func (r *Repository) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM quotes WHERE reference = $1)`, reference,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check quote reference: %w", err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanQuote(row rowScanner) (*Quote, error) {
	quote := &Quote{}
	var requestJSON, breakdownJSON []byte

	err := row.Scan(
		&quote.ID, &quote.Reference, &requestJSON, &breakdownJSON,
		&quote.ValidUntil, &quote.LockedAt, &quote.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(requestJSON, &quote.Request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quote request: %w", err)
	}
	if err := json.Unmarshal(breakdownJSON, &quote.Breakdown); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quote breakdown: %w", err)
	}
	return quote, nil
}
