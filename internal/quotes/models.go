package quotes

import (
	"time"

	"github.com/google/uuid"

	"github.com/luxtransfer/booking/internal/pricing"
)

// Quote is a priced offer held for a limited window. The breakdown is frozen
// at creation; locking marks the quote as consumed by a booking attempt.
type Quote struct {
	ID         uuid.UUID              `json:"id"`
	Reference  string                 `json:"reference"`
	Request    pricing.BookingRequest `json:"request"`
	Breakdown  pricing.QuoteBreakdown `json:"breakdown"`
	ValidUntil time.Time              `json:"valid_until"`
	LockedAt   *time.Time             `json:"locked_at,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Expired reports whether the quote's validity window has passed.
func (q *Quote) Expired(now time.Time) bool {
	return !now.Before(q.ValidUntil)
}

// Locked reports whether a booking attempt has already consumed the quote.
func (q *Quote) Locked() bool {
	return q.LockedAt != nil
}
