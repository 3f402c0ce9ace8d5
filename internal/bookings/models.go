package bookings

import (
	"time"

	"github.com/google/uuid"

	"github.com/luxtransfer/booking/internal/pricing"
)

// Status is the booking lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// validTransitions encodes the lifecycle: forward progression plus
// cancellation from any non-terminal state. COMPLETED and CANCELLED are
// terminal.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// CanTransitionTo reports whether the lifecycle permits moving to the target
// state.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Terminal reports whether the state permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ContactInfo identifies the customer on a booking.
type ContactInfo struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
	Phone string `json:"phone" binding:"required"`
}

// Booking is a committed trip. TotalAmount is copied from the locked quote at
// creation and only changes through an applied modification.
type Booking struct {
	ID                uuid.UUID              `json:"id"`
	QuoteID           uuid.UUID              `json:"quote_id"`
	Reference         string                 `json:"reference"`
	Status            Status                 `json:"status"`
	Contact           ContactInfo            `json:"contact"`
	Request           pricing.BookingRequest `json:"request"`
	Breakdown         pricing.QuoteBreakdown `json:"breakdown"`
	TotalAmount       float64                `json:"total_amount"`
	TripProtection    bool                   `json:"trip_protection"`
	ModificationCount int                    `json:"modification_count"`
	IsModified        bool                   `json:"is_modified"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// PickupAt is the scheduled pickup time, tracked on the request so applied
// modifications move it.
func (b *Booking) PickupAt() time.Time {
	return b.Request.PickupAt
}

// Confirmation carries the customer-facing confirmation number, created in
// the same transaction as its booking.
type Confirmation struct {
	ID                 uuid.UUID `json:"id"`
	BookingID          uuid.UUID `json:"booking_id"`
	ConfirmationNumber string    `json:"confirmation_number"`
	CreatedAt          time.Time `json:"created_at"`
}

// ModificationStatus tracks a proposed change through its apply step.
type ModificationStatus string

const (
	ModificationPending   ModificationStatus = "pending"
	ModificationCompleted ModificationStatus = "completed"
)

// Modification is a proposed change to a booking. It never mutates the
// booking on creation; Apply is the only path that does.
type Modification struct {
	ID              uuid.UUID              `json:"id"`
	BookingID       uuid.UUID              `json:"booking_id"`
	Change          Change                 `json:"change"`
	PriceDifference float64                `json:"price_difference"`
	ModificationFee float64                `json:"modification_fee"`
	Status          ModificationStatus     `json:"status"`
	OriginalRequest pricing.BookingRequest `json:"original_request"`
	NewRequest      pricing.BookingRequest `json:"new_request"`
	OriginalTotal   float64                `json:"original_total"`
	NewTotal        float64                `json:"new_total"`
	CreatedAt       time.Time              `json:"created_at"`
	AppliedAt       *time.Time             `json:"applied_at,omitempty"`
}

// RequiresPayment reports whether applying the modification costs the
// customer more.
func (m *Modification) RequiresPayment() bool {
	return m.PriceDifference+m.ModificationFee > 0
}

// CancellationType selects the refund rule set.
type CancellationType string

const (
	CancellationStandard  CancellationType = "standard"
	CancellationEmergency CancellationType = "emergency"
)

// RefundStatus tracks the refund side of a cancellation.
type RefundStatus string

const (
	RefundPending       RefundStatus = "pending"
	RefundProcessing    RefundStatus = "processing"
	RefundCompleted     RefundStatus = "completed"
	RefundFailed        RefundStatus = "failed"
	RefundNotApplicable RefundStatus = "not_applicable"
)

// Cancellation records why a booking was cancelled and what refund it earned.
// One per booking.
type Cancellation struct {
	ID                    uuid.UUID        `json:"id"`
	BookingID             uuid.UUID        `json:"booking_id"`
	Reason                string           `json:"reason"`
	Type                  CancellationType `json:"type"`
	RefundAmount          float64          `json:"refund_amount"`
	RefundStatus          RefundStatus     `json:"refund_status"`
	TripProtectionApplied bool             `json:"trip_protection_applied"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}
