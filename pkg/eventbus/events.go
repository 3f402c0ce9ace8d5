package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Subjects for booking lifecycle events. SubjectBookingAll matches every
// lifecycle subject for consumers that want the whole stream.
const (
	SubjectBookingConfirmed = "bookings.confirmed"
	SubjectBookingModified  = "bookings.modified"
	SubjectBookingCancelled = "bookings.cancelled"
	SubjectBookingAll       = "bookings.*"
)

// BookingConfirmedData is published when a payment succeeds and the booking
// transitions to CONFIRMED.
type BookingConfirmedData struct {
	BookingID          uuid.UUID `json:"booking_id"`
	ConfirmationNumber string    `json:"confirmation_number"`
	PickupAt           time.Time `json:"pickup_at"`
	TotalAmount        float64   `json:"total_amount"`
}

// BookingModifiedData is published when a pending modification is applied.
type BookingModifiedData struct {
	BookingID       uuid.UUID `json:"booking_id"`
	ModificationID  uuid.UUID `json:"modification_id"`
	PriceDifference float64   `json:"price_difference"`
	NewTotalAmount  float64   `json:"new_total_amount"`
}

// BookingCancelledData is published when a booking is cancelled.
type BookingCancelledData struct {
	BookingID    uuid.UUID `json:"booking_id"`
	Reason       string    `json:"reason"`
	RefundAmount float64   `json:"refund_amount"`
}
