package payments

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus tracks a payment record through its life. "pending" and
// "processing" are the in-flight states guarded by the partial unique index
// on booking_id.
type PaymentStatus string

const (
	StatusPending          PaymentStatus = "pending"
	StatusProcessing       PaymentStatus = "processing"
	StatusSucceeded        PaymentStatus = "succeeded"
	StatusFailed           PaymentStatus = "failed"
	StatusRefundProcessing PaymentStatus = "refund_processing"
	StatusRefunded         PaymentStatus = "refunded"
)

// InFlight reports whether the payment is still being attempted.
func (s PaymentStatus) InFlight() bool {
	return s == StatusPending || s == StatusProcessing
}

// Payment records one charge attempt against a booking.
type Payment struct {
	ID                uuid.UUID     `json:"id"`
	BookingID         uuid.UUID     `json:"booking_id"`
	AmountCents       int64         `json:"amount_cents"`
	Currency          string        `json:"currency"`
	Status            PaymentStatus `json:"status"`
	IdempotencyKey    string        `json:"idempotency_key"`
	ProviderPaymentID *string       `json:"provider_payment_id,omitempty"`
	FailureReason     *string       `json:"failure_reason,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// WebhookEvent records a processed gateway event for replay deduplication.
type WebhookEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	ProcessedAt time.Time `json:"processed_at"`
}
