package payments

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// ChargeStatus is the gateway-side state of a charge.
type ChargeStatus string

const (
	ChargePending    ChargeStatus = "pending"
	ChargeProcessing ChargeStatus = "processing"
	ChargeSucceeded  ChargeStatus = "succeeded"
	ChargeFailed     ChargeStatus = "failed"
)

// Charge is the gateway's view of a payment attempt.
type Charge struct {
	ProviderID   string
	Status       ChargeStatus
	AmountCents  int64
	ClientSecret string
}

// Refund is the gateway's view of a refund.
type Refund struct {
	ProviderID string
	Status     string
}

// ChargeParams describes a charge to create.
type ChargeParams struct {
	AmountCents    int64
	Currency       string
	CustomerEmail  string
	IdempotencyKey string
	Metadata       map[string]string
}

// Gateway is the payment processor contract. Implementations must honor the
// idempotency key: creating twice with the same key yields the same charge.
type Gateway interface {
	CreateCharge(ctx context.Context, params ChargeParams) (*Charge, error)
	RetrieveCharge(ctx context.Context, providerID string) (*Charge, error)
	CreateRefund(ctx context.Context, providerChargeID string, amountCents int64, metadata map[string]string) (*Refund, error)
}

// IdempotencyKey derives the deterministic key for charging a booking
// amount. A retried charge for the same booking and amount converges on the
// same gateway charge instead of double-charging.
func IdempotencyKey(bookingID uuid.UUID, amountCents int64) string {
	return fmt.Sprintf("bk:%s:%d", bookingID, amountCents)
}

// ToCents converts a dollar amount to integer cents for the gateway.
func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
