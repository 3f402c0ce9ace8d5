package payments

import (
	"context"

	"github.com/stripe/stripe-go/v83"

	"github.com/luxtransfer/booking/pkg/common"
	"github.com/luxtransfer/booking/pkg/resilience"
)

// StripeGateway implements Gateway on Stripe payment intents. All calls run
// behind a circuit breaker so a gateway outage fails fast instead of tying
// up request handlers.
type StripeGateway struct {
	client  *stripe.Client
	breaker *resilience.CircuitBreaker
}

// NewStripeGateway creates a Stripe-backed gateway.
func NewStripeGateway(apiKey string) *StripeGateway {
	return &StripeGateway{
		client: stripe.NewClient(apiKey),
		breaker: resilience.NewCircuitBreaker(
			resilience.DefaultSettings("stripe"),
			resilience.GracefulDegradation("stripe"),
		),
	}
}

// CreateCharge creates a payment intent. Stripe replays the original result
// for a reused idempotency key, so retries after ambiguous failures converge
// on one charge.
func (g *StripeGateway) CreateCharge(ctx context.Context, params ChargeParams) (*Charge, error) {
	createParams := &stripe.PaymentIntentCreateParams{
		Amount:       stripe.Int64(params.AmountCents),
		Currency:     stripe.String(params.Currency),
		ReceiptEmail: stripe.String(params.CustomerEmail),
		Metadata:     params.Metadata,
	}
	createParams.IdempotencyKey = stripe.String(params.IdempotencyKey)

	result, err := g.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return g.client.V1PaymentIntents.Create(ctx, createParams)
	})
	if err != nil {
		return nil, common.NewUpstreamError("payment gateway charge creation failed", err)
	}
	return chargeFromIntent(result.(*stripe.PaymentIntent)), nil
}

// RetrieveCharge fetches the current state of a payment intent.
func (g *StripeGateway) RetrieveCharge(ctx context.Context, providerID string) (*Charge, error) {
	result, err := g.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return g.client.V1PaymentIntents.Retrieve(ctx, providerID, nil)
	})
	if err != nil {
		return nil, common.NewUpstreamError("payment gateway charge lookup failed", err)
	}
	return chargeFromIntent(result.(*stripe.PaymentIntent)), nil
}

// CreateRefund refunds part or all of a payment intent.
func (g *StripeGateway) CreateRefund(ctx context.Context, providerChargeID string, amountCents int64, metadata map[string]string) (*Refund, error) {
	refundParams := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(providerChargeID),
		Amount:        stripe.Int64(amountCents),
		Metadata:      metadata,
	}

	result, err := g.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return g.client.V1Refunds.Create(ctx, refundParams)
	})
	if err != nil {
		return nil, common.NewUpstreamError("payment gateway refund failed", err)
	}
	refund := result.(*stripe.Refund)
	return &Refund{ProviderID: refund.ID, Status: string(refund.Status)}, nil
}

func chargeFromIntent(intent *stripe.PaymentIntent) *Charge {
	charge := &Charge{
		ProviderID:   intent.ID,
		AmountCents:  intent.Amount,
		ClientSecret: intent.ClientSecret,
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		charge.Status = ChargeSucceeded
	case stripe.PaymentIntentStatusCanceled:
		charge.Status = ChargeFailed
	case stripe.PaymentIntentStatusProcessing:
		charge.Status = ChargeProcessing
	default:
		charge.Status = ChargePending
	}
	return charge
}
