package notifications

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/luxtransfer/booking/pkg/config"
	"github.com/luxtransfer/booking/pkg/resilience"
)

// SMSSender delivers a text message.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// TwilioClient sends SMS through Twilio. Calls go through a circuit breaker
// so a Twilio outage fails fast and leaves jobs queued for retry.
type TwilioClient struct {
	client  *twilio.RestClient
	from    string
	breaker *resilience.CircuitBreaker
}

// NewTwilioClient creates a Twilio SMS client.
func NewTwilioClient(cfg *config.TwilioConfig) *TwilioClient {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	breaker := resilience.NewCircuitBreaker(
		resilience.DefaultSettings("twilio"),
		resilience.GracefulDegradation("twilio"),
	)

	return &TwilioClient{client: client, from: cfg.FromNumber, breaker: breaker}
}

// SendSMS implements SMSSender.
func (t *TwilioClient) SendSMS(ctx context.Context, to, body string) error {
	_, err := t.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		params := &twilioapi.CreateMessageParams{}
		params.SetTo(to)
		params.SetFrom(t.from)
		params.SetBody(body)
		return t.client.Api.CreateMessage(params)
	})
	if err != nil {
		return fmt.Errorf("twilio send to %s failed: %w", to, err)
	}
	return nil
}
