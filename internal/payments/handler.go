package payments

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v83/webhook"
	"go.uber.org/zap"

	"github.com/luxtransfer/booking/pkg/common"
	"github.com/luxtransfer/booking/pkg/logger"
)

const maxWebhookBody = 64 * 1024

// Handler exposes the gateway callback endpoint.
type Handler struct {
	processor     *WebhookProcessor
	webhookSecret string
}

// NewHandler creates a payments handler.
func NewHandler(processor *WebhookProcessor, webhookSecret string) *Handler {
	return &Handler{processor: processor, webhookSecret: webhookSecret}
}

// RegisterRoutes registers webhook routes. The route takes no auth
// middleware; the Stripe signature is the authentication.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook verifies and applies a Stripe event.
// POST /api/v1/webhooks/stripe
//
// Responds 200 even when processing fails: Stripe retries non-2xx
// responses, and a poison event would otherwise be redelivered forever.
// Failures are logged and reconciled out of band.
func (h *Handler) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "unable to read request body")
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		logger.WithContext(c.Request.Context()).Warn("webhook signature verification failed", zap.Error(err))
		common.ErrorResponse(c, http.StatusBadRequest, "invalid signature")
		return
	}

	providerPaymentID, failureReason := extractPaymentIntent(string(event.Type), event.Data.Raw)
	if providerPaymentID == "" {
		// Event types we never subscribe to still get acknowledged.
		common.SuccessResponse(c, gin.H{"received": true})
		return
	}

	if err := h.processor.Process(c.Request.Context(), event.ID, string(event.Type), providerPaymentID, failureReason); err != nil {
		logger.WithContext(c.Request.Context()).Error("webhook processing failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
	}

	common.SuccessResponse(c, gin.H{"received": true})
}

// extractPaymentIntent pulls the payment intent id out of the event
// payload. payment_intent.* events carry the intent as the object;
// charge.* events reference it by id.
func extractPaymentIntent(eventType string, raw json.RawMessage) (id, failureReason string) {
	switch eventType {
	case EventChargeSucceeded, EventChargeFailed:
		var intent struct {
			ID               string `json:"id"`
			LastPaymentError *struct {
				Message string `json:"message"`
			} `json:"last_payment_error"`
		}
		if err := json.Unmarshal(raw, &intent); err != nil {
			return "", ""
		}
		if intent.LastPaymentError != nil {
			failureReason = intent.LastPaymentError.Message
		}
		return intent.ID, failureReason
	case EventRefundCompleted:
		var charge struct {
			PaymentIntent string `json:"payment_intent"`
		}
		if err := json.Unmarshal(raw, &charge); err != nil {
			return "", ""
		}
		return charge.PaymentIntent, ""
	default:
		return "", ""
	}
}
