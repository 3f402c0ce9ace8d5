package bookings

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/luxtransfer/booking/pkg/common"
)

// Handler handles HTTP requests for bookings
type Handler struct {
	service *Service
}

// NewHandler creates a new bookings handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers booking routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	b := rg.Group("/bookings")
	{
		b.POST("", h.CreateBooking)
		b.GET("/:id", h.GetBooking)
		b.POST("/:id/modifications", h.ProposeModification)
		b.POST("/:id/modifications/:modId/apply", h.ApplyModification)
		b.POST("/:id/cancel", h.CancelBooking)
	}
}

// RegisterAdminRoutes registers dispatcher-facing lifecycle routes
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	b := rg.Group("/bookings")
	{
		b.POST("/:id/start", h.StartTrip)
		b.POST("/:id/complete", h.CompleteTrip)
	}
}

// CreateBooking creates a booking from a locked quote or a fresh request
func (h *Handler) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.AppErrorResponse(c, common.NewBadRequestError("invalid booking request", err))
		return
	}

	booking, err := h.service.CreateBooking(c.Request.Context(), &req)
	if err != nil {
		// A payment-init failure still created the booking; the client
		// needs both the error and the reference to retry payment.
		if booking != nil {
			appErr := common.AsAppError(err)
			if appErr != nil && appErr.Code == 402 {
				c.JSON(402, gin.H{
					"success": false,
					"error":   appErr.Message,
					"data":    booking,
				})
				return
			}
		}
		common.AppErrorResponse(c, err)
		return
	}
	common.CreatedResponse(c, booking)
}

// GetBooking returns a booking by ID
func (h *Handler) GetBooking(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	booking, err := h.service.GetBooking(c.Request.Context(), id)
	if err != nil {
		common.AppErrorResponse(c, err)
		return
	}
	common.SuccessResponse(c, booking)
}

// ProposeModification computes the price impact of a change
func (h *Handler) ProposeModification(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var change Change
	if err := c.ShouldBindJSON(&change); err != nil {
		common.AppErrorResponse(c, common.NewBadRequestError("invalid modification payload", err))
		return
	}

	mod, err := h.service.ProposeModification(c.Request.Context(), id, &change)
	if err != nil {
		common.AppErrorResponse(c, err)
		return
	}
	common.SuccessResponse(c, gin.H{
		"modification":     mod,
		"price_difference": mod.PriceDifference,
		"requires_payment": mod.RequiresPayment(),
	})
}

// ApplyModification applies a pending modification to the booking
func (h *Handler) ApplyModification(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	modID, ok := parseID(c, "modId")
	if !ok {
		return
	}

	booking, err := h.service.ApplyModification(c.Request.Context(), id, modID)
	if err != nil {
		common.AppErrorResponse(c, err)
		return
	}
	common.SuccessResponse(c, booking)
}

// CancelRequest is the cancellation payload.
type CancelRequest struct {
	Reason string           `json:"reason" binding:"required"`
	Type   CancellationType `json:"type"`
}

// CancelBooking cancels a booking and computes the refund
func (h *Handler) CancelBooking(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.AppErrorResponse(c, common.NewBadRequestError("invalid cancellation payload", err))
		return
	}
	if req.Type == "" {
		req.Type = CancellationStandard
	}

	cancellation, err := h.service.CancelBooking(c.Request.Context(), id, req.Reason, req.Type)
	if err != nil {
		common.AppErrorResponse(c, err)
		return
	}
	common.SuccessResponse(c, cancellation)
}

// StartTrip marks the trip as started
func (h *Handler) StartTrip(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.StartTrip(c.Request.Context(), id); err != nil {
		common.AppErrorResponse(c, err)
		return
	}
	common.SuccessResponse(c, gin.H{"status": StatusInProgress})
}

// CompleteTrip marks the trip as completed
func (h *Handler) CompleteTrip(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.CompleteTrip(c.Request.Context(), id); err != nil {
		common.AppErrorResponse(c, err)
		return
	}
	common.SuccessResponse(c, gin.H{"status": StatusCompleted})
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		common.AppErrorResponse(c, common.NewBadRequestError("invalid "+param, err))
		return uuid.Nil, false
	}
	return id, true
}
