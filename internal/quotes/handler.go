package quotes

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/luxtransfer/booking/internal/pricing"
	"github.com/luxtransfer/booking/pkg/common"
)

// Handler handles HTTP requests for quotes
type Handler struct {
	service *Service
}

// NewHandler creates a new quotes handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers quote routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	q := rg.Group("/quotes")
	{
		q.POST("", h.CreateQuote)
		q.GET("/:id", h.GetQuote)
		q.POST("/:id/lock", h.LockQuote)
	}
}

// RegisterAdminRoutes registers admin quote routes
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("/quotes", h.ListRecent)
}

// CreateQuote prices a booking request and returns a held quote
func (h *Handler) CreateQuote(c *gin.Context) {
	var req pricing.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.AppErrorResponse(c, common.NewBadRequestError("invalid quote request", err))
		return
	}

	quote, err := h.service.CreateQuote(c.Request.Context(), &req)
	if err != nil {
		common.AppErrorResponse(c, err)
		return
	}
	common.CreatedResponse(c, quote)
}

// GetQuote returns a quote by ID
func (h *Handler) GetQuote(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.AppErrorResponse(c, common.NewBadRequestError("invalid quote id", err))
		return
	}

	quote, err := h.service.GetQuote(c.Request.Context(), id)
	if err != nil {
		common.AppErrorResponse(c, err)
		return
	}
	common.SuccessResponse(c, quote)
}

// LockQuote claims a quote for a booking attempt
func (h *Handler) LockQuote(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.AppErrorResponse(c, common.NewBadRequestError("invalid quote id", err))
		return
	}

	quote, err := h.service.LockQuote(c.Request.Context(), id)
	if err != nil {
		common.AppErrorResponse(c, err)
		return
	}
	common.SuccessResponse(c, quote)
}

// ListRecent returns the newest quotes
func (h *Handler) ListRecent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	list, err := h.service.ListRecent(c.Request.Context(), limit)
	if err != nil {
		common.AppErrorResponse(c, err)
		return
	}
	common.SuccessResponse(c, list)
}
