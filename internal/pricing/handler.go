package pricing

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/luxtransfer/booking/pkg/common"
)

// AdminHandler handles admin HTTP requests for pricing config management
type AdminHandler struct {
	service *Service
}

// NewAdminHandler creates a new pricing admin handler
func NewAdminHandler(service *Service) *AdminHandler {
	return &AdminHandler{service: service}
}

// RegisterRoutes registers pricing admin routes
func (h *AdminHandler) RegisterRoutes(rg *gin.RouterGroup) {
	p := rg.Group("/pricing")
	{
		versions := p.Group("/versions")
		{
			versions.GET("", h.ListVersions)
			versions.POST("", h.CreateVersion)
			versions.GET("/active", h.ActiveVersion)
			versions.GET("/:version", h.GetVersion)
		}
	}
}

// CreateVersion creates a new pricing config version
func (h *AdminHandler) CreateVersion(c *gin.Context) {
	var cfg Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		common.AppErrorResponse(c, common.NewBadRequestError("invalid pricing config payload", err))
		return
	}

	created, err := h.service.CreateVersion(c.Request.Context(), &cfg)
	if err != nil {
		common.AppErrorResponse(c, err)
		return
	}
	common.CreatedResponse(c, created)
}

// ActiveVersion returns the config version currently in use
func (h *AdminHandler) ActiveVersion(c *gin.Context) {
	cfg, err := h.service.ActiveVersion(c.Request.Context())
	if err != nil {
		common.AppErrorResponse(c, err)
		return
	}
	common.SuccessResponse(c, cfg)
}

// GetVersion returns a specific config version by number
func (h *AdminHandler) GetVersion(c *gin.Context) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil {
		common.AppErrorResponse(c, common.NewBadRequestError("version must be an integer", err))
		return
	}

	cfg, err := h.service.GetVersion(c.Request.Context(), version)
	if err != nil {
		common.AppErrorResponse(c, err)
		return
	}
	common.SuccessResponse(c, cfg)
}

// ListVersions returns all config versions, newest first
func (h *AdminHandler) ListVersions(c *gin.Context) {
	versions, err := h.service.ListVersions(c.Request.Context())
	if err != nil {
		common.AppErrorResponse(c, err)
		return
	}
	common.SuccessResponse(c, versions)
}
