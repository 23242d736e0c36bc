package handler

import (
	appsettlement "github.com/dealhunter/backend/internal/application/settlement"
	"github.com/dealhunter/backend/internal/interfaces/http/dto"
	"github.com/dealhunter/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// SettingsHandler handles settlement configuration endpoints
type SettingsHandler struct {
	BaseHandler
	orchestrator *appsettlement.DealOrchestrator
}

// NewSettingsHandler creates a new SettingsHandler
func NewSettingsHandler(orchestrator *appsettlement.DealOrchestrator) *SettingsHandler {
	return &SettingsHandler{orchestrator: orchestrator}
}

// RegisterRoutes registers settings routes. Mutations require the admin role.
func (h *SettingsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	settings := rg.Group("/settings")
	{
		settings.GET("", h.Get)
		settings.PUT("/down-payment-rate", middleware.RequireAdmin(), h.UpdateDownPaymentRate)
		settings.PUT("/lender-address", middleware.RequireAdmin(), h.UpdateLenderAddress)
	}
}

// Get godoc
// @ID           getSettings
// @Summary      Get settlement configuration
// @Tags         settings
// @Produce      json
// @Success      200 {object} APIResponse[appsettlement.Settings]
// @Router       /settings [get]
func (h *SettingsHandler) Get(c *gin.Context) {
	h.Success(c, h.orchestrator.GetSettings())
}

// UpdateDownPaymentRate godoc
// @ID           updateDownPaymentRate
// @Summary      Update the down-payment ratio
// @Description  Sets the buyer contribution ratio in basis points for future deals
// @Tags         settings
// @Accept       json
// @Produce      json
// @Success      200 {object} APIResponse[appsettlement.Settings]
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Router       /settings/down-payment-rate [put]
func (h *SettingsHandler) UpdateDownPaymentRate(c *gin.Context) {
	var req dto.UpdateDownPaymentRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := h.orchestrator.SetDownPaymentRate(c.Request.Context(), req.RatioBps); err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, h.orchestrator.GetSettings())
}

// UpdateLenderAddress godoc
// @ID           updateLenderAddress
// @Summary      Update the lender address
// @Description  Sets the lending facility settlement account for future deals
// @Tags         settings
// @Accept       json
// @Produce      json
// @Success      200 {object} APIResponse[appsettlement.Settings]
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Router       /settings/lender-address [put]
func (h *SettingsHandler) UpdateLenderAddress(c *gin.Context) {
	var req dto.UpdateLenderAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := h.orchestrator.SetLenderAddress(c.Request.Context(), req.LenderAddress); err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, h.orchestrator.GetSettings())
}
