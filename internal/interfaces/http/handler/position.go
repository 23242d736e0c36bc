package handler

import (
	appsettlement "github.com/dealhunter/backend/internal/application/settlement"
	"github.com/dealhunter/backend/internal/domain/settlement"
	"github.com/dealhunter/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// PositionHandler handles financed-position read endpoints
type PositionHandler struct {
	BaseHandler
	orchestrator *appsettlement.DealOrchestrator
}

// NewPositionHandler creates a new PositionHandler
func NewPositionHandler(orchestrator *appsettlement.DealOrchestrator) *PositionHandler {
	return &PositionHandler{orchestrator: orchestrator}
}

// RegisterRoutes registers position routes
func (h *PositionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	positions := rg.Group("/positions")
	{
		positions.GET("", h.List)
		positions.GET("/:contract/:id", h.Get)
	}
}

// Get godoc
// @ID           getPosition
// @Summary      Get a financed position
// @Description  Returns the custody record for an asset held against outstanding debt
// @Tags         positions
// @Produce      json
// @Success      200 {object} APIResponse[appsettlement.PositionDTO]
// @Failure      404 {object} ErrorResponse
// @Router       /positions/{contract}/{id} [get]
func (h *PositionHandler) Get(c *gin.Context) {
	var uri dto.PositionURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.BadRequest(c, "Invalid position identifier")
		return
	}

	position, err := h.orchestrator.GetPosition(c.Request.Context(), uri.Contract, uri.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, position)
}

// List godoc
// @ID           listPositions
// @Summary      List financed positions
// @Description  Returns financed positions with optional buyer filtering and pagination
// @Tags         positions
// @Produce      json
// @Success      200 {object} APIResponse[[]appsettlement.PositionDTO]
// @Router       /positions [get]
func (h *PositionHandler) List(c *gin.Context) {
	req := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "Invalid list parameters")
		return
	}

	filter := settlement.PositionFilter{
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if req.Buyer != "" {
		buyer, ok := settlement.ParseAddress(req.Buyer)
		if !ok {
			h.BadRequest(c, "Invalid buyer address")
			return
		}
		filter.Buyer = &buyer
	}

	result, err := h.orchestrator.ListPositions(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Positions, result.Total, result.Page, result.PageSize)
}
