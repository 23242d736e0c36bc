package handler

import (
	"encoding/hex"
	"strings"

	appsettlement "github.com/dealhunter/backend/internal/application/settlement"
	"github.com/dealhunter/backend/internal/domain/settlement"
	"github.com/dealhunter/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// DealHandler handles deal settlement API endpoints
type DealHandler struct {
	BaseHandler
	orchestrator *appsettlement.DealOrchestrator
}

// NewDealHandler creates a new DealHandler
func NewDealHandler(orchestrator *appsettlement.DealOrchestrator) *DealHandler {
	return &DealHandler{orchestrator: orchestrator}
}

// RegisterRoutes registers deal routes
func (h *DealHandler) RegisterRoutes(rg *gin.RouterGroup) {
	deals := rg.Group("/deals")
	{
		deals.POST("/fire", h.Fire)
		deals.POST("/repay", h.Repay)
	}
}

// Fire godoc
// @ID           fireDeal
// @Summary      Settle a deal
// @Description  Executes a purchase atomically, either fully paid or financed via down payment
// @Tags         deals
// @Accept       json
// @Produce      json
// @Success      200 {object} APIResponse[appsettlement.FireResult]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /deals/fire [post]
func (h *DealHandler) Fire(c *gin.Context) {
	var req dto.FireDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		h.BadRequest(c, "Invalid price: must be a decimal string")
		return
	}

	calldata, err := decodeHex(req.Calldata)
	if err != nil {
		h.BadRequest(c, "Invalid calldata: must be hex-encoded")
		return
	}

	result, err := h.orchestrator.Fire(c.Request.Context(), appsettlement.FireRequest{
		Adapter:       req.Adapter,
		AssetContract: req.AssetContract,
		AssetID:       req.AssetID,
		Buyer:         req.Buyer,
		Price:         price,
		Mode:          settlement.FinancingMode(req.Mode),
		Calldata:      calldata,
		Authorization: settlement.DealAuthorization{
			V:     req.Authorization.V,
			R:     req.Authorization.R,
			S:     req.Authorization.S,
			Nonce: req.Authorization.Nonce,
		},
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// Repay godoc
// @ID           repayDeal
// @Summary      Repay financed debt
// @Description  Forwards a repayment to the lending facility and releases the asset once debt is cleared
// @Tags         deals
// @Accept       json
// @Produce      json
// @Success      200 {object} APIResponse[appsettlement.RepayResult]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /deals/repay [post]
func (h *DealHandler) Repay(c *gin.Context) {
	var req dto.RepayDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.BadRequest(c, "Invalid amount: must be a decimal string")
		return
	}

	result, err := h.orchestrator.Repay(c.Request.Context(), appsettlement.RepayRequest{
		AssetContract: req.AssetContract,
		AssetID:       req.AssetID,
		Payer:         req.Payer,
		Amount:        amount,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// decodeHex decodes a hex string with or without the 0x prefix
func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}
