package dto

// AuthorizationRequest carries the buyer's signature components over the
// deal digest plus the expected adapter nonce
type AuthorizationRequest struct {
	V     uint8  `json:"v"`
	R     string `json:"r"`
	S     string `json:"s"`
	Nonce uint64 `json:"nonce"`
}

// FireDealRequest represents a deal settlement request
type FireDealRequest struct {
	Adapter       string               `json:"adapter" binding:"omitempty,hexaddr"`
	AssetContract string               `json:"asset_contract" binding:"required,hexaddr"`
	AssetID       string               `json:"asset_id" binding:"required"`
	Buyer         string               `json:"buyer" binding:"required,hexaddr"`
	Price         string               `json:"price" binding:"required"`
	Mode          string               `json:"mode" binding:"required,oneof=FULL_PAYMENT DOWN_PAYMENT"`
	Calldata      string               `json:"calldata" binding:"required"` // hex-encoded
	Authorization AuthorizationRequest `json:"authorization"`
}

// RepayDealRequest represents a loan repayment request
type RepayDealRequest struct {
	AssetContract string `json:"asset_contract" binding:"required,hexaddr"`
	AssetID       string `json:"asset_id" binding:"required"`
	Payer         string `json:"payer" binding:"required,hexaddr"`
	Amount        string `json:"amount" binding:"required"`
}

// UpdateDownPaymentRateRequest updates the buyer contribution ratio
type UpdateDownPaymentRateRequest struct {
	RatioBps int64 `json:"ratio_bps" binding:"required"`
}

// UpdateLenderAddressRequest updates the lending facility account
type UpdateLenderAddressRequest struct {
	LenderAddress string `json:"lender_address" binding:"required,hexaddr"`
}

// PositionURI identifies a financed position by asset key path parameters
type PositionURI struct {
	Contract string `uri:"contract" binding:"required"`
	ID       string `uri:"id" binding:"required"`
}
