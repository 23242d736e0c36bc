package settlement

import (
	"github.com/dealhunter/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DealSettledEvent is raised when a deal completes successfully
type DealSettledEvent struct {
	shared.BaseDomainEvent
	AssetContract Address         `json:"asset_contract"`
	AssetID       string          `json:"asset_id"`
	Buyer         Address         `json:"buyer"`
	Price         decimal.Decimal `json:"price"`
	Mode          FinancingMode   `json:"mode"`
}

// EventType returns the event type name
func (e *DealSettledEvent) EventType() string {
	return "DealSettled"
}

// NewDealSettledEvent creates a new DealSettledEvent
func NewDealSettledEvent(deal *Deal, positionID uuid.UUID) *DealSettledEvent {
	return &DealSettledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("DealSettled", "FinancedPosition", positionID),
		AssetContract:   deal.AssetContract,
		AssetID:         deal.AssetID,
		Buyer:           deal.Buyer,
		Price:           deal.Price.Amount(),
		Mode:            deal.Mode,
	}
}

// LoanRepaidEvent is raised when a repayment is forwarded to the facility
type LoanRepaidEvent struct {
	shared.BaseDomainEvent
	AssetContract Address         `json:"asset_contract"`
	AssetID       string          `json:"asset_id"`
	Payer         Address         `json:"payer"`
	Amount        decimal.Decimal `json:"amount"`
	Outstanding   decimal.Decimal `json:"outstanding"`
}

// EventType returns the event type name
func (e *LoanRepaidEvent) EventType() string {
	return "LoanRepaid"
}

// NewLoanRepaidEvent creates a new LoanRepaidEvent
func NewLoanRepaidEvent(p *FinancedPosition, payer Address, amount, outstanding decimal.Decimal) *LoanRepaidEvent {
	return &LoanRepaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("LoanRepaid", "FinancedPosition", p.ID),
		AssetContract:   p.AssetContract,
		AssetID:         p.AssetID,
		Payer:           payer,
		Amount:          amount,
		Outstanding:     outstanding,
	}
}

// AssetReleasedEvent is raised when debt is fully cleared and the underlying
// asset is transferred to the recorded buyer
type AssetReleasedEvent struct {
	shared.BaseDomainEvent
	AssetContract Address `json:"asset_contract"`
	AssetID       string  `json:"asset_id"`
	Buyer         Address `json:"buyer"`
}

// EventType returns the event type name
func (e *AssetReleasedEvent) EventType() string {
	return "AssetReleased"
}

// NewAssetReleasedEvent creates a new AssetReleasedEvent
func NewAssetReleasedEvent(p *FinancedPosition) *AssetReleasedEvent {
	return &AssetReleasedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("AssetReleased", "FinancedPosition", p.ID),
		AssetContract:   p.AssetContract,
		AssetID:         p.AssetID,
		Buyer:           p.Buyer,
	}
}
