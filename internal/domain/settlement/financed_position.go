package settlement

import (
	"fmt"

	"github.com/dealhunter/backend/internal/domain/shared"
	"github.com/dealhunter/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// AssetKey identifies a unique asset: the collection contract plus the token
// ID within it. It is the ledger key and the serialization unit for all
// settlement work on that asset.
type AssetKey struct {
	Contract Address `json:"contract"`
	ID       string  `json:"id"`
}

// String returns the canonical "contract:id" form used for locks and logs
func (k AssetKey) String() string {
	return fmt.Sprintf("%s:%s", k.Contract, k.ID)
}

// IsValid returns true if both components are present and well-formed
func (k AssetKey) IsValid() bool {
	return k.Contract.IsValid() && k.ID != ""
}

// FinancedPosition records an asset held by the orchestrator as collateral
// against outstanding debt. A position exists iff custody is held and the
// asset has not yet been released to the buyer.
type FinancedPosition struct {
	shared.BaseAggregateRoot
	AssetContract Address         `gorm:"type:varchar(42);not null;uniqueIndex:idx_position_asset,priority:1"`
	AssetID       string          `gorm:"type:varchar(78);not null;uniqueIndex:idx_position_asset,priority:2"`
	Buyer         Address         `gorm:"type:varchar(42);not null;index"`
	DebtReference string          `gorm:"type:varchar(100);not null"`
	Principal     decimal.Decimal `gorm:"type:decimal(36,18);not null"`
}

// TableName returns the table name for GORM
func (FinancedPosition) TableName() string {
	return "financed_positions"
}

// NewFinancedPosition creates a position for a freshly settled down-payment
// deal. debtRef is the lending facility's identifier for the outstanding
// loan; principal is the amount the facility advanced.
func NewFinancedPosition(key AssetKey, buyer Address, debtRef string, principal valueobject.Money) (*FinancedPosition, error) {
	if !key.IsValid() {
		return nil, shared.NewDomainError("INVALID_ASSET_KEY", "Asset key is not valid")
	}
	if !buyer.IsValid() || buyer.IsZero() {
		return nil, shared.NewDomainError("INVALID_BUYER", "Buyer address is not a valid hex address")
	}
	if debtRef == "" {
		return nil, shared.NewDomainError("INVALID_DEBT_REFERENCE", "Debt reference cannot be empty")
	}
	if principal.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRINCIPAL", "Principal cannot be negative")
	}

	p := &FinancedPosition{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		AssetContract:     key.Contract,
		AssetID:           key.ID,
		Buyer:             buyer,
		DebtReference:     debtRef,
		Principal:         principal.Amount(),
	}
	return p, nil
}

// Key returns the asset key of the position
func (p *FinancedPosition) Key() AssetKey {
	return AssetKey{Contract: p.AssetContract, ID: p.AssetID}
}

// PrincipalMoney returns the advanced principal as Money
func (p *FinancedPosition) PrincipalMoney() valueobject.Money {
	return valueobject.NewMoneyWETH(p.Principal)
}

// MarkRepayment stamps a repayment on the position. Debt arithmetic belongs
// to the lending facility; the position only tracks that it was touched.
func (p *FinancedPosition) MarkRepayment(amount valueobject.Money) error {
	if !amount.IsPositive() {
		return shared.NewDomainError("INVALID_AMOUNT", "Repayment amount must be positive")
	}
	p.Touch()
	p.IncrementVersion()
	return nil
}
