package settlement

import (
	"context"

	"github.com/dealhunter/backend/internal/domain/shared/valueobject"
)

// CurrencyToken is the settlement currency collaborator: it holds buyer
// balances and honors pre-authorized pull transfers.
type CurrencyToken interface {
	// BalanceOf returns the current balance of an account
	BalanceOf(ctx context.Context, account Address) (valueobject.Money, error)
	// Allowance returns how much spender may pull from owner
	Allowance(ctx context.Context, owner, spender Address) (valueobject.Money, error)
	// TransferFrom pulls amount from an account that authorized the orchestrator
	TransferFrom(ctx context.Context, from, to Address, amount valueobject.Money) error
	// Transfer moves amount out of the orchestrator's own balance
	Transfer(ctx context.Context, to Address, amount valueobject.Money) error
}

// Marketplace executes a purchase order atomically: given opaque order
// calldata and funds it either completes the purchase or fails entirely.
type Marketplace interface {
	Fulfill(ctx context.Context, calldata []byte, payment valueobject.Money) error
}

// DownPaymentRequest is the input to the financing adapter: the deal
// parameters, the buyer's funded contribution, and the signed authorization.
type DownPaymentRequest struct {
	Deal         *Deal
	Contribution valueobject.Money
	Digest       string
}

// BoundAsset is the collateralized representation of a purchased asset held
// in orchestrator custody while debt is outstanding.
type BoundAsset struct {
	Key           AssetKey
	DebtReference string
	Borrowed      valueobject.Money
}

// FinancingAdapter advances the unpaid balance of a down-payment purchase.
// Given the contribution and a valid signed authorization it borrows the
// shortfall, funds the marketplace, and returns custody of the bound asset.
// Rejections surface as ErrBadSignature, ErrNonceReplay, or
// ErrAdapterExecutionFailed.
type FinancingAdapter interface {
	// Nonce returns the buyer's current expected authorization nonce
	Nonce(ctx context.Context, buyer Address) (uint64, error)
	// ExecuteDownPayment performs the financed purchase atomically
	ExecuteDownPayment(ctx context.Context, req DownPaymentRequest) (*BoundAsset, error)
}

// LendingFacility tracks collateral and debt per asset. Partial-repayment
// accounting is the facility's concern; the orchestrator only forwards funds
// and reacts to the reported outstanding amount.
type LendingFacility interface {
	// Outstanding reports the remaining debt for a debt reference
	Outstanding(ctx context.Context, debtRef string) (valueobject.Money, error)
	// Repay forwards amount against the debt and returns the new outstanding
	Repay(ctx context.Context, debtRef string, amount valueobject.Money) (valueobject.Money, error)
	// Redeem releases the collateralized asset into orchestrator custody.
	// Fails with ErrDebtNotCleared while outstanding debt remains.
	Redeem(ctx context.Context, debtRef string) error
}

// AssetToken transfers custody of the underlying (uncollateralized) asset
type AssetToken interface {
	TransferFrom(ctx context.Context, assetContract Address, assetID string, from, to Address) error
}
