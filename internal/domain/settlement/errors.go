package settlement

import "github.com/dealhunter/backend/internal/domain/shared"

// Stable error codes for the settlement engine. Automated callers branch on
// these codes, so they must never change once released.
var (
	// Precondition failures
	ErrInsufficientBalance   = shared.NewDomainError("INSUFFICIENT_BALANCE", "buyer's balance is too low")
	ErrInsufficientAllowance = shared.NewDomainError("INSUFFICIENT_ALLOWANCE", "the balance allowed from buyer is too low")

	// Authorization failures
	ErrBadSignature = shared.NewDomainError("BAD_SIGNATURE", "authorization signature does not match deal parameters")
	ErrNonceReplay  = shared.NewDomainError("NONCE_REPLAY", "authorization nonce has already been consumed")

	// Collaborator failures
	ErrMarketplaceFulfillmentFailed = shared.NewDomainError("MARKETPLACE_FULFILLMENT_FAILED", "marketplace failed to fulfill the order")
	ErrAdapterExecutionFailed       = shared.NewDomainError("ADAPTER_EXECUTION_FAILED", "down-payment adapter failed to execute the purchase")
	ErrLendingFacilityFailure       = shared.NewDomainError("LENDING_FACILITY_FAILURE", "lending facility rejected the operation")

	// State conflicts
	ErrDuplicateFinancing = shared.NewDomainError("DUPLICATE_FINANCING", "a financed position already exists for this asset")
	ErrPositionNotFound   = shared.NewDomainError("POSITION_NOT_FOUND", "no financed position exists for this asset")
	ErrDebtNotCleared     = shared.NewDomainError("DEBT_NOT_CLEARED", "outstanding debt must be cleared before release")
	ErrSettlementInFlight = shared.NewDomainError("SETTLEMENT_IN_FLIGHT", "another settlement operation is in progress for this asset")

	// Access control
	ErrUnauthorized = shared.NewDomainError("UNAUTHORIZED", "caller is not allowed to perform this operation")
)
