package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dealhunter/backend/internal/domain/settlement"
	"github.com/dealhunter/backend/internal/domain/shared"
	"github.com/dealhunter/backend/internal/domain/shared/valueobject"
	"github.com/dealhunter/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrchestratorConfig carries the deployment-time settlement parameters
type OrchestratorConfig struct {
	// CustodyAddress is the orchestrator's own account at the currency and
	// asset tokens. Buyers approve this address before firing deals.
	CustodyAddress settlement.Address
	// DownPaymentRatioBps is the initial buyer contribution ratio in basis
	// points (1..10000).
	DownPaymentRatioBps int64
	// LenderAddress is the lending facility's settlement account
	LenderAddress settlement.Address
}

// DealOrchestrator coordinates deal settlement across the currency token,
// marketplace, financing adapter and lending facility, and keeps the
// financed-position ledger consistent with external custody.
type DealOrchestrator struct {
	positions   settlement.FinancedPositionRepository
	currency    settlement.CurrencyToken
	marketplace settlement.Marketplace
	adapter     settlement.FinancingAdapter
	facility    settlement.LendingFacility
	assets      settlement.AssetToken
	publisher   shared.EventPublisher
	logger      *zap.Logger

	guard *keyedMutex

	configMu            sync.RWMutex
	custodyAddress      settlement.Address
	downPaymentRatioBps int64
	lenderAddress       settlement.Address
}

// NewDealOrchestrator creates a new DealOrchestrator
func NewDealOrchestrator(
	positions settlement.FinancedPositionRepository,
	currency settlement.CurrencyToken,
	marketplace settlement.Marketplace,
	adapter settlement.FinancingAdapter,
	facility settlement.LendingFacility,
	assets settlement.AssetToken,
	publisher shared.EventPublisher,
	logger *zap.Logger,
	cfg OrchestratorConfig,
) *DealOrchestrator {
	return &DealOrchestrator{
		positions:           positions,
		currency:            currency,
		marketplace:         marketplace,
		adapter:             adapter,
		facility:            facility,
		assets:              assets,
		publisher:           publisher,
		logger:              logger,
		guard:               newKeyedMutex(),
		custodyAddress:      cfg.CustodyAddress,
		downPaymentRatioBps: cfg.DownPaymentRatioBps,
		lenderAddress:       cfg.LenderAddress,
	}
}

// FireRequest represents a request to settle a deal
type FireRequest struct {
	Adapter       string
	AssetContract string
	AssetID       string
	Buyer         string
	Price         decimal.Decimal
	Mode          settlement.FinancingMode
	Calldata      []byte
	Authorization settlement.DealAuthorization
}

// FireResult represents the outcome of a settled deal
type FireResult struct {
	AssetContract string                   `json:"asset_contract"`
	AssetID       string                   `json:"asset_id"`
	Buyer         string                   `json:"buyer"`
	Mode          settlement.FinancingMode `json:"mode"`
	Contribution  decimal.Decimal          `json:"contribution"`
	Borrowed      decimal.Decimal          `json:"borrowed"`
	PositionID    *uuid.UUID               `json:"position_id,omitempty"`
}

// Fire settles a deal: it verifies the buyer funded and authorized the
// required contribution, pulls exactly that amount, and either pays the
// marketplace in full or routes through the financing adapter for a
// down-payment purchase. Any failure after funds were pulled refunds the
// buyer, so a failed Fire has no net effect.
func (o *DealOrchestrator) Fire(ctx context.Context, req FireRequest) (*FireResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "settlement", "fire")
	defer span.End()

	deal, err := o.buildDeal(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	key := deal.Key()
	telemetry.SetAttributes(span,
		"asset.key", key.String(),
		"deal.buyer", string(deal.Buyer),
		"deal.mode", deal.Mode.String(),
		"deal.price", deal.Price.Amount().String(),
	)

	o.configMu.RLock()
	ratio := o.downPaymentRatioBps
	custody := o.custodyAddress
	o.configMu.RUnlock()

	required := deal.RequiredContribution(ratio)

	// Precondition order is part of the contract: balance first, allowance
	// second, each checked independently of the other.
	balance, err := o.currency.BalanceOf(ctx, deal.Buyer)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to query buyer balance: %w", err)
	}
	if short, err := balance.LessThan(required); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	} else if short {
		telemetry.RecordError(span, settlement.ErrInsufficientBalance)
		return nil, settlement.ErrInsufficientBalance
	}

	allowance, err := o.currency.Allowance(ctx, deal.Buyer, custody)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to query buyer allowance: %w", err)
	}
	if short, err := allowance.LessThan(required); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	} else if short {
		telemetry.RecordError(span, settlement.ErrInsufficientAllowance)
		return nil, settlement.ErrInsufficientAllowance
	}

	if !o.guard.Acquire(key.String()) {
		telemetry.RecordError(span, settlement.ErrSettlementInFlight)
		return nil, settlement.ErrSettlementInFlight
	}
	defer o.guard.Release(key.String())

	if deal.Mode == settlement.ModeDownPayment {
		existing, err := o.positions.FindByAssetKey(ctx, key)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to check existing position: %w", err)
		}
		if existing != nil {
			telemetry.RecordError(span, settlement.ErrDuplicateFinancing)
			return nil, settlement.ErrDuplicateFinancing
		}

		nonce, err := o.adapter.Nonce(ctx, deal.Buyer)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to query adapter nonce: %w", err)
		}
		if nonce != deal.Authorization.Nonce {
			telemetry.RecordError(span, settlement.ErrNonceReplay)
			return nil, settlement.ErrNonceReplay
		}
	}

	if err := o.currency.TransferFrom(ctx, deal.Buyer, custody, required); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to pull buyer contribution: %w", err)
	}

	result := &FireResult{
		AssetContract: string(deal.AssetContract),
		AssetID:       deal.AssetID,
		Buyer:         string(deal.Buyer),
		Mode:          deal.Mode,
		Contribution:  required.Amount(),
		Borrowed:      decimal.Zero,
	}

	if deal.Mode == settlement.ModeFullPayment {
		if err := o.marketplace.Fulfill(ctx, deal.MarketplaceCalldata, required); err != nil {
			o.refund(ctx, deal.Buyer, required, "marketplace fulfillment failed")
			telemetry.RecordError(span, err)
			return nil, o.asDomainError(err, settlement.ErrMarketplaceFulfillmentFailed)
		}
	} else {
		bound, err := o.adapter.ExecuteDownPayment(ctx, settlement.DownPaymentRequest{
			Deal:         deal,
			Contribution: required,
			Digest:       deal.Digest(),
		})
		if err != nil {
			o.refund(ctx, deal.Buyer, required, "adapter execution failed")
			telemetry.RecordError(span, err)
			return nil, o.asDomainError(err, settlement.ErrAdapterExecutionFailed)
		}

		position, err := settlement.NewFinancedPosition(key, deal.Buyer, bound.DebtReference, bound.Borrowed)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to build financed position: %w", err)
		}
		if err := o.positions.Insert(ctx, position); err != nil {
			// Funds were already committed to the purchase; the asset is in
			// custody but untracked. This must never happen under the key
			// guard, so surface it loudly instead of refunding.
			o.logger.Error("financed position insert failed after settlement",
				zap.String("asset_key", key.String()),
				zap.String("buyer", string(deal.Buyer)),
				zap.String("debt_reference", bound.DebtReference),
				zap.Error(err))
			telemetry.RecordError(span, err)
			return nil, err
		}
		result.Borrowed = bound.Borrowed.Amount()
		result.PositionID = &position.ID
	}

	o.publish(ctx, settlement.NewDealSettledEvent(deal, positionIDOrNil(result.PositionID)))

	o.logger.Info("deal settled",
		zap.String("asset_key", key.String()),
		zap.String("buyer", string(deal.Buyer)),
		zap.String("mode", deal.Mode.String()),
		zap.String("contribution", required.Amount().String()),
		zap.String("borrowed", result.Borrowed.String()))

	telemetry.SetOK(span)
	return result, nil
}

// RepayRequest represents a request to repay against a financed position
type RepayRequest struct {
	AssetContract string
	AssetID       string
	Payer         string
	Amount        decimal.Decimal
}

// RepayResult represents the outcome of a repayment
type RepayResult struct {
	AssetContract string          `json:"asset_contract"`
	AssetID       string          `json:"asset_id"`
	Amount        decimal.Decimal `json:"amount"`
	Outstanding   decimal.Decimal `json:"outstanding"`
	Released      bool            `json:"released"`
}

// Repay pulls funds from the payer, forwards them to the lending facility
// and, once the facility reports zero outstanding debt, redeems the
// collateral, hands the asset to the recorded buyer and retires the
// position. Any caller may fund a repayment; the asset always goes to the
// buyer recorded at settlement time.
func (o *DealOrchestrator) Repay(ctx context.Context, req RepayRequest) (*RepayResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "settlement", "repay")
	defer span.End()

	contract, ok := settlement.ParseAddress(req.AssetContract)
	if !ok {
		err := shared.NewDomainError("INVALID_ASSET_CONTRACT", "Asset contract address is not a valid hex address")
		telemetry.RecordError(span, err)
		return nil, err
	}
	payer, ok := settlement.ParseAddress(req.Payer)
	if !ok || payer.IsZero() {
		err := shared.NewDomainError("INVALID_PAYER", "Payer address is not a valid hex address")
		telemetry.RecordError(span, err)
		return nil, err
	}
	if req.AssetID == "" {
		err := shared.NewDomainError("INVALID_ASSET_ID", "Asset ID cannot be empty")
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !req.Amount.IsPositive() {
		err := shared.NewDomainError("INVALID_AMOUNT", "Repayment amount must be positive")
		telemetry.RecordError(span, err)
		return nil, err
	}

	key := settlement.AssetKey{Contract: contract, ID: req.AssetID}
	amount := valueobject.NewMoneyWETH(req.Amount)
	telemetry.SetAttributes(span,
		"asset.key", key.String(),
		"repay.payer", string(payer),
		"repay.amount", req.Amount.String(),
	)

	o.configMu.RLock()
	custody := o.custodyAddress
	o.configMu.RUnlock()

	if !o.guard.Acquire(key.String()) {
		telemetry.RecordError(span, settlement.ErrSettlementInFlight)
		return nil, settlement.ErrSettlementInFlight
	}
	defer o.guard.Release(key.String())

	position, err := o.positions.FindByAssetKey(ctx, key)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load position: %w", err)
	}
	if position == nil {
		telemetry.RecordError(span, settlement.ErrPositionNotFound)
		return nil, settlement.ErrPositionNotFound
	}

	balance, err := o.currency.BalanceOf(ctx, payer)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to query payer balance: %w", err)
	}
	if short, err := balance.LessThan(amount); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	} else if short {
		telemetry.RecordError(span, settlement.ErrInsufficientBalance)
		return nil, settlement.ErrInsufficientBalance
	}
	allowance, err := o.currency.Allowance(ctx, payer, custody)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to query payer allowance: %w", err)
	}
	if short, err := allowance.LessThan(amount); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	} else if short {
		telemetry.RecordError(span, settlement.ErrInsufficientAllowance)
		return nil, settlement.ErrInsufficientAllowance
	}

	if err := o.currency.TransferFrom(ctx, payer, custody, amount); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to pull repayment: %w", err)
	}

	outstanding, err := o.facility.Repay(ctx, position.DebtReference, amount)
	if err != nil {
		o.refund(ctx, payer, amount, "facility repay failed")
		telemetry.RecordError(span, err)
		return nil, o.asDomainError(err, settlement.ErrLendingFacilityFailure)
	}

	if err := position.MarkRepayment(amount); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := o.positions.Save(ctx, position); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to save position: %w", err)
	}

	result := &RepayResult{
		AssetContract: string(contract),
		AssetID:       req.AssetID,
		Amount:        req.Amount,
		Outstanding:   outstanding.Amount(),
	}

	o.publish(ctx, settlement.NewLoanRepaidEvent(position, payer, req.Amount, outstanding.Amount()))

	if outstanding.IsZero() {
		if err := o.release(ctx, position, custody); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		result.Released = true
		o.publish(ctx, settlement.NewAssetReleasedEvent(position))
	}

	o.logger.Info("repayment processed",
		zap.String("asset_key", key.String()),
		zap.String("payer", string(payer)),
		zap.String("amount", req.Amount.String()),
		zap.String("outstanding", outstanding.Amount().String()),
		zap.Bool("released", result.Released))

	telemetry.SetOK(span)
	return result, nil
}

// release redeems cleared collateral and retires the position. Called under
// the key guard after a repayment reported zero outstanding debt; the
// facility's ledger is re-read before redeeming.
func (o *DealOrchestrator) release(ctx context.Context, position *settlement.FinancedPosition, custody settlement.Address) error {
	outstanding, err := o.facility.Outstanding(ctx, position.DebtReference)
	if err != nil {
		return o.asDomainError(err, settlement.ErrLendingFacilityFailure)
	}
	if !outstanding.IsZero() {
		return settlement.ErrDebtNotCleared
	}
	if err := o.facility.Redeem(ctx, position.DebtReference); err != nil {
		return o.asDomainError(err, settlement.ErrLendingFacilityFailure)
	}
	if err := o.assets.TransferFrom(ctx, position.AssetContract, position.AssetID, custody, position.Buyer); err != nil {
		return fmt.Errorf("failed to transfer released asset: %w", err)
	}
	if err := o.positions.DeleteByAssetKey(ctx, position.Key()); err != nil {
		return fmt.Errorf("failed to retire position: %w", err)
	}
	return nil
}

// SetDownPaymentRate updates the buyer contribution ratio for future deals
func (o *DealOrchestrator) SetDownPaymentRate(ctx context.Context, ratioBps int64) error {
	_, span := telemetry.StartServiceSpan(ctx, "settlement", "set_down_payment_rate")
	defer span.End()

	if ratioBps < 1 || ratioBps > 10000 {
		err := shared.NewDomainError("INVALID_RATIO", "Down-payment ratio must be between 1 and 10000 basis points")
		telemetry.RecordError(span, err)
		return err
	}

	o.configMu.Lock()
	o.downPaymentRatioBps = ratioBps
	o.configMu.Unlock()

	o.logger.Info("down-payment ratio updated", zap.Int64("ratio_bps", ratioBps))
	telemetry.SetOK(span)
	return nil
}

// SetLenderAddress updates the lending facility's settlement account
func (o *DealOrchestrator) SetLenderAddress(ctx context.Context, addr string) error {
	_, span := telemetry.StartServiceSpan(ctx, "settlement", "set_lender_address")
	defer span.End()

	lender, ok := settlement.ParseAddress(addr)
	if !ok || lender.IsZero() {
		err := shared.NewDomainError("INVALID_LENDER_ADDRESS", "Lender address is not a valid hex address")
		telemetry.RecordError(span, err)
		return err
	}

	o.configMu.Lock()
	o.lenderAddress = lender
	o.configMu.Unlock()

	o.logger.Info("lender address updated", zap.String("lender", string(lender)))
	telemetry.SetOK(span)
	return nil
}

// Settings is the current settlement configuration
type Settings struct {
	CustodyAddress      string `json:"custody_address"`
	DownPaymentRatioBps int64  `json:"down_payment_ratio_bps"`
	LenderAddress       string `json:"lender_address"`
}

// GetSettings returns the current settlement configuration
func (o *DealOrchestrator) GetSettings() Settings {
	o.configMu.RLock()
	defer o.configMu.RUnlock()
	return Settings{
		CustodyAddress:      string(o.custodyAddress),
		DownPaymentRatioBps: o.downPaymentRatioBps,
		LenderAddress:       string(o.lenderAddress),
	}
}

// PositionDTO represents a financed position for read queries
type PositionDTO struct {
	ID            uuid.UUID       `json:"id"`
	AssetContract string          `json:"asset_contract"`
	AssetID       string          `json:"asset_id"`
	Buyer         string          `json:"buyer"`
	DebtReference string          `json:"debt_reference"`
	Principal     decimal.Decimal `json:"principal"`
}

// PositionListResult represents a paginated position list
type PositionListResult struct {
	Positions []PositionDTO `json:"positions"`
	Total     int64         `json:"total"`
	Page      int           `json:"page"`
	PageSize  int           `json:"page_size"`
}

func toPositionDTO(position *settlement.FinancedPosition) PositionDTO {
	return PositionDTO{
		ID:            position.ID,
		AssetContract: string(position.AssetContract),
		AssetID:       position.AssetID,
		Buyer:         string(position.Buyer),
		DebtReference: position.DebtReference,
		Principal:     position.Principal,
	}
}

// GetPosition returns the financed position for an asset, if any
func (o *DealOrchestrator) GetPosition(ctx context.Context, contract, assetID string) (*PositionDTO, error) {
	addr, ok := settlement.ParseAddress(contract)
	if !ok {
		return nil, shared.NewDomainError("INVALID_ASSET_CONTRACT", "Asset contract address is not a valid hex address")
	}
	position, err := o.positions.FindByAssetKey(ctx, settlement.AssetKey{Contract: addr, ID: assetID})
	if err != nil {
		return nil, fmt.Errorf("failed to load position: %w", err)
	}
	if position == nil {
		return nil, settlement.ErrPositionNotFound
	}
	dto := toPositionDTO(position)
	return &dto, nil
}

// ListPositions returns financed positions with optional buyer filtering
func (o *DealOrchestrator) ListPositions(ctx context.Context, filter settlement.PositionFilter) (*PositionListResult, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	positions, err := o.positions.FindAll(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	total, err := o.positions.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count positions: %w", err)
	}

	dtos := make([]PositionDTO, 0, len(positions))
	for i := range positions {
		dtos = append(dtos, toPositionDTO(&positions[i]))
	}
	return &PositionListResult{
		Positions: dtos,
		Total:     total,
		Page:      filter.Page,
		PageSize:  filter.PageSize,
	}, nil
}

func (o *DealOrchestrator) buildDeal(req FireRequest) (*settlement.Deal, error) {
	var adapter settlement.Address
	if req.Adapter != "" {
		parsed, ok := settlement.ParseAddress(req.Adapter)
		if !ok {
			return nil, shared.NewDomainError("INVALID_ADAPTER", "Financing adapter address is not a valid hex address")
		}
		adapter = parsed
	}
	contract, ok := settlement.ParseAddress(req.AssetContract)
	if !ok {
		return nil, shared.NewDomainError("INVALID_ASSET_CONTRACT", "Asset contract address is not a valid hex address")
	}
	buyer, ok := settlement.ParseAddress(req.Buyer)
	if !ok {
		return nil, shared.NewDomainError("INVALID_BUYER", "Buyer address is not a valid hex address")
	}
	return settlement.NewDeal(
		adapter, contract, buyer,
		req.AssetID,
		valueobject.NewMoneyWETH(req.Price),
		req.Mode,
		req.Calldata,
		req.Authorization,
	)
}

// refund returns pulled funds to the payer after a failed downstream step.
// A refund failure cannot unwind anything further, so it is logged at error
// level for operator intervention instead of masking the original failure.
func (o *DealOrchestrator) refund(ctx context.Context, to settlement.Address, amount valueobject.Money, reason string) {
	if err := o.currency.Transfer(ctx, to, amount); err != nil {
		o.logger.Error("refund transfer failed",
			zap.String("to", string(to)),
			zap.String("amount", amount.Amount().String()),
			zap.String("reason", reason),
			zap.Error(err))
	}
}

// asDomainError passes through typed collaborator rejections and folds
// anything else into the given fallback code.
func (o *DealOrchestrator) asDomainError(err error, fallback *shared.DomainError) error {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &shared.DomainError{Code: fallback.Code, Message: fmt.Sprintf("%s: %v", fallback.Message, err)}
}

func (o *DealOrchestrator) publish(ctx context.Context, event shared.DomainEvent) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, event); err != nil {
		o.logger.Warn("failed to publish domain event",
			zap.String("event_type", event.EventType()),
			zap.Error(err))
	}
}

func positionIDOrNil(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
