package settlement

import (
	"context"
	"errors"
	"testing"

	"github.com/dealhunter/backend/internal/domain/settlement"
	"github.com/dealhunter/backend/internal/domain/shared"
	"github.com/dealhunter/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// =============================================================================
// Mocks
// =============================================================================

type MockPositionRepository struct {
	mock.Mock
}

func (m *MockPositionRepository) FindByID(ctx context.Context, id uuid.UUID) (*settlement.FinancedPosition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.FinancedPosition), args.Error(1)
}

func (m *MockPositionRepository) FindByAssetKey(ctx context.Context, key settlement.AssetKey) (*settlement.FinancedPosition, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.FinancedPosition), args.Error(1)
}

func (m *MockPositionRepository) Insert(ctx context.Context, position *settlement.FinancedPosition) error {
	args := m.Called(ctx, position)
	return args.Error(0)
}

func (m *MockPositionRepository) Save(ctx context.Context, position *settlement.FinancedPosition) error {
	args := m.Called(ctx, position)
	return args.Error(0)
}

func (m *MockPositionRepository) DeleteByAssetKey(ctx context.Context, key settlement.AssetKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockPositionRepository) FindAll(ctx context.Context, filter settlement.PositionFilter) ([]settlement.FinancedPosition, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]settlement.FinancedPosition), args.Error(1)
}

func (m *MockPositionRepository) Count(ctx context.Context, filter settlement.PositionFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

type MockCurrencyToken struct {
	mock.Mock
}

func (m *MockCurrencyToken) BalanceOf(ctx context.Context, account settlement.Address) (valueobject.Money, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(valueobject.Money), args.Error(1)
}

func (m *MockCurrencyToken) Allowance(ctx context.Context, owner, spender settlement.Address) (valueobject.Money, error) {
	args := m.Called(ctx, owner, spender)
	return args.Get(0).(valueobject.Money), args.Error(1)
}

func (m *MockCurrencyToken) TransferFrom(ctx context.Context, from, to settlement.Address, amount valueobject.Money) error {
	args := m.Called(ctx, from, to, amount)
	return args.Error(0)
}

func (m *MockCurrencyToken) Transfer(ctx context.Context, to settlement.Address, amount valueobject.Money) error {
	args := m.Called(ctx, to, amount)
	return args.Error(0)
}

type MockMarketplace struct {
	mock.Mock
}

func (m *MockMarketplace) Fulfill(ctx context.Context, calldata []byte, payment valueobject.Money) error {
	args := m.Called(ctx, calldata, payment)
	return args.Error(0)
}

type MockFinancingAdapter struct {
	mock.Mock
}

func (m *MockFinancingAdapter) Nonce(ctx context.Context, buyer settlement.Address) (uint64, error) {
	args := m.Called(ctx, buyer)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockFinancingAdapter) ExecuteDownPayment(ctx context.Context, req settlement.DownPaymentRequest) (*settlement.BoundAsset, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.BoundAsset), args.Error(1)
}

type MockLendingFacility struct {
	mock.Mock
}

func (m *MockLendingFacility) Outstanding(ctx context.Context, debtRef string) (valueobject.Money, error) {
	args := m.Called(ctx, debtRef)
	return args.Get(0).(valueobject.Money), args.Error(1)
}

func (m *MockLendingFacility) Repay(ctx context.Context, debtRef string, amount valueobject.Money) (valueobject.Money, error) {
	args := m.Called(ctx, debtRef, amount)
	return args.Get(0).(valueobject.Money), args.Error(1)
}

func (m *MockLendingFacility) Redeem(ctx context.Context, debtRef string) error {
	args := m.Called(ctx, debtRef)
	return args.Error(0)
}

type MockAssetToken struct {
	mock.Mock
}

func (m *MockAssetToken) TransferFrom(ctx context.Context, assetContract settlement.Address, assetID string, from, to settlement.Address) error {
	args := m.Called(ctx, assetContract, assetID, from, to)
	return args.Error(0)
}

type MockEventPublisher struct {
	mock.Mock
	published []shared.DomainEvent
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	m.published = append(m.published, events...)
	args := m.Called(ctx, events)
	return args.Error(0)
}

// =============================================================================
// Fixture
// =============================================================================

const (
	custodyAddr  = settlement.Address("0x0000000000000000000000000000000000c0ffee")
	lenderAddr   = settlement.Address("0x000000000000000000000000000000000000fade")
	adapterAddr  = settlement.Address("0x8b5abf01b87f87fb8e0ffc60d32ed7dd29b1f06b")
	contractAddr = settlement.Address("0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d")
	buyerAddr    = settlement.Address("0x66dd2e46331219d1046b8452a04806eb6ba07ef3")
)

type fixture struct {
	positions   *MockPositionRepository
	currency    *MockCurrencyToken
	marketplace *MockMarketplace
	adapter     *MockFinancingAdapter
	facility    *MockLendingFacility
	assets      *MockAssetToken
	publisher   *MockEventPublisher
	orch        *DealOrchestrator
}

func newFixture(ratioBps int64) *fixture {
	f := &fixture{
		positions:   new(MockPositionRepository),
		currency:    new(MockCurrencyToken),
		marketplace: new(MockMarketplace),
		adapter:     new(MockFinancingAdapter),
		facility:    new(MockLendingFacility),
		assets:      new(MockAssetToken),
		publisher:   new(MockEventPublisher),
	}
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.orch = NewDealOrchestrator(
		f.positions, f.currency, f.marketplace, f.adapter, f.facility, f.assets,
		f.publisher, zap.NewNop(),
		OrchestratorConfig{
			CustodyAddress:      custodyAddr,
			DownPaymentRatioBps: ratioBps,
			LenderAddress:       lenderAddr,
		},
	)
	return f
}

func weth(s string) valueobject.Money {
	return valueobject.NewMoneyWETH(decimal.RequireFromString(s))
}

func moneyEq(s string) interface{} {
	want := decimal.RequireFromString(s)
	return mock.MatchedBy(func(m valueobject.Money) bool {
		return m.Amount().Equal(want)
	})
}

func fullPaymentRequest(price string) FireRequest {
	return FireRequest{
		AssetContract: string(contractAddr),
		AssetID:       "4758",
		Buyer:         string(buyerAddr),
		Price:         decimal.RequireFromString(price),
		Mode:          settlement.ModeFullPayment,
		Calldata:      []byte{0xde, 0xad},
	}
}

func downPaymentRequest(price string, nonce uint64) FireRequest {
	return FireRequest{
		Adapter:       string(adapterAddr),
		AssetContract: string(contractAddr),
		AssetID:       "4758",
		Buyer:         string(buyerAddr),
		Price:         decimal.RequireFromString(price),
		Mode:          settlement.ModeDownPayment,
		Calldata:      []byte{0xde, 0xad},
		Authorization: settlement.DealAuthorization{V: 27, R: "0xaa", S: "0xbb", Nonce: nonce},
	}
}

// =============================================================================
// Fire: full payment
// =============================================================================

func TestFire_FullPayment_Success(t *testing.T) {
	f := newFixture(4200)
	f.currency.On("BalanceOf", mock.Anything, buyerAddr).Return(weth("50"), nil)
	f.currency.On("Allowance", mock.Anything, buyerAddr, custodyAddr).Return(weth("50"), nil)
	f.currency.On("TransferFrom", mock.Anything, buyerAddr, custodyAddr, moneyEq("50")).Return(nil)
	f.marketplace.On("Fulfill", mock.Anything, []byte{0xde, 0xad}, moneyEq("50")).Return(nil)

	result, err := f.orch.Fire(context.Background(), fullPaymentRequest("50"))

	assert.NoError(t, err)
	assert.Equal(t, settlement.ModeFullPayment, result.Mode)
	assert.True(t, result.Contribution.Equal(decimal.NewFromInt(50)))
	assert.True(t, result.Borrowed.IsZero())
	assert.Nil(t, result.PositionID)
	f.currency.AssertExpectations(t)
	f.marketplace.AssertExpectations(t)
	f.positions.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	assert.Len(t, f.publisher.published, 1)
	assert.Equal(t, "DealSettled", f.publisher.published[0].EventType())
}

func TestFire_FullPayment_BalanceExactlyAtPriceSucceeds(t *testing.T) {
	f := newFixture(4200)
	f.currency.On("BalanceOf", mock.Anything, buyerAddr).Return(weth("50"), nil)
	f.currency.On("Allowance", mock.Anything, buyerAddr, custodyAddr).Return(weth("50"), nil)
	f.currency.On("TransferFrom", mock.Anything, buyerAddr, custodyAddr, moneyEq("50")).Return(nil)
	f.marketplace.On("Fulfill", mock.Anything, mock.Anything, moneyEq("50")).Return(nil)

	_, err := f.orch.Fire(context.Background(), fullPaymentRequest("50"))
	assert.NoError(t, err)
}

func TestFire_InsufficientBalance(t *testing.T) {
	f := newFixture(4200)
	f.currency.On("BalanceOf", mock.Anything, buyerAddr).Return(weth("49.999999999999999999"), nil)

	_, err := f.orch.Fire(context.Background(), fullPaymentRequest("50"))

	assertSettlementCode(t, err, "INSUFFICIENT_BALANCE")
	assert.EqualError(t, err, "buyer's balance is too low")
	f.currency.AssertNotCalled(t, "Allowance", mock.Anything, mock.Anything, mock.Anything)
	f.currency.AssertNotCalled(t, "TransferFrom", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFire_InsufficientAllowance_CheckedIndependently(t *testing.T) {
	f := newFixture(4200)
	// Plenty of balance; allowance is the only shortfall.
	f.currency.On("BalanceOf", mock.Anything, buyerAddr).Return(weth("1000"), nil)
	f.currency.On("Allowance", mock.Anything, buyerAddr, custodyAddr).Return(weth("20.9"), nil)

	_, err := f.orch.Fire(context.Background(), downPaymentRequest("50", 0))

	assertSettlementCode(t, err, "INSUFFICIENT_ALLOWANCE")
	assert.EqualError(t, err, "the balance allowed from buyer is too low")
	f.currency.AssertNotCalled(t, "TransferFrom", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFire_FullPayment_MarketplaceFailureRefunds(t *testing.T) {
	f := newFixture(4200)
	f.currency.On("BalanceOf", mock.Anything, buyerAddr).Return(weth("50"), nil)
	f.currency.On("Allowance", mock.Anything, buyerAddr, custodyAddr).Return(weth("50"), nil)
	f.currency.On("TransferFrom", mock.Anything, buyerAddr, custodyAddr, moneyEq("50")).Return(nil)
	f.marketplace.On("Fulfill", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("order already filled"))
	f.currency.On("Transfer", mock.Anything, buyerAddr, moneyEq("50")).Return(nil)

	_, err := f.orch.Fire(context.Background(), fullPaymentRequest("50"))

	assertSettlementCode(t, err, "MARKETPLACE_FULFILLMENT_FAILED")
	f.currency.AssertCalled(t, "Transfer", mock.Anything, buyerAddr, moneyEq("50"))
	assert.Empty(t, f.publisher.published)
}

// =============================================================================
// Fire: down payment
// =============================================================================

func TestFire_DownPayment_Success(t *testing.T) {
	f := newFixture(4200)
	// 50 * 4200bps = 21 contribution, 29 borrowed
	f.positions.On("FindByAssetKey", mock.Anything, mock.Anything).Return(nil, nil)
	f.adapter.On("Nonce", mock.Anything, buyerAddr).Return(uint64(3), nil)
	f.currency.On("BalanceOf", mock.Anything, buyerAddr).Return(weth("21"), nil)
	f.currency.On("Allowance", mock.Anything, buyerAddr, custodyAddr).Return(weth("21"), nil)
	f.currency.On("TransferFrom", mock.Anything, buyerAddr, custodyAddr, moneyEq("21")).Return(nil)
	f.adapter.On("ExecuteDownPayment", mock.Anything, mock.MatchedBy(func(req settlement.DownPaymentRequest) bool {
		return req.Contribution.Amount().Equal(decimal.NewFromInt(21)) && req.Digest != ""
	})).Return(&settlement.BoundAsset{
		Key:           settlement.AssetKey{Contract: contractAddr, ID: "4758"},
		DebtReference: "debt-4758",
		Borrowed:      weth("29"),
	}, nil)
	f.positions.On("Insert", mock.Anything, mock.MatchedBy(func(p *settlement.FinancedPosition) bool {
		return p.DebtReference == "debt-4758" && p.Buyer == buyerAddr && p.Principal.Equal(decimal.NewFromInt(29))
	})).Return(nil)

	result, err := f.orch.Fire(context.Background(), downPaymentRequest("50", 3))

	assert.NoError(t, err)
	assert.True(t, result.Contribution.Equal(decimal.NewFromInt(21)))
	assert.True(t, result.Borrowed.Equal(decimal.NewFromInt(29)))
	assert.NotNil(t, result.PositionID)
	f.positions.AssertExpectations(t)
	f.adapter.AssertExpectations(t)
}

func TestFire_DownPayment_ContributionJustShortFails(t *testing.T) {
	f := newFixture(4200)
	// Required contribution for a 50 WETH deal at 42% is 21; 20.9 is short.
	f.currency.On("BalanceOf", mock.Anything, buyerAddr).Return(weth("20.9"), nil)

	_, err := f.orch.Fire(context.Background(), downPaymentRequest("50", 0))

	assertSettlementCode(t, err, "INSUFFICIENT_BALANCE")
}

func TestFire_DownPayment_NonceReplay(t *testing.T) {
	f := newFixture(4200)
	f.currency.On("BalanceOf", mock.Anything, buyerAddr).Return(weth("21"), nil)
	f.currency.On("Allowance", mock.Anything, buyerAddr, custodyAddr).Return(weth("21"), nil)
	f.positions.On("FindByAssetKey", mock.Anything, mock.Anything).Return(nil, nil)
	f.adapter.On("Nonce", mock.Anything, buyerAddr).Return(uint64(4), nil)

	_, err := f.orch.Fire(context.Background(), downPaymentRequest("50", 3))

	assertSettlementCode(t, err, "NONCE_REPLAY")
	f.currency.AssertNotCalled(t, "TransferFrom", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFire_DownPayment_DuplicateFinancing(t *testing.T) {
	f := newFixture(4200)
	existing, _ := settlement.NewFinancedPosition(
		settlement.AssetKey{Contract: contractAddr, ID: "4758"}, buyerAddr, "debt-4758", weth("29"))
	f.currency.On("BalanceOf", mock.Anything, buyerAddr).Return(weth("21"), nil)
	f.currency.On("Allowance", mock.Anything, buyerAddr, custodyAddr).Return(weth("21"), nil)
	f.positions.On("FindByAssetKey", mock.Anything, mock.Anything).Return(existing, nil)

	_, err := f.orch.Fire(context.Background(), downPaymentRequest("50", 3))

	assertSettlementCode(t, err, "DUPLICATE_FINANCING")
	f.currency.AssertNotCalled(t, "TransferFrom", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFire_DownPayment_AdapterRejectionRefundsAndPropagates(t *testing.T) {
	f := newFixture(4200)
	f.positions.On("FindByAssetKey", mock.Anything, mock.Anything).Return(nil, nil)
	f.adapter.On("Nonce", mock.Anything, buyerAddr).Return(uint64(3), nil)
	f.currency.On("BalanceOf", mock.Anything, buyerAddr).Return(weth("21"), nil)
	f.currency.On("Allowance", mock.Anything, buyerAddr, custodyAddr).Return(weth("21"), nil)
	f.currency.On("TransferFrom", mock.Anything, buyerAddr, custodyAddr, moneyEq("21")).Return(nil)
	f.adapter.On("ExecuteDownPayment", mock.Anything, mock.Anything).Return(nil, settlement.ErrBadSignature)
	f.currency.On("Transfer", mock.Anything, buyerAddr, moneyEq("21")).Return(nil)

	_, err := f.orch.Fire(context.Background(), downPaymentRequest("50", 3))

	assertSettlementCode(t, err, "BAD_SIGNATURE")
	f.currency.AssertCalled(t, "Transfer", mock.Anything, buyerAddr, moneyEq("21"))
	f.positions.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestFire_ReentrantKeyRejected(t *testing.T) {
	f := newFixture(4200)
	key := settlement.AssetKey{Contract: contractAddr, ID: "4758"}
	assert.True(t, f.orch.guard.Acquire(key.String()))
	defer f.orch.guard.Release(key.String())

	f.currency.On("BalanceOf", mock.Anything, buyerAddr).Return(weth("50"), nil)
	f.currency.On("Allowance", mock.Anything, buyerAddr, custodyAddr).Return(weth("50"), nil)

	_, err := f.orch.Fire(context.Background(), fullPaymentRequest("50"))

	assertSettlementCode(t, err, "SETTLEMENT_IN_FLIGHT")
	f.currency.AssertNotCalled(t, "TransferFrom", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// =============================================================================
// Repay
// =============================================================================

func repayFixturePosition() *settlement.FinancedPosition {
	p, _ := settlement.NewFinancedPosition(
		settlement.AssetKey{Contract: contractAddr, ID: "4758"}, buyerAddr, "debt-4758", weth("29"))
	return p
}

func TestRepay_PartialKeepsPosition(t *testing.T) {
	f := newFixture(4200)
	position := repayFixturePosition()
	f.positions.On("FindByAssetKey", mock.Anything, position.Key()).Return(position, nil)
	f.currency.On("BalanceOf", mock.Anything, buyerAddr).Return(weth("10"), nil)
	f.currency.On("Allowance", mock.Anything, buyerAddr, custodyAddr).Return(weth("10"), nil)
	f.currency.On("TransferFrom", mock.Anything, buyerAddr, custodyAddr, moneyEq("10")).Return(nil)
	f.facility.On("Repay", mock.Anything, "debt-4758", moneyEq("10")).Return(weth("19"), nil)
	f.positions.On("Save", mock.Anything, position).Return(nil)

	result, err := f.orch.Repay(context.Background(), RepayRequest{
		AssetContract: string(contractAddr),
		AssetID:       "4758",
		Payer:         string(buyerAddr),
		Amount:        decimal.NewFromInt(10),
	})

	assert.NoError(t, err)
	assert.False(t, result.Released)
	assert.True(t, result.Outstanding.Equal(decimal.NewFromInt(19)))
	f.facility.AssertNotCalled(t, "Redeem", mock.Anything, mock.Anything)
	f.positions.AssertNotCalled(t, "DeleteByAssetKey", mock.Anything, mock.Anything)
	assert.Len(t, f.publisher.published, 1)
	assert.Equal(t, "LoanRepaid", f.publisher.published[0].EventType())
}

func TestRepay_ClearingDebtReleasesAsset(t *testing.T) {
	f := newFixture(4200)
	position := repayFixturePosition()
	payer := settlement.Address("0x1111111111111111111111111111111111111111")
	f.positions.On("FindByAssetKey", mock.Anything, position.Key()).Return(position, nil)
	f.currency.On("BalanceOf", mock.Anything, payer).Return(weth("29"), nil)
	f.currency.On("Allowance", mock.Anything, payer, custodyAddr).Return(weth("29"), nil)
	f.currency.On("TransferFrom", mock.Anything, payer, custodyAddr, moneyEq("29")).Return(nil)
	f.facility.On("Repay", mock.Anything, "debt-4758", moneyEq("29")).Return(weth("0"), nil)
	f.positions.On("Save", mock.Anything, position).Return(nil)
	f.facility.On("Outstanding", mock.Anything, "debt-4758").Return(weth("0"), nil)
	f.facility.On("Redeem", mock.Anything, "debt-4758").Return(nil)
	// The asset goes to the recorded buyer, not the payer.
	f.assets.On("TransferFrom", mock.Anything, contractAddr, "4758", custodyAddr, buyerAddr).Return(nil)
	f.positions.On("DeleteByAssetKey", mock.Anything, position.Key()).Return(nil)

	result, err := f.orch.Repay(context.Background(), RepayRequest{
		AssetContract: string(contractAddr),
		AssetID:       "4758",
		Payer:         string(payer),
		Amount:        decimal.NewFromInt(29),
	})

	assert.NoError(t, err)
	assert.True(t, result.Released)
	f.assets.AssertExpectations(t)
	f.positions.AssertExpectations(t)
	eventTypes := make([]string, 0, len(f.publisher.published))
	for _, e := range f.publisher.published {
		eventTypes = append(eventTypes, e.EventType())
	}
	assert.Equal(t, []string{"LoanRepaid", "AssetReleased"}, eventTypes)
}

func TestRepay_ReleaseBlockedWhileFacilityReportsDebt(t *testing.T) {
	f := newFixture(4200)
	position := repayFixturePosition()
	f.positions.On("FindByAssetKey", mock.Anything, position.Key()).Return(position, nil)
	f.currency.On("BalanceOf", mock.Anything, buyerAddr).Return(weth("29"), nil)
	f.currency.On("Allowance", mock.Anything, buyerAddr, custodyAddr).Return(weth("29"), nil)
	f.currency.On("TransferFrom", mock.Anything, buyerAddr, custodyAddr, moneyEq("29")).Return(nil)
	f.facility.On("Repay", mock.Anything, "debt-4758", moneyEq("29")).Return(weth("0"), nil)
	f.positions.On("Save", mock.Anything, position).Return(nil)
	// The facility's ledger still shows debt when re-read before redemption.
	f.facility.On("Outstanding", mock.Anything, "debt-4758").Return(weth("0.5"), nil)

	_, err := f.orch.Repay(context.Background(), RepayRequest{
		AssetContract: string(contractAddr),
		AssetID:       "4758",
		Payer:         string(buyerAddr),
		Amount:        decimal.NewFromInt(29),
	})

	assertSettlementCode(t, err, "DEBT_NOT_CLEARED")
	f.facility.AssertNotCalled(t, "Redeem", mock.Anything, mock.Anything)
	f.assets.AssertNotCalled(t, "TransferFrom", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.positions.AssertNotCalled(t, "DeleteByAssetKey", mock.Anything, mock.Anything)
}

func TestRepay_NoPosition(t *testing.T) {
	f := newFixture(4200)
	f.positions.On("FindByAssetKey", mock.Anything, mock.Anything).Return(nil, nil)

	_, err := f.orch.Repay(context.Background(), RepayRequest{
		AssetContract: string(contractAddr),
		AssetID:       "4758",
		Payer:         string(buyerAddr),
		Amount:        decimal.NewFromInt(10),
	})

	assertSettlementCode(t, err, "POSITION_NOT_FOUND")
	f.currency.AssertNotCalled(t, "TransferFrom", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRepay_SecondReleaseSeesNoPosition(t *testing.T) {
	f := newFixture(4200)
	// After a clearing repayment the position row is gone, so a duplicate
	// release attempt must fail fast.
	f.positions.On("FindByAssetKey", mock.Anything, mock.Anything).Return(nil, nil)

	_, err := f.orch.Repay(context.Background(), RepayRequest{
		AssetContract: string(contractAddr),
		AssetID:       "4758",
		Payer:         string(buyerAddr),
		Amount:        decimal.NewFromInt(1),
	})

	assertSettlementCode(t, err, "POSITION_NOT_FOUND")
	f.facility.AssertNotCalled(t, "Redeem", mock.Anything, mock.Anything)
	f.assets.AssertNotCalled(t, "TransferFrom", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRepay_FacilityFailureRefunds(t *testing.T) {
	f := newFixture(4200)
	position := repayFixturePosition()
	f.positions.On("FindByAssetKey", mock.Anything, position.Key()).Return(position, nil)
	f.currency.On("BalanceOf", mock.Anything, buyerAddr).Return(weth("10"), nil)
	f.currency.On("Allowance", mock.Anything, buyerAddr, custodyAddr).Return(weth("10"), nil)
	f.currency.On("TransferFrom", mock.Anything, buyerAddr, custodyAddr, moneyEq("10")).Return(nil)
	f.facility.On("Repay", mock.Anything, "debt-4758", mock.Anything).Return(valueobject.ZeroWETH(), errors.New("facility unavailable"))
	f.currency.On("Transfer", mock.Anything, buyerAddr, moneyEq("10")).Return(nil)

	_, err := f.orch.Repay(context.Background(), RepayRequest{
		AssetContract: string(contractAddr),
		AssetID:       "4758",
		Payer:         string(buyerAddr),
		Amount:        decimal.NewFromInt(10),
	})

	assertSettlementCode(t, err, "LENDING_FACILITY_FAILURE")
	f.currency.AssertCalled(t, "Transfer", mock.Anything, buyerAddr, moneyEq("10"))
	f.positions.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestRepay_InvalidAmount(t *testing.T) {
	f := newFixture(4200)

	_, err := f.orch.Repay(context.Background(), RepayRequest{
		AssetContract: string(contractAddr),
		AssetID:       "4758",
		Payer:         string(buyerAddr),
		Amount:        decimal.Zero,
	})

	assertSettlementCode(t, err, "INVALID_AMOUNT")
}

// =============================================================================
// Configuration
// =============================================================================

func TestSetDownPaymentRate(t *testing.T) {
	f := newFixture(4200)

	assert.NoError(t, f.orch.SetDownPaymentRate(context.Background(), 5000))
	assert.Equal(t, int64(5000), f.orch.GetSettings().DownPaymentRatioBps)

	assertSettlementCode(t, f.orch.SetDownPaymentRate(context.Background(), 0), "INVALID_RATIO")
	assertSettlementCode(t, f.orch.SetDownPaymentRate(context.Background(), 10001), "INVALID_RATIO")
	assert.Equal(t, int64(5000), f.orch.GetSettings().DownPaymentRatioBps)
}

func TestSetDownPaymentRate_AffectsNextFire(t *testing.T) {
	f := newFixture(4200)
	assert.NoError(t, f.orch.SetDownPaymentRate(context.Background(), 5000))

	// At 50% the required contribution for a 50 WETH deal is 25.
	f.currency.On("BalanceOf", mock.Anything, buyerAddr).Return(weth("21"), nil)

	_, err := f.orch.Fire(context.Background(), downPaymentRequest("50", 0))
	assertSettlementCode(t, err, "INSUFFICIENT_BALANCE")
}

func TestSetLenderAddress(t *testing.T) {
	f := newFixture(4200)
	next := "0x2222222222222222222222222222222222222222"

	assert.NoError(t, f.orch.SetLenderAddress(context.Background(), next))
	assert.Equal(t, next, f.orch.GetSettings().LenderAddress)

	assertSettlementCode(t, f.orch.SetLenderAddress(context.Background(), "bogus"), "INVALID_LENDER_ADDRESS")
	assertSettlementCode(t, f.orch.SetLenderAddress(context.Background(), "0x0000000000000000000000000000000000000000"), "INVALID_LENDER_ADDRESS")
}

// =============================================================================
// Queries
// =============================================================================

func TestGetPosition(t *testing.T) {
	f := newFixture(4200)
	position := repayFixturePosition()
	f.positions.On("FindByAssetKey", mock.Anything, position.Key()).Return(position, nil)

	dto, err := f.orch.GetPosition(context.Background(), string(contractAddr), "4758")

	assert.NoError(t, err)
	assert.Equal(t, position.ID, dto.ID)
	assert.Equal(t, string(contractAddr), dto.AssetContract)
	assert.Equal(t, "4758", dto.AssetID)
	assert.Equal(t, string(buyerAddr), dto.Buyer)
	assert.Equal(t, "debt-4758", dto.DebtReference)
	assert.True(t, dto.Principal.Equal(decimal.NewFromInt(29)))
}

func TestGetPosition_NotFound(t *testing.T) {
	f := newFixture(4200)
	f.positions.On("FindByAssetKey", mock.Anything, mock.Anything).Return(nil, nil)

	_, err := f.orch.GetPosition(context.Background(), string(contractAddr), "4758")
	assertSettlementCode(t, err, "POSITION_NOT_FOUND")
}

func TestListPositions_DefaultsPagination(t *testing.T) {
	f := newFixture(4200)
	position := repayFixturePosition()
	f.positions.On("FindAll", mock.Anything, mock.MatchedBy(func(filter settlement.PositionFilter) bool {
		return filter.Page == 1 && filter.PageSize == 20
	})).Return([]settlement.FinancedPosition{*position}, nil)
	f.positions.On("Count", mock.Anything, mock.Anything).Return(int64(1), nil)

	result, err := f.orch.ListPositions(context.Background(), settlement.PositionFilter{})

	assert.NoError(t, err)
	assert.Len(t, result.Positions, 1)
	assert.Equal(t, int64(1), result.Total)
}

func assertSettlementCode(t *testing.T, err error, code string) {
	t.Helper()
	assert.Error(t, err)
	var domainErr *shared.DomainError
	assert.ErrorAs(t, err, &domainErr)
	assert.Equal(t, code, domainErr.Code)
}
