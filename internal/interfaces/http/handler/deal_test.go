package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	appsettlement "github.com/dealhunter/backend/internal/application/settlement"
	"github.com/dealhunter/backend/internal/domain/settlement"
	"github.com/dealhunter/backend/internal/domain/shared"
	"github.com/dealhunter/backend/internal/domain/shared/valueobject"
	"github.com/dealhunter/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	custodyAddr  = "0x0000000000000000000000000000000000c0ffee"
	lenderAddr   = "0x000000000000000000000000000000000000fade"
	contractAddr = "0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d"
	buyerAddr    = "0x00000000000000000000000000000000000b0b01"
)

// stubCurrency is a canned currency token for handler tests
type stubCurrency struct {
	balance   valueobject.Money
	allowance valueobject.Money
}

func (s *stubCurrency) BalanceOf(context.Context, settlement.Address) (valueobject.Money, error) {
	return s.balance, nil
}

func (s *stubCurrency) Allowance(context.Context, settlement.Address, settlement.Address) (valueobject.Money, error) {
	return s.allowance, nil
}

func (s *stubCurrency) TransferFrom(context.Context, settlement.Address, settlement.Address, valueobject.Money) error {
	return nil
}

func (s *stubCurrency) Transfer(context.Context, settlement.Address, valueobject.Money) error {
	return nil
}

type stubMarketplace struct{ err error }

func (s *stubMarketplace) Fulfill(context.Context, []byte, valueobject.Money) error {
	return s.err
}

type stubAdapter struct{}

func (s *stubAdapter) Nonce(context.Context, settlement.Address) (uint64, error) { return 0, nil }

func (s *stubAdapter) ExecuteDownPayment(context.Context, settlement.DownPaymentRequest) (*settlement.BoundAsset, error) {
	return nil, settlement.ErrAdapterExecutionFailed
}

type stubFacility struct{}

func (s *stubFacility) Outstanding(context.Context, string) (valueobject.Money, error) {
	return valueobject.ZeroWETH(), nil
}

func (s *stubFacility) Repay(context.Context, string, valueobject.Money) (valueobject.Money, error) {
	return valueobject.ZeroWETH(), nil
}

func (s *stubFacility) Redeem(context.Context, string) error { return nil }

type stubAssets struct{}

func (s *stubAssets) TransferFrom(context.Context, settlement.Address, string, settlement.Address, settlement.Address) error {
	return nil
}

// stubPositions is an empty ledger
type stubPositions struct{}

func (s *stubPositions) FindByID(context.Context, uuid.UUID) (*settlement.FinancedPosition, error) {
	return nil, nil
}

func (s *stubPositions) FindByAssetKey(context.Context, settlement.AssetKey) (*settlement.FinancedPosition, error) {
	return nil, nil
}

func (s *stubPositions) Insert(context.Context, *settlement.FinancedPosition) error { return nil }

func (s *stubPositions) Save(context.Context, *settlement.FinancedPosition) error { return nil }

func (s *stubPositions) DeleteByAssetKey(context.Context, settlement.AssetKey) error { return nil }

func (s *stubPositions) FindAll(context.Context, settlement.PositionFilter) ([]settlement.FinancedPosition, error) {
	return nil, nil
}

func (s *stubPositions) Count(context.Context, settlement.PositionFilter) (int64, error) {
	return 0, nil
}

type stubPublisher struct{}

func (s *stubPublisher) Publish(context.Context, ...shared.DomainEvent) error { return nil }

func newTestOrchestrator(t *testing.T, currency *stubCurrency) *appsettlement.DealOrchestrator {
	t.Helper()
	custody, ok := settlement.ParseAddress(custodyAddr)
	require.True(t, ok)
	lender, ok := settlement.ParseAddress(lenderAddr)
	require.True(t, ok)

	return appsettlement.NewDealOrchestrator(
		&stubPositions{},
		currency,
		&stubMarketplace{},
		&stubAdapter{},
		&stubFacility{},
		&stubAssets{},
		&stubPublisher{},
		zap.NewNop(),
		appsettlement.OrchestratorConfig{
			CustodyAddress:      custody,
			DownPaymentRatioBps: 4200,
			LenderAddress:       lender,
		},
	)
}

func setupDealRouter(orchestrator *appsettlement.DealOrchestrator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
	r := gin.New()
	api := r.Group("/api/v1")
	NewDealHandler(orchestrator).RegisterRoutes(api)
	NewPositionHandler(orchestrator).RegisterRoutes(api)
	return r
}

func fundedCurrency(balance, allowance string) *stubCurrency {
	return &stubCurrency{
		balance:   valueobject.NewMoneyWETH(decimal.RequireFromString(balance)),
		allowance: valueobject.NewMoneyWETH(decimal.RequireFromString(allowance)),
	}
}

func fireBody(price string) string {
	return `{
		"asset_contract": "` + contractAddr + `",
		"asset_id": "1234",
		"buyer": "` + buyerAddr + `",
		"price": "` + price + `",
		"mode": "FULL_PAYMENT",
		"calldata": "0xdeadbeef"
	}`
}

func TestDealHandler_FireFullPayment(t *testing.T) {
	router := setupDealRouter(newTestOrchestrator(t, fundedCurrency("100", "100")))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/deals/fire", strings.NewReader(fireBody("50")))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
	assert.Contains(t, w.Body.String(), contractAddr)
	assert.Contains(t, w.Body.String(), `"contribution":"50"`)
}

func TestDealHandler_FireInvalidPrice(t *testing.T) {
	router := setupDealRouter(newTestOrchestrator(t, fundedCurrency("100", "100")))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/deals/fire", strings.NewReader(fireBody("not-a-number")))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDealHandler_FireInvalidCalldata(t *testing.T) {
	router := setupDealRouter(newTestOrchestrator(t, fundedCurrency("100", "100")))

	body := strings.Replace(fireBody("50"), "0xdeadbeef", "0xnothex", 1)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/deals/fire", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDealHandler_FireRejectsMalformedBuyer(t *testing.T) {
	router := setupDealRouter(newTestOrchestrator(t, fundedCurrency("100", "100")))

	body := strings.Replace(fireBody("50"), buyerAddr, "0x1234", 1)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/deals/fire", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDealHandler_FireInsufficientBalance(t *testing.T) {
	router := setupDealRouter(newTestOrchestrator(t, fundedCurrency("10", "100")))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/deals/fire", strings.NewReader(fireBody("50")))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "INSUFFICIENT_BALANCE")
}

func TestDealHandler_RepayUnknownPosition(t *testing.T) {
	router := setupDealRouter(newTestOrchestrator(t, fundedCurrency("100", "100")))

	body := `{
		"asset_contract": "` + contractAddr + `",
		"asset_id": "9999",
		"payer": "` + buyerAddr + `",
		"amount": "10"
	}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/deals/repay", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "POSITION_NOT_FOUND")
}

func TestPositionHandler_GetUnknownPosition(t *testing.T) {
	router := setupDealRouter(newTestOrchestrator(t, fundedCurrency("100", "100")))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/positions/"+contractAddr+"/42", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPositionHandler_ListEmpty(t *testing.T) {
	router := setupDealRouter(newTestOrchestrator(t, fundedCurrency("100", "100")))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":0`)
}

func TestPositionHandler_ListRejectsBadBuyer(t *testing.T) {
	router := setupDealRouter(newTestOrchestrator(t, fundedCurrency("100", "100")))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/positions?buyer=garbage", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
