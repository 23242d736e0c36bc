package collaborators

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dealhunter/backend/internal/domain/settlement"
	"github.com/dealhunter/backend/internal/domain/shared"
	"github.com/dealhunter/backend/internal/domain/shared/valueobject"
)

// errCurrencyTokenFailure is the fallback when the currency service fails
// for a reason the caller cannot branch on
var errCurrencyTokenFailure = shared.NewDomainError("CURRENCY_TOKEN_FAILURE", "currency token service rejected the operation")

// CurrencyTokenClient talks to the settlement currency service over HTTP
type CurrencyTokenClient struct {
	*baseClient
}

// NewCurrencyTokenClient creates a new currency token client
func NewCurrencyTokenClient(cfg Config) (*CurrencyTokenClient, error) {
	base, err := newBaseClient(cfg)
	if err != nil {
		return nil, err
	}
	return &CurrencyTokenClient{baseClient: base}, nil
}

type balanceResponse struct {
	Balance valueobject.Money `json:"balance"`
}

type allowanceResponse struct {
	Allowance valueobject.Money `json:"allowance"`
}

type transferRequest struct {
	From   string            `json:"from,omitempty"`
	To     string            `json:"to"`
	Amount valueobject.Money `json:"amount"`
}

// BalanceOf returns the current balance of an account
func (c *CurrencyTokenClient) BalanceOf(ctx context.Context, account settlement.Address) (valueobject.Money, error) {
	var resp balanceResponse
	path := fmt.Sprintf("/accounts/%s/balance", account)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, errCurrencyTokenFailure); err != nil {
		return valueobject.Money{}, err
	}
	return resp.Balance, nil
}

// Allowance returns how much the spender may pull from the owner
func (c *CurrencyTokenClient) Allowance(ctx context.Context, owner, spender settlement.Address) (valueobject.Money, error) {
	var resp allowanceResponse
	path := fmt.Sprintf("/accounts/%s/allowances/%s", owner, spender)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, errCurrencyTokenFailure); err != nil {
		return valueobject.Money{}, err
	}
	return resp.Allowance, nil
}

// TransferFrom pulls amount from an account that authorized the caller
func (c *CurrencyTokenClient) TransferFrom(ctx context.Context, from, to settlement.Address, amount valueobject.Money) error {
	req := transferRequest{From: string(from), To: string(to), Amount: amount}
	return c.do(ctx, http.MethodPost, "/transfers/pull", req, nil, errCurrencyTokenFailure)
}

// Transfer moves amount out of the caller's own balance
func (c *CurrencyTokenClient) Transfer(ctx context.Context, to settlement.Address, amount valueobject.Money) error {
	req := transferRequest{To: string(to), Amount: amount}
	return c.do(ctx, http.MethodPost, "/transfers", req, nil, errCurrencyTokenFailure)
}

// Ensure CurrencyTokenClient implements CurrencyToken
var _ settlement.CurrencyToken = (*CurrencyTokenClient)(nil)
