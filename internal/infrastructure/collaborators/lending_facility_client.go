package collaborators

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dealhunter/backend/internal/domain/settlement"
	"github.com/dealhunter/backend/internal/domain/shared/valueobject"
)

// LendingFacilityClient talks to the lending facility service over HTTP
type LendingFacilityClient struct {
	*baseClient
}

// NewLendingFacilityClient creates a new lending facility client
func NewLendingFacilityClient(cfg Config) (*LendingFacilityClient, error) {
	base, err := newBaseClient(cfg)
	if err != nil {
		return nil, err
	}
	return &LendingFacilityClient{baseClient: base}, nil
}

type outstandingResponse struct {
	Outstanding valueobject.Money `json:"outstanding"`
}

type repaymentRequest struct {
	Amount valueobject.Money `json:"amount"`
}

type repaymentResponse struct {
	Outstanding valueobject.Money `json:"outstanding"`
}

// Outstanding reports the remaining debt for a debt reference
func (c *LendingFacilityClient) Outstanding(ctx context.Context, debtRef string) (valueobject.Money, error) {
	var resp outstandingResponse
	path := fmt.Sprintf("/debts/%s", url.PathEscape(debtRef))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, settlement.ErrLendingFacilityFailure); err != nil {
		return valueobject.Money{}, err
	}
	return resp.Outstanding, nil
}

// Repay forwards amount against the debt and returns the new outstanding
func (c *LendingFacilityClient) Repay(ctx context.Context, debtRef string, amount valueobject.Money) (valueobject.Money, error) {
	var resp repaymentResponse
	path := fmt.Sprintf("/debts/%s/repayments", url.PathEscape(debtRef))
	if err := c.do(ctx, http.MethodPost, path, repaymentRequest{Amount: amount}, &resp, settlement.ErrLendingFacilityFailure); err != nil {
		return valueobject.Money{}, err
	}
	return resp.Outstanding, nil
}

// Redeem releases the collateralized asset into orchestrator custody.
// The facility refuses while outstanding debt remains.
func (c *LendingFacilityClient) Redeem(ctx context.Context, debtRef string) error {
	path := fmt.Sprintf("/debts/%s/redeem", url.PathEscape(debtRef))
	return c.do(ctx, http.MethodPost, path, nil, nil, settlement.ErrLendingFacilityFailure)
}

// Ensure LendingFacilityClient implements LendingFacility
var _ settlement.LendingFacility = (*LendingFacilityClient)(nil)
