package collaborators

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/dealhunter/backend/internal/domain/settlement"
	"github.com/dealhunter/backend/internal/domain/shared/valueobject"
)

// FinancingAdapterClient talks to the down-payment adapter service over HTTP
type FinancingAdapterClient struct {
	*baseClient
}

// NewFinancingAdapterClient creates a new financing adapter client
func NewFinancingAdapterClient(cfg Config) (*FinancingAdapterClient, error) {
	base, err := newBaseClient(cfg)
	if err != nil {
		return nil, err
	}
	return &FinancingAdapterClient{baseClient: base}, nil
}

type nonceResponse struct {
	Nonce uint64 `json:"nonce"`
}

type downPaymentRequest struct {
	AssetContract string                       `json:"asset_contract"`
	AssetID       string                       `json:"asset_id"`
	Buyer         string                       `json:"buyer"`
	Price         valueobject.Money            `json:"price"`
	Calldata      string                       `json:"calldata"`
	Contribution  valueobject.Money            `json:"contribution"`
	Digest        string                       `json:"digest"`
	Authorization settlement.DealAuthorization `json:"authorization"`
}

type downPaymentResponse struct {
	AssetContract string            `json:"asset_contract"`
	AssetID       string            `json:"asset_id"`
	DebtReference string            `json:"debt_reference"`
	Borrowed      valueobject.Money `json:"borrowed"`
}

// Nonce returns the buyer's current expected authorization nonce
func (c *FinancingAdapterClient) Nonce(ctx context.Context, buyer settlement.Address) (uint64, error) {
	var resp nonceResponse
	path := fmt.Sprintf("/buyers/%s/nonce", buyer)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, settlement.ErrAdapterExecutionFailed); err != nil {
		return 0, err
	}
	return resp.Nonce, nil
}

// ExecuteDownPayment performs the financed purchase atomically. The adapter
// validates the signed authorization, borrows the shortfall, fulfills the
// order and returns custody of the bound asset.
func (c *FinancingAdapterClient) ExecuteDownPayment(ctx context.Context, req settlement.DownPaymentRequest) (*settlement.BoundAsset, error) {
	body := downPaymentRequest{
		AssetContract: string(req.Deal.AssetContract),
		AssetID:       req.Deal.AssetID,
		Buyer:         string(req.Deal.Buyer),
		Price:         req.Deal.Price,
		Calldata:      hex.EncodeToString(req.Deal.MarketplaceCalldata),
		Contribution:  req.Contribution,
		Digest:        req.Digest,
		Authorization: req.Deal.Authorization,
	}

	var resp downPaymentResponse
	if err := c.do(ctx, http.MethodPost, "/down-payments", body, &resp, settlement.ErrAdapterExecutionFailed); err != nil {
		return nil, err
	}

	contract, ok := settlement.ParseAddress(resp.AssetContract)
	if !ok {
		return nil, fmt.Errorf("adapter returned invalid asset contract %q", resp.AssetContract)
	}

	return &settlement.BoundAsset{
		Key:           settlement.AssetKey{Contract: contract, ID: resp.AssetID},
		DebtReference: resp.DebtReference,
		Borrowed:      resp.Borrowed,
	}, nil
}

// Ensure FinancingAdapterClient implements FinancingAdapter
var _ settlement.FinancingAdapter = (*FinancingAdapterClient)(nil)
