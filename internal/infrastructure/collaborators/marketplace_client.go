package collaborators

import (
	"context"
	"encoding/hex"
	"net/http"

	"github.com/dealhunter/backend/internal/domain/settlement"
	"github.com/dealhunter/backend/internal/domain/shared/valueobject"
)

// MarketplaceClient talks to the marketplace fulfillment service over HTTP
type MarketplaceClient struct {
	*baseClient
}

// NewMarketplaceClient creates a new marketplace client
func NewMarketplaceClient(cfg Config) (*MarketplaceClient, error) {
	base, err := newBaseClient(cfg)
	if err != nil {
		return nil, err
	}
	return &MarketplaceClient{baseClient: base}, nil
}

type fulfillRequest struct {
	Calldata string            `json:"calldata"`
	Payment  valueobject.Money `json:"payment"`
}

// Fulfill executes the order encoded in calldata. The marketplace either
// completes the purchase atomically or the call fails with no effect.
func (c *MarketplaceClient) Fulfill(ctx context.Context, calldata []byte, payment valueobject.Money) error {
	req := fulfillRequest{
		Calldata: hex.EncodeToString(calldata),
		Payment:  payment,
	}
	return c.do(ctx, http.MethodPost, "/orders/fulfill", req, nil, settlement.ErrMarketplaceFulfillmentFailed)
}

// Ensure MarketplaceClient implements Marketplace
var _ settlement.Marketplace = (*MarketplaceClient)(nil)
