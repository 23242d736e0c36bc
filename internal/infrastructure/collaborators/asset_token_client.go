package collaborators

import (
	"context"
	"net/http"

	"github.com/dealhunter/backend/internal/domain/settlement"
	"github.com/dealhunter/backend/internal/domain/shared"
)

// errAssetTokenFailure is the fallback when the asset token service fails
// for a reason the caller cannot branch on
var errAssetTokenFailure = shared.NewDomainError("ASSET_TOKEN_FAILURE", "asset token service rejected the transfer")

// AssetTokenClient talks to the asset custody service over HTTP
type AssetTokenClient struct {
	*baseClient
}

// NewAssetTokenClient creates a new asset token client
func NewAssetTokenClient(cfg Config) (*AssetTokenClient, error) {
	base, err := newBaseClient(cfg)
	if err != nil {
		return nil, err
	}
	return &AssetTokenClient{baseClient: base}, nil
}

type assetTransferRequest struct {
	AssetContract string `json:"asset_contract"`
	AssetID       string `json:"asset_id"`
	From          string `json:"from"`
	To            string `json:"to"`
}

// TransferFrom moves custody of the asset between accounts
func (c *AssetTokenClient) TransferFrom(ctx context.Context, assetContract settlement.Address, assetID string, from, to settlement.Address) error {
	req := assetTransferRequest{
		AssetContract: string(assetContract),
		AssetID:       assetID,
		From:          string(from),
		To:            string(to),
	}
	return c.do(ctx, http.MethodPost, "/assets/transfer", req, nil, errAssetTokenFailure)
}

// Ensure AssetTokenClient implements AssetToken
var _ settlement.AssetToken = (*AssetTokenClient)(nil)
