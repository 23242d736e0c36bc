package settlement

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/dealhunter/backend/internal/domain/shared"
	"github.com/dealhunter/backend/internal/domain/shared/valueobject"
	"golang.org/x/crypto/sha3"
)

// FinancingMode selects how a deal is funded
type FinancingMode string

const (
	// ModeFullPayment pays the entire price from the buyer's contribution
	ModeFullPayment FinancingMode = "FULL_PAYMENT"
	// ModeDownPayment pays a fraction up front; the lender advances the rest
	ModeDownPayment FinancingMode = "DOWN_PAYMENT"
)

// IsValid returns true if the financing mode is valid
func (m FinancingMode) IsValid() bool {
	switch m {
	case ModeFullPayment, ModeDownPayment:
		return true
	default:
		return false
	}
}

// String returns the string representation of the financing mode
func (m FinancingMode) String() string {
	return string(m)
}

// DealAuthorization carries the buyer's signature over the deal parameters
// plus the buyer's expected nonce at the financing adapter. The orchestrator
// never verifies the signature itself; the adapter owns the authoritative
// nonce counter and rejects replays.
type DealAuthorization struct {
	V     uint8  `json:"v"`
	R     string `json:"r"` // 32-byte hex
	S     string `json:"s"` // 32-byte hex
	Nonce uint64 `json:"nonce"`
}

// IsComplete returns true if all signature components are present
func (a DealAuthorization) IsComplete() bool {
	return a.R != "" && a.S != ""
}

// Deal is one purchase request submitted to the orchestrator. It exists only
// for the duration of a single Fire call and is never persisted.
type Deal struct {
	Adapter             Address
	AssetContract       Address
	AssetID             string
	Buyer               Address
	Price               valueobject.Money
	Mode                FinancingMode
	MarketplaceCalldata []byte
	Authorization       DealAuthorization
}

// NewDeal validates and constructs a Deal
func NewDeal(
	adapter, assetContract, buyer Address,
	assetID string,
	price valueobject.Money,
	mode FinancingMode,
	calldata []byte,
	auth DealAuthorization,
) (*Deal, error) {
	if !assetContract.IsValid() {
		return nil, shared.NewDomainError("INVALID_ASSET_CONTRACT", "Asset contract address is not a valid hex address")
	}
	if assetID == "" {
		return nil, shared.NewDomainError("INVALID_ASSET_ID", "Asset ID cannot be empty")
	}
	if !buyer.IsValid() || buyer.IsZero() {
		return nil, shared.NewDomainError("INVALID_BUYER", "Buyer address is not a valid hex address")
	}
	if !price.IsPositive() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Price must be positive")
	}
	if !mode.IsValid() {
		return nil, shared.NewDomainError("INVALID_FINANCING_MODE", "Financing mode is not valid")
	}
	if len(calldata) == 0 {
		return nil, shared.NewDomainError("INVALID_CALLDATA", "Marketplace calldata cannot be empty")
	}
	if mode == ModeDownPayment {
		if !adapter.IsValid() || adapter.IsZero() {
			return nil, shared.NewDomainError("INVALID_ADAPTER", "Financing adapter address is required for down-payment deals")
		}
		if !auth.IsComplete() {
			return nil, &shared.DomainError{Code: ErrBadSignature.Code, Message: "authorization signature is incomplete"}
		}
	}

	return &Deal{
		Adapter:             adapter,
		AssetContract:       assetContract,
		AssetID:             assetID,
		Buyer:               buyer,
		Price:               price,
		Mode:                mode,
		MarketplaceCalldata: calldata,
		Authorization:       auth,
	}, nil
}

// Key returns the asset key this deal targets
func (d *Deal) Key() AssetKey {
	return AssetKey{Contract: d.AssetContract, ID: d.AssetID}
}

// RequiredContribution computes how much the buyer must fund up front for
// the given down-payment ratio (basis points). Full-payment deals require
// the entire price.
func (d *Deal) RequiredContribution(downPaymentRatioBps int64) valueobject.Money {
	if d.Mode == ModeDownPayment {
		return d.Price.ApplyBasisPoints(downPaymentRatioBps)
	}
	return d.Price
}

// Digest returns the keccak-256 digest the buyer's authorization signs:
// the canonical encoding of (adapter, assetContract, assetId, buyer, price,
// calldata, nonce). The financing adapter recomputes the same digest when
// verifying the signature.
func (d *Deal) Digest() string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(d.Adapter))
	h.Write([]byte(d.AssetContract))
	h.Write([]byte(d.AssetID))
	h.Write([]byte(d.Buyer))
	h.Write([]byte(d.Price.Amount().String()))
	h.Write(d.MarketplaceCalldata)

	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], d.Authorization.Nonce)
	h.Write(nonce[:])

	return "0x" + hex.EncodeToString(h.Sum(nil))
}
