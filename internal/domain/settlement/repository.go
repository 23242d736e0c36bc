package settlement

import (
	"context"

	"github.com/google/uuid"
)

// PositionFilter holds filtering options for position queries
type PositionFilter struct {
	Buyer    *Address
	Page     int
	PageSize int
}

// FinancedPositionRepository persists the settlement ledger
type FinancedPositionRepository interface {
	// FindByID finds a position by its aggregate ID; returns nil if absent
	FindByID(ctx context.Context, id uuid.UUID) (*FinancedPosition, error)
	// FindByAssetKey finds the position for an asset key; returns nil if absent
	FindByAssetKey(ctx context.Context, key AssetKey) (*FinancedPosition, error)
	// Insert creates a new position. Inserting over an existing asset key
	// fails with ErrDuplicateFinancing.
	Insert(ctx context.Context, position *FinancedPosition) error
	// Save updates an existing position with optimistic locking
	Save(ctx context.Context, position *FinancedPosition) error
	// DeleteByAssetKey removes the position for an asset key. Returns
	// ErrPositionNotFound if no row was deleted.
	DeleteByAssetKey(ctx context.Context, key AssetKey) error
	// FindAll lists positions with filtering and pagination
	FindAll(ctx context.Context, filter PositionFilter) ([]FinancedPosition, error)
	// Count counts positions matching the filter
	Count(ctx context.Context, filter PositionFilter) (int64, error)
}
