package persistence

import (
	"context"
	"errors"

	"github.com/dealhunter/backend/internal/domain/settlement"
	"github.com/dealhunter/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormFinancedPositionRepository implements FinancedPositionRepository using GORM
type GormFinancedPositionRepository struct {
	db *gorm.DB
}

// NewGormFinancedPositionRepository creates a new GormFinancedPositionRepository
func NewGormFinancedPositionRepository(db *gorm.DB) *GormFinancedPositionRepository {
	return &GormFinancedPositionRepository{db: db}
}

var _ settlement.FinancedPositionRepository = (*GormFinancedPositionRepository)(nil)

// FindByID finds a position by its aggregate ID
func (r *GormFinancedPositionRepository) FindByID(ctx context.Context, id uuid.UUID) (*settlement.FinancedPosition, error) {
	var position settlement.FinancedPosition
	if err := r.db.WithContext(ctx).First(&position, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &position, nil
}

// FindByAssetKey finds the position for an asset key
func (r *GormFinancedPositionRepository) FindByAssetKey(ctx context.Context, key settlement.AssetKey) (*settlement.FinancedPosition, error) {
	var position settlement.FinancedPosition
	if err := r.db.WithContext(ctx).
		Where("asset_contract = ? AND asset_id = ?", key.Contract, key.ID).
		First(&position).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &position, nil
}

// Insert creates a new position. The unique index on (asset_contract,
// asset_id) is the last-line defence against double financing.
func (r *GormFinancedPositionRepository) Insert(ctx context.Context, position *settlement.FinancedPosition) error {
	if err := r.db.WithContext(ctx).Create(position).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return settlement.ErrDuplicateFinancing
		}
		return err
	}
	return nil
}

// Save updates an existing position with optimistic locking. The caller has
// already incremented the in-memory version; the update only applies if the
// stored row still carries the previous version.
func (r *GormFinancedPositionRepository) Save(ctx context.Context, position *settlement.FinancedPosition) error {
	result := r.db.WithContext(ctx).
		Model(&settlement.FinancedPosition{}).
		Where("id = ? AND version = ?", position.ID, position.Version-1).
		Updates(map[string]interface{}{
			"version":    position.Version,
			"updated_at": position.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// DeleteByAssetKey removes the position for an asset key
func (r *GormFinancedPositionRepository) DeleteByAssetKey(ctx context.Context, key settlement.AssetKey) error {
	result := r.db.WithContext(ctx).
		Where("asset_contract = ? AND asset_id = ?", key.Contract, key.ID).
		Delete(&settlement.FinancedPosition{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return settlement.ErrPositionNotFound
	}
	return nil
}

// FindAll lists positions with filtering and pagination
func (r *GormFinancedPositionRepository) FindAll(ctx context.Context, filter settlement.PositionFilter) ([]settlement.FinancedPosition, error) {
	var positions []settlement.FinancedPosition
	query := r.applyFilter(r.db.WithContext(ctx).Model(&settlement.FinancedPosition{}), filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	if err := query.Order("created_at DESC").Find(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}

// Count counts positions matching the filter
func (r *GormFinancedPositionRepository) Count(ctx context.Context, filter settlement.PositionFilter) (int64, error) {
	var count int64
	query := r.applyFilter(r.db.WithContext(ctx).Model(&settlement.FinancedPosition{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *GormFinancedPositionRepository) applyFilter(query *gorm.DB, filter settlement.PositionFilter) *gorm.DB {
	if filter.Buyer != nil {
		query = query.Where("buyer = ?", *filter.Buyer)
	}
	return query
}
