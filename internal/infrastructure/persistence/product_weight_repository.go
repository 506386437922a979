package persistence

import (
	"context"
	"errors"

	"github.com/freightops/backend/internal/domain/catalog"
	"github.com/freightops/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormProductWeightRepository implements catalog.Repository using GORM
type GormProductWeightRepository struct {
	db *gorm.DB
}

// NewGormProductWeightRepository creates a new GormProductWeightRepository
func NewGormProductWeightRepository(db *gorm.DB) *GormProductWeightRepository {
	return &GormProductWeightRepository{db: db}
}

// FindByProductCode finds a catalog entry by product code
func (r *GormProductWeightRepository) FindByProductCode(ctx context.Context, productCode string) (*catalog.ProductWeight, error) {
	var entry catalog.ProductWeight
	if err := r.db.WithContext(ctx).
		First(&entry, "product_code = ?", productCode).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// FindByProductCodes loads entries for a set of product codes, keyed by
// code. Missing codes are absent from the map.
func (r *GormProductWeightRepository) FindByProductCodes(ctx context.Context, productCodes []string) (map[string]*catalog.ProductWeight, error) {
	result := make(map[string]*catalog.ProductWeight, len(productCodes))
	if len(productCodes) == 0 {
		return result, nil
	}

	var entries []catalog.ProductWeight
	if err := r.db.WithContext(ctx).
		Where("product_code IN ?", productCodes).
		Find(&entries).Error; err != nil {
		return nil, err
	}

	for i := range entries {
		result[entries[i].ProductCode] = &entries[i]
	}
	return result, nil
}

// Save creates or updates a catalog entry
func (r *GormProductWeightRepository) Save(ctx context.Context, entry *catalog.ProductWeight) error {
	return r.db.WithContext(ctx).Save(entry).Error
}

// Ensure GormProductWeightRepository implements catalog.Repository
var _ catalog.Repository = (*GormProductWeightRepository)(nil)
