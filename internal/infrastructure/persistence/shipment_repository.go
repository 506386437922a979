package persistence

import (
	"context"
	"errors"

	"github.com/freightops/backend/internal/domain/shared"
	"github.com/freightops/backend/internal/domain/shipment"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormShipmentRepository implements shipment.Repository using GORM
type GormShipmentRepository struct {
	db *gorm.DB
}

// NewGormShipmentRepository creates a new GormShipmentRepository
func NewGormShipmentRepository(db *gorm.DB) *GormShipmentRepository {
	return &GormShipmentRepository{db: db}
}

// FindByID finds a shipment header by its ID
func (r *GormShipmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*shipment.Shipment, error) {
	var s shipment.Shipment
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// FindByShipmentNumber finds a shipment by its unique number
func (r *GormShipmentRepository) FindByShipmentNumber(ctx context.Context, shipmentNumber string) (*shipment.Shipment, error) {
	var s shipment.Shipment
	if err := r.db.WithContext(ctx).
		First(&s, "shipment_number = ?", shipmentNumber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// FindActive finds active shipments
func (r *GormShipmentRepository) FindActive(ctx context.Context, filter shared.Filter) ([]shipment.Shipment, error) {
	var shipments []shipment.Shipment
	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&shipment.Shipment{}).
			Where("status = ?", shipment.StatusActive),
		filter,
	)

	if err := query.Find(&shipments).Error; err != nil {
		return nil, err
	}
	return shipments, nil
}

// Save creates or updates a shipment header. Lines are persisted through
// the line repository, never through the header association.
func (r *GormShipmentRepository) Save(ctx context.Context, s *shipment.Shipment) error {
	return r.db.WithContext(ctx).Omit("Lines").Save(s).Error
}

// applyFilter applies pagination and ordering to the query
func (r *GormShipmentRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if offset, limit, ok := filter.Paginate(); ok {
		query = query.Offset(offset).Limit(limit)
	}

	orderBy := ValidateSortField(filter.OrderBy, ShipmentSortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)
	return query.Order(orderBy + " " + orderDir)
}

// Ensure GormShipmentRepository implements shipment.Repository
var _ shipment.Repository = (*GormShipmentRepository)(nil)
