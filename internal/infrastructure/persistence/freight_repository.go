package persistence

import (
	"context"
	"errors"

	"github.com/freightops/backend/internal/domain/freight"
	"github.com/freightops/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormFreightRepository implements freight.Repository using GORM
type GormFreightRepository struct {
	db *gorm.DB
}

// NewGormFreightRepository creates a new GormFreightRepository
func NewGormFreightRepository(db *gorm.DB) *GormFreightRepository {
	return &GormFreightRepository{db: db}
}

// FindByID finds a freight record by its ID
func (r *GormFreightRepository) FindByID(ctx context.Context, id uuid.UUID) (*freight.Freight, error) {
	var f freight.Freight
	if err := r.db.WithContext(ctx).First(&f, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// FindByShipmentAndClient finds the freight for a (shipment, client) pair
func (r *GormFreightRepository) FindByShipmentAndClient(ctx context.Context, shipmentID uuid.UUID, clientTaxID string) (*freight.Freight, error) {
	var f freight.Freight
	if err := r.db.WithContext(ctx).
		Where("shipment_id = ? AND client_tax_id = ?", shipmentID, clientTaxID).
		First(&f).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// FindByShipment finds all freight records of a shipment
func (r *GormFreightRepository) FindByShipment(ctx context.Context, shipmentID uuid.UUID) ([]freight.Freight, error) {
	var freights []freight.Freight
	if err := r.db.WithContext(ctx).
		Where("shipment_id = ?", shipmentID).
		Order("created_at ASC, id ASC").
		Find(&freights).Error; err != nil {
		return nil, err
	}
	return freights, nil
}

// FindOpenByClient finds freight still open for requoting for a client
func (r *GormFreightRepository) FindOpenByClient(ctx context.Context, clientTaxID string) ([]freight.Freight, error) {
	var freights []freight.Freight
	if err := r.db.WithContext(ctx).
		Where("client_tax_id = ? AND status IN ?", clientTaxID, []freight.Status{
			freight.StatusPending, freight.StatusNegotiating, freight.StatusApproved,
		}).
		Order("created_at ASC, id ASC").
		Find(&freights).Error; err != nil {
		return nil, err
	}
	return freights, nil
}

// ExistsOpenForLot reports whether a non-cancelled freight covers the
// shipment backing the given allocation lot
func (r *GormFreightRepository) ExistsOpenForLot(ctx context.Context, lotID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&freight.Freight{}).
		Joins("JOIN shipment_lines ON shipment_lines.shipment_id = freights.shipment_id").
		Where("shipment_lines.lot_id = ?", lotID).
		Where("freights.status <> ?", freight.StatusCancelled).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save creates or updates a freight record
func (r *GormFreightRepository) Save(ctx context.Context, f *freight.Freight) error {
	return r.db.WithContext(ctx).Save(f).Error
}

// Ensure GormFreightRepository implements freight.Repository
var _ freight.Repository = (*GormFreightRepository)(nil)
