package persistence

import (
	"context"
	"errors"

	"github.com/freightops/backend/internal/domain/shared"
	"github.com/freightops/backend/internal/domain/shipment"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormShipmentLineRepository implements shipment.LineRepository using GORM
type GormShipmentLineRepository struct {
	db *gorm.DB
}

// NewGormShipmentLineRepository creates a new GormShipmentLineRepository
func NewGormShipmentLineRepository(db *gorm.DB) *GormShipmentLineRepository {
	return &GormShipmentLineRepository{db: db}
}

// FindByID finds a shipment line by its ID
func (r *GormShipmentLineRepository) FindByID(ctx context.Context, id uuid.UUID) (*shipment.ShipmentLine, error) {
	var line shipment.ShipmentLine
	if err := r.db.WithContext(ctx).First(&line, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &line, nil
}

// FindByShipment finds all lines of a shipment
func (r *GormShipmentLineRepository) FindByShipment(ctx context.Context, shipmentID uuid.UUID) ([]shipment.ShipmentLine, error) {
	var lines []shipment.ShipmentLine
	if err := r.db.WithContext(ctx).
		Where("shipment_id = ?", shipmentID).
		Order("created_at ASC, id ASC").
		Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

// FindOpenByClientRoot finds match candidates for a client root tax-id:
// active unmatched lines whose shipment is active. Ordering by creation
// time then ID keeps the matcher tie-break stable.
func (r *GormShipmentLineRepository) FindOpenByClientRoot(ctx context.Context, rootTaxID string) ([]shipment.ShipmentLine, error) {
	var lines []shipment.ShipmentLine
	if err := r.db.WithContext(ctx).
		Joins("JOIN shipments ON shipments.id = shipment_lines.shipment_id").
		Where("shipment_lines.client_root_tax_id = ?", rootTaxID).
		Where("shipment_lines.invoice_number IS NULL").
		Where("shipment_lines.status = ?", shipment.LineStatusActive).
		Where("shipments.status = ?", shipment.StatusActive).
		Order("shipment_lines.created_at ASC, shipment_lines.id ASC").
		Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

// FindByInvoiceNumber finds lines matched to an invoice
func (r *GormShipmentLineRepository) FindByInvoiceNumber(ctx context.Context, invoiceNumber string) ([]shipment.ShipmentLine, error) {
	var lines []shipment.ShipmentLine
	if err := r.db.WithContext(ctx).
		Where("invoice_number = ?", invoiceNumber).
		Order("created_at ASC, id ASC").
		Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

// FindByLot finds lines backed by an allocation lot
func (r *GormShipmentLineRepository) FindByLot(ctx context.Context, lotID uuid.UUID) ([]shipment.ShipmentLine, error) {
	var lines []shipment.ShipmentLine
	if err := r.db.WithContext(ctx).
		Where("lot_id = ?", lotID).
		Order("created_at ASC, id ASC").
		Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

// Save creates or updates a shipment line
func (r *GormShipmentLineRepository) Save(ctx context.Context, line *shipment.ShipmentLine) error {
	return r.db.WithContext(ctx).Save(line).Error
}

// SaveAll persists a batch of lines
func (r *GormShipmentLineRepository) SaveAll(ctx context.Context, lines []shipment.ShipmentLine) error {
	if len(lines) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Save(&lines).Error
}

// Ensure GormShipmentLineRepository implements shipment.LineRepository
var _ shipment.LineRepository = (*GormShipmentLineRepository)(nil)
