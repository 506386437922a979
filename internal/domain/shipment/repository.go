package shipment

import (
	"context"

	"github.com/freightops/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Repository defines the interface for shipment persistence
type Repository interface {
	// FindByID finds a shipment by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Shipment, error)

	// FindByShipmentNumber finds a shipment by its unique number
	FindByShipmentNumber(ctx context.Context, shipmentNumber string) (*Shipment, error)

	// FindActive finds active shipments
	FindActive(ctx context.Context, filter shared.Filter) ([]Shipment, error)

	// Save creates or updates a shipment header
	Save(ctx context.Context, s *Shipment) error
}

// LineRepository defines the interface for shipment-line persistence
type LineRepository interface {
	// FindByID finds a shipment line by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*ShipmentLine, error)

	// FindByShipment finds all lines of a shipment
	FindByShipment(ctx context.Context, shipmentID uuid.UUID) ([]ShipmentLine, error)

	// FindOpenByClientRoot finds match candidates: active lines with no
	// invoice, belonging to an active shipment, for the given client root
	// tax-id. Results are ordered by creation time then ID so the matcher
	// tie-break is stable.
	FindOpenByClientRoot(ctx context.Context, rootTaxID string) ([]ShipmentLine, error)

	// FindByInvoiceNumber finds lines matched to an invoice
	FindByInvoiceNumber(ctx context.Context, invoiceNumber string) ([]ShipmentLine, error)

	// FindByLot finds lines backed by an allocation lot
	FindByLot(ctx context.Context, lotID uuid.UUID) ([]ShipmentLine, error)

	// Save creates or updates a shipment line
	Save(ctx context.Context, line *ShipmentLine) error

	// SaveAll persists a batch of lines
	SaveAll(ctx context.Context, lines []ShipmentLine) error
}
