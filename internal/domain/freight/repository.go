package freight

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository defines the interface for freight persistence
type Repository interface {
	// FindByID finds a freight record by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Freight, error)

	// FindByShipmentAndClient finds the freight for a (shipment, client) pair
	FindByShipmentAndClient(ctx context.Context, shipmentID uuid.UUID, clientTaxID string) (*Freight, error)

	// FindByShipment finds all freight records of a shipment
	FindByShipment(ctx context.Context, shipmentID uuid.UUID) ([]Freight, error)

	// FindOpenByClient finds freight still open for requoting for a client
	FindOpenByClient(ctx context.Context, clientTaxID string) ([]Freight, error)

	// ExistsOpenForLot reports whether a non-cancelled freight covers the
	// shipment backing the given allocation lot (status derivation rule 4)
	ExistsOpenForLot(ctx context.Context, lotID uuid.UUID) (bool, error)

	// Save creates or updates a freight record
	Save(ctx context.Context, f *Freight) error
}

// QuoteRequest carries the inputs of one rate-calculator call
type QuoteRequest struct {
	Weight    decimal.Decimal
	Value     decimal.Decimal
	RateTable RateTableParams
}

// RateCalculator is the external freight-rate calculator. Pricing policy
// lives entirely behind this port; calls must observe the context deadline
// and a calculator failure leaves the prior quoted value untouched.
type RateCalculator interface {
	Quote(ctx context.Context, req QuoteRequest) (decimal.Decimal, error)
}
