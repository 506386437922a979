package allocation

import (
	"context"

	"github.com/freightops/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Repository defines the interface for allocation-line persistence.
// The allocation-planning workflow owns creation; the reconciliation engine
// mutates lines only through the cascade and cancellation paths.
type Repository interface {
	// FindByID finds an allocation line by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*AllocationLine, error)

	// FindByLot finds all lines belonging to one allocation decision
	FindByLot(ctx context.Context, lotID uuid.UUID) ([]AllocationLine, error)

	// FindActiveByOrderAndProduct finds the single active (non-cancelled)
	// line for an order/product pair, or shared.ErrNotFound
	FindActiveByOrderAndProduct(ctx context.Context, orderNumber, productCode string) (*AllocationLine, error)

	// FindActiveByOrder finds all active lines of an order across lots
	FindActiveByOrder(ctx context.Context, orderNumber string) ([]AllocationLine, error)

	// FindByOrder finds all lines of an order, cancelled ones included
	FindByOrder(ctx context.Context, orderNumber string) ([]AllocationLine, error)

	// FindByStatus finds allocation lines by lifecycle status
	FindByStatus(ctx context.Context, status Status, filter shared.Filter) ([]AllocationLine, error)

	// Save creates or updates an allocation line. Implementations must
	// reject a save that would create a second active lot for the same
	// (order, product) pair with shared.ErrAlreadyExists.
	Save(ctx context.Context, line *AllocationLine) error

	// SaveAll persists a batch of lines from one lot
	SaveAll(ctx context.Context, lines []AllocationLine) error
}
