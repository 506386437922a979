package reconciliation

import (
	"context"

	"github.com/freightops/backend/internal/domain/allocation"
	"github.com/freightops/backend/internal/domain/catalog"
	"github.com/freightops/backend/internal/domain/freight"
	"github.com/freightops/backend/internal/domain/invoice"
	"github.com/freightops/backend/internal/domain/shipment"
	"github.com/freightops/backend/internal/domain/stock"
	"github.com/freightops/backend/internal/domain/tracking"
)

// TransactionScope provides transactional access to the reconciliation
// repositories. All writes of one invoice's reconciliation happen inside a
// single Execute call so that match, allocation update, movement, cascade
// and tracking commit or roll back together.
type TransactionScope interface {
	// Execute runs fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all reconciliation
// repositories scoped to one transaction.
type TransactionalRepositories interface {
	// Invoices returns the invoice repository
	Invoices() invoice.Repository
	// Allocations returns the allocation-line repository
	Allocations() allocation.Repository
	// Shipments returns the shipment header repository
	Shipments() shipment.Repository
	// ShipmentLines returns the shipment-line repository
	ShipmentLines() shipment.LineRepository
	// Freights returns the freight repository
	Freights() freight.Repository
	// Movements returns the stock-movement repository
	Movements() stock.Repository
	// DeliveryRecords returns the delivery-record repository
	DeliveryRecords() tracking.Repository
	// Catalog returns the product-weight catalog repository
	Catalog() catalog.Repository
}

// NoOpTransactionScope executes the function against a fixed repository set
// without any transaction. Useful for tests with in-memory repositories.
type NoOpTransactionScope struct {
	repos TransactionalRepositories
}

// NewNoOpTransactionScope creates a NoOpTransactionScope over the given repositories
func NewNoOpTransactionScope(repos TransactionalRepositories) *NoOpTransactionScope {
	return &NoOpTransactionScope{repos: repos}
}

// Execute runs fn against the fixed repositories
func (s *NoOpTransactionScope) Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s.repos)
}

// Ensure NoOpTransactionScope implements TransactionScope
var _ TransactionScope = (*NoOpTransactionScope)(nil)
