package persistence

import (
	"context"

	apprecon "github.com/freightops/backend/internal/application/reconciliation"
	"github.com/freightops/backend/internal/domain/allocation"
	"github.com/freightops/backend/internal/domain/catalog"
	"github.com/freightops/backend/internal/domain/freight"
	"github.com/freightops/backend/internal/domain/invoice"
	"github.com/freightops/backend/internal/domain/shipment"
	"github.com/freightops/backend/internal/domain/stock"
	"github.com/freightops/backend/internal/domain/tracking"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// All writes of one invoice's reconciliation run inside one Execute call.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos apprecon.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := &gormTransactionalRepositories{tx: tx}
		return fn(repos)
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// Invoices returns the invoice repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Invoices() invoice.Repository {
	return NewGormInvoiceRepository(r.tx)
}

// Allocations returns the allocation-line repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Allocations() allocation.Repository {
	return NewGormAllocationRepository(r.tx)
}

// Shipments returns the shipment header repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Shipments() shipment.Repository {
	return NewGormShipmentRepository(r.tx)
}

// ShipmentLines returns the shipment-line repository scoped to the current transaction.
func (r *gormTransactionalRepositories) ShipmentLines() shipment.LineRepository {
	return NewGormShipmentLineRepository(r.tx)
}

// Freights returns the freight repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Freights() freight.Repository {
	return NewGormFreightRepository(r.tx)
}

// Movements returns the stock-movement repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Movements() stock.Repository {
	return NewGormMovementRepository(r.tx)
}

// DeliveryRecords returns the delivery-record repository scoped to the current transaction.
func (r *gormTransactionalRepositories) DeliveryRecords() tracking.Repository {
	return NewGormDeliveryRecordRepository(r.tx)
}

// Catalog returns the product-weight catalog repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Catalog() catalog.Repository {
	return NewGormProductWeightRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ apprecon.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ apprecon.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
