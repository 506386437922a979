// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"

	"gorm.io/gorm"
)

// GormBacklogMetricsProvider implements BacklogMetricsProvider using GORM.
// It queries the invoices and shipment_lines tables directly for aggregated
// backlog counts.
type GormBacklogMetricsProvider struct {
	db *gorm.DB
}

// NewGormBacklogMetricsProvider creates a new GormBacklogMetricsProvider.
func NewGormBacklogMetricsProvider(db *gorm.DB) *GormBacklogMetricsProvider {
	return &GormBacklogMetricsProvider{db: db}
}

// CountPendingInvoices returns the number of active invoices that have not
// been reconciled to a source order yet.
func (p *GormBacklogMetricsProvider) CountPendingInvoices(ctx context.Context) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Table("invoices").
		Where("active = ? AND source_order_ref = ''", true).
		Count(&count).Error

	return count, err
}

// CountOpenShipmentLines returns the number of active shipment lines on
// active shipments that are still waiting for an invoice match.
func (p *GormBacklogMetricsProvider) CountOpenShipmentLines(ctx context.Context) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Table("shipment_lines").
		Joins("JOIN shipments ON shipments.id = shipment_lines.shipment_id").
		Where("shipment_lines.invoice_number IS NULL").
		Where("shipment_lines.status = ?", "ativo").
		Where("shipments.status = ?", "ativo").
		Count(&count).Error

	return count, err
}
