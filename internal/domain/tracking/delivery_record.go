package tracking

import (
	"context"
	"strings"
	"time"

	"github.com/freightops/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// DeliveryRecord mirrors the delivery-monitoring collaborator's state for
// one invoice. The engine only reads the at-distribution-center flag (for
// status derivation) and deletes the record when an invoice is deactivated;
// everything else belongs to the collaborator.
type DeliveryRecord struct {
	shared.BaseEntity
	InvoiceNumber        string     `gorm:"type:varchar(50);not null;uniqueIndex"`
	ClientTaxID          string     `gorm:"type:varchar(20);not null;index"`
	AtDistributionCenter bool       `gorm:"not null;default:false"`
	ForecastDate         *time.Time `gorm:"type:timestamptz"`
	DeliveredAt          *time.Time `gorm:"type:timestamptz"`
}

// TableName returns the table name for GORM
func (DeliveryRecord) TableName() string {
	return "delivery_records"
}

// NewDeliveryRecord creates a delivery record for an invoice
func NewDeliveryRecord(invoiceNumber, clientTaxID string) (*DeliveryRecord, error) {
	if strings.TrimSpace(invoiceNumber) == "" {
		return nil, shared.NewDomainError("INVALID_INVOICE_NUMBER", "Invoice number cannot be empty")
	}
	return &DeliveryRecord{
		BaseEntity:    shared.NewBaseEntity(),
		InvoiceNumber: strings.TrimSpace(invoiceNumber),
		ClientTaxID:   clientTaxID,
	}, nil
}

// FlagAtDistributionCenter marks the invoice as returned to the
// distribution center ("NF no CD")
func (r *DeliveryRecord) FlagAtDistributionCenter() {
	r.AtDistributionCenter = true
}

// Repository defines the interface for delivery-record persistence
type Repository interface {
	// FindByInvoiceNumber finds the record for an invoice
	FindByInvoiceNumber(ctx context.Context, invoiceNumber string) (*DeliveryRecord, error)

	// FindAtDistributionCenter finds records flagged as returned to the CD
	FindAtDistributionCenter(ctx context.Context, filter shared.Filter) ([]DeliveryRecord, error)

	// Save creates or updates a delivery record
	Save(ctx context.Context, r *DeliveryRecord) error

	// DeleteByInvoiceNumber removes the record for a deactivated invoice.
	// Deleting an absent record is a no-op.
	DeleteByInvoiceNumber(ctx context.Context, invoiceNumber string) error

	// FindByID finds a record by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*DeliveryRecord, error)
}

// DeliveryMonitor is the external collaborator that owns schedule and
// delivery data. Failures are reported as inconsistencies, never fatal to
// the invoice being processed.
type DeliveryMonitor interface {
	SyncDeliveryRecord(ctx context.Context, invoiceNumber string) error
}

// FreightLauncher is the external collaborator that auto-launches freight
// after all of a client's invoices in a batch are processed.
type FreightLauncher interface {
	TryAutoLaunchFreight(ctx context.Context, clientTaxID string) error
}
