package invoice

import (
	"github.com/freightops/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event type constants
const (
	EventTypeInvoiceImported     = "invoice.imported"
	EventTypeInvoiceDeactivated  = "invoice.deactivated"
	EventTypeInvoiceReconciled   = "invoice.reconciled"
	EventTypeInvoiceWeightSynced = "invoice.weight_synced"
)

// AggregateTypeInvoice is the aggregate type for invoice events
const AggregateTypeInvoice = "Invoice"

// InvoiceImportedEvent is raised when an invoice enters the store
type InvoiceImportedEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber  string          `json:"invoice_number"`
	ClientTaxID    string          `json:"client_tax_id"`
	SourceOrderRef string          `json:"source_order_ref"`
	TotalValue     decimal.Decimal `json:"total_value"`
}

// NewInvoiceImportedEvent creates a new InvoiceImportedEvent
func NewInvoiceImportedEvent(inv *Invoice) *InvoiceImportedEvent {
	return &InvoiceImportedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceImported, AggregateTypeInvoice, inv.ID),
		InvoiceNumber:   inv.InvoiceNumber,
		ClientTaxID:     inv.ClientTaxID,
		SourceOrderRef:  inv.SourceOrderRef,
		TotalValue:      inv.TotalValue,
	}
}

// InvoiceDeactivatedEvent is raised when an invoice is soft-deleted
type InvoiceDeactivatedEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string `json:"invoice_number"`
}

// NewInvoiceDeactivatedEvent creates a new InvoiceDeactivatedEvent
func NewInvoiceDeactivatedEvent(inv *Invoice) *InvoiceDeactivatedEvent {
	return &InvoiceDeactivatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceDeactivated, AggregateTypeInvoice, inv.ID),
		InvoiceNumber:   inv.InvoiceNumber,
	}
}

// InvoiceReconciledEvent is raised when an invoice finishes a reconciliation pass
type InvoiceReconciledEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string `json:"invoice_number"`
	Matched       bool   `json:"matched"`
}

// NewInvoiceReconciledEvent creates a new InvoiceReconciledEvent
func NewInvoiceReconciledEvent(inv *Invoice, matched bool) *InvoiceReconciledEvent {
	return &InvoiceReconciledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceReconciled, AggregateTypeInvoice, inv.ID),
		InvoiceNumber:   inv.InvoiceNumber,
		Matched:         matched,
	}
}
