package invoice

import (
	"context"

	"github.com/freightops/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Repository defines the interface for invoice persistence
type Repository interface {
	// FindByID finds an invoice by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindByInvoiceNumber finds an invoice (with lines) by its unique number
	FindByInvoiceNumber(ctx context.Context, invoiceNumber string) (*Invoice, error)

	// FindActiveByClientRoot finds active invoices for a client root tax-id
	FindActiveByClientRoot(ctx context.Context, rootTaxID string, filter shared.Filter) ([]Invoice, error)

	// FindPending finds active invoices that have no source-order reference yet
	// (never reconciled or reconciliation found no match)
	FindPending(ctx context.Context, filter shared.Filter) ([]Invoice, error)

	// ExistsByInvoiceNumber checks whether an active invoice with the number exists
	ExistsByInvoiceNumber(ctx context.Context, invoiceNumber string) (bool, error)

	// Save creates or updates an invoice together with its lines
	Save(ctx context.Context, inv *Invoice) error

	// SaveLines persists updated line weights without rewriting the header
	SaveLines(ctx context.Context, lines []InvoiceLine) error

	// CountForStatus counts invoices by posting status
	CountForStatus(ctx context.Context, status PostingStatus) (int64, error)
}
