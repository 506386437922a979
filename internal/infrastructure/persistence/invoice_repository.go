package persistence

import (
	"context"
	"errors"

	"github.com/freightops/backend/internal/domain/invoice"
	"github.com/freightops/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormInvoiceRepository implements invoice.Repository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// FindByID finds an invoice with its lines by ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	if err := r.db.WithContext(ctx).Preload("Lines").First(&inv, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// FindByInvoiceNumber finds an invoice with its lines by its unique number
func (r *GormInvoiceRepository) FindByInvoiceNumber(ctx context.Context, invoiceNumber string) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	if err := r.db.WithContext(ctx).Preload("Lines").
		First(&inv, "invoice_number = ?", invoiceNumber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// FindActiveByClientRoot finds active invoices whose client tax-id shares
// the given 8-digit root
func (r *GormInvoiceRepository) FindActiveByClientRoot(ctx context.Context, rootTaxID string, filter shared.Filter) ([]invoice.Invoice, error) {
	var invoices []invoice.Invoice
	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&invoice.Invoice{}).Preload("Lines").
			Where("active = ? AND client_tax_id LIKE ?", true, rootTaxID+"%"),
		filter,
	)

	if err := query.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

// FindPending finds active invoices that have no source-order reference yet
func (r *GormInvoiceRepository) FindPending(ctx context.Context, filter shared.Filter) ([]invoice.Invoice, error) {
	var invoices []invoice.Invoice
	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&invoice.Invoice{}).Preload("Lines").
			Where("active = ? AND source_order_ref = ''", true),
		filter,
	)

	if err := query.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

// ExistsByInvoiceNumber checks whether an active invoice with the number exists
func (r *GormInvoiceRepository) ExistsByInvoiceNumber(ctx context.Context, invoiceNumber string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&invoice.Invoice{}).
		Where("invoice_number = ? AND active = ?", invoiceNumber, true).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save creates or updates an invoice together with its lines
func (r *GormInvoiceRepository) Save(ctx context.Context, inv *invoice.Invoice) error {
	return r.db.WithContext(ctx).
		Session(&gorm.Session{FullSaveAssociations: true}).
		Save(inv).Error
}

// SaveLines persists updated lines without rewriting the header
func (r *GormInvoiceRepository) SaveLines(ctx context.Context, lines []invoice.InvoiceLine) error {
	if len(lines) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Save(&lines).Error
}

// CountForStatus counts invoices by posting status
func (r *GormInvoiceRepository) CountForStatus(ctx context.Context, status invoice.PostingStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&invoice.Invoice{}).
		Where("posting_status = ?", status).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies pagination and ordering to the query
func (r *GormInvoiceRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if offset, limit, ok := filter.Paginate(); ok {
		query = query.Offset(offset).Limit(limit)
	}

	orderBy := ValidateSortField(filter.OrderBy, InvoiceSortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)
	return query.Order(orderBy + " " + orderDir)
}

// Ensure GormInvoiceRepository implements invoice.Repository
var _ invoice.Repository = (*GormInvoiceRepository)(nil)
