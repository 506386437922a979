package stock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/freightops/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Movement is an immutable inventory-deduction record created when an
// invoice line is reconciled. The annotation text carries the invoice
// number, product and (when matched) lot identifier; a scheduled
// expected-vs-actual stock projection consumes it downstream.
//
// Corrections are made with compensating entries, never updates.
type Movement struct {
	shared.BaseEntity
	ProductCode   string          `gorm:"type:varchar(50);not null;index:idx_movement_product_invoice,priority:1"`
	InvoiceNumber string          `gorm:"type:varchar(50);not null;index:idx_movement_product_invoice,priority:2"`
	LotID         *uuid.UUID      `gorm:"type:uuid;index"`
	Quantity      decimal.Decimal `gorm:"type:decimal(18,4);not null"` // negative for deductions
	Annotation    string          `gorm:"type:varchar(255);not null"`
	MovementDate  time.Time       `gorm:"type:timestamptz;not null"`
}

// TableName returns the table name for GORM
func (Movement) TableName() string {
	return "stock_movements"
}

// NewDeduction creates a negative-quantity movement for an invoice line
func NewDeduction(productCode, invoiceNumber string, quantity decimal.Decimal, lotID *uuid.UUID) (*Movement, error) {
	productCode = strings.TrimSpace(productCode)
	invoiceNumber = strings.TrimSpace(invoiceNumber)
	if productCode == "" {
		return nil, shared.NewDomainError("INVALID_PRODUCT_CODE", "Product code cannot be empty")
	}
	if invoiceNumber == "" {
		return nil, shared.NewDomainError("INVALID_INVOICE_NUMBER", "Invoice number cannot be empty")
	}
	if !quantity.IsPositive() {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Deduction quantity must be positive")
	}

	annotation := fmt.Sprintf("NF %s / produto %s", invoiceNumber, productCode)
	if lotID != nil {
		annotation = fmt.Sprintf("%s / lote %s", annotation, lotID.String())
	}

	return &Movement{
		BaseEntity:    shared.NewBaseEntity(),
		ProductCode:   productCode,
		InvoiceNumber: invoiceNumber,
		LotID:         lotID,
		Quantity:      quantity.Neg(),
		Annotation:    annotation,
		MovementDate:  time.Now(),
	}, nil
}

// ReversalPrefix marks a compensating entry's annotation
const ReversalPrefix = "estorno: "

// NewReversal creates a compensating entry that undoes a prior deduction
// (invoice deactivation path)
func NewReversal(m *Movement) *Movement {
	return &Movement{
		BaseEntity:    shared.NewBaseEntity(),
		ProductCode:   m.ProductCode,
		InvoiceNumber: m.InvoiceNumber,
		LotID:         m.LotID,
		Quantity:      m.Quantity.Neg(),
		Annotation:    ReversalPrefix + m.Annotation,
		MovementDate:  time.Now(),
	}
}

// IsReversal reports whether the movement compensates a prior deduction
func (m *Movement) IsReversal() bool {
	return strings.HasPrefix(m.Annotation, ReversalPrefix)
}

// Repository defines the interface for movement persistence (append-only)
type Repository interface {
	// FindByID finds a movement by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Movement, error)

	// FindByInvoice finds all movements annotated with an invoice number
	FindByInvoice(ctx context.Context, invoiceNumber string) ([]Movement, error)

	// ExistsDeduction reports whether a non-reversed deduction already
	// exists for the (product, invoice number) pair
	ExistsDeduction(ctx context.Context, productCode, invoiceNumber string) (bool, error)

	// Create appends a movement; updates are not allowed
	Create(ctx context.Context, m *Movement) error
}
