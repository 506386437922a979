package invoice

import (
	"strings"
	"time"

	"github.com/freightops/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostingStatus represents the posting state of an invoice
type PostingStatus string

const (
	// PostingStatusProvisional marks an invoice still open for correction ("Provisório")
	PostingStatusProvisional PostingStatus = "PROVISORIO"
	// PostingStatusPosted marks a posted invoice ("Lançado"); its lines become immutable
	PostingStatusPosted PostingStatus = "LANCADO"
)

// String returns the string representation of PostingStatus
func (s PostingStatus) String() string {
	return string(s)
}

// IsValid returns true if the posting status is valid
func (s PostingStatus) IsValid() bool {
	return s == PostingStatusProvisional || s == PostingStatusPosted
}

// Invoice is the aggregate root for an externally issued sales document
// (NF): one header plus one or more product lines. Invoices are created by
// the import pipeline and are immutable once posted; `Active=false` is a
// soft delete that must cascade-remove the invoice's reconciliation effects.
type Invoice struct {
	shared.BaseAggregateRoot
	InvoiceNumber  string          `gorm:"type:varchar(50);not null;uniqueIndex"`
	IssueDate      time.Time       `gorm:"type:timestamptz;not null"`
	ClientTaxID    string          `gorm:"type:varchar(20);not null;index"`
	ClientName     string          `gorm:"type:varchar(255);not null"`
	TotalValue     decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	TotalWeight    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Incoterm       string          `gorm:"type:varchar(10)"`
	SourceOrderRef string          `gorm:"type:varchar(50);index"`
	PostingStatus  PostingStatus   `gorm:"type:varchar(20);not null;default:'PROVISORIO'"`
	Active         bool            `gorm:"not null;default:true;index"`
	Lines          []InvoiceLine   `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (Invoice) TableName() string {
	return "invoices"
}

// InvoiceLine is one product line of an invoice. ComputedWeight is derived
// from the product-weight catalog during the cascade; a line whose product
// has no catalog entry is marked Unresolved and excluded from sums.
type InvoiceLine struct {
	shared.BaseEntity
	InvoiceID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	InvoiceNumber  string          `gorm:"type:varchar(50);not null;index"`
	ProductCode    string          `gorm:"type:varchar(50);not null;index"`
	Quantity       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitWeight     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ComputedWeight decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Unresolved     bool            `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (InvoiceLine) TableName() string {
	return "invoice_lines"
}

// NewInvoice creates a provisional, active invoice header
func NewInvoice(invoiceNumber string, issueDate time.Time, clientTaxID, clientName string, totalValue decimal.Decimal, incoterm, sourceOrderRef string) (*Invoice, error) {
	invoiceNumber = strings.TrimSpace(invoiceNumber)
	if invoiceNumber == "" {
		return nil, shared.NewDomainError("INVALID_INVOICE_NUMBER", "Invoice number cannot be empty")
	}
	if strings.TrimSpace(clientTaxID) == "" {
		return nil, shared.NewDomainError("INVALID_CLIENT_TAX_ID", "Client tax-id cannot be empty")
	}
	if totalValue.IsNegative() {
		return nil, shared.NewDomainError("INVALID_TOTAL_VALUE", "Invoice total cannot be negative")
	}

	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		InvoiceNumber:     invoiceNumber,
		IssueDate:         issueDate,
		ClientTaxID:       normalizeTaxID(clientTaxID),
		ClientName:        clientName,
		TotalValue:        totalValue,
		TotalWeight:       decimal.Zero,
		Incoterm:          incoterm,
		SourceOrderRef:    sourceOrderRef,
		PostingStatus:     PostingStatusProvisional,
		Active:            true,
	}
	inv.AddDomainEvent(NewInvoiceImportedEvent(inv))
	return inv, nil
}

// AddLine appends a product line to a provisional invoice
func (i *Invoice) AddLine(productCode string, quantity, unitPrice, unitWeight decimal.Decimal) (*InvoiceLine, error) {
	if i.PostingStatus == PostingStatusPosted {
		return nil, shared.NewDomainError("INVOICE_POSTED", "Cannot modify lines of a posted invoice")
	}
	productCode = strings.TrimSpace(productCode)
	if productCode == "" {
		return nil, shared.NewDomainError("INVALID_PRODUCT_CODE", "Product code cannot be empty")
	}
	if !quantity.IsPositive() {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if unitPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_UNIT_PRICE", "Unit price cannot be negative")
	}

	line := InvoiceLine{
		BaseEntity:     shared.NewBaseEntity(),
		InvoiceID:      i.ID,
		InvoiceNumber:  i.InvoiceNumber,
		ProductCode:    productCode,
		Quantity:       quantity,
		UnitPrice:      unitPrice,
		UnitWeight:     unitWeight,
		ComputedWeight: quantity.Mul(unitWeight),
	}
	i.Lines = append(i.Lines, line)
	return &i.Lines[len(i.Lines)-1], nil
}

// Post freezes the invoice lines ("Lançado")
func (i *Invoice) Post() error {
	if i.PostingStatus == PostingStatusPosted {
		return shared.NewDomainError("INVOICE_POSTED", "Invoice is already posted")
	}
	if len(i.Lines) == 0 {
		return shared.NewDomainError("INVOICE_EMPTY", "Cannot post an invoice without lines")
	}
	i.PostingStatus = PostingStatusPosted
	return nil
}

// Deactivate soft-deletes the invoice. The orchestrator must cascade-remove
// its effects (delivery record, shipment-line linkage, pending movements).
func (i *Invoice) Deactivate() error {
	if !i.Active {
		return shared.NewDomainError("INVOICE_INACTIVE", "Invoice is already inactive")
	}
	i.Active = false
	i.AddDomainEvent(NewInvoiceDeactivatedEvent(i))
	return nil
}

// SetSourceOrderRef propagates the matched allocation's order reference
func (i *Invoice) SetSourceOrderRef(orderRef string) {
	i.SourceOrderRef = orderRef
}

// SetTotalWeight records the invoice-level weight computed by the cascade
func (i *Invoice) SetTotalWeight(weight decimal.Decimal) {
	i.TotalWeight = weight
}

// RootTaxID returns the company-identifying prefix of the client tax-id:
// the first 8 digits, shared across branches of the same legal entity.
func (i *Invoice) RootTaxID() string {
	return RootTaxID(i.ClientTaxID)
}

// RootTaxID extracts the 8-digit root from a tax identifier, ignoring
// punctuation. Shorter identifiers are returned whole.
func RootTaxID(taxID string) string {
	digits := normalizeTaxID(taxID)
	if len(digits) <= 8 {
		return digits
	}
	return digits[:8]
}

// SetComputedWeight stores the catalog-derived weight on a line
func (l *InvoiceLine) SetComputedWeight(unitWeight decimal.Decimal) {
	l.UnitWeight = unitWeight
	l.ComputedWeight = l.Quantity.Mul(unitWeight)
	l.Unresolved = false
}

// MarkUnresolved flags a line whose product has no usable catalog entry.
// Unresolved lines are excluded from weight and pallet sums.
func (l *InvoiceLine) MarkUnresolved() {
	l.ComputedWeight = decimal.Zero
	l.Unresolved = true
}

func normalizeTaxID(taxID string) string {
	var b strings.Builder
	for _, r := range taxID {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
