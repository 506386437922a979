package shipment

import (
	"strings"

	"github.com/freightops/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineStatus represents the status of a shipment line
type LineStatus string

const (
	// LineStatusActive is a live shipment line
	LineStatusActive LineStatus = "ativo"
	// LineStatusCancelled is a cancelled shipment line
	LineStatusCancelled LineStatus = "cancelado"
)

// String returns the string representation of LineStatus
func (s LineStatus) String() string {
	return string(s)
}

// Validation-error codes set on a line when matching previously failed
const (
	ValidationErrorNoMatch       = "NF_SEM_CORRESPONDENCIA"
	ValidationErrorWeightMissing = "PESO_NAO_RESOLVIDO"
)

// ShipmentLine is one order's portion within a shipment, eventually linked
// to the invoice that bills it. Weight and pallet count are derived by the
// cascade, never hand-entered: once matched, the line weight equals the sum
// of computed weights over all lines of the matched invoice.
type ShipmentLine struct {
	shared.BaseAggregateRoot
	ShipmentID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	LotID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	OrderNumber     string          `gorm:"type:varchar(50);not null;index"`
	ClientTaxID     string          `gorm:"type:varchar(20);not null"`
	ClientRootTaxID string          `gorm:"type:varchar(8);not null;index"`
	ProductCode     string          `gorm:"type:varchar(50);not null;index"`
	Quantity        decimal.Decimal `gorm:"type:decimal(18,4);not null"` // allocated quantity
	Value           decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Weight          decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PalletCount     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	InvoiceNumber   *string         `gorm:"type:varchar(50);index"`
	ValidationError *string         `gorm:"type:varchar(50)"`
	Status          LineStatus      `gorm:"type:varchar(20);not null;index"`
}

// TableName returns the table name for GORM
func (ShipmentLine) TableName() string {
	return "shipment_lines"
}

// NewShipmentLine creates an active, unmatched shipment line backed by an
// allocation lot
func NewShipmentLine(shipmentID, lotID uuid.UUID, orderNumber, clientTaxID, clientRootTaxID, productCode string, quantity, value decimal.Decimal) (*ShipmentLine, error) {
	if shipmentID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SHIPMENT", "Shipment ID cannot be empty")
	}
	if lotID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_LOT", "Lot ID cannot be empty")
	}
	if strings.TrimSpace(productCode) == "" {
		return nil, shared.NewDomainError("INVALID_PRODUCT_CODE", "Product code cannot be empty")
	}
	if !quantity.IsPositive() {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}

	return &ShipmentLine{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ShipmentID:        shipmentID,
		LotID:             lotID,
		OrderNumber:       strings.TrimSpace(orderNumber),
		ClientTaxID:       clientTaxID,
		ClientRootTaxID:   clientRootTaxID,
		ProductCode:       strings.TrimSpace(productCode),
		Quantity:          quantity,
		Value:             value,
		Weight:            decimal.Zero,
		PalletCount:       decimal.Zero,
		Status:            LineStatusActive,
	}, nil
}

// IsMatched reports whether the line is already linked to an invoice
func (l *ShipmentLine) IsMatched() bool {
	return l.InvoiceNumber != nil && *l.InvoiceNumber != ""
}

// LinkInvoice records the matched invoice number and clears any previous
// validation-error code. Re-linking the same invoice is a no-op; linking a
// different one is rejected.
func (l *ShipmentLine) LinkInvoice(invoiceNumber string) error {
	if l.Status != LineStatusActive {
		return shared.NewDomainError("INVALID_STATE", "Cannot link an invoice to a cancelled shipment line")
	}
	if l.IsMatched() {
		if *l.InvoiceNumber == invoiceNumber {
			return nil
		}
		return shared.NewDomainError("ALREADY_MATCHED", "Shipment line is already linked to invoice "+*l.InvoiceNumber)
	}
	l.InvoiceNumber = &invoiceNumber
	l.ValidationError = nil
	return nil
}

// UnlinkInvoice clears the invoice linkage (invoice deactivation path)
func (l *ShipmentLine) UnlinkInvoice() {
	l.InvoiceNumber = nil
	l.Weight = decimal.Zero
	l.PalletCount = decimal.Zero
}

// FlagValidationError records a matching failure code without blocking
// further processing of the invoice
func (l *ShipmentLine) FlagValidationError(code string) {
	l.ValidationError = &code
}

// SetDerived records cascade-computed weight and pallet count
func (l *ShipmentLine) SetDerived(weight, palletCount decimal.Decimal) {
	l.Weight = weight
	l.PalletCount = palletCount
}

// Cancel cancels the shipment line, excluding it from aggregate totals
func (l *ShipmentLine) Cancel() error {
	if l.Status == LineStatusCancelled {
		return shared.NewDomainError("INVALID_STATE", "Shipment line is already cancelled")
	}
	l.Status = LineStatusCancelled
	return nil
}
