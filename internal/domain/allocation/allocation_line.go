package allocation

import (
	"strings"

	"github.com/freightops/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the lifecycle status of an allocation line ("separação")
type Status string

const (
	// StatusForecast is a planned allocation not yet released ("PREVISAO")
	StatusForecast Status = "PREVISAO"
	// StatusOpen is a released allocation awaiting quotation ("ABERTO")
	StatusOpen Status = "ABERTO"
	// StatusQuoted means a freight quote exists for the lot ("COTADO")
	StatusQuoted Status = "COTADO"
	// StatusInvoiced means the lot has been reconciled with an invoice ("FATURADO")
	StatusInvoiced Status = "FATURADO"
	// StatusCancelled is a cancelled allocation
	StatusCancelled Status = "CANCELADO"
)

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusForecast, StatusOpen, StatusQuoted, StatusInvoiced, StatusCancelled:
		return true
	}
	return false
}

// IsActive returns true for statuses that count toward the one-active-lot invariant
func (s Status) IsActive() bool {
	return s != StatusCancelled
}

// AllocationLine earmarks a quantity of one order's product for a shipment
// plan. All lines sharing a LotID belong to one allocation decision. At most
// one active (non-cancelled) lot may exist per (order, product) at a time;
// the repository enforces the invariant on save.
type AllocationLine struct {
	shared.BaseAggregateRoot
	LotID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	OrderNumber string          `gorm:"type:varchar(50);not null;index:idx_alloc_order_product,priority:1"`
	ProductCode string          `gorm:"type:varchar(50);not null;index:idx_alloc_order_product,priority:2"`
	ClientTaxID string          `gorm:"type:varchar(20);not null;index"`
	Quantity    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Value       decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Weight      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PalletCount decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Status      Status          `gorm:"type:varchar(20);not null;index"`
	Synced      bool            `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (AllocationLine) TableName() string {
	return "allocation_lines"
}

// NewAllocationLine creates an open allocation line within a lot
func NewAllocationLine(lotID uuid.UUID, orderNumber, productCode, clientTaxID string, quantity, value decimal.Decimal) (*AllocationLine, error) {
	if lotID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_LOT", "Lot ID cannot be empty")
	}
	if strings.TrimSpace(orderNumber) == "" {
		return nil, shared.NewDomainError("INVALID_ORDER_NUMBER", "Order number cannot be empty")
	}
	if strings.TrimSpace(productCode) == "" {
		return nil, shared.NewDomainError("INVALID_PRODUCT_CODE", "Product code cannot be empty")
	}
	if !quantity.IsPositive() {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Allocated quantity must be positive")
	}

	return &AllocationLine{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		LotID:             lotID,
		OrderNumber:       strings.TrimSpace(orderNumber),
		ProductCode:       strings.TrimSpace(productCode),
		ClientTaxID:       clientTaxID,
		Quantity:          quantity,
		Value:             value,
		Weight:            decimal.Zero,
		PalletCount:       decimal.Zero,
		Status:            StatusOpen,
	}, nil
}

// canTransition reports whether the lifecycle permits moving to target.
// The lattice is forward-only with an explicit cancellation edge.
func (a *AllocationLine) canTransition(target Status) bool {
	if target == StatusCancelled {
		return a.Status != StatusCancelled
	}
	switch a.Status {
	case StatusForecast:
		return target == StatusOpen
	case StatusOpen:
		return target == StatusQuoted || target == StatusInvoiced
	case StatusQuoted:
		return target == StatusInvoiced
	}
	return false
}

// MarkQuoted records that a freight quote now covers this lot
func (a *AllocationLine) MarkQuoted() error {
	if a.Synced {
		return shared.NewDomainError("ALLOCATION_SYNCED", "Allocation line is frozen after invoice sync")
	}
	if !a.canTransition(StatusQuoted) {
		return shared.NewDomainError("INVALID_STATE", "Cannot quote allocation in status "+a.Status.String())
	}
	a.Status = StatusQuoted
	return nil
}

// MarkInvoiced transitions the line to FATURADO and freezes it. Called by
// the reconciliation engine once the lot is matched to an invoice.
func (a *AllocationLine) MarkInvoiced() error {
	if a.Synced {
		return shared.NewDomainError("ALLOCATION_SYNCED", "Allocation line is frozen after invoice sync")
	}
	if !a.canTransition(StatusInvoiced) {
		return shared.NewDomainError("INVALID_STATE", "Cannot invoice allocation in status "+a.Status.String())
	}
	a.Status = StatusInvoiced
	a.Synced = true
	return nil
}

// Cancel cancels the allocation line
func (a *AllocationLine) Cancel() error {
	if a.Synced {
		return shared.NewDomainError("ALLOCATION_SYNCED", "Cannot cancel a synced allocation line")
	}
	if !a.canTransition(StatusCancelled) {
		return shared.NewDomainError("INVALID_STATE", "Allocation line is already cancelled")
	}
	a.Status = StatusCancelled
	return nil
}

// SetDerived records cascade-computed weight and pallet count
func (a *AllocationLine) SetDerived(weight, palletCount decimal.Decimal) error {
	if a.Synced {
		return shared.NewDomainError("ALLOCATION_SYNCED", "Allocation line is frozen after invoice sync")
	}
	a.Weight = weight
	a.PalletCount = palletCount
	return nil
}
