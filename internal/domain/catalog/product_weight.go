package catalog

import (
	"context"
	"strings"

	"github.com/freightops/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ProductWeight is one entry of the product-weight catalog: the unit weight
// and palletization factor used to derive invoice-line weights and shipment
// pallet counts. The catalog is reference data owned by the product master;
// the reconciliation engine only reads it.
type ProductWeight struct {
	shared.BaseEntity
	ProductCode  string          `gorm:"type:varchar(50);not null;uniqueIndex"`
	Description  string          `gorm:"type:varchar(255)"`
	UnitWeight   decimal.Decimal `gorm:"type:decimal(18,4);not null"` // kg per invoiced unit
	PalletFactor decimal.Decimal `gorm:"type:decimal(18,4);not null"` // units per pallet
}

// TableName returns the table name for GORM
func (ProductWeight) TableName() string {
	return "product_weights"
}

// NewProductWeight creates a catalog entry
func NewProductWeight(productCode, description string, unitWeight, palletFactor decimal.Decimal) (*ProductWeight, error) {
	productCode = strings.TrimSpace(productCode)
	if productCode == "" {
		return nil, shared.NewDomainError("INVALID_PRODUCT_CODE", "Product code cannot be empty")
	}
	if unitWeight.IsNegative() {
		return nil, shared.NewDomainError("INVALID_UNIT_WEIGHT", "Unit weight cannot be negative")
	}
	return &ProductWeight{
		BaseEntity:   shared.NewBaseEntity(),
		ProductCode:  productCode,
		Description:  description,
		UnitWeight:   unitWeight,
		PalletFactor: palletFactor,
	}, nil
}

// HasPalletFactor reports whether the entry can contribute to pallet counts.
// A factor of zero or less would divide by zero and is treated as unresolved.
func (p *ProductWeight) HasPalletFactor() bool {
	return p.PalletFactor.IsPositive()
}

// PalletsFor returns quantity / pallet factor, or zero when the factor is unusable.
func (p *ProductWeight) PalletsFor(quantity decimal.Decimal) decimal.Decimal {
	if !p.HasPalletFactor() {
		return decimal.Zero
	}
	return quantity.Div(p.PalletFactor)
}

// WeightFor returns quantity * unit weight.
func (p *ProductWeight) WeightFor(quantity decimal.Decimal) decimal.Decimal {
	return quantity.Mul(p.UnitWeight)
}

// Repository is the read-only view of the weight catalog used by the
// matcher and cascade components. It is injected as a constructor
// dependency; there is no process-wide mutable cache.
type Repository interface {
	// FindByProductCode finds a catalog entry, returning shared.ErrNotFound when absent
	FindByProductCode(ctx context.Context, productCode string) (*ProductWeight, error)

	// FindByProductCodes loads entries for a set of product codes, keyed by code.
	// Missing codes are simply absent from the map.
	FindByProductCodes(ctx context.Context, productCodes []string) (map[string]*ProductWeight, error)

	// Save creates or updates a catalog entry (used by the import pipeline, not the engine)
	Save(ctx context.Context, entry *ProductWeight) error
}
