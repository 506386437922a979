package catalog

import (
	"testing"

	"github.com/freightops/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProductWeight(t *testing.T) {
	entry, err := NewProductWeight(" P1 ", "Caixa 12x1kg", decimal.NewFromFloat(1.25), decimal.NewFromInt(48))

	require.NoError(t, err)
	assert.Equal(t, "P1", entry.ProductCode)
	assert.True(t, entry.UnitWeight.Equal(decimal.NewFromFloat(1.25)))
}

func TestNewProductWeight_Validation(t *testing.T) {
	_, err := NewProductWeight("  ", "", decimal.NewFromInt(1), decimal.NewFromInt(1))
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_PRODUCT_CODE", domainErr.Code)

	_, err = NewProductWeight("P1", "", decimal.NewFromInt(-1), decimal.NewFromInt(1))
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_UNIT_WEIGHT", domainErr.Code)
}

func TestProductWeight_WeightFor(t *testing.T) {
	entry, err := NewProductWeight("P1", "", decimal.NewFromFloat(1.25), decimal.NewFromInt(48))
	require.NoError(t, err)

	assert.True(t, entry.WeightFor(decimal.NewFromInt(40)).Equal(decimal.NewFromInt(50)))
}

func TestProductWeight_PalletsFor(t *testing.T) {
	entry, err := NewProductWeight("P1", "", decimal.NewFromFloat(1.25), decimal.NewFromInt(48))
	require.NoError(t, err)

	assert.True(t, entry.HasPalletFactor())
	assert.True(t, entry.PalletsFor(decimal.NewFromInt(96)).Equal(decimal.NewFromInt(2)))
}

func TestProductWeight_ZeroPalletFactorIsUnresolved(t *testing.T) {
	entry, err := NewProductWeight("P1", "", decimal.NewFromFloat(1.25), decimal.Zero)
	require.NoError(t, err)

	assert.False(t, entry.HasPalletFactor())
	assert.True(t, entry.PalletsFor(decimal.NewFromInt(96)).IsZero())
}
