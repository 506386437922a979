package invoice

import (
	"testing"
	"time"

	"github.com/freightops/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var issueDate = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func provisionalInvoice(t *testing.T) *Invoice {
	t.Helper()
	inv, err := NewInvoice("NF-1001", issueDate, "12.345.678/0001-95", "ACME Distribuidora", decimal.NewFromInt(1500), "CIF", "")
	require.NoError(t, err)
	return inv
}

func TestNewInvoice_ProvisionalAndActive(t *testing.T) {
	inv := provisionalInvoice(t)

	assert.Equal(t, PostingStatusProvisional, inv.PostingStatus)
	assert.True(t, inv.Active)
	assert.Equal(t, "12345678000195", inv.ClientTaxID)
	assert.True(t, inv.TotalWeight.IsZero())
}

func TestNewInvoice_Validation(t *testing.T) {
	cases := []struct {
		name   string
		number string
		taxID  string
		total  decimal.Decimal
		code   string
	}{
		{"blank number", "  ", "12345678000195", decimal.NewFromInt(1), "INVALID_INVOICE_NUMBER"},
		{"blank tax id", "NF-1", " ", decimal.NewFromInt(1), "INVALID_CLIENT_TAX_ID"},
		{"negative total", "NF-1", "12345678000195", decimal.NewFromInt(-1), "INVALID_TOTAL_VALUE"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewInvoice(tc.number, issueDate, tc.taxID, "ACME", tc.total, "", "")

			var domainErr *shared.DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, tc.code, domainErr.Code)
		})
	}
}

func TestInvoice_AddLineComputesWeight(t *testing.T) {
	inv := provisionalInvoice(t)

	line, err := inv.AddLine(" P1 ", decimal.NewFromInt(40), decimal.NewFromFloat(37.5), decimal.NewFromFloat(1.25))

	require.NoError(t, err)
	assert.Equal(t, "P1", line.ProductCode)
	assert.Equal(t, "NF-1001", line.InvoiceNumber)
	assert.True(t, line.ComputedWeight.Equal(decimal.NewFromInt(50)))
	assert.False(t, line.Unresolved)
}

func TestInvoice_AddLineValidation(t *testing.T) {
	inv := provisionalInvoice(t)

	cases := []struct {
		name     string
		product  string
		quantity decimal.Decimal
		price    decimal.Decimal
		code     string
	}{
		{"blank product", "", decimal.NewFromInt(1), decimal.Zero, "INVALID_PRODUCT_CODE"},
		{"zero quantity", "P1", decimal.Zero, decimal.Zero, "INVALID_QUANTITY"},
		{"negative price", "P1", decimal.NewFromInt(1), decimal.NewFromInt(-2), "INVALID_UNIT_PRICE"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := inv.AddLine(tc.product, tc.quantity, tc.price, decimal.Zero)

			var domainErr *shared.DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, tc.code, domainErr.Code)
		})
	}
}

func TestInvoice_PostFreezesLines(t *testing.T) {
	inv := provisionalInvoice(t)
	_, err := inv.AddLine("P1", decimal.NewFromInt(40), decimal.NewFromFloat(37.5), decimal.Zero)
	require.NoError(t, err)

	require.NoError(t, inv.Post())
	assert.Equal(t, PostingStatusPosted, inv.PostingStatus)

	_, err = inv.AddLine("P2", decimal.NewFromInt(1), decimal.Zero, decimal.Zero)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVOICE_POSTED", domainErr.Code)
}

func TestInvoice_PostEmptyRejected(t *testing.T) {
	inv := provisionalInvoice(t)

	err := inv.Post()

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVOICE_EMPTY", domainErr.Code)
}

func TestInvoice_PostTwiceRejected(t *testing.T) {
	inv := provisionalInvoice(t)
	_, err := inv.AddLine("P1", decimal.NewFromInt(1), decimal.Zero, decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, inv.Post())

	err = inv.Post()

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVOICE_POSTED", domainErr.Code)
}

func TestInvoice_DeactivateIsOneWay(t *testing.T) {
	inv := provisionalInvoice(t)

	require.NoError(t, inv.Deactivate())
	assert.False(t, inv.Active)

	err := inv.Deactivate()
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVOICE_INACTIVE", domainErr.Code)
}

func TestRootTaxID(t *testing.T) {
	assert.Equal(t, "12345678", RootTaxID("12.345.678/0001-95"))
	assert.Equal(t, "12345678", RootTaxID("12345678000195"))
	assert.Equal(t, "1234567", RootTaxID("1.234.567"))
	assert.Equal(t, "", RootTaxID(""))
}

func TestInvoiceLine_SetComputedWeight(t *testing.T) {
	inv := provisionalInvoice(t)
	line, err := inv.AddLine("P1", decimal.NewFromInt(40), decimal.NewFromFloat(37.5), decimal.Zero)
	require.NoError(t, err)
	line.MarkUnresolved()
	require.True(t, line.Unresolved)

	line.SetComputedWeight(decimal.NewFromFloat(1.25))

	assert.True(t, line.UnitWeight.Equal(decimal.NewFromFloat(1.25)))
	assert.True(t, line.ComputedWeight.Equal(decimal.NewFromInt(50)))
	assert.False(t, line.Unresolved)
}

func TestInvoiceLine_MarkUnresolvedZeroesWeight(t *testing.T) {
	inv := provisionalInvoice(t)
	line, err := inv.AddLine("P1", decimal.NewFromInt(40), decimal.Zero, decimal.NewFromFloat(1.25))
	require.NoError(t, err)

	line.MarkUnresolved()

	assert.True(t, line.Unresolved)
	assert.True(t, line.ComputedWeight.IsZero())
}
