package csvimport

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRow(line int, data map[string]string) *Row {
	return &Row{LineNumber: line, Data: data}
}

func TestFieldValidator_RequiredField(t *testing.T) {
	rules := []FieldRule{Field("product_code").Required().Build()}
	v := NewFieldValidator(rules, 10)

	assert.False(t, v.ValidateRow(testRow(2, map[string]string{"product_code": ""})))

	errs := v.Errors().Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeImportRequiredField, errs[0].Code)
	assert.Equal(t, 2, errs[0].Row)
}

func TestFieldValidator_OptionalBlankPasses(t *testing.T) {
	rules := []FieldRule{Field("pallet_factor").Decimal().Build()}
	v := NewFieldValidator(rules, 10)

	assert.True(t, v.ValidateRow(testRow(2, map[string]string{"pallet_factor": ""})))
	assert.False(t, v.Errors().HasErrors())
}

func TestFieldValidator_TypeChecks(t *testing.T) {
	tests := []struct {
		name     string
		rule     FieldRule
		value    string
		wantOK   bool
		wantCode string
	}{
		{"valid decimal", Field("unit_weight").Decimal().Build(), "2.5", true, ""},
		{"invalid decimal", Field("unit_weight").Decimal().Build(), "abc", false, ErrCodeImportInvalidType},
		{"valid date", Field("forecast_date").Date().Build(), "2026-03-15", true, ""},
		{"invalid date", Field("forecast_date").Date().Build(), "15/03/2026", false, ErrCodeImportInvalidType},
		{"custom date format", Field("forecast_date").Date().DateFormat("02/01/2006").Build(), "15/03/2026", true, ""},
		{"valid bool", Field("at_distribution_center").Bool().Build(), "yes", true, ""},
		{"invalid bool", Field("at_distribution_center").Bool().Build(), "maybe", false, ErrCodeImportInvalidType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewFieldValidator([]FieldRule{tt.rule}, 10)
			ok := v.ValidateRow(testRow(2, map[string]string{tt.rule.Column: tt.value}))
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				require.True(t, v.Errors().HasErrors())
				assert.Equal(t, tt.wantCode, v.Errors().Errors()[0].Code)
			}
		})
	}
}

func TestFieldValidator_TaxID(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"12345678000190", true},
		{"12.345.678/0001-90", true},
		{"12345678901", true},
		{"123.456.789-01", true},
		{"12345", false},
		{"12.345.678/0001-9X", false},
		{"123456789012345", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			v := NewFieldValidator([]FieldRule{Field("client_tax_id").TaxID().Build()}, 10)
			ok := v.ValidateRow(testRow(2, map[string]string{"client_tax_id": tt.value}))
			assert.Equal(t, tt.valid, ok)
			if !tt.valid {
				assert.Equal(t, ErrCodeImportInvalidTaxID, v.Errors().Errors()[0].Code)
			}
		})
	}
}

func TestFieldValidator_LengthBounds(t *testing.T) {
	rules := []FieldRule{Field("product_code").MinLength(2).MaxLength(5).Build()}

	v := NewFieldValidator(rules, 10)
	assert.True(t, v.ValidateRow(testRow(2, map[string]string{"product_code": "P12"})))

	assert.False(t, v.ValidateRow(testRow(3, map[string]string{"product_code": "P"})))
	assert.False(t, v.ValidateRow(testRow(4, map[string]string{"product_code": "P12345"})))

	errs := v.Errors().Errors()
	require.Len(t, errs, 2)
	assert.Equal(t, ErrCodeImportInvalidLength, errs[0].Code)
}

func TestFieldValidator_MinValue(t *testing.T) {
	rules := []FieldRule{Field("unit_weight").Decimal().MinValue(decimal.NewFromFloat(0.001)).Build()}
	v := NewFieldValidator(rules, 10)

	assert.True(t, v.ValidateRow(testRow(2, map[string]string{"unit_weight": "2.5"})))
	assert.False(t, v.ValidateRow(testRow(3, map[string]string{"unit_weight": "0"})))

	errs := v.Errors().Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeImportInvalidRange, errs[0].Code)
	assert.Equal(t, "0", errs[0].Value)
}

func TestFieldValidator_DuplicateInFile(t *testing.T) {
	rules := []FieldRule{Field("product_code").Required().Unique().Build()}
	v := NewFieldValidator(rules, 10)

	assert.True(t, v.ValidateRow(testRow(2, map[string]string{"product_code": "P1"})))
	assert.True(t, v.ValidateRow(testRow(3, map[string]string{"product_code": "P2"})))
	assert.False(t, v.ValidateRow(testRow(4, map[string]string{"product_code": "P1"})))

	errs := v.Errors().Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeImportDuplicateInFile, errs[0].Code)
	assert.Contains(t, errs[0].Message, "first seen in row 2")
}

func TestFieldValidator_Reset(t *testing.T) {
	rules := []FieldRule{Field("product_code").Unique().Build()}
	v := NewFieldValidator(rules, 10)

	require.True(t, v.ValidateRow(testRow(2, map[string]string{"product_code": "P1"})))
	require.False(t, v.ValidateRow(testRow(3, map[string]string{"product_code": "P1"})))

	v.Reset()
	assert.False(t, v.Errors().HasErrors())
	assert.True(t, v.ValidateRow(testRow(2, map[string]string{"product_code": "P1"})))
}

func TestErrorCollection_Truncation(t *testing.T) {
	ec := NewErrorCollection(3)
	for i := 1; i <= 5; i++ {
		ec.Add(NewRowError(i, "product_code", ErrCodeImportValidation, "bad"))
	}

	assert.Len(t, ec.Errors(), 3)
	assert.Equal(t, 5, ec.TotalCount())
	assert.True(t, ec.IsTruncated())
}
