package persistence

import (
	"strings"
)

// Sort parameters come straight from query strings and end up in ORDER
// BY clauses, so both the direction and the column name are normalized
// against fixed allowlists before any query is built.

// ValidateSortOrder normalizes orderDir to ASC or DESC, defaulting to
// DESC for anything unrecognized.
func ValidateSortOrder(orderDir string) string {
	if strings.EqualFold(strings.TrimSpace(orderDir), "asc") {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField returns sortField when it is allowlisted, otherwise
// defaultField.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	if trimmed := strings.TrimSpace(sortField); allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// CommonSortFields contains fields common to most entities
var CommonSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

// InvoiceSortFields contains allowed sort fields for invoices
var InvoiceSortFields = map[string]bool{
	"id":             true,
	"created_at":     true,
	"updated_at":     true,
	"invoice_number": true,
	"issue_date":     true,
	"client_tax_id":  true,
	"client_name":    true,
	"total_value":    true,
	"total_weight":   true,
	"posting_status": true,
}

// AllocationSortFields contains allowed sort fields for allocation lines
var AllocationSortFields = map[string]bool{
	"id":            true,
	"created_at":    true,
	"updated_at":    true,
	"lot_id":        true,
	"order_number":  true,
	"product_code":  true,
	"client_tax_id": true,
	"quantity":      true,
	"status":        true,
}

// ShipmentSortFields contains allowed sort fields for shipments
var ShipmentSortFields = map[string]bool{
	"id":              true,
	"created_at":      true,
	"updated_at":      true,
	"shipment_number": true,
	"carrier_ref":     true,
	"status":          true,
	"departure_date":  true,
	"total_weight":    true,
	"total_value":     true,
}

// DeliveryRecordSortFields contains allowed sort fields for delivery records
var DeliveryRecordSortFields = map[string]bool{
	"id":             true,
	"created_at":     true,
	"updated_at":     true,
	"invoice_number": true,
	"client_tax_id":  true,
	"forecast_date":  true,
	"delivered_at":   true,
}
