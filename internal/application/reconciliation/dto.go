package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Inconsistency categories reported per invoice. These mirror the domain
// error codes but are collected instead of aborting the run.
const (
	InconsistencyNoCandidate           = "NO_CANDIDATE_FOUND"
	InconsistencyDuplicateMovement     = "DUPLICATE_MOVEMENT"
	InconsistencyCatalogEntryMissing   = "CATALOG_ENTRY_MISSING"
	InconsistencyRateCalcUnavailable   = "RATE_CALCULATOR_UNAVAILABLE"
	InconsistencyAllocationNotFound    = "ALLOCATION_NOT_FOUND"
	InconsistencyAllocationStateFrozen = "ALLOCATION_STATE_FROZEN"
)

// Inconsistency is one non-fatal finding recorded while reconciling an invoice
type Inconsistency struct {
	Category string `json:"category"`
	Detail   string `json:"detail"`
}

// InvoiceReport summarizes the reconciliation of one invoice
type InvoiceReport struct {
	InvoiceNumber    string          `json:"invoice_number"`
	Matched          bool            `json:"matched"`
	AlreadyProcessed bool            `json:"already_processed"`
	OrderNumber      string          `json:"order_number,omitempty"`
	LotID            *uuid.UUID      `json:"lot_id,omitempty"`
	Score            int             `json:"score,omitempty"`
	Inconsistencies  []Inconsistency `json:"inconsistencies,omitempty"`
}

// AddInconsistency appends a finding to the report
func (r *InvoiceReport) AddInconsistency(category, detail string) {
	r.Inconsistencies = append(r.Inconsistencies, Inconsistency{Category: category, Detail: detail})
}

// SyncBatchRequest narrows a reconciliation run to specific invoices; an
// empty list means every pending invoice.
type SyncBatchRequest struct {
	InvoiceNumbers []string `json:"invoice_numbers"`
}

// MaxReportSamples bounds the per-invoice reports embedded in a batch
// report; counts always cover the full batch.
const MaxReportSamples = 100

// BatchError is one invoice whose reconciliation failed outright
type BatchError struct {
	InvoiceNumber string `json:"invoice_number"`
	Error         string `json:"error"`
}

// BatchReport summarizes one reconciliation run over pending invoices
type BatchReport struct {
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       time.Time       `json:"finished_at"`
	Processed        int             `json:"processed"`
	Matched          int             `json:"matched"`
	Unresolved       int             `json:"unresolved"`
	AlreadyProcessed int             `json:"already_processed"`
	Failed           int             `json:"failed"`
	Reports          []InvoiceReport `json:"reports,omitempty"`
	Errors           []BatchError    `json:"errors,omitempty"`
}

func (b *BatchReport) record(report *InvoiceReport) {
	b.Processed++
	switch {
	case report.AlreadyProcessed:
		b.AlreadyProcessed++
	case report.Matched:
		b.Matched++
	default:
		b.Unresolved++
	}
	if len(b.Reports) < MaxReportSamples {
		b.Reports = append(b.Reports, *report)
	}
}

func (b *BatchReport) recordFailure(invoiceNumber string, err error) {
	b.Processed++
	b.Failed++
	if len(b.Errors) < MaxReportSamples {
		b.Errors = append(b.Errors, BatchError{InvoiceNumber: invoiceNumber, Error: err.Error()})
	}
}

// ImportInvoiceLineRequest is one product line of an invoice import
type ImportInvoiceLineRequest struct {
	ProductCode string          `json:"product_code" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	UnitWeight  decimal.Decimal `json:"unit_weight"`
}

// ImportInvoiceRequest is the payload of the invoice-feed import endpoint
type ImportInvoiceRequest struct {
	InvoiceNumber  string                     `json:"invoice_number" binding:"required"`
	IssueDate      time.Time                  `json:"issue_date" binding:"required"`
	ClientTaxID    string                     `json:"client_tax_id" binding:"required"`
	ClientName     string                     `json:"client_name" binding:"required"`
	TotalValue     decimal.Decimal            `json:"total_value"`
	Incoterm       string                     `json:"incoterm"`
	SourceOrderRef string                     `json:"source_order_ref"`
	Post           bool                       `json:"post"`
	Lines          []ImportInvoiceLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// InvoiceResponse represents an invoice in API responses
type InvoiceResponse struct {
	ID             uuid.UUID             `json:"id"`
	InvoiceNumber  string                `json:"invoice_number"`
	IssueDate      time.Time             `json:"issue_date"`
	ClientTaxID    string                `json:"client_tax_id"`
	ClientName     string                `json:"client_name"`
	TotalValue     decimal.Decimal       `json:"total_value"`
	TotalWeight    decimal.Decimal       `json:"total_weight"`
	Incoterm       string                `json:"incoterm,omitempty"`
	SourceOrderRef string                `json:"source_order_ref,omitempty"`
	PostingStatus  string                `json:"posting_status"`
	Active         bool                  `json:"active"`
	Lines          []InvoiceLineResponse `json:"lines,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
	Version        int                   `json:"version"`
}

// InvoiceLineResponse represents an invoice line in API responses
type InvoiceLineResponse struct {
	ID             uuid.UUID       `json:"id"`
	ProductCode    string          `json:"product_code"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	UnitWeight     decimal.Decimal `json:"unit_weight"`
	ComputedWeight decimal.Decimal `json:"computed_weight"`
	Unresolved     bool            `json:"unresolved"`
}

// OrderStatusResponse is the derived multi-state status of one order
type OrderStatusResponse struct {
	OrderNumber string `json:"order_number"`
	Status      string `json:"status,omitempty"`
	Unallocated bool   `json:"unallocated"`
}
