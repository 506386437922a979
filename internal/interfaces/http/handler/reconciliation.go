package handler

import (
	reconapp "github.com/freightops/backend/internal/application/reconciliation"
	"github.com/gin-gonic/gin"
)

// ReconciliationHandler handles manual reconciliation sync endpoints
type ReconciliationHandler struct {
	BaseHandler
	reconService *reconapp.ReconciliationService
	reports      *reconapp.BatchReportStore
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(reconService *reconapp.ReconciliationService, reports *reconapp.BatchReportStore) *ReconciliationHandler {
	return &ReconciliationHandler{
		reconService: reconService,
		reports:      reports,
	}
}

// SyncBatch runs one reconciliation pass and returns the batch report.
// An optional body narrows the run to the given invoice numbers; with no
// body (or an empty list) every pending invoice is processed.
func (h *ReconciliationHandler) SyncBatch(c *gin.Context) {
	var req reconapp.SyncBatchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BadRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}

	report, err := h.reconService.ProcessBatch(c.Request.Context(), req.InvoiceNumbers)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.reports.Record(report)
	h.Success(c, report)
}

// LatestReport returns the most recent batch report, scheduler runs included
func (h *ReconciliationHandler) LatestReport(c *gin.Context) {
	report, ok := h.reports.Latest()
	if !ok {
		h.NotFound(c, "No reconciliation run has finished yet")
		return
	}

	h.Success(c, report)
}

// ListReports returns the retained batch reports, most recent first
func (h *ReconciliationHandler) ListReports(c *gin.Context) {
	h.Success(c, h.reports.Recent())
}

// SyncInvoice reconciles a single invoice by number
func (h *ReconciliationHandler) SyncInvoice(c *gin.Context) {
	invoiceNumber := c.Param("invoice_number")
	if invoiceNumber == "" {
		h.BadRequest(c, "Invoice number is required")
		return
	}

	report, err := h.reconService.ProcessInvoice(c.Request.Context(), invoiceNumber)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, report)
}
