package handler

import (
	"errors"

	reconapp "github.com/freightops/backend/internal/application/reconciliation"
	"github.com/freightops/backend/internal/interfaces/http/dto"
	"github.com/freightops/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// InvoiceHandler handles invoice-feed API endpoints
type InvoiceHandler struct {
	BaseHandler
	ingestService *reconapp.InvoiceIngestService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(ingestService *reconapp.InvoiceIngestService) *InvoiceHandler {
	return &InvoiceHandler{
		ingestService: ingestService,
	}
}

// Import ingests one invoice from the upstream billing feed. Re-posting an
// invoice number that already exists is rejected with ALREADY_EXISTS.
func (h *InvoiceHandler) Import(c *gin.Context) {
	var req reconapp.ImportInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			middleware.HandleValidationError(c, err)
			return
		}
		h.BadRequest(c, err.Error())
		return
	}

	inv, err := h.ingestService.ImportInvoice(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, inv)
}

// GetByNumber retrieves an invoice with its lines
func (h *InvoiceHandler) GetByNumber(c *gin.Context) {
	invoiceNumber := c.Param("invoice_number")
	if invoiceNumber == "" {
		h.BadRequest(c, "Invoice number is required")
		return
	}

	inv, err := h.ingestService.GetInvoice(c.Request.Context(), invoiceNumber)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, inv)
}

// Deactivate marks an invoice as cancelled upstream. The next sync run
// unwinds its allocation marks, stock deductions and freight entries.
func (h *InvoiceHandler) Deactivate(c *gin.Context) {
	invoiceNumber := c.Param("invoice_number")
	if invoiceNumber == "" {
		h.BadRequest(c, "Invoice number is required")
		return
	}

	inv, err := h.ingestService.DeactivateInvoice(c.Request.Context(), invoiceNumber)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, inv)
}

// ListPending lists active invoices still waiting for an order match
func (h *InvoiceHandler) ListPending(c *gin.Context) {
	req := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	invoices, err := h.ingestService.ListPending(c.Request.Context(), req.ToFilter())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, invoices)
}
