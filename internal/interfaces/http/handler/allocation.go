package handler

import (
	reconapp "github.com/freightops/backend/internal/application/reconciliation"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AllocationHandler handles allocation-lot endpoints
type AllocationHandler struct {
	BaseHandler
	cancelService *reconapp.LotCancellationService
}

// NewAllocationHandler creates a new AllocationHandler
func NewAllocationHandler(cancelService *reconapp.LotCancellationService) *AllocationHandler {
	return &AllocationHandler{
		cancelService: cancelService,
	}
}

// CancelLot cancels an allocation lot, rolling back its shipment lines and
// reopening any invoice matched against it
func (h *AllocationHandler) CancelLot(c *gin.Context) {
	lotID, err := uuid.Parse(c.Param("lot_id"))
	if err != nil {
		h.BadRequest(c, "Invalid lot ID format")
		return
	}

	report, err := h.cancelService.CancelLot(c.Request.Context(), lotID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, report)
}
