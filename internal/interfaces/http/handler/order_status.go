package handler

import (
	reconapp "github.com/freightops/backend/internal/application/reconciliation"
	"github.com/gin-gonic/gin"
)

// OrderStatusHandler handles order status derivation endpoints
type OrderStatusHandler struct {
	BaseHandler
	statusService *reconapp.StatusService
}

// NewOrderStatusHandler creates a new OrderStatusHandler
func NewOrderStatusHandler(statusService *reconapp.StatusService) *OrderStatusHandler {
	return &OrderStatusHandler{
		statusService: statusService,
	}
}

// GetOrderStatus derives the current multi-state status of an order from
// its allocation lines, matched invoices and delivery records.
func (h *OrderStatusHandler) GetOrderStatus(c *gin.Context) {
	orderNumber := c.Param("order_number")
	if orderNumber == "" {
		h.BadRequest(c, "Order number is required")
		return
	}

	status, err := h.statusService.GetOrderStatus(c.Request.Context(), orderNumber)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, status)
}
