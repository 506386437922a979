package handler

import (
	"net/http"
	"time"

	importapp "github.com/freightops/backend/internal/application/import"
	"github.com/freightops/backend/internal/domain/tracking"
	csvimport "github.com/freightops/backend/internal/infrastructure/import"
	"github.com/freightops/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeliveryImportHandler handles carrier delivery-report import endpoints
type DeliveryImportHandler struct {
	BaseHandler
	importService *importapp.DeliveryImportService
	sessionStore  csvimport.SessionStore
	validRows     *validRowsStore
	logger        *zap.Logger
}

// NewDeliveryImportHandler creates a new DeliveryImportHandler
func NewDeliveryImportHandler(deliveryRepo tracking.Repository, logger *zap.Logger) *DeliveryImportHandler {
	sessionStore := csvimport.NewInMemorySessionStore(15 * time.Minute)
	return &DeliveryImportHandler{
		importService: importapp.NewDeliveryImportService(deliveryRepo, logger),
		sessionStore:  sessionStore,
		validRows:     newValidRowsStore(sessionStore),
		logger:        logger,
	}
}

// Stop stops the background cleanup goroutine
func (h *DeliveryImportHandler) Stop() {
	h.validRows.Stop()
}

// DeliveryImportRequest represents the request to import a validated file
type DeliveryImportRequest struct {
	ValidationID string `json:"validation_id" binding:"required"`
}

// ValidateDeliveries validates a delivery-report CSV file without importing it
func (h *DeliveryImportHandler) ValidateDeliveries(c *gin.Context) {
	ctx := c.Request.Context()

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.BadRequest(c, "file is required")
		return
	}
	defer file.Close()

	if header.Size > maxImportFileSize {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeValidation, "file exceeds maximum size of 10MB")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType != "" && contentType != "text/csv" && contentType != "application/octet-stream" &&
		contentType != "text/plain" && contentType != "application/vnd.ms-excel" {
		h.Error(c, http.StatusUnsupportedMediaType, dto.ErrCodeValidation, "file must be a CSV file")
		return
	}

	session := csvimport.NewImportSession(csvimport.EntityDeliveryRecords, header.Filename, header.Size)
	rules := h.importService.GetValidationRules()

	processor := csvimport.NewImportProcessor()

	result, err := processor.Validate(ctx, session, file, rules)
	if err != nil {
		h.handleValidationError(c, err)
		return
	}

	if err := h.validRows.Collect(file, session.ID, result); err != nil {
		h.logger.Warn("failed to collect valid rows", zap.Error(err))
		h.InternalError(c, "Failed to process file")
		return
	}

	if err := h.sessionStore.Save(session); err != nil {
		h.InternalError(c, "failed to save import session")
		return
	}

	h.Success(c, newValidationResponse(result))
}

// ImportDeliveries imports a previously validated delivery report
func (h *DeliveryImportHandler) ImportDeliveries(c *gin.Context) {
	ctx := c.Request.Context()

	var req DeliveryImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	validationID, err := uuid.Parse(req.ValidationID)
	if err != nil {
		h.BadRequest(c, "Invalid validation_id")
		return
	}

	session, err := h.sessionStore.Get(validationID)
	if err != nil {
		h.InternalError(c, "failed to retrieve session")
		return
	}
	if session == nil {
		h.NotFound(c, "Import session not found or expired")
		return
	}

	if session.State != csvimport.StateValidated {
		h.BadRequest(c, "Session must be validated before import. Current state: "+string(session.State))
		return
	}

	validRows := h.validRows.Get(validationID)
	if len(validRows) == 0 {
		h.BadRequest(c, "No valid rows found for import. Please re-validate the file.")
		return
	}

	result, err := h.importService.Import(ctx, session, validRows)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.validRows.Delete(validationID)
	if err := h.sessionStore.Save(session); err != nil {
		h.logger.Warn("failed to persist import session state", zap.Error(err))
	}

	h.Success(c, result)
}

// RegisterRoutes registers delivery-report import routes
func (h *DeliveryImportHandler) RegisterRoutes(rg *gin.RouterGroup) {
	imports := rg.Group("/import")
	{
		imports.POST("/deliveries/validate", h.ValidateDeliveries)
		imports.POST("/deliveries", h.ImportDeliveries)
	}
}
