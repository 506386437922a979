package handler

import (
	"net/http"
	"time"

	importapp "github.com/freightops/backend/internal/application/import"
	"github.com/freightops/backend/internal/domain/catalog"
	csvimport "github.com/freightops/backend/internal/infrastructure/import"
	"github.com/freightops/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WeightImportHandler handles product-weight catalog import endpoints
type WeightImportHandler struct {
	BaseHandler
	importService *importapp.WeightImportService
	sessionStore  csvimport.SessionStore
	validRows     *validRowsStore
	logger        *zap.Logger
}

// NewWeightImportHandler creates a new WeightImportHandler
func NewWeightImportHandler(weightRepo catalog.Repository, logger *zap.Logger) *WeightImportHandler {
	sessionStore := csvimport.NewInMemorySessionStore(15 * time.Minute)
	return &WeightImportHandler{
		importService: importapp.NewWeightImportService(weightRepo, logger),
		sessionStore:  sessionStore,
		validRows:     newValidRowsStore(sessionStore),
		logger:        logger,
	}
}

// Stop stops the background cleanup goroutine
func (h *WeightImportHandler) Stop() {
	h.validRows.Stop()
}

// WeightImportRequest represents the request to import a validated file
type WeightImportRequest struct {
	ValidationID string `json:"validation_id" binding:"required"`
	ConflictMode string `json:"conflict_mode" binding:"required,oneof=skip update fail"`
}

// ValidateWeights validates a weight-catalog CSV file without importing it
func (h *WeightImportHandler) ValidateWeights(c *gin.Context) {
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

	session := csvimport.NewImportSession(csvimport.EntityProductWeights, header.Filename, header.Size)
	rules := h.importService.GetValidationRules()

	processor := csvimport.NewImportProcessor(
		csvimport.WithUniqueLookup(func(entityType, field, value string) (bool, error) {
			return h.importService.LookupUnique(ctx, field, value)
		}),
	)

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

// ImportWeights imports a previously validated weight-catalog file
func (h *WeightImportHandler) ImportWeights(c *gin.Context) {
	ctx := c.Request.Context()

	var req WeightImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	validationID, err := uuid.Parse(req.ValidationID)
	if err != nil {
		h.BadRequest(c, "Invalid validation_id")
		return
	}

	conflictMode := importapp.ConflictMode(req.ConflictMode)
	if !conflictMode.IsValid() {
		h.BadRequest(c, "Invalid conflict_mode, must be one of: skip, update, fail")
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

	result, err := h.importService.Import(ctx, session, validRows, conflictMode)
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

// handleValidationError maps parser-level failures to API errors
func (h *BaseHandler) handleValidationError(c *gin.Context, err error) {
	switch err {
	case csvimport.ErrEmptyFile:
		h.BadRequest(c, "CSV file is empty")
	case csvimport.ErrInvalidEncoding:
		h.BadRequest(c, "CSV file has invalid encoding, must be UTF-8")
	case csvimport.ErrMissingHeader:
		h.BadRequest(c, "CSV file is missing header row")
	default:
		h.InternalError(c, "failed to validate file: "+err.Error())
	}
}

// RegisterRoutes registers weight-catalog import routes
func (h *WeightImportHandler) RegisterRoutes(rg *gin.RouterGroup) {
	imports := rg.Group("/import")
	{
		imports.POST("/weights/validate", h.ValidateWeights)
		imports.POST("/weights", h.ImportWeights)
	}
}
