package importapp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/freightops/backend/internal/domain/shared"
	"github.com/freightops/backend/internal/domain/tracking"
	csvimport "github.com/freightops/backend/internal/infrastructure/import"
	"go.uber.org/zap"
)

// deliveryDateFormat is the date layout used by the carrier's CSV reports
const deliveryDateFormat = "2006-01-02"

// DeliveryImportResult represents the result of a delivery-report import
type DeliveryImportResult struct {
	TotalRows    int                  `json:"total_rows"`
	ImportedRows int                  `json:"imported_rows"`
	UpdatedRows  int                  `json:"updated_rows"`
	SkippedRows  int                  `json:"skipped_rows"`
	ErrorRows    int                  `json:"error_rows"`
	Errors       []csvimport.RowError `json:"errors,omitempty"`
	IsTruncated  bool                 `json:"is_truncated,omitempty"`
	TotalErrors  int                  `json:"total_errors,omitempty"`
}

// DeliveryImportService loads carrier delivery reports from CSV. Each row
// updates the delivery record for one invoice; the at-distribution-center
// flag feeds order status derivation.
type DeliveryImportService struct {
	deliveryRepo tracking.Repository
	logger       *zap.Logger
}

// NewDeliveryImportService creates a new DeliveryImportService
func NewDeliveryImportService(deliveryRepo tracking.Repository, logger *zap.Logger) *DeliveryImportService {
	return &DeliveryImportService{
		deliveryRepo: deliveryRepo,
		logger:       logger,
	}
}

// GetValidationRules returns the validation rules for delivery-report import
func (s *DeliveryImportService) GetValidationRules() []csvimport.FieldRule {
	return []csvimport.FieldRule{
		csvimport.Field("invoice_number").Required().String().MinLength(1).MaxLength(50).Build(),
		csvimport.Field("client_tax_id").Required().TaxID().MaxLength(20).Build(),
		csvimport.Field("at_distribution_center").Bool().Build(),
		csvimport.Field("forecast_date").Date().DateFormat(deliveryDateFormat).Build(),
		csvimport.Field("delivered_at").Date().DateFormat(deliveryDateFormat).Build(),
	}
}

// Import persists validated delivery-report rows. Rows for invoices that
// already have a record update it in place; there is no conflict mode
// because the carrier report is always the authoritative newer state.
func (s *DeliveryImportService) Import(
	ctx context.Context,
	session *csvimport.ImportSession,
	validRows []*csvimport.Row,
) (*DeliveryImportResult, error) {
	if session.State != csvimport.StateValidated {
		return nil, shared.NewDomainError("INVALID_STATE", "Import session must be in validated state")
	}
	if !session.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERRORS", "Cannot import session with validation errors")
	}

	session.UpdateState(csvimport.StateImporting)

	result := &DeliveryImportResult{
		TotalRows: len(validRows),
	}
	errors := csvimport.NewErrorCollection(100)

	for _, row := range validRows {
		select {
		case <-ctx.Done():
			session.UpdateState(csvimport.StateCancelled)
			return nil, ctx.Err()
		default:
		}

		if err := s.importRow(ctx, row, result, errors); err != nil {
			session.UpdateState(csvimport.StateFailed)
			return nil, err
		}
	}

	result.Errors = errors.Errors()
	result.IsTruncated = errors.IsTruncated()
	result.TotalErrors = errors.TotalCount()

	if result.ErrorRows > 0 {
		session.UpdateState(csvimport.StateFailed)
	} else {
		session.UpdateState(csvimport.StateCompleted)
	}

	s.logger.Info("delivery report import finished",
		zap.Int("total", result.TotalRows),
		zap.Int("imported", result.ImportedRows),
		zap.Int("updated", result.UpdatedRows),
		zap.Int("errors", result.ErrorRows))

	return result, nil
}

func (s *DeliveryImportService) importRow(
	ctx context.Context,
	row *csvimport.Row,
	result *DeliveryImportResult,
	errors *csvimport.ErrorCollection,
) error {
	invoiceNumber := row.Get("invoice_number")
	clientTaxID := row.Get("client_tax_id")

	atCD, err := parseBoolFlag(row.Get("at_distribution_center"))
	if err != nil {
		errors.Add(csvimport.NewRowError(row.LineNumber, "at_distribution_center", csvimport.ErrCodeImportInvalidType, err.Error()))
		result.ErrorRows++
		return nil
	}

	forecastDate, err := parseOptionalDate(row.Get("forecast_date"))
	if err != nil {
		errors.Add(csvimport.NewRowError(row.LineNumber, "forecast_date", csvimport.ErrCodeImportInvalidFormat, err.Error()))
		result.ErrorRows++
		return nil
	}

	deliveredAt, err := parseOptionalDate(row.Get("delivered_at"))
	if err != nil {
		errors.Add(csvimport.NewRowError(row.LineNumber, "delivered_at", csvimport.ErrCodeImportInvalidFormat, err.Error()))
		result.ErrorRows++
		return nil
	}

	record, err := s.deliveryRepo.FindByInvoiceNumber(ctx, invoiceNumber)
	if err != nil && err != shared.ErrNotFound {
		return fmt.Errorf("failed to check existing delivery record: %w", err)
	}

	if record != nil {
		record.ClientTaxID = clientTaxID
		record.AtDistributionCenter = atCD
		record.ForecastDate = forecastDate
		record.DeliveredAt = deliveredAt
		if err := s.deliveryRepo.Save(ctx, record); err != nil {
			return fmt.Errorf("failed to update delivery record: %w", err)
		}
		result.UpdatedRows++
		return nil
	}

	record, err = tracking.NewDeliveryRecord(invoiceNumber, clientTaxID)
	if err != nil {
		errors.Add(csvimport.NewRowError(row.LineNumber, "invoice_number", csvimport.ErrCodeImportValidation, err.Error()))
		result.ErrorRows++
		return nil
	}
	record.AtDistributionCenter = atCD
	record.ForecastDate = forecastDate
	record.DeliveredAt = deliveredAt

	if err := s.deliveryRepo.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to save delivery record: %w", err)
	}
	result.ImportedRows++
	return nil
}

// parseBoolFlag accepts the boolean spellings the field validator accepts
func parseBoolFlag(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "", "false", "0", "no", "n":
		return false, nil
	case "true", "1", "yes", "y":
		return true, nil
	}
	return false, fmt.Errorf("invalid boolean value: %s", value)
}

func parseOptionalDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(deliveryDateFormat, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
