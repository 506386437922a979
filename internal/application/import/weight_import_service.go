package importapp

import (
	"context"
	"fmt"

	"github.com/freightops/backend/internal/domain/catalog"
	"github.com/freightops/backend/internal/domain/shared"
	csvimport "github.com/freightops/backend/internal/infrastructure/import"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ConflictMode defines how to handle conflicts during import
type ConflictMode string

const (
	// ConflictModeSkip skips rows that conflict with existing data
	ConflictModeSkip ConflictMode = "skip"
	// ConflictModeUpdate updates existing records with new data
	ConflictModeUpdate ConflictMode = "update"
	// ConflictModeFail fails the import if any conflicts are found
	ConflictModeFail ConflictMode = "fail"
)

// IsValid checks if the conflict mode is valid
func (c ConflictMode) IsValid() bool {
	switch c {
	case ConflictModeSkip, ConflictModeUpdate, ConflictModeFail:
		return true
	}
	return false
}

// WeightImportResult represents the result of a weight-catalog import
type WeightImportResult struct {
	TotalRows    int                  `json:"total_rows"`
	ImportedRows int                  `json:"imported_rows"`
	UpdatedRows  int                  `json:"updated_rows"`
	SkippedRows  int                  `json:"skipped_rows"`
	ErrorRows    int                  `json:"error_rows"`
	Errors       []csvimport.RowError `json:"errors,omitempty"`
	IsTruncated  bool                 `json:"is_truncated,omitempty"`
	TotalErrors  int                  `json:"total_errors,omitempty"`
}

// WeightImportService bulk-loads the product-weight catalog from CSV.
// The catalog feeds weight derivation for invoice lines and pallet
// counts for shipments, so entries are upserted rather than replaced.
type WeightImportService struct {
	weightRepo catalog.Repository
	logger     *zap.Logger
}

// NewWeightImportService creates a new WeightImportService
func NewWeightImportService(weightRepo catalog.Repository, logger *zap.Logger) *WeightImportService {
	return &WeightImportService{
		weightRepo: weightRepo,
		logger:     logger,
	}
}

// GetValidationRules returns the validation rules for weight-catalog import
func (s *WeightImportService) GetValidationRules() []csvimport.FieldRule {
	zero := decimal.Zero
	return []csvimport.FieldRule{
		csvimport.Field("product_code").Required().String().MinLength(1).MaxLength(50).Unique().Build(),
		csvimport.Field("description").String().MaxLength(255).Build(),
		csvimport.Field("unit_weight").Required().Decimal().MinValue(zero).Build(),
		csvimport.Field("pallet_factor").Decimal().MinValue(zero).Build(),
	}
}

// LookupUnique checks whether a catalog entry already exists for a value
func (s *WeightImportService) LookupUnique(ctx context.Context, field, value string) (bool, error) {
	if value == "" || field != "product_code" {
		return false, nil
	}
	_, err := s.weightRepo.FindByProductCode(ctx, value)
	if err != nil {
		if err == shared.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Import persists validated rows into the weight catalog
func (s *WeightImportService) Import(
	ctx context.Context,
	session *csvimport.ImportSession,
	validRows []*csvimport.Row,
	conflictMode ConflictMode,
) (*WeightImportResult, error) {
	if session.State != csvimport.StateValidated {
		return nil, shared.NewDomainError("INVALID_STATE", "Import session must be in validated state")
	}
	if !session.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERRORS", "Cannot import session with validation errors")
	}

	session.UpdateState(csvimport.StateImporting)

	result := &WeightImportResult{
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

		if err := s.importRow(ctx, row, conflictMode, result, errors); err != nil {
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

	s.logger.Info("weight catalog import finished",
		zap.Int("total", result.TotalRows),
		zap.Int("imported", result.ImportedRows),
		zap.Int("updated", result.UpdatedRows),
		zap.Int("skipped", result.SkippedRows),
		zap.Int("errors", result.ErrorRows))

	return result, nil
}

func (s *WeightImportService) importRow(
	ctx context.Context,
	row *csvimport.Row,
	conflictMode ConflictMode,
	result *WeightImportResult,
	errors *csvimport.ErrorCollection,
) error {
	productCode := row.Get("product_code")
	description := row.Get("description")

	unitWeight, err := decimal.NewFromString(row.Get("unit_weight"))
	if err != nil {
		errors.Add(csvimport.NewRowError(row.LineNumber, "unit_weight", csvimport.ErrCodeImportInvalidType, "invalid decimal value"))
		result.ErrorRows++
		return nil
	}

	palletFactor := decimal.Zero
	if v := row.Get("pallet_factor"); v != "" {
		palletFactor, err = decimal.NewFromString(v)
		if err != nil {
			errors.Add(csvimport.NewRowError(row.LineNumber, "pallet_factor", csvimport.ErrCodeImportInvalidType, "invalid decimal value"))
			result.ErrorRows++
			return nil
		}
	}

	existing, err := s.weightRepo.FindByProductCode(ctx, productCode)
	if err != nil && err != shared.ErrNotFound {
		return fmt.Errorf("failed to check existing catalog entry: %w", err)
	}

	if existing != nil {
		switch conflictMode {
		case ConflictModeSkip:
			result.SkippedRows++
			return nil
		case ConflictModeFail:
			errors.Add(csvimport.NewRowErrorWithValue(row.LineNumber, "product_code", csvimport.ErrCodeImportDuplicateInDB,
				fmt.Sprintf("catalog entry for '%s' already exists", productCode), productCode))
			result.ErrorRows++
			return nil
		case ConflictModeUpdate:
			existing.Description = description
			existing.UnitWeight = unitWeight
			existing.PalletFactor = palletFactor
			if err := s.weightRepo.Save(ctx, existing); err != nil {
				return fmt.Errorf("failed to update catalog entry: %w", err)
			}
			result.UpdatedRows++
			return nil
		}
	}

	entry, err := catalog.NewProductWeight(productCode, description, unitWeight, palletFactor)
	if err != nil {
		errors.Add(csvimport.NewRowError(row.LineNumber, "product_code", csvimport.ErrCodeImportValidation, err.Error()))
		result.ErrorRows++
		return nil
	}

	if err := s.weightRepo.Save(ctx, entry); err != nil {
		return fmt.Errorf("failed to save catalog entry: %w", err)
	}
	result.ImportedRows++
	return nil
}
