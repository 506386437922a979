package shared

import "fmt"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// WithDetails wraps the error with additional context. The returned error
// still matches the sentinel under errors.Is.
func (e *DomainError) WithDetails(details string) error {
	return fmt.Errorf("%w: %s", e, details)
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
)

// Reconciliation error taxonomy. These are informational or recoverable
// conditions collected into per-invoice processing reports; only
// ErrCascadeWriteFailure aborts the invoice.
var (
	ErrNoCandidateFound          = NewDomainError("NO_CANDIDATE_FOUND", "No shipment line candidate matched the invoice line")
	ErrDuplicateMovement         = NewDomainError("DUPLICATE_MOVEMENT", "A stock movement already exists for this invoice and product")
	ErrCatalogEntryMissing       = NewDomainError("CATALOG_ENTRY_MISSING", "No weight catalog entry for product")
	ErrRateCalculatorUnavailable = NewDomainError("RATE_CALCULATOR_UNAVAILABLE", "Freight rate calculator did not answer")
	ErrLockTimeout               = NewDomainError("LOCK_TIMEOUT", "Timed out acquiring the per-order lock")
	ErrCascadeWriteFailure       = NewDomainError("CASCADE_WRITE_FAILURE", "A cascade write left dependent records inconsistent")
	ErrUnallocated               = NewDomainError("UNALLOCATED", "Order has no active allocation lot")
)
