package dto

import (
	"net/http"
	"time"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired is used when a required field is missing
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	// ErrCodeValidationFormat is used when a field has invalid format
	ErrCodeValidationFormat = "ERR_VALIDATION_FORMAT"
	// ErrCodeValidationRange is used when a value is out of range
	ErrCodeValidationRange = "ERR_VALIDATION_RANGE"
	// ErrCodeValidationLength is used when a field length is invalid
	ErrCodeValidationLength = "ERR_VALIDATION_LENGTH"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeAlreadyExists is used when trying to create a duplicate resource
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
	// ErrCodeConcurrencyConflict is used when optimistic locking fails
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
)

// Business rule error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeBusinessRule is used for generic business rule violations
	ErrCodeBusinessRule = "ERR_BUSINESS_RULE"
	// ErrCodeNoCandidateFound is used when no shipment line matches an invoice line
	ErrCodeNoCandidateFound = "ERR_NO_CANDIDATE_FOUND"
	// ErrCodeDuplicateMovement is used when a stock deduction already exists
	ErrCodeDuplicateMovement = "ERR_DUPLICATE_MOVEMENT"
	// ErrCodeCatalogEntryMissing is used when a product has no weight catalog entry
	ErrCodeCatalogEntryMissing = "ERR_CATALOG_ENTRY_MISSING"
	// ErrCodeUnallocated is used when an order has no active allocation lot
	ErrCodeUnallocated = "ERR_UNALLOCATED"
	// ErrCodeCascadeWriteFailure is used when a cascade left dependent records inconsistent
	ErrCodeCascadeWriteFailure = "ERR_CASCADE_WRITE_FAILURE"
)

// Dependency error codes
const (
	// ErrCodeLockTimeout is used when the per-order lock could not be acquired in time
	ErrCodeLockTimeout = "ERR_LOCK_TIMEOUT"
	// ErrCodeRateCalculatorUnavailable is used when the freight rate calculator did not answer
	ErrCodeRateCalculatorUnavailable = "ERR_RATE_CALCULATOR_UNAVAILABLE"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	// ErrCodeRequestTooLarge is used when the request body exceeds the configured limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Authorization error codes
const (
	// ErrCodeUnauthorized is used when the request lacks valid credentials
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeForbidden is used when the caller may not perform the operation
	ErrCodeForbidden = "ERR_FORBIDDEN"
)

// Rate limiting error codes
const (
	// ErrCodeRateLimited is used when rate limit is exceeded
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
	// ErrCodeTooManyRequests is an alias for rate limiting
	ErrCodeTooManyRequests = "ERR_TOO_MANY_REQUESTS"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,
	ErrCodeValidationRange:    http.StatusBadRequest,
	ErrCodeValidationLength:   http.StatusBadRequest,

	// Resource errors
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState:        http.StatusUnprocessableEntity,
	ErrCodeBusinessRule:        http.StatusUnprocessableEntity,
	ErrCodeNoCandidateFound:    http.StatusUnprocessableEntity,
	ErrCodeCatalogEntryMissing: http.StatusUnprocessableEntity,
	ErrCodeUnallocated:         http.StatusUnprocessableEntity,
	ErrCodeDuplicateMovement:   http.StatusConflict,
	ErrCodeCascadeWriteFailure: http.StatusInternalServerError,

	// Dependency errors
	ErrCodeLockTimeout:               http.StatusConflict,
	ErrCodeRateCalculatorUnavailable: http.StatusBadGateway,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	// Authorization errors
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	// Rate limiting -> 429 Too Many Requests
	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodeTooManyRequests: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// LegacyErrorCodeMapping maps domain error codes to the standardized codes
// This keeps domain errors decoupled from the HTTP surface
var LegacyErrorCodeMapping = map[string]string{
	"NOT_FOUND":                   ErrCodeNotFound,
	"ALREADY_EXISTS":              ErrCodeAlreadyExists,
	"INVALID_INPUT":               ErrCodeInvalidInput,
	"INVALID_STATE":               ErrCodeInvalidState,
	"CONCURRENCY_CONFLICT":        ErrCodeConcurrencyConflict,
	"NO_CANDIDATE_FOUND":          ErrCodeNoCandidateFound,
	"DUPLICATE_MOVEMENT":          ErrCodeDuplicateMovement,
	"CATALOG_ENTRY_MISSING":       ErrCodeCatalogEntryMissing,
	"RATE_CALCULATOR_UNAVAILABLE": ErrCodeRateCalculatorUnavailable,
	"LOCK_TIMEOUT":                ErrCodeLockTimeout,
	"CASCADE_WRITE_FAILURE":       ErrCodeCascadeWriteFailure,
	"UNALLOCATED":                 ErrCodeUnallocated,
	"VALIDATION_ERROR":            ErrCodeValidation,
	"BAD_REQUEST":                 ErrCodeBadRequest,
	"INTERNAL_ERROR":              ErrCodeInternal,

	// Aggregate constructor and state-guard codes
	"INVALID_INVOICE_NUMBER":  ErrCodeValidation,
	"INVALID_CLIENT_TAX_ID":   ErrCodeValidation,
	"INVALID_PRODUCT_CODE":    ErrCodeValidation,
	"INVALID_QUANTITY":        ErrCodeValidation,
	"INVALID_UNIT_PRICE":      ErrCodeValidation,
	"INVALID_UNIT_WEIGHT":     ErrCodeValidation,
	"INVALID_TOTAL_VALUE":     ErrCodeValidation,
	"INVALID_ORDER_NUMBER":    ErrCodeValidation,
	"INVALID_SHIPMENT":        ErrCodeValidation,
	"INVALID_SHIPMENT_NUMBER": ErrCodeValidation,
	"INVALID_LOT":             ErrCodeValidation,
	"INVOICE_POSTED":          ErrCodeInvalidState,
	"INVOICE_EMPTY":           ErrCodeInvalidState,
	"INVOICE_INACTIVE":        ErrCodeInvalidState,
	"ALLOCATION_SYNCED":       ErrCodeInvalidState,
	"ALREADY_MATCHED":         ErrCodeConflict,
}

// NormalizeErrorCode converts a domain error code to the standardized format
// If the code is already in the new format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if newCode, ok := LegacyErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}

// ValidationDetail describes a single field validation failure
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorInfo represents error details in an API response
type ErrorInfo struct {
	Code      string             `json:"code"`
	Message   string             `json:"message"`
	RequestID string             `json:"request_id,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Details   []ValidationDetail `json:"details,omitempty"`
	Help      string             `json:"help,omitempty"`
}

// NewErrorResponse creates an error response, normalizing legacy codes
func NewErrorResponse(code, message string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      NormalizeErrorCode(code),
			Message:   message,
			Timestamp: time.Now(),
		},
	}
}

// NewErrorResponseWithRequestID creates an error response carrying the request ID
func NewErrorResponseWithRequestID(code, message, requestID string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      NormalizeErrorCode(code),
			Message:   message,
			RequestID: requestID,
			Timestamp: time.Now(),
		},
	}
}

// NewValidationErrorResponse creates a validation error response with field details
func NewValidationErrorResponse(message, requestID string, details []ValidationDetail) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      ErrCodeValidation,
			Message:   message,
			RequestID: requestID,
			Timestamp: time.Now(),
			Details:   details,
		},
	}
}

// NewErrorResponseWithHelp creates an error response with a documentation link
func NewErrorResponseWithHelp(code, message, requestID, help string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      NormalizeErrorCode(code),
			Message:   message,
			RequestID: requestID,
			Timestamp: time.Now(),
			Help:      help,
		},
	}
}
