package handler

import "github.com/freightops/backend/internal/interfaces/http/dto"

// APIResponse represents a generic API response wrapper with a typed data field.
type APIResponse[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
	Meta    *dto.Meta      `json:"meta,omitempty"`
}

// ErrorResponse represents a standard error API response.
type ErrorResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
}

// SuccessResponse represents a simple success API response without data.
type SuccessResponse struct {
	Success bool `json:"success" example:"true"`
}

// CountData represents count data in response
type CountData struct {
	Count int64 `json:"count"`
}
