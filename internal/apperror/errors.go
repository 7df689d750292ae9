package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable machine-readable error code surfaced in API responses.
type Code string

const (
	CodeNotFound          Code = "RES_001"
	CodeValidation        Code = "VAL_001"
	CodeInsufficientStock Code = "INV_002"
	CodeRateLimited       Code = "RATE_001"
	CodeInternal          Code = "SRV_001"
)

// Error carries a code, an HTTP status and optional structured context.
// Expected failure kinds (not found, validation, insufficient stock, rate
// limited) are all values of this type so callers can branch on Code.
type Error struct {
	Code    Code
	Status  int
	Message string
	Context map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NotFound(resource string, id any) *Error {
	return &Error{
		Code:    CodeNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("%s with id %v not found", resource, id),
	}
}

func Validation(message string) *Error {
	return &Error{
		Code:    CodeValidation,
		Status:  http.StatusBadRequest,
		Message: message,
	}
}

// InsufficientStock reports a reservation that exceeds availability. The
// available and requested quantities ride along as context.
func InsufficientStock(sku string, available, requested int) *Error {
	return &Error{
		Code:    CodeInsufficientStock,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("only %d units available for variant %s", available, sku),
		Context: map[string]any{
			"available": available,
			"requested": requested,
		},
	}
}

func RateLimited(retryAfterSeconds int) *Error {
	return &Error{
		Code:    CodeRateLimited,
		Status:  http.StatusTooManyRequests,
		Message: "too many requests, please try again later",
		Context: map[string]any{
			"retry_after": retryAfterSeconds,
		},
	}
}

// StatusCode maps any error to the HTTP status the boundary should respond
// with. Errors outside the taxonomy map to 500.
func StatusCode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code Code) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
