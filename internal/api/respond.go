package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/commerce-core/internal/apperror"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondData wraps a successful payload in the standard envelope.
func respondData(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, map[string]any{
		"success": true,
		"data":    data,
	})
}

// respondError maps errors from the core onto JSON error responses. Errors
// outside the apperror taxonomy respond 500 with a generic body.
func respondError(w http.ResponseWriter, err error) {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		log.Printf("[API] internal error: %v", err)
		appErr = &apperror.Error{
			Code:    apperror.CodeInternal,
			Status:  http.StatusInternalServerError,
			Message: "internal server error",
		}
	}

	body := map[string]any{
		"code":    appErr.Code,
		"message": appErr.Message,
	}
	if appErr.Context != nil {
		body["context"] = appErr.Context
	}
	respondJSON(w, appErr.Status, map[string]any{"error": body})
}

// formatValidationError flattens validator failures into a Validation error
// whose context maps each offending field to a readable message.
func formatValidationError(err error) *apperror.Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Validation(err.Error())
	}

	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			fields[field] = fmt.Sprintf("%s is required", field)
		case "min":
			fields[field] = fmt.Sprintf("%s must have at least %s entries", field, fe.Param())
		case "gt":
			fields[field] = fmt.Sprintf("%s must be greater than %s", field, fe.Param())
		case "url":
			fields[field] = fmt.Sprintf("%s must be a valid URL", field)
		default:
			fields[field] = fmt.Sprintf("%s is invalid", field)
		}
	}

	appErr := apperror.Validation("request validation failed")
	appErr.Context = fields
	return appErr
}
