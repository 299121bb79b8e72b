package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error     string            `json:"error"`               // Error message
	ErrorCode string            `json:"errorCode,omitempty"` // Machine readable code
	Details   map[string]string `json:"details,omitempty"`   // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	errorResp := ErrorResponse{Error: message}
	if validationErr != nil {
		errorResp.ErrorCode = CodeValidation
		errorResp.Details = make(map[string]string)
		var fieldErrs validator.ValidationErrors
		if errors.As(validationErr, &fieldErrs) {
			for _, err := range fieldErrs {
				errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
			}
		}
	}
	writeErrorResponse(w, statusCode, errorResp)
}

// SendServiceError maps a service error to a response. AppErrors are client
// errors; everything else is logged and reported as an opaque 500.
func SendServiceError(w http.ResponseWriter, tag string, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		log.Printf("[%s] Request rejected: %v", tag, err)
		writeErrorResponse(w, http.StatusBadRequest, ErrorResponse{Error: appErr.Message, ErrorCode: appErr.Code})
		return
	}

	log.Printf("[%s] Unexpected error: %v", tag, err)
	writeErrorResponse(w, http.StatusInternalServerError, ErrorResponse{
		Error:     "An unexpected error occurred. Please try again later.",
		ErrorCode: CodeInternal,
	})
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}
