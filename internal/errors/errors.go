package errors

import (
	"net/http"

	"github.com/go-chi/render"
)

// Error codes reported in the "error_code" extension of request problems
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeInvalidJSON      = "INVALID_JSON"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeMissingParameter = "MISSING_PARAMETER"
)

// APIError is a request decoding or validation failure raised before a
// service is called. Details carries the field level information.
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Render implements render.Renderer
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// ValidationError names one rejected request field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is the details payload for multi-field failures
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// ErrInvalidJSON is returned for bodies that do not decode
var ErrInvalidJSON = &APIError{
	StatusCode: http.StatusBadRequest,
	ErrorCode:  CodeInvalidJSON,
	Message:    "Request body contains invalid JSON",
}

// NewWithDetails builds an APIError
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{StatusCode: statusCode, ErrorCode: errorCode, Message: message, Details: details}
}

// InvalidRequestWithError wraps a malformed request, keeping the cause text
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, CodeInvalidRequest, "Invalid request format", err.Error())
}

// ErrValidation rejects a single field
func ErrValidation(field, message string) *APIError {
	return NewWithDetails(http.StatusBadRequest, CodeValidationFailed, "Request validation failed",
		ValidationError{Field: field, Message: message})
}

// ErrMissingParameter rejects a request lacking a required header, query
// parameter or form part.
func ErrMissingParameter(name string) *APIError {
	return NewWithDetails(http.StatusBadRequest, CodeMissingParameter, name+" is required", name)
}

// NewValidationErrors rejects several fields at once
func NewValidationErrors(errs []ValidationError) *APIError {
	return NewWithDetails(http.StatusBadRequest, CodeValidationFailed, "Request validation failed",
		ValidationErrors{Errors: errs})
}
