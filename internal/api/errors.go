package api

import (
	"encoding/json"
	"net/http"

	"github.com/tailingsiq/tailingsiq/internal/logging"
)

const (
	CodeValidationError  = "VALIDATION_ERROR"
	CodeAuthRequired     = "AUTHENTICATION_REQUIRED"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeResourceNotFound = "RESOURCE_NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeInternalError    = "INTERNAL_ERROR"
)

type ErrorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// additional error context
type ErrorContext map[string]interface{}

// builder pattern
type ErrorBuilder struct {
	Code    string
	Message string
	Details []ErrorDetail
	Context ErrorContext
}

// Error is the body of every non-2xx response.
type Error struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
	Context ErrorContext  `json:"context,omitempty"`
}

func NewError(code, message string) *ErrorBuilder {
	return &ErrorBuilder{Code: code, Message: message}
}

func (e *ErrorBuilder) WithDetails(details []ErrorDetail) *ErrorBuilder {
	e.Details = details
	return e
}

func (e *ErrorBuilder) WithContext(context ErrorContext) *ErrorBuilder {
	e.Context = context
	return e
}

func (e *ErrorBuilder) Create() Error {
	return Error{
		Error: ErrorBody{
			Code:    e.Code,
			Message: e.Message,
			Details: e.Details,
			Context: e.Context,
		},
	}
}

// builder pattern extensions

func Unauthorized(msg string) *ErrorBuilder {
	return NewError(CodeAuthRequired, msg)
}

func PermissionDenied(msg string) *ErrorBuilder {
	return NewError(CodePermissionDenied, msg)
}

func NotFound(resource string) *ErrorBuilder {
	return NewError(CodeResourceNotFound, resource+" not found")
}

func ValidationErr(msg string, details []ErrorDetail) *ErrorBuilder {
	return NewError(CodeValidationError, msg).WithDetails(details)
}

func InternalError(msg string) *ErrorBuilder {
	return NewError(CodeInternalError, msg)
}

func ConflictErr(msg string) *ErrorBuilder {
	return NewError(CodeConflict, msg)
}

func writeError(w http.ResponseWriter, status int, e *ErrorBuilder) {
	writeJSON(w, status, e.Create())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error("Failed to encode response", "error", err)
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

// decodeJSON reads a JSON body into dst, answering 400 itself on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("Request body is invalid", nil))
		return false
	}
	return true
}
