// Package dto defines API request/response types and error handling.
//
// Error responses share one shape:
//
//	{"status": 400, "error": "Table dogs does not exist", "error_code": "missing_table"}
//
// error_code is only present for failures a client is expected to branch on.
// APIError carries the status, code and message; Classify maps errors from the
// write path to APIErrors.
package dto

import (
	"fmt"
	"net/http"

	"github.com/dustin/go-humanize"
)

// ErrorCode is the machine-readable error classification.
type ErrorCode string

const (
	// ErrorCodeNone is used for errors without a documented code.
	ErrorCodeNone ErrorCode = ""
	// ErrorCodeMissingTable is returned when the table does not exist and may
	// not be created.
	ErrorCodeMissingTable ErrorCode = "missing_table"
	// ErrorCodeUpsertRequiresPK is returned for an upsert without ?pk=.
	ErrorCodeUpsertRequiresPK ErrorCode = "upsert_requires_pk"
	// ErrorCodeUnknownKeys is returned when rows name columns the table lacks.
	ErrorCodeUnknownKeys ErrorCode = "unknown_keys"
	// ErrorCodeInvalidJSON is returned for bodies that are not a JSON object or
	// array of objects with scalar values.
	ErrorCodeInvalidJSON ErrorCode = "invalid_json"
	// ErrorCodePayloadTooLarge is returned when the body exceeds the quota.
	ErrorCodePayloadTooLarge ErrorCode = "payload_too_large"
)

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	ErrorCode ErrorCode `json:"error_code,omitempty"`
}

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
}

// NewErrorResponse returns the JSON body for e.
func NewErrorResponse(e ErrorWithStatus) ErrorResponse {
	return ErrorResponse{Status: e.StatusCode(), Error: e.Error(), ErrorCode: e.Code()}
}

// APIError is a concrete error type with status code.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	wrappedErr error
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
	}
}

// Wrap wraps an underlying error. The message returned to clients is not
// affected.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// NotFound creates a 404 Not Found error.
func NotFound(message string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrorCodeNone, message)
}

// DatabaseNotFound creates a 404 error for an unknown database.
func DatabaseNotFound(name string) *APIError {
	return NotFound(fmt.Sprintf("Database %s not found", name))
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeNone, message)
}

// Forbidden creates a 403 Forbidden error.
func Forbidden(message string) *APIError {
	return NewAPIError(http.StatusForbidden, ErrorCodeNone, message)
}

// Unauthorized creates a 401 Unauthorized error.
func Unauthorized(message string) *APIError {
	return NewAPIError(http.StatusUnauthorized, ErrorCodeNone, message)
}

// MissingTable creates the error for a table that may not be created.
func MissingTable(table string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeMissingTable, fmt.Sprintf("Table %s does not exist", table))
}

// UpsertRequiresPK creates the error for an upsert without ?pk=.
func UpsertRequiresPK() *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeUpsertRequiresPK, "Upsert requires ?pk=")
}

// UnknownKeys creates the error for rows naming unknown columns. message is
// the storage engine's diagnostic.
func UnknownKeys(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeUnknownKeys, message)
}

// InvalidJSON creates the error for a rejected body.
func InvalidJSON(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeInvalidJSON, message)
}

// Internal creates a 500 Internal Server Error.
func Internal(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrorCodeNone, message)
}

// PayloadTooLarge creates a 413 error for bodies over limit bytes.
func PayloadTooLarge(limit int64) *APIError {
	return NewAPIError(http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge,
		"Request body exceeds "+humanize.IBytes(uint64(limit)))
}

var _ ErrorWithStatus = (*APIError)(nil)

// RateLimitExceeded creates a 429 error.
func RateLimitExceeded() *APIError {
	return NewAPIError(http.StatusTooManyRequests, ErrorCodeNone, "Rate limit exceeded")
}
