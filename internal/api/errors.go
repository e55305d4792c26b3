package api

import (
	"fmt"
	"net/http"
)

// ErrorCode is a machine-readable error code carried in the error envelope.
type ErrorCode string

const (
	CodeValidation           ErrorCode = "VALIDATION_ERROR"       // 400
	CodeUnauthorized         ErrorCode = "UNAUTHORIZED"           // 401
	CodeForbidden            ErrorCode = "FORBIDDEN"              // 403
	CodeMomentNotFound       ErrorCode = "MOMENT_NOT_FOUND"       // 404
	CodeEnrichmentInProgress ErrorCode = "ENRICHMENT_IN_PROGRESS" // 409
	CodeDailyLimitReached    ErrorCode = "DAILY_LIMIT_REACHED"    // 429
	CodeRateLimitExceeded    ErrorCode = "RATE_LIMIT_EXCEEDED"    // 429
	CodeInternal             ErrorCode = "INTERNAL_SERVER_ERROR"  // 500
)

// ErrorBody is the inner object of the error envelope.
type ErrorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorEnvelope is the JSON shape of every non-2xx response:
//
//	{ "error": { "code": "...", "message": "..." }, "meta": { ... } }
type ErrorEnvelope struct {
	Error ErrorBody      `json:"error"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// Error is a coded error with an HTTP status. Server handlers render it as an
// ErrorEnvelope.
type Error struct {
	Code    ErrorCode
	Status  int
	Message string
	Meta    map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Envelope converts the error into its wire form.
func (e *Error) Envelope() ErrorEnvelope {
	return ErrorEnvelope{Error: ErrorBody{Code: e.Code, Message: e.Message}, Meta: e.Meta}
}

// NewValidation creates a 400 error for invalid request parameters.
func NewValidation(msg string) *Error {
	return &Error{Code: CodeValidation, Status: http.StatusBadRequest, Message: msg}
}

// NewUnauthorized creates a 401 error for missing or invalid tokens.
func NewUnauthorized(msg string) *Error {
	return &Error{Code: CodeUnauthorized, Status: http.StatusUnauthorized, Message: msg}
}

// NewForbidden creates a 403 error for a moment owned by another user.
func NewForbidden() *Error {
	return &Error{Code: CodeForbidden, Status: http.StatusForbidden, Message: "moment belongs to another user"}
}

// NewMomentNotFound creates a 404 error.
func NewMomentNotFound(identifier string) *Error {
	return &Error{
		Code:    CodeMomentNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("moment not found: %s", identifier),
		Meta:    map[string]any{"identifier": identifier},
	}
}

// NewEnrichmentInProgress creates a 409 error returned while another request
// is generating enrichment for the same moment.
func NewEnrichmentInProgress(id string) *Error {
	return &Error{
		Code:    CodeEnrichmentInProgress,
		Status:  http.StatusConflict,
		Message: "enrichment already in progress",
		Meta:    map[string]any{"id": id},
	}
}

// NewDailyLimitReached creates a 429 error for the per-day creation quota.
func NewDailyLimitReached(limit int) *Error {
	return &Error{
		Code:    CodeDailyLimitReached,
		Status:  http.StatusTooManyRequests,
		Message: fmt.Sprintf("daily limit of %d moments reached", limit),
		Meta:    map[string]any{"limit": limit},
	}
}

// NewRateLimitExceeded creates a 429 error carrying the suggested delay.
func NewRateLimitExceeded(retryAfterSeconds int) *Error {
	return &Error{
		Code:    CodeRateLimitExceeded,
		Status:  http.StatusTooManyRequests,
		Message: "too many requests",
		Meta:    map[string]any{"retryAfterSeconds": retryAfterSeconds},
	}
}

// NewInternal creates a 500 error. The cause is not exposed on the wire.
func NewInternal() *Error {
	return &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Message: "internal server error"}
}

// Is checks if err is an *Error with the given code.
func Is(err error, code ErrorCode) bool {
	if e, ok := err.(*Error); ok {
		return e.Code == code
	}
	return false
}
