package client

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
)

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError is a decoded non-2xx response.
type APIError struct {
	Status  int
	Code    api.ErrorCode
	Message string
	// RetryAfter is the server-suggested delay, zero when absent.
	RetryAfter time.Duration
	Meta       map[string]any
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsNotFound reports whether err is a MOMENT_NOT_FOUND (or bare 404)
// response.
func IsNotFound(err error) bool {
	ae, ok := AsAPIError(err)
	return ok && (ae.Code == api.CodeMomentNotFound || ae.Status == http.StatusNotFound)
}

// HasCode reports whether err is an API error with the given code.
func HasCode(err error, code api.ErrorCode) bool {
	ae, ok := AsAPIError(err)
	return ok && ae.Code == code
}
