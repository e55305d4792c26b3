package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
	"github.com/dmitrijs2005/momentkeeper/internal/common"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as the error envelope. Errors that are not coded
// become INTERNAL_SERVER_ERROR and are logged.
func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *api.Error
	switch {
	case errors.As(err, &apiErr):
	case errors.Is(err, common.ErrorUnauthorized):
		apiErr = api.NewUnauthorized("missing or invalid user token")
	case errors.Is(err, common.ErrorValidation):
		apiErr = api.NewValidation(err.Error())
	case errors.Is(err, context.Canceled):
		s.logger.Debug(r.Context(), "request canceled", "path", r.URL.Path)
		return
	default:
		s.logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		apiErr = api.NewInternal()
	}

	if apiErr.Code == api.CodeRateLimitExceeded {
		if secs, ok := apiErr.Meta["retryAfterSeconds"].(int); ok {
			w.Header().Set(common.RetryAfterHeaderName, strconv.Itoa(secs))
		}
	}
	writeJSON(w, apiErr.Status, apiErr.Envelope())
}

func decodeBody(r *http.Request, w http.ResponseWriter, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return api.NewValidation(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

// pageParams reads the cursor and limit query parameters. A missing limit
// is zero, which the service maps to the default page size.
func pageParams(r *http.Request) (string, int, error) {
	q := r.URL.Query()
	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return "", 0, api.NewValidation("limit must be an integer")
		}
		limit = n
	}
	return q.Get("cursor"), limit, nil
}
