package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
	"github.com/dmitrijs2005/momentkeeper/internal/common"
	"github.com/dmitrijs2005/momentkeeper/internal/logging"
)

const maxErrorBody = 64 << 10

// HTTPClient implements Client over JSON/HTTP.
type HTTPClient struct {
	baseURL  *url.URL
	http     *http.Client
	appToken string
	log      logging.Logger

	mu        sync.RWMutex
	userToken string
}

// NewHTTPClient creates a client for the service at baseURL. A zero
// timeout leaves requests bounded only by their context.
func NewHTTPClient(baseURL, appToken, userToken string, timeout time.Duration, log logging.Logger) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}
	return &HTTPClient{
		baseURL:   u,
		http:      &http.Client{Timeout: timeout},
		appToken:  appToken,
		userToken: userToken,
		log:       log.With("module", "http-client"),
	}, nil
}

// SetUserToken replaces the user-identity token for subsequent calls.
func (c *HTTPClient) SetUserToken(token string) {
	c.mu.Lock()
	c.userToken = token
	c.mu.Unlock()
}

func (c *HTTPClient) UserToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userToken
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	var out api.HealthResponse
	return c.do(ctx, http.MethodGet, "/health", nil, nil, &out, authNone)
}

func (c *HTTPClient) Register(ctx context.Context) (api.RegisterResponse, error) {
	var out api.RegisterResponse
	err := c.do(ctx, http.MethodPost, "/users", nil, struct{}{}, &out, authApp)
	return out, err
}

func (c *HTTPClient) CreateMoment(ctx context.Context, req api.CreateMomentRequest) (api.Moment, error) {
	var out api.Moment
	err := c.do(ctx, http.MethodPost, "/moments", nil, req, &out, authFull)
	return out, err
}

func (c *HTTPClient) EnrichMoment(ctx context.Context, serverID string) (api.Moment, error) {
	var out api.Moment
	err := c.do(ctx, http.MethodPost, "/moments/"+url.PathEscape(serverID)+"/enrich", nil, struct{}{}, &out, authFull)
	return out, err
}

func (c *HTTPClient) GetMoment(ctx context.Context, serverID string) (api.Moment, error) {
	var out api.Moment
	err := c.do(ctx, http.MethodGet, "/moments/"+url.PathEscape(serverID), nil, nil, &out, authFull)
	return out, err
}

func (c *HTTPClient) GetMomentByClientID(ctx context.Context, clientID string) (api.Moment, error) {
	var out api.Moment
	err := c.do(ctx, http.MethodGet, "/moments/by-client-id/"+url.PathEscape(clientID), nil, nil, &out, authFull)
	return out, err
}

func (c *HTTPClient) UpdateMoment(ctx context.Context, serverID string, isFavorite bool) (api.Moment, error) {
	var out api.Moment
	body := api.UpdateMomentRequest{IsFavorite: &isFavorite}
	err := c.do(ctx, http.MethodPut, "/moments/"+url.PathEscape(serverID), nil, body, &out, authFull)
	return out, err
}

func (c *HTTPClient) ArchiveMoment(ctx context.Context, serverID string) (api.Moment, error) {
	var out api.Moment
	err := c.do(ctx, http.MethodDelete, "/moments/"+url.PathEscape(serverID), nil, nil, &out, authFull)
	return out, err
}

func (c *HTTPClient) RestoreMoment(ctx context.Context, serverID string) (api.Moment, error) {
	var out api.Moment
	err := c.do(ctx, http.MethodPost, "/moments/"+url.PathEscape(serverID)+"/restore", nil, struct{}{}, &out, authFull)
	return out, err
}

func (c *HTTPClient) PurgeMoments(ctx context.Context) (api.PurgeResponse, error) {
	var out api.PurgeResponse
	err := c.do(ctx, http.MethodPost, "/moments/purge", nil, struct{}{}, &out, authFull)
	return out, err
}

func (c *HTTPClient) ListMoments(ctx context.Context, cursor string, limit int) (api.Page[api.Moment], error) {
	var out api.Page[api.Moment]
	err := c.do(ctx, http.MethodGet, "/moments", pageQuery(cursor, limit), nil, &out, authFull)
	return out, err
}

func (c *HTTPClient) ListTimeline(ctx context.Context, cursor string, limit int) (api.Page[api.TimelineEntry], error) {
	var out api.Page[api.TimelineEntry]
	err := c.do(ctx, http.MethodGet, "/timeline", pageQuery(cursor, limit), nil, &out, authFull)
	return out, err
}

func pageQuery(cursor string, limit int) url.Values {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

type authMode int

const (
	authNone authMode = iota
	authApp
	authFull
)

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, in, out any, auth authMode) error {
	// path arrives escaped; keep both forms so ids survive intact
	plain, err := url.PathUnescape(path)
	if err != nil {
		return fmt.Errorf("invalid request path %q: %w", path, err)
	}
	u := *c.baseURL
	base := strings.TrimRight(u.Path, "/")
	u.Path = base + plain
	u.RawPath = base + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth >= authApp {
		req.Header.Set(common.AppTokenHeaderName, c.appToken)
	}
	if auth == authFull {
		req.Header.Set(common.UserTokenHeaderName, c.UserToken())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp)
		c.log.Debug(ctx, "request failed", "method", method, "path", path, "status", resp.StatusCode, "code", apiErr.Code)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: failed to decode %s %s response: %v", ErrUnavailable, method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) *APIError {
	ae := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var env api.ErrorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error.Code != "" {
		ae.Code = env.Error.Code
		ae.Message = env.Error.Message
		ae.Meta = env.Meta
	}

	if s := resp.Header.Get(common.RetryAfterHeaderName); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			ae.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	if ae.RetryAfter == 0 && ae.Meta != nil {
		if v, ok := ae.Meta["retryAfterSeconds"].(float64); ok && v > 0 {
			ae.RetryAfter = time.Duration(v * float64(time.Second))
		}
	}
	return ae
}

var _ Client = (*HTTPClient)(nil)
