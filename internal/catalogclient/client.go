package catalogclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// NetworkError reports that the server could not be reached or answered
// with a gateway/availability error.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *NetworkError) Unwrap() error { return e.Err }

// Client is an HTTP client for tipbox-server.
type Client struct {
	BaseURL   string
	DeviceID  string
	UserAgent string
	HTTP      *http.Client
}

// New creates a new catalog client.
func New(baseURL, deviceID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		DeviceID:  deviceID,
		UserAgent: "tipbox",
		HTTP:      &http.Client{Timeout: 30 * time.Second},
	}
}

// --- Auth types (mirrors internal/api/auth.go, independently defined) ---

// LoginStartResponse is the response from POST /v1/auth/login/start.
type LoginStartResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// LoginPollResponse is the response from POST /v1/auth/login/poll.
type LoginPollResponse struct {
	Status    string  `json:"status"`
	APIKey    *string `json:"api_key,omitempty"`
	UserID    *string `json:"user_id,omitempty"`
	Email     *string `json:"email,omitempty"`
	ExpiresAt *string `json:"expires_at,omitempty"`
}

// MeResponse is the response from GET /v1/me.
type MeResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// --- Catalog types ---

// CategoryResponse is a tip category.
type CategoryResponse struct {
	ID       string `json:"id"`
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	TipCount int    `json:"tip_count"`
}

// TipResponse is a single tip.
type TipResponse struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Title     string `json:"title"`
	Body      string `json:"body,omitempty"`
	CreatedAt string `json:"created_at"`
}

// TipListResponse is the response from GET /v1/tips.
type TipListResponse struct {
	Tips   []TipResponse `json:"tips"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// TipQuery filters a tip listing.
type TipQuery struct {
	Category string
	Limit    int
	Offset   int
}

// FavoriteResponse is a favorited tip summary from GET /v1/favorites.
type FavoriteResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	FavoritedAt string `json:"favorited_at"`
}

// FavoriteListResponse is the response from GET /v1/favorites.
type FavoriteListResponse struct {
	Favorites []FavoriteResponse `json:"favorites"`
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// HealthCheck hits the /healthz endpoint to verify server reachability.
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, "GET", "/healthz", "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Auth methods ---

// LoginStart initiates device auth flow. No API key required.
func (c *Client) LoginStart(ctx context.Context, email string) (*LoginStartResponse, error) {
	body := map[string]string{"email": email}
	var resp LoginStartResponse
	if err := c.do(ctx, "POST", "/v1/auth/login/start", "", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LoginPoll checks the status of a device auth request. No API key required.
func (c *Client) LoginPoll(ctx context.Context, deviceCode string) (*LoginPollResponse, error) {
	body := map[string]string{"device_code": deviceCode}
	var resp LoginPollResponse
	if err := c.do(ctx, "POST", "/v1/auth/login/poll", "", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me returns the user the token belongs to.
func (c *Client) Me(ctx context.Context, token string) (*MeResponse, error) {
	var resp MeResponse
	if err := c.do(ctx, "GET", "/v1/me", token, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Catalog methods ---

// ListCategories lists all tip categories.
func (c *Client) ListCategories(ctx context.Context) ([]CategoryResponse, error) {
	var resp []CategoryResponse
	if err := c.do(ctx, "GET", "/v1/categories", "", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListTips lists tips, optionally filtered by category slug.
func (c *Client) ListTips(ctx context.Context, q TipQuery) (*TipListResponse, error) {
	params := url.Values{}
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}
	path := "/v1/tips"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp TipListResponse
	if err := c.do(ctx, "GET", path, "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTip fetches one tip including its body.
func (c *Client) GetTip(ctx context.Context, id string) (*TipResponse, error) {
	var resp TipResponse
	if err := c.do(ctx, "GET", "/v1/tips/"+url.PathEscape(id), "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Favorites methods ---

// AddFavorite saves a tip as a favorite. Repeating it is harmless.
func (c *Client) AddFavorite(ctx context.Context, token, id string) error {
	return c.do(ctx, "PUT", "/v1/favorites/"+url.PathEscape(id), token, nil, nil)
}

// RemoveFavorite drops a favorite. Removing a missing favorite is harmless.
func (c *Client) RemoveFavorite(ctx context.Context, token, id string) error {
	return c.do(ctx, "DELETE", "/v1/favorites/"+url.PathEscape(id), token, nil, nil)
}

// ListFavorites lists the authenticated user's favorites.
func (c *Client) ListFavorites(ctx context.Context, token string) ([]FavoriteResponse, error) {
	var resp FavoriteListResponse
	if err := c.do(ctx, "GET", "/v1/favorites", token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Favorites, nil
}

// --- HTTP helpers ---

// apiError is the standard error body from the server.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

// do executes an HTTP request; token, when non-empty, is sent as a bearer token.
func (c *Client) do(ctx context.Context, method, path, token string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.DeviceID != "" {
		req.Header.Set("X-Device-ID", c.DeviceID)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: "read response", Err: err}
	}

	if resp.StatusCode >= 400 {
		return statusError(method, path, resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

func statusError(method, path string, status int, body []byte) error {
	var env errorEnvelope
	msg := string(body)
	if json.Unmarshal(body, &env) == nil && env.Error.Code != "" {
		msg = env.Error.Message
	}
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrForbidden, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &NetworkError{Op: method + " " + path, Err: fmt.Errorf("HTTP %d", status)}
	}
	if env.Error.Code != "" {
		return &env.Error
	}
	return fmt.Errorf("HTTP %d: %s", status, msg)
}
