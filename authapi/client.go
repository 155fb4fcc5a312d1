// Package authapi is the typed HTTP client for the ArdhiAssets
// authentication and session endpoints. It deals only in request and
// response shapes; session state and retry policy live elsewhere.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PMGEECODE/ArdhiAssets-sub001/internal/util"
	"github.com/PMGEECODE/ArdhiAssets-sub001/permission"
)

// SessionIDHeader carries the backend session identifier on session
// validation and extension calls.
const SessionIDHeader = "X-Session-Id"

const (
	pathLogin       = "/auth/login"
	pathTwoFactor   = "/auth/2fa/verify"
	pathRefresh     = "/auth/refresh"
	pathLogout      = "/auth/logout"
	pathMe          = "/auth/me"
	pathValidate    = "/sessions/validate"
	pathExtend      = "/sessions/extend"
	pathPermissions = "/permissions/me"
)

const maxResponseBody = 1 << 20

// StatusError reports a non-2xx backend response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("authapi: backend returned %d", e.Code)
	}
	return fmt.Sprintf("authapi: backend returned %d: %s", e.Code, e.Message)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Client calls the ArdhiAssets auth backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient injects the HTTP client. The auth store passes one
// whose transport attaches credentials and replays on 401.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// New creates a client for the given base URL.
func New(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Login posts credentials. The email is NFKD-normalized first so that
// the same mailbox typed on different platforms compares equal
// server-side.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	req.Email = util.Normalize(req.Email)
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, pathLogin, req, &resp, nil); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyTwoFactor completes a pending two-factor login.
func (c *Client) VerifyTwoFactor(ctx context.Context, req TwoFactorRequest) (*LoginResponse, error) {
	req.Email = util.Normalize(req.Email)
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, pathTwoFactor, req, &resp, nil); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh rotates the CSRF token and, where the backend supports it,
// the access token.
func (c *Client) Refresh(ctx context.Context) (*RefreshResponse, error) {
	var resp RefreshResponse
	if err := c.do(ctx, http.MethodPost, pathRefresh, nil, &resp, nil); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout asks the backend to invalidate the server-side session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, pathLogout, nil, nil, nil)
}

// Me returns the current principal and the server's session policy.
func (c *Client) Me(ctx context.Context) (*MeResponse, error) {
	var resp MeResponse
	if err := c.do(ctx, http.MethodGet, pathMe, nil, &resp, nil); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ValidateSession asks the backend whether the session is still live.
func (c *Client) ValidateSession(ctx context.Context, sessionID string) (*ValidateResponse, error) {
	header := http.Header{SessionIDHeader: []string{sessionID}}
	var resp ValidateResponse
	if err := c.do(ctx, http.MethodPost, pathValidate, nil, &resp, header); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExtendSession reports voluntary activity to the backend.
func (c *Client) ExtendSession(ctx context.Context, sessionID, reason string) error {
	header := http.Header{SessionIDHeader: []string{sessionID}}
	return c.do(ctx, http.MethodPost, pathExtend, ExtendRequest{Reason: reason}, nil, header)
}

// Permissions fetches the per-category permission map.
func (c *Client) Permissions(ctx context.Context) (permission.Map, error) {
	var resp PermissionsResponse
	if err := c.do(ctx, http.MethodGet, pathPermissions, nil, &resp, nil); err != nil {
		return nil, err
	}
	return resp.Permissions, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, header http.Header) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("authapi: encoding %s body: %w", path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("authapi: building %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("authapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("authapi: reading %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr ErrorResponse
		_ = json.Unmarshal(raw, &apiErr)
		return &StatusError{Code: resp.StatusCode, Message: apiErr.Error}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("authapi: decoding %s response: %w", path, err)
		}
	}
	return nil
}
