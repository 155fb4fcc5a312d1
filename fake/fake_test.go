package fake

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PMGEECODE/ArdhiAssets-sub001/authapi"
	"github.com/PMGEECODE/ArdhiAssets-sub001/permission"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func seededServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	s := New(opts...)
	s.SeedAccount(Account{
		Email:    "jane@example.org",
		Password: "hunter22",
		User:     authapi.UserInfo{ID: "u1", Email: "jane@example.org", Role: "editor", Active: true},
		Permissions: permission.Map{
			"parcels": {HasAccess: true, CanRead: true, CanWrite: true},
		},
	})
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return s, srv
}

func doReq(t *testing.T, method, url string, body any, headers map[string]string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func login(t *testing.T, baseURL string) authapi.LoginResponse {
	t.Helper()
	status, raw := doReq(t, http.MethodPost, baseURL+"/auth/login",
		authapi.LoginRequest{Email: "jane@example.org", Password: "hunter22"}, nil)
	require.Equal(t, http.StatusOK, status)
	var resp authapi.LoginResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func TestLoginIssuesSession(t *testing.T) {
	s, srv := seededServer(t)

	resp := login(t, srv.URL)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.CSRFToken)
	require.NotNil(t, resp.SessionMetadata)
	assert.NotEmpty(t, resp.SessionMetadata.SessionID)
	assert.Equal(t, 30, resp.SessionTimeout)
	require.NotNil(t, resp.User)
	assert.Equal(t, "u1", resp.User.ID)
	assert.Equal(t, 1, s.SessionCount())
}

func TestLoginWrongPassword(t *testing.T) {
	_, srv := seededServer(t)

	status, _ := doReq(t, http.MethodPost, srv.URL+"/auth/login",
		authapi.LoginRequest{Email: "jane@example.org", Password: "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestTwoFactorFlow(t *testing.T) {
	s := New()
	s.SeedAccount(Account{
		Email:         "two@example.org",
		Password:      "pw",
		User:          authapi.UserInfo{ID: "u2", Role: "viewer", Active: true},
		TwoFactorCode: "424242",
	})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	status, raw := doReq(t, http.MethodPost, srv.URL+"/auth/login",
		authapi.LoginRequest{Email: "two@example.org", Password: "pw"}, nil)
	require.Equal(t, http.StatusOK, status)
	var first authapi.LoginResponse
	require.NoError(t, json.Unmarshal(raw, &first))
	assert.True(t, first.RequiresTwoFactor)
	assert.Empty(t, first.AccessToken, "no session before the second factor")

	status, _ = doReq(t, http.MethodPost, srv.URL+"/auth/2fa/verify",
		authapi.TwoFactorRequest{Email: "two@example.org", Code: "000000"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, raw = doReq(t, http.MethodPost, srv.URL+"/auth/2fa/verify",
		authapi.TwoFactorRequest{Email: "two@example.org", Code: "424242"}, nil)
	require.Equal(t, http.StatusOK, status)
	var second authapi.LoginResponse
	require.NoError(t, json.Unmarshal(raw, &second))
	assert.NotEmpty(t, second.AccessToken)
}

func TestTwoFactorWithoutPendingLogin(t *testing.T) {
	_, srv := seededServer(t)

	status, _ := doReq(t, http.MethodPost, srv.URL+"/auth/2fa/verify",
		authapi.TwoFactorRequest{Email: "jane@example.org", Code: "424242"}, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestMeRequiresBearer(t *testing.T) {
	_, srv := seededServer(t)
	resp := login(t, srv.URL)

	status, raw := doReq(t, http.MethodGet, srv.URL+"/auth/me", nil,
		map[string]string{"Authorization": "Bearer " + resp.AccessToken})
	require.Equal(t, http.StatusOK, status)
	var me authapi.MeResponse
	require.NoError(t, json.Unmarshal(raw, &me))
	assert.Equal(t, "u1", me.User.ID)
	assert.Equal(t, 30, me.SessionTimeout)

	status, _ = doReq(t, http.MethodGet, srv.URL+"/auth/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRefreshAcceptsExpiredToken(t *testing.T) {
	_, srv := seededServer(t, WithTokenTTL(-time.Minute))
	resp := login(t, srv.URL)

	// The expired bearer is rejected everywhere except refresh.
	status, _ := doReq(t, http.MethodGet, srv.URL+"/auth/me", nil,
		map[string]string{"Authorization": "Bearer " + resp.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, raw := doReq(t, http.MethodPost, srv.URL+"/auth/refresh", nil,
		map[string]string{"Authorization": "Bearer " + resp.AccessToken})
	require.Equal(t, http.StatusOK, status)
	var rotated authapi.RefreshResponse
	require.NoError(t, json.Unmarshal(raw, &rotated))
	assert.NotEmpty(t, rotated.AccessToken)
	assert.NotEqual(t, resp.CSRFToken, rotated.CSRFToken)

	// The previous token is dead after rotation.
	status, _ = doReq(t, http.MethodPost, srv.URL+"/auth/refresh", nil,
		map[string]string{"Authorization": "Bearer " + resp.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRefreshBySessionIDWithoutBearer(t *testing.T) {
	_, srv := seededServer(t)
	resp := login(t, srv.URL)

	status, raw := doReq(t, http.MethodPost, srv.URL+"/auth/refresh", nil,
		map[string]string{authapi.SessionIDHeader: resp.SessionMetadata.SessionID})
	require.Equal(t, http.StatusOK, status)
	var rotated authapi.RefreshResponse
	require.NoError(t, json.Unmarshal(raw, &rotated))
	assert.NotEmpty(t, rotated.AccessToken)
}

func TestLogoutIsIdempotent(t *testing.T) {
	s, srv := seededServer(t)
	resp := login(t, srv.URL)
	headers := map[string]string{
		"Authorization": "Bearer " + resp.AccessToken,
		"X-CSRF-Token":  resp.CSRFToken,
	}

	status, _ := doReq(t, http.MethodPost, srv.URL+"/auth/logout", nil, headers)
	assert.Equal(t, http.StatusNoContent, status)
	assert.Zero(t, s.SessionCount())

	status, _ = doReq(t, http.MethodPost, srv.URL+"/auth/logout", nil, headers)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestLogoutRejectsBadCSRF(t *testing.T) {
	s, srv := seededServer(t)
	resp := login(t, srv.URL)

	status, _ := doReq(t, http.MethodPost, srv.URL+"/auth/logout", nil, map[string]string{
		"Authorization": "Bearer " + resp.AccessToken,
		"X-CSRF-Token":  "forged",
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, 1, s.SessionCount())
}

func validate(t *testing.T, baseURL, sid string) authapi.ValidateResponse {
	t.Helper()
	status, raw := doReq(t, http.MethodPost, baseURL+"/sessions/validate", nil,
		map[string]string{authapi.SessionIDHeader: sid})
	require.Equal(t, http.StatusOK, status)
	var resp authapi.ValidateResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func TestValidateVerdicts(t *testing.T) {
	clock := newTestClock()
	s, srv := seededServer(t, WithClock(clock.Now))
	resp := login(t, srv.URL)
	sid := resp.SessionMetadata.SessionID

	got := validate(t, srv.URL, sid)
	assert.True(t, got.IsValid)
	assert.InDelta(t, 30*60, got.TimeUntilExpiry, 1)

	got = validate(t, srv.URL, "nope")
	assert.True(t, got.Fatal())
	assert.False(t, got.IsValid)

	s.RequireLogout(sid)
	got = validate(t, srv.URL, sid)
	assert.True(t, got.IsValid)
	assert.True(t, got.RequiresLogout)
	assert.True(t, got.Fatal())

	s.InvalidateSession(sid)
	got = validate(t, srv.URL, sid)
	assert.False(t, got.IsValid)
	assert.True(t, got.RequiresLogout)
}

func TestValidateReportsIdleExpiry(t *testing.T) {
	clock := newTestClock()
	_, srv := seededServer(t, WithClock(clock.Now))
	resp := login(t, srv.URL)
	sid := resp.SessionMetadata.SessionID

	clock.Advance(31 * time.Minute)
	got := validate(t, srv.URL, sid)
	assert.True(t, got.IsExpired)
	assert.True(t, got.Fatal())
}

func TestExtendPushesExpiry(t *testing.T) {
	clock := newTestClock()
	_, srv := seededServer(t, WithClock(clock.Now))
	resp := login(t, srv.URL)
	sid := resp.SessionMetadata.SessionID

	clock.Advance(20 * time.Minute)
	status, _ := doReq(t, http.MethodPost, srv.URL+"/sessions/extend",
		authapi.ExtendRequest{Reason: "user_activity"}, map[string]string{
			authapi.SessionIDHeader: sid,
			"X-CSRF-Token":          resp.CSRFToken,
		})
	require.Equal(t, http.StatusNoContent, status)

	clock.Advance(20 * time.Minute)
	got := validate(t, srv.URL, sid)
	assert.True(t, got.IsValid, "extension restarted the idle window")
}

func TestExtendRejectsBadCSRF(t *testing.T) {
	_, srv := seededServer(t)
	resp := login(t, srv.URL)

	status, _ := doReq(t, http.MethodPost, srv.URL+"/sessions/extend", nil, map[string]string{
		authapi.SessionIDHeader: resp.SessionMetadata.SessionID,
		"X-CSRF-Token":          "forged",
	})
	assert.Equal(t, http.StatusForbidden, status)
}

func TestSessionTimeoutChangeAppliesToLiveSessions(t *testing.T) {
	s, srv := seededServer(t)
	resp := login(t, srv.URL)

	s.SetSessionTimeout(15)

	status, raw := doReq(t, http.MethodGet, srv.URL+"/auth/me", nil,
		map[string]string{"Authorization": "Bearer " + resp.AccessToken})
	require.Equal(t, http.StatusOK, status)
	var me authapi.MeResponse
	require.NoError(t, json.Unmarshal(raw, &me))
	assert.Equal(t, 15, me.SessionTimeout)
}

func TestPermissionsEndpoint(t *testing.T) {
	_, srv := seededServer(t)
	resp := login(t, srv.URL)

	status, raw := doReq(t, http.MethodGet, srv.URL+"/permissions/me", nil,
		map[string]string{"Authorization": "Bearer " + resp.AccessToken})
	require.Equal(t, http.StatusOK, status)
	var perms authapi.PermissionsResponse
	require.NoError(t, json.Unmarshal(raw, &perms))
	require.Contains(t, perms.Permissions, "parcels")
	assert.True(t, perms.Permissions["parcels"].CanWrite)
}

func TestOpenAPISpecServed(t *testing.T) {
	_, srv := seededServer(t)

	status, raw := doReq(t, http.MethodGet, srv.URL+"/openapi.yaml", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "/sessions/validate")
}
