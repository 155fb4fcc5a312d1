package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu        sync.Mutex
	token     string
	csrf      string
	sessionID string
	loggedOut bool
}

func (s *fakeSource) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *fakeSource) CSRFToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csrf
}

func (s *fakeSource) BackendSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *fakeSource) RecentlyLoggedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedOut
}

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
	apply func()
}

func (r *fakeRefresher) RefreshCredentials(ctx context.Context) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.apply != nil {
		r.apply()
	}
	return nil
}

func (r *fakeRefresher) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newClient(i *Interceptor) *http.Client {
	return &http.Client{Transport: i}
}

func TestAttachesHeaders(t *testing.T) {
	var gotAuth, gotCSRF, gotSID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCSRF = r.Header.Get("X-CSRF-Token")
		gotSID = r.Header.Get("X-Session-Id")
	}))
	defer srv.Close()

	src := &fakeSource{token: "tok", csrf: "csrf", sessionID: "sid"}
	client := newClient(NewInterceptor(src))

	resp, err := client.Post(srv.URL, "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "csrf", gotCSRF)
	assert.Equal(t, "sid", gotSID)
}

func TestCSRFOnlyOnMutatingVerbs(t *testing.T) {
	var gotCSRF string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCSRF = r.Header.Get("X-CSRF-Token")
	}))
	defer srv.Close()

	src := &fakeSource{csrf: "csrf"}
	client := newClient(NewInterceptor(src))

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, gotCSRF, "GET requests must not carry the CSRF token")
}

func TestSingleRefreshPer401(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	src := &fakeSource{token: "stale"}
	ref := &fakeRefresher{apply: func() {
		src.mu.Lock()
		src.token = "fresh"
		src.mu.Unlock()
	}}
	client := newClient(NewInterceptor(src, WithRefresher(ref)))

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 1, ref.callCount(), "a second 401 on the replay must not refresh again")
	assert.Equal(t, 2, requests, "original request plus exactly one replay")
}

func TestRefreshThenReplaySucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"n":1}`, string(body), "replay must resend the original body")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	src := &fakeSource{token: "stale", csrf: "c"}
	ref := &fakeRefresher{apply: func() {
		src.mu.Lock()
		src.token = "fresh"
		src.mu.Unlock()
	}}
	client := newClient(NewInterceptor(src, WithRefresher(ref)))

	resp, err := client.Post(srv.URL, "application/json", strings.NewReader(`{"n":1}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, ref.callCount())
}

func TestRefreshFailureDelegatesLogout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	var loggedOut bool
	src := &fakeSource{}
	ref := &fakeRefresher{err: errors.New("refresh rejected")}
	client := newClient(NewInterceptor(src,
		WithRefresher(ref),
		WithAuthFailureFunc(func(ctx context.Context, reason string) { loggedOut = true }),
	))

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "the original 401 is surfaced")
	assert.True(t, loggedOut)
}

func TestForbiddenPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	src := &fakeSource{}
	ref := &fakeRefresher{}
	client := newClient(NewInterceptor(src, WithRefresher(ref)))

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, ref.callCount(), "403 is an authorization decision, not a session problem")
}

func TestNoRetryContextSkipsRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	src := &fakeSource{}
	ref := &fakeRefresher{}
	client := newClient(NewInterceptor(src, WithRefresher(ref)))

	req, err := http.NewRequestWithContext(WithoutRetry(context.Background()), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Zero(t, ref.callCount())
}

func TestSuppressedAfterLogout(t *testing.T) {
	var reached atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached.Store(true)
	}))
	defer srv.Close()

	src := &fakeSource{loggedOut: true}
	client := newClient(NewInterceptor(src))

	_, err := client.Get(srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoggedOut)
	assert.False(t, reached.Load(), "request must not reach the backend")
}

func TestSuccessfulResponseTouchesActivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	var touches int
	client := newClient(NewInterceptor(&fakeSource{}, WithActivityFunc(func() { touches++ })))

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 1, touches)
}
