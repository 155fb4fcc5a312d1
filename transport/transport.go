// Package transport decorates an http.RoundTripper so that every
// outbound request carries the current credentials and a 401 response
// triggers exactly one refresh-and-replay before being surfaced.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
)

// Header names attached to outbound requests.
const (
	csrfHeader    = "X-CSRF-Token"
	sessionHeader = "X-Session-Id"
)

// ErrLoggedOut suppresses requests racing a logout that just happened.
var ErrLoggedOut = errors.New("transport: request suppressed after logout")

type ctxKey int

const (
	retriedKey ctxKey = iota
	noRetryKey
)

// WithoutRetry marks requests that must never trigger the refresh flow.
// The auth store uses it for its own login, refresh, and logout calls so
// a 401 there cannot recurse into another refresh.
func WithoutRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRetryKey, true)
}

func noRetry(ctx context.Context) bool {
	v, _ := ctx.Value(noRetryKey).(bool)
	return v
}

func markRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey, true)
}

func wasRetried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey).(bool)
	return v
}

// CredentialSource provides the per-request credential snapshot.
type CredentialSource interface {
	AccessToken() string
	CSRFToken() string
	BackendSessionID() string
	// RecentlyLoggedOut reports whether a logout happened moments ago,
	// in which case in-flight requests are suppressed instead of sent.
	RecentlyLoggedOut() bool
}

// Refresher rotates credentials after an authentication failure.
// Implementations collapse concurrent calls into one in-flight refresh.
type Refresher interface {
	RefreshCredentials(ctx context.Context) error
}

// Interceptor is the credential-attaching RoundTripper.
type Interceptor struct {
	base      http.RoundTripper
	source    CredentialSource
	refresher Refresher
	onFailure func(ctx context.Context, reason string)
	touch     func()
	logger    *slog.Logger
}

var _ http.RoundTripper = (*Interceptor)(nil)

// InterceptorOption configures an Interceptor.
type InterceptorOption func(*Interceptor)

// WithBase sets the underlying RoundTripper. Defaults to
// http.DefaultTransport.
func WithBase(rt http.RoundTripper) InterceptorOption {
	return func(i *Interceptor) { i.base = rt }
}

// WithRefresher enables the 401 refresh-and-replay flow.
func WithRefresher(r Refresher) InterceptorOption {
	return func(i *Interceptor) { i.refresher = r }
}

// WithAuthFailureFunc sets the delegate invoked when a refresh attempt
// fails; the auth store hooks its logout here.
func WithAuthFailureFunc(fn func(ctx context.Context, reason string)) InterceptorOption {
	return func(i *Interceptor) { i.onFailure = fn }
}

// WithActivityFunc sets the callback invoked after every successful
// response, used to stamp last-activity.
func WithActivityFunc(fn func()) InterceptorOption {
	return func(i *Interceptor) { i.touch = fn }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) InterceptorOption {
	return func(i *Interceptor) { i.logger = l }
}

// NewInterceptor creates an Interceptor over the given credential source.
func NewInterceptor(source CredentialSource, opts ...InterceptorOption) *Interceptor {
	i := &Interceptor{
		base:   http.DefaultTransport,
		source: source,
	}
	for _, o := range opts {
		o(i)
	}
	if i.logger == nil {
		i.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return i
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// RoundTrip implements http.RoundTripper.
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if i.source.RecentlyLoggedOut() && !noRetry(ctx) {
		return nil, ErrLoggedOut
	}

	// Clone before mutating headers; RoundTrippers must not modify the
	// caller's request.
	out := req.Clone(ctx)
	if token := i.source.AccessToken(); token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf := i.source.CSRFToken(); csrf != "" && mutating(req.Method) {
		out.Header.Set(csrfHeader, csrf)
	}
	if sid := i.source.BackendSessionID(); sid != "" {
		out.Header.Set(sessionHeader, sid)
	}

	resp, err := i.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && i.refresher != nil &&
		!noRetry(ctx) && !wasRetried(ctx) {
		return i.refreshAndReplay(req, resp)
	}

	if resp.StatusCode < http.StatusBadRequest && i.touch != nil {
		i.touch()
	}
	return resp, nil
}

// refreshAndReplay attempts one credential refresh and replays the
// original request. On any failure the original 401 response is
// returned untouched so the caller sees the real outcome.
func (i *Interceptor) refreshAndReplay(req *http.Request, original *http.Response) (*http.Response, error) {
	ctx := req.Context()

	if err := i.refresher.RefreshCredentials(ctx); err != nil {
		i.logger.Warn("credential refresh failed, terminating session",
			slog.String("path", req.URL.Path), slog.String("error", err.Error()))
		if i.onFailure != nil {
			i.onFailure(ctx, "refresh failed after 401")
		}
		return original, nil
	}

	replay := req.Clone(markRetried(ctx))
	if req.Body != nil {
		if req.GetBody == nil {
			// The body was consumed and cannot be rebuilt.
			return original, nil
		}
		body, err := req.GetBody()
		if err != nil {
			return original, nil
		}
		replay.Body = body
	}

	original.Body.Close()
	return i.RoundTrip(replay)
}
