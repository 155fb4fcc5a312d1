// Package auth holds the authoritative client-side authentication and
// authorization state. The Store owns all mutations of that state and
// of the persisted session metadata; every other component reads
// snapshots and invokes Store methods.
package auth

import (
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/PMGEECODE/ArdhiAssets-sub001/authapi"
	"github.com/PMGEECODE/ArdhiAssets-sub001/permission"
	"github.com/PMGEECODE/ArdhiAssets-sub001/session"
	"github.com/PMGEECODE/ArdhiAssets-sub001/transport"
)

// defaultLogoutGuard is how long in-flight requests are suppressed
// after a logout, papering over callbacks racing the teardown.
const defaultLogoutGuard = 100 * time.Millisecond

// defaultRotationBuffer is how long before access-token expiry a
// rotation is considered due.
const defaultRotationBuffer = 2 * time.Minute

// State is an immutable snapshot of the authentication state.
type State struct {
	User            *authapi.UserInfo
	IsAuthenticated bool
	IsAdmin         bool
	Permissions     permission.Map
	CSRFToken       string
}

// Store orchestrates login, refresh, logout, and permission loading.
// All exported methods are safe for concurrent use.
type Store struct {
	api      *authapi.Client
	sessions *session.Manager
	logger   *slog.Logger
	now      func() time.Time

	userAgent      string
	locale         string
	defaultTimeout int
	logoutGuard    time.Duration
	rotationBuffer time.Duration
	httpTimeout    time.Duration
	baseTransport  http.RoundTripper

	mu          sync.Mutex
	state       State
	meta        *session.Metadata
	accessToken string
	tokenExpiry time.Time
	permErr     error
	initialized bool
	// generation orders logout against in-flight login/refresh: logout
	// bumps it, and any result captured under an older generation is
	// discarded when it lands.
	generation uint64

	refreshGroup singleflight.Group

	subsMu  sync.Mutex
	subs    map[int]EventFunc
	nextSub int
}

var (
	_ transport.CredentialSource = (*Store)(nil)
	_ transport.Refresher        = (*Store)(nil)
)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the structured logger. Defaults to JSON on stderr.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithDevice sets the user agent and locale that feed the device
// fingerprint on new session metadata.
func WithDevice(userAgent, locale string) StoreOption {
	return func(s *Store) { s.userAgent, s.locale = userAgent, locale }
}

// WithDefaultTimeout sets the idle timeout in minutes assumed until the
// backend communicates its own policy.
func WithDefaultTimeout(minutes int) StoreOption {
	return func(s *Store) { s.defaultTimeout = minutes }
}

// WithLogoutGuard sets the post-logout request suppression window.
func WithLogoutGuard(d time.Duration) StoreOption {
	return func(s *Store) { s.logoutGuard = d }
}

// WithRotationBuffer sets how long before token expiry RotationDue
// reports true.
func WithRotationBuffer(d time.Duration) StoreOption {
	return func(s *Store) { s.rotationBuffer = d }
}

// WithHTTPTimeout sets the per-request timeout of the built-in client.
func WithHTTPTimeout(d time.Duration) StoreOption {
	return func(s *Store) { s.httpTimeout = d }
}

// WithBaseTransport sets the RoundTripper beneath the interceptor, for
// tests and custom TLS setups.
func WithBaseTransport(rt http.RoundTripper) StoreOption {
	return func(s *Store) { s.baseTransport = rt }
}

// New creates a Store talking to the backend at baseURL. The Store
// wires its own HTTP client: an interceptor that attaches credentials,
// replays once on 401, and reports failures back into the Store.
func New(baseURL string, sessions *session.Manager, opts ...StoreOption) *Store {
	s := &Store{
		sessions:       sessions,
		now:            time.Now,
		defaultTimeout: session.DefaultTimeoutMinutes,
		logoutGuard:    defaultLogoutGuard,
		rotationBuffer: defaultRotationBuffer,
		httpTimeout:    15 * time.Second,
		baseTransport:  http.DefaultTransport,
		subs:           make(map[int]EventFunc),
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}

	interceptor := transport.NewInterceptor(s,
		transport.WithBase(s.baseTransport),
		transport.WithRefresher(s),
		transport.WithAuthFailureFunc(s.ForceLogout),
		transport.WithActivityFunc(sessions.Touch),
		transport.WithLogger(s.logger),
	)
	s.api = authapi.New(baseURL, authapi.WithHTTPClient(&http.Client{
		Transport: interceptor,
		Timeout:   s.httpTimeout,
	}))
	return s
}

// Client exposes the backend client whose transport carries this
// store's credentials. The validator polls through it so its calls are
// headed and replayed like any other request.
func (s *Store) Client() *authapi.Client { return s.api }

// Snapshot returns a copy of the current authentication state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	if st.Permissions != nil {
		perms := make(permission.Map, len(st.Permissions))
		for k, v := range st.Permissions {
			perms[k] = v
		}
		st.Permissions = perms
	}
	return st
}

// IsAuthenticated reports whether a principal is established.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IsAuthenticated
}

// Initialized reports whether the initial auth check has completed.
// Route protection must not redirect to login before this is true.
func (s *Store) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Guard returns a permission guard over the current snapshot.
func (s *Store) Guard() *permission.Guard {
	st := s.Snapshot()
	return permission.NewGuard(st.IsAdmin, st.Permissions)
}

// Metadata returns a copy of the current session metadata, or nil.
func (s *Store) Metadata() *session.Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta == nil {
		return nil
	}
	m := *s.meta
	return &m
}

// AccessToken implements transport.CredentialSource.
func (s *Store) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

// CSRFToken implements transport.CredentialSource.
func (s *Store) CSRFToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CSRFToken
}

// BackendSessionID implements transport.CredentialSource.
func (s *Store) BackendSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta == nil {
		return ""
	}
	return s.meta.BackendSessionID
}

// RecentlyLoggedOut implements transport.CredentialSource.
func (s *Store) RecentlyLoggedOut() bool {
	return s.sessions.RecentlyLoggedOut(s.logoutGuard)
}

func (s *Store) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}
