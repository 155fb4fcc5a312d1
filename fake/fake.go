// Package fake is an in-memory ArdhiAssets auth backend for tests and
// local development. It implements the full endpoint surface the client
// speaks — login, two-factor verification, token refresh, logout,
// who-am-I, session validation and extension, and permission lookup —
// with deterministic controls for invalidating sessions and changing
// timeout policy mid-flight.
package fake

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/PMGEECODE/ArdhiAssets-sub001/authapi"
	"github.com/PMGEECODE/ArdhiAssets-sub001/internal/util"
	"github.com/PMGEECODE/ArdhiAssets-sub001/permission"
)

//go:embed openapi.yaml
var openapiSpec []byte

const defaultTokenTTL = 15 * time.Minute

// Account is a seeded principal the fake backend will authenticate.
type Account struct {
	Email    string
	Password string
	User     authapi.UserInfo
	// TwoFactorCode, when non-empty, forces the two-step login flow:
	// login answers requires_2fa and the session is only established
	// once the code is verified.
	TwoFactorCode string
	Permissions   permission.Map
}

type serverSession struct {
	id             string
	email          string
	accessToken    string
	csrfToken      string
	expiresAt      time.Time
	timeoutMinutes int
	revoked        bool
	requiresLogout bool
}

// Server holds the fake backend's state.
type Server struct {
	mu         sync.Mutex
	accounts   map[string]*Account
	sessions   map[string]*serverSession
	byToken    map[string]string
	pending2FA map[string]bool

	secret         []byte
	issuer         string
	tokenTTL       time.Duration
	timeoutMinutes int
	now            func() time.Time
	logger         *slog.Logger
}

// Option configures the fake Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithTokenTTL sets the lifetime of issued access tokens.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.tokenTTL = d }
}

// WithSessionTimeout sets the idle-timeout policy announced to clients,
// in minutes.
func WithSessionTimeout(minutes int) Option {
	return func(s *Server) { s.timeoutMinutes = minutes }
}

// New creates an empty fake backend. Seed principals with SeedAccount.
func New(opts ...Option) *Server {
	secret, err := util.RandomBytes(32)
	if err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	s := &Server{
		accounts:       make(map[string]*Account),
		sessions:       make(map[string]*serverSession),
		byToken:        make(map[string]string),
		pending2FA:     make(map[string]bool),
		secret:         secret,
		issuer:         "ardhiassets-fake",
		tokenTTL:       defaultTokenTTL,
		timeoutMinutes: 30,
		now:            time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return s
}

// SeedAccount registers a principal. The email is NFKD-normalized so
// lookups match what the client sends.
func (s *Server) SeedAccount(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.Email = util.Normalize(a.Email)
	s.accounts[a.Email] = &a
}

// SetSessionTimeout changes the idle-timeout policy for new sessions
// and for sessions already established, in minutes.
func (s *Server) SetSessionTimeout(minutes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeoutMinutes = minutes
	for _, sess := range s.sessions {
		sess.timeoutMinutes = minutes
	}
}

// InvalidateSession revokes a session server-side. Subsequent validate
// calls report it invalid and bearer calls fail with 401.
func (s *Server) InvalidateSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.revoked = true
		delete(s.byToken, sess.accessToken)
	}
}

// RequireLogout flags a session so the next validate call demands the
// client log out, without revoking bearer access first.
func (s *Server) RequireLogout(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.requiresLogout = true
	}
}

// SessionCount reports live (non-revoked) sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.sessions {
		if !sess.revoked {
			n++
		}
	}
	return n
}

// Router returns the chi router with all endpoints mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
	}, nil))
	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/openapi.yaml",
		Path:    "redoc",
	}, nil))

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/2fa/verify", s.handleTwoFactor)
	r.Post("/auth/refresh", s.handleRefresh)
	r.Post("/auth/logout", s.handleLogout)
	r.Get("/auth/me", s.handleMe)
	r.Post("/sessions/validate", s.handleValidate)
	r.Post("/sessions/extend", s.handleExtend)
	r.Get("/permissions/me", s.handlePermissions)

	return r
}

// establishSession issues tokens for the account. Caller holds s.mu.
func (s *Server) establishSession(a *Account) (*serverSession, error) {
	sid := uuid.NewString()
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   a.User.ID,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		ID:        sid,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}

	csrf, err := util.RandomHex(16)
	if err != nil {
		return nil, err
	}

	sess := &serverSession{
		id:             sid,
		email:          a.Email,
		accessToken:    token,
		csrfToken:      csrf,
		expiresAt:      now.Add(timeoutDuration(s.timeoutMinutes)),
		timeoutMinutes: s.timeoutMinutes,
	}
	s.sessions[sid] = sess
	s.byToken[token] = sid
	return sess, nil
}

func timeoutDuration(minutes int) time.Duration {
	return time.Duration(minutes) * time.Minute
}

// sessionForRequest resolves the bearer session. Caller holds s.mu.
func (s *Server) sessionForRequest(r *http.Request) *serverSession {
	token := bearerToken(r)
	if token == "" {
		return nil
	}
	if _, err := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})).Parse(token, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return nil
	}
	sid, ok := s.byToken[token]
	if !ok {
		return nil
	}
	sess := s.sessions[sid]
	if sess == nil || sess.revoked {
		return nil
	}
	return sess
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return ""
	}
	return h[len(prefix):]
}
