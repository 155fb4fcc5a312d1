// Package validator polls the backend's session-validation endpoint
// while a user is signed in, forcing logout the moment the backend
// declares the session dead and warning subscribers shortly before
// expiry.
package validator

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/PMGEECODE/ArdhiAssets-sub001/authapi"
	"github.com/PMGEECODE/ArdhiAssets-sub001/transport"
)

const (
	// defaultGrace delays the first poll so a validate call never races
	// the login response that created the session.
	defaultGrace    = 10 * time.Second
	defaultInterval = time.Minute
	// defaultWarnBelow is the remaining-time threshold under which a
	// session warning is emitted.
	defaultWarnBelow = 5 * time.Minute
)

// Authority is the slice of the auth store the validator drives.
type Authority interface {
	IsAuthenticated() bool
	BackendSessionID() string
	ForceLogout(ctx context.Context, reason string)
	EmitSessionWarning(remaining time.Duration, message string)
	RotationDue() bool
	RotateTokens(ctx context.Context) error
}

// Validator owns the polling loop. Its timers are scoped handles: Stop
// (or context cancellation, or logout) tears them down and no callback
// can fire afterwards.
type Validator struct {
	client *authapi.Client
	auth   Authority
	logger *slog.Logger

	grace     time.Duration
	interval  time.Duration
	warnBelow time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	running bool
}

// Option configures a Validator.
type Option func(*Validator)

// WithGrace sets the startup grace period before the first poll.
func WithGrace(d time.Duration) Option {
	return func(v *Validator) { v.grace = d }
}

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(v *Validator) { v.interval = d }
}

// WithWarnBelow sets the remaining-time threshold for warnings.
func WithWarnBelow(d time.Duration) Option {
	return func(v *Validator) { v.warnBelow = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// New creates a Validator polling through the given client. Pass the
// auth store's client so validation requests carry the session headers.
func New(client *authapi.Client, auth Authority, opts ...Option) *Validator {
	v := &Validator{
		client:    client,
		auth:      auth,
		grace:     defaultGrace,
		interval:  defaultInterval,
		warnBelow: defaultWarnBelow,
	}
	for _, o := range opts {
		o(v)
	}
	if v.logger == nil {
		v.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return v
}

// Start launches the polling loop. Calling Start on a running validator
// is a no-op.
func (v *Validator) Start(ctx context.Context) {
	v.mu.Lock()
	if v.running {
		v.mu.Unlock()
		return
	}
	v.running = true
	v.stopCh = make(chan struct{})
	stopCh := v.stopCh
	v.mu.Unlock()

	go v.run(ctx, stopCh)
}

// Stop tears down the grace timer and polling ticker. Idempotent.
func (v *Validator) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.running {
		return
	}
	v.running = false
	close(v.stopCh)
}

// Running reports whether the polling loop is live.
func (v *Validator) Running() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.running
}

func (v *Validator) run(ctx context.Context, stopCh chan struct{}) {
	grace := time.NewTimer(v.grace)
	defer grace.Stop()
	select {
	case <-stopCh:
		return
	case <-ctx.Done():
		return
	case <-grace.C:
	}

	v.tick(ctx)

	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.tick(ctx)
		}
	}
}

// tick performs one validation pass. Network errors are logged and left
// for the next tick; only explicit backend verdicts end the session.
func (v *Validator) tick(ctx context.Context) {
	if !v.auth.IsAuthenticated() {
		return
	}
	sid := v.auth.BackendSessionID()
	if sid == "" {
		return
	}

	// The validator is its own judge of a dead session; its requests
	// must not detour through the refresh-and-replay flow.
	resp, err := v.client.ValidateSession(transport.WithoutRetry(ctx), sid)
	if err != nil {
		if authapi.IsStatus(err, http.StatusUnauthorized) || authapi.IsStatus(err, http.StatusForbidden) {
			v.logger.Info("validator rejected, ending session", slog.String("error", err.Error()))
			v.Stop()
			v.auth.ForceLogout(ctx, "session validator rejected")
			return
		}
		v.logger.Warn("session validation failed, will retry", slog.String("error", err.Error()))
		return
	}

	if resp.Fatal() {
		reason := resp.Message
		if reason == "" {
			reason = "session invalidated by backend"
		}
		v.Stop()
		v.auth.ForceLogout(ctx, reason)
		return
	}

	remaining := time.Duration(resp.TimeUntilExpiry) * time.Second
	if remaining > 0 && remaining <= v.warnBelow {
		message := resp.Message
		if message == "" {
			message = "session expiring soon"
		}
		v.auth.EmitSessionWarning(remaining, message)
	}

	if v.auth.RotationDue() {
		if err := v.auth.RotateTokens(ctx); err != nil {
			v.logger.Warn("proactive token rotation failed", slog.String("error", err.Error()))
		}
	}
}
