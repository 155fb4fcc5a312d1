package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/PMGEECODE/ArdhiAssets-sub001/authapi"
	"github.com/PMGEECODE/ArdhiAssets-sub001/transport"
)

// RefreshCredentials rotates the CSRF (and where issued, access) token,
// then validates the backend session before reloading the principal and
// permissions. Concurrent callers collapse into one in-flight refresh.
//
// It implements transport.Refresher, so the interceptor's reactive 401
// path and the validator's proactive path share one refresh at a time.
func (s *Store) RefreshCredentials(ctx context.Context) error {
	_, err, _ := s.refreshGroup.Do("refresh", func() (any, error) {
		return nil, s.refresh(ctx)
	})
	return err
}

func (s *Store) refresh(ctx context.Context) error {
	gen := s.currentGeneration()
	ctx = transport.WithoutRetry(ctx)

	resp, err := s.api.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("auth: refresh: %w", err)
	}

	// A known backend session must still be live before the rotated
	// credentials are trusted.
	if sid := s.BackendSessionID(); sid != "" {
		v, err := s.api.ValidateSession(ctx, sid)
		if err != nil {
			if authapi.IsStatus(err, http.StatusUnauthorized) || authapi.IsStatus(err, http.StatusForbidden) {
				s.ForceLogout(ctx, "session validation rejected")
				return fmt.Errorf("auth: refresh: %w: %w", ErrSessionInvalid, err)
			}
			return fmt.Errorf("auth: refresh: validating session: %w", err)
		}
		if v.Fatal() {
			s.ForceLogout(ctx, "session invalidated by backend")
			return fmt.Errorf("auth: refresh: %w", ErrSessionInvalid)
		}
	}

	if err := s.applyTokens(gen, resp); err != nil {
		return err
	}

	// Only after validation: reconcile the principal and permissions.
	me, err := s.api.Me(ctx)
	if err != nil {
		return fmt.Errorf("auth: refresh: reloading principal: %w", err)
	}
	if err := s.applyPrincipal(gen, me); err != nil {
		return err
	}
	s.loadPermissions(ctx, gen)
	return nil
}

// applyTokens installs rotated tokens unless a logout won the race.
func (s *Store) applyTokens(gen uint64, resp *authapi.RefreshResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return ErrSuperseded
	}
	s.state.CSRFToken = resp.CSRFToken
	if resp.AccessToken != "" {
		s.accessToken = resp.AccessToken
		s.tokenExpiry = peekTokenExpiry(resp.AccessToken)
	}
	return nil
}

// applyPrincipal reconciles the who-am-I response into state and
// metadata. The server-declared session timeout always wins and is
// applied atomically with the principal.
func (s *Store) applyPrincipal(gen uint64, me *authapi.MeResponse) error {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.state.User = me.User
	s.state.IsAuthenticated = me.User != nil
	s.state.IsAdmin = me.User.IsAdmin()
	if s.meta != nil {
		if me.SessionTimeout > 0 {
			s.meta.TimeoutMinutes = me.SessionTimeout
		}
		if me.SessionMetadata != nil && me.SessionMetadata.SessionID != "" {
			s.meta.BackendSessionID = me.SessionMetadata.SessionID
		}
	}
	s.initialized = true
	meta := s.meta
	s.mu.Unlock()

	if meta != nil {
		if err := s.sessions.Save(meta); err != nil {
			s.logger.Warn("persisting reconciled metadata failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// CheckAuth validates the stored session and establishes state from the
// backend. Locally expired sessions are cleared without a network call.
// A 401 from the who-am-I endpoint triggers exactly one refresh and one
// retry; any further authentication failure clears the session.
// Transient network errors leave state untouched and are returned.
func (s *Store) CheckAuth(ctx context.Context) (bool, error) {
	gen := s.currentGeneration()

	s.mu.Lock()
	meta := s.meta
	s.mu.Unlock()
	if meta == nil {
		meta = s.sessions.Load()
	}
	if meta == nil {
		s.markInitialized()
		return false, nil
	}
	if s.sessions.Expired(meta) {
		s.clearLocal("local session expired")
		return false, nil
	}

	// Adopt the stored metadata so the session header rides along.
	s.mu.Lock()
	if s.generation == gen && s.meta == nil {
		s.meta = meta
	}
	s.mu.Unlock()

	ctxNR := transport.WithoutRetry(ctx)
	me, err := s.api.Me(ctxNR)
	if authapi.IsStatus(err, http.StatusUnauthorized) {
		if rerr := s.RefreshCredentials(ctx); rerr == nil {
			me, err = s.api.Me(ctxNR)
		}
	}
	if err != nil {
		if authapi.IsStatus(err, http.StatusUnauthorized) || authapi.IsStatus(err, http.StatusForbidden) {
			s.clearLocal("authentication check rejected")
			return false, nil
		}
		s.markInitialized()
		return false, fmt.Errorf("auth: check: %w", err)
	}

	if err := s.applyPrincipal(gen, me); err != nil {
		return false, err
	}
	s.loadPermissions(ctx, gen)
	return s.IsAuthenticated(), nil
}

// ValidateSession checks local freshness only; no network call.
func (s *Store) ValidateSession() bool {
	s.mu.Lock()
	meta := s.meta
	s.mu.Unlock()
	if meta == nil {
		meta = s.sessions.Load()
	}
	return !s.sessions.Expired(meta)
}

// RotateTokens rotates the CSRF token without the full refresh flow.
// Safe to call speculatively.
func (s *Store) RotateTokens(ctx context.Context) error {
	gen := s.currentGeneration()
	resp, err := s.api.Refresh(transport.WithoutRetry(ctx))
	if err != nil {
		return fmt.Errorf("auth: rotate: %w", err)
	}
	return s.applyTokens(gen, resp)
}

// RotationDue reports whether the access token expires within the
// rotation buffer, so callers can rotate before a 401 ever happens.
func (s *Store) RotationDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokenExpiry.IsZero() {
		return false
	}
	return s.tokenExpiry.Sub(s.now()) < s.rotationBuffer
}

// ExtendSession reports voluntary activity to the backend and stamps
// local activity. Idempotent; a missing backend session is a no-op.
func (s *Store) ExtendSession(ctx context.Context, reason string) error {
	sid := s.BackendSessionID()
	if sid == "" {
		return nil
	}
	s.sessions.Touch()
	if err := s.api.ExtendSession(transport.WithoutRetry(ctx), sid, reason); err != nil {
		return fmt.Errorf("auth: extend: %w", err)
	}
	return nil
}

// markInitialized flips the initialized flag without touching state.
func (s *Store) markInitialized() {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
}

// clearLocal drops state and storage without the server notification,
// for sessions that died locally rather than by user intent.
func (s *Store) clearLocal(reason string) {
	s.mu.Lock()
	s.generation++
	s.state = State{}
	s.meta = nil
	s.accessToken = ""
	s.tokenExpiry = zeroTime
	s.permErr = nil
	s.initialized = true
	s.mu.Unlock()

	s.sessions.Clear()
	s.logger.Info("session cleared", slog.String("reason", reason))
}
