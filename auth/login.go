package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/PMGEECODE/ArdhiAssets-sub001/authapi"
	"github.com/PMGEECODE/ArdhiAssets-sub001/session"
	"github.com/PMGEECODE/ArdhiAssets-sub001/transport"
)

// LoginResult reports the outcome of a first-factor login.
type LoginResult struct {
	// RequiresTwoFactor is set when the backend demands a second
	// factor. No state is established until VerifyTwoFactor succeeds.
	RequiresTwoFactor bool
	// Email echoes the account the pending verification belongs to.
	Email string
}

// Login authenticates with the backend. On failure the auth state is
// left unchanged. On a two-factor challenge the freshly built session
// metadata is stashed (scoped storage only) and the caller must follow
// up with VerifyTwoFactor.
func (s *Store) Login(ctx context.Context, email, password string, rememberMe bool) (*LoginResult, error) {
	gen := s.currentGeneration()

	meta, err := s.sessions.NewMetadata(rememberMe, s.defaultTimeout, s.userAgent, s.locale)
	if err != nil {
		return nil, fmt.Errorf("auth: login: %w", err)
	}

	resp, err := s.api.Login(transport.WithoutRetry(ctx), authapi.LoginRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		if authapi.IsStatus(err, http.StatusUnauthorized) {
			return nil, fmt.Errorf("auth: login: %w: %w", ErrInvalidCredentials, err)
		}
		return nil, fmt.Errorf("auth: login: %w", err)
	}

	if resp.RequiresTwoFactor {
		if err := s.sessions.SavePending(meta); err != nil {
			return nil, fmt.Errorf("auth: login: stashing pending session: %w", err)
		}
		s.logger.Info("login requires second factor", slog.String("email", resp.Email))
		return &LoginResult{RequiresTwoFactor: true, Email: resp.Email}, nil
	}

	if err := s.establish(ctx, gen, meta, resp); err != nil {
		return nil, err
	}
	return &LoginResult{}, nil
}

// VerifyTwoFactor completes a pending login with the emailed code.
func (s *Store) VerifyTwoFactor(ctx context.Context, email, code string) error {
	meta := s.sessions.LoadPending()
	if meta == nil {
		return ErrNoPendingLogin
	}
	gen := s.currentGeneration()

	resp, err := s.api.VerifyTwoFactor(transport.WithoutRetry(ctx), authapi.TwoFactorRequest{
		Email: email,
		Code:  code,
	})
	if err != nil {
		return fmt.Errorf("auth: two-factor verify: %w", err)
	}

	if err := s.establish(ctx, gen, meta, resp); err != nil {
		return err
	}
	s.sessions.ClearPending()
	return nil
}

// establish merges the server's session identity into the local
// metadata, persists it, and installs the authenticated state. Results
// captured under an older generation are discarded: a logout that ran
// while the network call was in flight wins.
func (s *Store) establish(ctx context.Context, gen uint64, meta *session.Metadata, resp *authapi.LoginResponse) error {
	if resp.SessionMetadata != nil {
		meta.BackendSessionID = resp.SessionMetadata.SessionID
	}
	if resp.SessionTimeout > 0 {
		meta.TimeoutMinutes = resp.SessionTimeout
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.meta = meta
	s.state = State{
		User:            resp.User,
		IsAuthenticated: resp.User != nil,
		IsAdmin:         resp.User.IsAdmin(),
		CSRFToken:       resp.CSRFToken,
	}
	s.accessToken = resp.AccessToken
	s.tokenExpiry = peekTokenExpiry(resp.AccessToken)
	s.initialized = true
	s.mu.Unlock()

	if err := s.sessions.Save(meta); err != nil {
		s.logger.Warn("persisting session metadata failed", slog.String("error", err.Error()))
	}

	s.loadPermissions(ctx, gen)
	return nil
}

// Logout ends the session. The server notification is best-effort;
// local teardown always happens and always succeeds. Safe to call more
// than once per cycle.
func (s *Store) Logout(ctx context.Context) {
	s.logout(ctx, "user logout")
}

// ForceLogout ends the session in response to a backend decision (a
// failed refresh or a validator verdict).
func (s *Store) ForceLogout(ctx context.Context, reason string) {
	s.logout(ctx, reason)
}

func (s *Store) logout(ctx context.Context, reason string) {
	// Bump the generation first so in-flight login/refresh results are
	// discarded no matter when they land.
	s.mu.Lock()
	s.generation++
	wasAuthenticated := s.state.IsAuthenticated
	s.mu.Unlock()

	// Best-effort server-side invalidation while credentials are still
	// attached. Failure is ignored: logout must always complete.
	if wasAuthenticated {
		if err := s.api.Logout(transport.WithoutRetry(ctx)); err != nil {
			s.logger.Debug("server logout notification failed", slog.String("error", err.Error()))
		}
	}

	s.mu.Lock()
	s.state = State{}
	s.meta = nil
	s.accessToken = ""
	s.tokenExpiry = zeroTime
	s.permErr = nil
	s.initialized = true
	s.mu.Unlock()

	s.sessions.Clear()
	s.sessions.MarkLoggedOut()

	s.logger.Info("session ended", slog.String("reason", reason))
	s.emit(Event{Kind: EventLogout, Reason: reason})
}
