package fake

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/PMGEECODE/ArdhiAssets-sub001/authapi"
	"github.com/PMGEECODE/ArdhiAssets-sub001/internal/util"
)

const (
	csrfHeader = "X-CSRF-Token"

	maxBodySize = 1 << 16
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, authapi.ErrorResponse{Error: msg})
}

func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return v, false
	}
	if err := json.Unmarshal(body, &v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return v, false
	}
	return v, true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[authapi.LoginRequest](w, r)
	if !ok {
		return
	}
	email := util.Normalize(req.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.accounts[email]
	if acct == nil || acct.Password != req.Password {
		s.logger.Info("login rejected", slog.String("email", email))
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if acct.TwoFactorCode != "" {
		s.pending2FA[email] = true
		writeJSON(w, http.StatusOK, authapi.LoginResponse{
			RequiresTwoFactor: true,
			Email:             email,
		})
		return
	}

	sess, err := s.establishSession(acct)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue session")
		return
	}
	s.logger.Info("login succeeded", slog.String("email", email), slog.String("session_id", sess.id))
	writeJSON(w, http.StatusOK, s.loginResponse(acct, sess))
}

func (s *Server) handleTwoFactor(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[authapi.TwoFactorRequest](w, r)
	if !ok {
		return
	}
	email := util.Normalize(req.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pending2FA[email] {
		writeError(w, http.StatusConflict, "no login awaiting verification")
		return
	}
	acct := s.accounts[email]
	if acct == nil || acct.TwoFactorCode != req.Code {
		writeError(w, http.StatusUnauthorized, "invalid verification code")
		return
	}
	delete(s.pending2FA, email)

	sess, err := s.establishSession(acct)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue session")
		return
	}
	writeJSON(w, http.StatusOK, s.loginResponse(acct, sess))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// An expired access token is the normal reason to be here, so the
	// bearer is resolved without claims validation. A client restoring a
	// persisted session has no token at all yet and identifies itself by
	// session ID instead.
	sess := s.staleSessionForRequest(r)
	if sess == nil {
		if candidate, ok := s.sessions[r.Header.Get(authapi.SessionIDHeader)]; ok && !candidate.revoked {
			sess = candidate
		}
	}
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "unknown session")
		return
	}

	rotated, err := s.rotateSession(sess)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to rotate tokens")
		return
	}
	writeJSON(w, http.StatusOK, authapi.RefreshResponse{
		CSRFToken:   rotated.csrfToken,
		AccessToken: rotated.accessToken,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.staleSessionForRequest(r)
	if sess == nil {
		// Logout is idempotent: a dead or unknown session is already
		// logged out.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Header.Get(csrfHeader) != sess.csrfToken {
		writeError(w, http.StatusForbidden, "csrf token mismatch")
		return
	}

	sess.revoked = true
	delete(s.byToken, sess.accessToken)
	s.logger.Info("session logged out", slog.String("session_id", sess.id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessionForRequest(r)
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if s.now().After(sess.expiresAt) {
		writeError(w, http.StatusUnauthorized, "session expired")
		return
	}
	acct := s.accounts[sess.email]
	user := acct.User
	writeJSON(w, http.StatusOK, authapi.MeResponse{
		User:           &user,
		SessionTimeout: sess.timeoutMinutes,
		SessionMetadata: &authapi.ServerSession{
			SessionID: sess.id,
			ExpiresAt: sess.expiresAt.Unix(),
		},
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	sid := r.Header.Get(authapi.SessionIDHeader)

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[sid]
	switch {
	case sess == nil:
		writeJSON(w, http.StatusOK, authapi.ValidateResponse{
			Message: "unknown session",
		})
	case sess.revoked:
		writeJSON(w, http.StatusOK, authapi.ValidateResponse{
			RequiresLogout: true,
			Message:        "session revoked",
		})
	case sess.requiresLogout:
		writeJSON(w, http.StatusOK, authapi.ValidateResponse{
			IsValid:        true,
			RequiresLogout: true,
			Message:        "logout required by administrator",
		})
	case s.now().After(sess.expiresAt):
		writeJSON(w, http.StatusOK, authapi.ValidateResponse{
			IsExpired: true,
			Message:   "session expired",
		})
	default:
		writeJSON(w, http.StatusOK, authapi.ValidateResponse{
			IsValid:         true,
			TimeUntilExpiry: int64(sess.expiresAt.Sub(s.now()).Seconds()),
		})
	}
}

func (s *Server) handleExtend(w http.ResponseWriter, r *http.Request) {
	sid := r.Header.Get(authapi.SessionIDHeader)

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[sid]
	if sess == nil || sess.revoked {
		writeError(w, http.StatusUnauthorized, "unknown session")
		return
	}
	if r.Header.Get(csrfHeader) != sess.csrfToken {
		writeError(w, http.StatusForbidden, "csrf token mismatch")
		return
	}

	sess.expiresAt = s.now().Add(timeoutDuration(sess.timeoutMinutes))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessionForRequest(r)
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	acct := s.accounts[sess.email]
	writeJSON(w, http.StatusOK, authapi.PermissionsResponse{
		Permissions: acct.Permissions,
	})
}

func (s *Server) loginResponse(acct *Account, sess *serverSession) authapi.LoginResponse {
	user := acct.User
	return authapi.LoginResponse{
		User:        &user,
		CSRFToken:   sess.csrfToken,
		AccessToken: sess.accessToken,
		SessionMetadata: &authapi.ServerSession{
			SessionID: sess.id,
			ExpiresAt: sess.expiresAt.Unix(),
		},
		SessionTimeout: sess.timeoutMinutes,
	}
}

// staleSessionForRequest resolves the bearer session while tolerating
// an expired token. Caller holds s.mu.
func (s *Server) staleSessionForRequest(r *http.Request) *serverSession {
	token := bearerToken(r)
	if token == "" {
		return nil
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation())
	if _, err := parser.Parse(token, func(*jwt.Token) (any, error) {
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

// rotateSession replaces the session's access and CSRF tokens in place.
// Caller holds s.mu.
func (s *Server) rotateSession(sess *serverSession) (*serverSession, error) {
	delete(s.byToken, sess.accessToken)

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   s.accounts[sess.email].User.ID,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		ID:        sess.id,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	csrf, err := util.RandomHex(16)
	if err != nil {
		return nil, err
	}
	sess.accessToken = token
	sess.csrfToken = csrf
	s.byToken[token] = sess.id
	return sess, nil
}
