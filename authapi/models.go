package authapi

import "github.com/PMGEECODE/ArdhiAssets-sub001/permission"

// UserInfo is the authenticated principal as reported by the backend.
type UserInfo struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
}

// IsAdmin reports whether the principal carries the admin role.
func (u *UserInfo) IsAdmin() bool {
	return u != nil && u.Role == "admin"
}

// ServerSession is the server-issued session identity attached to login
// and who-am-I responses.
type ServerSession struct {
	SessionID string `json:"session_id"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned by login and two-factor verification. When
// RequiresTwoFactor is set only Email is meaningful; the session is not
// established until the second factor is verified.
type LoginResponse struct {
	User              *UserInfo      `json:"user,omitempty"`
	CSRFToken         string         `json:"csrf_token,omitempty"`
	AccessToken       string         `json:"access_token,omitempty"`
	SessionMetadata   *ServerSession `json:"session_metadata,omitempty"`
	SessionTimeout    int            `json:"session_timeout,omitempty"`
	RequiresTwoFactor bool           `json:"requires_2fa,omitempty"`
	Email             string         `json:"email,omitempty"`
}

// TwoFactorRequest is the body of POST /auth/2fa/verify.
type TwoFactorRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// RefreshResponse carries rotated tokens from POST /auth/refresh.
type RefreshResponse struct {
	CSRFToken   string `json:"csrf_token"`
	AccessToken string `json:"access_token,omitempty"`
}

// MeResponse is returned by GET /auth/me. SessionTimeout is the
// server's current idle-timeout policy in minutes and is authoritative
// over whatever the client declared at login.
type MeResponse struct {
	User            *UserInfo      `json:"user"`
	SessionTimeout  int            `json:"session_timeout"`
	SessionMetadata *ServerSession `json:"session_metadata,omitempty"`
}

// ValidateResponse is returned by POST /sessions/validate.
// TimeUntilExpiry is in seconds.
type ValidateResponse struct {
	IsValid         bool   `json:"is_valid"`
	IsExpired       bool   `json:"is_expired"`
	TimeUntilExpiry int64  `json:"time_until_expiry"`
	RequiresLogout  bool   `json:"requires_logout"`
	Message         string `json:"message,omitempty"`
}

// Fatal reports whether the response demands immediate session
// termination.
func (v *ValidateResponse) Fatal() bool {
	return !v.IsValid || v.IsExpired || v.RequiresLogout
}

// ExtendRequest is the body of POST /sessions/extend.
type ExtendRequest struct {
	Reason string `json:"reason,omitempty"`
}

// PermissionsResponse is returned by GET /permissions/me.
type PermissionsResponse struct {
	Permissions permission.Map `json:"permissions"`
}

// ErrorResponse is the backend's error body shape.
type ErrorResponse struct {
	Error string `json:"error"`
}
