// Package session manages the locally persisted record describing the
// current sign-in: its identifiers, activity timestamps, and idle-expiry
// policy. It performs no network calls.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PMGEECODE/ArdhiAssets-sub001/internal/util"
)

// DefaultTimeoutMinutes is the idle timeout applied until the backend
// communicates its own policy.
const DefaultTimeoutMinutes = 30

// rememberMeIdleCeiling caps idle time for remember-me sessions. The
// server-declared timeout is ignored for these; durable sessions get a
// fixed 24h ceiling instead.
const rememberMeIdleCeiling = 24 * time.Hour

var errInvalidMetadata = errors.New("invalid session metadata")

// Metadata is the client-held session record. Timestamps are integer
// milliseconds since the epoch to match the backend contract.
type Metadata struct {
	SessionID         string `json:"session_id"`
	CreatedAt         int64  `json:"created_at"`
	LastActivityAt    int64  `json:"last_activity_at"`
	RememberMe        bool   `json:"remember_me"`
	DeviceFingerprint string `json:"device_fingerprint"`
	BackendSessionID  string `json:"backend_session_id,omitempty"`
	TimeoutMinutes    int    `json:"session_timeout_minutes"`
}

// validate rejects malformed or partially upgraded records so that a
// stale blob never round-trips into a half-usable session.
func (m *Metadata) validate() error {
	switch {
	case m.SessionID == "":
		return fmt.Errorf("%w: missing session_id", errInvalidMetadata)
	case m.CreatedAt <= 0:
		return fmt.Errorf("%w: missing created_at", errInvalidMetadata)
	case m.LastActivityAt < m.CreatedAt:
		return fmt.Errorf("%w: last_activity_at precedes created_at", errInvalidMetadata)
	case m.TimeoutMinutes <= 0:
		return fmt.Errorf("%w: non-positive session_timeout_minutes", errInvalidMetadata)
	}
	return nil
}

// IdleCeiling returns the maximum idle duration before the session is
// considered expired locally.
func (m *Metadata) IdleCeiling() time.Duration {
	if m.RememberMe {
		return rememberMeIdleCeiling
	}
	return time.Duration(m.TimeoutMinutes) * time.Minute
}

// Expired reports whether the idle ceiling has been exceeded at now.
func (m *Metadata) Expired(now time.Time) bool {
	idle := now.UnixMilli() - m.LastActivityAt
	return idle > m.IdleCeiling().Milliseconds()
}

// decodeMetadata parses and validates a stored blob. Any failure is
// reported as an error; callers treat it as "no session".
func decodeMetadata(b []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidMetadata, err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// GenerateID returns a 256-bit random identifier, hex-encoded. It is a
// local correlation id only, not a security boundary.
func GenerateID() (string, error) {
	return util.RandomHex(32)
}

// Fingerprint derives a deterministic device identifier from the user
// agent and locale. It is a soft continuity signal used for logging and
// anomaly detection, never an authorization gate.
func Fingerprint(userAgent, locale string) string {
	sum := sha256.Sum256([]byte(util.Normalize(userAgent) + "|" + util.Normalize(locale)))
	return hex.EncodeToString(sum[:16])
}
