package session

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Storage keys. The same logical key is mirrored between the scoped and
// durable stores; the pending and logged-out keys are scoped only.
const (
	metadataKey  = "ardhi_session"
	pendingKey   = "ardhi_session_pending"
	loggedOutKey = "ardhi_logged_out_at"
)

// Manager owns reads and writes of session state across the two storage
// tiers: a scoped store that lives as long as the process, and an
// optional durable store used only for remember-me sessions.
//
// Manager is stateless apart from its store handles; all methods are
// safe to call speculatively.
type Manager struct {
	scoped  Store
	durable Store
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithDurableStore sets the durable tier used for remember-me sessions.
func WithDurableStore(s Store) Option {
	return func(m *Manager) { m.durable = s }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager over the given scoped store.
func NewManager(scoped Store, opts ...Option) *Manager {
	m := &Manager{scoped: scoped, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// NewMetadata builds a fresh record with createdAt = lastActivityAt = now.
func (m *Manager) NewMetadata(rememberMe bool, timeoutMinutes int, userAgent, locale string) (*Metadata, error) {
	id, err := GenerateID()
	if err != nil {
		return nil, fmt.Errorf("creating session metadata: %w", err)
	}
	if timeoutMinutes <= 0 {
		timeoutMinutes = DefaultTimeoutMinutes
	}
	now := m.now().UnixMilli()
	return &Metadata{
		SessionID:         id,
		CreatedAt:         now,
		LastActivityAt:    now,
		RememberMe:        rememberMe,
		DeviceFingerprint: Fingerprint(userAgent, locale),
		TimeoutMinutes:    timeoutMinutes,
	}, nil
}

// Save writes the record through both tiers: the scoped store always
// receives it, the durable store only when remember-me is set. A stale
// durable copy from an earlier remember-me session is removed otherwise,
// so the two tiers never disagree.
func (m *Manager) Save(meta *Metadata) error {
	if err := meta.validate(); err != nil {
		return err
	}
	blob, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding session metadata: %w", err)
	}
	m.scoped.Put(metadataKey, blob)
	if m.durable != nil {
		if meta.RememberMe {
			m.durable.Put(metadataKey, blob)
		} else {
			m.durable.Delete(metadataKey)
		}
	}
	return nil
}

// Load returns the current record, preferring the scoped tier and
// falling back to the durable one. Absent or malformed blobs yield nil;
// parse failures are swallowed, never surfaced.
func (m *Manager) Load() *Metadata {
	for _, s := range []Store{m.scoped, m.durable} {
		if s == nil {
			continue
		}
		blob, ok := s.Get(metadataKey)
		if !ok {
			continue
		}
		meta, err := decodeMetadata(blob)
		if err != nil {
			continue
		}
		return meta
	}
	return nil
}

// Clear removes session state from both tiers unconditionally.
func (m *Manager) Clear() {
	m.scoped.Delete(metadataKey)
	m.scoped.Delete(pendingKey)
	if m.durable != nil {
		m.durable.Delete(metadataKey)
		m.durable.Delete(pendingKey)
	}
}

// Touch stamps lastActivityAt = now and writes the record back through
// both tiers. No-op when no record exists.
func (m *Manager) Touch() {
	meta := m.Load()
	if meta == nil {
		return
	}
	meta.LastActivityAt = m.now().UnixMilli()
	_ = m.Save(meta)
}

// Expired reports whether the record's idle ceiling has been exceeded.
// A nil record is expired by definition.
func (m *Manager) Expired(meta *Metadata) bool {
	if meta == nil {
		return true
	}
	return meta.Expired(m.now())
}

// SavePending stashes metadata for a login awaiting a second factor.
// Pending state is scoped only; it never reaches the durable tier.
func (m *Manager) SavePending(meta *Metadata) error {
	blob, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding pending session metadata: %w", err)
	}
	m.scoped.Put(pendingKey, blob)
	return nil
}

// LoadPending returns stashed two-factor metadata, or nil.
func (m *Manager) LoadPending() *Metadata {
	blob, ok := m.scoped.Get(pendingKey)
	if !ok {
		return nil
	}
	meta, err := decodeMetadata(blob)
	if err != nil {
		return nil
	}
	return meta
}

// ClearPending discards stashed two-factor metadata.
func (m *Manager) ClearPending() {
	m.scoped.Delete(pendingKey)
}

// MarkLoggedOut records the logout instant so racing in-flight requests
// can be short-circuited for a brief window.
func (m *Manager) MarkLoggedOut() {
	m.scoped.Put(loggedOutKey, []byte(strconv.FormatInt(m.now().UnixMilli(), 10)))
}

// RecentlyLoggedOut reports whether a logout happened within window.
func (m *Manager) RecentlyLoggedOut(window time.Duration) bool {
	blob, ok := m.scoped.Get(loggedOutKey)
	if !ok {
		return false
	}
	at, err := strconv.ParseInt(string(blob), 10, 64)
	if err != nil {
		return false
	}
	return m.now().UnixMilli()-at <= window.Milliseconds()
}
