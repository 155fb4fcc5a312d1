// Package permission implements read-side access decisions for asset
// categories. Decisions are pure functions over a snapshot of the
// permission map and default to deny whenever data is missing.
package permission

import "time"

// Level is the access level requested for a category.
type Level string

const (
	LevelRead  Level = "read"
	LevelWrite Level = "write"
	LevelAdmin Level = "admin"
)

// Descriptor is the per-category permission record as served by the
// backend. ExpiresAt, when set and in the past, voids all flags.
type Descriptor struct {
	HasAccess bool       `json:"has_access"`
	CanRead   bool       `json:"can_read"`
	CanWrite  bool       `json:"can_write"`
	CanAdmin  bool       `json:"can_admin"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Map associates asset category keys with their descriptors.
type Map map[string]Descriptor

// Guard answers permission queries against one immutable snapshot.
// Construct a fresh Guard after every permission reload.
type Guard struct {
	admin bool
	perms Map
	now   func() time.Time
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithClock overrides the time source used for expiry checks, for tests.
func WithClock(now func() time.Time) GuardOption {
	return func(g *Guard) { g.now = now }
}

// NewGuard creates a Guard over the given snapshot. A nil map is valid
// and denies everything for non-admins.
func NewGuard(admin bool, perms Map, opts ...GuardOption) *Guard {
	g := &Guard{admin: admin, perms: perms, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// HasPermission reports whether the requested level is granted for the
// category. Admins bypass all checks; everyone else is denied unless a
// live descriptor explicitly grants the level.
func (g *Guard) HasPermission(category string, level Level) bool {
	if g.admin {
		return true
	}
	d, ok := g.lookup(category)
	if !ok {
		return false
	}
	switch level {
	case LevelRead:
		return d.CanRead
	case LevelWrite:
		return d.CanWrite
	case LevelAdmin:
		return d.CanAdmin
	default:
		return false
	}
}

// CanAccessCategory reports whether the category is visible at all.
func (g *Guard) CanAccessCategory(category string) bool {
	if g.admin {
		return true
	}
	d, ok := g.lookup(category)
	return ok && d.HasAccess
}

// lookup returns the descriptor unless it is missing or expired.
func (g *Guard) lookup(category string) (Descriptor, bool) {
	d, ok := g.perms[category]
	if !ok {
		return Descriptor{}, false
	}
	if d.ExpiresAt != nil && d.ExpiresAt.Before(g.now()) {
		return Descriptor{}, false
	}
	return d, true
}
