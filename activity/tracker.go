// Package activity records user interaction so idle-expiry reflects
// real use. Events arrive from the embedding application (key presses,
// pointer moves, scrolling); writes to session storage are debounced so
// a burst of interaction costs one write.
package activity

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/PMGEECODE/ArdhiAssets-sub001/session"
)

// Kind labels the interaction that triggered an activity record.
type Kind string

const (
	KindPointer  Kind = "pointer"
	KindKeyboard Kind = "keyboard"
	KindScroll   Kind = "scroll"
	KindTouch    Kind = "touch"
)

// defaultDebounce is the minimum interval between persisted activity
// timestamps.
const defaultDebounce = time.Second

// Tracker debounces interaction events into session-metadata activity
// stamps. It only records while the active predicate holds, and Stop
// cancels any pending write so nothing can land after a logout has
// cleared storage.
type Tracker struct {
	sessions *session.Manager
	active   func() bool
	debounce time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	timer     *time.Timer
	lastWrite time.Time
	stopped   bool
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithDebounce sets the minimum interval between persisted writes.
func WithDebounce(d time.Duration) TrackerOption {
	return func(t *Tracker) { t.debounce = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = l }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a Tracker. The active predicate gates recording;
// pass the auth store's IsAuthenticated so anonymous interaction costs
// nothing.
func NewTracker(sessions *session.Manager, active func() bool, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		sessions: sessions,
		active:   active,
		debounce: defaultDebounce,
		now:      time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	if t.logger == nil {
		t.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return t
}

// Record notes one interaction event. The first event after a quiet
// period writes immediately; events inside the debounce window coalesce
// into a single deferred write.
func (t *Tracker) Record(kind Kind) {
	if !t.active() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}

	now := t.now()
	since := now.Sub(t.lastWrite)
	if since >= t.debounce {
		t.lastWrite = now
		t.sessions.Touch()
		return
	}
	if t.timer != nil {
		// A write is already scheduled; this event rides along.
		return
	}
	t.timer = time.AfterFunc(t.debounce-since, t.flush)
}

// flush performs a deferred write, re-checking that recording is still
// allowed: the session may have ended while the timer was pending.
func (t *Tracker) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timer = nil
	if t.stopped || !t.active() {
		return
	}
	t.lastWrite = t.now()
	t.sessions.Touch()
}

// Stop cancels any pending write and stops recording. Called on logout
// before session storage is cleared; a stopped Tracker can be restarted
// with Start after the next login.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Start re-enables recording after a Stop.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = false
	t.lastWrite = time.Time{}
}

// pendingWrites reports whether a deferred write is scheduled.
func (t *Tracker) pendingWrites() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}
