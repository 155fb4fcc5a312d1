package auth

import "time"

// EventKind identifies the kind of lifecycle event.
type EventKind string

const (
	// EventLogout fires once per logout cycle, after local state and
	// storage have been cleared.
	EventLogout EventKind = "logout"
	// EventSessionWarning fires when the session is close to expiry.
	EventSessionWarning EventKind = "session_warning"
)

// Event is a session-lifecycle notification delivered to subscribers.
type Event struct {
	Kind            EventKind
	Reason          string
	Message         string
	TimeUntilExpiry time.Duration
}

// EventFunc is the callback invoked for each event. Callbacks run
// synchronously on the emitting goroutine and should return quickly.
type EventFunc func(Event)

// Subscribe registers a lifecycle event callback and returns a cancel
// function that removes it.
func (s *Store) Subscribe(fn EventFunc) (cancel func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()
	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

// EmitSessionWarning notifies subscribers that the session will expire
// soon. The validator calls this when the backend reports low remaining
// time.
func (s *Store) EmitSessionWarning(remaining time.Duration, message string) {
	s.emit(Event{Kind: EventSessionWarning, Message: message, TimeUntilExpiry: remaining})
}

func (s *Store) emit(e Event) {
	s.subsMu.Lock()
	fns := make([]EventFunc, 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}
