package auth

import "errors"

var (
	// ErrInvalidCredentials indicates the backend rejected the login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoPendingLogin indicates two-factor verification was attempted
	// without a stashed first-factor login.
	ErrNoPendingLogin = errors.New("no pending two-factor login")
	// ErrSessionInvalid indicates the backend declared the session dead.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrSuperseded indicates an operation's result was discarded
	// because a logout won the race.
	ErrSuperseded = errors.New("operation superseded by logout")
)
