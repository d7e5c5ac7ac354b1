package session

import "errors"

// Failure classes. Handlers map these to HTTP statuses with errors.Is; every
// rejection happens before any state change, except ErrPersistence which
// reports a submission that already moved the session to FAILED.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid session state")
	ErrProtocolMismatch = errors.New("protocol mismatch")
	ErrPersistence      = errors.New("persistence failure")
)
