package errs

import (
	"errors"
	"strconv"
)

// Common sentinel errors for cross-layer signaling.
var (
	ErrNotFound = errors.New("not_found")
	ErrInvalid  = errors.New("invalid")
	// ErrConflict marks an external write that collided with another writer's entry.
	ErrConflict = errors.New("conflict")

	// Posting validation failures. Nothing is appended or persisted when one is returned.
	ErrUnknownAccount = errors.New("unknown_account")
	ErrInvalidAmount  = errors.New("invalid_amount")
	ErrMalformedEntry = errors.New("malformed_entry")
	ErrUnbalanced     = errors.New("unbalanced_entry")
)

// LineError ties a validation failure to a line index of the proposed entry.
type LineError struct {
	Line int
	Msg  string
	Err  error
}

func (e *LineError) Error() string {
	return "line[" + strconv.Itoa(e.Line) + "]: " + e.Msg
}

func (e *LineError) Unwrap() error { return e.Err }

// Line builds a LineError wrapping a sentinel.
func Line(i int, sentinel error, msg string) error {
	return &LineError{Line: i, Msg: msg, Err: sentinel}
}
