package booking

import "errors"

// Domain error kinds. Handlers map these to HTTP statuses; storage maps
// database failures (missing rows, exclusion violations, guarded updates
// that matched nothing) onto the same sentinels.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
)

// Error pairs a kind sentinel with a caller-facing reason, so handlers can
// classify with errors.Is while still reporting the specific failure.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}
