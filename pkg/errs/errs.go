package errs

import (
	"errors"
	"fmt"
)

// Failure kinds shared by the scheduler and its collaborators. Adapters wrap
// these with fmt.Errorf("...: %w", ...) so callers can classify with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthenticated = errors.New("not authenticated with calendar")
	ErrExternalService = errors.New("calendar service error")

	// ErrTimeout is an ErrExternalService raised when a calendar call exceeds its deadline.
	ErrTimeout = fmt.Errorf("%w: request timed out", ErrExternalService)
)

// PartialFailureError is returned when a multi-slot booking created some,
// but not all, of the requested sessions. The created sessions stay committed.
type PartialFailureError struct {
	SessionsCreated int
	Requested       int
	Err             error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("scheduled %d of %d sessions before failing: %v", e.SessionsCreated, e.Requested, e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

// Invalid returns an ErrInvalidInput carrying a formatted reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// NotFound returns an ErrNotFound naming the missing resource.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}
