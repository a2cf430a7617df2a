package core

import (
	"errors"
	"fmt"
)

var (
	// ErrLink matches every *LinkError through errors.Is.
	ErrLink = errors.New("drone link error")

	// ErrGuardRejected is returned for an interactive command issued while a route runs.
	ErrGuardRejected = errors.New("rejected: a route is running")

	// ErrAlreadyRunning is returned when starting a route while one runs.
	ErrAlreadyRunning = errors.New("route already running")

	// ErrRouteBusy is returned when loading a route while one runs.
	ErrRouteBusy = errors.New("cannot load a route while one is running")

	// ErrRouteIO wraps failures to read a route file.
	ErrRouteIO = errors.New("route file unreadable")

	// ErrNoFrame is returned by snapshot when nothing was rendered yet.
	ErrNoFrame = errors.New("no frame available")

	// ErrOutOfRange is returned for a distance or rotation outside its bounds.
	ErrOutOfRange = errors.New("value out of range")

	// ErrShuttingDown is returned for device work requested once the session
	// has started to shut down.
	ErrShuttingDown = errors.New("pilot is shutting down")
)

// LinkError reports a failed or timed out device command.
type LinkError struct {
	// Op is the SDK command that failed, e.g. "forward 50".
	Op  string
	Err error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link %q: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

func (e *LinkError) Is(target error) bool { return target == ErrLink }

// NewLinkError wraps err for op.
func NewLinkError(op string, err error) error {
	return &LinkError{Op: op, Err: err}
}
