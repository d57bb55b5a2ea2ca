package surface

import (
	"context"
	"errors"
	"fmt"
)

// Transient conditions. Heuristic code treats them as "nothing found".
var (
	ErrTimeout    = errors.New("surface: timeout")
	ErrNotFound   = errors.New("surface: element not found")
	ErrNotVisible = errors.New("surface: element not visible")
	ErrDetached   = errors.New("surface: element or frame detached")
	// ErrBadSelector reports a selector the engine cannot parse; it reads
	// as a miss.
	ErrBadSelector = errors.New("surface: bad selector")
)

// ErrUnsupported is returned by surfaces that cannot perform an operation.
var ErrUnsupported = errors.New("surface: operation not supported")

// FatalError marks a fault that makes further work on the page pointless:
// a closed session, a crashed target, a malformed script.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("surface: fatal: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as a FatalError for op. A nil err stays nil.
func Fatal(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return err
	}
	return &FatalError{Op: op, Err: err}
}

// IsFatal reports whether err carries a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// IsTimeout reports whether err is a wait that ran out of time.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsTransient reports whether err is an expected DOM timing condition.
func IsTransient(err error) bool {
	return IsTimeout(err) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNotVisible) || errors.Is(err, ErrDetached) ||
		errors.Is(err, ErrBadSelector)
}
