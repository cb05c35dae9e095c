package surface

import (
	"errors"
	"fmt"
)

// Errors
var (
	// ErrUnsupportedHandle is returned when a handle kind is offered to a
	// backend that does not understand it.
	ErrUnsupportedHandle = errors.New("surface: unsupported handle kind")

	// ErrNoBuffers is returned by Buffer before the first Resize call.
	ErrNoBuffers = errors.New("surface: no buffers allocated, Resize must be called first")

	// ErrUnsupported is returned for operations a backend cannot perform,
	// like reading back displayed pixels on KMS.
	ErrUnsupported = errors.New("surface: operation not supported by this backend")
)

// InitError is a construction failure from NewContext or CreateSurface.
// It carries the handle the caller supplied, so the caller can recover it
// and retry with a different backend.
type InitError struct {
	// Handle is the display or window handle passed in.
	Handle any

	// Err is the reason construction failed.
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("surface: initialization failed: %v", e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// PlatformError is a runtime failure reported by the underlying display
// platform during resize, buffer access or presentation.
type PlatformError struct {
	// Msg is an optional human-readable description.
	Msg string

	// Cause is the optional underlying error.
	Cause error
}

func (e *PlatformError) Error() string {
	switch {
	case e.Msg != "" && e.Cause != nil:
		return fmt.Sprintf("surface: %s: %v", e.Msg, e.Cause)
	case e.Msg != "":
		return "surface: " + e.Msg
	case e.Cause != nil:
		return fmt.Sprintf("surface: platform error: %v", e.Cause)
	default:
		return "surface: platform error"
	}
}

func (e *PlatformError) Unwrap() error {
	return e.Cause
}

// platformErr wraps an underlying error with a message, the way backends
// report recoverable platform failures.
func platformErr(msg string, cause error) error {
	return &PlatformError{Msg: msg, Cause: cause}
}
