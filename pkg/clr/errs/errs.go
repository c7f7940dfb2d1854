// Package errs defines the error taxonomy shared by the clr packages.
//
// Callers classify failures with errors.Is against the exported sentinels.
// Internal invariant violations are not returned; they are raised as panics
// carrying an *InvariantError.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrMalformedImage is returned for any image that fails verification or
	// whose lazily decoded content turns out to be inconsistent.
	ErrMalformedImage = errors.New("not a valid managed executable")

	// ErrResourceUnavailable is returned when a file cannot be mapped.
	ErrResourceUnavailable = errors.New("resource unavailable")

	// ErrUseAfterDispose is returned by every accessor once the owning image
	// has been closed.
	ErrUseAfterDispose = errors.New("use after dispose")

	// ErrIndexOutOfRange is returned for caller supplied indices outside
	// [0, count).
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrNoMetadata is returned when metadata is requested from a module
	// file that does not carry any.
	ErrNoMetadata = errors.New("module has no metadata")
)

// Malformed returns an ErrMalformedImage naming the offending file.
func Malformed(name string) error {
	return errors.Wrapf(ErrMalformedImage, "%s", name)
}

// Unavailable wraps an OS level cause for the file at path.
func Unavailable(path string, cause error) error {
	return &ResourceError{Path: path, Cause: cause}
}

// OutOfRange returns an ErrIndexOutOfRange describing index and count.
func OutOfRange(index, count int) error {
	return errors.Wrapf(ErrIndexOutOfRange, "index %d not in [0, %d)", index, count)
}

// Disposed returns an ErrUseAfterDispose naming the closed file.
func Disposed(name string) error {
	return errors.Wrapf(ErrUseAfterDispose, "%s", name)
}

// ResourceError reports a file that could not be opened or mapped.
type ResourceError struct {
	Path  string
	Cause error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Path, e.Cause)
}

// Unwrap returns the OS cause.
func (e *ResourceError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrResourceUnavailable.
func (e *ResourceError) Is(target error) bool {
	return target == ErrResourceUnavailable
}

// InvariantError is the panic value raised when the reader's own logic
// breaks one of its invariants. It never describes bad input.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "internal error: " + e.Msg
}

// VerifyError records which verification stage rejected an image. It is
// logged for diagnostics; callers outside the reader only ever see
// ErrMalformedImage.
type VerifyError struct {
	Stage  string
	Reason string
}

// Verify returns a *VerifyError for stage.
func Verify(stage, format string, args ...interface{}) error {
	return &VerifyError{Stage: stage, Reason: fmt.Sprintf(format, args...)}
}

func (e *VerifyError) Error() string {
	return e.Stage + ": " + e.Reason
}

// Is reports whether target is ErrMalformedImage.
func (e *VerifyError) Is(target error) bool {
	return target == ErrMalformedImage
}
