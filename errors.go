package planar

import (
	"errors"
	"fmt"
)

// Common errors for channel and layer operations.
var (
	// ErrAlloc matches every *AllocError via errors.Is.
	ErrAlloc = errors.New("planar: allocation failed")

	// ErrInvalidLayout is returned when a dimension is non-positive or the
	// cell count overflows.
	ErrInvalidLayout = errors.New("planar: invalid layout")

	// ErrDimensionMismatch is returned when buffers or channels that must
	// share a size do not.
	ErrDimensionMismatch = errors.New("planar: dimension mismatch")

	// ErrInvalidName is returned for empty channel names.
	ErrInvalidName = errors.New("planar: invalid channel name")

	// ErrClosed is the panic value for use of a destroyed channel.
	ErrClosed = errors.New("planar: channel closed")
)

// AllocError reports that the backing store for a width×height plane could
// not be obtained. Err is ErrInvalidLayout or the allocator's own error.
type AllocError struct {
	Width  int
	Height int
	Err    error
}

func (e *AllocError) Error() string {
	return fmt.Sprintf("planar: allocate %dx%d: %v", e.Width, e.Height, e.Err)
}

func (e *AllocError) Unwrap() error { return e.Err }

// Is reports ErrAlloc as matching so callers can test the class without
// caring about the cause.
func (e *AllocError) Is(target error) bool { return target == ErrAlloc }
