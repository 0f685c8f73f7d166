// Package alloc provides the backing storage for planar channels.
//
// An Allocator hands out zeroed, contiguous cell slices and takes them back
// exactly once. Three implementations are provided:
//
//   - Heap: plain Go heap allocation, the default.
//   - Pool: reuses freed slices of the same length, reducing GC pressure
//     for workloads that create and destroy same-sized channels.
//   - Limit: caps the number of live cells handed out by another allocator,
//     reporting ErrExhausted instead of growing without bound.
package alloc

import (
	"errors"
	"fmt"
)

// Common allocation errors.
var (
	// ErrInvalidSize is returned when the requested cell count is not positive.
	ErrInvalidSize = errors.New("alloc: invalid size")

	// ErrExhausted is returned when the allocator cannot satisfy a request.
	ErrExhausted = errors.New("alloc: exhausted")
)

// Allocator provides zero-initialized contiguous cell storage.
//
// Alloc returns a slice of exactly n zeroed cells. The caller becomes the
// single owner and must hand it back through Free exactly once.
//
// Implementations must be safe for concurrent use.
type Allocator[T any] interface {
	Alloc(n int) ([]T, error)
	Free(cells []T)
}

// Heap allocates from the Go heap. Free drops the reference and lets the
// collector reclaim the memory.
type Heap[T any] struct{}

// Alloc returns n zeroed cells.
func (Heap[T]) Alloc(n int) ([]T, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d cells", ErrInvalidSize, n)
	}
	return make([]T, n), nil
}

// Free is a no-op for heap storage.
func (Heap[T]) Free([]T) {}
