package alloc

import (
	"fmt"
	"sync/atomic"
)

// Limit wraps an allocator with a budget of live cells.
//
// Requests that would push the live count past the budget fail with
// ErrExhausted and leave the budget untouched.
type Limit[T any] struct {
	next   Allocator[T]
	budget int64
	inUse  atomic.Int64
}

// NewLimit creates a budgeted allocator. A nil next uses Heap.
func NewLimit[T any](next Allocator[T], maxCells int) *Limit[T] {
	if next == nil {
		next = Heap[T]{}
	}
	return &Limit[T]{next: next, budget: int64(maxCells)}
}

// Alloc reserves n cells from the budget, then allocates from the wrapped allocator.
func (l *Limit[T]) Alloc(n int) ([]T, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d cells", ErrInvalidSize, n)
	}

	want := int64(n)
	for {
		cur := l.inUse.Load()
		if cur+want > l.budget {
			return nil, fmt.Errorf("%w: %d cells requested, %d of %d in use",
				ErrExhausted, n, cur, l.budget)
		}
		if l.inUse.CompareAndSwap(cur, cur+want) {
			break
		}
	}

	cells, err := l.next.Alloc(n)
	if err != nil {
		l.inUse.Add(-want)
		return nil, err
	}
	return cells, nil
}

// Free returns cells to the wrapped allocator and credits the budget.
func (l *Limit[T]) Free(cells []T) {
	if len(cells) == 0 {
		return
	}
	l.inUse.Add(-int64(len(cells)))
	l.next.Free(cells)
}

// InUse returns the number of live cells.
func (l *Limit[T]) InUse() int {
	return int(l.inUse.Load())
}

// Budget returns the configured maximum number of live cells.
func (l *Limit[T]) Budget() int {
	return int(l.budget)
}
