package planar

import (
	"fmt"
	"image"
	"sync/atomic"

	"github.com/gogpu/planar/internal/lockstate"
)

// ReadGuard is a shared view of a Channel's cells.
//
// Any number of read guards may coexist; none may coexist with a write
// guard. A guard may be moved to another goroutine but must be released
// exactly once.
type ReadGuard[T Scalar] struct {
	ch       *Channel[T]
	cells    []T
	width    int
	height   int
	released atomic.Bool
}

// Raw returns all width*height cells in row-major order.
// The slice must be treated as read-only and not retained past Release.
func (g *ReadGuard[T]) Raw() []T {
	g.live()
	return g.cells
}

// At returns the cell at (x, y). It panics if the point is out of range.
func (g *ReadGuard[T]) At(x, y int) T {
	g.live()
	checkIndex(x, y, g.width, g.height)
	return g.cells[y*g.width+x]
}

// Row returns row y as a read-only slice.
func (g *ReadGuard[T]) Row(y int) []T {
	g.live()
	checkIndex(0, y, g.width, g.height)
	off := y * g.width
	return g.cells[off : off+g.width : off+g.width]
}

// Clone returns a copy of all cells.
func (g *ReadGuard[T]) Clone() []T {
	g.live()
	out := make([]T, len(g.cells))
	copy(out, g.cells)
	return out
}

// Width returns the guarded plane width.
func (g *ReadGuard[T]) Width() int { return g.width }

// Height returns the guarded plane height.
func (g *ReadGuard[T]) Height() int { return g.height }

// Bounds returns the guarded plane rectangle.
func (g *ReadGuard[T]) Bounds() image.Rectangle { return image.Rect(0, 0, g.width, g.height) }

// Release gives up the read hold. It panics if called twice.
func (g *ReadGuard[T]) Release() {
	if !g.released.CompareAndSwap(false, true) {
		panic("planar: read guard released twice")
	}
	g.cells = nil
	g.ch.state.ReleaseRead()
}

func (g *ReadGuard[T]) live() {
	if g.cells == nil {
		panic("planar: use of released read guard")
	}
}

// writeHold counts the owners of one write acquisition: the WriteGuard,
// an unfinished ChunkIter, and every yielded ChunkGuard. The write lock is
// released when the last owner drops.
type writeHold struct {
	refs  atomic.Int64
	state *lockstate.State
}

func (h *writeHold) retain() {
	h.refs.Add(1)
}

func (h *writeHold) drop() {
	switch n := h.refs.Add(-1); {
	case n == 0:
		h.state.ReleaseWrite()
	case n < 0:
		panic("planar: write hold dropped more times than retained")
	}
}

// WriteGuard is the exclusive, mutable view of a Channel's cells.
//
// At most one write guard exists per channel. It may be partitioned into
// chunks with Chunks, after which the guard's own cell accessors panic;
// the guard must still be released.
type WriteGuard[T Scalar] struct {
	ch       *Channel[T]
	hold     *writeHold
	cells    []T
	width    int
	height   int
	consumed bool
	released atomic.Bool
}

// Raw returns all width*height cells in row-major order for mutation.
// The slice must not be retained past Release or Chunks.
func (g *WriteGuard[T]) Raw() []T {
	g.live()
	return g.cells
}

// At returns the cell at (x, y). It panics if the point is out of range.
func (g *WriteGuard[T]) At(x, y int) T {
	g.live()
	checkIndex(x, y, g.width, g.height)
	return g.cells[y*g.width+x]
}

// Set stores v at (x, y). It panics if the point is out of range.
func (g *WriteGuard[T]) Set(x, y int, v T) {
	g.live()
	checkIndex(x, y, g.width, g.height)
	g.cells[y*g.width+x] = v
}

// Row returns row y for mutation.
func (g *WriteGuard[T]) Row(y int) []T {
	g.live()
	checkIndex(0, y, g.width, g.height)
	off := y * g.width
	return g.cells[off : off+g.width : off+g.width]
}

// Fill sets every cell to v.
func (g *WriteGuard[T]) Fill(v T) {
	g.live()
	for i := range g.cells {
		g.cells[i] = v
	}
}

// CopyFrom replaces the contents with the cells of src, which must guard a
// different channel. See CopyFromSlice for reallocation rules.
func (g *WriteGuard[T]) CopyFrom(src *ReadGuard[T]) error {
	return g.CopyFromSlice(src.Width(), src.Height(), src.Raw())
}

// CopyFromSlice replaces the contents with a width×height row-major buffer.
//
// If the dimensions differ from the channel's, the channel is reallocated
// through its allocator and takes the new size; the old cells are freed.
// len(cells) must equal width*height.
func (g *WriteGuard[T]) CopyFromSlice(width, height int, cells []T) error {
	g.live()

	n, err := cellCount[T](width, height)
	if err != nil {
		return &AllocError{Width: width, Height: height, Err: err}
	}
	if len(cells) != n {
		return fmt.Errorf("%w: %d cells for %dx%d", ErrDimensionMismatch, len(cells), width, height)
	}

	if width != g.width || height != g.height {
		fresh, err := allocCells(g.ch.alloc, width, height)
		if err != nil {
			return err
		}
		old := g.ch.cells
		g.ch.cells = fresh
		g.ch.size.Store(&image.Point{X: width, Y: height})
		g.ch.alloc.Free(old)

		Logger().Debug("planar: channel reallocated",
			"from", image.Pt(g.width, g.height), "to", image.Pt(width, height))

		g.cells, g.width, g.height = fresh, width, height
	}

	copy(g.cells, cells)
	return nil
}

// Width returns the guarded plane width.
func (g *WriteGuard[T]) Width() int { return g.width }

// Height returns the guarded plane height.
func (g *WriteGuard[T]) Height() int { return g.height }

// Bounds returns the guarded plane rectangle.
func (g *WriteGuard[T]) Bounds() image.Rectangle { return image.Rect(0, 0, g.width, g.height) }

// Release gives up the guard's share of the write hold. If chunks derived
// from this guard are still outstanding, the lock is released when the
// last of them is. It panics if called twice.
func (g *WriteGuard[T]) Release() {
	if !g.released.CompareAndSwap(false, true) {
		panic("planar: write guard released twice")
	}
	g.cells = nil
	g.hold.drop()
}

func (g *WriteGuard[T]) live() {
	if g.cells != nil {
		return
	}
	if g.consumed && !g.released.Load() {
		panic("planar: write guard used after Chunks")
	}
	panic("planar: use of released write guard")
}

func checkIndex(x, y, width, height int) {
	if uint(x) >= uint(width) || uint(y) >= uint(height) {
		panic(fmt.Sprintf("planar: index (%d, %d) out of bounds %dx%d", x, y, width, height))
	}
}
