package planar

import (
	"fmt"
	"image"
	"iter"
	"sync/atomic"
)

// ChunkCount returns the number of chunks a width×height plane splits into
// with the given edge: ceil(height/edge) * ceil(width/edge).
// edge <= 0 selects ChunkSize.
func ChunkCount(width, height, edge int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	if edge <= 0 {
		edge = ChunkSize
	}
	return ceilDiv(width, edge) * ceilDiv(height, edge)
}

// ceilDiv returns ceil(a/b) for a > 0, b > 0 without overflowing near
// math.MaxInt.
func ceilDiv(a, b int) int {
	return (a-1)/b + 1
}

// Chunks partitions the guarded plane into edge×edge blocks and returns an
// iterator over them. edge <= 0 selects ChunkSize.
//
// Chunk i covers rows [row*edge, min(height, (row+1)*edge)) and columns
// [col*edge, min(width, (col+1)*edge)) with row = i / cols and
// col = i % cols, so chunks come out left to right, then top to bottom.
//
// Chunks consumes the guard: its own accessors panic afterwards and a
// second call panics. The guard must still be released; the write lock
// is held until the guard, the iterator and every yielded chunk are done.
func (g *WriteGuard[T]) Chunks(edge int) *ChunkIter[T] {
	g.live()
	if edge <= 0 {
		edge = ChunkSize
	}

	it := &ChunkIter[T]{
		hold:   g.hold,
		cells:  g.cells,
		width:  g.width,
		height: g.height,
		edge:   edge,
		cols:   ceilDiv(g.width, edge),
	}
	it.total = it.cols * ceilDiv(g.height, edge)
	it.hold.retain()

	g.consumed = true
	g.cells = nil

	Logger().Debug("planar: chunk partition",
		"width", it.width, "height", it.height, "edge", edge, "chunks", it.total)
	return it
}

// ChunkIter yields the chunks of one write acquisition.
//
// The iterator is not restartable and must be driven from a single
// goroutine. The chunks it yields may be used from any goroutine.
// An iterator that is neither exhausted nor closed keeps the channel
// write-locked.
type ChunkIter[T Scalar] struct {
	hold   *writeHold
	cells  []T
	width  int
	height int
	edge   int
	cols   int
	total  int
	next   int
	done   bool
}

// Next returns the next chunk, or false once every chunk has been yielded.
func (it *ChunkIter[T]) Next() (*ChunkGuard[T], bool) {
	if it.next >= it.total {
		it.Close()
		return nil, false
	}

	i := it.next
	it.next++

	row, col := i/it.cols, i%it.cols
	x0, y0 := col*it.edge, row*it.edge
	x1, y1 := x0+min(it.edge, it.width-x0), y0+min(it.edge, it.height-y0)

	// Each row slice is capped at its right edge so a chunk can never
	// reach into a neighbour's cells.
	rows := make([][]T, y1-y0)
	for y := y0; y < y1; y++ {
		off := y * it.width
		rows[y-y0] = it.cells[off+x0 : off+x1 : off+x1]
	}

	it.hold.retain()
	c := &ChunkGuard[T]{
		hold: it.hold,
		rows: rows,
		min:  image.Point{X: x0, Y: y0},
		max:  image.Point{X: x1, Y: y1},
	}

	if it.next == it.total {
		it.Close()
	}
	return c, true
}

// Len returns the total number of chunks in the partition.
func (it *ChunkIter[T]) Len() int {
	return it.total
}

// Remaining returns the number of chunks not yet yielded.
func (it *ChunkIter[T]) Remaining() int {
	return it.total - it.next
}

// Edge returns the chunk edge length.
func (it *ChunkIter[T]) Edge() int {
	return it.edge
}

// Close abandons the remaining chunks and drops the iterator's share of the
// write hold. Chunks already yielded are unaffected. Close is idempotent.
func (it *ChunkIter[T]) Close() {
	if it.done {
		return
	}
	it.done = true
	it.next = it.total
	it.cells = nil
	it.hold.drop()
}

// All returns the remaining chunks as a sequence. Breaking out of the loop
// closes the iterator.
func (it *ChunkIter[T]) All() iter.Seq[*ChunkGuard[T]] {
	return func(yield func(*ChunkGuard[T]) bool) {
		defer it.Close()
		for {
			c, ok := it.Next()
			if !ok || !yield(c) {
				return
			}
		}
	}
}

// ChunkGuard is a write view of one rectangular block of a channel.
//
// Chunks from the same partition never share cells, so each may be mutated
// from its own goroutine without further synchronization. Local
// coordinates (0, 0) map to the chunk's top-left corner.
type ChunkGuard[T Scalar] struct {
	hold     *writeHold
	rows     [][]T
	min      image.Point
	max      image.Point
	released atomic.Bool
}

// Bounds returns the chunk's top-left corner and exclusive bottom-right
// corner in channel coordinates.
func (c *ChunkGuard[T]) Bounds() (topLeft, bottomRight image.Point) {
	return c.min, c.max
}

// Rect returns the chunk rectangle in channel coordinates.
func (c *ChunkGuard[T]) Rect() image.Rectangle {
	return image.Rectangle{Min: c.min, Max: c.max}
}

// Width returns the chunk width in cells.
func (c *ChunkGuard[T]) Width() int { return c.max.X - c.min.X }

// Height returns the chunk height in cells.
func (c *ChunkGuard[T]) Height() int { return c.max.Y - c.min.Y }

// At returns the cell at local (x, y). It panics if the point is outside
// the chunk.
func (c *ChunkGuard[T]) At(x, y int) T {
	c.live()
	c.check(x, y)
	return c.rows[y][x]
}

// Set stores v at local (x, y). It panics if the point is outside the chunk.
func (c *ChunkGuard[T]) Set(x, y int, v T) {
	c.live()
	c.check(x, y)
	c.rows[y][x] = v
}

// Row returns local row y for mutation.
func (c *ChunkGuard[T]) Row(y int) []T {
	c.live()
	c.check(0, y)
	return c.rows[y]
}

// Fill sets every cell of the chunk to v.
func (c *ChunkGuard[T]) Fill(v T) {
	c.live()
	for _, row := range c.rows {
		for i := range row {
			row[i] = v
		}
	}
}

// Apply replaces every cell with fn(x, y, v), where x and y are channel
// coordinates.
func (c *ChunkGuard[T]) Apply(fn PixelFunc[T]) {
	c.live()
	for ly, row := range c.rows {
		y := c.min.Y + ly
		for lx, v := range row {
			row[lx] = fn(c.min.X+lx, y, v)
		}
	}
}

// Release gives up the chunk. When it is the last owner of the write
// acquisition, the channel is unlocked. It panics if called twice.
func (c *ChunkGuard[T]) Release() {
	if !c.released.CompareAndSwap(false, true) {
		panic("planar: chunk guard released twice")
	}
	c.rows = nil
	c.hold.drop()
}

func (c *ChunkGuard[T]) live() {
	if c.rows == nil {
		panic("planar: use of released chunk guard")
	}
}

func (c *ChunkGuard[T]) check(x, y int) {
	if uint(x) >= uint(c.Width()) || uint(y) >= uint(c.Height()) {
		panic(fmt.Sprintf("planar: chunk index (%d, %d) out of bounds %dx%d at %v",
			x, y, c.Width(), c.Height(), c.min))
	}
}
