package planar

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"math/bits"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/planar/alloc"
	"github.com/gogpu/planar/internal/lockstate"
)

// ChunkSize is the default chunk edge in cells.
// A 64×64 float32 chunk is 16KB, matching the tile size used for parallel
// rasterization.
const ChunkSize = 64

// Scalar is the set of cell types a Channel can hold.
type Scalar interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Channel is a single plane of width×height cells guarded by a
// single-writer/multi-reader lock.
//
// Cells are stored row-major: cell (x, y) is at index y*width + x.
// A new Channel is zero-filled.
//
// Thread safety: all methods are safe for concurrent use. Cell access is
// only possible through guards, which enforce the locking protocol.
type Channel[T Scalar] struct {
	state lockstate.State
	alloc alloc.Allocator[T]

	// cells is read or replaced only while a hold on state is outstanding,
	// or by Close after state has been closed.
	cells []T

	// size is published atomically so Width/Height never need the lock.
	size atomic.Pointer[image.Point]
}

// NewChannel allocates a zero-filled width×height channel.
//
// It returns an *AllocError (matching ErrAlloc) when a dimension is not
// positive, the cell count overflows, or the allocator cannot provide the
// storage.
func NewChannel[T Scalar](width, height int, opts ...ChannelOption[T]) (*Channel[T], error) {
	o := defaultChannelOptions[T]()
	for _, opt := range opts {
		opt(&o)
	}

	cells, err := allocCells(o.allocator, width, height)
	if err != nil {
		return nil, err
	}

	c := &Channel[T]{
		alloc: o.allocator,
		cells: cells,
	}
	c.size.Store(&image.Point{X: width, Y: height})

	Logger().Debug("planar: channel allocated", "width", width, "height", height, "cells", len(cells))
	return c, nil
}

// cellCount validates a layout and returns width*height.
func cellCount[T Scalar](width, height int) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("%w: %dx%d", ErrInvalidLayout, width, height)
	}

	var zero T
	hi, lo := bits.Mul64(uint64(width), uint64(height))
	if hi != 0 || lo > uint64(math.MaxInt)/uint64(unsafe.Sizeof(zero)) {
		return 0, fmt.Errorf("%w: %dx%d overflows", ErrInvalidLayout, width, height)
	}
	return int(lo), nil
}

func allocCells[T Scalar](a alloc.Allocator[T], width, height int) ([]T, error) {
	n, err := cellCount[T](width, height)
	if err != nil {
		return nil, &AllocError{Width: width, Height: height, Err: err}
	}

	cells, err := a.Alloc(n)
	if err != nil {
		return nil, &AllocError{Width: width, Height: height, Err: err}
	}
	if len(cells) != n {
		a.Free(cells)
		return nil, &AllocError{
			Width:  width,
			Height: height,
			Err:    fmt.Errorf("allocator returned %d cells, want %d", len(cells), n),
		}
	}
	return cells, nil
}

// Width returns the channel width in cells.
func (c *Channel[T]) Width() int {
	return c.size.Load().X
}

// Height returns the channel height in cells.
func (c *Channel[T]) Height() int {
	return c.size.Load().Y
}

// Size returns the channel dimensions as a point (width, height).
func (c *Channel[T]) Size() image.Point {
	return *c.size.Load()
}

// Bounds returns the channel rectangle (0, 0)-(width, height).
func (c *Channel[T]) Bounds() image.Rectangle {
	return image.Rectangle{Max: c.Size()}
}

// Len returns the number of cells.
func (c *Channel[T]) Len() int {
	s := c.size.Load()
	return s.X * s.Y
}

// Locked returns the raw lock word: 0 unlocked, k > 0 readers, -1 writer.
// The value is a snapshot for diagnostics and tests.
func (c *Channel[T]) Locked() int64 {
	return c.state.Load()
}

// Closed reports whether the channel has been destroyed.
func (c *Channel[T]) Closed() bool {
	return c.state.Closed()
}

// TryRead acquires a read guard if no writer holds the channel.
func (c *Channel[T]) TryRead() (*ReadGuard[T], bool) {
	c.mustOpen()
	if !c.state.TryRead() {
		return nil, false
	}
	return c.newReadGuard(), true
}

// Read acquires a read guard, parking the calling goroutine while a writer
// holds the channel.
func (c *Channel[T]) Read() *ReadGuard[T] {
	g, err := c.ReadContext(context.Background())
	if err != nil {
		panic(err)
	}
	return g
}

// ReadContext acquires a read guard, parking until one is available or ctx
// ends. On cancellation it returns ctx.Err() and the lock is unchanged.
func (c *Channel[T]) ReadContext(ctx context.Context) (*ReadGuard[T], error) {
	c.mustOpen()
	if err := c.state.Read(ctx); err != nil {
		return nil, c.acquireError(err)
	}
	return c.newReadGuard(), nil
}

// TryWrite acquires the write guard if the channel is unlocked.
func (c *Channel[T]) TryWrite() (*WriteGuard[T], bool) {
	c.mustOpen()
	if !c.state.TryWrite() {
		return nil, false
	}
	return c.newWriteGuard(), true
}

// Write acquires the write guard, parking the calling goroutine until every
// other guard is released.
func (c *Channel[T]) Write() *WriteGuard[T] {
	g, err := c.WriteContext(context.Background())
	if err != nil {
		panic(err)
	}
	return g
}

// WriteContext acquires the write guard, parking until it is available or
// ctx ends. On cancellation it returns ctx.Err() and the lock is unchanged.
func (c *Channel[T]) WriteContext(ctx context.Context) (*WriteGuard[T], error) {
	c.mustOpen()
	if err := c.state.Write(ctx); err != nil {
		return nil, c.acquireError(err)
	}
	return c.newWriteGuard(), nil
}

// Close destroys the channel and returns its cells to the allocator.
//
// Close panics if any guard (or chunk) is outstanding. Calling Close again
// after a successful Close is a no-op. Any later acquisition panics.
func (c *Channel[T]) Close() {
	if c.state.Closed() {
		return
	}
	if !c.state.TryWrite() {
		if c.state.Closed() {
			return // lost a race with a concurrent Close
		}
		c.busyPanic("")
	}
	c.closeHeld()
}

// closeHeld destroys a channel whose write lock the caller holds.
func (c *Channel[T]) closeHeld() {
	c.state.CloseHeld()

	cells := c.cells
	c.cells = nil
	c.alloc.Free(cells)

	Logger().Debug("planar: channel freed", "cells", len(cells))
}

// busyPanic reports a Close attempted while guards are outstanding.
func (c *Channel[T]) busyPanic(name string) {
	held := c.state.Load()
	Logger().Error("planar: channel closed with outstanding guards", "channel", name, "lock", held)
	if name != "" {
		panic(fmt.Sprintf("planar: Close with outstanding guards on %q (lock state %d)", name, held))
	}
	panic(fmt.Sprintf("planar: Close with outstanding guards (lock state %d)", held))
}

func (c *Channel[T]) mustOpen() {
	if c.state.Closed() {
		panic(ErrClosed)
	}
}

// acquireError turns a closed-while-waiting result into the same fatal
// failure as acquiring a closed channel; context errors pass through.
func (c *Channel[T]) acquireError(err error) error {
	if errors.Is(err, lockstate.ErrClosed) {
		Logger().Error("planar: channel closed while an acquisition was waiting")
		panic(ErrClosed)
	}
	return err
}

func (c *Channel[T]) newReadGuard() *ReadGuard[T] {
	s := c.size.Load()
	return &ReadGuard[T]{
		ch:     c,
		cells:  c.cells,
		width:  s.X,
		height: s.Y,
	}
}

func (c *Channel[T]) newWriteGuard() *WriteGuard[T] {
	s := c.size.Load()
	g := &WriteGuard[T]{
		ch:     c,
		hold:   &writeHold{state: &c.state},
		cells:  c.cells,
		width:  s.X,
		height: s.Y,
	}
	g.hold.refs.Store(1)
	return g
}
