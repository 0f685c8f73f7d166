package planar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/planar/internal/parallel"
)

// PixelFunc computes a new cell value from the cell's channel coordinates
// and its current value.
type PixelFunc[T Scalar] func(x, y int, v T) T

// sharedPool serves every call that does not ask for its own worker count.
var sharedPool = sync.OnceValue(func() *parallel.WorkerPool {
	return parallel.NewWorkerPool(0)
})

func (o processOptions) workerPool() (pool *parallel.WorkerPool, release func()) {
	if o.workers <= 0 {
		return sharedPool(), func() {}
	}
	p := parallel.NewWorkerPool(o.workers)
	return p, p.Close
}

// Map replaces every cell with fn(x, y, v), processing chunks in parallel.
//
// Map acquires the write lock with ctx, so it waits for outstanding guards
// and returns ctx.Err() if ctx ends first. fn is called concurrently for
// different chunks and must be safe for that.
func (c *Channel[T]) Map(ctx context.Context, fn PixelFunc[T], opts ...ProcessOption) error {
	return c.ProcessChunks(ctx, func(chunk *ChunkGuard[T]) error {
		chunk.Apply(fn)
		return nil
	}, opts...)
}

// ProcessChunks write-locks the channel, partitions it and calls fn once per
// chunk on a worker pool. Chunks are released as soon as fn returns; the
// lock is released before ProcessChunks returns.
//
// Errors from fn are joined. If ctx ends while chunks are pending, those
// chunks are skipped and ctx.Err() is included in the result.
func (c *Channel[T]) ProcessChunks(ctx context.Context, fn func(*ChunkGuard[T]) error, opts ...ProcessOption) error {
	o := newProcessOptions(opts)

	w, err := c.WriteContext(ctx)
	if err != nil {
		return err
	}
	defer w.Release()

	it := w.Chunks(o.chunkEdge)
	defer it.Close()
	pool, release := o.workerPool()
	defer release()

	var (
		mu      sync.Mutex
		errs    []error
		skipped atomic.Bool
	)

	work := make([]func(), 0, it.Len())
	for chunk := range it.All() {
		work = append(work, func() {
			defer chunk.Release()
			if ctx.Err() != nil {
				skipped.Store(true)
				return
			}
			if err := fn(chunk); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("chunk %v: %w", chunk.Rect(), err))
				mu.Unlock()
			}
		})
	}

	pool.ExecuteAll(work)

	if skipped.Load() {
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}
