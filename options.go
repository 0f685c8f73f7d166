package planar

import "github.com/gogpu/planar/alloc"

// ChannelOption configures a Channel during creation.
//
// Example:
//
//	pool := alloc.NewPool[float32](8)
//	ch, err := planar.NewChannel(1920, 1080, planar.WithAllocator(pool))
type ChannelOption[T Scalar] func(*channelOptions[T])

type channelOptions[T Scalar] struct {
	allocator alloc.Allocator[T]
}

func defaultChannelOptions[T Scalar]() channelOptions[T] {
	return channelOptions[T]{
		allocator: alloc.Heap[T]{},
	}
}

// WithAllocator sets the allocator that provides and reclaims the channel's
// cells. The same allocator is used when a WriteGuard reallocates.
// A nil allocator keeps the default heap allocator.
func WithAllocator[T Scalar](a alloc.Allocator[T]) ChannelOption[T] {
	return func(o *channelOptions[T]) {
		if a != nil {
			o.allocator = a
		}
	}
}

// ProcessOption configures Map and ProcessChunks.
type ProcessOption func(*processOptions)

type processOptions struct {
	workers   int
	chunkEdge int
}

func defaultProcessOptions() processOptions {
	return processOptions{
		workers:   0, // shared pool sized to GOMAXPROCS
		chunkEdge: ChunkSize,
	}
}

func newProcessOptions(opts []ProcessOption) processOptions {
	o := defaultProcessOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithWorkers runs the call on a dedicated pool of n goroutines instead of
// the shared GOMAXPROCS-sized pool. n <= 0 selects the shared pool.
func WithWorkers(n int) ProcessOption {
	return func(o *processOptions) {
		o.workers = n
	}
}

// WithChunkEdge sets the chunk edge length. edge <= 0 selects ChunkSize.
func WithChunkEdge(edge int) ProcessOption {
	return func(o *processOptions) {
		if edge <= 0 {
			edge = ChunkSize
		}
		o.chunkEdge = edge
	}
}
