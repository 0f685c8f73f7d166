package alloc

import "sync"

// Pool is a thread-safe allocator that reuses freed cell slices.
//
// Pool groups slices by length, allowing efficient reuse of identically
// sized buffers. Slices are cleared on Free so Alloc always returns zeroed
// storage.
//
// Thread safety: All methods are safe for concurrent use.
type Pool[T any] struct {
	mu      sync.Mutex
	buckets map[int][][]T
	maxSize int // max slices per bucket
}

// NewPool creates a new pool with the given maximum slices per bucket.
// maxPerBucket limits how many slices of each length are retained.
// A maxPerBucket of 0 means unlimited (use with caution).
func NewPool[T any](maxPerBucket int) *Pool[T] {
	return &Pool[T]{
		buckets: make(map[int][][]T),
		maxSize: maxPerBucket,
	}
}

// Alloc retrieves a slice of n cells from the pool or creates a new one.
func (p *Pool[T]) Alloc(n int) ([]T, error) {
	if n <= 0 {
		return Heap[T]{}.Alloc(n)
	}

	p.mu.Lock()
	bucket := p.buckets[n]
	if len(bucket) > 0 {
		cells := bucket[len(bucket)-1]
		bucket[len(bucket)-1] = nil
		p.buckets[n] = bucket[:len(bucket)-1]
		p.mu.Unlock()
		return cells, nil
	}
	p.mu.Unlock()

	return make([]T, n), nil
}

// Free clears cells and returns them to the pool for reuse.
// If cells is empty or the bucket is at capacity, the slice is discarded.
func (p *Pool[T]) Free(cells []T) {
	if len(cells) == 0 {
		return
	}

	// Callers may have resliced; always pool the full allocation.
	cells = cells[:cap(cells)]
	clear(cells)

	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(cells)
	bucket := p.buckets[n]
	if p.maxSize > 0 && len(bucket) >= p.maxSize {
		return
	}
	p.buckets[n] = append(bucket, cells)
}

// Len returns the number of slices currently retained.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := 0
	for _, bucket := range p.buckets {
		total += len(bucket)
	}
	return total
}

// Reset drops every retained slice.
func (p *Pool[T]) Reset() {
	p.mu.Lock()
	clear(p.buckets)
	p.mu.Unlock()
}
