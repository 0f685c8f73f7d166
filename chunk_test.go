package planar

import (
	"image"
	"math"
	"slices"
	"sync"
	"testing"
)

func TestChunkCount(t *testing.T) {
	tests := []struct {
		w, h, edge int
		want       int
	}{
		{64, 64, 64, 1},
		{65, 64, 64, 2},
		{64, 65, 64, 2},
		{128, 128, 64, 4},
		{100, 100, 0, 4},
		{1, 1, 64, 1},
		{2, 2, 1, 4},
		{10, 3, 4, 3},
		{0, 10, 4, 0},
		{10, -1, 4, 0},
		{3, 1, math.MaxInt, 1},
		{math.MaxInt, 1, math.MaxInt - 1, 2},
		{5, 5, math.MaxInt / 2, 1},
	}

	for _, tt := range tests {
		if got := ChunkCount(tt.w, tt.h, tt.edge); got != tt.want {
			t.Errorf("ChunkCount(%d, %d, %d) = %d, want %d", tt.w, tt.h, tt.edge, got, tt.want)
		}
	}
}

// TestChunksCoverPlane checks that the partition visits every cell exactly
// once, in row-major chunk order, for sizes on and off the edge multiple.
func TestChunksCoverPlane(t *testing.T) {
	tests := []struct{ w, h, edge int }{
		{1, 1, 64},
		{64, 64, 64},
		{65, 63, 64},
		{130, 70, 64},
		{7, 5, 2},
		{5, 7, 3},
		{9, 9, 1},
		{3, 1, math.MaxInt},
		{2, 4, math.MaxInt - 1},
	}

	for _, tt := range tests {
		ch := newTestChannel[int32](t, tt.w, tt.h)

		w := ch.Write()
		it := w.Chunks(tt.edge)
		w.Release()

		want := ChunkCount(tt.w, tt.h, tt.edge)
		if it.Len() != want {
			t.Errorf("%dx%d/%d: Len() = %d, want %d", tt.w, tt.h, tt.edge, it.Len(), want)
		}

		if want < 1 {
			t.Fatalf("%dx%d/%d: ChunkCount = %d", tt.w, tt.h, tt.edge, want)
		}

		cols := ChunkCount(tt.w, 1, tt.edge)
		i := 0
		for c := range it.All() {
			row, col := i/cols, i%cols
			wantMin := image.Pt(col*tt.edge, row*tt.edge)
			wantMax := wantMin.Add(image.Pt(min(tt.edge, tt.w-wantMin.X), min(tt.edge, tt.h-wantMin.Y)))
			tl, br := c.Bounds()
			if tl != wantMin || br != wantMax {
				t.Errorf("%dx%d/%d chunk %d: bounds %v-%v, want %v-%v",
					tt.w, tt.h, tt.edge, i, tl, br, wantMin, wantMax)
			}
			c.Apply(func(_, _ int, v int32) int32 { return v + 1 })
			c.Release()
			i++
		}
		if i != want {
			t.Errorf("%dx%d/%d: yielded %d chunks, want %d", tt.w, tt.h, tt.edge, i, want)
		}

		if got := ch.Locked(); got != 0 {
			t.Errorf("%dx%d/%d: Locked() after all chunks = %d, want 0", tt.w, tt.h, tt.edge, got)
		}

		r := ch.Read()
		for idx, v := range r.Raw() {
			if v != 1 {
				t.Fatalf("%dx%d/%d: cell %d visited %d times", tt.w, tt.h, tt.edge, idx, v)
			}
		}
		r.Release()
		ch.Close()
	}
}

// TestChunksParallelWrite writes each chunk's index from its own goroutine
// on a 2x2 plane split into 1x1 chunks.
func TestChunksParallelWrite(t *testing.T) {
	ch := newTestChannel[int](t, 2, 2)
	defer ch.Close()

	w := ch.Write()
	it := w.Chunks(1)
	w.Release()

	var wg sync.WaitGroup
	i := 0
	for c := range it.All() {
		wg.Add(1)
		go func(c *ChunkGuard[int], v int) {
			defer wg.Done()
			defer c.Release()
			c.Set(0, 0, v)
		}(c, i)
		i++
	}
	wg.Wait()

	r := ch.Read()
	defer r.Release()
	if got := r.Raw(); !slices.Equal(got, []int{0, 1, 2, 3}) {
		t.Errorf("cells = %v, want [0 1 2 3]", got)
	}
}

// TestChunksSingleChunkWorker covers a 2x2 plane that fits in one chunk:
// a worker writes 0..3 in row-major order and the reader sees them after
// the join.
func TestChunksSingleChunkWorker(t *testing.T) {
	for _, edge := range []int{2, 3, ChunkSize} {
		ch := newTestChannel[int](t, 2, 2)

		w := ch.Write()
		it := w.Chunks(edge)
		w.Release()
		if it.Len() != 1 {
			t.Fatalf("edge %d: Len() = %d, want 1", edge, it.Len())
		}

		var wg sync.WaitGroup
		for c := range it.All() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer c.Release()
				v := 0
				for y := range c.Height() {
					for x := range c.Width() {
						c.Set(x, y, v)
						v++
					}
				}
			}()
		}
		wg.Wait()

		r := ch.Read()
		if got := r.Raw(); !slices.Equal(got, []int{0, 1, 2, 3}) {
			t.Errorf("edge %d: cells = %v, want [0 1 2 3]", edge, got)
		}
		r.Release()
		ch.Close()
	}
}

func TestChunksHoldLockUntilLastRelease(t *testing.T) {
	ch := newTestChannel[float32](t, 4, 4)
	defer ch.Close()

	w := ch.Write()
	it := w.Chunks(2)

	var chunks []*ChunkGuard[float32]
	for c := range it.All() {
		chunks = append(chunks, c)
	}
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}

	w.Release()
	for i, c := range chunks {
		if _, ok := ch.TryRead(); ok {
			t.Fatalf("TryRead succeeded with %d chunks outstanding", len(chunks)-i)
		}
		if got := ch.Locked(); got != -1 {
			t.Errorf("Locked() = %d, want -1", got)
		}
		c.Release()
	}

	r, ok := ch.TryRead()
	if !ok {
		t.Fatal("TryRead failed after every chunk was released")
	}
	r.Release()
}

func TestChunksGuardReleasedBeforeIteration(t *testing.T) {
	ch := newTestChannel[uint8](t, 3, 3)
	defer ch.Close()

	w := ch.Write()
	it := w.Chunks(2)
	w.Release()

	// The unfinished iterator keeps the channel locked.
	if got := ch.Locked(); got != -1 {
		t.Fatalf("Locked() = %d, want -1", got)
	}

	c, ok := it.Next()
	if !ok {
		t.Fatal("Next() returned no chunk")
	}
	c.Fill(5)
	c.Release()

	if got := it.Remaining(); got != 3 {
		t.Errorf("Remaining() = %d, want 3", got)
	}
	it.Close()
	it.Close() // idempotent

	if got := ch.Locked(); got != 0 {
		t.Errorf("Locked() after Close = %d, want 0", got)
	}
	if _, ok := it.Next(); ok {
		t.Error("Next() after Close yielded a chunk")
	}

	r := ch.Read()
	defer r.Release()
	if r.At(1, 1) != 5 || r.At(2, 2) != 0 {
		t.Errorf("cells = %v, want only the first chunk filled", r.Raw())
	}
}

func TestChunksBreakClosesIterator(t *testing.T) {
	ch := newTestChannel[int](t, 10, 10)
	defer ch.Close()

	w := ch.Write()
	it := w.Chunks(3)
	w.Release()

	for c := range it.All() {
		c.Release()
		break
	}

	if got := ch.Locked(); got != 0 {
		t.Errorf("Locked() after break = %d, want 0", got)
	}
}

func TestWriteGuardConsumedByChunks(t *testing.T) {
	ch := newTestChannel[float64](t, 4, 4)
	defer ch.Close()

	w := ch.Write()
	it := w.Chunks(0)
	if it.Edge() != ChunkSize {
		t.Errorf("Edge() = %d, want %d", it.Edge(), ChunkSize)
	}

	expectPanic(t, "Raw after Chunks", func() { w.Raw() })
	expectPanic(t, "Set after Chunks", func() { w.Set(0, 0, 1) })
	expectPanic(t, "second Chunks", func() { w.Chunks(2) })

	w.Release()
	it.Close()
	if got := ch.Locked(); got != 0 {
		t.Errorf("Locked() = %d, want 0", got)
	}
}

func TestChunkGuardAccess(t *testing.T) {
	ch := newTestChannel[int](t, 5, 3)
	defer ch.Close()

	w := ch.Write()
	it := w.Chunks(4)
	w.Release()

	first, _ := it.Next()
	first.Release()
	c, ok := it.Next() // right-hand 1x3 strip
	if !ok {
		t.Fatal("missing second chunk")
	}
	if c.Rect() != image.Rect(4, 0, 5, 3) {
		t.Errorf("Rect() = %v, want (4,0)-(5,3)", c.Rect())
	}
	if c.Width() != 1 || c.Height() != 3 {
		t.Errorf("chunk size = %dx%d, want 1x3", c.Width(), c.Height())
	}

	c.Apply(func(x, y, _ int) int { return y*10 + x })
	if got := c.At(0, 2); got != 24 {
		t.Errorf("At(0, 2) = %d, want 24 (global coordinates)", got)
	}
	if row := c.Row(1); len(row) != 1 || cap(row) != 1 {
		t.Errorf("Row(1) len=%d cap=%d, want 1/1", len(row), cap(row))
	}

	expectPanic(t, "At outside chunk", func() { c.At(1, 0) })
	expectPanic(t, "Set outside chunk", func() { c.Set(0, 3, 0) })

	c.Release()
	expectPanic(t, "double Release", c.Release)
	expectPanic(t, "use after Release", func() { c.Fill(0) })
}
