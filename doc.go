// Package planar provides concurrent 2D numeric planes for multi-channel
// raster images.
//
// # Overview
//
// A [Channel] is one plane of width×height cells in a single contiguous,
// row-major allocation. Access goes through guards:
//
//   - [ReadGuard]: shared, any number may coexist
//   - [WriteGuard]: exclusive, at most one at a time
//   - [ChunkGuard]: a disjoint S×S block of a write-locked plane that can be
//     handed to another goroutine
//
// The lock is a single atomic word (0 free, k readers, -1 writer). Blocked
// acquirers park until a release wakes them; context-aware variants let the
// caller abandon a wait without touching the lock.
//
// A [Layer] groups same-sized float32 channels by name, for example
// "red", "green", "blue" and "alpha".
//
// # Quick Start
//
//	ch, err := planar.NewChannel[float32](640, 480)
//	if err != nil {
//	    return err
//	}
//	defer ch.Close()
//
//	w := ch.Write()
//	w.Set(10, 20, 0.5)
//	w.Release()
//
//	r := ch.Read()
//	v := r.At(10, 20)
//	r.Release()
//
// # Parallel Writes
//
// A write guard can be partitioned into 64×64 chunks (edge tiles are
// smaller). Each chunk is independent and may be processed by a different
// goroutine; the write lock is held until the guard and every yielded
// chunk have been released:
//
//	w := ch.Write()
//	it := w.Chunks(planar.ChunkSize)
//	w.Release() // the lock stays held by the iterator and its chunks
//
//	var wg sync.WaitGroup
//	for c := range it.All() {
//	    wg.Add(1)
//	    go func() {
//	        defer wg.Done()
//	        defer c.Release()
//	        c.Fill(1)
//	    }()
//	}
//	wg.Wait()
//
// [Channel.Map] and [Channel.ProcessChunks] wrap this pattern with a
// worker pool.
//
// # Ownership Rules
//
// Every guard must be released exactly once. A guard that is never released
// blocks all future writers (and, for write guards, readers). Misuse such as
// a double release or an out-of-range index is a programming error and
// panics.
package planar
