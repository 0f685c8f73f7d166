// Package lockstate implements the reader/writer state word that guards a
// single plane buffer.
//
// The whole lock is one signed 64-bit word:
//
//	 0  unlocked
//	 k  k readers (k > 0)
//	-1  one writer
//
// Acquisition never spins. A failed attempt registers as a waiter and parks
// on a broadcast channel that the next release closes, so blocking callers
// and context-aware callers share the same transition code.
//
// Thread safety: all methods are safe for concurrent use.
package lockstate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

const (
	// Unlocked is the word value when nobody holds the lock.
	Unlocked int64 = 0

	// Writer is the word value while a writer holds the lock.
	Writer int64 = -1
)

// ErrClosed is returned to waiters when the owner is destroyed.
var ErrClosed = errors.New("lockstate: closed")

// State is a reader/writer lock word with release notification.
//
// The zero value is an unlocked State ready for use.
type State struct {
	_    cpu.CacheLinePad
	word atomic.Int64
	_    cpu.CacheLinePad

	// waiters counts goroutines between registration and wake-up.
	// Releasers skip the notification path entirely while it is zero.
	waiters atomic.Int64
	closed  atomic.Bool

	mu   sync.Mutex
	wake chan struct{} // closed on release; nil when nobody registered
}

// Load returns the raw word.
func (s *State) Load() int64 {
	return s.word.Load()
}

// Closed reports whether Close has succeeded.
func (s *State) Closed() bool {
	return s.closed.Load()
}

// TryRead adds a reader iff no writer holds the word.
func (s *State) TryRead() bool {
	for {
		v := s.word.Load()
		if v < 0 {
			return false
		}
		if s.word.CompareAndSwap(v, v+1) {
			return true
		}
	}
}

// TryWrite moves the word from unlocked straight to writer.
func (s *State) TryWrite() bool {
	return s.word.CompareAndSwap(Unlocked, Writer)
}

// Read acquires a read hold, parking until one is available.
// It returns ctx.Err() if ctx ends first; the word is then unchanged.
func (s *State) Read(ctx context.Context) error {
	return s.acquire(ctx, s.TryRead)
}

// Write acquires the write hold, parking until the word is unlocked.
// It returns ctx.Err() if ctx ends first; the word is then unchanged.
func (s *State) Write(ctx context.Context) error {
	return s.acquire(ctx, s.TryWrite)
}

func (s *State) acquire(ctx context.Context, try func() bool) error {
	if try() {
		return nil
	}
	for {
		if s.closed.Load() {
			return ErrClosed
		}

		// Register before the re-check. A releaser that misses the
		// registration made its store before our re-check, so the
		// re-check sees it.
		s.waiters.Add(1)
		ch := s.waitChan()
		if try() {
			s.waiters.Add(-1)
			return nil
		}
		if s.closed.Load() {
			s.waiters.Add(-1)
			return ErrClosed
		}

		select {
		case <-ch:
			s.waiters.Add(-1)
		case <-ctx.Done():
			s.waiters.Add(-1)
			return ctx.Err()
		}
	}
}

// ReleaseRead drops one reader hold.
// Panics if no reader hold is outstanding.
func (s *State) ReleaseRead() {
	for {
		v := s.word.Load()
		if v <= 0 {
			panic("lockstate: ReleaseRead without a read hold")
		}
		if s.word.CompareAndSwap(v, v-1) {
			if v == 1 {
				s.notify()
			}
			return
		}
	}
}

// ReleaseWrite drops the writer hold.
// Panics if the word is not held by a writer.
func (s *State) ReleaseWrite() {
	if !s.word.CompareAndSwap(Writer, Unlocked) {
		panic("lockstate: ReleaseWrite without the write hold")
	}
	s.notify()
}

// Close locks the word permanently. It fails when any hold is outstanding.
// Waiters parked at the time of Close return ErrClosed.
func (s *State) Close() bool {
	if !s.TryWrite() {
		return false
	}
	s.CloseHeld()
	return true
}

// CloseHeld locks the word permanently on behalf of a caller that already
// holds it for writing. It lets an owner of several words acquire them all
// before committing to close any.
func (s *State) CloseHeld() {
	if s.word.Load() != Writer {
		panic("lockstate: CloseHeld without the write hold")
	}
	s.closed.Store(true)
	s.broadcast()
}

// Waiters returns the number of parked or registering acquirers.
func (s *State) Waiters() int64 {
	return s.waiters.Load()
}

func (s *State) waitChan() <-chan struct{} {
	s.mu.Lock()
	if s.wake == nil {
		s.wake = make(chan struct{})
	}
	ch := s.wake
	s.mu.Unlock()
	return ch
}

func (s *State) notify() {
	if s.waiters.Load() == 0 {
		return
	}
	s.broadcast()
}

func (s *State) broadcast() {
	s.mu.Lock()
	if s.wake != nil {
		close(s.wake)
		s.wake = nil
	}
	s.mu.Unlock()
}
