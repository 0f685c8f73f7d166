// Package parallel runs independent chunk jobs on a fixed set of goroutines.
//
// The pool keeps one queue per worker. A worker drains its own queue first
// and steals from its neighbours when it runs dry, which balances chunks
// whose per-pixel cost differs.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a pool of goroutines for parallel chunk processing.
//
// Every job handed to ExecuteAll runs exactly once, even if the pool is
// closed concurrently. Chunk jobs release their chunk guards when they
// finish, so dropping a job would leave its channel locked forever.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool

	// submit orders ExecuteAll submissions before Close, so no job can land
	// in a queue after its worker has drained it.
	submit sync.RWMutex

	// executed counts jobs finished by worker goroutines (not inline runs).
	executed atomic.Int64
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
// The pool starts immediately and workers begin waiting for work.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	// A few slots per worker hides submission latency.
	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}

	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}

	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	own := p.workQueues[id]

	for {
		select {
		case <-p.done:
			p.drain(own)
			return

		case work := <-own:
			p.run(work)

		default:
			if stolen := p.steal(id); stolen != nil {
				p.run(stolen)
				continue
			}
			select {
			case <-p.done:
				p.drain(own)
				return
			case work := <-own:
				p.run(work)
			}
		}
	}
}

func (p *WorkerPool) run(work func()) {
	if work == nil {
		return
	}
	work()
	p.executed.Add(1)
}

func (p *WorkerPool) drain(queue chan func()) {
	for {
		select {
		case work := <-queue:
			p.run(work)
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(self int) func() {
	for i := range p.workers {
		if i == self {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// ExecuteAll distributes work round-robin across workers and waits for all
// of it to complete. If the pool is closed, remaining jobs run on the
// calling goroutine.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}

	p.submit.RLock()
	if !p.running.Load() {
		p.submit.RUnlock()
		for _, fn := range work {
			fn()
		}
		return
	}

	var completion sync.WaitGroup
	completion.Add(len(work))

	for i, fn := range work {
		p.workQueues[i%p.workers] <- func() {
			defer completion.Done()
			fn()
		}
	}
	p.submit.RUnlock()

	completion.Wait()
}

// Close stops accepting work, lets workers drain their queues and waits
// for them to exit. Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	p.submit.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.submit.Unlock()
		return
	}
	close(p.done)
	p.submit.Unlock()

	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

// Executed returns the number of jobs run by worker goroutines.
func (p *WorkerPool) Executed() int64 {
	return p.executed.Load()
}
