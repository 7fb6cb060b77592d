// Package looper implements the trainer's single-threaded cooperative
// event loop (SPEC_FULL.md §4.F): callbacks posted from any goroutine
// run, one at a time and in FIFO order, on a single dedicated
// goroutine. Grounded on
// original_source/shared/internal/looper.h/.cpp's double-buffered
// producer/consumer design; the condition variable and raw buffer swap
// are replaced with a mutex-guarded front/back buffer pair plus a
// Go channel used purely as a wakeup signal (idiomatic where the
// original used std::condition_variable).
package looper

import (
	"errors"
	"sync"
)

// ErrNoMainLooper is returned by Main when no Looper has registered
// itself yet.
var ErrNoMainLooper = errors.New("looper: no main looper registered")

var (
	mainMu sync.Mutex
	mainL  *Looper
)

// Main returns the process's main looper — the first Looper
// constructed via New becomes it, mirroring looper::main() in the
// original. Call sites that need "the" trainer event loop use this
// instead of threading a Looper through every layer.
func Main() (*Looper, error) {
	mainMu.Lock()
	defer mainMu.Unlock()
	if mainL == nil {
		return nil, ErrNoMainLooper
	}
	return mainL, nil
}

// batchThreshold mirrors the original's buf_sz: a post that leaves the
// front buffer at or above this size wakes the consumer immediately,
// same as a post into an empty buffer.
const batchThreshold = 64

// Callback is a unit of work posted onto a Looper.
type Callback func()

// Looper is a single-consumer work queue. The zero value is not usable;
// construct with New.
type Looper struct {
	mu    sync.Mutex
	front []Callback
	back  []Callback
	wake  chan struct{}

	once sync.Once
	done chan struct{}
}

// New returns a Looper ready to have its Run method started on a
// dedicated goroutine.
func New() *Looper {
	l := &Looper{
		front: make([]Callback, 0, batchThreshold),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}

	mainMu.Lock()
	if mainL == nil {
		mainL = l
	}
	mainMu.Unlock()

	return l
}

// Post enqueues cb for execution on the Looper's Run goroutine. Safe to
// call from any goroutine, including from within a callback itself.
func (l *Looper) Post(cb Callback) {
	l.mu.Lock()
	l.front = append(l.front, cb)
	wake := len(l.front) == 1 || len(l.front) >= batchThreshold
	l.mu.Unlock()

	if wake {
		select {
		case l.wake <- struct{}{}:
		default:
		}
	}
}

// Run drains posted callbacks until Stop is called. It must run on
// exactly one goroutine at a time; callers typically `go l.Run()` once
// at process startup.
func (l *Looper) Run() {
	for {
		select {
		case <-l.done:
			l.drainRemaining()
			return
		case <-l.wake:
		}

		l.mu.Lock()
		l.front, l.back = l.back, l.front
		pending := l.back
		l.mu.Unlock()

		for _, cb := range pending {
			cb()
		}

		l.mu.Lock()
		l.back = l.back[:0]
		l.mu.Unlock()
	}
}

// drainRemaining runs any callbacks posted before Stop but not yet
// consumed, so Stop never silently drops work.
func (l *Looper) drainRemaining() {
	for {
		l.mu.Lock()
		if len(l.front) == 0 {
			l.mu.Unlock()
			return
		}
		pending := l.front
		l.front = nil
		l.mu.Unlock()

		for _, cb := range pending {
			cb()
		}
	}
}

// Stop signals Run to exit after draining any outstanding callbacks.
// Safe to call once; subsequent calls are no-ops.
func (l *Looper) Stop() {
	l.once.Do(func() { close(l.done) })
}
