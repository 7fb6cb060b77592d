// Package prng implements the concurrent PRNG facade described in
// SPEC_FULL.md §4.M: a single central engine guarded by a mutex, and a
// refill buffer per owner (goroutine, connection, or worker slice) that
// only touches the mutex when its local buffer runs dry.
//
// Go has no thread-local storage, so ownership here is explicit: call
// Source.NewHandle to mint a *Handle for the lifetime of one worker, use
// its *rand.Rand, and Close it when done. Close is the equivalent of the
// reference implementation's thread-exit registry eviction.
package prng

import (
	"math/rand/v2"
	"sync"
)

// Default buffer sizes per SPEC_FULL.md §4.M.
const (
	RunnerBufferWords  = 64
	TrainerBufferWords = 4096
)

// mix is the splitmix64-style seed spreader used by
// internal/randutil/rand.go in the teacher repo, reused here to derive
// the two 64-bit seeds math/rand/v2's PCG needs from a single int64.
func mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Source is the central engine behind the facade. It is safe for
// concurrent use by any number of Handles.
type Source struct {
	mu  sync.Mutex
	rng *rand.Rand

	regMu   sync.Mutex
	handles map[*buffer]struct{}
}

// NewSource builds a central engine seeded deterministically from seed.
func NewSource(seed int64) *Source {
	s0 := mix(uint64(seed))
	s1 := mix(s0)
	return &Source{
		rng:     rand.New(rand.NewPCG(s0, s1)),
		handles: make(map[*buffer]struct{}),
	}
}

// drawN fills dst from the central engine under the mutex.
func (s *Source) drawN(dst []uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range dst {
		dst[i] = s.rng.Uint64()
	}
}

// buffer is a refill buffer over the central engine. It implements
// math/rand/v2's Source interface (Uint64() uint64), so it can back a
// *rand.Rand directly.
type buffer struct {
	src   *Source
	words []uint64
	pos   int
}

func (b *buffer) Uint64() uint64 {
	if b.pos >= len(b.words) {
		b.src.drawN(b.words)
		b.pos = 0
	}
	v := b.words[b.pos]
	b.pos++
	return v
}

// Handle is an owned refill buffer plus the *rand.Rand built over it.
// It is single-writer single-reader: exactly one goroutine should use a
// Handle's Rand at a time.
type Handle struct {
	Rand *rand.Rand
	buf  *buffer
	src  *Source
}

// NewHandle registers and returns a fresh refill-buffer handle of the
// given word size (RunnerBufferWords or TrainerBufferWords).
func (s *Source) NewHandle(bufferWords int) *Handle {
	buf := &buffer{src: s, words: make([]uint64, bufferWords), pos: bufferWords}
	s.regMu.Lock()
	s.handles[buf] = struct{}{}
	s.regMu.Unlock()

	return &Handle{
		Rand: rand.New(buf),
		buf:  buf,
		src:  s,
	}
}

// Close unregisters the handle from the facade's registry. A Handle
// must not be used after Close.
func (h *Handle) Close() {
	h.src.regMu.Lock()
	delete(h.src.handles, h.buf)
	h.src.regMu.Unlock()
}

// Registered reports the number of live handles, for tests.
func (s *Source) Registered() int {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	return len(s.handles)
}
