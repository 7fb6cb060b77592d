package prng

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeterministicSeed(t *testing.T) {
	a := NewSource(42).NewHandle(RunnerBufferWords)
	b := NewSource(42).NewHandle(RunnerBufferWords)

	for i := 0; i < RunnerBufferWords*3; i++ {
		require.Equal(t, a.Rand.Uint64(), b.Rand.Uint64())
	}
}

func TestHandleRegistrationAndClose(t *testing.T) {
	src := NewSource(1)
	h1 := src.NewHandle(RunnerBufferWords)
	h2 := src.NewHandle(RunnerBufferWords)
	require.Equal(t, 2, src.Registered())

	h1.Close()
	require.Equal(t, 1, src.Registered())

	h2.Close()
	require.Equal(t, 0, src.Registered())
}

func TestRefillCrossesBufferBoundary(t *testing.T) {
	src := NewSource(7)
	h := src.NewHandle(4)
	seen := make(map[uint64]bool)
	for i := 0; i < 100; i++ {
		v := h.Rand.Uint64()
		require.False(t, seen[v], "collision suggests the buffer did not refill correctly")
		seen[v] = true
	}
}
