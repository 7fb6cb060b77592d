package runnerclient

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/lox/marslander/internal/ga"
	"github.com/lox/marslander/internal/gamatrix"
	"github.com/lox/marslander/internal/landingcase"
	"github.com/lox/marslander/internal/nn"
	"github.com/lox/marslander/internal/persist"
	"github.com/lox/marslander/internal/trainserver"
	"github.com/lox/marslander/internal/wire"
)

func TestNextCapacityFloorsAtCapacityBase(t *testing.T) {
	got := nextCapacity(16, 10*time.Second)
	require.Equal(t, uint32(CapacityBase), got)
}

func TestNextCapacityScalesInversleyWithDuration(t *testing.T) {
	got := nextCapacity(16, 150*time.Millisecond)
	require.Equal(t, uint32(32), got)
}

func TestNextCapacityHoldsSteadyOnZeroDuration(t *testing.T) {
	require.Equal(t, uint32(16), nextCapacity(16, 0))
}

func TestLandingCaseToStateDerivesSafeArea(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 9))
	c := landingcase.Randomize(rng)

	s := landingCaseToState(c)
	require.Equal(t, c.Surface[c.SafeArea.Start].X, s.SafeAreaX.Start)
	require.Equal(t, c.Surface[c.SafeArea.End].X, s.SafeAreaX.End)
	require.Equal(t, c.Surface[c.SafeArea.End].Y, s.SafeAreaAlt)
}

// TestLoopRunAdvancesAGeneration wires a Loop against a real
// trainserver.Server over a loopback TCP connection and confirms at
// least one full cases->outcomes->population round trip lands a
// generation advance, end to end.
func TestLoopRunAdvancesAGeneration(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	c := landingcase.Randomize(rng)
	c.ID = 1

	population := []gamatrix.Genome{
		{ID: 1, Genes: nn.Randomize(rng, nn.ReLU)},
		{ID: 2, Genes: nn.Randomize(rng, nn.ReLU)},
	}
	m := gamatrix.New(population, []uint64{c.ID}, 1, 1)

	session := &trainserver.Session{
		Check:         1,
		Matrix:        m,
		Cases:         []wire.LandingCase{c},
		Crossover:     ga.Heuristic{Ratio: 0.5},
		Mutation:      ga.NoneMutation{},
		CrossoverArgs: persist.AlgorithmArgs{Name: "heuristic", Values: []float64{0.5}},
		MutationArgs:  persist.AlgorithmArgs{Name: "none"},
		NextGenomeID:  3,
	}

	dir := t.TempDir()
	srv := trainserver.New(zerolog.Nop(), quartz.NewReal(), rng, session, dir+"/training.dat")
	require.NoError(t, srv.Start("127.0.0.1:0"))
	defer srv.Shutdown()

	loop := NewLoop(srv.Addr().String(), "test-runner", zerolog.Nop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := loop.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.GreaterOrEqual(t, session.Matrix.Generation, uint64(1))
}
