package nn

import (
	"math/rand/v2"
	"testing"

	"github.com/lox/marslander/internal/geom"
	"github.com/lox/marslander/internal/marslander"
	"github.com/stretchr/testify/require"
)

func TestRandomizeShapeAndBiasZero(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	genes := Randomize(rng, ReLU)
	require.Len(t, genes, GenesCount)

	// bias slots: first 5 of hidden0, first 3 of hidden1 (offset 40),
	// first 2 of output (offset 58) must be zero.
	require.Equal(t, 0.0, genes[0])
	require.Equal(t, 0.0, genes[40])
	require.Equal(t, 0.0, genes[58])
}

func TestFromGenesRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	genes := Randomize(rng, ReLU)
	dff, err := FromGenes(genes, ReLU)
	require.NoError(t, err)
	require.Equal(t, genes, dff.Genes())
}

func TestFromGenesWrongLength(t *testing.T) {
	_, err := FromGenes(make([]float64, 10), ReLU)
	require.Error(t, err)
}

func TestForwardProducesTwoOutputs(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	genes := Randomize(rng, ReLU)
	dff, err := FromGenes(genes, ReLU)
	require.NoError(t, err)

	out := dff.Forward(make([]float64, InputSize))
	require.Len(t, out, OutputSize)
}

func simpleState() *marslander.State {
	s := &marslander.State{
		Surface: []geom.Point[int32]{
			{X: 0, Y: 100}, {X: 3000, Y: 100}, {X: 4000, Y: 100}, {X: 6999, Y: 200},
		},
		SafeArea: geom.Span[uint32]{Start: 1, End: 2},
		Fuel:     2000, Thrust: 0, Tilt: 0,
		Position: geom.Point[int32]{X: 3500, Y: 2700},
		Velocity: geom.Point[float64]{X: 0, Y: -10},
	}
	s.DeriveSafeArea()
	return s
}

func TestGameAdapterOutputIsWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	genes := Randomize(rng, ReLU)
	dff, err := FromGenes(genes, ReLU)
	require.NoError(t, err)

	s := simpleState()
	a := NewGameAdapter(dff, s, s)
	out := a.Output(s)

	require.GreaterOrEqual(t, out.Thrust, int32(0))
	require.LessOrEqual(t, out.Thrust, int32(marslander.ThrustPowerMax))
	require.GreaterOrEqual(t, out.Tilt, int32(-90))
	require.LessOrEqual(t, out.Tilt, int32(90))
}

func TestCheckObstacleZeroWhenNoHit(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 10))
	genes := Randomize(rng, ReLU)
	dff, err := FromGenes(genes, ReLU)
	require.NoError(t, err)

	s := simpleState()
	s.Velocity = geom.Point[float64]{X: 0, Y: 10} // pointing up, away from the surface below
	a := NewGameAdapter(dff, s, s)
	require.Equal(t, 0.0, a.CheckObstacle(s))
}
