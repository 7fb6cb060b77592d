package landingcase

import (
	"math/rand/v2"
	"testing"

	"github.com/lox/marslander/internal/marslander"
	"github.com/stretchr/testify/require"
)

func TestRandomizeProducesUsableSurface(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 50; i++ {
		c := Randomize(rng)

		require.GreaterOrEqual(t, len(c.Surface), 2)
		require.Less(t, int(c.SafeArea.Start), len(c.Surface))
		require.Less(t, int(c.SafeArea.End), len(c.Surface))
		require.Less(t, c.SafeArea.Start, c.SafeArea.End)

		startPoint := c.Surface[c.SafeArea.Start]
		endPoint := c.Surface[c.SafeArea.End]
		require.Equal(t, startPoint.Y, endPoint.Y, "safe area must be flat")

		require.Equal(t, marslander.ThrustPowerMin, c.Thrust)
		require.GreaterOrEqual(t, c.Fuel, int32(marslander.FuelAmountMax))

		require.Contains(t, []int32{marslander.TiltAngleMin, 0, marslander.TiltAngleMax}, c.Tilt)

		// x coordinates must be non-decreasing (a well-formed left-to-right surface).
		for j := 1; j < len(c.Surface); j++ {
			require.GreaterOrEqual(t, c.Surface[j].X, c.Surface[j-1].X)
		}
	}
}

func TestRandomizeStartPositionAboveSurface(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 20; i++ {
		c := Randomize(rng)
		level := marslander.SurfaceLevel(c.Surface, c.Position.X)
		require.Greater(t, float64(c.Position.Y), level)
	}
}

func TestRandomizeVelocityYIsAlwaysZero(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	for i := 0; i < 20; i++ {
		c := Randomize(rng)
		require.Equal(t, 0.0, c.Velocity.Y)
	}
}
