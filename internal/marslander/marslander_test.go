package marslander

import (
	"testing"

	"github.com/lox/marslander/internal/geom"
	"github.com/stretchr/testify/require"
)

func hoveringSurface() []geom.Point[int32] {
	return []geom.Point[int32]{
		{X: 0, Y: 100},
		{X: 1000, Y: 500},
		{X: 1500, Y: 1500},
		{X: 3000, Y: 1000},
		{X: 4000, Y: 150},
		{X: 5500, Y: 150},
		{X: 6999, Y: 800},
	}
}

func newHoveringState() *State {
	s := &State{
		Surface:  hoveringSurface(),
		SafeArea: geom.Span[uint32]{Start: 4, End: 5},
		Fuel:     550, Thrust: 0, Tilt: 0,
		Position: geom.Point[int32]{X: 2500, Y: 2700},
		Velocity: geom.Point[float64]{X: 0, Y: 0},
	}
	s.DeriveSafeArea()
	return s
}

func TestHoveringLanding(t *testing.T) {
	s := newHoveringState()
	s.Out = TurnOutput{Thrust: 4, Tilt: 0}

	var outcome Outcome
	var err error
	steps := 0
	sawAerial := false
	for ; steps < StepsLimit; steps++ {
		outcome, err = Simulate(s)
		require.NoError(t, err)
		if outcome != Aerial {
			break
		}
		sawAerial = true
	}

	require.True(t, sawAerial, "expected at least one Aerial turn before landing")
	require.Equal(t, Landed, outcome)
	require.LessOrEqual(t, steps, StepsLimit)
	require.LessOrEqual(t, abs(s.Velocity.X), SpeedLimitHorz)
	require.GreaterOrEqual(t, s.Velocity.Y, -float64(SpeedLimitVert))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestOutOfZoneLost(t *testing.T) {
	s := newHoveringState()
	s.Position = geom.Point[int32]{X: 6999, Y: 2999}
	s.Velocity = geom.Point[float64]{X: 200, Y: 0}
	s.Thrust = 0
	s.Out = TurnOutput{Thrust: 0, Tilt: 0}

	outcome, err := Simulate(s)
	require.NoError(t, err)
	require.Equal(t, Lost, outcome)
}

func TestTiltClamp(t *testing.T) {
	s := newHoveringState()
	s.Out = TurnOutput{Tilt: 90, Thrust: 0}

	Step(s)
	require.Equal(t, int32(15), s.Tilt)

	for i := 0; i < 5; i++ {
		s.Out = TurnOutput{Tilt: 90, Thrust: 0}
		Step(s)
	}
	require.Equal(t, int32(90), s.Tilt)
}

func TestShortSurfaceIsDomainError(t *testing.T) {
	s := &State{Surface: []geom.Point[int32]{{X: 0, Y: 0}}}
	_, err := Simulate(s)
	require.ErrorIs(t, err, ErrShortSurface)
}

func TestFuelNeverIncreasesAndZeroImpliesNoThrust(t *testing.T) {
	s := newHoveringState()
	s.Out = TurnOutput{Thrust: 4, Tilt: 0}
	for i := 0; i < StepsLimit; i++ {
		fuelBefore := s.Fuel
		outcome, err := Simulate(s)
		require.NoError(t, err)
		require.LessOrEqual(t, s.Fuel, fuelBefore)
		if s.Fuel == 0 {
			require.Equal(t, int32(0), s.Thrust)
		}
		if outcome != Aerial {
			break
		}
	}
}
