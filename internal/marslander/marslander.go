// Package marslander implements the deterministic single-turn descent
// physics and the terminal outcome classification used to score every
// (genome, case) pair.
package marslander

import (
	"errors"
	"math"

	"github.com/lox/marslander/internal/geom"
)

// Physical and zone constants.
const (
	GravityAccel   = -3.711 // m/s^2
	FuelAmountMax  = 2000
	SpeedLimitHorz = 20
	SpeedLimitVert = 40
	FlatWidthMin   = 1000
	ThrustDeltaAbs = 1
	ThrustPowerMax = 4
	ThrustPowerMin = 0
	TiltAngleMax   = 90
	TiltAngleMin   = -90
	TiltDeltaAbs   = 15
	ZoneHeight     = 3000
	ZoneWidth      = 7000
	StepsLimit     = 256
)

// Outcome is the terminal class of a single simulation step.
type Outcome int

const (
	Aerial Outcome = iota - 1
	Landed
	Crashed
	Lost
)

func (o Outcome) String() string {
	switch o {
	case Aerial:
		return "Aerial"
	case Landed:
		return "Landed"
	case Crashed:
		return "Crashed"
	case Lost:
		return "Lost"
	}
	return "Unknown"
}

// TurnOutput is the commanded action for the next Step.
type TurnOutput struct {
	Thrust, Tilt int32
}

// State is the full flight state carried between turns.
type State struct {
	Surface  []geom.Point[int32]
	SafeArea geom.Span[uint32]

	Fuel, Thrust, Tilt int32
	Position           geom.Point[int32]
	Velocity           geom.Point[float64]

	SafeAreaX   geom.Span[int32]
	SafeAreaAlt int32

	Out TurnOutput
}

// ErrShortSurface is returned when a surface has fewer than two points.
var ErrShortSurface = errors.New("marslander: surface needs at least 2 points")

// DeriveSafeArea fills SafeAreaX/SafeAreaAlt from Surface/SafeArea; it
// must be called once after a State's Surface/SafeArea are set (from a
// landing case) and before the first Step.
func (s *State) DeriveSafeArea() {
	s.SafeAreaX = geom.Span[int32]{
		Start: s.Surface[s.SafeArea.Start].X,
		End:   s.Surface[s.SafeArea.End].X,
	}
	s.SafeAreaAlt = s.Surface[s.SafeArea.End].Y
}

// Step performs exactly one deterministic physics update: thrust/tilt
// clamp, fuel burn, acceleration, position and velocity integration.
func Step(s *State) {
	s.Thrust = geom.ClampInt(
		s.Thrust+geom.ClampInt(s.Out.Thrust-s.Thrust, -ThrustDeltaAbs, ThrustDeltaAbs),
		ThrustPowerMin, ThrustPowerMax)

	s.Tilt = geom.ClampInt(
		s.Tilt+geom.ClampInt(s.Out.Tilt-s.Tilt, -TiltDeltaAbs, TiltDeltaAbs),
		TiltAngleMin, TiltAngleMax)

	s.Fuel -= s.Thrust
	if s.Fuel <= 0 {
		s.Fuel = 0
		s.Thrust = 0
	}

	tiltRad := float64(s.Tilt) * math.Pi / 180
	aX := -math.Sin(tiltRad) * float64(s.Thrust)
	aY := math.Cos(tiltRad)*float64(s.Thrust) + GravityAccel

	s.Position.X += innerRound(s.Velocity.X + 0.5*aX)
	s.Position.Y += innerRound(s.Velocity.Y + 0.5*aY)

	s.Velocity.X += aX
	s.Velocity.Y += aY
}

// innerRound is the host-double round-half-to-even used for position
// updates (see DESIGN.md Open Question 6).
func innerRound(v float64) int32 {
	return int32(math.RoundToEven(v))
}

// Simulate advances one turn and classifies the outcome: Lost if the
// lander leaves the zone, Aerial if it remains above the surface,
// Landed if the landing predicate holds (and Position is replaced by
// the exact touchdown point), else Crashed.
func Simulate(s *State) (Outcome, error) {
	if len(s.Surface) < 2 {
		return Crashed, ErrShortSurface
	}

	prevPosition := s.Position
	Step(s)

	if s.Position.X < 0 || s.Position.X >= ZoneWidth ||
		s.Position.Y < 0 || s.Position.Y >= ZoneHeight {
		return Lost, nil
	}

	h, lineStart, lineEnd := surfaceLevel(s.Surface, s.Position.X)
	if float64(s.Position.Y) > h {
		return Aerial, nil
	}

	landed := s.Tilt == 0 &&
		s.SafeAreaX.Start <= s.Position.X && s.Position.X < s.SafeAreaX.End &&
		math.Abs(s.Velocity.X) <= SpeedLimitHorz &&
		s.Velocity.Y >= -SpeedLimitVert &&
		s.Velocity.Y < 0 &&
		float64(s.SafeAreaAlt) <= float64(s.Position.Y)-0.5*s.Velocity.Y &&
		float64(s.Position.Y)+0.5*s.Velocity.X <= float64(s.SafeAreaAlt)

	if !landed {
		return Crashed, nil
	}

	s.Position = intersect(prevPosition, s.Position, lineStart, lineEnd)
	return Landed, nil
}

// SurfaceLevel returns the piecewise-linear surface altitude at x. It
// is exported for use by the landing-case generator, which places the
// start position above the terrain it has just generated.
func SurfaceLevel(surface []geom.Point[int32], x int32) float64 {
	h, _, _ := surfaceLevel(surface, x)
	return h
}

// surfaceLevel returns the piecewise-linear surface altitude at x, plus
// the two surface points forming the segment it queried (used by the
// Landed path's exact-intersection computation). Boundary queries
// return the endpoint segment and altitude; an exact interior node picks
// the segment to its right.
func surfaceLevel(surface []geom.Point[int32], x int32) (float64, geom.Point[int32], geom.Point[int32]) {
	first := surface[0]
	if x <= first.X {
		return float64(first.Y), first, surface[1]
	}

	last := surface[len(surface)-1]
	if x >= last.X {
		return float64(last.Y), surface[len(surface)-2], last
	}

	// upper_bound: first point whose X is strictly greater than x.
	hi := 1
	for hi < len(surface) && surface[hi].X <= x {
		hi++
	}
	lo := hi - 1

	loP, hiP := surface[lo], surface[hi]
	level := float64(loP.Y) + float64(x-loP.X)*float64(hiP.Y-loP.Y)/float64(hiP.X-loP.X)
	return level, loP, hiP
}

// intersect returns the integer-rounded intersection of line l1
// (travel segment, real-rounded endpoints) with line l2 (a surface
// segment), via the homogeneous-coordinate cross-product method.
func intersect(l1Start, l1End, l2Start, l2End geom.Point[int32]) geom.Point[int32] {
	a1 := float64(l1Start.Y - l1End.Y)
	a2 := float64(l1End.X - l1Start.X)
	a3 := float64(l1Start.X)*float64(l1End.Y) - float64(l1End.X)*float64(l1Start.Y)

	b1 := float64(l2Start.Y - l2End.Y)
	b2 := float64(l2End.X - l2Start.X)
	b3 := float64(l2Start.X)*float64(l2End.Y) - float64(l2End.X)*float64(l2Start.Y)

	cx := a2*b3 - b2*a3
	cy := b1*a3 - a1*b3
	cz := a1*b2 - b1*a2

	return geom.Point[int32]{
		X: innerRound(cx / cz),
		Y: innerRound(cy / cz),
	}
}
