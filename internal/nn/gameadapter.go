package nn

import (
	"math"

	"github.com/lox/marslander/internal/geom"
	"github.com/lox/marslander/internal/marslander"
)

// vec3 is a homogeneous-coordinate line/point representation.
type vec3 struct{ x, y, z float64 }

func cross(a, b vec3) vec3 {
	return vec3{
		x: a.y*b.z - a.z*b.y,
		y: a.z*b.x - a.x*b.z,
		z: a.x*b.y - a.y*b.x,
	}
}

// lineThrough returns the homogeneous line through a and b.
func lineThrough(a, b geom.Point[float64]) vec3 {
	return vec3{x: b.Y - a.Y, y: a.X - b.X, z: a.X*b.Y - b.X*a.Y}
}

// asPoint dehomogenises hp; NaN components signal parallel/no intersection.
func asPoint(hp vec3) geom.Point[float64] {
	return geom.Point[float64]{X: hp.x / hp.z, Y: hp.y / hp.z}
}

func dot(u, v geom.Point[float64]) float64 { return u.X*v.X + u.Y*v.Y }
func sub(a, b geom.Point[float64]) geom.Point[float64] {
	return geom.Point[float64]{X: a.X - b.X, Y: a.Y - b.Y}
}
func add(a, b geom.Point[float64]) geom.Point[float64] {
	return geom.Point[float64]{X: a.X + b.X, Y: a.Y + b.Y}
}

type segment struct {
	line vec3
	a, b geom.Point[float64]
}

// GameAdapter turns raw flight state into the controller's 7-input
// feature vector and turns its 2-output action into a TurnOutput.
type GameAdapter struct {
	dff *DFF

	safeAreaX    geom.Span[int32]
	safeAreaAlt  int32
	safeAreaElev float64 // turn_zero.position.y - safe_area_alt

	segments []segment
}

// NewGameAdapter builds an adapter bound to dff, the case's static
// geometry (gameInit) and the turn-zero input used to normalise altitude.
func NewGameAdapter(dff *DFF, gameInit *marslander.State, turnZero *marslander.State) *GameAdapter {
	a := &GameAdapter{
		dff:          dff,
		safeAreaX:    gameInit.SafeAreaX,
		safeAreaAlt:  gameInit.Surface[gameInit.SafeArea.Start].Y,
		safeAreaElev: float64(turnZero.Position.Y) - float64(gameInit.Surface[gameInit.SafeArea.Start].Y),
	}
	for i := 1; i < len(gameInit.Surface); i++ {
		pa := toFloatPoint(gameInit.Surface[i-1])
		pb := toFloatPoint(gameInit.Surface[i])
		a.segments = append(a.segments, segment{line: lineThrough(pa, pb), a: pa, b: pb})
	}
	return a
}

func toFloatPoint(p geom.Point[int32]) geom.Point[float64] {
	return geom.Point[float64]{X: float64(p.X), Y: float64(p.Y)}
}

// CheckObstacle raycasts the current velocity vector against every
// surface segment and returns |v|/distance to the nearest forward hit,
// or 0 if no segment is hit.
func (a *GameAdapter) CheckObstacle(s *marslander.State) float64 {
	pos := toFloatPoint(s.Position)
	ray := lineThrough(pos, add(pos, s.Velocity))

	sqrDistMin := math.Inf(1)
	for _, seg := range a.segments {
		p := asPoint(cross(seg.line, ray))
		d := sub(p, pos)

		if math.IsNaN(p.X+p.Y) ||
			dot(s.Velocity, d) < 0 ||
			dot(sub(p, seg.a), sub(seg.b, seg.a)) < 0 ||
			dot(sub(p, seg.b), sub(seg.a, seg.b)) < 0 {
			continue
		}

		sqrDist := dot(d, d)
		if sqrDist < sqrDistMin {
			sqrDistMin = sqrDist
		}
	}

	return math.Sqrt(dot(s.Velocity, s.Velocity) / sqrDistMin)
}

// Output computes the controller's feature vector from s, evaluates the
// network and returns the commanded TurnOutput.
func (a *GameAdapter) Output(s *marslander.State) marslander.TurnOutput {
	const deg2rad = math.Pi / 180
	const rad2deg = 180 / math.Pi

	input := []float64{
		float64(s.Thrust) / marslander.ThrustPowerMax,
		math.Sin(float64(s.Tilt) * deg2rad),
		math.Max(float64(a.safeAreaX.Start-s.Position.X), float64(s.Position.X-a.safeAreaX.End)) / marslander.ZoneWidth,
		(float64(s.Position.Y) - float64(a.safeAreaAlt)) / a.safeAreaElev,
		boolFloat(math.Abs(s.Velocity.X) >= marslander.SpeedLimitHorz),
		boolFloat(math.Abs(s.Velocity.Y) >= marslander.SpeedLimitVert),
		a.CheckObstacle(s),
	}

	out := a.dff.Forward(input)

	return marslander.TurnOutput{
		Thrust: int32(math.Round(marslander.ThrustPowerMax * geom.Clamp(out[0], 0, 1))),
		Tilt:   int32(math.Round(rad2deg * math.Asin(geom.Clamp(out[1], -1, 1)))),
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
