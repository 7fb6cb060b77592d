// Package landingcase procedurally generates landing test cases the
// way the original training data pipeline does (SPEC_FULL.md §4.N).
// Grounded on
// original_source/shared/internal/landing_case_randomize.h's
// get_flat/fill_surface/fill_position/randomize; the state machine
// driving fill_surface's point-by-point construction (pre-flat,
// flat-boundary snap, post-flat) is carried over unchanged, with the
// protobuf builder calls replaced by appends to a plain
// []geom.Point[int32] slice.
package landingcase

import (
	"math"
	"math/rand/v2"

	"github.com/lox/marslander/internal/geom"
	"github.com/lox/marslander/internal/marslander"
	"github.com/lox/marslander/internal/wire"
)

const (
	elevationC = 2.2

	fuelB = 550
	fuelD = 200.0
	fuelK = 23.07

	initialSpeedMax = 100
	initialSpeedMin = 0

	startPositionAltitudeMax = 2800
	startPositionAltitudeMin = 2700
	surfaceElevationMax      = 2800
	surfaceFlatElevationMax  = 2100
	surfaceFlatElevationMin  = 100
	surfaceFlatWidthMax      = 2000
	surfaceFlatWidthStep     = 500
	surfacePointsCountMin    = 4
	surfacePointsCountMax    = 25

	zoneHorzPadding = 500

	zoneXMax = marslander.ZoneWidth - 1
)

func nextIntVal(rng *rand.Rand, a, b int32) int32 {
	return a + rng.Int32N(b-a+1)
}

func nextRealVal(rng *rand.Rand, a, b float64) float64 {
	return a + rng.Float64()*(b-a)
}

func sign(v int32) int32 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func elevationCurve(t0, t1, v float64) float64 {
	vv := elevationC*(v-t0)/(t1-t0) + 1
	return 1 - 1/(vv*vv)
}

// Randomize builds a fresh landing case. The returned case's ID is
// left zero; callers mint one (matching the trainer's own id source
// for every other persisted entity).
func Randomize(rng *rand.Rand) wire.LandingCase {
	flatStart, flatEnd, flatElevation := getFlat(rng)
	surface, safeArea := fillSurface(rng, flatStart, flatEnd, flatElevation)
	position := fillPosition(rng, surface, flatStart, flatEnd)

	fuel := int32(fuelB + fuelK*float64(len(surface)-7) + rng.NormFloat64()*fuelD)
	if fuel < marslander.FuelAmountMax {
		fuel = marslander.FuelAmountMax
	}

	tiltSpec := [...]int32{marslander.TiltAngleMin, 0, 0, 0, 0, marslander.TiltAngleMax}
	tilt := tiltSpec[rng.IntN(len(tiltSpec))]

	var velocityX float64
	inFlat := flatStart <= position.X && position.X <= flatEnd
	if !inFlat && rng.Float64() < 0.8 {
		velocityX = float64(sign((flatStart+flatEnd)/2-position.X)) *
			nextRealVal(rng, initialSpeedMin, initialSpeedMax)
	}

	return wire.LandingCase{
		Fuel:     fuel,
		Thrust:   marslander.ThrustPowerMin,
		Tilt:     tilt,
		SafeArea: safeArea,
		Position: position,
		Velocity: geom.Point[float64]{X: velocityX, Y: 0},
		Surface:  surface,
	}
}

func getFlat(rng *rand.Rand) (flatStart, flatEnd, flatElevation int32) {
	steps := (surfaceFlatWidthMax - marslander.FlatWidthMin) / surfaceFlatWidthStep
	flatWidth := int32(marslander.FlatWidthMin) + surfaceFlatWidthStep*nextIntVal(rng, 0, int32(steps))

	ofs := (flatWidth >> 1) + (flatWidth & 1)
	cx := nextIntVal(rng, ofs, zoneXMax-ofs)

	if cx <= zoneXMax/2 {
		flatStart = cx - ofs
		flatEnd = flatStart + flatWidth
	} else {
		flatEnd = cx + ofs
		flatStart = flatEnd - flatWidth
	}

	flatElevation = nextIntVal(rng, surfaceFlatElevationMin, surfaceFlatElevationMax)
	return
}

type buildState int

const (
	stateStart buildState = iota
	stateFlat
	stateEnd
)

func fillSurface(rng *rand.Rand, flatStart, flatEnd, flatElevation int32) ([]geom.Point[int32], geom.Span[uint32]) {
	surfaceSize := nextIntVal(rng, surfacePointsCountMin+1, surfacePointsCountMax)
	step := float64(zoneXMax) / float64(surfaceSize-1)
	step2 := step / 2
	step6 := step / 6

	var surface []geom.Point[int32]
	var safeArea geom.Span[uint32]
	state := stateStart

	imax := int(surfaceSize - 1)
	for i := 0; i <= imax; i++ {
		jitter := 0.0
		if i > 0 && i < imax && step2 > 1 {
			jitter = geom.Clamp(rng.NormFloat64()*step6, -step2+1, step2-1)
		}
		x := int32(math.Round(step*float64(i) + jitter))

		switch state {
		case stateStart:
			if x >= flatStart {
				state = stateFlat
				safeArea.Start = uint32(len(surface))
				surface = append(surface, geom.Point[int32]{X: flatStart, Y: flatElevation})

				brokeOut := false
				if i == imax {
					safeArea.End = uint32(len(surface))
					surface = append(surface, geom.Point[int32]{X: flatEnd, Y: flatElevation})
					if x > flatEnd {
						brokeOut = true
					}
				}
				if !brokeOut {
					continue
				}
			} else {
				break
			}
		case stateFlat:
			if x >= flatEnd {
				state = stateEnd
				safeArea.End = uint32(len(surface))
				surface = append(surface, geom.Point[int32]{X: flatEnd, Y: flatElevation})

				if i == imax && x > flatEnd {
					// fall through to the generic point below
				} else {
					continue
				}
			} else {
				continue
			}
		}

		var y int32
		switch {
		case x < flatStart:
			y = int32(math.Round(surfaceElevationMax * rng.Float64() * elevationCurve(float64(flatStart), 0, float64(x))))
		case x > flatEnd:
			y = int32(math.Round(surfaceElevationMax * rng.Float64() * elevationCurve(float64(flatStart), float64(zoneXMax), float64(x))))
		default:
			y = 0
		}
		surface = append(surface, geom.Point[int32]{X: x, Y: y})
	}

	return surface, safeArea
}

func fillPosition(rng *rand.Rand, surface []geom.Point[int32], flatStart, flatEnd int32) geom.Point[int32] {
	var position geom.Point[int32]
	steps := 0
	for {
		steps++
		if steps > 16 {
			position.X = nextIntVal(rng, flatStart, flatEnd)
		} else {
			position.X = nextIntVal(rng, zoneHorzPadding, zoneXMax-zoneHorzPadding)
		}
		position.Y = nextIntVal(rng, startPositionAltitudeMin, startPositionAltitudeMax)

		if float64(position.Y) > marslander.SurfaceLevel(surface, position.X) {
			break
		}
	}
	return position
}
