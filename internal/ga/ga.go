// Package ga implements the crossover and mutation operator library
// used by the trainer's generation-advance pipeline (SPEC_FULL.md
// §4.H). Grounded on
// original_source/trainer/internal/ga.h's crossover_*/mutation_*
// function templates and their algo::xvr/algo::mtn wrapper classes;
// the virtual-dispatch class hierarchy is replaced with small Go
// interfaces and value types.
package ga

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// uniform01 draws from [0,1), matching the reference's uniform_real_distribution
// closely enough for a continuous RNG (the reference's nextafter-widened
// upper bound exists only to counter its discrete double stepping).
func uniform01(rng *rand.Rand) float64 { return rng.Float64() }

// uniform01Strict draws from (0,1], needed wherever the reference takes
// log(r) and must avoid r == 0.
func uniform01Strict(rng *rand.Rand) float64 { return 1 - rng.Float64() }

// lerp matches include/common.h's monotonicity-safe lerp: exact at t=1.
func lerp(a, b, t float64) float64 {
	if t == 1 {
		return b
	}
	return a + t*(b-a)
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// Crossover produces Growth() children from two parents. cmp tells the
// operator which parent is fitter: cmp <= 0 means parentA is fitter (the
// reference's DECL_COMPARE_PARENTS_ convention); operators that don't
// care about fitness ignore it.
type Crossover interface {
	Growth() int
	Exec(rng *rand.Rand, parentA, parentB []float64, cmp int) [][]float64
}

// Mutation mutates genes in place.
type Mutation interface {
	Exec(rng *rand.Rand, genes []float64)
}

func copyGenes(g []float64) []float64 {
	out := make([]float64, len(g))
	copy(out, g)
	return out
}

// Heuristic crossover: child_i = lerp(better_i, worse_i, ratio).
type Heuristic struct{ Ratio float64 }

func (Heuristic) Growth() int { return 1 }

func (h Heuristic) Exec(rng *rand.Rand, parentA, parentB []float64, cmp int) [][]float64 {
	better, worse := parentA, parentB
	if cmp > 0 {
		better, worse = parentB, parentA
	}
	child := make([]float64, len(better))
	for i := range child {
		child[i] = lerp(better[i], worse[i], h.Ratio)
	}
	return [][]float64{child}
}

// Intermediate crossover: like Heuristic but t = ratio*U(0,1) and
// neither parent is preferred.
type Intermediate struct{ Ratio float64 }

func (Intermediate) Growth() int { return 1 }

func (in Intermediate) Exec(rng *rand.Rand, parentA, parentB []float64, _ int) [][]float64 {
	t := in.Ratio * uniform01(rng)
	child := make([]float64, len(parentA))
	for i := range child {
		child[i] = lerp(parentA[i], parentB[i], t)
	}
	return [][]float64{child}
}

// Laplace crossover, section 2.1 of Deep et al. Growth is 2.
type Laplace struct{ A, B float64 }

func (Laplace) Growth() int { return 2 }

func (l Laplace) Exec(rng *rand.Rand, x1, x2 []float64, _ int) [][]float64 {
	beta := make([]float64, len(x1))
	for i := range beta {
		u := uniform01(rng)
		r := uniform01Strict(rng)
		d := math.Abs(x1[i] - x2[i])
		beta[i] = d * (l.A + sign(u-0.5)*l.B*math.Log(r))
	}

	y1 := make([]float64, len(x1))
	y2 := make([]float64, len(x2))
	for i := range beta {
		y1[i] = x1[i] + beta[i]
		y2[i] = x2[i] + beta[i]
	}
	return [][]float64{y1, y2}
}

// Scattered crossover: each gene independently picked from the fitter
// parent (parentA unless cmp > 0) with probability p, else from the
// other parent.
type Scattered struct{ P float64 }

func (Scattered) Growth() int { return 1 }

func (s Scattered) Exec(rng *rand.Rand, parentA, parentB []float64, cmp int) [][]float64 {
	better, worse := parentA, parentB
	if cmp > 0 {
		better, worse = parentB, parentA
	}
	child := make([]float64, len(better))
	for i := range child {
		if uniform01(rng) <= s.P {
			child[i] = better[i]
		} else {
			child[i] = worse[i]
		}
	}
	return [][]float64{child}
}

// GaussianMutation draws x ~ N(mean,stddev) for each gene and adds x to
// the gene when |x| clears the mean+t·stddev threshold.
type GaussianMutation struct{ T, Mean, Stddev float64 }

func (m GaussianMutation) Exec(rng *rand.Rand, genes []float64) {
	threshold := m.Mean + m.T*m.Stddev
	for i, v := range genes {
		x := rng.NormFloat64()*m.Stddev + m.Mean
		if math.Abs(x) >= threshold {
			genes[i] = v + x
		}
	}
}

// PowerMutation, section 2.2 of Deep et al.
type PowerMutation struct{ P, Xl, Xu float64 }

func (m PowerMutation) Exec(rng *rand.Rand, genes []float64) {
	s := math.Pow(uniform01(rng), m.P)
	for i, v := range genes {
		vxl := v - m.Xl
		xuv := m.Xu - v
		t := vxl / xuv
		r := uniform01(rng)

		delta := 0.0
		if t >= r {
			delta = xuv
		} else {
			delta = -vxl
		}
		genes[i] = v + s*delta
	}
}

// UniformMutation replaces each gene with U(a,b) independently with
// probability rate.
type UniformMutation struct{ Rate, A, B float64 }

func (m UniformMutation) Exec(rng *rand.Rand, genes []float64) {
	span := m.B - m.A
	for i := range genes {
		if uniform01(rng) <= m.Rate {
			genes[i] = m.A + span*uniform01(rng)
		}
	}
}

// NoneMutation is the identity mutation.
type NoneMutation struct{}

func (NoneMutation) Exec(*rand.Rand, []float64) {}

// ErrUnknownAlgorithm is returned by BuildCrossover/BuildMutation for a
// name this build does not recognize, and by BuildCrossover/BuildMutation
// when the wrong number of parameters accompanies a known name.
var ErrUnknownAlgorithm = errors.New("ga: unknown algorithm")

// BuildCrossover instantiates the named crossover operator, matching
// the reference's xvr_factory::instantiate dispatch
// (trainer/internal/ga.h).
func BuildCrossover(name string, values []float64) (Crossover, error) {
	switch name {
	case "heuristic":
		if len(values) != 1 {
			return nil, fmt.Errorf("%w: heuristic expects 1 parameter", ErrUnknownAlgorithm)
		}
		return Heuristic{Ratio: values[0]}, nil
	case "intermediate":
		if len(values) != 1 {
			return nil, fmt.Errorf("%w: intermediate expects 1 parameter", ErrUnknownAlgorithm)
		}
		return Intermediate{Ratio: values[0]}, nil
	case "laplace":
		if len(values) != 2 {
			return nil, fmt.Errorf("%w: laplace expects 2 parameters", ErrUnknownAlgorithm)
		}
		return Laplace{A: values[0], B: values[1]}, nil
	case "scattered":
		if len(values) != 1 {
			return nil, fmt.Errorf("%w: scattered expects 1 parameter", ErrUnknownAlgorithm)
		}
		return Scattered{P: values[0]}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}

// BuildMutation instantiates the named mutation operator, matching the
// reference's mtn_factory::instantiate dispatch.
func BuildMutation(name string, values []float64) (Mutation, error) {
	switch name {
	case "none":
		if len(values) != 0 {
			return nil, fmt.Errorf("%w: none expects 0 parameters", ErrUnknownAlgorithm)
		}
		return NoneMutation{}, nil
	case "gaussian":
		if len(values) != 3 {
			return nil, fmt.Errorf("%w: gaussian expects 3 parameters", ErrUnknownAlgorithm)
		}
		return GaussianMutation{T: values[0], Mean: values[1], Stddev: values[2]}, nil
	case "power":
		if len(values) != 3 {
			return nil, fmt.Errorf("%w: power expects 3 parameters", ErrUnknownAlgorithm)
		}
		return PowerMutation{P: values[0], Xl: values[1], Xu: values[2]}, nil
	case "uniform":
		if len(values) != 3 {
			return nil, fmt.Errorf("%w: uniform expects 3 parameters", ErrUnknownAlgorithm)
		}
		return UniformMutation{Rate: values[0], A: values[1], B: values[2]}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}
