// Package gamatrix owns the trainer's authoritative population and
// result matrix, and drives the generation-advance pipeline
// (SPEC_FULL.md §4.I). Grounded on
// original_source/trainer/internal/trainer_app_server_outcomes.cpp's
// reset_results/next_generation/xvr_tournament/xvr_iterator and the
// outcomes request handler; the NaN-sentinel matrix, tournament
// selection, and elitism-then-crossover-then-mutation pipeline are
// carried over unchanged, expressed with Go slices and maps in place
// of the original's flat results_table and unordered_map indices.
package gamatrix

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"
	"time"
)

// ResultTimeout is how long the trainer waits for a runner to report
// a (case, genome) rating before resending that genome to another
// runner (§4.J, §9).
const ResultTimeout = 30 * time.Second

// ErrUnknownCase is returned by ReportOutcome for a case id not in the
// current case set.
var ErrUnknownCase = errors.New("gamatrix: unknown case id")

// ErrUnknownGenome is returned by ReportOutcome for a genome id not in
// the current population.
var ErrUnknownGenome = errors.New("gamatrix: unknown genome id")

// Genome is one population individual: a stable id plus its genes.
type Genome struct {
	ID    uint64
	Genes []float64
}

// Stats summarizes a completed generation, for logging.
type Stats struct {
	Generation            uint64
	ScoreBest, ScoreWorst float64
}

// Matrix holds the population, the case set, and the individual×case
// result grid (§3, "Result matrix" orientation resolved as
// [individual][case] against the reference's s.results[population_ind][case_ind]).
type Matrix struct {
	Generation     uint64
	EliteCount     int
	TournamentSize int
	PopulationSize int

	population []Genome
	caseIDs    []uint64

	popIndex  map[uint64]int
	caseIndex map[uint64]int

	results  [][]float64 // [individual][case]
	timeouts []time.Time
	index    int // round-robin dispense cursor
}

// New builds a Matrix over the given population and case id list and
// allocates a fresh result grid.
func New(population []Genome, caseIDs []uint64, eliteCount, tournamentSize int) *Matrix {
	m := &Matrix{
		EliteCount:     eliteCount,
		TournamentSize: tournamentSize,
		PopulationSize: len(population),
		population:     population,
		caseIDs:        caseIDs,
	}
	m.RebuildIndices()
	m.ResetResults(time.Time{})
	return m
}

// Population returns the current population (read-only use expected).
func (m *Matrix) Population() []Genome { return m.population }

// CaseIDs returns the current case id list.
func (m *Matrix) CaseIDs() []uint64 { return m.caseIDs }

// RebuildIndices recomputes the genome-id and case-id lookup maps
// after the population or case set changes.
func (m *Matrix) RebuildIndices() {
	m.popIndex = make(map[uint64]int, len(m.population))
	for i, g := range m.population {
		m.popIndex[g.ID] = i
	}
	m.caseIndex = make(map[uint64]int, len(m.caseIDs))
	for i, id := range m.caseIDs {
		m.caseIndex[id] = i
	}
}

// ResetResults reallocates the result grid to NaN and resets the
// timeout vector so every individual is immediately eligible for
// dispensing, mirroring reset_results's stale default timeout.
func (m *Matrix) ResetResults(now time.Time) {
	m.index = 0
	m.PopulationSize = len(m.population)
	casesCount := len(m.caseIDs)

	m.results = make([][]float64, m.PopulationSize)
	for i := range m.results {
		row := make([]float64, casesCount)
		for j := range row {
			row[j] = math.NaN()
		}
		m.results[i] = row
	}

	staleTimeout := now.Add(-ResultTimeout)
	m.timeouts = make([]time.Time, m.PopulationSize)
	for i := range m.timeouts {
		m.timeouts[i] = staleTimeout
	}
}

// ReportOutcome records a runner's rating for (caseID, genomeID) and
// resets that individual's timeout. Unknown ids are reported as errors
// so the caller can log and skip, matching the reference's
// warn-and-continue behavior.
func (m *Matrix) ReportOutcome(caseID, genomeID uint64, rating float64, now time.Time) error {
	caseIdx, ok := m.caseIndex[caseID]
	if !ok {
		return ErrUnknownCase
	}
	popIdx, ok := m.popIndex[genomeID]
	if !ok {
		return ErrUnknownGenome
	}
	m.timeouts[popIdx] = now
	m.results[popIdx][caseIdx] = rating
	return nil
}

// UpdateReadiness marks every row with no remaining NaN cell as ready
// (freezing its timeout so it is never resent) and returns how many
// rows are ready. The caller advances the generation once this equals
// PopulationSize.
func (m *Matrix) UpdateReadiness(now time.Time) int {
	ready := 0
	farFuture := now.Add(100 * 365 * 24 * time.Hour)
	for i, row := range m.results {
		if !rowHasNaN(row) {
			m.timeouts[i] = farFuture
			ready++
		}
	}
	return ready
}

func rowHasNaN(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// AllComplete reports whether every row is free of NaN cells.
func (m *Matrix) AllComplete() bool {
	for _, row := range m.results {
		if rowHasNaN(row) {
			return false
		}
	}
	return true
}

// Dispense fills up to capacity slots with genomes whose timeout has
// elapsed, advancing the round-robin cursor and resetting each
// dispensed individual's timeout to now. It scans at most
// PopulationSize individuals, matching the reference's single pass
// over s.population_size in the outcomes handler.
func (m *Matrix) Dispense(now time.Time, capacity int) []Genome {
	out := make([]Genome, 0, capacity)
	n := m.PopulationSize
	for ; n > 0 && capacity > 0; n-- {
		if now.Sub(m.timeouts[m.index]) >= ResultTimeout {
			m.timeouts[m.index] = now
			out = append(out, m.population[m.index])
			capacity--
		}
		m.index = (m.index + 1) % m.PopulationSize
	}
	return out
}

// neumaierSum is a Neumaier/Kahan compensated summation: a portable,
// order-deterministic substitute for the reference's x87-FPU
// control-word-dependent Shewchuk accumulator (DESIGN.md).
func neumaierSum(values []float64) float64 {
	sum := 0.0
	c := 0.0
	for _, v := range values {
		t := sum + v
		if math.Abs(sum) >= math.Abs(v) {
			c += (sum - t) + v
		} else {
			c += (v - t) + sum
		}
		sum = t
	}
	return sum + c
}

func rowScore(row []float64) float64 {
	return neumaierSum(row) / float64(len(row))
}

// Crossover produces Growth() children from two parents given a
// fitness comparator (see internal/ga.Crossover).
type Crossover interface {
	Growth() int
	Exec(rng *rand.Rand, parentA, parentB []float64, cmp int) [][]float64
}

// Mutation mutates genes in place (see internal/ga.Mutation).
type Mutation interface {
	Exec(rng *rand.Rand, genes []float64)
}

// tournament draws the minimum of `size` uniform samples from
// [offset, total), matching xvr_tournament's biased-toward-better
// selection (lower index is fitter after sorting by ascending score).
// Parents are not required to be distinct, matching the reference.
func tournament(rng *rand.Rand, offset, total, size int) int {
	best := total
	for ; size > 0; size-- {
		v := offset + rng.IntN(total-offset)
		if v < best {
			best = v
		}
	}
	return best
}

func alignUp(v, n int) int {
	if n <= 0 {
		return v
	}
	return ((v + n - 1) / n) * n
}

// Advance reduces each row to a score, sorts individuals ascending
// (lower is better), copies the elite unchanged, fills the remainder
// via tournament-selected crossover (growth children per draw,
// truncated back to PopulationSize) and mutates every non-elite child
// with a freshly minted id, then bumps the generation. The result
// matrix is not reset here; callers call ResetResults once they are
// also ready to rebuild indices for the new population.
func (m *Matrix) Advance(rng *rand.Rand, xvr Crossover, mtn Mutation, nextID func() uint64) Stats {
	scores := make([]float64, len(m.population))
	for i, row := range m.results {
		scores[i] = rowScore(row)
	}

	inds := make([]int, len(m.population))
	for i := range inds {
		inds[i] = i
	}
	sort.Slice(inds, func(i, j int) bool { return scores[inds[i]] < scores[inds[j]] })

	stats := Stats{
		Generation: m.Generation,
		ScoreBest:  scores[inds[0]],
		ScoreWorst: scores[inds[len(inds)-1]],
	}

	eliteCount := m.EliteCount
	if eliteCount > m.PopulationSize {
		eliteCount = m.PopulationSize
	}
	xvrGrowth := xvr.Growth()
	crossoverCount := alignUp(m.PopulationSize-eliteCount, xvrGrowth)
	capacity := eliteCount + crossoverCount

	newPop := make([]Genome, 0, capacity)
	for i := 0; i < eliteCount; i++ {
		newPop = append(newPop, m.population[inds[i]])
	}

	if crossoverCount > 0 {
		xvrOfs := len(newPop)
		newPop = append(newPop, make([]Genome, crossoverCount)...)

		for slot := xvrOfs; slot < len(newPop); slot += xvrGrowth {
			x1 := tournament(rng, eliteCount, m.PopulationSize, m.TournamentSize)
			x2 := tournament(rng, eliteCount, m.PopulationSize, m.TournamentSize)
			parentA := m.population[inds[x1]].Genes
			parentB := m.population[inds[x2]].Genes
			children := xvr.Exec(rng, parentA, parentB, x1-x2)
			for j, childGenes := range children {
				if slot+j < len(newPop) {
					newPop[slot+j] = Genome{Genes: childGenes}
				}
			}
		}

		newPop = newPop[:m.PopulationSize]
		for i := xvrOfs; i < len(newPop); i++ {
			mtn.Exec(rng, newPop[i].Genes)
			newPop[i].ID = nextID()
		}
	}

	m.population = newPop
	m.Generation++
	return stats
}
