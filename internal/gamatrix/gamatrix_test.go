package gamatrix

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/lox/marslander/internal/ga"
	"github.com/stretchr/testify/require"
)

func genomes(n int) []Genome {
	out := make([]Genome, n)
	for i := range out {
		out[i] = Genome{ID: uint64(i + 1), Genes: []float64{float64(i), float64(i)}}
	}
	return out
}

func TestNewResetsGridToNaN(t *testing.T) {
	m := New(genomes(3), []uint64{10, 20}, 1, 2)
	require.Equal(t, 3, m.PopulationSize)
	require.False(t, m.AllComplete())
}

func TestReportOutcomeUnknownIDs(t *testing.T) {
	m := New(genomes(2), []uint64{10}, 1, 2)
	require.ErrorIs(t, m.ReportOutcome(999, 1, 0.5, time.Now()), ErrUnknownCase)
	require.ErrorIs(t, m.ReportOutcome(10, 999, 0.5, time.Now()), ErrUnknownGenome)
}

func TestReportOutcomeFillsCellAndCompletesRow(t *testing.T) {
	m := New(genomes(2), []uint64{10, 20}, 1, 2)
	now := time.Now()

	require.NoError(t, m.ReportOutcome(10, 1, 1.0, now))
	require.False(t, m.AllComplete())
	require.NoError(t, m.ReportOutcome(20, 1, 2.0, now))
	require.NoError(t, m.ReportOutcome(10, 2, 3.0, now))
	require.NoError(t, m.ReportOutcome(20, 2, 4.0, now))
	require.True(t, m.AllComplete())
}

func TestUpdateReadinessCountsCompleteRows(t *testing.T) {
	m := New(genomes(2), []uint64{10, 20}, 1, 2)
	now := time.Now()
	require.NoError(t, m.ReportOutcome(10, 1, 1.0, now))
	require.NoError(t, m.ReportOutcome(20, 1, 2.0, now))

	ready := m.UpdateReadiness(now)
	require.Equal(t, 1, ready)
}

func TestDispenseRespectsTimeoutAndRoundRobins(t *testing.T) {
	m := New(genomes(4), []uint64{10}, 1, 2)
	now := time.Now()

	// fresh matrix: every individual's timeout is already stale, so a
	// first dispense should return up to capacity immediately.
	out := m.Dispense(now, 2)
	require.Len(t, out, 2)
	require.Equal(t, uint64(1), out[0].ID)
	require.Equal(t, uint64(2), out[1].ID)

	// those two were just reset to now; a second dispense should skip
	// them and return the other two.
	out = m.Dispense(now, 2)
	require.Len(t, out, 2)
	require.Equal(t, uint64(3), out[0].ID)
	require.Equal(t, uint64(4), out[1].ID)

	// everything now fresh: a third dispense returns nothing.
	out = m.Dispense(now, 2)
	require.Len(t, out, 0)
}

func TestDispenseResendsAfterTimeoutElapses(t *testing.T) {
	m := New(genomes(2), []uint64{10}, 1, 2)
	now := time.Now()
	out := m.Dispense(now, 2)
	require.Len(t, out, 2)

	later := now.Add(ResultTimeout + time.Second)
	out = m.Dispense(later, 2)
	require.Len(t, out, 2)
}

func TestAdvanceKeepsEliteUnchangedAndBumpsGeneration(t *testing.T) {
	m := New(genomes(6), []uint64{10, 20}, 2, 2)
	now := time.Now()
	for i, g := range m.Population() {
		require.NoError(t, m.ReportOutcome(10, g.ID, float64(i), now))
		require.NoError(t, m.ReportOutcome(20, g.ID, float64(i), now))
	}
	require.True(t, m.AllComplete())

	rng := rand.New(rand.NewPCG(1, 2))
	nextID := uint64(100)
	stats := m.Advance(rng, ga.Heuristic{Ratio: 0.5}, ga.NoneMutation{}, func() uint64 {
		nextID++
		return nextID
	})

	require.Equal(t, uint64(0), stats.Generation) // generation was 0 before the bump
	require.Equal(t, uint64(1), m.Generation)
	require.Len(t, m.Population(), 6)

	// the two best-scoring genomes (rows 0 and 1, ratings 0 and 1) are elite
	// and must survive with unchanged ids and genes.
	require.Equal(t, uint64(1), m.Population()[0].ID)
	require.Equal(t, uint64(2), m.Population()[1].ID)
	require.Equal(t, []float64{0, 0}, m.Population()[0].Genes)
	require.Equal(t, []float64{1, 1}, m.Population()[1].Genes)
}

func TestAdvanceMintsFreshIDsForNonElite(t *testing.T) {
	m := New(genomes(4), []uint64{10}, 1, 2)
	now := time.Now()
	for _, g := range m.Population() {
		require.NoError(t, m.ReportOutcome(10, g.ID, 0.1, now))
	}

	rng := rand.New(rand.NewPCG(5, 6))
	var minted []uint64
	m.Advance(rng, ga.Scattered{P: 0.5}, ga.NoneMutation{}, func() uint64 {
		id := uint64(1000 + len(minted))
		minted = append(minted, id)
		return id
	})

	require.Len(t, minted, 3) // population_size(4) - elite_count(1)
	for _, g := range m.Population()[1:] {
		require.Contains(t, minted, g.ID)
	}
}

func TestNeumaierSumMatchesPlainSumForWellScaledValues(t *testing.T) {
	values := []float64{1.0, 2.0, 3.0, 4.0}
	require.InDelta(t, 10.0, neumaierSum(values), 1e-12)
}
