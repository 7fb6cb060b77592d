package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lox/marslander/internal/gamatrix"
	"github.com/lox/marslander/internal/geom"
	"github.com/lox/marslander/internal/wire"
	"github.com/stretchr/testify/require"
)

func sampleCheckpoint() Checkpoint {
	return Checkpoint{
		Check:          0xDEADBEEF,
		Generation:     3,
		PopulationSize: 2,
		EliteCount:     1,
		TournamentSize: 2,
		Crossover:      AlgorithmArgs{Name: "heuristic", Values: []float64{0.8}},
		Mutation:       AlgorithmArgs{Name: "gaussian", Values: []float64{1, 0, 0.1}},
		NextGenomeID:   100,
		Cases: []wire.LandingCase{
			{
				ID:       1,
				Fuel:     2000,
				SafeArea: geom.Span[uint32]{Start: 1, End: 2},
				Position: geom.Point[int32]{X: 3500, Y: 2700},
				Velocity: geom.Point[float64]{X: 0, Y: -5},
				Surface: []geom.Point[int32]{
					{X: 0, Y: 100}, {X: 3000, Y: 100}, {X: 4000, Y: 100}, {X: 6999, Y: 200},
				},
			},
		},
		Population: []gamatrix.Genome{
			{ID: 1, Genes: []float64{0.1, 0.2, 0.3}},
			{ID: 2, Genes: []float64{0.4, 0.5, 0.6}},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "training.dat")
	in := sampleCheckpoint()
	require.NoError(t, Save(path, in))

	out, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestLoadDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "training.dat")
	require.NoError(t, Save(path, sampleCheckpoint()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Load(path)
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestLoadRejectsTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "training.dat")
	require.NoError(t, os.WriteFile(path, []byte{1, 2}, 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "training.dat")
	require.False(t, Exists(path))
	require.NoError(t, Save(path, sampleCheckpoint()))
	require.True(t, Exists(path))
}

func TestSaveIsAtomicNoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "training.dat")
	require.NoError(t, Save(path, sampleCheckpoint()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "training.dat", entries[0].Name())
}
