package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultTrainerConfigValidates(t *testing.T) {
	require.NoError(t, DefaultTrainerConfig().Validate())
}

func TestDefaultRunnerConfigValidates(t *testing.T) {
	require.NoError(t, DefaultRunnerConfig().Validate())
}

func TestTrainerConfigRejectsBadPort(t *testing.T) {
	c := DefaultTrainerConfig()
	c.Port = 0
	require.Error(t, c.Validate())
}

func TestTrainerConfigRejectsEliteOverPopulation(t *testing.T) {
	c := DefaultTrainerConfig()
	c.EliteCount = c.PopulationSize + 1
	require.Error(t, c.Validate())
}

func TestTrainerConfigRejectsTournamentOutOfRange(t *testing.T) {
	c := DefaultTrainerConfig()
	c.TournamentSize = c.PopulationSize - c.EliteCount + 1
	require.Error(t, c.Validate())
}

func TestTrainerConfigAllowsZeroTournamentWhenNoNonEliteSlotsRemain(t *testing.T) {
	c := DefaultTrainerConfig()
	c.EliteCount = c.PopulationSize
	c.TournamentSize = 0
	require.NoError(t, c.Validate())
}

func TestTrainerConfigRejectsUnknownCrossover(t *testing.T) {
	c := DefaultTrainerConfig()
	c.Crossover = AlgorithmSpec{Name: "nonexistent"}
	err := c.Validate()
	require.Error(t, err)
	require.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestTrainerConfigRejectsWrongParamCount(t *testing.T) {
	c := DefaultTrainerConfig()
	c.Mutation = AlgorithmSpec{Name: MutationUniform, Values: []float64{1}}
	require.Error(t, c.Validate())
}

func TestTrainerConfigRejectsMismatchedReplayTarget(t *testing.T) {
	c := DefaultTrainerConfig()
	c.ReplayGenomeID = 7
	require.Error(t, c.Validate())
}

func TestTrainerConfigAcceptsNoneMutationWithZeroParams(t *testing.T) {
	c := DefaultTrainerConfig()
	c.Mutation = AlgorithmSpec{Name: MutationNone}
	require.NoError(t, c.Validate())
}

func TestRunnerConfigRejectsEmptyHost(t *testing.T) {
	c := DefaultRunnerConfig()
	c.Host = ""
	require.Error(t, c.Validate())
}

func TestLoadTrainerConfigReturnsDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadTrainerConfig(filepath.Join(t.TempDir(), "nonexistent.hcl"))
	require.NoError(t, err)
	require.Equal(t, DefaultTrainerConfig(), cfg)
}

func TestLoadTrainerConfigOverlaysFileOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "training.hcl")
	require.NoError(t, writeFile(path, `
trainer {
  port             = 9000
  population_size  = 12
  elite_count      = 1
  tournament_size  = 2

  crossover {
    name   = "laplace"
    values = [0, 0.5]
  }

  mutation {
    name   = "none"
  }
}
`))

	cfg, err := LoadTrainerConfig(path)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Port)
	require.Equal(t, 12, cfg.PopulationSize)
	require.Equal(t, 1, cfg.EliteCount)
	require.Equal(t, 2, cfg.TournamentSize)
	require.Equal(t, AlgorithmSpec{Name: "laplace", Values: []float64{0, 0.5}}, cfg.Crossover)
	require.Equal(t, AlgorithmSpec{Name: "none"}, cfg.Mutation)
	// Fields absent from the file keep their defaults.
	require.Equal(t, DefaultTrainerConfig().CasesCount, cfg.CasesCount)

	require.NoError(t, cfg.Validate())
}

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}
