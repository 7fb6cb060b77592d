// Package config carries the defaults and validation for the trainer
// and runner's command-line-driven configuration (SPEC_FULL.md §1.A,
// §6). Grounded on internal/regression's flat Config struct style and
// internal/server's DefaultServerConfig/Validate pattern; the upstream
// reference resolves population size, elite count, tournament size and
// operator choice through interactive stdin prompts
// (trainer/internal/trainer_app_init.cpp's setup_population/setup_cases)
// — this module replaces that with flag-driven defaults plus batch-mode
// validation, per SPEC_FULL.md §7's "Configuration error" policy
// ("abort with an error code in batch mode").
package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// DefaultPort is the trainer's listening port absent -p/--port (§6).
const DefaultPort = 12345

// GenomeSway is the default for TrainerConfig.GenomeSway, carried over
// from the reference's genome_sway = 1e4 (trainer/internal/ga.h). The
// value is validated but not consumed: internal/nn.Randomize takes no
// sway parameter.
const GenomeSway = 1e4

// AlgorithmSpec names a GA operator and its numeric parameters, as
// accepted from the command line and handed to the operator factory.
type AlgorithmSpec struct {
	Name   string
	Values []float64
}

// Recognized crossover and mutation operator names (SPEC_FULL.md §4.H).
const (
	CrossoverHeuristic    = "heuristic"
	CrossoverIntermediate = "intermediate"
	CrossoverLaplace      = "laplace"
	CrossoverScattered    = "scattered"

	MutationNone     = "none"
	MutationGaussian = "gaussian"
	MutationPower    = "power"
	MutationUniform  = "uniform"
)

// TrainerConfig holds the resolved configuration for a from-scratch
// training session. Fields mirror the reference's app_state
// population/case setup (trainer_app_init.cpp's setup_population,
// setup_cases) plus the CLI switches of trainer_main.cpp.
type TrainerConfig struct {
	Port      int
	Directory string

	// Init, when true, starts a fresh session (optionally seeded from
	// CasesPath) instead of resuming training.dat.
	Init      bool
	CasesPath string

	PopulationSize int
	EliteCount     int
	TournamentSize int
	CasesCount     int
	GenomeSway     float64

	Crossover AlgorithmSpec
	Mutation  AlgorithmSpec

	// ReplayGenomeID/ReplayCaseID select a single (genome, case) pair
	// for --replay=gid;cid; both zero means no replay export requested.
	ReplayGenomeID uint64
	ReplayCaseID   uint64

	DumpSession     bool
	DumpSessionPath string

	NoExit bool
}

// DefaultTrainerConfig returns usable batch-mode defaults. The
// reference's interactive prompts default to a population of 1 with no
// elitism or tournament pressure (trainer_app_init.cpp's
// setup_population) — fine for a human stepping through prompts one at
// a time, but a degenerate starting point for a session launched
// without a human to raise those numbers. This picks values large
// enough to actually exercise crossover and tournament selection.
func DefaultTrainerConfig() *TrainerConfig {
	return &TrainerConfig{
		Port:           DefaultPort,
		Directory:      ".",
		PopulationSize: 50,
		EliteCount:     2,
		TournamentSize: 3,
		CasesCount:     8,
		GenomeSway:     GenomeSway,
		Crossover:      AlgorithmSpec{Name: CrossoverHeuristic, Values: []float64{0.7}},
		Mutation:       AlgorithmSpec{Name: MutationGaussian, Values: []float64{1.0, 0.0, 0.1}},
	}
}

// Validate reports the first configuration error found, matching
// internal/server's ServerConfig.Validate style of one fmt.Errorf per
// failed check.
func (c *TrainerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port: %d", c.Port)
	}
	if c.PopulationSize < 1 {
		return fmt.Errorf("config: population size must be at least 1")
	}
	if c.EliteCount < 0 || c.EliteCount > c.PopulationSize {
		return fmt.Errorf("config: elite count must be in [0, %d]", c.PopulationSize)
	}
	tournamentMax := c.PopulationSize - c.EliteCount
	if tournamentMax > 0 {
		if c.TournamentSize < 1 || c.TournamentSize > tournamentMax {
			return fmt.Errorf("config: tournament size must be in [1, %d]", tournamentMax)
		}
	}
	if c.CasesCount < 1 {
		return fmt.Errorf("config: cases count must be at least 1")
	}
	if c.GenomeSway < 0 {
		return fmt.Errorf("config: genome sway must be non-negative")
	}
	if err := validateAlgorithm(c.Crossover, validCrossovers); err != nil {
		return fmt.Errorf("config: crossover: %w", err)
	}
	if err := validateAlgorithm(c.Mutation, validMutations); err != nil {
		return fmt.Errorf("config: mutation: %w", err)
	}
	if (c.ReplayGenomeID == 0) != (c.ReplayCaseID == 0) {
		return fmt.Errorf("config: --replay requires both a genome id and a case id")
	}
	return nil
}

// trainerFileConfig is the optional HCL overlay for TrainerConfig,
// matching internal/server/config.go's LoadServerConfig shape: a
// single labelless block whose fields are all optional, decoded over
// top of DefaultTrainerConfig's values rather than replacing them
// wholesale.
type trainerFileConfig struct {
	Trainer *trainerBlock `hcl:"trainer,block"`
}

type trainerBlock struct {
	Port           *int     `hcl:"port,optional"`
	Directory      *string  `hcl:"directory,optional"`
	PopulationSize *int     `hcl:"population_size,optional"`
	EliteCount     *int     `hcl:"elite_count,optional"`
	TournamentSize *int     `hcl:"tournament_size,optional"`
	CasesCount     *int     `hcl:"cases_count,optional"`
	GenomeSway     *float64 `hcl:"genome_sway,optional"`

	Crossover *algorithmBlock `hcl:"crossover,block"`
	Mutation  *algorithmBlock `hcl:"mutation,block"`
}

type algorithmBlock struct {
	Name   string    `hcl:"name"`
	Values []float64 `hcl:"values,optional"`
}

// LoadTrainerConfig reads an optional HCL file at path and overlays its
// `trainer` block onto DefaultTrainerConfig's values. A missing file is
// not an error — it returns the defaults untouched, same as
// LoadServerConfig does for a missing server config.
func LoadTrainerConfig(path string) (*TrainerConfig, error) {
	cfg := DefaultTrainerConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("config: parsing %s: %s", path, diags.Error())
	}

	var parsed trainerFileConfig
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("config: decoding %s: %s", path, diags.Error())
	}

	b := parsed.Trainer
	if b == nil {
		return cfg, nil
	}

	if b.Port != nil {
		cfg.Port = *b.Port
	}
	if b.Directory != nil {
		cfg.Directory = *b.Directory
	}
	if b.PopulationSize != nil {
		cfg.PopulationSize = *b.PopulationSize
	}
	if b.EliteCount != nil {
		cfg.EliteCount = *b.EliteCount
	}
	if b.TournamentSize != nil {
		cfg.TournamentSize = *b.TournamentSize
	}
	if b.CasesCount != nil {
		cfg.CasesCount = *b.CasesCount
	}
	if b.GenomeSway != nil {
		cfg.GenomeSway = *b.GenomeSway
	}
	if b.Crossover != nil {
		cfg.Crossover = AlgorithmSpec{Name: b.Crossover.Name, Values: b.Crossover.Values}
	}
	if b.Mutation != nil {
		cfg.Mutation = AlgorithmSpec{Name: b.Mutation.Name, Values: b.Mutation.Values}
	}

	return cfg, nil
}

var validCrossovers = map[string]int{
	CrossoverHeuristic:    1,
	CrossoverIntermediate: 1,
	CrossoverLaplace:      2,
	CrossoverScattered:    1,
}

var validMutations = map[string]int{
	MutationNone:     0,
	MutationGaussian: 3,
	MutationPower:    3,
	MutationUniform:  3,
}

// ErrUnknownAlgorithm is returned by TrainerConfig.Validate when the
// configured crossover or mutation names an operator this build does
// not recognize; cmd/trainer exits with code -2 on it. Operator names
// read from a checkpoint are checked by internal/ga's factory instead.
var ErrUnknownAlgorithm = fmt.Errorf("config: unknown algorithm")

func validateAlgorithm(spec AlgorithmSpec, table map[string]int) error {
	want, ok := table[spec.Name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, spec.Name)
	}
	if len(spec.Values) != want {
		return fmt.Errorf("%q expects %d parameter(s), got %d", spec.Name, want, len(spec.Values))
	}
	return nil
}

// RunnerConfig holds the resolved configuration for a runner session
// (trainer_main.cpp's analogue, the runner side; SPEC_FULL.md §6).
type RunnerConfig struct {
	Host string
	Port int

	KeepReplays int
	ReplaysDir  string
}

// DefaultRunnerConfig mirrors the trainer's default port and disables
// replay retention absent an explicit --keep-replays.
func DefaultRunnerConfig() *RunnerConfig {
	return &RunnerConfig{
		Host:        "localhost",
		Port:        DefaultPort,
		KeepReplays: 0,
		ReplaysDir:  ".",
	}
}

// Validate reports the first configuration error found.
func (c *RunnerConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("config: host must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port: %d", c.Port)
	}
	if c.KeepReplays < 0 {
		return fmt.Errorf("config: keep-replays must be non-negative")
	}
	return nil
}
