// Command trainer runs the genetic-algorithm trainer for the Mars
// lander AI: it owns the population, the case set, and the TCP front
// end runners report into. Grounded on trainer_main.cpp/trainer_app.cpp
// for the init/export/serve sequencing and cmd/server/main.go for the
// kong+zerolog+signal-aware bootstrap shape.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/marslander/internal/config"
	"github.com/lox/marslander/internal/ga"
	"github.com/lox/marslander/internal/gamatrix"
	"github.com/lox/marslander/internal/landingcase"
	"github.com/lox/marslander/internal/nn"
	"github.com/lox/marslander/internal/persist"
	"github.com/lox/marslander/internal/prng"
	"github.com/lox/marslander/internal/sessionexport"
	"github.com/lox/marslander/internal/trainserver"
	"github.com/lox/marslander/internal/wire"
)

// CLI decomposes the reference's getopt optional-argument flags
// --init[=path] and --dump-session[=path] into paired bool-plus-value
// flags, since kong, unlike getopt_long, has no concept of a flag whose
// value is itself optional; --replay[=gid;cid] becomes a single string
// parsed by parseReplayTarget.
type CLI struct {
	Init      bool   `kong:"help='Start a fresh training session from scratch, overwriting any existing one.'"`
	CasesFile string `kong:"help='Predefined training cases JSON file, used with --init.'"`

	Port      int    `kong:"short='p',default='12345',help='TCP port to listen on.'"`
	Directory string `kong:"short='d',default='.',help='Directory holding training.dat, training.hcl, and replay exports.'"`

	Replay          string `kong:"help='genome-id;case-id pair (delimiters: space, comma, semicolon, @) to export a single replay, then exit.'"`
	DumpSession     bool   `kong:"name='dump-session',help='Dump the persisted session to JSON, then exit.'"`
	DumpSessionPath string `kong:"name='dump-session-path',help='Destination path for --dump-session; empty means stdout.'"`

	NoExit bool `kong:"help='Keep the trainer server running after an export routine completes.'"`
	Debug  bool `kong:"help='Enable debug logging.'"`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("marslander-trainer"),
		kong.Description("Genetic-algorithm trainer for the Mars lander AI."),
		kong.UsageOnError(),
	)

	level := zerolog.InfoLevel
	if cli.Debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()

	exportLog := log.NewWithOptions(os.Stderr, log.Options{Level: log.InfoLevel})
	if cli.Debug {
		exportLog.SetLevel(log.DebugLevel)
	}

	if err := os.MkdirAll(cli.Directory, 0o755); err != nil {
		logger.Error().Err(err).Str("directory", cli.Directory).Msg("can't create directory")
		os.Exit(-2)
	}

	cfg, err := config.LoadTrainerConfig(filepath.Join(cli.Directory, "training.hcl"))
	if err != nil {
		logger.Error().Err(err).Msg("failed to load training.hcl")
		os.Exit(-2)
	}
	cfg.Port, cfg.Directory = cli.Port, cli.Directory
	cfg.Init, cfg.CasesPath = cli.Init, cli.CasesFile
	cfg.DumpSession, cfg.DumpSessionPath, cfg.NoExit = cli.DumpSession, cli.DumpSessionPath, cli.NoExit
	if cli.Replay != "" {
		gid, cid, err := parseReplayTarget(cli.Replay)
		if err != nil {
			logger.Error().Err(err).Str("replay", cli.Replay).Msg("invalid --replay target")
			os.Exit(-1)
		}
		cfg.ReplayGenomeID, cfg.ReplayCaseID = gid, cid
	}
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		os.Exit(-2)
	}

	checkpointPath := filepath.Join(cfg.Directory, "training.dat")
	haveCheckpoint := persist.Exists(checkpointPath)
	willExport := cfg.ReplayGenomeID != 0 || cfg.DumpSession
	initFromScratch := cfg.Init

	prngSource := prng.NewSource(time.Now().UnixNano())
	handle := prngSource.NewHandle(prng.TrainerBufferWords)
	defer handle.Close()

	var ckpt persist.Checkpoint
	switch {
	case haveCheckpoint && !initFromScratch:
		ckpt, err = persist.Load(checkpointPath)
		if err != nil {
			logger.Error().Err(err).Str("path", checkpointPath).Msg("training.dat is corrupted")
			os.Exit(-3)
		}
		if _, err := ga.BuildCrossover(ckpt.Crossover.Name, ckpt.Crossover.Values); err != nil {
			logger.Error().Err(err).Str("crossover", ckpt.Crossover.Name).Msg("unrecognized crossover algorithm")
			os.Exit(-3)
		}
		if _, err := ga.BuildMutation(ckpt.Mutation.Name, ckpt.Mutation.Values); err != nil {
			logger.Error().Err(err).Str("mutation", ckpt.Mutation.Name).Msg("unrecognized mutation algorithm")
			os.Exit(-3)
		}
		logger.Info().Uint64("generation", ckpt.Generation).Int("population", len(ckpt.Population)).
			Msg("recovered training state")

	case !haveCheckpoint:
		if willExport && !initFromScratch {
			logger.Error().Str("path", checkpointPath).Msg("no training session found to export data from")
			os.Exit(-2)
		}
		initFromScratch = true

	default: // haveCheckpoint && initFromScratch
		logger.Warn().Str("path", checkpointPath).Msg("overwriting existing training session")
	}

	if initFromScratch {
		ckpt, err = initializeSession(cfg, handle)
		if err != nil {
			logger.Error().Err(err).Msg("failed to initialize training session")
			os.Exit(-2)
		}
		if err := persist.Save(checkpointPath, ckpt); err != nil {
			logger.Error().Err(err).Msg("failed to persist initial training state")
			os.Exit(-2)
		}
		logger.Info().Uint64("cases", uint64(len(ckpt.Cases))).
			Uint32("population_size", ckpt.PopulationSize).Msg("initialized training state")
	}

	if willExport {
		lastError := 0
		if cfg.ReplayGenomeID != 0 {
			lastError = exportReplay(exportLog, ckpt, cfg)
		}
		if cfg.DumpSession && lastError == 0 {
			lastError = dumpSession(exportLog, ckpt, cfg)
		}
		if !cfg.NoExit {
			os.Exit(lastError)
		}
	}

	runServer(logger, cfg, ckpt, checkpointPath, prngSource)
}

// parseReplayTarget splits on any of the reference's four delimiters
// (` ,;@`). The reference's do_make_replay swaps the two IDs and
// retries if the first interpretation's case id isn't found, so the
// order between genome id and case id is deliberately ambiguous here
// too (see exportReplay).
func parseReplayTarget(s string) (gid, cid uint64, err error) {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == ';' || r == '@'
	})
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected exactly 2 values, got %d", len(parts))
	}
	if _, err := fmt.Sscanf(parts[0], "%d", &gid); err != nil {
		return 0, 0, fmt.Errorf("invalid genome id %q: %w", parts[0], err)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &cid); err != nil {
		return 0, 0, fmt.Errorf("invalid case id %q: %w", parts[1], err)
	}
	return gid, cid, nil
}

func exportReplay(logger *log.Logger, ckpt persist.Checkpoint, cfg *config.TrainerConfig) int {
	gid, cid := cfg.ReplayGenomeID, cfg.ReplayCaseID
	path, err := sessionexport.MakeReplay(ckpt, gid, cid, cfg.Directory)
	if err != nil {
		// Swap and retry once: the CLI doesn't distinguish which of
		// the pair is the genome id and which is the case id.
		path, err = sessionexport.MakeReplay(ckpt, cid, gid, cfg.Directory)
	}
	if err != nil {
		logger.Error("failed to export replay", "error", err, "genome_id", gid, "case_id", cid)
		return -1
	}
	logger.Info("exported replay", "path", path)
	return 0
}

func dumpSession(logger *log.Logger, ckpt persist.Checkpoint, cfg *config.TrainerConfig) int {
	const sampleThreshold = 1000
	sampleSize := 0
	if len(ckpt.Population) > sampleThreshold {
		sampleSize = sampleThreshold
	}

	if _, err := sessionexport.DumpSession(ckpt, cfg.DumpSessionPath, sampleSize, nil); err != nil {
		logger.Error("failed to dump session", "error", err, "path", cfg.DumpSessionPath)
		return -2
	}
	logger.Info("dumped session")
	return 0
}

func readCasesFile(path string) ([]wire.LandingCase, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cases []wire.LandingCase
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cases, nil
}

func initializeSession(cfg *config.TrainerConfig, handle *prng.Handle) (persist.Checkpoint, error) {
	predefined, err := readCasesFile(cfg.CasesPath)
	if err != nil {
		return persist.Checkpoint{}, err
	}

	casesCount := cfg.CasesCount
	if len(predefined) > casesCount {
		casesCount = len(predefined)
	}

	var nextID uint64 = 1
	cases := make([]wire.LandingCase, casesCount)
	for i := range cases {
		if i < len(predefined) {
			cases[i] = predefined[i]
		} else {
			cases[i] = landingcase.Randomize(handle.Rand)
		}
		cases[i].ID = nextID
		nextID++
	}

	population := make([]gamatrix.Genome, cfg.PopulationSize)
	for i := range population {
		population[i] = gamatrix.Genome{ID: nextID, Genes: nn.Randomize(handle.Rand, nn.ReLU)}
		nextID++
	}

	// cfg was already validated by cfg.Validate() before this is called,
	// so Crossover/Mutation are known-good operator names by this point.
	return persist.Checkpoint{
		Check:          uint64(time.Now().Unix()),
		Generation:     0,
		PopulationSize: uint32(cfg.PopulationSize),
		EliteCount:     uint32(cfg.EliteCount),
		TournamentSize: uint32(cfg.TournamentSize),
		Crossover:      persist.AlgorithmArgs{Name: cfg.Crossover.Name, Values: cfg.Crossover.Values},
		Mutation:       persist.AlgorithmArgs{Name: cfg.Mutation.Name, Values: cfg.Mutation.Values},
		NextGenomeID:   nextID,
		Cases:          cases,
		Population:     population,
	}, nil
}

func runServer(logger zerolog.Logger, cfg *config.TrainerConfig, ckpt persist.Checkpoint, checkpointPath string, prngSource *prng.Source) {
	crossover, err := ga.BuildCrossover(ckpt.Crossover.Name, ckpt.Crossover.Values)
	if err != nil {
		logger.Error().Err(err).Msg("unrecognized crossover algorithm")
		os.Exit(-3)
	}
	mutation, err := ga.BuildMutation(ckpt.Mutation.Name, ckpt.Mutation.Values)
	if err != nil {
		logger.Error().Err(err).Msg("unrecognized mutation algorithm")
		os.Exit(-3)
	}

	matrix := gamatrix.New(ckpt.Population, caseIDs(ckpt.Cases), int(ckpt.EliteCount), int(ckpt.TournamentSize))
	matrix.Generation = ckpt.Generation

	session := &trainserver.Session{
		Check:         ckpt.Check,
		Matrix:        matrix,
		Cases:         ckpt.Cases,
		Crossover:     crossover,
		Mutation:      mutation,
		CrossoverArgs: ckpt.Crossover,
		MutationArgs:  ckpt.Mutation,
		NextGenomeID:  ckpt.NextGenomeID,
	}

	serverHandle := prngSource.NewHandle(prng.TrainerBufferWords)
	defer serverHandle.Close()

	srv := trainserver.New(logger, quartz.NewReal(), serverHandle.Rand, session, checkpointPath)
	if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Error().Err(err).Msg("failed to start trainer server")
		os.Exit(-2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info().Msg("shutting down")
	if err := srv.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
}

func caseIDs(cases []wire.LandingCase) []uint64 {
	ids := make([]uint64, len(cases))
	for i, c := range cases {
		ids[i] = c.ID
	}
	return ids
}
