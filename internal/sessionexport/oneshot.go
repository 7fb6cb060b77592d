package sessionexport

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/lox/marslander/internal/codec/base64state"
	"github.com/lox/marslander/internal/gamatrix"
	"github.com/lox/marslander/internal/geom"
	"github.com/lox/marslander/internal/marslander"
	"github.com/lox/marslander/internal/nn"
	"github.com/lox/marslander/internal/persist"
	"github.com/lox/marslander/internal/wire"
)

// ErrCaseNotFound and ErrGenomeNotFound are returned by MakeReplay when
// the requested ids are not present in the checkpoint (§6's
// "missing replay target" error, trainer exit code -1).
var (
	ErrCaseNotFound   = errors.New("sessionexport: case id not found")
	ErrGenomeNotFound = errors.New("sessionexport: genome id not found")
)

// MakeReplay simulates one persisted genome against one persisted case
// and writes the resulting replay file into dir, matching the
// reference's do_make_replay. Unlike the runner's continuous Replay
// exporter, this runs the outcome unconditionally: a one-shot request
// for a crash or a lost lander is still of interest to whoever asked
// for it by id.
func MakeReplay(ckpt persist.Checkpoint, genomeID, caseID uint64, dir string) (string, error) {
	var lc *wire.LandingCase
	for i := range ckpt.Cases {
		if ckpt.Cases[i].ID == caseID {
			lc = &ckpt.Cases[i]
			break
		}
	}
	if lc == nil {
		return "", fmt.Errorf("%w: %d", ErrCaseNotFound, caseID)
	}

	var genome *gamatrix.Genome
	for i := range ckpt.Population {
		if ckpt.Population[i].ID == genomeID {
			genome = &ckpt.Population[i]
			break
		}
	}
	if genome == nil {
		return "", fmt.Errorf("%w: %d", ErrGenomeNotFound, genomeID)
	}

	dff, err := nn.FromGenes(genome.Genes, nn.ReLU)
	if err != nil {
		return "", fmt.Errorf("sessionexport: decoding genome %d: %w", genomeID, err)
	}

	initial := landingCaseToState(*lc)
	simState := *initial
	adapter := nn.NewGameAdapter(dff, initial, initial)

	turns := []string{base64state.Encode(&simState)}
	steps := marslander.StepsLimit
	outcome := marslander.Aerial
	for outcome == marslander.Aerial && steps > 0 {
		simState.Out = adapter.Output(&simState)
		outcome, err = marslander.Simulate(&simState)
		if err != nil {
			return "", fmt.Errorf("sessionexport: simulating case %d: %w", caseID, err)
		}
		turns = append(turns, base64state.Encode(&simState))
		steps--
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("sessionexport: creating %s: %w", dir, err)
	}

	name := fmt.Sprintf("replay_%d_%d_%d_%s.json",
		ckpt.Generation, genomeID, caseID, time.Now().Format("2006-01-02_15-04-05"))
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(ReplayRecord{
		CaseID: caseID, GenomeID: genomeID, Outcome: outcome.String(), Turns: turns,
	}, "", "  ")
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func landingCaseToState(c wire.LandingCase) *marslander.State {
	s := &marslander.State{
		Surface:  append([]geom.Point[int32](nil), c.Surface...),
		SafeArea: c.SafeArea, Fuel: c.Fuel, Thrust: c.Thrust, Tilt: c.Tilt,
		Position: c.Position, Velocity: c.Velocity,
	}
	s.DeriveSafeArea()
	return s
}

// SessionDump is the structural, non-checksummed export of a whole
// training session, for external inspection (§6's --dump-session).
type SessionDump struct {
	Check          uint64                `json:"check"`
	Generation     uint64                `json:"generation"`
	PopulationSize uint32                `json:"population_size"`
	EliteCount     uint32                `json:"elite_count"`
	TournamentSize uint32                `json:"tournament_size"`
	Crossover      persist.AlgorithmArgs `json:"crossover"`
	Mutation       persist.AlgorithmArgs `json:"mutation"`
	Cases          []wire.LandingCase    `json:"cases"`
	Population     []gamatrix.Genome     `json:"population"`
}

// DumpSession writes ckpt's full population and case set as pretty
// JSON to path, or to standard output if path is empty, matching
// the reference's do_dump_session field order. sampleSize, if positive
// and smaller than the population, keeps a random sample of genomes
// instead of dumping all of them — the reference prompts interactively
// past a 1000-genome threshold; this accepts the sample size directly
// since there is no interactive operator to ask in batch mode. rng
// drives the sample; a nil rng is replaced by a randomly seeded one.
func DumpSession(ckpt persist.Checkpoint, path string, sampleSize int, rng *rand.Rand) (SessionDump, error) {
	population := ckpt.Population
	if sampleSize > 0 && sampleSize < len(population) {
		if rng == nil {
			rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}
		population = sampleGenomes(population, sampleSize, rng)
	}

	dump := SessionDump{
		Check:          ckpt.Check,
		Generation:     ckpt.Generation,
		PopulationSize: ckpt.PopulationSize,
		EliteCount:     ckpt.EliteCount,
		TournamentSize: ckpt.TournamentSize,
		Crossover:      ckpt.Crossover,
		Mutation:       ckpt.Mutation,
		Cases:          ckpt.Cases,
		Population:     population,
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return dump, err
	}

	if path == "" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return dump, err
	}
	return dump, os.WriteFile(path, data, 0o644)
}

func sampleGenomes(population []gamatrix.Genome, n int, rng *rand.Rand) []gamatrix.Genome {
	indices := rng.Perm(len(population))[:n]
	out := make([]gamatrix.Genome, n)
	for i, idx := range indices {
		out[i] = population[idx]
	}
	return out
}
