// Package sessionexport implements the two CLI-only export features
// carried over from the original system for completeness
// (SPEC_FULL.md §4.P): continuous replay retention during runner
// simulation, and the trainer's one-shot --replay/--dump-session
// commands. Grounded on
// original_source/runner/internal/replay_exporter.h/.cpp and
// original_source/trainer/internal/trainer_app_session_export.cpp.
package sessionexport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lox/marslander/internal/codec/base64state"
	"github.com/lox/marslander/internal/marslander"
)

// ReplayRecord is one exported replay: the initial state plus every
// simulated turn, each as a base64-encoded state line (§4.D), matching
// the reference's JSON_REPLAY(cid, gid, o, state, init, turns) shape
// minus the duplicate plain-text init field, since the base64 form
// already carries the initial conditions.
type ReplayRecord struct {
	CaseID   uint64   `json:"case_id"`
	GenomeID uint64   `json:"genome_id"`
	Outcome  string   `json:"outcome"`
	Turns    []string `json:"turns"`
}

// Replay records the turns of every (genome, case) simulation run
// through it and keeps the most recent landed replays on disk, up to
// maxCount, discarding the oldest file first. It implements the
// runnerclient.ReplayExporter interface structurally — this package
// does not import runnerclient to avoid a needless dependency edge
// back toward the caller.
type Replay struct {
	dir      string
	maxCount int
	logger   zerolog.Logger

	turns []string
}

// NewReplay returns a Replay exporter that writes into dir, keeping at
// most maxCount files there. maxCount <= 0 disables retention (no file
// is ever written, matching --keep-replays=0).
func NewReplay(logger zerolog.Logger, dir string, maxCount int) *Replay {
	return &Replay{dir: dir, maxCount: maxCount, logger: logger}
}

// Reset starts a fresh recording for the upcoming (genome, case) run.
func (r *Replay) Reset(s *marslander.State) {
	r.turns = r.turns[:0]
	r.turns = append(r.turns, base64state.Encode(s))
}

// PushTurn appends the state as it stood after a simulated step.
func (r *Replay) PushTurn(s *marslander.State) {
	r.turns = append(r.turns, base64state.Encode(s))
}

// DoExport writes the recorded turns to a timestamped file under dir
// if the outcome was a landing; any other outcome is discarded, since
// a replay of a crash or a lost lander is of no interest to the
// visualisation plug-in.
func (r *Replay) DoExport(generation, caseID, genomeID uint64, outcome marslander.Outcome) {
	turns := r.turns
	r.turns = nil

	if r.maxCount <= 0 || outcome != marslander.Landed {
		return
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		r.logger.Error().Err(err).Str("dir", r.dir).Msg("can't create replays directory")
		return
	}

	if err := removeExcessiveFiles(r.dir, r.maxCount-1); err != nil {
		r.logger.Warn().Err(err).Str("dir", r.dir).Msg("failed to clean up replays directory")
	}

	name := fmt.Sprintf("replay_%d_%d_%d_%s.json",
		generation, genomeID, caseID, time.Now().Format("2006-01-02_15-04-05"))
	path := filepath.Join(r.dir, name)

	data, err := json.MarshalIndent(ReplayRecord{
		CaseID: caseID, GenomeID: genomeID, Outcome: outcome.String(), Turns: turns,
	}, "", "  ")
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to encode replay")
		return
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		r.logger.Error().Err(err).Str("path", path).Msg("can't write a replay")
		return
	}
	r.logger.Trace().Str("path", path).Msg("saved replay")
}

// removeExcessiveFiles trims the replay files (replay_*.json) in dir
// down to keep, oldest-modified first, so the file about to be written
// lands as the (keep+1)-th entry. Other files in dir are left alone.
func removeExcessiveFiles(dir string, keep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	type fileInfo struct {
		name    string
		modTime time.Time
	}
	files := make([]fileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "replay_") || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{name: e.Name(), modTime: info.ModTime()})
	}

	if len(files) < keep {
		return nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	removeCount := len(files) - keep
	var firstErr error
	for _, f := range files {
		if removeCount <= 0 {
			break
		}
		if err := os.Remove(filepath.Join(dir, f.name)); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removeCount--
	}
	return firstErr
}
