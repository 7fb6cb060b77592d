package runnerclient

import "github.com/lox/marslander/internal/marslander"

// ReplayExporter receives every turn of every simulated (genome, case)
// pair so a concrete implementation can keep the last few landings
// around for the visualizer (SPEC_FULL.md §4.P). Grounded on
// original_source/runner/internal/replay_exporter.h's
// basic_replay_exporter/replay_exporter split: the no-op NopExporter
// here plays the basic_replay_exporter role, and internal/sessionexport
// provides the recording implementation.
type ReplayExporter interface {
	// Reset starts a fresh recording for the upcoming (genome, case) run.
	Reset(s *marslander.State)
	// PushTurn appends the state as it stood after a simulated step.
	PushTurn(s *marslander.State)
	// DoExport finalizes the recording for the given outcome, keyed by
	// generation, case id and genome id.
	DoExport(generation, caseID, genomeID uint64, outcome marslander.Outcome)
}

// NopExporter discards every call; NewLoop uses it when given a nil
// exporter.
type NopExporter struct{}

func (NopExporter) Reset(*marslander.State)                             {}
func (NopExporter) PushTurn(*marslander.State)                          {}
func (NopExporter) DoExport(uint64, uint64, uint64, marslander.Outcome) {}
