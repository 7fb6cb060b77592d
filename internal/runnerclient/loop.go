package runnerclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/lox/marslander/internal/geom"
	"github.com/lox/marslander/internal/marslander"
	"github.com/lox/marslander/internal/nn"
	"github.com/lox/marslander/internal/wire"
)

// CapacityBase is the floor the self-adjusting capacity never drops
// below, and the value a fresh session starts at
// (runner_app_init.cpp's s.capacity_base = 16).
const CapacityBase = 16

// Loop drives one runner session: fetch the case list, then repeatedly
// request a population batch, simulate it against every case, and
// report ratings back (SPEC_FULL.md §4.L). A Loop is single-use; build
// a fresh one per Run call if a clean restart is needed.
type Loop struct {
	addr       string
	clientName string
	logger     zerolog.Logger
	exporter   ReplayExporter
}

// NewLoop builds a runner loop dialing addr ("host:port"). exporter may
// be nil, in which case replay turns are discarded.
func NewLoop(addr, clientName string, logger zerolog.Logger, exporter ReplayExporter) *Loop {
	if exporter == nil {
		exporter = NopExporter{}
	}
	return &Loop{addr: addr, clientName: clientName, logger: logger, exporter: exporter}
}

// Run blocks until ctx is canceled, alternating between fetching cases
// and running simulation generations. A connection failure during
// simulation sends it back to fetching cases, mirroring
// do_simulation's `looper::current().post(&app::do_init, this)` on
// io::transfer_error.
func (l *Loop) Run(ctx context.Context) error {
	for {
		cases, err := l.fetchCases(ctx)
		if err != nil {
			return err
		}

		err = l.simulateLoop(ctx, cases)
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		l.logger.Warn().Err(err).Msg("simulation interrupted, refetching cases")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// fetchCases requests the case list, retrying every retryDelay on a
// transport failure or an empty list, until one arrives or ctx is
// canceled (runner_app_init.cpp's do_init retry loop).
func (l *Loop) fetchCases(ctx context.Context) ([]wire.LandingCase, error) {
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		reason := ""
		bag, err := request(l.addr, wire.CasesMessage{})
		switch {
		case err != nil:
			reason = err.Error()
		default:
			msg, ok := bag.First(wire.MessageCases)
			if !ok {
				reason = "response carried no cases message"
				break
			}
			cm := msg.(wire.CasesMessage)
			if len(cm.Data) == 0 {
				reason = "no cases obtained"
				break
			}
			l.logger.Info().Int("cases", len(cm.Data)).Msg("received cases")
			return cm.Data, nil
		}

		l.logger.Info().Str("reason", reason).Dur("retry_in", retryDelay).Msg("cases fetch failed")
		if !sleepCtx(ctx, retryDelay) {
			return nil, ctx.Err()
		}
	}
}

// simulateLoop runs the request/simulate/report cycle for one
// connection lifetime. Capacity starts at CapacityBase and
// self-adjusts after every batch; generation tracks the trainer's last
// reported value so the next outcomes request lands on the right row.
func (l *Loop) simulateLoop(ctx context.Context, cases []wire.LandingCase) error {
	caseStates := make(map[uint64]*marslander.State, len(cases))
	for _, c := range cases {
		caseStates[c.ID] = landingCaseToState(c)
	}

	capacity := uint32(CapacityBase)
	var generation uint64
	var pending []wire.OutcomeTuple

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		bag, err := request(l.addr, wire.OutcomesMessage{
			ClientName: l.clientName,
			Generation: generation,
			Capacity:   capacity,
			Data:       pending,
		})
		if err != nil {
			return fmt.Errorf("runnerclient: outcomes request: %w", err)
		}

		msg, ok := bag.First(wire.MessagePopulation)
		if !ok {
			return errors.New("runnerclient: response carried no population message")
		}
		pm := msg.(wire.PopulationMessage)
		generation = pm.Generation

		if len(pm.Data) == 0 {
			l.logger.Info().Dur("retry_in", retryDelay).Msg("no population given")
			pending = nil
			if !sleepCtx(ctx, retryDelay) {
				return ctx.Err()
			}
			continue
		}

		start := time.Now()
		pending = l.simulateBatch(generation, pm.Data, cases, caseStates)
		duration := time.Since(start)

		capacity = nextCapacity(capacity, duration)
		l.logger.Debug().
			Int("individuals", len(pm.Data)).
			Int("cases", len(cases)).
			Dur("duration", duration).
			Uint32("next_capacity", capacity).
			Msg("batch processed")
	}
}

// nextCapacity implements the self-tuning request size from
// runner_app_simulation.cpp, floored at CapacityBase per DESIGN.md's
// resolution of the "raw capacity*300ms/duration can blow up on a
// near-zero duration" concern.
func nextCapacity(capacity uint32, duration time.Duration) uint32 {
	if duration <= 0 {
		return capacity
	}
	scaled := float64(capacity) * (300 * time.Millisecond).Seconds() / duration.Seconds()
	if scaled < CapacityBase {
		scaled = CapacityBase
	}
	if scaled > math.MaxInt32 {
		scaled = math.MaxInt32
	}
	return uint32(scaled)
}

// landingCaseToState builds the per-case flight-state template every
// genome is simulated from a fresh copy of.
func landingCaseToState(c wire.LandingCase) *marslander.State {
	s := &marslander.State{
		Surface:  append([]geom.Point[int32](nil), c.Surface...),
		SafeArea: c.SafeArea,
		Fuel:     c.Fuel,
		Thrust:   c.Thrust,
		Tilt:     c.Tilt,
		Position: c.Position,
		Velocity: c.Velocity,
	}
	s.DeriveSafeArea()
	return s
}

// simulateBatch runs every (genome, case) pair in population x cases,
// genome-major then case-minor to match
// runner_app_simulation.cpp's nested loop order, and returns one rating
// tuple per pair.
func (l *Loop) simulateBatch(generation uint64, population []wire.Genome, cases []wire.LandingCase, caseStates map[uint64]*marslander.State) []wire.OutcomeTuple {
	out := make([]wire.OutcomeTuple, 0, len(population)*len(cases))

	for _, genome := range population {
		dff, err := nn.FromGenes(genome.Genes, nn.ReLU)
		if err != nil {
			l.logger.Warn().Err(err).Uint64("genome_id", genome.ID).Msg("skipping malformed genome")
			continue
		}

		for _, c := range cases {
			template := caseStates[c.ID]
			simState := *template
			adapter := nn.NewGameAdapter(dff, template, template)
			l.exporter.Reset(&simState)

			steps := marslander.StepsLimit
			outcome := marslander.Aerial
			for outcome == marslander.Aerial && steps > 0 {
				simState.Out = adapter.Output(&simState)
				outcome, err = marslander.Simulate(&simState)
				if err != nil {
					l.logger.Warn().Err(err).Uint64("case_id", c.ID).Msg("simulation step failed")
				}
				l.exporter.PushTurn(&simState)
				steps--
			}

			rating := ratingFor(steps, outcome, &simState, template.Fuel, template.Position.Y)
			out = append(out, wire.OutcomeTuple{CaseID: c.ID, GenomeID: genome.ID, Rating: rating})

			if outcome == marslander.Landed {
				l.logger.Info().
					Uint64("generation", generation).
					Uint64("genome_id", genome.ID).
					Uint64("case_id", c.ID).
					Float64("rating", rating).
					Msg("landed")
			}

			l.exporter.DoExport(generation, c.ID, genome.ID, outcome)
		}
	}

	return out
}
