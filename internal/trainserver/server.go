// Package trainserver implements the trainer's TCP front end: a
// self-spawning bounded-pool accept loop plus the cases/outcomes
// request handlers that drive the generation-advance pipeline
// (SPEC_FULL.md §4.G, §4.J). Grounded on
// original_source/trainer/internal/server.cpp's server_thread (the
// spawn-before-accept pattern that keeps exactly one idle acceptor
// around under load) and trainer_app_server.cpp/
// trainer_app_server_outcomes.cpp for the handler semantics; the
// protobuf arena and response_wait_state reference-counting are
// replaced with a plain sync.WaitGroup over one Done per dispatched
// message, since Go has no destructor to hang the "last reference
// dropped" notification off of.
package trainserver

import (
	"errors"
	"math/rand/v2"
	"net"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/marslander/internal/gamatrix"
	"github.com/lox/marslander/internal/looper"
	"github.com/lox/marslander/internal/persist"
	"github.com/lox/marslander/internal/wire"
)

// Session is the trainer's authoritative mutable state. Every field is
// touched only from within a callback posted to the Server's looper,
// so no lock guards it (the looper's single-consumer guarantee plays
// the role of a mutex here).
type Session struct {
	Check uint64 // session-creation epoch-seconds, persisted verbatim

	Matrix *gamatrix.Matrix
	Cases  []wire.LandingCase

	Crossover     gamatrix.Crossover
	Mutation      gamatrix.Mutation
	CrossoverArgs persist.AlgorithmArgs
	MutationArgs  persist.AlgorithmArgs

	NextGenomeID uint64
}

func (s *Session) mintID() uint64 {
	id := s.NextGenomeID
	s.NextGenomeID++
	return id
}

// Server owns the accept loop, the event loop, and the session it
// dispatches requests against.
type Server struct {
	logger zerolog.Logger
	clock  quartz.Clock
	loop   *looper.Looper
	rng    *rand.Rand

	session        *Session
	checkpointPath string

	threadsCount atomic.Int32

	mu       sync.Mutex
	ln       net.Listener
	stopOnce sync.Once
}

// New builds a Server. rng should be a handle drawn from the trainer's
// prng.Source (SPEC_FULL.md §4.M); it is only ever touched from the
// looper goroutine, so a single handle suffices even though the
// facade supports many.
func New(logger zerolog.Logger, clock quartz.Clock, rng *rand.Rand, session *Session, checkpointPath string) *Server {
	return &Server{
		logger:         logger,
		clock:          clock,
		loop:           looper.New(),
		rng:            rng,
		session:        session,
		checkpointPath: checkpointPath,
	}
}

// Start listens on addr (":<port>") and begins accepting connections.
// The event loop is also started on its own goroutine.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	go s.loop.Run()
	go s.acceptLoop(ln)

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("trainer listening")
	return nil
}

// Addr reports the address Start bound to. It returns nil if Start has
// not yet been called.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops accepting new connections and stops the event loop
// after draining any outstanding callbacks.
func (s *Server) Shutdown() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		ln := s.ln
		s.mu.Unlock()
		if ln != nil {
			err = ln.Close()
		}
		s.loop.Stop()
	})
	return err
}

func maxThreadsCount() int {
	if n := runtime.GOMAXPROCS(0) - 1; n > 1 {
		return n
	}
	return 1
}

// acceptLoop mirrors server_thread's spawn-then-process-then-maybe-loop
// shape: a fresh acceptor goroutine is spawned before this one blocks
// on processing a connection, iff the live acceptor count is below the
// cap; a goroutine that spawned a successor exits after its one
// request, one that didn't loops back to Accept.
func (s *Server) acceptLoop(ln net.Listener) {
	s.threadsCount.Add(1)
	defer s.threadsCount.Add(-1)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("accept failed")
			return
		}

		spawn := int(s.threadsCount.Load()) < maxThreadsCount()
		if spawn {
			go s.acceptLoop(ln)
		}

		s.handleConn(conn)

		if spawn {
			return
		}
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	peer := conn.RemoteAddr().String()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("peer", peer).Msg("recovered panic handling connection")
		}
	}()

	bag, err := wire.ReadPacket(conn)
	if err != nil {
		s.logger.Error().Err(err).Str("peer", peer).Msg("failed to read request")
		return
	}
	if bag.Len() == 0 {
		s.logger.Warn().Str("peer", peer).Msg("empty request")
		return
	}

	s.logger.Info().Str("peer", peer).Int("messages", bag.Len()).Msg("incoming connection")

	var mu sync.Mutex
	var responses []any
	var wg sync.WaitGroup
	wg.Add(bag.Len())

	for i, msg := range bag.Messages {
		id := bag.IDs[i]
		msg := msg
		s.loop.Post(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error().Interface("panic", r).Str("peer", peer).Msg("recovered panic in handler")
				}
			}()
			if out, ok := s.dispatch(id, msg); ok {
				mu.Lock()
				responses = append(responses, out)
				mu.Unlock()
			}
		})
	}

	wg.Wait()

	if len(responses) == 0 {
		s.logger.Warn().Str("peer", peer).Msg("empty response")
		return
	}
	if err := wire.WritePacket(conn, responses...); err != nil {
		s.logger.Error().Err(err).Str("peer", peer).Msg("failed to write response")
		return
	}
	s.logger.Info().Str("peer", peer).Int("messages", len(responses)).Msg("written response")
}

func (s *Server) dispatch(id wire.MessageID, msg any) (any, bool) {
	switch id {
	case wire.MessageCases:
		return s.handleCases()
	case wire.MessageOutcomes:
		out, ok := msg.(wire.OutcomesMessage)
		if !ok {
			return nil, false
		}
		return s.handleOutcomes(out)
	default:
		s.logger.Warn().Stringer("message_id", id).Msg("no handler registered for message")
		return nil, false
	}
}

// handleCases answers with the current case list verbatim (§4.J).
func (s *Server) handleCases() (any, bool) {
	data := make([]wire.LandingCase, len(s.session.Cases))
	copy(data, s.session.Cases)
	return wire.CasesMessage{Data: data}, true
}

// handleOutcomes ingests a runner's ratings, advances the generation
// once every row is complete, and dispenses the next work batch
// (§4.J).
func (s *Server) handleOutcomes(req wire.OutcomesMessage) (any, bool) {
	now := s.clock.Now()
	m := s.session.Matrix

	if req.Generation != m.Generation && len(req.Data) > 0 {
		s.logger.Warn().
			Str("client", req.ClientName).
			Uint64("trainer_generation", m.Generation).
			Uint64("report_generation", req.Generation).
			Msg("stale outcomes report ignored")
	} else {
		for _, tup := range req.Data {
			if err := m.ReportOutcome(tup.CaseID, tup.GenomeID, tup.Rating, now); err != nil {
				s.logger.Warn().
					Err(err).
					Uint64("case_id", tup.CaseID).
					Uint64("genome_id", tup.GenomeID).
					Msg("dropping outcome report")
			}
		}
	}

	m.UpdateReadiness(now)
	if m.AllComplete() {
		stats := m.Advance(s.rng, s.session.Crossover, s.session.Mutation, s.session.mintID)
		s.logger.Info().
			Uint64("generation", stats.Generation).
			Float64("score_best", stats.ScoreBest).
			Float64("score_worst", stats.ScoreWorst).
			Msg("generation advanced")
		m.RebuildIndices()
		m.ResetResults(now)
		s.persistAsync()
	}

	capacity := int(req.Capacity)
	if capacity <= 0 || capacity > m.PopulationSize {
		capacity = m.PopulationSize
	}
	batch := m.Dispense(now, capacity)

	data := make([]wire.Genome, len(batch))
	for i, g := range batch {
		data[i] = wire.Genome{ID: g.ID, Genes: g.Genes}
	}
	return wire.PopulationMessage{Generation: m.Generation, Data: data}, true
}

// persistAsync snapshots the session and writes the checkpoint off
// the event loop goroutine, matching the reference's
// `async(launch::async, [&s]{ persist_state(s); })` fire-and-forget.
func (s *Server) persistAsync() {
	m := s.session.Matrix
	ckpt := persist.Checkpoint{
		Check:          s.session.Check,
		Generation:     m.Generation,
		PopulationSize: uint32(m.PopulationSize),
		EliteCount:     uint32(m.EliteCount),
		TournamentSize: uint32(m.TournamentSize),
		Crossover:      s.session.CrossoverArgs,
		Mutation:       s.session.MutationArgs,
		NextGenomeID:   s.session.NextGenomeID,
		Cases:          append([]wire.LandingCase(nil), s.session.Cases...),
		Population:     append([]gamatrix.Genome(nil), m.Population()...),
	}

	path := s.checkpointPath
	logger := s.logger
	go func() {
		if err := persist.Save(path, ckpt); err != nil {
			logger.Error().Err(err).Msg("failed to persist checkpoint")
		}
	}()
}
