// Package wire implements the length-prefixed multi-message packet
// framing exchanged between the trainer and runners (SPEC_FULL.md §4.E,
// §6): a packet header giving the message count, followed by that many
// (message_id, message_size, body) records.
//
// Grounded on original_source/shared/internal/data_transfer.h/.cpp for
// the exact wire shape (fixed-width fields, not varints) and on
// internal/protocol/messages.go's type-switch marshal/unmarshal dispatch
// for the Go idiom; the wire schema itself is this system's fixed
// binary framing, not msgpack.
package wire

import (
	"errors"
	"fmt"

	"github.com/lox/marslander/internal/geom"
)

// MaxMessagesCount is the hard cap on messages per packet (§4.E).
const MaxMessagesCount = 128

// MessageID selects a message's schema on the wire.
type MessageID uint32

const (
	MessageCases      MessageID = 1
	MessageOutcomes   MessageID = 2
	MessagePopulation MessageID = 3
)

func (id MessageID) String() string {
	switch id {
	case MessageCases:
		return "cases"
	case MessageOutcomes:
		return "outcomes"
	case MessagePopulation:
		return "population"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(id))
	}
}

// TransferError marks any I/O failure on a socket or during framed
// read/write, and any packet exceeding §4.E's limits (§7).
type TransferError struct {
	Op  string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("wire: transfer error during %s: %v", e.Op, e.Err)
}
func (e *TransferError) Unwrap() error { return e.Err }

func transferErr(op string, err error) error { return &TransferError{Op: op, Err: err} }

// ProtocolError marks a malformed message, empty request/response, or a
// duplicate/unknown id from the peer (§7).
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return "wire: protocol error: " + e.Msg }

var errEmptyPacket = &ProtocolError{Msg: "packet has no messages"}

// LandingCase is the genome-independent test case schema (§6).
type LandingCase struct {
	ID                 uint64
	Fuel, Thrust, Tilt int32
	SafeArea           geom.Span[uint32]
	Position           geom.Point[int32]
	Velocity           geom.Point[float64]
	Surface            []geom.Point[int32]
}

// CasesMessage carries the current case list verbatim.
type CasesMessage struct {
	Data []LandingCase
}

// OutcomeTuple is one (case, genome, rating) report.
type OutcomeTuple struct {
	CaseID, GenomeID uint64
	Rating           float64
}

// OutcomesMessage is a runner's batch report.
type OutcomesMessage struct {
	ClientName string
	Generation uint64
	Capacity   uint32
	Data       []OutcomeTuple
}

// Genome is a population individual: an id plus its 66 genes.
type Genome struct {
	ID    uint64
	Genes []float64
}

// PopulationMessage is the trainer's work-batch response.
type PopulationMessage struct {
	Generation uint64
	Data       []Genome
}

var errUnknownMessageType = errors.New("wire: unknown message type")
