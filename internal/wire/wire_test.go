package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/lox/marslander/internal/geom"
	"github.com/stretchr/testify/require"
)

func sampleCase() LandingCase {
	return LandingCase{
		ID:       7,
		Fuel:     2000,
		Thrust:   0,
		Tilt:     0,
		SafeArea: geom.Span[uint32]{Start: 1, End: 2},
		Position: geom.Point[int32]{X: 3500, Y: 2700},
		Velocity: geom.Point[float64]{X: 0, Y: -10},
		Surface: []geom.Point[int32]{
			{X: 0, Y: 100}, {X: 3000, Y: 100}, {X: 4000, Y: 100}, {X: 6999, Y: 200},
		},
	}
}

func TestPacketRoundTripSingleMessage(t *testing.T) {
	var buf bytes.Buffer
	in := CasesMessage{Data: []LandingCase{sampleCase()}}
	require.NoError(t, WritePacket(&buf, in))

	bag, err := ReadPacket(&buf)
	require.NoError(t, err)
	require.Equal(t, 1, bag.Len())

	out, ok := bag.First(MessageCases)
	require.True(t, ok)
	require.Equal(t, in, out)
}

func TestPacketRoundTripMultipleMessages(t *testing.T) {
	var buf bytes.Buffer
	cases := CasesMessage{Data: []LandingCase{sampleCase(), sampleCase()}}
	outcomes := OutcomesMessage{
		ClientName: "runner-1",
		Generation: 42,
		Capacity:   16,
		Data: []OutcomeTuple{
			{CaseID: 1, GenomeID: 2, Rating: 0.5},
		},
	}
	population := PopulationMessage{
		Generation: 42,
		Data: []Genome{
			{ID: 1, Genes: make([]float64, 66)},
		},
	}
	require.NoError(t, WritePacket(&buf, cases, outcomes, population))

	bag, err := ReadPacket(&buf)
	require.NoError(t, err)
	require.Equal(t, 3, bag.Len())
	require.Equal(t, cases, bag.Messages[0])
	require.Equal(t, outcomes, bag.Messages[1])
	require.Equal(t, population, bag.Messages[2])
}

func TestWritePacketRejectsEmpty(t *testing.T) {
	var buf bytes.Buffer
	err := WritePacket(&buf)
	require.Error(t, err)
	var pErr *ProtocolError
	require.True(t, errors.As(err, &pErr))
}

func TestWritePacketRejectsTooManyMessages(t *testing.T) {
	var buf bytes.Buffer
	msgs := make([]any, MaxMessagesCount+1)
	for i := range msgs {
		msgs[i] = CasesMessage{}
	}
	err := WritePacket(&buf, msgs...)
	require.Error(t, err)
}

func TestReadPacketRejectsTooManyMessages(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRawCount(&buf, MaxMessagesCount+1))
	_, err := ReadPacket(&buf)
	require.Error(t, err)
	var pErr *ProtocolError
	require.True(t, errors.As(err, &pErr))
}

func TestReadPacketRejectsTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	in := CasesMessage{Data: []LandingCase{sampleCase()}}
	require.NoError(t, WritePacket(&buf, in))

	truncated := buf.Bytes()[:buf.Len()-4]
	_, err := ReadPacket(bytes.NewReader(truncated))
	require.Error(t, err)
}

func TestMarshalUnknownType(t *testing.T) {
	_, _, err := Marshal(struct{}{})
	require.Error(t, err)
	require.True(t, errors.Is(err, errUnknownMessageType))
}

// writeRawCount writes just a message count header, for testing the
// reader's limit enforcement without needing real message bodies.
func writeRawCount(w *bytes.Buffer, count uint32) error {
	return binary.Write(w, binary.LittleEndian, count)
}
