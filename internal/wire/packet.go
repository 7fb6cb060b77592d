package wire

import (
	"encoding/binary"
	"io"
)

// Bag is the arrival-ordered set of messages decoded from one packet.
// The original implementation owns these in an arena; Go's garbage
// collector plays that role here, so Bag is a plain slice.
type Bag struct {
	Messages []any
	IDs      []MessageID
}

// Len returns the number of messages in the bag.
func (b *Bag) Len() int { return len(b.Messages) }

// First returns the first message of the given type in the bag, or nil
// if none is present.
func (b *Bag) First(id MessageID) (any, bool) {
	for i, mid := range b.IDs {
		if mid == id {
			return b.Messages[i], true
		}
	}
	return nil, false
}

type record struct {
	id   MessageID
	body []byte
}

// ReadPacket reads one packet from r: a u32 message count followed by
// that many (u32 id, u64 size, body) records (§4.E, §6). A count of 0
// is a ProtocolError. A count greater than MaxMessagesCount is a
// TransferError wrapping a ProtocolError, and a body that fails to
// decode is a TransferError wrapping the decode error; any I/O failure
// is wrapped in a TransferError.
func ReadPacket(r io.Reader) (*Bag, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, transferErr("read message count", err)
	}
	if count == 0 {
		return nil, errEmptyPacket
	}
	if count > MaxMessagesCount {
		return nil, transferErr("read message count", &ProtocolError{Msg: "packet exceeds max messages count"})
	}

	records := make([]record, count)
	for i := range records {
		var id uint32
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, transferErr("read message id", err)
		}
		var size uint64
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, transferErr("read message size", err)
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, transferErr("read message body", err)
		}
		records[i] = record{id: MessageID(id), body: body}
	}

	bag := &Bag{
		Messages: make([]any, count),
		IDs:      make([]MessageID, count),
	}
	for i, rec := range records {
		msg, err := Unmarshal(rec.id, rec.body)
		if err != nil {
			return nil, transferErr("parse message body", err)
		}
		bag.Messages[i] = msg
		bag.IDs[i] = rec.id
	}
	return bag, nil
}

// WritePacket marshals msgs (in order) and writes the resulting packet
// to w. Passing zero messages is a ProtocolError; more than
// MaxMessagesCount is a TransferError wrapping a ProtocolError; any I/O
// failure is wrapped in a TransferError.
func WritePacket(w io.Writer, msgs ...any) error {
	if len(msgs) == 0 {
		return errEmptyPacket
	}
	if len(msgs) > MaxMessagesCount {
		return transferErr("write message count", &ProtocolError{Msg: "packet exceeds max messages count"})
	}

	records := make([]record, len(msgs))
	for i, msg := range msgs {
		id, body, err := Marshal(msg)
		if err != nil {
			return err
		}
		records[i] = record{id: id, body: body}
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(records))); err != nil {
		return transferErr("write message count", err)
	}
	for _, rec := range records {
		if err := binary.Write(w, binary.LittleEndian, uint32(rec.id)); err != nil {
			return transferErr("write message id", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint64(len(rec.body))); err != nil {
			return transferErr("write message size", err)
		}
		if _, err := w.Write(rec.body); err != nil {
			return transferErr("write message body", err)
		}
	}
	return nil
}
