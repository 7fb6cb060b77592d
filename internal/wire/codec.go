package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/lox/marslander/internal/geom"
)

// byteWriter accumulates a message body in the packet's little-endian,
// length-prefixed encoding. Repeated fields and strings are prefixed
// with a u32 element/byte count.
type byteWriter struct {
	buf bytes.Buffer
}

func (w *byteWriter) u32(v uint32) { _ = binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *byteWriter) u64(v uint64) { _ = binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *byteWriter) i32(v int32)  { _ = binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *byteWriter) f64(v float64) {
	_ = binary.Write(&w.buf, binary.LittleEndian, math.Float64bits(v))
}
func (w *byteWriter) str(s string) {
	w.u32(uint32(len(s)))
	w.buf.WriteString(s)
}

// byteReader walks a message body, returning a protocol error on
// truncation (the framing's "fails to parse" case, §4.E).
type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) need(n int) error {
	if r.pos+n > len(r.data) {
		return &ProtocolError{Msg: "message body truncated"}
	}
	return nil
}

func (r *byteReader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *byteReader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *byteReader) i32() (int32, error) {
	v, err := r.u32()
	return int32(v), err
}

func (r *byteReader) f64() (float64, error) {
	v, err := r.u64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (r *byteReader) str() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func writeLandingCase(w *byteWriter, c LandingCase) {
	w.u64(c.ID)
	w.i32(c.Fuel)
	w.i32(c.Thrust)
	w.i32(c.Tilt)
	w.u32(c.SafeArea.Start)
	w.u32(c.SafeArea.End)
	w.i32(c.Position.X)
	w.i32(c.Position.Y)
	w.f64(c.Velocity.X)
	w.f64(c.Velocity.Y)
	w.u32(uint32(len(c.Surface)))
	for _, p := range c.Surface {
		w.i32(p.X)
		w.i32(p.Y)
	}
}

func readLandingCase(r *byteReader) (LandingCase, error) {
	var c LandingCase
	var err error
	if c.ID, err = r.u64(); err != nil {
		return c, err
	}
	if c.Fuel, err = r.i32(); err != nil {
		return c, err
	}
	if c.Thrust, err = r.i32(); err != nil {
		return c, err
	}
	if c.Tilt, err = r.i32(); err != nil {
		return c, err
	}
	if c.SafeArea.Start, err = r.u32(); err != nil {
		return c, err
	}
	if c.SafeArea.End, err = r.u32(); err != nil {
		return c, err
	}
	if c.Position.X, err = r.i32(); err != nil {
		return c, err
	}
	if c.Position.Y, err = r.i32(); err != nil {
		return c, err
	}
	if c.Velocity.X, err = r.f64(); err != nil {
		return c, err
	}
	if c.Velocity.Y, err = r.f64(); err != nil {
		return c, err
	}
	n, err := r.u32()
	if err != nil {
		return c, err
	}
	c.Surface = make([]geom.Point[int32], n)
	for i := range c.Surface {
		if c.Surface[i].X, err = r.i32(); err != nil {
			return c, err
		}
		if c.Surface[i].Y, err = r.i32(); err != nil {
			return c, err
		}
	}
	return c, nil
}

// Marshal serialises a known message type to its wire body.
func Marshal(v any) (MessageID, []byte, error) {
	w := &byteWriter{}
	switch msg := v.(type) {
	case CasesMessage:
		w.u32(uint32(len(msg.Data)))
		for _, c := range msg.Data {
			writeLandingCase(w, c)
		}
		return MessageCases, w.buf.Bytes(), nil

	case OutcomesMessage:
		w.str(msg.ClientName)
		w.u64(msg.Generation)
		w.u32(msg.Capacity)
		w.u32(uint32(len(msg.Data)))
		for _, t := range msg.Data {
			w.u64(t.CaseID)
			w.u64(t.GenomeID)
			w.f64(t.Rating)
		}
		return MessageOutcomes, w.buf.Bytes(), nil

	case PopulationMessage:
		w.u64(msg.Generation)
		w.u32(uint32(len(msg.Data)))
		for _, g := range msg.Data {
			w.u64(g.ID)
			w.u32(uint32(len(g.Genes)))
			for _, gene := range g.Genes {
				w.f64(gene)
			}
		}
		return MessagePopulation, w.buf.Bytes(), nil

	default:
		return 0, nil, fmt.Errorf("%w: %T", errUnknownMessageType, v)
	}
}

// Unmarshal parses a message body given its id.
func Unmarshal(id MessageID, body []byte) (any, error) {
	r := &byteReader{data: body}
	switch id {
	case MessageCases:
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		msg := CasesMessage{Data: make([]LandingCase, n)}
		for i := range msg.Data {
			if msg.Data[i], err = readLandingCase(r); err != nil {
				return nil, err
			}
		}
		return msg, nil

	case MessageOutcomes:
		var msg OutcomesMessage
		var err error
		if msg.ClientName, err = r.str(); err != nil {
			return nil, err
		}
		if msg.Generation, err = r.u64(); err != nil {
			return nil, err
		}
		if msg.Capacity, err = r.u32(); err != nil {
			return nil, err
		}
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		msg.Data = make([]OutcomeTuple, n)
		for i := range msg.Data {
			if msg.Data[i].CaseID, err = r.u64(); err != nil {
				return nil, err
			}
			if msg.Data[i].GenomeID, err = r.u64(); err != nil {
				return nil, err
			}
			if msg.Data[i].Rating, err = r.f64(); err != nil {
				return nil, err
			}
		}
		return msg, nil

	case MessagePopulation:
		var msg PopulationMessage
		var err error
		if msg.Generation, err = r.u64(); err != nil {
			return nil, err
		}
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		msg.Data = make([]Genome, n)
		for i := range msg.Data {
			if msg.Data[i].ID, err = r.u64(); err != nil {
				return nil, err
			}
			gn, err := r.u32()
			if err != nil {
				return nil, err
			}
			msg.Data[i].Genes = make([]float64, gn)
			for j := range msg.Data[i].Genes {
				if msg.Data[i].Genes[j], err = r.f64(); err != nil {
					return nil, err
				}
			}
		}
		return msg, nil

	default:
		return nil, fmt.Errorf("%w: id %d", errUnknownMessageType, id)
	}
}
