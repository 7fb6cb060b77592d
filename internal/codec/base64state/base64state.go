// Package base64state implements the fixed-order little-endian state
// dump consumed by the external visualisation plug-in (SPEC_FULL.md
// §6, "State base64 form"). Grounded on
// original_source/shared/marslander/state_base64.cpp's field order
// (n, surface[n], safe_area, fuel, thrust, tilt, position, velocity,
// safe_area_x, safe_area_alt); the reference's text-then-binary
// stringstream trick (`os << n` followed by raw reads) is replaced
// with a single binary u32 count prefix, since this form has no other
// consumer to keep byte-compatible with and a pure binary layout is
// simpler to parse correctly. Stdlib encoding/base64 (StdEncoding) per
// §1/§6's non-prescription of a codec library.
package base64state

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"math"

	"github.com/lox/marslander/internal/geom"
	"github.com/lox/marslander/internal/marslander"
)

type writer struct{ buf bytes.Buffer }

func (w *writer) u32(v uint32) { _ = binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *writer) i32(v int32)  { _ = binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *writer) f64(v float64) {
	_ = binary.Write(&w.buf, binary.LittleEndian, math.Float64bits(v))
}

type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.data) {
		r.err = errTruncated
		return false
	}
	return true
}

func (r *reader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) i32() int32 { return int32(r.u32()) }

func (r *reader) f64() float64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return math.Float64frombits(v)
}

var errTruncated = errTruncatedType{}

type errTruncatedType struct{}

func (errTruncatedType) Error() string { return "base64state: truncated state encoding" }

// Encode serialises s's fields in the fixed reference order and
// returns the standard-alphabet, padded base64 string.
func Encode(s *marslander.State) string {
	w := &writer{}
	w.u32(uint32(len(s.Surface)))
	for _, p := range s.Surface {
		w.i32(p.X)
		w.i32(p.Y)
	}
	w.u32(s.SafeArea.Start)
	w.u32(s.SafeArea.End)
	w.i32(s.Fuel)
	w.i32(s.Thrust)
	w.i32(s.Tilt)
	w.i32(s.Position.X)
	w.i32(s.Position.Y)
	w.f64(s.Velocity.X)
	w.f64(s.Velocity.Y)
	w.i32(s.SafeAreaX.Start)
	w.i32(s.SafeAreaX.End)
	w.i32(s.SafeAreaAlt)
	return base64.StdEncoding.EncodeToString(w.buf.Bytes())
}

// Decode parses a string previously produced by Encode.
func Decode(encoded string) (*marslander.State, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}

	r := &reader{data: raw}
	n := r.u32()
	s := &marslander.State{Surface: make([]geom.Point[int32], n)}
	for i := range s.Surface {
		s.Surface[i].X = r.i32()
		s.Surface[i].Y = r.i32()
	}
	s.SafeArea.Start = r.u32()
	s.SafeArea.End = r.u32()
	s.Fuel = r.i32()
	s.Thrust = r.i32()
	s.Tilt = r.i32()
	s.Position.X = r.i32()
	s.Position.Y = r.i32()
	s.Velocity.X = r.f64()
	s.Velocity.Y = r.f64()
	s.SafeAreaX.Start = r.i32()
	s.SafeAreaX.End = r.i32()
	s.SafeAreaAlt = r.i32()

	if r.err != nil {
		return nil, r.err
	}
	return s, nil
}
