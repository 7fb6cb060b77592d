// Package persist implements the trainer's checkpoint file format
// (SPEC_FULL.md §4.K, §6): a CRC-32C checksum followed by the header
// and body fields needed to resume training exactly where it left
// off. Grounded on
// original_source/trainer/internal/trainer_app_persistency.cpp's
// app_state::read/write and app::persist_state/check_integrity: the
// field order and checksum placement are carried over (counts and
// lengths are written as u32). The body is encoded and checksummed in
// memory and handed to internal/fileutil.WriteFileAtomic for the
// temp-file-plus-rename idiom in place of the reference's in-place
// placeholder-then-overwrite fstream sequence.
// back_up_existing is defined in the reference but its call site is
// commented out there; it is not carried forward as an active feature.
package persist

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"math"
	"os"

	"github.com/lox/marslander/internal/fileutil"
	"github.com/lox/marslander/internal/gamatrix"
	"github.com/lox/marslander/internal/wire"
)

// ErrChecksumMismatch is returned by Load when the stored CRC-32C does
// not match the file's actual contents.
var ErrChecksumMismatch = errors.New("persist: checksum mismatch")

// ErrTruncated is returned by Load when the file is shorter than the
// minimum possible checkpoint.
var ErrTruncated = errors.New("persist: file truncated")

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// AlgorithmArgs names a GA operator and its numeric parameters, as
// persisted and as accepted on the command line (§6).
type AlgorithmArgs struct {
	Name   string
	Values []float64
}

// Checkpoint is everything needed to resume training.
type Checkpoint struct {
	Check          uint64
	Generation     uint64
	PopulationSize uint32
	EliteCount     uint32
	TournamentSize uint32
	Crossover      AlgorithmArgs
	Mutation       AlgorithmArgs
	NextGenomeID   uint64

	Cases      []wire.LandingCase
	Population []gamatrix.Genome
}

type writer struct{ buf bytes.Buffer }

func (w *writer) u32(v uint32) { _ = binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *writer) u64(v uint64) { _ = binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *writer) f64(v float64) {
	_ = binary.Write(&w.buf, binary.LittleEndian, math.Float64bits(v))
}
func (w *writer) str(s string) {
	w.u32(uint32(len(s)))
	w.buf.WriteString(s)
}
func (w *writer) algoArgs(a AlgorithmArgs) {
	w.str(a.Name)
	w.u32(uint32(len(a.Values)))
	for _, v := range a.Values {
		w.f64(v)
	}
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) need(n int) error {
	if r.pos+n > len(r.data) {
		return ErrTruncated
	}
	return nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) f64() (float64, error) {
	v, err := r.u64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (r *reader) str() (string, error) {
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

func (r *reader) algoArgs() (AlgorithmArgs, error) {
	var a AlgorithmArgs
	var err error
	if a.Name, err = r.str(); err != nil {
		return a, err
	}
	n, err := r.u32()
	if err != nil {
		return a, err
	}
	a.Values = make([]float64, n)
	for i := range a.Values {
		if a.Values[i], err = r.f64(); err != nil {
			return a, err
		}
	}
	return a, nil
}

func encodeBody(c Checkpoint) []byte {
	w := &writer{}
	w.u64(c.Check)
	w.u64(c.Generation)
	w.u32(uint32(len(c.Cases)))
	w.u32(c.PopulationSize)
	w.u32(c.EliteCount)
	w.u32(c.TournamentSize)
	w.algoArgs(c.Crossover)
	w.algoArgs(c.Mutation)
	w.u64(c.NextGenomeID)

	for _, cs := range c.Cases {
		_, body, err := wire.Marshal(wire.CasesMessage{Data: []wire.LandingCase{cs}})
		if err == nil {
			w.u64(uint64(len(body)))
			w.buf.Write(body)
		}
	}
	for _, g := range c.Population {
		w.u64(g.ID)
		w.u32(uint32(len(g.Genes)))
		for _, gene := range g.Genes {
			w.f64(gene)
		}
	}
	return w.buf.Bytes()
}

func decodeBody(data []byte) (Checkpoint, error) {
	r := &reader{data: data}
	var c Checkpoint
	var err error

	if c.Check, err = r.u64(); err != nil {
		return c, err
	}
	if c.Generation, err = r.u64(); err != nil {
		return c, err
	}
	casesCount, err := r.u32()
	if err != nil {
		return c, err
	}
	if c.PopulationSize, err = r.u32(); err != nil {
		return c, err
	}
	if c.EliteCount, err = r.u32(); err != nil {
		return c, err
	}
	if c.TournamentSize, err = r.u32(); err != nil {
		return c, err
	}
	if c.Crossover, err = r.algoArgs(); err != nil {
		return c, err
	}
	if c.Mutation, err = r.algoArgs(); err != nil {
		return c, err
	}
	if c.NextGenomeID, err = r.u64(); err != nil {
		return c, err
	}

	c.Cases = make([]wire.LandingCase, casesCount)
	for i := range c.Cases {
		size, err := r.u64()
		if err != nil {
			return c, err
		}
		if err := r.need(int(size)); err != nil {
			return c, err
		}
		body := r.data[r.pos : r.pos+int(size)]
		r.pos += int(size)

		msg, err := wire.Unmarshal(wire.MessageCases, body)
		if err != nil {
			return c, err
		}
		cases := msg.(wire.CasesMessage)
		if len(cases.Data) != 1 {
			return c, ErrTruncated
		}
		c.Cases[i] = cases.Data[0]
	}

	c.Population = make([]gamatrix.Genome, c.PopulationSize)
	for i := range c.Population {
		if c.Population[i].ID, err = r.u64(); err != nil {
			return c, err
		}
		n, err := r.u32()
		if err != nil {
			return c, err
		}
		c.Population[i].Genes = make([]float64, n)
		for j := range c.Population[i].Genes {
			if c.Population[i].Genes[j], err = r.f64(); err != nil {
				return c, err
			}
		}
	}

	return c, nil
}

// Save atomically writes ckpt to path: a CRC-32C checksum over the
// encoded header+body, followed by the header+body themselves.
func Save(path string, ckpt Checkpoint) error {
	body := encodeBody(ckpt)
	checksum := crc32.Checksum(body, crc32cTable)

	full := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(full[:4], checksum)
	copy(full[4:], body)

	return fileutil.WriteFileAtomic(path, full, 0o644)
}

// Load reads and verifies a checkpoint written by Save, returning
// ErrChecksumMismatch if the stored and computed CRC-32C disagree.
func Load(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checkpoint{}, err
	}
	if len(data) < 4 {
		return Checkpoint{}, ErrTruncated
	}

	want := binary.LittleEndian.Uint32(data[:4])
	got := crc32.Checksum(data[4:], crc32cTable)
	if want != got {
		return Checkpoint{}, ErrChecksumMismatch
	}

	return decodeBody(data[4:])
}

// Exists reports whether a checkpoint file is present at path, used at
// startup to decide between resuming and initializing from scratch.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
