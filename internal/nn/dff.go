// Package nn implements the fixed-shape feed-forward controller (the
// "DFF": dense feed-forward, 7-5-3-2) and the game adapter that turns raw
// flight state into its input vector and interprets its output, per
// SPEC_FULL.md §4.C.
package nn

import (
	"fmt"
	"math"
)

// Layer shapes, fixed by the genome layout (SPEC_FULL.md §3).
const (
	InputSize   = 7
	Hidden0Size = 5
	Hidden1Size = 3
	OutputSize  = 2

	// GenesCount = 5*(7+1) + 3*(5+1) + 2*(3+1) = 66.
	GenesCount = Hidden0Size*(InputSize+1) + Hidden1Size*(Hidden0Size+1) + OutputSize*(Hidden1Size+1)
)

// layerShape describes one dense layer's dimensions.
type layerShape struct {
	inputSize, neurons int
}

func (l layerShape) size() int { return l.neurons * (l.inputSize + 1) }

var (
	hidden0Shape = layerShape{inputSize: InputSize, neurons: Hidden0Size}
	hidden1Shape = layerShape{inputSize: Hidden0Size, neurons: Hidden1Size}
	outputShape  = layerShape{inputSize: Hidden1Size, neurons: OutputSize}
)

// Activation is the nonlinearity applied after every layer; it also
// drives the initialisation distribution used for random genomes.
type Activation int

const (
	ReLU Activation = iota
	Sigmoid
	Tanh
)

func (a Activation) apply(v float64) float64 {
	switch a {
	case ReLU:
		return math.Max(0, v)
	case Sigmoid:
		return 1 / (1 + math.Exp(-v))
	case Tanh:
		return math.Tanh(v)
	default:
		panic(fmt.Sprintf("nn: unknown activation %d", a))
	}
}

// layer is one dense layer: out = W*in + B, biases first.
type layer struct {
	shape layerShape
	b     []float64 // len == neurons
	w     []float64 // len == neurons*inputSize, row-major
}

func (l layer) forward(in []float64) []float64 {
	out := make([]float64, l.shape.neurons)
	for n := 0; n < l.shape.neurons; n++ {
		sum := l.b[n]
		row := l.w[n*l.shape.inputSize : (n+1)*l.shape.inputSize]
		for i, x := range in {
			sum += row[i] * x
		}
		out[n] = sum
	}
	return out
}

// DFF is the fixed-shape 7-5-3-2 controller network.
type DFF struct {
	Activation       Activation
	hidden0, hidden1 layer
	output           layer
}

// FromGenes builds a DFF from a flat 66-length gene vector: for each
// layer in order (hidden0, hidden1, output) the first neurons_count
// entries are biases, the remainder are weights in row-major order.
func FromGenes(genes []float64, activation Activation) (*DFF, error) {
	if len(genes) != GenesCount {
		return nil, fmt.Errorf("nn: want %d genes, got %d", GenesCount, len(genes))
	}

	d := &DFF{Activation: activation}
	off := 0
	for _, ls := range []struct {
		shape layerShape
		dst   *layer
	}{
		{hidden0Shape, &d.hidden0},
		{hidden1Shape, &d.hidden1},
		{outputShape, &d.output},
	} {
		n := ls.shape.neurons
		w := ls.shape.neurons * ls.shape.inputSize
		*ls.dst = layer{
			shape: ls.shape,
			b:     append([]float64(nil), genes[off:off+n]...),
			w:     append([]float64(nil), genes[off+n:off+n+w]...),
		}
		off += n + w
	}
	return d, nil
}

// Genes flattens the network back into its 66-length gene vector, the
// inverse of FromGenes.
func (d *DFF) Genes() []float64 {
	out := make([]float64, 0, GenesCount)
	for _, l := range []layer{d.hidden0, d.hidden1, d.output} {
		out = append(out, l.b...)
		out = append(out, l.w...)
	}
	return out
}

// Forward evaluates the network left to right, applying Activation
// after every layer (including the output layer).
func (d *DFF) Forward(input []float64) []float64 {
	a := d.Activation
	h0 := apply(a, d.hidden0.forward(input))
	h1 := apply(a, d.hidden1.forward(h0))
	out := apply(a, d.output.forward(h1))
	return out
}

func apply(a Activation, v []float64) []float64 {
	for i, x := range v {
		v[i] = a.apply(x)
	}
	return v
}
