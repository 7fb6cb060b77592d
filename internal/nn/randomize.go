package nn

import (
	"math"
	"math/rand/v2"
)

// Randomize draws a fresh 66-gene vector for the given activation: bias
// slots of every layer are zero, weight slots are drawn from the
// activation-driven distribution (He normal for ReLU, Xavier uniform for
// tanh/sigmoid), each layer's distribution parameterised by its own
// input/neuron counts. Grounded in
// shared/internal/nn_randomize.h's distribution_s_ specialisation.
func Randomize(rng *rand.Rand, activation Activation) []float64 {
	genes := make([]float64, 0, GenesCount)
	for _, shape := range []layerShape{hidden0Shape, hidden1Shape, outputShape} {
		for i := 0; i < shape.neurons; i++ {
			genes = append(genes, 0) // bias
		}
		n := shape.neurons * shape.inputSize
		switch activation {
		case ReLU:
			std := math.Sqrt(2 / float64(shape.inputSize))
			for i := 0; i < n; i++ {
				genes = append(genes, rng.NormFloat64()*std)
			}
		default: // Xavier uniform, tanh/sigmoid
			l := math.Sqrt(6) / math.Sqrt(float64(shape.inputSize+shape.neurons))
			for i := 0; i < n; i++ {
				genes = append(genes, -l+rng.Float64()*2*l)
			}
		}
	}
	return genes
}
