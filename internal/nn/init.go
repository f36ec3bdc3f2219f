package nn

import (
	"math"
	"math/rand"

	"github.com/aivclab/neodroidvision/internal/tensor"
)

// Xavier (Glorot) initialization for weights.
//
// Initializes weights with values drawn from a uniform distribution:
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
//
// A nil rng uses the global math/rand source.
func Xavier[B tensor.Backend](rng *rand.Rand, fanIn, fanOut int, shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))

	uniform := rand.Float64 //nolint:gosec // weight initialization is not security-critical
	if rng != nil {
		uniform = rng.Float64
	}

	t := tensor.Zeros[float32](shape, backend)
	data := t.Data()
	for i := range data {
		data[i] = float32((uniform()*2.0 - 1.0) * bound)
	}

	return t
}

// Zeros creates a float32 tensor filled with zeros.
// This is commonly used for bias initialization.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Zeros[float32](shape, backend)
}

// Randn creates a float32 tensor with values drawn from N(0, 1).
// A nil rng uses the global math/rand source.
func Randn[B tensor.Backend](rng *rand.Rand, shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.RandnFrom[float32](rng, shape, backend)
}
