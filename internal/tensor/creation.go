package tensor

import (
	"math"
	"math/rand"
)

// Zeros creates a tensor filled with zeros.
//
// Example:
//
//	backend := cpu.New()
//	t := tensor.Zeros[float32](Shape{3, 4}, backend)
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	var dummy T
	dtype := inferDataType(dummy)

	raw, err := NewRaw(shape, dtype, b.Device())
	if err != nil {
		panic(err) // Shape validation should prevent this
	}

	// Data is already zero-initialized by make()
	return New[T, B](raw, b)
}

// Ones creates a tensor filled with ones.
//
// Example:
//
//	t := tensor.Ones[float64](Shape{2, 3}, backend)
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return Full[T, B](shape, T(1), b)
}

// Full creates a tensor filled with a specific value.
//
// Example:
//
//	t := tensor.Full[float32](Shape{3, 3}, 3.14, backend)
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Randn creates a tensor with random values from a normal distribution (mean=0, std=1)
// drawn from the global math/rand source.
// Only works with float types.
//
// Example:
//
//	t := tensor.Randn[float32](Shape{100, 100}, backend)
func Randn[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return RandnFrom[T, B](nil, shape, b)
}

// RandnFrom is Randn with an explicit random source, for reproducible
// initialization. A nil rng uses the global source.
//
// Uses the Box-Muller transform.
// Note: Uses math/rand (not crypto/rand) - appropriate for ML/statistical purposes.
func RandnFrom[T DType, B Backend](rng *rand.Rand, shape Shape, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)

	uniform := rand.Float64 //nolint:gosec // G404: ML uses math/rand intentionally for reproducibility
	if rng != nil {
		uniform = rng.Float64
	}

	var dummy T
	switch any(dummy).(type) {
	case float32, float64:
	default:
		panic("Randn only supports float32 and float64 types")
	}

	data := t.Data()
	for i := 0; i < len(data); i += 2 {
		// 1-u keeps u1 in (0, 1] so the log is finite.
		u1 := 1 - uniform()
		u2 := uniform()
		r := math.Sqrt(-2.0 * math.Log(u1))
		data[i] = T(r * math.Cos(2.0*math.Pi*u2))
		if i+1 < len(data) {
			data[i+1] = T(r * math.Sin(2.0*math.Pi*u2))
		}
	}
	return t
}

// Arange creates a 1-D tensor with values [start, end) and step 1.
//
// Example:
//
//	t := tensor.Arange[int32](0, 5, backend) // [0, 1, 2, 3, 4]
func Arange[T DType, B Backend](start, end T, b B) *Tensor[T, B] {
	n := int(end - start)
	if n <= 0 {
		panic("Arange: end must be greater than start")
	}
	t := Zeros[T, B](Shape{n}, b)
	data := t.Data()
	for i := range data {
		data[i] = start + T(i)
	}
	return t
}
