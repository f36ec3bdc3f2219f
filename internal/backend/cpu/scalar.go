package cpu

import (
	"github.com/ajroetker/go-highway/hwy/contrib/vec"

	"github.com/aivclab/neodroidvision/internal/tensor"
)

// MulScalar multiplies every element by scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	result := tensor.MustNewRaw(x.Shape(), x.DType(), cpu.device)

	switch x.DType() {
	case tensor.Float32:
		vec.BaseScaleTo(result.AsFloat32(), float32(scalar), x.AsFloat32())
	case tensor.Float64:
		vec.BaseScaleTo(result.AsFloat64(), scalar, x.AsFloat64())
	case tensor.Int32:
		dst := result.AsInt32()
		for i, v := range x.AsInt32() {
			dst[i] = int32(float64(v) * scalar)
		}
	case tensor.Int64:
		dst := result.AsInt64()
		for i, v := range x.AsInt64() {
			dst[i] = int64(float64(v) * scalar)
		}
	default:
		panic("mulscalar: unsupported dtype " + x.DType().String())
	}

	return result
}

// DivScalar divides every element by scalar.
//
// Float tensors divide element by element rather than multiplying by
// 1/scalar, so results match a plain division bit for bit.
func (cpu *CPUBackend) DivScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	result := tensor.MustNewRaw(x.Shape(), x.DType(), cpu.device)

	switch x.DType() {
	case tensor.Float32:
		dst := result.AsFloat32()
		s := float32(scalar)
		for i, v := range x.AsFloat32() {
			dst[i] = v / s
		}
	case tensor.Float64:
		dst := result.AsFloat64()
		for i, v := range x.AsFloat64() {
			dst[i] = v / scalar
		}
	case tensor.Int32:
		dst := result.AsInt32()
		for i, v := range x.AsInt32() {
			dst[i] = int32(float64(v) / scalar)
		}
	case tensor.Int64:
		dst := result.AsInt64()
		for i, v := range x.AsInt64() {
			dst[i] = int64(float64(v) / scalar)
		}
	default:
		panic("divscalar: unsupported dtype " + x.DType().String())
	}

	return result
}

// ReLU applies max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result := tensor.MustNewRaw(x.Shape(), x.DType(), cpu.device)

	switch x.DType() {
	case tensor.Float32:
		relu(result.AsFloat32(), x.AsFloat32())
	case tensor.Float64:
		relu(result.AsFloat64(), x.AsFloat64())
	case tensor.Int32:
		relu(result.AsInt32(), x.AsInt32())
	case tensor.Int64:
		relu(result.AsInt64(), x.AsInt64())
	default:
		panic("relu: unsupported dtype " + x.DType().String())
	}

	return result
}

func relu[T number](dst, src []T) {
	for i, v := range src {
		if v > 0 {
			dst[i] = v
		}
	}
}
