package cpu

import (
	"fmt"

	"github.com/ajroetker/go-highway/hwy/contrib/vec"

	"github.com/aivclab/neodroidvision/internal/tensor"
)

// Sum reduces all elements to a 0-D tensor.
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	result := tensor.MustNewRaw(tensor.Shape{}, x.DType(), cpu.device)

	switch x.DType() {
	case tensor.Float32:
		result.AsFloat32()[0] = vec.BaseSum(x.AsFloat32())
	case tensor.Float64:
		result.AsFloat64()[0] = vec.BaseSum(x.AsFloat64())
	case tensor.Int32:
		result.AsInt32()[0] = sumScalar(x.AsInt32())
	case tensor.Int64:
		result.AsInt64()[0] = sumScalar(x.AsInt64())
	default:
		panic("sum: unsupported dtype " + x.DType().String())
	}

	return result
}

func sumScalar[T number](data []T) T {
	var s T
	for _, v := range data {
		s += v
	}
	return s
}

// SumDim sums along dim. With keepDim the reduced dimension stays as size 1.
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	shape := x.Shape()
	dim = normalizeDim(dim, len(shape), "sumdim")

	outer, inner := 1, 1
	for d := 0; d < dim; d++ {
		outer *= shape[d]
	}
	for d := dim + 1; d < len(shape); d++ {
		inner *= shape[d]
	}
	size := shape[dim]

	outShape := make(tensor.Shape, 0, len(shape))
	for d, n := range shape {
		switch {
		case d != dim:
			outShape = append(outShape, n)
		case keepDim:
			outShape = append(outShape, 1)
		}
	}

	result := tensor.MustNewRaw(outShape, x.DType(), cpu.device)

	switch x.DType() {
	case tensor.Float32:
		sumAlong(result.AsFloat32(), x.AsFloat32(), outer, size, inner)
	case tensor.Float64:
		sumAlong(result.AsFloat64(), x.AsFloat64(), outer, size, inner)
	case tensor.Int32:
		sumAlong(result.AsInt32(), x.AsInt32(), outer, size, inner)
	case tensor.Int64:
		sumAlong(result.AsInt64(), x.AsInt64(), outer, size, inner)
	default:
		panic("sumdim: unsupported dtype " + x.DType().String())
	}

	return result
}

func sumAlong[T number](dst, src []T, outer, size, inner int) {
	for o := 0; o < outer; o++ {
		for s := 0; s < size; s++ {
			base := (o*size + s) * inner
			for i := 0; i < inner; i++ {
				dst[o*inner+i] += src[base+i]
			}
		}
	}
}

// normalizeDim resolves negative dims and panics when out of range.
func normalizeDim(dim, ndim int, op string) int {
	if dim < 0 {
		dim += ndim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("%s: dim %d out of range for %dD tensor", op, dim, ndim))
	}
	return dim
}
