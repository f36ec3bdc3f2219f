package cpu

import (
	"fmt"

	"github.com/aivclab/neodroidvision/internal/tensor"
)

// IndexSelect picks slices of x along dim in the order given by a 1-D index.
//
// Output shape equals x's shape with shape[dim] replaced by len(index).
// Repeated indices duplicate the slice.
//
// Example:
//
//	x: [[1, 2], [3, 4], [5, 6]], dim=0, index: [2, 0, 2]
//	output: [[5, 6], [1, 2], [5, 6]]
func (cpu *CPUBackend) IndexSelect(x *tensor.RawTensor, dim int, index *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	dim = normalizeDim(dim, len(shape), "index_select")
	if len(index.Shape()) > 1 {
		panic(fmt.Sprintf("index_select: index must be 1-D, got shape %v", index.Shape()))
	}

	indices := index.Indices()
	for _, idx := range indices {
		if idx < 0 || idx >= shape[dim] {
			panic(fmt.Sprintf("index_select: index %d out of bounds for dimension %d (size %d)", idx, dim, shape[dim]))
		}
	}

	outShape := shape.Clone()
	outShape[dim] = len(indices)
	result := tensor.MustNewRaw(outShape, x.DType(), cpu.device)

	outer, inner := 1, 1
	for d := 0; d < dim; d++ {
		outer *= shape[d]
	}
	for d := dim + 1; d < len(shape); d++ {
		inner *= shape[d]
	}

	switch x.DType() {
	case tensor.Float32:
		indexSelect(result.AsFloat32(), x.AsFloat32(), indices, outer, shape[dim], inner)
	case tensor.Float64:
		indexSelect(result.AsFloat64(), x.AsFloat64(), indices, outer, shape[dim], inner)
	case tensor.Int32:
		indexSelect(result.AsInt32(), x.AsInt32(), indices, outer, shape[dim], inner)
	case tensor.Int64:
		indexSelect(result.AsInt64(), x.AsInt64(), indices, outer, shape[dim], inner)
	default:
		panic("index_select: unsupported dtype " + x.DType().String())
	}

	return result
}

func indexSelect[T number](dst, src []T, indices []int, outer, size, inner int) {
	n := len(indices)
	for o := 0; o < outer; o++ {
		for j, idx := range indices {
			copy(dst[(o*n+j)*inner:(o*n+j+1)*inner], src[(o*size+idx)*inner:(o*size+idx+1)*inner])
		}
	}
}

// ScatterAdd returns a copy of dst with src accumulated along dim at the
// positions named by index:
//
//	out[..., index[p], ...] += src[p]   (index replaces coordinate dim of p)
//
// index must have src's shape, and src must match dst on every dimension
// except dim. Positions that share an index sum into the same slot.
//
// Example:
//
//	dst: zeros[3], index: [0, 0, 2], src: [1, 2, 5]
//	output: [3, 0, 5]
func (cpu *CPUBackend) ScatterAdd(dst *tensor.RawTensor, dim int, index, src *tensor.RawTensor) *tensor.RawTensor {
	dstShape, srcShape := dst.Shape(), src.Shape()
	dim = normalizeDim(dim, len(dstShape), "scatter_add")

	if dst.DType() != src.DType() {
		panic(fmt.Sprintf("scatter_add: dtype mismatch: %s vs %s", dst.DType(), src.DType()))
	}
	if !index.Shape().Equal(srcShape) {
		panic(fmt.Sprintf("scatter_add: index shape %v must equal src shape %v", index.Shape(), srcShape))
	}
	if len(srcShape) != len(dstShape) {
		panic(fmt.Sprintf("scatter_add: src rank %d != dst rank %d", len(srcShape), len(dstShape)))
	}
	for d := range srcShape {
		if d != dim && srcShape[d] != dstShape[d] {
			panic(fmt.Sprintf("scatter_add: src shape %v and dst shape %v differ outside dim %d", srcShape, dstShape, dim))
		}
	}

	targets := scatterTargets(index.Indices(), srcShape, dstShape, dim)
	result := dst.Clone()

	switch dst.DType() {
	case tensor.Float32:
		scatterAdd(result.AsFloat32(), src.AsFloat32(), targets)
	case tensor.Float64:
		scatterAdd(result.AsFloat64(), src.AsFloat64(), targets)
	case tensor.Int32:
		scatterAdd(result.AsInt32(), src.AsInt32(), targets)
	case tensor.Int64:
		scatterAdd(result.AsInt64(), src.AsInt64(), targets)
	default:
		panic("scatter_add: unsupported dtype " + dst.DType().String())
	}

	return result
}

// scatterTargets resolves, for each flat src position, the flat dst
// position it accumulates into.
func scatterTargets(indices []int, srcShape, dstShape tensor.Shape, dim int) []int {
	srcStrides := srcShape.ComputeStrides()
	dstStrides := dstShape.ComputeStrides()

	targets := make([]int, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= dstShape[dim] {
			panic(fmt.Sprintf("scatter_add: index %d out of bounds for dimension %d (size %d)", idx, dim, dstShape[dim]))
		}

		dstIdx := 0
		rem := i
		for d, stride := range srcStrides {
			coord := rem / stride
			rem %= stride
			if d == dim {
				coord = idx
			}
			dstIdx += coord * dstStrides[d]
		}
		targets[i] = dstIdx
	}
	return targets
}

func scatterAdd[T number](dst, src []T, targets []int) {
	for i, t := range targets {
		dst[t] += src[i]
	}
}
