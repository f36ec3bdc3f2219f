package cpu

import (
	"fmt"

	"github.com/aivclab/neodroidvision/internal/tensor"
)

// Transpose transposes the tensor by permuting its dimensions.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	ndim := len(shape)

	// Default: reverse all dimensions
	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}

	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: axes length %d != ndim %d", len(axes), ndim))
	}

	seen := make([]bool, ndim)
	for _, ax := range axes {
		if ax < 0 || ax >= ndim {
			panic(fmt.Sprintf("transpose: invalid axis %d for %dD tensor", ax, ndim))
		}
		if seen[ax] {
			panic(fmt.Sprintf("transpose: duplicate axis %d", ax))
		}
		seen[ax] = true
	}

	newShape := make(tensor.Shape, ndim)
	srcStrides := make([]int, ndim)
	for i, ax := range axes {
		newShape[i] = shape[ax]
		srcStrides[i] = t.Strides()[ax]
	}

	result := tensor.MustNewRaw(newShape, t.DType(), cpu.device)
	gather(result, t, newShape, srcStrides)
	return result
}

// Unsqueeze inserts a dimension of size 1 at dim.
func (cpu *CPUBackend) Unsqueeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	if dim < 0 {
		dim += len(shape) + 1
	}
	if dim < 0 || dim > len(shape) {
		panic(fmt.Sprintf("unsqueeze: dim %d out of range for %dD tensor", dim, len(shape)))
	}

	newShape := make(tensor.Shape, 0, len(shape)+1)
	newShape = append(newShape, shape[:dim]...)
	newShape = append(newShape, 1)
	newShape = append(newShape, shape[dim:]...)

	return cpu.Reshape(x, newShape)
}

// Expand broadcasts x to shape, materializing the repeated values.
func (cpu *CPUBackend) Expand(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	outShape, _, err := tensor.BroadcastShapes(x.Shape(), shape)
	if err != nil || !outShape.Equal(shape) {
		panic(fmt.Sprintf("expand: cannot expand %v to %v", x.Shape(), shape))
	}

	result := tensor.MustNewRaw(shape, x.DType(), cpu.device)
	gather(result, x, shape, broadcastStrides(x.Shape(), shape))
	return result
}

// gather fills dst (laid out as shape) by reading src through srcStrides.
func gather(dst, src *tensor.RawTensor, shape tensor.Shape, srcStrides []int) {
	switch dst.DType() {
	case tensor.Float32:
		gatherStrided(dst.AsFloat32(), src.AsFloat32(), shape, srcStrides)
	case tensor.Float64:
		gatherStrided(dst.AsFloat64(), src.AsFloat64(), shape, srcStrides)
	case tensor.Int32:
		gatherStrided(dst.AsInt32(), src.AsInt32(), shape, srcStrides)
	case tensor.Int64:
		gatherStrided(dst.AsInt64(), src.AsInt64(), shape, srcStrides)
	default:
		panic("gather: unsupported dtype " + dst.DType().String())
	}
}

func gatherStrided[T number](dst, src []T, shape tensor.Shape, srcStrides []int) {
	outStrides := shape.ComputeStrides()
	for i := range dst {
		srcIdx := 0
		rem := i
		for d, stride := range outStrides {
			srcIdx += (rem / stride) * srcStrides[d]
			rem %= stride
		}
		dst[i] = src[srcIdx]
	}
}
