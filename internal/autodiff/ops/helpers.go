package ops

import (
	"fmt"

	"github.com/aivclab/neodroidvision/internal/tensor"
)

// reduceBroadcast reduces a gradient tensor to match the target shape.
// This is necessary when broadcasting was used in the forward pass.
//
// Example:
//
//	Forward: a[3,1] + b[3,4] -> c[3,4]  (a was broadcast along dim 1)
//	Backward: grad_c[3,4] -> grad_a[3,1] (sum along dim 1)
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	gradShape := grad.Shape()

	// Clone so gradients never alias each other on the tape.
	if gradShape.Equal(targetShape) {
		return grad.Clone()
	}

	if len(targetShape) == 0 {
		return backend.Sum(grad)
	}

	// NumPy broadcasting aligns shapes from the right: leading
	// dimensions the target lacks are summed away first.
	result := grad
	for len(result.Shape()) > len(targetShape) {
		result = backend.SumDim(result, 0, false)
	}

	for i, n := range targetShape {
		if n == 1 && result.Shape()[i] > 1 {
			result = backend.SumDim(result, i, true)
		}
	}

	if !result.Shape().Equal(targetShape) {
		result = backend.Reshape(result, targetShape)
	}

	return result
}

// gatherAlong reads grad at the positions named by index along dim:
//
//	out[p] = grad[..., index[p], ...]   (index replaces coordinate dim of p)
//
// It is the adjoint of ScatterAdd with respect to its source.
func gatherAlong(grad *tensor.RawTensor, dim int, index *tensor.RawTensor) *tensor.RawTensor {
	out, err := tensor.NewRaw(index.Shape(), grad.DType(), grad.Device())
	if err != nil {
		panic(fmt.Sprintf("gatherAlong: failed to create result: %v", err))
	}

	indices := index.Indices()
	idxStrides := index.Shape().ComputeStrides()
	gradStrides := grad.Strides()

	targets := make([]int, len(indices))
	for p := range indices {
		rem, off := p, 0
		for d, stride := range idxStrides {
			coord := rem / stride
			rem %= stride
			if d == dim {
				coord = indices[p]
			}
			off += coord * gradStrides[d]
		}
		targets[p] = off
	}

	switch grad.DType() {
	case tensor.Float32:
		src, dst := grad.AsFloat32(), out.AsFloat32()
		for p, off := range targets {
			dst[p] = src[off]
		}
	case tensor.Float64:
		src, dst := grad.AsFloat64(), out.AsFloat64()
		for p, off := range targets {
			dst[p] = src[off]
		}
	default:
		panic(fmt.Sprintf("gatherAlong: unsupported dtype %s", grad.DType()))
	}

	return out
}
