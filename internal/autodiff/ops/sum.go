package ops

import "github.com/aivclab/neodroidvision/internal/tensor"

// SumOp represents a full reduction: output = Σ x.
//
// Backward broadcasts the scalar gradient to the input's shape.
type SumOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSumOp creates a new SumOp.
func NewSumOp(input, output *tensor.RawTensor) *SumOp {
	return &SumOp{input: input, output: output}
}

// Backward computes the input gradient for sum.
func (op *SumOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad := outputGrad
	if len(grad.Shape()) != 0 {
		grad = backend.Reshape(grad, tensor.Shape{})
	}
	return []*tensor.RawTensor{backend.Expand(grad, op.input.Shape())}
}

// Inputs returns the input tensor.
func (op *SumOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *SumOp) Output() *tensor.RawTensor {
	return op.output
}

// SumDimOp represents a reduction along one dimension.
type SumDimOp struct {
	input   *tensor.RawTensor
	dim     int
	keepDim bool
	output  *tensor.RawTensor
}

// NewSumDimOp creates a new SumDimOp.
func NewSumDimOp(input *tensor.RawTensor, dim int, keepDim bool, output *tensor.RawTensor) *SumDimOp {
	if dim < 0 {
		dim += len(input.Shape())
	}
	return &SumDimOp{input: input, dim: dim, keepDim: keepDim, output: output}
}

// Backward broadcasts outputGrad back along the reduced dimension.
func (op *SumDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad := outputGrad
	if !op.keepDim {
		grad = backend.Unsqueeze(grad, op.dim)
	}
	return []*tensor.RawTensor{backend.Expand(grad, op.input.Shape())}
}

// Inputs returns the input tensor.
func (op *SumDimOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *SumDimOp) Output() *tensor.RawTensor {
	return op.output
}
