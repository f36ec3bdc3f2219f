package ops

import "github.com/aivclab/neodroidvision/internal/tensor"

// IndexSelectOp represents output = x.index_select(dim, index).
//
// Backward scatters outputGrad back to the selected slices; repeated
// indices accumulate. The index receives no gradient.
type IndexSelectOp struct {
	inputs []*tensor.RawTensor // [x, index]
	dim    int
	output *tensor.RawTensor
}

// NewIndexSelectOp creates a new IndexSelectOp.
func NewIndexSelectOp(x *tensor.RawTensor, dim int, index, output *tensor.RawTensor) *IndexSelectOp {
	if dim < 0 {
		dim += len(x.Shape())
	}
	return &IndexSelectOp{
		inputs: []*tensor.RawTensor{x, index},
		dim:    dim,
		output: output,
	}
}

// Backward computes the gradient with respect to x.
func (op *IndexSelectOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	x, index := op.inputs[0], op.inputs[1]

	// Lay the 1-D index along dim and broadcast it to the gradient's shape.
	gradShape := outputGrad.Shape()
	indexShape := make(tensor.Shape, len(gradShape))
	for i := range indexShape {
		indexShape[i] = 1
	}
	indexShape[op.dim] = gradShape[op.dim]
	fullIndex := backend.Expand(backend.Reshape(index, indexShape), gradShape)

	zeros, err := tensor.NewRaw(x.Shape(), outputGrad.DType(), outputGrad.Device())
	if err != nil {
		panic(err)
	}

	return []*tensor.RawTensor{
		backend.ScatterAdd(zeros, op.dim, fullIndex, outputGrad),
		nil,
	}
}

// Inputs returns the input tensors [x, index].
func (op *IndexSelectOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the output tensor.
func (op *IndexSelectOp) Output() *tensor.RawTensor {
	return op.output
}

// ScatterAddOp represents output = dst.scatter_add(dim, index, src).
//
// Backward pass:
//   - grad_dst = outputGrad
//   - grad_src = outputGrad gathered at index along dim
type ScatterAddOp struct {
	inputs []*tensor.RawTensor // [dst, index, src]
	dim    int
	output *tensor.RawTensor
}

// NewScatterAddOp creates a new ScatterAddOp.
func NewScatterAddOp(dst *tensor.RawTensor, dim int, index, src, output *tensor.RawTensor) *ScatterAddOp {
	if dim < 0 {
		dim += len(dst.Shape())
	}
	return &ScatterAddOp{
		inputs: []*tensor.RawTensor{dst, index, src},
		dim:    dim,
		output: output,
	}
}

// Backward computes gradients for dst and src.
func (op *ScatterAddOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	index := op.inputs[1]
	return []*tensor.RawTensor{
		outputGrad.Clone(),
		nil,
		gatherAlong(outputGrad, op.dim, index),
	}
}

// Inputs returns the input tensors [dst, index, src].
func (op *ScatterAddOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the output tensor.
func (op *ScatterAddOp) Output() *tensor.RawTensor {
	return op.output
}
