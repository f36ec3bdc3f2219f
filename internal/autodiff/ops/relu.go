package ops

import "github.com/aivclab/neodroidvision/internal/tensor"

// ReLUOp represents the ReLU activation: output = max(0, x).
//
// Backward pass: grad_x = outputGrad where x > 0, else 0.
type ReLUOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewReLUOp creates a new ReLUOp.
func NewReLUOp(input, output *tensor.RawTensor) *ReLUOp {
	return &ReLUOp{input: input, output: output}
}

// Backward computes the input gradient for ReLU.
func (op *ReLUOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grad, err := tensor.NewRaw(op.input.Shape(), op.input.DType(), op.input.Device())
	if err != nil {
		panic(err)
	}

	switch op.input.DType() {
	case tensor.Float32:
		reluMask(grad.AsFloat32(), op.input.AsFloat32(), outputGrad.AsFloat32())
	case tensor.Float64:
		reluMask(grad.AsFloat64(), op.input.AsFloat64(), outputGrad.AsFloat64())
	default:
		panic("ReLUOp: backward only supports float32 and float64")
	}

	return []*tensor.RawTensor{grad}
}

func reluMask[T float32 | float64](dst, x, g []T) {
	for i, v := range x {
		if v > 0 {
			dst[i] = g[i]
		}
	}
}

// Inputs returns the input tensor.
func (op *ReLUOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *ReLUOp) Output() *tensor.RawTensor {
	return op.output
}
