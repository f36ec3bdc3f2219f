package ops

import (
	"fmt"

	"github.com/aivclab/neodroidvision/internal/tensor"
)

// Function is a user-defined differentiable operation: a forward rule and
// its hand-written backward rule.
//
// Forward receives the raw inputs and a fresh FunctionContext in which it
// keeps whatever Backward will need. Backward returns one gradient per
// input, in input order; a nil entry means the input is not
// differentiable (labels, constants).
//
// Both rules run on a backend that does not record, so they may use any
// backend operation freely.
type Function interface {
	Forward(ctx *FunctionContext, inputs []*tensor.RawTensor, backend tensor.Backend) *tensor.RawTensor
	Backward(ctx *FunctionContext, outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor
}

// FunctionContext carries state from a Function's forward pass to its
// backward pass.
type FunctionContext struct {
	saved []*tensor.RawTensor
}

// NewFunctionContext creates an empty context.
func NewFunctionContext() *FunctionContext {
	return &FunctionContext{}
}

// SaveForBackward retains tensors for the backward pass. Successive calls
// append.
func (c *FunctionContext) SaveForBackward(tensors ...*tensor.RawTensor) {
	c.saved = append(c.saved, tensors...)
}

// SavedTensors returns the retained tensors in the order they were saved.
func (c *FunctionContext) SavedTensors() []*tensor.RawTensor {
	return c.saved
}

// FunctionOp records one application of a Function on the tape.
type FunctionOp struct {
	fn     Function
	ctx    *FunctionContext
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

// NewFunctionOp creates a FunctionOp for a completed forward pass.
func NewFunctionOp(fn Function, ctx *FunctionContext, inputs []*tensor.RawTensor, output *tensor.RawTensor) *FunctionOp {
	return &FunctionOp{
		fn:     fn,
		ctx:    ctx,
		inputs: inputs,
		output: output,
	}
}

// Backward delegates to the Function's backward rule.
// Panics if it does not return exactly one entry per input.
func (op *FunctionOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grads := op.fn.Backward(op.ctx, outputGrad, backend)
	if len(grads) != len(op.inputs) {
		panic(fmt.Sprintf("FunctionOp: %T returned %d gradients for %d inputs", op.fn, len(grads), len(op.inputs)))
	}
	return grads
}

// Inputs returns the input tensors.
func (op *FunctionOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the output tensor.
func (op *FunctionOp) Output() *tensor.RawTensor {
	return op.output
}
