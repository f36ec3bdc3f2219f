package autodiff

import (
	"fmt"

	"github.com/aivclab/neodroidvision/internal/autodiff/ops"
	"github.com/aivclab/neodroidvision/internal/tensor"
)

// BackwardCapable is a backend that can compute gradients.
type BackwardCapable interface {
	tensor.Backend
	Tape() *GradientTape
}

// FunctionApplier is a backend that can record user-defined Functions.
type FunctionApplier interface {
	tensor.Backend
	Apply(fn ops.Function, inputs ...*tensor.RawTensor) *tensor.RawTensor
}

// Backward computes gradients of t with respect to every tensor the
// recorded computation used.
//
// The output gradient is initialized to ones (dL/dL = 1), so t is usually
// a scalar loss. Panics if nothing was recorded.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	x, _ := tensor.FromSlice([]float32{2.0}, tensor.Shape{1}, backend)
//	y := x.Mul(x)
//	grads := autodiff.Backward(y, backend)
//	// grads[x.Raw()] = [4.0]
func Backward[T tensor.DType, B BackwardCapable](t *tensor.Tensor[T, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	tape := backend.Tape()
	if tape.NumOps() == 0 {
		panic("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}

	if !t.DType().IsFloat() {
		panic(fmt.Sprintf("backward: unsupported dtype %s (only float32/float64 supported)", t.DType()))
	}

	outputGrad := tensor.MustNewRaw(t.Shape(), t.DType(), backend.Device())
	outputGrad.Fill(1)

	return tape.Backward(outputGrad, backend)
}

// Apply runs fn on backend. Autodiff backends record it for the backward
// pass; any other backend just runs the forward rule.
func Apply(fn ops.Function, backend tensor.Backend, inputs ...*tensor.RawTensor) *tensor.RawTensor {
	if applier, ok := backend.(FunctionApplier); ok {
		return applier.Apply(fn, inputs...)
	}
	return fn.Forward(ops.NewFunctionContext(), inputs, backend)
}
