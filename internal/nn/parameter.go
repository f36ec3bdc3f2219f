package nn

import (
	"fmt"

	"github.com/aivclab/neodroidvision/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// Parameters are tensors that require gradient computation during training:
// layer weights and biases, or the per-class centers of a CenterLoss.
//
// Example:
//
//	centers := nn.NewParameter("centers", tensor.Randn[float32](tensor.Shape{10, 2}, backend))
//	grads := autodiff.Backward(loss, backend)
//	centers.SetGrad(tensor.New[float32](grads[centers.Tensor().Raw()], backend))
type Parameter[B tensor.Backend] struct {
	name   string                     // Parameter name (e.g., "weight", "centers")
	tensor *tensor.Tensor[float32, B] // The parameter tensor
	grad   *tensor.Tensor[float32, B] // Gradient tensor (computed during backward pass)
}

// NewParameter creates a new trainable parameter.
//
// Gradient is nil until the first backward pass.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}

// Grad returns the gradient tensor, or nil before a backward pass.
func (p *Parameter[B]) Grad() *tensor.Tensor[float32, B] {
	return p.grad
}

// SetGrad sets the gradient tensor.
func (p *Parameter[B]) SetGrad(grad *tensor.Tensor[float32, B]) {
	p.grad = grad
}

// ZeroGrad clears the gradient tensor.
func (p *Parameter[B]) ZeroGrad() {
	p.grad = nil
}

// load copies raw into the parameter in place, so optimizers holding the
// parameter's raw tensor keep seeing it.
func (p *Parameter[B]) load(raw *tensor.RawTensor) error {
	if !raw.Shape().Equal(p.tensor.Shape()) {
		return fmt.Errorf("%s shape mismatch: expected %v, got %v", p.name, p.tensor.Shape(), raw.Shape())
	}
	if raw.DType() != tensor.Float32 {
		return fmt.Errorf("%s dtype mismatch: expected float32, got %v", p.name, raw.DType())
	}
	copy(p.tensor.Data(), raw.AsFloat32())
	return nil
}

// CollectGrads copies gradients from a backward pass into params.
// Parameters the computation did not reach get a nil gradient.
func CollectGrads[B tensor.Backend](params []*Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, p := range params {
		g, ok := grads[p.Tensor().Raw()]
		if !ok {
			p.ZeroGrad()
			continue
		}
		p.SetGrad(tensor.New[float32, B](g, p.Tensor().Backend()))
	}
}
