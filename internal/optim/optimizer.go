// Package optim implements optimization algorithms for training neural networks.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//
// Updates are applied in place to the parameter data and are never
// recorded on a gradient tape.
//
// Example usage:
//
//	centerOpt := optim.NewSGD(centerLoss.Parameters(), optim.SGDConfig{LR: 0.5}, backend)
//
//	backend.Tape().StartRecording()
//	loss, _ := centerLoss.Forward(labels, features)
//	grads := autodiff.Backward(loss, backend)
//
//	centerOpt.Step(grads)
//	centerOpt.ZeroGrad()
//	backend.Tape().Clear()
package optim

import (
	"fmt"

	"github.com/aivclab/neodroidvision/internal/nn"
	"github.com/aivclab/neodroidvision/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
//
// All optimizers must implement:
//   - Step: Apply gradient updates to parameters
//   - ZeroGrad: Clear gradients before next iteration
//   - GetLR: Get current learning rate (for monitoring/scheduling)
type Optimizer interface {
	// Step applies gradient updates to all parameters.
	//
	// Takes a gradient map from Backward() and updates parameters in-place.
	// Parameters missing from the map are left untouched.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32
}

// getGradient retrieves the float32 gradient data for a parameter.
//
// Returns nil if no gradient is found (parameter wasn't part of computation graph).
// Panics if the gradient's shape differs from the parameter's.
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) []float32 {
	if param == nil {
		return nil
	}
	grad, ok := grads[param.Tensor().Raw()]
	if !ok || grad == nil {
		return nil
	}
	if !grad.Shape().Equal(param.Tensor().Shape()) {
		panic(fmt.Sprintf("optim: gradient shape %v does not match parameter %q shape %v",
			grad.Shape(), param.Name(), param.Tensor().Shape()))
	}
	return grad.AsFloat32()
}

// loadBuffer validates a saved per-parameter buffer and returns a copy.
func loadBuffer[B tensor.Backend](param *nn.Parameter[B], raw *tensor.RawTensor, backend B) (*tensor.Tensor[float32, B], error) {
	if !raw.Shape().Equal(param.Tensor().Shape()) {
		return nil, fmt.Errorf("shape mismatch for parameter %q: expected %v, got %v",
			param.Name(), param.Tensor().Shape(), raw.Shape())
	}
	if raw.DType() != tensor.Float32 {
		return nil, fmt.Errorf("dtype mismatch for parameter %q: expected float32, got %v", param.Name(), raw.DType())
	}
	return tensor.New[float32, B](raw.Clone(), backend), nil
}
