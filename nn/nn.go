// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides neural network modules and the center loss.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	embed := nn.NewSequential[*autodiff.Backend[*cpu.Backend]](
//	    nn.NewLinear(16, 64, backend),
//	    nn.NewReLU[*autodiff.Backend[*cpu.Backend]](),
//	    nn.NewLinear(64, 2, backend),
//	)
//	centerLoss := nn.NewCenterLoss(10, 2, true, backend)
//
//	backend.Tape().StartRecording()
//	loss, err := centerLoss.Forward(labels, embed.Forward(x))
//	grads := autodiff.Backward(loss, backend)
package nn

import (
	"math/rand"

	"github.com/aivclab/neodroidvision/internal/nn"
	"github.com/aivclab/neodroidvision/internal/tensor"
)

// Module is the base interface for all neural network components.
type Module[B tensor.Backend] = nn.Module[B]

// Stateful is implemented by modules that can save and restore parameters.
type Stateful = nn.Stateful

// Parameter is a named trainable tensor with an optional gradient.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// CollectGrads stores the gradients computed by Backward on params.
func CollectGrads[B tensor.Backend](params []*Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) {
	nn.CollectGrads(params, grads)
}

// Linear is a fully connected layer y = x·Wᵀ + b.
type Linear[B tensor.Backend] = nn.Linear[B]

// NewLinear creates a Linear layer with Xavier-initialized weights.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	return nn.NewLinear(inFeatures, outFeatures, backend)
}

// NewLinearFrom is NewLinear drawing its weights from rng.
func NewLinearFrom[B tensor.Backend](rng *rand.Rand, inFeatures, outFeatures int, backend B) *Linear[B] {
	return nn.NewLinearFrom(rng, inFeatures, outFeatures, backend)
}

// ReLU is the rectified linear activation.
type ReLU[B tensor.Backend] = nn.ReLU[B]

// NewReLU creates a ReLU activation.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return nn.NewReLU[B]()
}

// Sequential chains modules.
type Sequential[B tensor.Backend] = nn.Sequential[B]

// NewSequential creates a Sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return nn.NewSequential(modules...)
}

// CrossEntropyLoss is softmax cross entropy averaged over the batch.
type CrossEntropyLoss[B tensor.Backend] = nn.CrossEntropyLoss[B]

// NewCrossEntropyLoss creates a cross entropy loss.
func NewCrossEntropyLoss[B tensor.Backend](backend B) *CrossEntropyLoss[B] {
	return nn.NewCrossEntropyLoss(backend)
}

// Accuracy returns the fraction of rows of logits whose argmax equals the label.
func Accuracy[B tensor.Backend](logits *tensor.Tensor[float32, B], labels *tensor.Tensor[int32, B]) float32 {
	return nn.Accuracy(logits, labels)
}

// CenterLoss learns one center per class and penalizes the squared
// distance between each feature and its class center.
type CenterLoss[B tensor.Backend] = nn.CenterLoss[B]

// CenterLossConfig configures a CenterLoss.
type CenterLossConfig = nn.CenterLossConfig

// CenterLossFunc is the differentiable kernel behind CenterLoss.
type CenterLossFunc = nn.CenterLossFunc

// CountPolicy selects the per-class divisor of the centers gradient.
type CountPolicy = nn.CountPolicy

// Count policies.
const (
	CountBatch    CountPolicy = nn.CountBatch
	CountSmoothed CountPolicy = nn.CountSmoothed
)

// ParseCountPolicy parses "batch" or "smoothed".
func ParseCountPolicy(name string) (CountPolicy, error) {
	return nn.ParseCountPolicy(name)
}

// NewCenterLoss creates a center loss with N(0, 1) centers.
func NewCenterLoss[B tensor.Backend](numClasses, featDim int, sizeAverage bool, backend B) *CenterLoss[B] {
	return nn.NewCenterLoss(numClasses, featDim, sizeAverage, backend)
}

// NewCenterLossWithConfig creates a center loss from cfg.
func NewCenterLossWithConfig[B tensor.Backend](cfg CenterLossConfig, backend B) *CenterLoss[B] {
	return nn.NewCenterLossWithConfig(cfg, backend)
}

// ErrDimensionMismatch is matched by every *DimensionMismatchError.
var ErrDimensionMismatch = nn.ErrDimensionMismatch

// DimensionMismatchError reports features whose width differs from the
// center dimension.
type DimensionMismatchError = nn.DimensionMismatchError

// Group combines named Stateful modules, prefixing their keys.
type Group = nn.Group

// Checkpoint is a training state snapshot in SafeTensors format.
type Checkpoint = nn.Checkpoint

// OptimizerState is implemented by optimizers whose state is checkpointed.
type OptimizerState = nn.OptimizerState

// LoadCheckpoint restores model and optimizer state from path.
func LoadCheckpoint(path string, backend tensor.Backend, model Stateful, optimizers map[string]OptimizerState) (*Checkpoint, error) {
	return nn.LoadCheckpoint(path, backend, model, optimizers)
}
