// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides reverse-mode automatic differentiation.
//
// Backend wraps any compute backend and records operations on a gradient
// tape. Custom differentiable kernels implement Function and are recorded
// through Apply.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//
//	y := x.Mul(x).Sum()
//	grads := autodiff.Backward(y, backend)
//	dx := grads[x.Raw()]
package autodiff

import (
	"github.com/aivclab/neodroidvision/internal/autodiff"
	"github.com/aivclab/neodroidvision/internal/autodiff/ops"
	"github.com/aivclab/neodroidvision/internal/tensor"
)

// Backend is the autodiff-enabled backend.
type Backend[B tensor.Backend] = autodiff.AutodiffBackend[B]

// New creates a new autodiff backend wrapping backend.
func New[B tensor.Backend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// GradientTape records operations for automatic differentiation.
type GradientTape = autodiff.GradientTape

// BackwardCapable is implemented by backends that own a gradient tape.
type BackwardCapable = autodiff.BackwardCapable

// Backward computes gradients of t with respect to every recorded input.
func Backward[T tensor.DType, B BackwardCapable](t *tensor.Tensor[T, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.Backward(t, backend)
}

// Function is a differentiable operation with a hand-written backward.
type Function = ops.Function

// FunctionContext carries tensors from Function.Forward to Function.Backward.
type FunctionContext = ops.FunctionContext

// Apply runs fn on inputs, recording it on the tape when backend records.
func Apply(fn Function, backend tensor.Backend, inputs ...*tensor.RawTensor) *tensor.RawTensor {
	return autodiff.Apply(fn, backend, inputs...)
}
