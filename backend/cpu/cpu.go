// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the CPU compute backend.
//
// Element-wise kernels and reductions dispatch to SIMD through go-highway;
// Name reports the selected instruction set.
package cpu

import (
	internalcpu "github.com/aivclab/neodroidvision/internal/backend/cpu"
	"github.com/aivclab/neodroidvision/tensor"
)

// Backend is the CPU backend implementation.
type Backend = internalcpu.CPUBackend

var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend.
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
func New() *Backend {
	return internalcpu.New()
}
