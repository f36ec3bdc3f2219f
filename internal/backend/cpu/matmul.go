package cpu

import (
	"fmt"

	"github.com/ajroetker/go-highway/hwy"
	"github.com/ajroetker/go-highway/hwy/contrib/vec"

	"github.com/aivclab/neodroidvision/internal/parallel"
	"github.com/aivclab/neodroidvision/internal/tensor"
)

// MatMul performs 2-D matrix multiplication: [M, K] @ [K, N] -> [M, N].
//
// The right operand is transposed once so every output element is a
// contiguous dot product over K. Large products split their rows across
// goroutines.
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: expected 2D tensors, got %v and %v", aShape, bShape))
	}
	if aShape[1] != bShape[0] {
		panic(fmt.Sprintf("matmul: inner dimensions differ: %v @ %v", aShape, bShape))
	}
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("matmul: dtype mismatch: %s vs %s", a.DType(), b.DType()))
	}

	m, k, n := aShape[0], aShape[1], bShape[1]
	result := tensor.MustNewRaw(tensor.Shape{m, n}, a.DType(), cpu.device)
	bT := cpu.Transpose(b)

	switch a.DType() {
	case tensor.Float32:
		matmulDot(cpu.parallel, result.AsFloat32(), a.AsFloat32(), bT.AsFloat32(), m, k, n)
	case tensor.Float64:
		matmulDot(cpu.parallel, result.AsFloat64(), a.AsFloat64(), bT.AsFloat64(), m, k, n)
	default:
		panic("matmul: unsupported dtype " + a.DType().String())
	}

	return result
}

func matmulDot[T hwy.Floats](cfg parallel.Config, dst, a, bT []T, m, k, n int) {
	parallel.Rows(m, k*n, cfg, func(start, end int) {
		for i := start; i < end; i++ {
			row := a[i*k : (i+1)*k]
			for j := 0; j < n; j++ {
				dst[i*n+j] = vec.BaseDot(row, bT[j*k:(j+1)*k])
			}
		}
	})
}
