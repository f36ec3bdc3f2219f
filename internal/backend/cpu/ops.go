package cpu

import (
	"github.com/ajroetker/go-highway/hwy"
	"github.com/ajroetker/go-highway/hwy/contrib/vec"

	"github.com/aivclab/neodroidvision/internal/tensor"
)

type binaryOp int

const (
	opAdd binaryOp = iota
	opSub
	opMul
	opDiv
)

type number interface {
	~float32 | ~float64 | ~int32 | ~int64
}

// binaryContiguous applies op to same-shape tensors.
func binaryContiguous(op binaryOp, result, a, b *tensor.RawTensor) {
	switch result.DType() {
	case tensor.Float32:
		floatBinary(op, result.AsFloat32(), a.AsFloat32(), b.AsFloat32())
	case tensor.Float64:
		floatBinary(op, result.AsFloat64(), a.AsFloat64(), b.AsFloat64())
	case tensor.Int32:
		scalarBinary(op, result.AsInt32(), a.AsInt32(), b.AsInt32())
	case tensor.Int64:
		scalarBinary(op, result.AsInt64(), a.AsInt64(), b.AsInt64())
	default:
		panic("binary: unsupported dtype " + result.DType().String())
	}
}

// floatBinary dispatches to the go-highway vector kernels.
func floatBinary[T hwy.Floats](op binaryOp, dst, a, b []T) {
	switch op {
	case opAdd:
		vec.BaseAddTo(dst, a, b)
	case opSub:
		vec.BaseSubTo(dst, a, b)
	case opMul:
		vec.BaseMulTo(dst, a, b)
	case opDiv:
		vec.BaseDivTo(dst, a, b)
	}
}

func scalarBinary[T number](op binaryOp, dst, a, b []T) {
	for i := range dst {
		dst[i] = apply(op, a[i], b[i])
	}
}

func apply[T number](op binaryOp, x, y T) T {
	switch op {
	case opAdd:
		return x + y
	case opSub:
		return x - y
	case opMul:
		return x * y
	default:
		return x / y
	}
}

// binaryBroadcast applies op with NumPy broadcasting into result.
func binaryBroadcast(op binaryOp, result, a, b *tensor.RawTensor) {
	switch result.DType() {
	case tensor.Float32:
		broadcastLoop(op, result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), result.Shape(), a.Shape(), b.Shape())
	case tensor.Float64:
		broadcastLoop(op, result.AsFloat64(), a.AsFloat64(), b.AsFloat64(), result.Shape(), a.Shape(), b.Shape())
	case tensor.Int32:
		broadcastLoop(op, result.AsInt32(), a.AsInt32(), b.AsInt32(), result.Shape(), a.Shape(), b.Shape())
	case tensor.Int64:
		broadcastLoop(op, result.AsInt64(), a.AsInt64(), b.AsInt64(), result.Shape(), a.Shape(), b.Shape())
	default:
		panic("binary: unsupported dtype " + result.DType().String())
	}
}

func broadcastLoop[T number](op binaryOp, dst, a, b []T, outShape, aShape, bShape tensor.Shape) {
	aStrides := broadcastStrides(aShape, outShape)
	bStrides := broadcastStrides(bShape, outShape)
	outStrides := outShape.ComputeStrides()

	for i := range dst {
		aIdx, bIdx := 0, 0
		rem := i
		for d, stride := range outStrides {
			coord := rem / stride
			rem %= stride
			aIdx += coord * aStrides[d]
			bIdx += coord * bStrides[d]
		}
		dst[i] = apply(op, a[aIdx], b[bIdx])
	}
}

// broadcastStrides returns strides of shape aligned to outShape, with 0
// for every dimension that is broadcast (missing or of size 1).
func broadcastStrides(shape, outShape tensor.Shape) []int {
	strides := make([]int, len(outShape))
	own := shape.ComputeStrides()
	offset := len(outShape) - len(shape)
	for d := range shape {
		if shape[d] != 1 {
			strides[d+offset] = own[d]
		}
	}
	return strides
}
