package tensor

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// Every method returns a newly allocated RawTensor and leaves its inputs
// untouched. Shape contract violations panic with an "op: detail" message.
type Backend interface {
	// Element-wise binary operations (NumPy-style broadcasting)
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Matrix operations
	MatMul(a, b *RawTensor) *RawTensor

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor
	Unsqueeze(x *RawTensor, dim int) *RawTensor  // add dimension of size 1
	Expand(x *RawTensor, shape Shape) *RawTensor // broadcast to shape

	// Scalar operations (element-wise with scalar)
	MulScalar(x *RawTensor, scalar float64) *RawTensor
	DivScalar(x *RawTensor, scalar float64) *RawTensor

	// Activation functions
	ReLU(x *RawTensor) *RawTensor

	// Reduction operations
	Sum(x *RawTensor) *RawTensor                           // total sum (scalar result)
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor // sum along dimension

	// Indexing operations
	IndexSelect(x *RawTensor, dim int, index *RawTensor) *RawTensor       // pick slices along dim by a 1-D index
	ScatterAdd(dst *RawTensor, dim int, index, src *RawTensor) *RawTensor // dst + src accumulated at index along dim

	// Metadata
	Name() string
	Device() Device
}
