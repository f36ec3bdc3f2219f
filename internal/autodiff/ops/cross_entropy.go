package ops

import (
	"fmt"
	"math"

	"github.com/aivclab/neodroidvision/internal/tensor"
)

// CrossEntropyOp represents the fused log-softmax + negative log-likelihood.
//
// Forward:
//
//	Loss = mean(-log_softmax(logits)[targets])
//
// where log_softmax uses the log-sum-exp trick:
//
//	log_softmax(z) = z - (max(z) + log(Σ exp(z - max(z))))
//
// Backward:
//
//	∂L/∂logits = (softmax(logits) - y_one_hot) / batch_size
//
// Assumptions:
//   - Logits shape: [batch_size, num_classes] (2D)
//   - Targets shape: [batch_size] (1D, class indices)
//   - Output: 0-D loss (mean over batch)
type CrossEntropyOp struct {
	logits  *tensor.RawTensor // [batch_size, num_classes]
	targets *tensor.RawTensor // [batch_size]
	output  *tensor.RawTensor
}

// NewCrossEntropyOp creates a new cross-entropy operation.
func NewCrossEntropyOp(logits, targets, output *tensor.RawTensor) *CrossEntropyOp {
	return &CrossEntropyOp{
		logits:  logits,
		targets: targets,
		output:  output,
	}
}

// Inputs returns the input tensors. Targets are not differentiated.
func (op *CrossEntropyOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.logits}
}

// Output returns the output tensor.
func (op *CrossEntropyOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes the gradient with respect to logits, scaled by the
// upstream gradient.
func (op *CrossEntropyOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	shape := op.logits.Shape()
	batchSize, numClasses := shape[0], shape[1]

	grad, err := tensor.NewRaw(shape, op.logits.DType(), op.logits.Device())
	if err != nil {
		panic(err)
	}

	targets := op.targets.Indices()
	scale := outputGrad.ScalarValue()

	switch op.logits.DType() {
	case tensor.Float32:
		crossEntropyGrad(grad.AsFloat32(), op.logits.AsFloat32(), targets, float32(scale), batchSize, numClasses)
	case tensor.Float64:
		crossEntropyGrad(grad.AsFloat64(), op.logits.AsFloat64(), targets, scale, batchSize, numClasses)
	default:
		panic("CrossEntropyOp: backward only supports float32 and float64")
	}

	return []*tensor.RawTensor{grad}
}

func crossEntropyGrad[T float32 | float64](dst, logits []T, targets []int, scale T, batchSize, numClasses int) {
	for b := 0; b < batchSize; b++ {
		row := logits[b*numClasses : (b+1)*numClasses]
		probs := softmax(row)
		for i, p := range probs {
			if i == targets[b] {
				p--
			}
			dst[b*numClasses+i] = scale * p / T(batchSize)
		}
	}
}

// CrossEntropyForward computes the mean cross-entropy of logits against
// integer targets. Panics on malformed shapes or out-of-range targets.
func CrossEntropyForward(logits, targets *tensor.RawTensor, device tensor.Device) *tensor.RawTensor {
	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("CrossEntropyForward: logits must be 2D [batch_size, num_classes], got %v", shape))
	}
	if len(targets.Shape()) != 1 || targets.Shape()[0] != shape[0] {
		panic(fmt.Sprintf("CrossEntropyForward: targets shape %v does not match batch size %d", targets.Shape(), shape[0]))
	}

	batchSize, numClasses := shape[0], shape[1]
	indices := targets.Indices()
	for _, t := range indices {
		if t < 0 || t >= numClasses {
			panic(fmt.Sprintf("CrossEntropyForward: target %d out of range [0, %d)", t, numClasses))
		}
	}

	output, err := tensor.NewRaw(tensor.Shape{}, logits.DType(), device)
	if err != nil {
		panic(err)
	}

	switch logits.DType() {
	case tensor.Float32:
		output.AsFloat32()[0] = nllMean(logits.AsFloat32(), indices, batchSize, numClasses)
	case tensor.Float64:
		output.AsFloat64()[0] = nllMean(logits.AsFloat64(), indices, batchSize, numClasses)
	default:
		panic("CrossEntropyForward: only supports float32 and float64")
	}

	return output
}

func nllMean[T float32 | float64](logits []T, targets []int, batchSize, numClasses int) T {
	var total T
	for b := 0; b < batchSize; b++ {
		row := logits[b*numClasses : (b+1)*numClasses]
		total -= logSoftmax(row)[targets[b]]
	}
	return total / T(batchSize)
}

// logSoftmax computes log-softmax of one row with the log-sum-exp trick.
func logSoftmax[T float32 | float64](row []T) []T {
	maxVal := row[0]
	for _, v := range row[1:] {
		maxVal = max(maxVal, v)
	}

	var sumExp float64
	for _, v := range row {
		sumExp += math.Exp(float64(v - maxVal))
	}
	logSumExp := maxVal + T(math.Log(sumExp))

	out := make([]T, len(row))
	for i, v := range row {
		out[i] = v - logSumExp
	}
	return out
}

// softmax computes softmax of one row, shifted by the max for stability.
func softmax[T float32 | float64](row []T) []T {
	maxVal := row[0]
	for _, v := range row[1:] {
		maxVal = max(maxVal, v)
	}

	out := make([]T, len(row))
	var sum T
	for i, v := range row {
		out[i] = T(math.Exp(float64(v - maxVal)))
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
