package nn

import (
	"fmt"

	"github.com/aivclab/neodroidvision/internal/autodiff/ops"
	"github.com/aivclab/neodroidvision/internal/tensor"
)

// CountPolicy selects the per-class divisor of the centers gradient.
type CountPolicy int

const (
	// CountBatch divides each class row by the number of samples of that
	// class in the batch. Classes absent from the batch divide by 1.
	CountBatch CountPolicy = iota

	// CountSmoothed divides by 1 + the number of samples of that class,
	// counting from a base of ones before accumulating the batch.
	CountSmoothed
)

// String returns the policy name.
func (p CountPolicy) String() string {
	switch p {
	case CountBatch:
		return "batch"
	case CountSmoothed:
		return "smoothed"
	default:
		return fmt.Sprintf("CountPolicy(%d)", int(p))
	}
}

// ParseCountPolicy parses a policy name as produced by String.
func ParseCountPolicy(name string) (CountPolicy, error) {
	switch name {
	case "batch", "":
		return CountBatch, nil
	case "smoothed":
		return CountSmoothed, nil
	default:
		return 0, fmt.Errorf("unknown count policy %q (want batch or smoothed)", name)
	}
}

// CenterLossFunc is the differentiable center-loss kernel.
//
// Inputs, in order:
//
//	labels   [batch]               integer class indices
//	features [batch, feat_dim]     float32 or float64
//	centers  [classes, feat_dim]   same dtype as features
//	norm     one element           batch size or 1
//
// Forward:
//
//	loss = Σ_i ||features_i - centers[labels_i]||² / 2 / norm
//
// Backward with upstream gradient g:
//
//	∂/∂features_i = -g · (centers[labels_i] - features_i) / norm
//	∂/∂centers_c  = Σ_{i: labels_i = c} (centers_c - features_i) / count_c / norm
//
// The centers gradient is not scaled by g: the centers learn at their own
// rate regardless of the weight the caller puts on the loss. Rows of
// classes absent from the batch are exactly zero. Labels and norm receive
// no gradient.
type CenterLossFunc struct {
	Counts CountPolicy
}

// Forward computes the loss and saves (features, labels, centers, norm).
func (f *CenterLossFunc) Forward(ctx *ops.FunctionContext, inputs []*tensor.RawTensor, backend tensor.Backend) *tensor.RawTensor {
	labels, features, centers, norm := f.unpack(inputs)

	selected := backend.IndexSelect(centers, 0, labels)
	diff := backend.Sub(features, selected)
	total := backend.Sum(backend.Mul(diff, diff))
	loss := backend.DivScalar(backend.DivScalar(total, 2), norm.ScalarValue())

	ctx.SaveForBackward(features, labels, centers, norm)
	return loss
}

// Backward computes gradients for [labels, features, centers, norm].
func (f *CenterLossFunc) Backward(ctx *ops.FunctionContext, outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	saved := ctx.SavedTensors()
	features, labels, centers, norm := saved[0], saved[1], saved[2], saved[3]
	n := norm.ScalarValue()

	// centers[labels] - features
	diff := backend.Sub(backend.IndexSelect(centers, 0, labels), features)

	g := outputGrad
	if len(g.Shape()) != 0 {
		g = backend.Reshape(g, tensor.Shape{})
	}
	gradFeatures := backend.DivScalar(backend.MulScalar(backend.Mul(diff, g), -1), n)

	counts := f.classCounts(labels, centers, backend)

	index := backend.Expand(backend.Unsqueeze(labels, 1), diff.Shape())
	zeros := tensor.MustNewRaw(centers.Shape(), centers.DType(), centers.Device())
	summed := backend.ScatterAdd(zeros, 0, index, diff)
	gradCenters := backend.DivScalar(backend.Div(summed, backend.Unsqueeze(counts, 1)), n)

	return []*tensor.RawTensor{nil, gradFeatures, gradCenters, nil}
}

// classCounts scatter-adds one per sample into a per-class count vector of
// the centers' dtype, starting from ones (CountSmoothed) or zeros
// (CountBatch, with empty classes raised to 1 afterwards).
func (f *CenterLossFunc) classCounts(labels, centers *tensor.RawTensor, backend tensor.Backend) *tensor.RawTensor {
	numClasses := centers.Shape()[0]
	base := tensor.MustNewRaw(tensor.Shape{numClasses}, centers.DType(), centers.Device())
	if f.Counts == CountSmoothed {
		base.Fill(1)
	}

	ones := tensor.MustNewRaw(labels.Shape(), centers.DType(), centers.Device())
	ones.Fill(1)

	counts := backend.ScatterAdd(base, 0, labels, ones)
	if f.Counts == CountBatch {
		switch counts.DType() {
		case tensor.Float32:
			atLeastOne(counts.AsFloat32())
		case tensor.Float64:
			atLeastOne(counts.AsFloat64())
		}
	}
	return counts
}

func atLeastOne[T float32 | float64](counts []T) {
	for i, c := range counts {
		if c == 0 {
			counts[i] = 1
		}
	}
}

func (f *CenterLossFunc) unpack(inputs []*tensor.RawTensor) (labels, features, centers, norm *tensor.RawTensor) {
	if len(inputs) != 4 {
		panic(fmt.Sprintf("CenterLossFunc: expected 4 inputs (labels, features, centers, norm), got %d", len(inputs)))
	}
	labels, features, centers, norm = inputs[0], inputs[1], inputs[2], inputs[3]

	if !features.DType().IsFloat() || features.DType() != centers.DType() {
		panic(fmt.Sprintf("CenterLossFunc: features (%s) and centers (%s) must share a float dtype", features.DType(), centers.DType()))
	}
	if len(features.Shape()) != 2 || len(centers.Shape()) != 2 {
		panic(fmt.Sprintf("CenterLossFunc: features %v and centers %v must be 2D", features.Shape(), centers.Shape()))
	}
	if len(labels.Shape()) != 1 || labels.Shape()[0] != features.Shape()[0] {
		panic(fmt.Sprintf("CenterLossFunc: labels shape %v does not match batch size %d", labels.Shape(), features.Shape()[0]))
	}
	if norm.NumElements() != 1 {
		panic(fmt.Sprintf("CenterLossFunc: norm must hold one element, got shape %v", norm.Shape()))
	}
	return labels, features, centers, norm
}
