package nn

import (
	"fmt"
	"math/rand"

	"github.com/ajroetker/go-highway/hwy/contrib/vec"

	"github.com/aivclab/neodroidvision/internal/autodiff"
	"github.com/aivclab/neodroidvision/internal/tensor"
)

// CenterLossConfig configures a CenterLoss.
type CenterLossConfig struct {
	NumClasses  int         // number of classes (rows of the centers matrix)
	FeatDim     int         // feature dimension (columns of the centers matrix)
	SizeAverage bool        // divide by batch size instead of summing
	Counts      CountPolicy // per-class divisor of the centers gradient (default: CountBatch)
	Rand        *rand.Rand  // source for the N(0, 1) center initialization (nil: global source)
}

// CenterLoss learns one center per class and penalizes the squared
// distance between each feature and its class center:
//
//	loss = Σ_i ||x_i - c_{y_i}||² / 2 / norm
//
// where norm is the batch size when size-averaged and 1 otherwise.
//
// The centers are a Parameter named "centers", updated by an optimizer
// like any other weight. Typical use pairs it with a softmax classifier:
//
//	centerLoss := nn.NewCenterLoss(10, 2, true, backend)
//	ce := nn.NewCrossEntropyLoss(backend)
//
//	features := embed.Forward(x)
//	cl, err := centerLoss.Forward(labels, features)
//	total := ce.Forward(head.Forward(features), labels).Add(cl.MulScalar(lambda))
type CenterLoss[B tensor.Backend] struct {
	numClasses  int
	featDim     int
	sizeAverage bool
	fn          *CenterLossFunc
	centers     *Parameter[B] // [num_classes, feat_dim]
	backend     B
}

// NewCenterLoss creates a CenterLoss with centers drawn from N(0, 1).
func NewCenterLoss[B tensor.Backend](numClasses, featDim int, sizeAverage bool, backend B) *CenterLoss[B] {
	return NewCenterLossWithConfig(CenterLossConfig{
		NumClasses:  numClasses,
		FeatDim:     featDim,
		SizeAverage: sizeAverage,
	}, backend)
}

// NewCenterLossWithConfig creates a CenterLoss from cfg.
// Panics if NumClasses or FeatDim is not positive.
func NewCenterLossWithConfig[B tensor.Backend](cfg CenterLossConfig, backend B) *CenterLoss[B] {
	if cfg.NumClasses <= 0 || cfg.FeatDim <= 0 {
		panic(fmt.Sprintf("NewCenterLoss: num_classes (%d) and feat_dim (%d) must be positive", cfg.NumClasses, cfg.FeatDim))
	}

	centers := Randn(cfg.Rand, tensor.Shape{cfg.NumClasses, cfg.FeatDim}, backend)

	return &CenterLoss[B]{
		numClasses:  cfg.NumClasses,
		featDim:     cfg.FeatDim,
		sizeAverage: cfg.SizeAverage,
		fn:          &CenterLossFunc{Counts: cfg.Counts},
		centers:     NewParameter("centers", centers),
		backend:     backend,
	}
}

// Forward computes the center loss of features against their labels.
//
// features has shape [batch, d1, d2, ...] and is flattened to
// [batch, d1*d2*...]; the flattened width must equal the configured
// feature dimension, otherwise a *DimensionMismatchError is returned
// before any computation. labels has shape [batch] with values in
// [0, num_classes).
//
// On an autodiff backend the loss is recorded on the tape, and the
// backward pass produces gradients for features (in their original shape)
// and for the centers.
func (c *CenterLoss[B]) Forward(
	labels *tensor.Tensor[int32, B],
	features *tensor.Tensor[float32, B],
) (*tensor.Tensor[float32, B], error) {
	shape := features.Shape()
	if len(shape) == 0 {
		return nil, &DimensionMismatchError{Expected: c.featDim, Actual: 0}
	}

	flat := shape.Flatten2D()
	if flat[1] != c.featDim {
		return nil, &DimensionMismatchError{Expected: c.featDim, Actual: flat[1]}
	}

	batchSize := flat[0]
	if len(labels.Shape()) != 1 || labels.Shape()[0] != batchSize {
		panic(fmt.Sprintf("CenterLoss.Forward: labels shape %v does not match batch size %d", labels.Shape(), batchSize))
	}

	x := features
	if !shape.Equal(flat) {
		x = features.Reshape(flat...)
	}

	norm := tensor.Full[float32](tensor.Shape{1}, float32(c.normalization(batchSize)), c.backend)

	out := autodiff.Apply(c.fn, c.backend, labels.Raw(), x.Raw(), c.centers.Tensor().Raw(), norm.Raw())
	return tensor.New[float32, B](out, c.backend), nil
}

// normalization is the batch size when size-averaged, 1 otherwise.
// An empty batch normalizes by 1.
func (c *CenterLoss[B]) normalization(batchSize int) int {
	if c.sizeAverage && batchSize > 0 {
		return batchSize
	}
	return 1
}

// Parameters returns [centers].
func (c *CenterLoss[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{c.centers}
}

// Centers returns the centers parameter.
func (c *CenterLoss[B]) Centers() *Parameter[B] {
	return c.centers
}

// NumClasses returns the number of classes.
func (c *CenterLoss[B]) NumClasses() int {
	return c.numClasses
}

// FeatDim returns the feature dimension.
func (c *CenterLoss[B]) FeatDim() int {
	return c.featDim
}

// SizeAverage reports whether the loss is averaged over the batch.
func (c *CenterLoss[B]) SizeAverage() bool {
	return c.sizeAverage
}

// CountPolicy returns the per-class divisor policy of the centers gradient.
func (c *CenterLoss[B]) CountPolicy() CountPolicy {
	return c.fn.Counts
}

// StateDict returns {"centers": centers}.
func (c *CenterLoss[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"centers": c.centers.Tensor().Raw(),
	}
}

// LoadStateDict copies "centers" into the existing centers tensor.
func (c *CenterLoss[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	raw, ok := stateDict["centers"]
	if !ok {
		return fmt.Errorf("missing centers in state dict")
	}
	return c.centers.load(raw)
}

// Distances returns ||x_i - c_{y_i}||² for every sample. Nothing is
// recorded on the tape.
func (c *CenterLoss[B]) Distances(
	labels *tensor.Tensor[int32, B],
	features *tensor.Tensor[float32, B],
) ([]float32, error) {
	rows, err := c.rows(features)
	if err != nil {
		return nil, err
	}

	centers := c.centers.Tensor().Data()
	labelData := labels.Data()
	if len(labelData) != len(rows) {
		panic(fmt.Sprintf("CenterLoss.Distances: %d labels for %d samples", len(labelData), len(rows)))
	}

	out := make([]float32, len(rows))
	for i, row := range rows {
		y := int(labelData[i])
		if y < 0 || y >= c.numClasses {
			panic(fmt.Sprintf("CenterLoss.Distances: label %d out of range [0, %d)", y, c.numClasses))
		}
		out[i] = vec.BaseL2SquaredDistance(row, centers[y*c.featDim:(y+1)*c.featDim])
	}
	return out, nil
}

// NearestCenter classifies each sample by its closest center.
func (c *CenterLoss[B]) NearestCenter(features *tensor.Tensor[float32, B]) ([]int32, error) {
	rows, err := c.rows(features)
	if err != nil {
		return nil, err
	}

	centers := c.centers.Tensor().Data()
	out := make([]int32, len(rows))
	for i, row := range rows {
		best := float32(0)
		for k := 0; k < c.numClasses; k++ {
			d := vec.BaseL2SquaredDistance(row, centers[k*c.featDim:(k+1)*c.featDim])
			if k == 0 || d < best {
				best, out[i] = d, int32(k)
			}
		}
	}
	return out, nil
}

// rows splits features into per-sample slices of width featDim.
func (c *CenterLoss[B]) rows(features *tensor.Tensor[float32, B]) ([][]float32, error) {
	shape := features.Shape()
	if len(shape) == 0 {
		return nil, &DimensionMismatchError{Expected: c.featDim, Actual: 0}
	}
	flat := shape.Flatten2D()
	if flat[1] != c.featDim {
		return nil, &DimensionMismatchError{Expected: c.featDim, Actual: flat[1]}
	}

	data := features.Data()
	rows := make([][]float32, flat[0])
	for i := range rows {
		rows[i] = data[i*c.featDim : (i+1)*c.featDim]
	}
	return rows, nil
}
