package nn_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aivclab/neodroidvision/internal/autodiff"
	"github.com/aivclab/neodroidvision/internal/backend/cpu"
	"github.com/aivclab/neodroidvision/internal/nn"
	"github.com/aivclab/neodroidvision/internal/tensor"
)

type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func newBackend() Backend {
	b := autodiff.New(cpu.New())
	b.Tape().StartRecording()
	return b
}

func features(t *testing.T, b Backend, data []float32, shape ...int) *tensor.Tensor[float32, Backend] {
	t.Helper()
	x, err := tensor.FromSlice(data, tensor.Shape(shape), b)
	require.NoError(t, err)
	return x
}

func labels(t *testing.T, b Backend, data ...int32) *tensor.Tensor[int32, Backend] {
	t.Helper()
	y, err := tensor.FromSlice(data, tensor.Shape{len(data)}, b)
	require.NoError(t, err)
	return y
}

// newCenterLoss builds a CenterLoss whose centers are set to centers.
func newCenterLoss(b Backend, numClasses, featDim int, sizeAverage bool, centers []float32) *nn.CenterLoss[Backend] {
	cl := nn.NewCenterLossWithConfig(nn.CenterLossConfig{
		NumClasses:  numClasses,
		FeatDim:     featDim,
		SizeAverage: sizeAverage,
		Rand:        rand.New(rand.NewSource(1)), //nolint:gosec // test data
	}, b)
	if centers != nil {
		copy(cl.Centers().Tensor().Data(), centers)
	}
	return cl
}

type lossAndGrads struct {
	loss     float32
	features []float32
	centers  []float32
}

func run(t *testing.T, b Backend, cl *nn.CenterLoss[Backend], y *tensor.Tensor[int32, Backend], x *tensor.Tensor[float32, Backend]) lossAndGrads {
	t.Helper()
	loss, err := cl.Forward(y, x)
	require.NoError(t, err)

	grads := autodiff.Backward(loss, b)
	require.Contains(t, grads, x.Raw())
	require.Contains(t, grads, cl.Centers().Tensor().Raw())

	return lossAndGrads{
		loss:     loss.Item(),
		features: grads[x.Raw()].AsFloat32(),
		centers:  grads[cl.Centers().Tensor().Raw()].AsFloat32(),
	}
}

var testCenters = []float32{
	0, 0, // class 0
	1, 1, // class 1
	2, 2, // class 2
}

func TestCenterLossConstruction(t *testing.T) {
	b := newBackend()
	cl := nn.NewCenterLoss(10, 2, true, b)

	assert.Equal(t, 10, cl.NumClasses())
	assert.Equal(t, 2, cl.FeatDim())
	assert.True(t, cl.SizeAverage())
	assert.Equal(t, nn.CountBatch, cl.CountPolicy())

	params := cl.Parameters()
	require.Len(t, params, 1)
	assert.Equal(t, "centers", params[0].Name())
	assert.Equal(t, tensor.Shape{10, 2}, params[0].Tensor().Shape())

	assert.Panics(t, func() { nn.NewCenterLoss(0, 2, true, b) })
	assert.Panics(t, func() { nn.NewCenterLoss(3, -1, true, b) })
}

func TestCenterLossForwardValue(t *testing.T) {
	b := newBackend()
	x := features(t, b, []float32{1, 0, 1, 3}, 2, 2)
	y := labels(t, b, 0, 1)

	// ||(1,0)||² + ||(0,2)||² = 5
	summed, err := newCenterLoss(b, 3, 2, false, testCenters).Forward(y, x)
	require.NoError(t, err)
	assert.Empty(t, summed.Shape())
	assert.InDelta(t, 2.5, summed.Item(), 1e-6)

	averaged, err := newCenterLoss(b, 3, 2, true, testCenters).Forward(y, x)
	require.NoError(t, err)
	assert.InDelta(t, 1.25, averaged.Item(), 1e-6)
}

func TestCenterLossGradients(t *testing.T) {
	b := newBackend()
	cl := newCenterLoss(b, 3, 2, true, testCenters)
	x := features(t, b, []float32{1, 0, 1, 3}, 2, 2)

	got := run(t, b, cl, labels(t, b, 0, 1), x)

	assert.InDelta(t, 1.25, got.loss, 1e-6)
	assert.InDeltaSlice(t, []float32{0.5, 0, 0, 1}, got.features, 1e-6)
	assert.InDeltaSlice(t, []float32{-0.5, 0, 0, -1, 0, 0}, got.centers, 1e-6)
}

func TestCenterLossZeroAtCenters(t *testing.T) {
	b := newBackend()
	cl := newCenterLoss(b, 3, 2, true, testCenters)
	x := features(t, b, []float32{2, 2, 0, 0, 2, 2}, 3, 2)

	got := run(t, b, cl, labels(t, b, 2, 0, 2), x)

	assert.Zero(t, got.loss)
	assert.Equal(t, make([]float32, 6), got.features)
	assert.Equal(t, make([]float32, 6), got.centers)
}

func TestCenterLossSingleSample(t *testing.T) {
	b := newBackend()
	cl := newCenterLoss(b, 3, 2, true, testCenters)
	x := features(t, b, []float32{-1.5, 4}, 1, 2)

	got := run(t, b, cl, labels(t, b, 1), x)

	// The centers row of the only label mirrors the features row.
	assert.InDeltaSlice(t, []float32{-got.features[0], -got.features[1]}, got.centers[2:4], 1e-6)
	assert.Equal(t, []float32{0, 0, 0, 0}, append(got.centers[:2:2], got.centers[4:]...))
}

func TestCenterLossSumVersusAverage(t *testing.T) {
	const n = 4
	data := []float32{0.5, -1, 2, 0.25, -3, 1, 1, 1}
	ys := []int32{0, 2, 2, 1}

	b := newBackend()
	avg := run(t, b, newCenterLoss(b, 3, 2, true, testCenters), labels(t, b, ys...), features(t, b, data, n, 2))
	b.Tape().Clear()
	sum := run(t, b, newCenterLoss(b, 3, 2, false, testCenters), labels(t, b, ys...), features(t, b, data, n, 2))

	assert.InDelta(t, n*avg.loss, sum.loss, 1e-5)
	for i := range avg.features {
		assert.InDelta(t, n*avg.features[i], sum.features[i], 1e-5)
	}
	for i := range avg.centers {
		assert.InDelta(t, n*avg.centers[i], sum.centers[i], 1e-5)
	}
}

func TestCenterLossSharedLabelAverages(t *testing.T) {
	b := newBackend()
	cl := newCenterLoss(b, 3, 2, false, testCenters)
	x := features(t, b, []float32{1, 0, 3, 0}, 2, 2)

	got := run(t, b, cl, labels(t, b, 0, 0), x)

	// mean((0,0)-(1,0), (0,0)-(3,0)) = (-2, 0)
	assert.InDeltaSlice(t, []float32{-2, 0}, got.centers[:2], 1e-6)
}

func TestCenterLossSmoothedCounts(t *testing.T) {
	b := newBackend()
	cl := nn.NewCenterLossWithConfig(nn.CenterLossConfig{
		NumClasses: 3,
		FeatDim:    2,
		Counts:     nn.CountSmoothed,
	}, b)
	copy(cl.Centers().Tensor().Data(), testCenters)
	assert.Equal(t, "smoothed", cl.CountPolicy().String())

	x := features(t, b, []float32{1, 0, 3, 0, 1, 2}, 3, 2)
	got := run(t, b, cl, labels(t, b, 0, 0, 1), x)

	// Class 0: sum (-4, 0) over 1+2 samples; class 1: (0, -1) over 1+1.
	assert.InDeltaSlice(t, []float32{-4.0 / 3.0, 0, 0, -0.5, 0, 0}, got.centers, 1e-6)
}

func TestCenterLossAbsentClasses(t *testing.T) {
	b := newBackend()
	cl := newCenterLoss(b, 5, 2, true, nil)
	x := features(t, b, []float32{1, 2, 3, 4}, 2, 2)

	got := run(t, b, cl, labels(t, b, 3, 3), x)

	for class := 0; class < 5; class++ {
		row := got.centers[class*2 : class*2+2]
		for _, v := range row {
			assert.False(t, math.IsNaN(float64(v)), "class %d", class)
		}
		if class != 3 {
			assert.Equal(t, []float32{0, 0}, row, "class %d", class)
		}
	}
	assert.NotEqual(t, []float32{0, 0}, got.centers[6:8])
}

func TestCenterLossDimensionMismatch(t *testing.T) {
	b := newBackend()
	cl := nn.NewCenterLoss(3, 4, true, b)
	before := b.Tape().NumOps()

	loss, err := cl.Forward(labels(t, b, 0, 1), features(t, b, make([]float32, 6), 2, 3))
	require.Error(t, err)
	assert.Nil(t, loss)

	var mismatch *nn.DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 4, mismatch.Expected)
	assert.Equal(t, 3, mismatch.Actual)
	assert.True(t, errors.Is(err, nn.ErrDimensionMismatch))
	assert.Contains(t, err.Error(), "4")
	assert.Contains(t, err.Error(), "3")

	assert.Equal(t, before, b.Tape().NumOps(), "nothing computed")
}

func TestCenterLossFlattensLeadingDims(t *testing.T) {
	b := newBackend()
	cl := newCenterLoss(b, 2, 6, true, make([]float32, 12))

	data := []float32{1, 2, 3, 4, 5, 6, 6, 5, 4, 3, 2, 1}
	x := features(t, b, data, 2, 2, 3)

	loss, err := cl.Forward(labels(t, b, 0, 1), x)
	require.NoError(t, err)
	assert.InDelta(t, 45.5, loss.Item(), 1e-5)

	grads := autodiff.Backward(loss, b)
	grad := grads[x.Raw()]
	require.NotNil(t, grad)
	assert.Equal(t, tensor.Shape{2, 2, 3}, grad.Shape())

	// Centers are zero, so the features gradient is x / N.
	for i, v := range grad.AsFloat32() {
		assert.InDelta(t, data[i]/2, v, 1e-6)
	}
}

func TestCenterLossUpstreamWeight(t *testing.T) {
	const lambda = 0.1
	b := newBackend()
	cl := newCenterLoss(b, 3, 2, true, testCenters)
	x := features(t, b, []float32{1, 0, 1, 3}, 2, 2)

	loss, err := cl.Forward(labels(t, b, 0, 1), x)
	require.NoError(t, err)
	grads := autodiff.Backward(loss.MulScalar(lambda), b)

	// Features see the weight; centers keep their own rate.
	assert.InDeltaSlice(t, []float32{0.05, 0, 0, 0.1}, grads[x.Raw()].AsFloat32(), 1e-6)
	assert.InDeltaSlice(t, []float32{-0.5, 0, 0, -1, 0, 0}, grads[cl.Centers().Tensor().Raw()].AsFloat32(), 1e-6)
}

func TestCenterLossLeavesCentersUntouched(t *testing.T) {
	b := newBackend()
	cl := newCenterLoss(b, 3, 2, true, testCenters)

	run(t, b, cl, labels(t, b, 0, 2), features(t, b, []float32{5, 5, -5, -5}, 2, 2))
	assert.Equal(t, testCenters, cl.Centers().Tensor().Data())
}

func TestCenterLossWithoutAutodiff(t *testing.T) {
	b := cpu.New()
	cl := nn.NewCenterLoss(3, 2, true, b)
	copy(cl.Centers().Tensor().Data(), testCenters)

	x, err := tensor.FromSlice([]float32{1, 0, 1, 3}, tensor.Shape{2, 2}, b)
	require.NoError(t, err)
	y, err := tensor.FromSlice([]int32{0, 1}, tensor.Shape{2}, b)
	require.NoError(t, err)

	loss, err := cl.Forward(y, x)
	require.NoError(t, err)
	assert.InDelta(t, 1.25, loss.Item(), 1e-6)
}

func TestCenterLossLabelCountMismatchPanics(t *testing.T) {
	b := newBackend()
	cl := nn.NewCenterLoss(3, 2, true, b)
	assert.Panics(t, func() {
		_, _ = cl.Forward(labels(t, b, 0), features(t, b, []float32{1, 2, 3, 4}, 2, 2))
	})
}

func TestCenterLossFuncFiniteDifference(t *testing.T) {
	const (
		batch   = 5
		classes = 3
		dim     = 4
		eps     = 1e-6
		norm    = batch
	)
	rng := rand.New(rand.NewSource(7)) //nolint:gosec // test data
	inner := cpu.New()

	newRaw := func(shape tensor.Shape, fill func(i int) float64) *tensor.RawTensor {
		r := tensor.MustNewRaw(shape, tensor.Float64, tensor.CPU)
		for i := range r.AsFloat64() {
			r.AsFloat64()[i] = fill(i)
		}
		return r
	}

	x := newRaw(tensor.Shape{batch, dim}, func(int) float64 { return rng.NormFloat64() })
	c := newRaw(tensor.Shape{classes, dim}, func(int) float64 { return rng.NormFloat64() })
	n := newRaw(tensor.Shape{1}, func(int) float64 { return norm })
	y := tensor.MustNewRaw(tensor.Shape{batch}, tensor.Int32, tensor.CPU)
	copy(y.AsInt32(), []int32{0, 2, 2, 1, 0})

	fn := &nn.CenterLossFunc{}
	lossAt := func(x, c *tensor.RawTensor) float64 {
		return autodiff.Apply(fn, inner, y, x, c, n).ScalarValue()
	}

	b := autodiff.New(inner)
	b.Tape().StartRecording()
	out := tensor.New[float64](autodiff.Apply(fn, b, y, x, c, n), b)
	grads := autodiff.Backward(out, b)

	for i := range x.AsFloat64() {
		plus, minus := x.Clone(), x.Clone()
		plus.AsFloat64()[i] += eps
		minus.AsFloat64()[i] -= eps
		numeric := (lossAt(plus, c) - lossAt(minus, c)) / (2 * eps)
		assert.InDelta(t, numeric, grads[x].AsFloat64()[i], 1e-5, "features[%d]", i)
	}

	// With one sample per class (CountBatch) the centers gradient is the
	// exact derivative of the loss times the class count: check class 1.
	for j := 0; j < dim; j++ {
		i := 1*dim + j
		plus, minus := c.Clone(), c.Clone()
		plus.AsFloat64()[i] += eps
		minus.AsFloat64()[i] -= eps
		numeric := (lossAt(x, plus) - lossAt(x, minus)) / (2 * eps)
		assert.InDelta(t, numeric, grads[c].AsFloat64()[i], 1e-5, "centers[1][%d]", j)
	}
}

func TestDistancesAndNearestCenter(t *testing.T) {
	b := newBackend()
	cl := newCenterLoss(b, 3, 2, true, testCenters)
	x := features(t, b, []float32{0.1, 0, 1.9, 2.2, 1, 0.8}, 3, 2)

	d, err := cl.Distances(labels(t, b, 0, 0, 1), x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.01, 1.9*1.9 + 2.2*2.2, 0.04}, d, 1e-5)

	nearest, err := cl.NearestCenter(x)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 2, 1}, nearest)

	_, err = cl.NearestCenter(features(t, b, make([]float32, 3), 1, 3))
	assert.ErrorIs(t, err, nn.ErrDimensionMismatch)

	assert.Equal(t, 0, b.Tape().NumOps())
}

func TestCenterLossStateDict(t *testing.T) {
	b := newBackend()
	src := newCenterLoss(b, 3, 2, true, testCenters)
	dst := nn.NewCenterLoss(3, 2, true, b)

	require.NoError(t, dst.LoadStateDict(src.StateDict()))
	assert.Equal(t, testCenters, dst.Centers().Tensor().Data())
	assert.NotSame(t, src.Centers().Tensor().Raw(), dst.Centers().Tensor().Raw())

	assert.Error(t, dst.LoadStateDict(map[string]*tensor.RawTensor{}))
	wrong := nn.NewCenterLoss(4, 2, true, b)
	assert.Error(t, wrong.LoadStateDict(src.StateDict()))
}

func TestParseCountPolicy(t *testing.T) {
	for _, p := range []nn.CountPolicy{nn.CountBatch, nn.CountSmoothed} {
		got, err := nn.ParseCountPolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	_, err := nn.ParseCountPolicy("median")
	assert.Error(t, err)
}
