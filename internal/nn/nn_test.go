package nn_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aivclab/neodroidvision/internal/autodiff"
	"github.com/aivclab/neodroidvision/internal/backend/cpu"
	"github.com/aivclab/neodroidvision/internal/nn"
	"github.com/aivclab/neodroidvision/internal/tensor"
)

func TestLinearForward(t *testing.T) {
	b := newBackend()
	layer := nn.NewLinear(3, 2, b)
	copy(layer.Weight().Tensor().Data(), []float32{1, 0, -1, 0.5, 0.5, 0.5})
	copy(layer.Bias().Tensor().Data(), []float32{1, -1})

	out := layer.Forward(features(t, b, []float32{1, 2, 3, 0, 0, 0}, 2, 3))
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.InDeltaSlice(t, []float32{-1, 2, 1, -1}, out.Data(), 1e-6)

	assert.Equal(t, 3, layer.InFeatures())
	assert.Equal(t, 2, layer.OutFeatures())
	assert.Panics(t, func() { layer.Forward(features(t, b, []float32{1, 2}, 1, 2)) })
}

func TestLinearBackward(t *testing.T) {
	b := newBackend()
	layer := nn.NewLinear(2, 1, b)
	copy(layer.Weight().Tensor().Data(), []float32{2, -1})

	x := features(t, b, []float32{1, 2, 3, 4}, 2, 2)
	grads := autodiff.Backward(layer.Forward(x).Sum(), b)

	nn.CollectGrads(layer.Parameters(), grads)
	assert.Equal(t, []float32{4, 6}, layer.Weight().Grad().Data())
	assert.Equal(t, []float32{2}, layer.Bias().Grad().Data())
	assert.Equal(t, []float32{2, -1, 2, -1}, grads[x.Raw()].AsFloat32())
}

func TestXavierBoundsAndSeed(t *testing.T) {
	b := cpu.New()
	w := nn.Xavier(rand.New(rand.NewSource(3)), 4, 2, tensor.Shape{2, 4}, b) //nolint:gosec // test data
	again := nn.Xavier(rand.New(rand.NewSource(3)), 4, 2, tensor.Shape{2, 4}, b) //nolint:gosec // test data

	assert.Equal(t, w.Data(), again.Data())
	for _, v := range w.Data() {
		assert.LessOrEqual(t, v, float32(1))
		assert.GreaterOrEqual(t, v, float32(-1))
	}
}

func TestSequentialStateDict(t *testing.T) {
	b := newBackend()
	rng := rand.New(rand.NewSource(5)) //nolint:gosec // test data
	build := func() *nn.Sequential[Backend] {
		return nn.NewSequential[Backend](
			nn.NewLinearFrom(rng, 4, 3, b),
			nn.NewReLU[Backend](),
			nn.NewLinearFrom(rng, 3, 2, b),
		)
	}
	src, dst := build(), build()

	state := src.StateDict()
	assert.Len(t, state, 4)
	assert.Contains(t, state, "0.weight")
	assert.Contains(t, state, "2.bias")
	assert.Len(t, src.Parameters(), 4)
	assert.Equal(t, 3, src.Len())

	require.NoError(t, dst.LoadStateDict(state))
	x := features(t, b, []float32{1, -1, 0.5, 2}, 1, 4)
	assert.Equal(t, src.Forward(x).Data(), dst.Forward(x).Data())

	delete(state, "2.weight")
	assert.Error(t, dst.LoadStateDict(state))
}

func TestCrossEntropyLoss(t *testing.T) {
	logits := []float32{2, 0, 0, 2}
	targets := []int32{0, 0}

	ad := newBackend()
	recorded := nn.NewCrossEntropyLoss(ad).Forward(features(t, ad, logits, 2, 2), labels(t, ad, targets...))

	plain := cpu.New()
	lx, err := tensor.FromSlice(logits, tensor.Shape{2, 2}, plain)
	require.NoError(t, err)
	ly, err := tensor.FromSlice(targets, tensor.Shape{2}, plain)
	require.NoError(t, err)
	unrecorded := nn.NewCrossEntropyLoss(plain).Forward(lx, ly)

	assert.InDelta(t, 1.1269, recorded.Item(), 1e-4)
	assert.InDelta(t, recorded.Item(), unrecorded.Item(), 1e-6)
	assert.Equal(t, 1, ad.Tape().NumOps())

	assert.InDelta(t, 0.5, nn.Accuracy(lx, ly), 1e-6)
}
