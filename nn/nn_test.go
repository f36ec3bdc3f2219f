package nn_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aivclab/neodroidvision/autodiff"
	"github.com/aivclab/neodroidvision/backend/cpu"
	"github.com/aivclab/neodroidvision/nn"
	"github.com/aivclab/neodroidvision/optim"
	"github.com/aivclab/neodroidvision/tensor"
)

func TestCenterLossPublicAPI(t *testing.T) {
	backend := autodiff.New(cpu.New())
	centerLoss := nn.NewCenterLoss(3, 2, true, backend)
	require.Len(t, centerLoss.Parameters(), 1)

	// Place the features exactly on their centers.
	centers := append([]float32(nil), centerLoss.Centers().Tensor().Data()...)
	feats, err := tensor.FromSlice([]float32{centers[0], centers[1], centers[4], centers[5]}, tensor.Shape{2, 2}, backend)
	require.NoError(t, err)
	labels, err := tensor.FromSlice([]int32{0, 2}, tensor.Shape{2}, backend)
	require.NoError(t, err)

	backend.Tape().StartRecording()
	loss, err := centerLoss.Forward(labels, feats)
	require.NoError(t, err)
	assert.InDelta(t, 0, loss.Data()[0], 1e-6)

	grads := autodiff.Backward(loss, backend)
	nn.CollectGrads(centerLoss.Parameters(), grads)
	opt := optim.NewSGD(centerLoss.Parameters(), optim.SGDConfig{LR: 0.5}, backend)
	opt.Step(grads)
	assert.Equal(t, centers, centerLoss.Centers().Tensor().Data())
}

func TestDimensionMismatchPublicAPI(t *testing.T) {
	backend := autodiff.New(cpu.New())
	centerLoss := nn.NewCenterLoss(3, 4, false, backend)
	feats := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
	labels := tensor.Zeros[int32](tensor.Shape{2}, backend)

	_, err := centerLoss.Forward(labels, feats)
	require.ErrorIs(t, err, nn.ErrDimensionMismatch)

	var dimErr *nn.DimensionMismatchError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 4, dimErr.Expected)
	assert.Equal(t, 3, dimErr.Actual)
}
