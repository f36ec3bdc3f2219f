package optim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aivclab/neodroidvision/internal/autodiff"
	"github.com/aivclab/neodroidvision/internal/backend/cpu"
	"github.com/aivclab/neodroidvision/internal/nn"
	"github.com/aivclab/neodroidvision/internal/optim"
	"github.com/aivclab/neodroidvision/internal/tensor"
)

type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func newBackend() Backend {
	return autodiff.New(cpu.New())
}

func param(t *testing.T, b Backend, name string, data ...float32) *nn.Parameter[Backend] {
	t.Helper()
	x, err := tensor.FromSlice(data, tensor.Shape{len(data)}, b)
	require.NoError(t, err)
	return nn.NewParameter(name, x)
}

func grad(p *nn.Parameter[Backend], data ...float32) map[*tensor.RawTensor]*tensor.RawTensor {
	g := tensor.MustNewRaw(p.Tensor().Shape(), tensor.Float32, tensor.CPU)
	copy(g.AsFloat32(), data)
	return map[*tensor.RawTensor]*tensor.RawTensor{p.Tensor().Raw(): g}
}

func TestSGDStep(t *testing.T) {
	b := newBackend()
	p := param(t, b, "w", 1, 2)
	opt := optim.NewSGD([]*nn.Parameter[Backend]{p}, optim.SGDConfig{LR: 0.5}, b)

	opt.Step(grad(p, 1, -2))
	assert.Equal(t, []float32{0.5, 3}, p.Tensor().Data())

	// Parameters without a gradient are left alone.
	opt.Step(map[*tensor.RawTensor]*tensor.RawTensor{})
	assert.Equal(t, []float32{0.5, 3}, p.Tensor().Data())
	assert.Empty(t, opt.StateDict())
}

func TestSGDMomentum(t *testing.T) {
	b := newBackend()
	p := param(t, b, "w", 0)
	opt := optim.NewSGD([]*nn.Parameter[Backend]{p}, optim.SGDConfig{LR: 1, Momentum: 0.5}, b)

	opt.Step(grad(p, 1)) // v = 1
	opt.Step(grad(p, 1)) // v = 1.5
	assert.InDelta(t, -2.5, p.Tensor().Data()[0], 1e-6)

	state := opt.StateDict()
	require.Contains(t, state, "velocity.0")
	assert.InDelta(t, 1.5, state["velocity.0"].AsFloat32()[0], 1e-6)

	restored := optim.NewSGD([]*nn.Parameter[Backend]{p}, optim.SGDConfig{LR: 1, Momentum: 0.5}, b)
	require.NoError(t, restored.LoadStateDict(state))
	restored.Step(grad(p, 0)) // v = 0.75
	assert.InDelta(t, -3.25, p.Tensor().Data()[0], 1e-6)
}

func TestSGDShapeMismatchPanics(t *testing.T) {
	b := newBackend()
	p := param(t, b, "w", 1, 2)
	opt := optim.NewSGD([]*nn.Parameter[Backend]{p}, optim.SGDConfig{}, b)
	assert.InDelta(t, 0.01, opt.GetLR(), 1e-9)

	wrong := tensor.MustNewRaw(tensor.Shape{3}, tensor.Float32, tensor.CPU)
	assert.Panics(t, func() {
		opt.Step(map[*tensor.RawTensor]*tensor.RawTensor{p.Tensor().Raw(): wrong})
	})
}

func TestAdamStep(t *testing.T) {
	b := newBackend()
	p := param(t, b, "w", 1, -1)
	opt := optim.NewAdam([]*nn.Parameter[Backend]{p}, optim.AdamConfig{LR: 0.1}, b)

	// The first bias-corrected step moves each weight by lr against the
	// gradient's sign.
	opt.Step(grad(p, 3, -0.01))
	assert.InDelta(t, 0.9, p.Tensor().Data()[0], 1e-5)
	assert.InDelta(t, -0.9, p.Tensor().Data()[1], 1e-4)
	assert.Equal(t, 1, opt.GetTimestep())

	state := opt.StateDict()
	assert.Equal(t, int64(1), state["step"].AsInt64()[0])

	restored := optim.NewAdam([]*nn.Parameter[Backend]{p}, optim.AdamConfig{LR: 0.1}, b)
	require.NoError(t, restored.LoadStateDict(state))
	assert.Equal(t, 1, restored.GetTimestep())

	bad := map[string]*tensor.RawTensor{"m.0": tensor.MustNewRaw(tensor.Shape{5}, tensor.Float32, tensor.CPU)}
	assert.Error(t, restored.LoadStateDict(bad))
}

// TestSGDMovesCentersToClassMeans trains only the centers of a CenterLoss
// on fixed features and checks that each present center converges to the
// mean of its class while absent centers stay put.
func TestSGDMovesCentersToClassMeans(t *testing.T) {
	b := newBackend()
	cl := nn.NewCenterLoss(3, 2, true, b)
	initial := append([]float32(nil), cl.Centers().Tensor().Data()...)

	x, err := tensor.FromSlice([]float32{1, 1, 3, 1, -2, 4, -2, 6}, tensor.Shape{4, 2}, b)
	require.NoError(t, err)
	y, err := tensor.FromSlice([]int32{0, 0, 2, 2}, tensor.Shape{4}, b)
	require.NoError(t, err)

	opt := optim.NewSGD(cl.Parameters(), optim.SGDConfig{LR: 0.5}, b)
	tape := b.Tape()

	var first, last float32
	for step := 0; step < 200; step++ {
		tape.StartRecording()
		loss, err := cl.Forward(y, x)
		require.NoError(t, err)
		grads := autodiff.Backward(loss, b)
		opt.Step(grads)
		tape.StopRecording()
		tape.Clear()

		if step == 0 {
			first = loss.Item()
		}
		last = loss.Item()
	}

	centers := cl.Centers().Tensor().Data()
	assert.InDeltaSlice(t, []float32{2, 1}, centers[0:2], 1e-3)
	assert.InDeltaSlice(t, []float32{-2, 5}, centers[4:6], 1e-3)
	assert.Equal(t, initial[2:4], centers[2:4])
	assert.Less(t, last, first)
}
