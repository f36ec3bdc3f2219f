package autodiff

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aivclab/neodroidvision/internal/autodiff/ops"
	"github.com/aivclab/neodroidvision/internal/backend/cpu"
	"github.com/aivclab/neodroidvision/internal/tensor"
)

func TestTapeAccumulatesSharedInputs(t *testing.T) {
	backend := cpu.New()
	tape := NewGradientTape()
	tape.StartRecording()

	x := tensor.MustNewRaw(tensor.Shape{2}, tensor.Float32, tensor.CPU)
	copy(x.AsFloat32(), []float32{1, 2})

	// y = x + x; z = y * x  ->  dz/dx = 2x + y = 4x
	y := backend.Add(x, x)
	tape.Record(ops.NewAddOp(x, x, y))
	z := backend.Mul(y, x)
	tape.Record(ops.NewMulOp(y, x, z))

	seed := tensor.MustNewRaw(tensor.Shape{2}, tensor.Float32, tensor.CPU)
	seed.Fill(1)

	grads := tape.Backward(seed, backend)
	assert.Equal(t, []float32{4, 8}, grads[x].AsFloat32())
	assert.True(t, tape.IsRecording(), "recording state is restored")
}

func TestTapeIgnoresRecordWhenStopped(t *testing.T) {
	tape := NewGradientTape()
	x := tensor.MustNewRaw(tensor.Shape{1}, tensor.Float32, tensor.CPU)

	tape.Record(ops.NewReLUOp(x, x))
	assert.Equal(t, 0, tape.NumOps())

	assert.Empty(t, tape.Backward(x, cpu.New()))
}
