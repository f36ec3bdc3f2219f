package nn_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aivclab/neodroidvision/internal/nn"
	"github.com/aivclab/neodroidvision/internal/tensor"
)

// stepCounter is a minimal OptimizerState.
type stepCounter struct {
	lr    float32
	steps *tensor.RawTensor
}

func newStepCounter(lr float32, steps int64) *stepCounter {
	raw := tensor.MustNewRaw(tensor.Shape{}, tensor.Int64, tensor.CPU)
	raw.AsInt64()[0] = steps
	return &stepCounter{lr: lr, steps: raw}
}

func (s *stepCounter) GetLR() float32 { return s.lr }

func (s *stepCounter) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{"step": s.steps}
}

func (s *stepCounter) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	raw, ok := stateDict["step"]
	if !ok {
		return assert.AnError
	}
	s.steps = raw
	return nil
}

func TestCheckpointRoundTrip(t *testing.T) {
	b := newBackend()
	path := filepath.Join(t.TempDir(), "ckpt.safetensors")

	head := nn.NewLinear(2, 3, b)
	centers := nn.NewCenterLoss(3, 2, true, b)
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	ckpt := &nn.Checkpoint{
		Model:      nn.Group{"head": head, "center_loss": centers},
		Optimizers: map[string]nn.OptimizerState{"centers": newStepCounter(0.5, 42)},
		Epoch:      3,
		Step:       120,
		Loss:       0.75,
		Metadata:   map[string]string{"run": "blobs"},
		CreatedAt:  created,
	}
	require.NoError(t, ckpt.Save(path))

	head2 := nn.NewLinear(2, 3, b)
	centers2 := nn.NewCenterLoss(3, 2, true, b)
	opt2 := newStepCounter(0, 0)

	loaded, err := nn.LoadCheckpoint(path, b, nn.Group{"head": head2, "center_loss": centers2},
		map[string]nn.OptimizerState{"centers": opt2})
	require.NoError(t, err)

	assert.Equal(t, centers.Centers().Tensor().Data(), centers2.Centers().Tensor().Data())
	assert.Equal(t, head.Weight().Tensor().Data(), head2.Weight().Tensor().Data())
	assert.Equal(t, int64(42), opt2.steps.AsInt64()[0])

	assert.Equal(t, 3, loaded.Epoch)
	assert.Equal(t, int64(120), loaded.Step)
	assert.InDelta(t, 0.75, loaded.Loss, 1e-12)
	assert.True(t, created.Equal(loaded.CreatedAt))
	assert.Equal(t, "blobs", loaded.Metadata["run"])
	assert.Equal(t, "0.5", loaded.Metadata["optimizer.centers.lr"])
}

func TestLoadCheckpointRejectsMismatch(t *testing.T) {
	b := newBackend()
	path := filepath.Join(t.TempDir(), "ckpt.safetensors")

	require.NoError(t, (&nn.Checkpoint{Model: nn.NewCenterLoss(3, 2, true, b)}).Save(path))

	_, err := nn.LoadCheckpoint(path, b, nn.NewCenterLoss(4, 2, true, b), nil)
	assert.Error(t, err)

	_, err = nn.LoadCheckpoint(filepath.Join(t.TempDir(), "missing.safetensors"), b, nn.NewCenterLoss(3, 2, true, b), nil)
	assert.Error(t, err)
}
