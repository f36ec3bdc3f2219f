package train

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aivclab/neodroidvision/internal/nn"
)

func smallConfig() Config {
	return Config{
		Classes:         3,
		InputDim:        4,
		Hidden:          16,
		FeatDim:         2,
		Epochs:          6,
		BatchSize:       16,
		LR:              0.01,
		Alpha:           0.5,
		Lambda:          0.1,
		Seed:            11,
		SizeAverage:     true,
		SamplesPerClass: 40,
	}
}

func TestConfigDefaultsAndValidation(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10, cfg.Classes)
	assert.Equal(t, 2, cfg.FeatDim)
	assert.True(t, cfg.SizeAverage)
	require.NoError(t, cfg.Validate())

	bad := []Config{
		{Classes: 1},
		{FeatDim: -2},
		{BatchSize: -1},
		{Lambda: -0.1},
		{ValFraction: 1},
	}
	for _, c := range bad {
		assert.Error(t, c.Validate(), "%+v", c)
	}

	_, err := New(Config{Classes: 1}, nil)
	assert.Error(t, err)
}

func TestLoadDataBlobs(t *testing.T) {
	cfg := smallConfig()
	train, val, err := LoadData(&cfg)
	require.NoError(t, err)

	assert.Equal(t, 96, train.Len())
	assert.Equal(t, 24, val.Len())
	assert.Equal(t, 4, train.Dim())
}

func TestLoadDataCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("label,a,b,c\n0,1,2,3\n1,3,2,1\n2,0,0,0\n1,1,1,1\n0,2,2,2\n"), 0o600))

	cfg := Config{Data: path}
	train, val, err := LoadData(&cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.InputDim)
	assert.Equal(t, 3, cfg.Classes)
	assert.Equal(t, 4, train.Len())
	assert.Equal(t, 1, val.Len())

	wrong := Config{Data: path, InputDim: 5}
	_, _, err = LoadData(&wrong)
	assert.ErrorContains(t, err, "data has 3 features")

	few := Config{Data: path, Classes: 2}
	_, _, err = LoadData(&few)
	assert.ErrorContains(t, err, "3 classes")
}

func TestRunReducesLoss(t *testing.T) {
	cfg := smallConfig()
	cfg.Checkpoint = filepath.Join(t.TempDir(), "run.safetensors")

	train, val, err := LoadData(&cfg)
	require.NoError(t, err)
	trainer, err := New(cfg, nil)
	require.NoError(t, err)

	history, err := trainer.Run(context.Background(), train, val)
	require.NoError(t, err)
	require.Len(t, history, cfg.Epochs)

	first, last := history[0], history[len(history)-1]
	assert.Less(t, last.Loss, first.Loss)
	assert.Greater(t, last.Validation.Accuracy, float32(1.0/3.0))
	assert.Equal(t, int64(cfg.Epochs*6), trainer.Steps())

	assert.FileExists(t, cfg.Checkpoint)

	// A fresh trainer restored from the checkpoint embeds identically.
	restored, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, restored.Load(cfg.Checkpoint))
	assert.Equal(t, trainer.Steps(), restored.Steps())

	batches, err := val.Batches(len(val.Labels), nil)
	require.NoError(t, err)
	a, err := trainer.Features(batches[0].Inputs, batches[0].Size())
	require.NoError(t, err)
	b, err := restored.Features(batches[0].Inputs, batches[0].Size())
	require.NoError(t, err)
	assert.Equal(t, a.Data(), b.Data())
	assert.Equal(t, trainer.CenterLoss().Centers().Tensor().Data(), restored.CenterLoss().Centers().Tensor().Data())
}

func TestRunHonoursCancellation(t *testing.T) {
	cfg := smallConfig()
	train, val, err := LoadData(&cfg)
	require.NoError(t, err)
	trainer, err := New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	history, err := trainer.Run(ctx, train, val)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, history)
	assert.Zero(t, trainer.Steps())
}

func TestStepWithSmoothedCounts(t *testing.T) {
	cfg := smallConfig()
	cfg.Counts = nn.CountSmoothed
	train, _, err := LoadData(&cfg)
	require.NoError(t, err)

	trainer, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, nn.CountSmoothed, trainer.CenterLoss().CountPolicy())

	batches, err := train.Batches(cfg.BatchSize, nil)
	require.NoError(t, err)

	before := append([]float32(nil), trainer.CenterLoss().Centers().Tensor().Data()...)
	res, err := trainer.Step(batches[0])
	require.NoError(t, err)

	assert.InDelta(t, res.CrossEntropy+cfg.Lambda*res.CenterLoss, res.Loss, 1e-5)
	assert.NotEqual(t, before, trainer.CenterLoss().Centers().Tensor().Data())
	assert.NotNil(t, trainer.CenterLoss().Centers().Grad())
}
