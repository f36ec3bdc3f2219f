package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aivclab/neodroidvision/internal/serialization"
	"github.com/aivclab/neodroidvision/internal/tensor"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "centerloss "+version+"\n", out)
}

func TestInspect(t *testing.T) {
	centers, err := tensor.NewRaw(tensor.Shape{3, 2}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "centers.safetensors")
	require.NoError(t, serialization.WriteSafeTensors(path,
		map[string]*tensor.RawTensor{"center_loss.centers": centers},
		map[string]string{"epoch": "3"}))

	out, err := execute(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, "center_loss.centers")
	assert.Contains(t, out, "[3 2]")
	assert.Contains(t, out, "epoch: 3")
}

func TestInspectMissingFile(t *testing.T) {
	_, err := execute(t, "inspect", filepath.Join(t.TempDir(), "nope.safetensors"))
	assert.Error(t, err)
}

func TestTrainRejectsCountPolicy(t *testing.T) {
	_, err := execute(t, "train", "--counts", "bogus")
	assert.Error(t, err)
}

func TestTrainBlobs(t *testing.T) {
	ckpt := filepath.Join(t.TempDir(), "run.safetensors")
	out, err := execute(t, "train",
		"--classes", "3", "--input-dim", "4", "--hidden", "8",
		"--epochs", "1", "--samples", "10", "--batch", "8",
		"--checkpoint", ckpt)
	require.NoError(t, err)
	assert.Contains(t, out, "epochs=1")
	assert.FileExists(t, ckpt)
}
