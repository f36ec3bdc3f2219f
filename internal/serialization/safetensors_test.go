package serialization

import (
	"bytes"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aivclab/neodroidvision/internal/backend/cpu"
	"github.com/aivclab/neodroidvision/internal/tensor"
)

func sampleStateDict(t *testing.T) map[string]*tensor.RawTensor {
	t.Helper()
	device := cpu.New().Device()

	centers, err := tensor.NewRaw(tensor.Shape{3, 2}, tensor.Float32, device)
	require.NoError(t, err)
	for i := range centers.AsFloat32() {
		centers.AsFloat32()[i] = float32(i) - 2.5
	}

	counts, err := tensor.NewRaw(tensor.Shape{3}, tensor.Int64, device)
	require.NoError(t, err)
	copy(counts.AsInt64(), []int64{4, 0, 7})

	return map[string]*tensor.RawTensor{
		"centers": centers,
		"counts":  counts,
	}
}

func TestSafeTensors_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.safetensors")
	state := sampleStateDict(t)

	require.NoError(t, WriteSafeTensors(path, state, map[string]string{"num_classes": "3"}))

	loaded, meta, err := ReadSafeTensors(path, cpu.New())
	require.NoError(t, err)

	assert.Equal(t, "3", meta["num_classes"])
	assert.NotEmpty(t, meta[ChecksumKey])
	require.Len(t, loaded, 2)

	assert.Equal(t, tensor.Shape{3, 2}, loaded["centers"].Shape())
	assert.Equal(t, tensor.Float32, loaded["centers"].DType())
	assert.Equal(t, state["centers"].AsFloat32(), loaded["centers"].AsFloat32())

	assert.Equal(t, tensor.Int64, loaded["counts"].DType())
	assert.Equal(t, []int64{4, 0, 7}, loaded["counts"].AsInt64())
}

func TestSafeTensors_HeaderLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSafeTensorsTo(&buf, sampleStateDict(t), nil))

	headerSize := binary.LittleEndian.Uint64(buf.Bytes()[:8])
	header := buf.Bytes()[8 : 8+headerSize]

	// Alphabetical layout: centers (24 bytes) then counts (24 bytes).
	assert.Contains(t, string(header), `"centers":{"dtype":"F32","shape":[3,2],"data_offsets":[0,24]}`)
	assert.Contains(t, string(header), `"counts":{"dtype":"I64","shape":[3],"data_offsets":[24,48]}`)
	assert.Equal(t, 8+int(headerSize)+48, buf.Len())
}

func TestSafeTensors_ChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSafeTensorsTo(&buf, sampleStateDict(t), nil))

	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xFF

	_, _, err := ReadSafeTensorsFrom(bytes.NewReader(corrupted), cpu.New())
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestSafeTensors_RejectsInvalidName(t *testing.T) {
	state := sampleStateDict(t)
	state["../escape"] = state["centers"]

	var buf bytes.Buffer
	err := WriteSafeTensorsTo(&buf, state, nil)

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "invalid_name", vErr.Type)
	assert.ErrorIs(t, err, ErrInvalidTensorName)
}

func TestSafeTensors_HeaderTooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(MaxHeaderSize+1)))

	_, _, err := ReadSafeTensorsFrom(&buf, cpu.New())
	assert.ErrorIs(t, err, ErrHeaderTooLarge)
}

func TestValidateTensorOffsets(t *testing.T) {
	tests := []struct {
		name    string
		metas   []TensorMeta
		size    int64
		wantErr error
	}{
		{"valid", []TensorMeta{{"a", 0, 8}, {"b", 8, 8}}, 16, nil},
		{"overlap", []TensorMeta{{"a", 0, 12}, {"b", 8, 8}}, 16, ErrOffsetOverlap},
		{"out of bounds", []TensorMeta{{"a", 0, 32}}, 16, ErrOutOfBounds},
		{"negative", []TensorMeta{{"a", -4, 4}}, 16, ErrNegativeOffset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTensorOffsets(tt.metas, tt.size)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
