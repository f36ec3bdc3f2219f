package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shapeOnly is a Backend stub for tests that only exercise tensor
// metadata and creation helpers; any compute call panics.
type shapeOnly struct{ Backend }

func (shapeOnly) Device() Device { return CPU }
func (shapeOnly) Name() string   { return "shape-only" }

func TestDataTypeSize(t *testing.T) {
	tests := []struct {
		dtype DataType
		size  int
		float bool
	}{
		{Float32, 4, true},
		{Float64, 8, true},
		{Int32, 4, false},
		{Int64, 8, false},
	}

	for _, tt := range tests {
		t.Run(tt.dtype.String(), func(t *testing.T) {
			assert.Equal(t, tt.size, tt.dtype.Size())
			assert.Equal(t, tt.float, tt.dtype.IsFloat())
		})
	}
}

func TestShapeFlatten2D(t *testing.T) {
	assert.Equal(t, Shape{4, 6}, Shape{4, 2, 3}.Flatten2D())
	assert.Equal(t, Shape{5, 1}, Shape{5}.Flatten2D())
	assert.Equal(t, Shape{2, 3}, Shape{2, 3}.Flatten2D())
	assert.Panics(t, func() { Shape{}.Flatten2D() })
}

func TestShapeStrides(t *testing.T) {
	assert.Equal(t, []int{12, 4, 1}, Shape{2, 3, 4}.ComputeStrides())
	assert.Empty(t, Shape{}.ComputeStrides())
	assert.Equal(t, 1, Shape{}.NumElements())
	assert.Error(t, Shape{2, 0}.Validate())
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Shape
		want      Shape
		broadcast bool
		wantErr   bool
	}{
		{"same", Shape{3, 5}, Shape{3, 5}, Shape{3, 5}, false, false},
		{"column", Shape{3, 1}, Shape{3, 5}, Shape{3, 5}, true, false},
		{"row", Shape{1, 5}, Shape{3, 5}, Shape{3, 5}, true, false},
		{"rank", Shape{5}, Shape{3, 5}, Shape{3, 5}, true, false},
		{"scalar", Shape{}, Shape{2, 2}, Shape{2, 2}, true, false},
		{"incompatible", Shape{3, 4}, Shape{3, 5}, nil, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, broadcast, err := BroadcastShapes(tt.a, tt.b)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.broadcast, broadcast)
		})
	}
}

func TestRawTensorWithShape(t *testing.T) {
	raw := MustNewRaw(Shape{2, 3}, Float32, CPU)
	raw.Fill(2)

	reshaped, err := raw.WithShape(Shape{3, 2})
	require.NoError(t, err)
	assert.Equal(t, Shape{3, 2}, reshaped.Shape())
	assert.Equal(t, []int{2, 1}, reshaped.Strides())

	// Copies, never aliases.
	reshaped.AsFloat32()[0] = 7
	assert.Equal(t, float32(2), raw.AsFloat32()[0])

	_, err = raw.WithShape(Shape{4, 2})
	assert.Error(t, err)
}

func TestRawTensorIndicesAndScalar(t *testing.T) {
	labels := MustNewRaw(Shape{3}, Int32, CPU)
	copy(labels.AsInt32(), []int32{2, 0, 1})
	assert.Equal(t, []int{2, 0, 1}, labels.Indices())

	scalar := MustNewRaw(Shape{}, Float64, CPU)
	scalar.Fill(0.5)
	assert.InDelta(t, 0.5, scalar.ScalarValue(), 1e-12)

	assert.Panics(t, func() { labels.ScalarValue() })
	assert.Panics(t, func() { labels.AsFloat32() })
}

func TestFromSliceAndAccessors(t *testing.T) {
	b := shapeOnly{}

	x, err := FromSlice([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3}, b)
	require.NoError(t, err)
	assert.Equal(t, float32(6), x.At(1, 2))

	x.Set(9, 0, 1)
	assert.Equal(t, []float32{1, 9, 3, 4, 5, 6}, x.Data())

	clone := x.Clone()
	clone.Set(0, 0, 0)
	assert.Equal(t, float32(1), x.At(0, 0))

	_, err = FromSlice([]float32{1, 2}, Shape{3}, b)
	assert.Error(t, err)

	assert.Panics(t, func() { x.At(2, 0) })
	assert.Panics(t, func() { x.Item() })
}

func TestCreation(t *testing.T) {
	b := shapeOnly{}

	assert.Equal(t, []float64{1, 1, 1}, Ones[float64](Shape{3}, b).Data())
	assert.Equal(t, []int32{4, 4}, Full[int32](Shape{2}, 4, b).Data())
	assert.Equal(t, []int64{2, 3, 4}, Arange[int64](2, 5, b).Data())

	scalar := Full[float32](Shape{}, 3, b)
	assert.Equal(t, float32(3), scalar.Item())
}

func TestRandnFromIsReproducible(t *testing.T) {
	b := shapeOnly{}

	first := RandnFrom[float32](newRand(42), Shape{5, 3}, b).Data()
	second := RandnFrom[float32](newRand(42), Shape{5, 3}, b).Data()
	assert.Equal(t, first, second)

	var mean float64
	big := RandnFrom[float64](newRand(1), Shape{10000}, b).Data()
	for _, v := range big {
		mean += v
	}
	assert.InDelta(t, 0, mean/float64(len(big)), 0.05)
}
