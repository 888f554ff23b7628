package tensor_test

import (
	"testing"
	"time"

	"github.com/born-ml/gradtape/internal/tensor"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTimeout = 2 * time.Second
	testTick    = 10 * time.Millisecond
)

func arange(t *testing.T, ctx *tensor.Context, shape tensor.Shape) *tensor.Tensor {
	t.Helper()
	vals := make([]float64, shape.NumElements())
	for i := range vals {
		vals[i] = float64(i)
	}
	x, err := tensor.FromFloat64s(ctx, vals, shape, tensor.Float64)
	require.NoError(t, err)
	return x
}

func values(t *testing.T, x *tensor.Tensor) []float64 {
	t.Helper()
	v, err := x.Float64s()
	require.NoError(t, err)
	return v
}

func TestSlice_ContiguousIsView(t *testing.T) {
	ctx := newContext(t)
	x := arange(t, ctx, tensor.Shape{4, 3})

	rows, err := x.Slice(0, 1, 3)
	require.NoError(t, err)
	assert.True(t, rows.SharesMemory(x))
	assert.Equal(t, 3*8, rows.Offset())
	assert.Equal(t, tensor.Shape{2, 3}, rows.Shape())
	assert.Equal(t, []float64{3, 4, 5, 6, 7, 8}, values(t, rows))

	// The view keeps the block alive after the parent is released.
	ptr := x.Ptr()
	x.Release()
	assert.False(t, ctx.Allocator().Pooled(0, ptr))
	assert.Equal(t, []float64{3, 4, 5, 6, 7, 8}, values(t, rows))
	rows.Release()
	assert.True(t, ctx.Allocator().Pooled(0, ptr))
}

func TestSlice_NonContiguousIsCopy(t *testing.T) {
	ctx := newContext(t)
	x := arange(t, ctx, tensor.Shape{3, 4})

	cols, err := x.Slice(1, 1, 3)
	require.NoError(t, err)
	assert.False(t, cols.SharesMemory(x))
	assert.Equal(t, tensor.Shape{3, 2}, cols.Shape())
	assert.Equal(t, []float64{1, 2, 5, 6, 9, 10}, values(t, cols))

	// Leading singleton dimensions keep a column slice contiguous.
	row := arange(t, ctx, tensor.Shape{1, 4})
	part, err := row.Slice(-1, 2, 4)
	require.NoError(t, err)
	assert.True(t, part.SharesMemory(row))
	assert.Equal(t, []float64{2, 3}, values(t, part))
}

func TestSlice_Errors(t *testing.T) {
	ctx := newContext(t)
	x := arange(t, ctx, tensor.Shape{3})

	tests := []struct {
		name       string
		dim        int
		start, end int
	}{
		{"empty range", 0, 1, 1},
		{"past end", 0, 0, 4},
		{"negative start", 0, -1, 2},
		{"bad axis", 1, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := x.Slice(tt.dim, tt.start, tt.end)
			assert.True(t, errors.Is(err, tensor.ErrInvalidIndex))
		})
	}
}

func TestIndex_AlwaysCopies(t *testing.T) {
	ctx := newContext(t)
	x := arange(t, ctx, tensor.Shape{4, 2})

	contiguous, err := x.Index([]int{1, 2})
	require.NoError(t, err)
	assert.False(t, contiguous.SharesMemory(x))
	assert.Equal(t, []float64{2, 3, 4, 5}, values(t, contiguous))

	gathered, err := x.Index([]int{3, 0, 3})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 2}, gathered.Shape())
	assert.Equal(t, []float64{6, 7, 0, 1, 6, 7}, values(t, gathered))

	_, err = x.Index([]int{4})
	assert.True(t, errors.Is(err, tensor.ErrInvalidIndex))
}

func TestReshape_IsView(t *testing.T) {
	ctx := newContext(t)
	x := arange(t, ctx, tensor.Shape{2, 3})

	y, err := x.Reshape(tensor.Shape{3, 2})
	require.NoError(t, err)
	assert.True(t, y.SharesMemory(x))
	assert.Equal(t, []int{2, 1}, y.Strides())

	_, err = x.Reshape(tensor.Shape{4})
	assert.True(t, errors.Is(err, tensor.ErrShapeMismatch))
}
