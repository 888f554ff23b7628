package tensor_test

import (
	"math"
	"testing"

	"github.com/born-ml/gradtape/internal/tensor"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fromValues(t *testing.T, ctx *tensor.Context, vals []float64, shape tensor.Shape) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromFloat64s(ctx, vals, shape, tensor.Float64)
	require.NoError(t, err)
	return x
}

func TestBinary_Broadcasting(t *testing.T) {
	ctx := newContext(t)
	a := fromValues(t, ctx, []float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	row := fromValues(t, ctx, []float64{10, 20, 30}, tensor.Shape{3})
	col := fromValues(t, ctx, []float64{2, 4}, tensor.Shape{2, 1})

	tests := []struct {
		name string
		op   tensor.BinaryOp
		b    *tensor.Tensor
		want []float64
	}{
		{"add row", tensor.OpAdd, row, []float64{11, 22, 33, 14, 25, 36}},
		{"sub row", tensor.OpSub, row, []float64{-9, -18, -27, -6, -15, -24}},
		{"mul col", tensor.OpMul, col, []float64{2, 4, 6, 16, 20, 24}},
		{"div col", tensor.OpDiv, col, []float64{0.5, 1, 1.5, 1, 1.25, 1.5}},
		{"pow col", tensor.OpPow, col, []float64{1, 4, 9, 256, 625, 1296}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tensor.Binary(tt.op, a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
			assert.InDeltaSlice(t, tt.want, values(t, out), 1e-12)
		})
	}

	_, err := tensor.Binary(tensor.OpAdd, a, fromValues(t, ctx, []float64{1, 2}, tensor.Shape{2}))
	assert.True(t, errors.Is(err, tensor.ErrShapeMismatch))

	f32, err := tensor.ToDevice(ctx, []float32{1, 2, 3}, tensor.Shape{3})
	require.NoError(t, err)
	_, err = tensor.Binary(tensor.OpAdd, row, f32)
	assert.True(t, errors.Is(err, tensor.ErrDTypeMismatch))
}

func TestBinaryScalar(t *testing.T) {
	ctx := newContext(t)
	a := fromValues(t, ctx, []float64{1, 2, 4}, tensor.Shape{3})

	out, err := tensor.BinaryScalar(tensor.OpSub, a, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 3}, values(t, out))

	out, err = tensor.ScalarBinary(tensor.OpDiv, 8, a)
	require.NoError(t, err)
	assert.Equal(t, []float64{8, 4, 2}, values(t, out))
}

func TestUnary(t *testing.T) {
	ctx := newContext(t)
	a := fromValues(t, ctx, []float64{-1.5, 0, 2.25}, tensor.Shape{3})

	tests := []struct {
		op   tensor.UnaryOp
		want []float64
	}{
		{tensor.OpNeg, []float64{1.5, 0, -2.25}},
		{tensor.OpReLU, []float64{0, 0, 2.25}},
		{tensor.OpSign, []float64{-1, 0, 1}},
		{tensor.OpFloor, []float64{-2, 0, 2}},
		{tensor.OpAbs, []float64{1.5, 0, 2.25}},
		{tensor.OpStep, []float64{0, 0, 1}},
		{tensor.OpExp, []float64{math.Exp(-1.5), 1, math.Exp(2.25)}},
		{tensor.OpTanh, []float64{math.Tanh(-1.5), 0, math.Tanh(2.25)}},
		{tensor.OpSigmoid, []float64{1 / (1 + math.Exp(1.5)), 0.5, 1 / (1 + math.Exp(-2.25))}},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			out, err := tensor.Unary(tt.op, a)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, values(t, out), 1e-12)
		})
	}
}

func TestReductions(t *testing.T) {
	ctx := newContext(t)
	a := fromValues(t, ctx, []float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})

	total, err := tensor.Sum(a)
	require.NoError(t, err)
	assert.Equal(t, 21.0, total)

	rows, err := tensor.SumAxis(a, 1)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 1}, rows.Shape())
	assert.Equal(t, []float64{6, 15}, values(t, rows))

	cols, err := tensor.SumAxis(a, 0)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 3}, cols.Shape())
	assert.Equal(t, []float64{5, 7, 9}, values(t, cols))
}

func TestBroadcastToAndSumTo(t *testing.T) {
	ctx := newContext(t)
	col := fromValues(t, ctx, []float64{1, 2}, tensor.Shape{2, 1})

	wide, err := tensor.BroadcastTo(col, tensor.Shape{3, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 18, wide.NumElements())

	back, err := tensor.SumTo(wide, tensor.Shape{2, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{9, 18}, values(t, back))

	scalar, err := tensor.SumTo(wide, tensor.Shape{})
	require.NoError(t, err)
	assert.Equal(t, []float64{27}, values(t, scalar))

	same, err := tensor.SumTo(col, tensor.Shape{2, 1})
	require.NoError(t, err)
	assert.False(t, same.SharesMemory(col))

	_, err = tensor.BroadcastTo(col, tensor.Shape{3, 3})
	assert.True(t, errors.Is(err, tensor.ErrShapeMismatch))
}

func TestMatMulAndTranspose(t *testing.T) {
	ctx := newContext(t)
	a := fromValues(t, ctx, []float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	b := fromValues(t, ctx, []float64{7, 8, 9, 10, 11, 12}, tensor.Shape{3, 2})

	c, err := tensor.MatMul(a, b)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 2}, c.Shape())
	assert.Equal(t, []float64{58, 64, 139, 154}, values(t, c))

	at, err := tensor.Transpose(a)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 2}, at.Shape())
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, values(t, at))
	assert.False(t, at.SharesMemory(a))

	_, err = tensor.MatMul(a, a)
	assert.True(t, errors.Is(err, tensor.ErrShapeMismatch))
}

func TestPadSliceAndScatterAddRows(t *testing.T) {
	ctx := newContext(t)
	g := fromValues(t, ctx, []float64{1, 2, 3, 4}, tensor.Shape{2, 2})

	padded, err := tensor.PadSlice(g, tensor.Shape{2, 4}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 0, 0, 3, 4, 0}, values(t, padded))

	scattered, err := tensor.ScatterAddRows(g, tensor.Shape{3, 2}, []int{2, 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0, 4, 6}, values(t, scattered))
}
