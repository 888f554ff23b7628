package tensor

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Kernels below run on the host: operands are downloaded, computed with
// gonum and the result uploaded to the active device.

// BinaryOp identifies an element-wise binary kernel.
type BinaryOp int

// Binary kernels.
const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpPow
)

func (op BinaryOp) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	case OpPow:
		return "pow"
	default:
		return fmt.Sprintf("BinaryOp(%d)", int(op))
	}
}

// UnaryOp identifies an element-wise unary kernel.
type UnaryOp int

// Unary kernels. OpStep is 1 where x > 0 and 0 elsewhere.
const (
	OpNeg UnaryOp = iota
	OpExp
	OpLog
	OpTanh
	OpSigmoid
	OpReLU
	OpSign
	OpFloor
	OpSqrt
	OpAbs
	OpStep
)

var unaryNames = [...]string{"neg", "exp", "log", "tanh", "sigmoid", "relu", "sign", "floor", "sqrt", "abs", "step"}

func (op UnaryOp) String() string {
	if int(op) < len(unaryNames) {
		return unaryNames[op]
	}
	return fmt.Sprintf("UnaryOp(%d)", int(op))
}

// Binary applies op element-wise with NumPy broadcasting.
func Binary(op BinaryOp, a, b *Tensor) (*Tensor, error) {
	if err := a.ctx.checkActive(op.String(), a, b); err != nil {
		return nil, err
	}
	if a.dtype != b.dtype {
		return nil, errors.Wrapf(ErrDTypeMismatch, "%s: %s and %s", op, a.dtype, b.dtype)
	}
	shape, err := BroadcastShapes(a.shape, b.shape)
	if err != nil {
		return nil, errors.WithMessage(err, op.String())
	}
	av, err := broadcastValues(a, shape)
	if err != nil {
		return nil, err
	}
	bv, err := broadcastValues(b, shape)
	if err != nil {
		return nil, err
	}
	applyBinary(op, av, av, bv)
	return FromFloat64s(a.ctx, av, shape, a.dtype)
}

// BinaryScalar computes a op s element-wise.
func BinaryScalar(op BinaryOp, a *Tensor, s float64) (*Tensor, error) {
	return scalarKernel(op, a, s, false)
}

// ScalarBinary computes s op a element-wise.
func ScalarBinary(op BinaryOp, s float64, a *Tensor) (*Tensor, error) {
	return scalarKernel(op, a, s, true)
}

func scalarKernel(op BinaryOp, a *Tensor, s float64, left bool) (*Tensor, error) {
	av, err := a.hostValues(op.String())
	if err != nil {
		return nil, err
	}
	sv := make([]float64, len(av))
	for i := range sv {
		sv[i] = s
	}
	if left {
		applyBinary(op, av, sv, av)
	} else {
		applyBinary(op, av, av, sv)
	}
	return FromFloat64s(a.ctx, av, a.shape, a.dtype)
}

func applyBinary(op BinaryOp, dst, x, y []float64) {
	switch op {
	case OpAdd:
		floats.AddTo(dst, x, y)
	case OpSub:
		floats.SubTo(dst, x, y)
	case OpMul:
		floats.MulTo(dst, x, y)
	case OpDiv:
		floats.DivTo(dst, x, y)
	case OpPow:
		for i := range dst {
			dst[i] = math.Pow(x[i], y[i])
		}
	default:
		panic(fmt.Sprintf("applyBinary: unknown op %v", op))
	}
}

// Apply computes x op y for a single pair of values.
func (op BinaryOp) Apply(x, y float64) float64 {
	switch op {
	case OpAdd:
		return x + y
	case OpSub:
		return x - y
	case OpMul:
		return x * y
	case OpDiv:
		return x / y
	case OpPow:
		return math.Pow(x, y)
	default:
		panic(fmt.Sprintf("BinaryOp.Apply: unknown op %v", op))
	}
}

// Apply computes op on a single value.
func (op UnaryOp) Apply(x float64) float64 {
	if op == OpNeg {
		return -x
	}
	return unaryFunc(op)(x)
}

// Unary applies op element-wise.
func Unary(op UnaryOp, a *Tensor) (*Tensor, error) {
	v, err := a.hostValues(op.String())
	if err != nil {
		return nil, err
	}
	switch op {
	case OpNeg:
		floats.Scale(-1, v)
	default:
		f := unaryFunc(op)
		for i, x := range v {
			v[i] = f(x)
		}
	}
	return FromFloat64s(a.ctx, v, a.shape, a.dtype)
}

func unaryFunc(op UnaryOp) func(float64) float64 {
	switch op {
	case OpExp:
		return math.Exp
	case OpLog:
		return math.Log
	case OpTanh:
		return math.Tanh
	case OpSigmoid:
		return func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
	case OpReLU:
		return func(x float64) float64 { return math.Max(x, 0) }
	case OpSign:
		return func(x float64) float64 {
			switch {
			case x > 0:
				return 1
			case x < 0:
				return -1
			}
			return 0
		}
	case OpFloor:
		return math.Floor
	case OpSqrt:
		return math.Sqrt
	case OpAbs:
		return math.Abs
	case OpStep:
		return func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		}
	default:
		panic(fmt.Sprintf("unaryFunc: unknown op %v", op))
	}
}

// Sum returns the sum of all elements.
func Sum(a *Tensor) (float64, error) {
	v, err := a.hostValues("sum")
	if err != nil {
		return 0, err
	}
	return floats.Sum(v), nil
}

// SumAxis sums along axis keeping it as a dimension of size 1.
func SumAxis(a *Tensor, axis int) (*Tensor, error) {
	axis, err := a.shape.Axis(axis)
	if err != nil {
		return nil, err
	}
	v, err := a.hostValues("sum_axis")
	if err != nil {
		return nil, err
	}
	outer := Shape(a.shape[:axis]).NumElements()
	n := a.shape[axis]
	inner := Shape(a.shape[axis+1:]).NumElements()

	shape := a.shape.Clone()
	shape[axis] = 1
	out := make([]float64, outer*inner)
	for o := 0; o < outer; o++ {
		dst := out[o*inner : (o+1)*inner]
		for j := 0; j < n; j++ {
			start := (o*n + j) * inner
			floats.Add(dst, v[start:start+inner])
		}
	}
	return FromFloat64s(a.ctx, out, shape, a.dtype)
}

// BroadcastTo expands a to shape.
func BroadcastTo(a *Tensor, shape Shape) (*Tensor, error) {
	if got, err := BroadcastShapes(a.shape, shape); err != nil || !got.Equal(shape) {
		return nil, errors.Wrapf(ErrShapeMismatch, "cannot broadcast %v to %v", a.shape, shape)
	}
	v, err := broadcastValues(a, shape)
	if err != nil {
		return nil, err
	}
	return FromFloat64s(a.ctx, v, shape, a.dtype)
}

// SumTo sums a down to shape, undoing a broadcast from shape to a's shape.
// Equal shapes give a copy so the result never aliases a.
func SumTo(a *Tensor, shape Shape) (*Tensor, error) {
	if shape.Equal(a.shape) {
		return a.Clone()
	}
	if got, err := BroadcastShapes(shape, a.shape); err != nil || !got.Equal(a.shape) {
		return nil, errors.Wrapf(ErrShapeMismatch, "cannot reduce %v to %v", a.shape, shape)
	}
	v, err := a.hostValues("sum_to")
	if err != nil {
		return nil, err
	}
	out := make([]float64, shape.NumElements())
	inStrides := shape.ComputeStrides()
	for i, x := range v {
		out[broadcastIndex(i, a.shape, a.stride, shape, inStrides)] += x
	}
	return FromFloat64s(a.ctx, out, shape, a.dtype)
}

// MatMul multiplies 2-D tensors: (m, k) x (k, n) -> (m, n).
func MatMul(a, b *Tensor) (*Tensor, error) {
	if err := a.ctx.checkActive("matmul", a, b); err != nil {
		return nil, err
	}
	if a.dtype != b.dtype {
		return nil, errors.Wrapf(ErrDTypeMismatch, "matmul: %s and %s", a.dtype, b.dtype)
	}
	if len(a.shape) != 2 || len(b.shape) != 2 || a.shape[1] != b.shape[0] {
		return nil, errors.Wrapf(ErrShapeMismatch, "matmul: %v x %v", a.shape, b.shape)
	}
	av, err := a.Float64s()
	if err != nil {
		return nil, err
	}
	bv, err := b.Float64s()
	if err != nil {
		return nil, err
	}
	m, n := a.shape[0], b.shape[1]

	var c mat.Dense
	c.Mul(mat.NewDense(m, a.shape[1], av), mat.NewDense(b.shape[0], n, bv))
	out := make([]float64, 0, m*n)
	for i := 0; i < m; i++ {
		out = append(out, c.RawRowView(i)...)
	}
	return FromFloat64s(a.ctx, out, Shape{m, n}, a.dtype)
}

// Transpose swaps the two dimensions of a 2-D tensor. The result is a copy.
func Transpose(a *Tensor) (*Tensor, error) {
	if len(a.shape) != 2 {
		return nil, errors.Wrapf(ErrShapeMismatch, "transpose: expected 2-D tensor, got %v", a.shape)
	}
	v, err := a.hostValues("transpose")
	if err != nil {
		return nil, err
	}
	rows, cols := a.shape[0], a.shape[1]
	t := mat.DenseCopyOf(mat.NewDense(rows, cols, v).T())
	return FromFloat64s(a.ctx, t.RawMatrix().Data, Shape{cols, rows}, a.dtype)
}

// PadSlice places g at [start, start+g.shape[dim]) along dim of a zero tensor
// of the given shape.
func PadSlice(g *Tensor, shape Shape, dim, start int) (*Tensor, error) {
	dim, err := shape.Axis(dim)
	if err != nil {
		return nil, err
	}
	if len(g.shape) != len(shape) || start < 0 || start+g.shape[dim] > shape[dim] {
		return nil, errors.Wrapf(ErrShapeMismatch, "pad %v into %v at %d along %d", g.shape, shape, start, dim)
	}
	gv, err := g.hostValues("pad_slice")
	if err != nil {
		return nil, err
	}
	out := make([]float64, shape.NumElements())
	outer := Shape(shape[:dim]).NumElements()
	inner := Shape(shape[dim+1:]).NumElements()
	chunk := g.shape[dim] * inner
	for o := 0; o < outer; o++ {
		dst := (o*shape[dim] + start) * inner
		copy(out[dst:dst+chunk], gv[o*chunk:(o+1)*chunk])
	}
	return FromFloat64s(g.ctx, out, shape, g.dtype)
}

// ScatterAddRows adds row k of g into row indices[k] of a zero tensor of the
// given shape. Repeated indices accumulate.
func ScatterAddRows(g *Tensor, shape Shape, indices []int) (*Tensor, error) {
	if len(shape) == 0 || len(g.shape) != len(shape) || g.shape[0] != len(indices) {
		return nil, errors.Wrapf(ErrShapeMismatch, "scatter %v into %v with %d indices", g.shape, shape, len(indices))
	}
	gv, err := g.hostValues("scatter_add")
	if err != nil {
		return nil, err
	}
	out := make([]float64, shape.NumElements())
	row := Shape(shape[1:]).NumElements()
	for k, i := range indices {
		if i < 0 || i >= shape[0] {
			return nil, errors.Wrapf(ErrInvalidIndex, "index %d out of range for dimension of size %d", i, shape[0])
		}
		floats.Add(out[i*row:(i+1)*row], gv[k*row:(k+1)*row])
	}
	return FromFloat64s(g.ctx, out, shape, g.dtype)
}

func (t *Tensor) hostValues(op string) ([]float64, error) {
	if err := t.ctx.checkActive(op, t); err != nil {
		return nil, err
	}
	return t.Float64s()
}

// broadcastValues downloads t and expands it to shape.
func broadcastValues(t *Tensor, shape Shape) ([]float64, error) {
	v, err := t.Float64s()
	if err != nil {
		return nil, err
	}
	if t.shape.Equal(shape) {
		return v, nil
	}
	out := make([]float64, shape.NumElements())
	outStrides := shape.ComputeStrides()
	for i := range out {
		out[i] = v[broadcastIndex(i, shape, outStrides, t.shape, t.stride)]
	}
	return out, nil
}
