package prims

import (
	"math"

	"github.com/born-ml/gradtape/internal/autodiff"
	"github.com/born-ml/gradtape/internal/tensor"
	"github.com/pkg/errors"
)

type (
	value  = autodiff.Value
	scalar = autodiff.Scalar
	array  = autodiff.Array
)

// binary applies op to any mix of Scalar and Array operands.
func binary(op tensor.BinaryOp, a, b value) (value, error) {
	switch x := a.(type) {
	case scalar:
		switch y := b.(type) {
		case scalar:
			return scalar(op.Apply(float64(x), float64(y))), nil
		case array:
			return wrap(tensor.ScalarBinary(op, float64(x), y.T))
		}
	case array:
		switch y := b.(type) {
		case scalar:
			return wrap(tensor.BinaryScalar(op, x.T, float64(y)))
		case array:
			return wrap(tensor.Binary(op, x.T, y.T))
		}
	}
	return nil, errors.Errorf("%s: unsupported operands %s and %s", op, a.Kind(), b.Kind())
}

// unary applies op to a Scalar or an Array.
func unary(op tensor.UnaryOp, a value) (value, error) {
	switch x := a.(type) {
	case scalar:
		return scalar(op.Apply(float64(x))), nil
	case array:
		return wrap(tensor.Unary(op, x.T))
	}
	return nil, errors.Errorf("%s: unsupported operand %s", op, a.Kind())
}

// chain evaluates a sequence of binary ops left to right: ((v op1 x1) op2 x2)...
func chain(v value, steps ...step) (value, error) {
	var err error
	for _, s := range steps {
		v, err = binary(s.op, v, s.arg)
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}

type step struct {
	op  tensor.BinaryOp
	arg value
}

func mul(x value) step { return step{tensor.OpMul, x} }
func div(x value) step { return step{tensor.OpDiv, x} }

// unbroadcast reduces gradient g to the shape of like, undoing the
// broadcasting done by the forward pass. A Scalar like receives the sum of
// every element of g.
func unbroadcast(g, like value) (value, error) {
	switch l := like.(type) {
	case scalar:
		if ga, ok := g.(array); ok {
			s, err := tensor.Sum(ga.T)
			if err != nil {
				return nil, err
			}
			return scalar(s), nil
		}
		return g, nil
	case array:
		switch gv := g.(type) {
		case scalar:
			return wrap(tensor.Full(l.T.Context(), l.T.Shape(), l.T.DType(), float64(gv)))
		case array:
			return wrap(tensor.SumTo(gv.T, l.T.Shape()))
		}
	}
	return nil, errors.Errorf("unbroadcast: unsupported %s to %s", g.Kind(), like.Kind())
}

func wrap(t *tensor.Tensor, err error) (value, error) {
	if err != nil {
		return nil, err
	}
	return array{T: t}, nil
}

func asInt(op string, v value) (int, error) {
	s, ok := v.(scalar)
	if !ok || float64(s) != math.Trunc(float64(s)) {
		return 0, errors.Wrapf(autodiff.ErrInvalidArgument, "%s: expected integer scalar, got %v", op, v)
	}
	return int(s), nil
}

func asInts(op string, v value) ([]int, error) {
	t, ok := v.(autodiff.Tuple)
	if !ok {
		return nil, errors.Wrapf(autodiff.ErrInvalidArgument, "%s: expected tuple of integers, got %s", op, v.Kind())
	}
	out := make([]int, len(t))
	for i, e := range t {
		n, err := asInt(op, e)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
