package prims

import (
	"github.com/born-ml/gradtape/internal/autodiff"
	"github.com/born-ml/gradtape/internal/tensor"
)

// Every arithmetic op accepts any mix of Scalar and Array operands.
var binarySignatures = [][]autodiff.Kind{
	{autodiff.ArrayKind, autodiff.ArrayKind},
	{autodiff.ArrayKind, autodiff.ScalarKind},
	{autodiff.ScalarKind, autodiff.ArrayKind},
	{autodiff.ScalarKind, autodiff.ScalarKind},
}

func registerArith(reg *autodiff.Registry) error {
	for _, def := range []struct {
		id       string
		op       tensor.BinaryOp
		backward []autodiff.BackwardFunc
	}{
		{autodiff.OpAdd, tensor.OpAdd, []autodiff.BackwardFunc{addBackwardA, addBackwardB}},
		{autodiff.OpSub, tensor.OpSub, []autodiff.BackwardFunc{addBackwardA, subBackwardB}},
		{autodiff.OpMul, tensor.OpMul, []autodiff.BackwardFunc{mulBackwardA, mulBackwardB}},
		{autodiff.OpDiv, tensor.OpDiv, []autodiff.BackwardFunc{divBackwardA, divBackwardB}},
		{autodiff.OpPow, tensor.OpPow, []autodiff.BackwardFunc{powBackwardA, powBackwardB}},
	} {
		forward := binaryForward(def.op)
		for _, sig := range binarySignatures {
			if err := reg.Register(def.id, sig, forward, def.backward...); err != nil {
				return err
			}
		}
	}
	return nil
}

func binaryForward(op tensor.BinaryOp) autodiff.ForwardFunc {
	return func(args ...value) (value, error) {
		return binary(op, args[0], args[1])
	}
}

// d(a+b)/da = 1, d(a-b)/da = 1
func addBackwardA(g, _ value, args ...value) (value, error) {
	return unbroadcast(g, args[0])
}

func addBackwardB(g, _ value, args ...value) (value, error) {
	return unbroadcast(g, args[1])
}

// d(a-b)/db = -1
func subBackwardB(g, _ value, args ...value) (value, error) {
	neg, err := unary(tensor.OpNeg, g)
	if err != nil {
		return nil, err
	}
	return unbroadcast(neg, args[1])
}

// d(a*b)/da = b
func mulBackwardA(g, _ value, args ...value) (value, error) {
	ga, err := binary(tensor.OpMul, g, args[1])
	if err != nil {
		return nil, err
	}
	return unbroadcast(ga, args[0])
}

// d(a*b)/db = a
func mulBackwardB(g, _ value, args ...value) (value, error) {
	gb, err := binary(tensor.OpMul, g, args[0])
	if err != nil {
		return nil, err
	}
	return unbroadcast(gb, args[1])
}

// d(a/b)/da = 1/b
func divBackwardA(g, _ value, args ...value) (value, error) {
	ga, err := binary(tensor.OpDiv, g, args[1])
	if err != nil {
		return nil, err
	}
	return unbroadcast(ga, args[0])
}

// d(a/b)/db = -out/b
func divBackwardB(g, out value, args ...value) (value, error) {
	gb, err := chain(g, mul(out), div(args[1]))
	if err != nil {
		return nil, err
	}
	gb, err = unary(tensor.OpNeg, gb)
	if err != nil {
		return nil, err
	}
	return unbroadcast(gb, args[1])
}

// d(a^b)/da = b * a^(b-1)
func powBackwardA(g, _ value, args ...value) (value, error) {
	a, b := args[0], args[1]
	exp, err := binary(tensor.OpSub, b, scalar(1))
	if err != nil {
		return nil, err
	}
	p, err := binary(tensor.OpPow, a, exp)
	if err != nil {
		return nil, err
	}
	ga, err := chain(g, mul(b), mul(p))
	if err != nil {
		return nil, err
	}
	return unbroadcast(ga, a)
}

// d(a^b)/db = out * log(a)
func powBackwardB(g, out value, args ...value) (value, error) {
	lg, err := unary(tensor.OpLog, args[0])
	if err != nil {
		return nil, err
	}
	gb, err := chain(g, mul(out), mul(lg))
	if err != nil {
		return nil, err
	}
	return unbroadcast(gb, args[1])
}
