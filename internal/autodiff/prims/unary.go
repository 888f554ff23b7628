package prims

import (
	"github.com/born-ml/gradtape/internal/autodiff"
	"github.com/born-ml/gradtape/internal/tensor"
)

// Unary ops match any argument kind; the forward rejects anything that is
// not a Scalar or an Array.
var anySignature = []autodiff.Kind{autodiff.AnyKind}

func registerUnary(reg *autodiff.Registry) error {
	for _, def := range []struct {
		id       string
		op       tensor.UnaryOp
		backward autodiff.BackwardFunc
	}{
		{autodiff.OpNeg, tensor.OpNeg, negBackward},
		{autodiff.OpExp, tensor.OpExp, expBackward},
		{autodiff.OpLog, tensor.OpLog, logBackward},
		{autodiff.OpTanh, tensor.OpTanh, tanhBackward},
		{autodiff.OpSigmoid, tensor.OpSigmoid, sigmoidBackward},
		{autodiff.OpReLU, tensor.OpReLU, reluBackward},
		{autodiff.OpSqrt, tensor.OpSqrt, sqrtBackward},
		{autodiff.OpAbs, tensor.OpAbs, absBackward},
	} {
		if err := reg.Register(def.id, anySignature, unaryForward(def.op), def.backward); err != nil {
			return err
		}
	}
	return nil
}

func unaryForward(op tensor.UnaryOp) autodiff.ForwardFunc {
	return func(args ...value) (value, error) {
		return unary(op, args[0])
	}
}

func negBackward(g, _ value, _ ...value) (value, error) {
	return unary(tensor.OpNeg, g)
}

// d(e^x)/dx = e^x
func expBackward(g, out value, _ ...value) (value, error) {
	return binary(tensor.OpMul, g, out)
}

// d(log x)/dx = 1/x
func logBackward(g, _ value, args ...value) (value, error) {
	return binary(tensor.OpDiv, g, args[0])
}

// d(tanh x)/dx = 1 - tanh²x
func tanhBackward(g, out value, _ ...value) (value, error) {
	sq, err := binary(tensor.OpMul, out, out)
	if err != nil {
		return nil, err
	}
	d, err := binary(tensor.OpSub, scalar(1), sq)
	if err != nil {
		return nil, err
	}
	return binary(tensor.OpMul, g, d)
}

// d(σ(x))/dx = σ(x)(1 - σ(x))
func sigmoidBackward(g, out value, _ ...value) (value, error) {
	d, err := binary(tensor.OpSub, scalar(1), out)
	if err != nil {
		return nil, err
	}
	return chain(g, mul(out), mul(d))
}

func reluBackward(g, _ value, args ...value) (value, error) {
	mask, err := unary(tensor.OpStep, args[0])
	if err != nil {
		return nil, err
	}
	return binary(tensor.OpMul, g, mask)
}

// d(√x)/dx = 1/(2√x)
func sqrtBackward(g, out value, _ ...value) (value, error) {
	two, err := binary(tensor.OpMul, out, scalar(2))
	if err != nil {
		return nil, err
	}
	return binary(tensor.OpDiv, g, two)
}

func absBackward(g, _ value, args ...value) (value, error) {
	s, err := unary(tensor.OpSign, args[0])
	if err != nil {
		return nil, err
	}
	return binary(tensor.OpMul, g, s)
}

// Sign and floor have zero derivative almost everywhere.
func registerZeroGrad(reg *autodiff.Registry) error {
	for _, def := range []struct {
		id string
		op tensor.UnaryOp
	}{
		{autodiff.OpSign, tensor.OpSign},
		{autodiff.OpFloor, tensor.OpFloor},
	} {
		if err := reg.RegisterZeroGrad(def.id, anySignature, unaryForward(def.op)); err != nil {
			return err
		}
	}
	return nil
}
