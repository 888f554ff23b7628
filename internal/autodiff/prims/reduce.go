package prims

import (
	"github.com/born-ml/gradtape/internal/autodiff"
	"github.com/born-ml/gradtape/internal/tensor"
)

func registerReduce(reg *autodiff.Registry) error {
	arr := []autodiff.Kind{autodiff.ArrayKind}
	if err := reg.Register(autodiff.OpSum, arr, sumForward, sumBackward); err != nil {
		return err
	}
	if err := reg.Register(autodiff.OpMean, arr, meanForward, meanBackward); err != nil {
		return err
	}
	return reg.Register(autodiff.OpSumAxis,
		[]autodiff.Kind{autodiff.ArrayKind, autodiff.ScalarKind},
		sumAxisForward, sumAxisBackward)
}

func sumForward(args ...value) (value, error) {
	s, err := tensor.Sum(args[0].(array).T)
	if err != nil {
		return nil, err
	}
	return scalar(s), nil
}

// The output gradient is spread to every element.
func sumBackward(g, _ value, args ...value) (value, error) {
	return unbroadcast(g, args[0])
}

func meanForward(args ...value) (value, error) {
	x := args[0].(array).T
	s, err := tensor.Sum(x)
	if err != nil {
		return nil, err
	}
	return scalar(s / float64(x.NumElements())), nil
}

func meanBackward(g, _ value, args ...value) (value, error) {
	n := args[0].(array).T.NumElements()
	scaled, err := binary(tensor.OpDiv, g, scalar(n))
	if err != nil {
		return nil, err
	}
	return unbroadcast(scaled, args[0])
}

func sumAxisForward(args ...value) (value, error) {
	axis, err := asInt(autodiff.OpSumAxis, args[1])
	if err != nil {
		return nil, err
	}
	return wrap(tensor.SumAxis(args[0].(array).T, axis))
}

func sumAxisBackward(g, _ value, args ...value) (value, error) {
	x := args[0].(array).T
	return wrap(tensor.BroadcastTo(g.(array).T, x.Shape()))
}
