package prims

import (
	"github.com/born-ml/gradtape/internal/autodiff"
	"github.com/born-ml/gradtape/internal/tensor"
)

func registerLinalg(reg *autodiff.Registry) error {
	if err := reg.Register(autodiff.OpMatMul,
		[]autodiff.Kind{autodiff.ArrayKind, autodiff.ArrayKind},
		matmulForward, matmulBackwardA, matmulBackwardB); err != nil {
		return err
	}
	return reg.Register(autodiff.OpTranspose,
		[]autodiff.Kind{autodiff.ArrayKind},
		transposeForward, transposeBackward)
}

func matmulForward(args ...value) (value, error) {
	return wrap(tensor.MatMul(args[0].(array).T, args[1].(array).T))
}

// grad_a = g @ bᵀ
func matmulBackwardA(g, _ value, args ...value) (value, error) {
	bt, err := tensor.Transpose(args[1].(array).T)
	if err != nil {
		return nil, err
	}
	return wrap(tensor.MatMul(g.(array).T, bt))
}

// grad_b = aᵀ @ g
func matmulBackwardB(g, _ value, args ...value) (value, error) {
	at, err := tensor.Transpose(args[0].(array).T)
	if err != nil {
		return nil, err
	}
	return wrap(tensor.MatMul(at, g.(array).T))
}

func transposeForward(args ...value) (value, error) {
	return wrap(tensor.Transpose(args[0].(array).T))
}

func transposeBackward(g, _ value, _ ...value) (value, error) {
	return wrap(tensor.Transpose(g.(array).T))
}
