package prims

import (
	"github.com/born-ml/gradtape/internal/autodiff"
	"github.com/born-ml/gradtape/internal/tensor"
)

// Shape, range and index arguments are constants: their backward slots are nil.
func registerIndex(reg *autodiff.Registry) error {
	if err := reg.Register(autodiff.OpReshape,
		[]autodiff.Kind{autodiff.ArrayKind, autodiff.TupleKind},
		reshapeForward, reshapeBackward); err != nil {
		return err
	}
	if err := reg.Register(autodiff.OpSlice,
		[]autodiff.Kind{autodiff.ArrayKind, autodiff.ScalarKind, autodiff.ScalarKind, autodiff.ScalarKind},
		sliceForward, sliceBackward); err != nil {
		return err
	}
	return reg.Register(autodiff.OpIndex,
		[]autodiff.Kind{autodiff.ArrayKind, autodiff.TupleKind},
		indexForward, indexBackward)
}

func reshapeForward(args ...value) (value, error) {
	shape, err := asInts(autodiff.OpReshape, args[1])
	if err != nil {
		return nil, err
	}
	return wrap(args[0].(array).T.Reshape(shape))
}

func reshapeBackward(g, _ value, args ...value) (value, error) {
	return wrap(g.(array).T.Reshape(args[0].(array).T.Shape()))
}

func sliceArgs(args []value) (dim, start, end int, err error) {
	if dim, err = asInt(autodiff.OpSlice, args[1]); err != nil {
		return
	}
	if start, err = asInt(autodiff.OpSlice, args[2]); err != nil {
		return
	}
	end, err = asInt(autodiff.OpSlice, args[3])
	return
}

func sliceForward(args ...value) (value, error) {
	dim, start, end, err := sliceArgs(args)
	if err != nil {
		return nil, err
	}
	return wrap(args[0].(array).T.Slice(dim, start, end))
}

// The gradient of a slice is the output gradient padded with zeros.
func sliceBackward(g, _ value, args ...value) (value, error) {
	dim, start, _, err := sliceArgs(args)
	if err != nil {
		return nil, err
	}
	return wrap(tensor.PadSlice(g.(array).T, args[0].(array).T.Shape(), dim, start))
}

func indexForward(args ...value) (value, error) {
	indices, err := asInts(autodiff.OpIndex, args[1])
	if err != nil {
		return nil, err
	}
	return wrap(args[0].(array).T.Index(indices))
}

// Rows gathered more than once receive the sum of their gradients.
func indexBackward(g, _ value, args ...value) (value, error) {
	indices, err := asInts(autodiff.OpIndex, args[1])
	if err != nil {
		return nil, err
	}
	return wrap(tensor.ScatterAddRows(g.(array).T, args[0].(array).T.Shape(), indices))
}
