// Package prims registers the builtin differentiable primitives: arithmetic
// with broadcasting, element-wise math, reductions, matrix products and
// indexing.
package prims

import (
	"github.com/born-ml/gradtape/internal/autodiff"
)

// RegisterAll adds every builtin primitive to reg.
func RegisterAll(reg *autodiff.Registry) error {
	for _, register := range []func(*autodiff.Registry) error{
		registerArith,
		registerUnary,
		registerZeroGrad,
		registerReduce,
		registerLinalg,
		registerIndex,
	} {
		if err := register(reg); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the builtin primitives.
func NewRegistry() *autodiff.Registry {
	reg := autodiff.NewRegistry()
	if err := RegisterAll(reg); err != nil {
		panic(err) // builtin registrations are unique
	}
	return reg
}
