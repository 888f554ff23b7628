// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides trace-based reverse-mode automatic differentiation.
//
// Functions are written as ordinary Go code over Values using an Engine.
// Grad records every primitive applied to the differentiated argument on a
// tape and walks it backwards to produce the gradient.
//
// Example:
//
//	import (
//	    "github.com/born-ml/gradtape/autodiff"
//	    "github.com/born-ml/gradtape/memory"
//	    "github.com/born-ml/gradtape/tensor"
//	)
//
//	func main() {
//	    eng := autodiff.NewEngine()
//	    ctx := tensor.NewSimContext(0, memory.DefaultConfig())
//
//	    loss := func(args ...autodiff.Value) (autodiff.Value, error) {
//	        y, err := eng.Mul(args[0], args[1])
//	        if err != nil {
//	            return nil, err
//	        }
//	        return eng.Sum(y)
//	    }
//
//	    w, _ := tensor.ToDevice(ctx, []float32{1, 2}, tensor.Shape{2})
//	    x, _ := tensor.ToDevice(ctx, []float32{3, 4}, tensor.Shape{2})
//	    dw, err := eng.Grad(loss, 0)(autodiff.Array{T: w}, autodiff.Array{T: x})
//	}
package autodiff

import (
	"github.com/born-ml/gradtape/internal/autodiff"
	"github.com/born-ml/gradtape/internal/autodiff/prims"
)

// Value is a Scalar, Array, Tuple, Dict or *Box.
type Value = autodiff.Value

// Scalar is a float64 number.
type Scalar = autodiff.Scalar

// Array wraps a device tensor.
type Array = autodiff.Array

// Tuple is an ordered container of values.
type Tuple = autodiff.Tuple

// Dict is a keyed container of values.
type Dict = autodiff.Dict

// Box is a value being traced.
type Box = autodiff.Box

// Kind classifies values for signature dispatch.
type Kind = autodiff.Kind

// Value kinds.
const (
	AnyKind    = autodiff.AnyKind
	ScalarKind = autodiff.ScalarKind
	ArrayKind  = autodiff.ArrayKind
	TupleKind  = autodiff.TupleKind
	DictKind   = autodiff.DictKind
)

// Engine dispatches primitives and computes gradients.
type Engine = autodiff.Engine

// Config controls engine behavior.
type Config = autodiff.Config

// Registry maps op ids and signatures to primitives.
type Registry = autodiff.Registry

// Primitive is one registration of an op for a signature.
type Primitive = autodiff.Primitive

// ForwardFunc computes a primitive on plain values.
type ForwardFunc = autodiff.ForwardFunc

// BackwardFunc computes one argument's gradient contribution.
type BackwardFunc = autodiff.BackwardFunc

// Func is a differentiable function of values.
type Func = autodiff.Func

// GradFunc returns a gradient.
type GradFunc = autodiff.GradFunc

// GradLossFunc returns a gradient and the function value.
type GradLossFunc = autodiff.GradLossFunc

// GradcheckConfig controls numeric gradient checking.
type GradcheckConfig = autodiff.GradcheckConfig

// OpError locates a failure at an argument position of a primitive.
type OpError = autodiff.OpError

// Errors.
var (
	ErrNonDifferentiable  = autodiff.ErrNonDifferentiable
	ErrShapeMismatch      = autodiff.ErrShapeMismatch
	ErrUnknownOp          = autodiff.ErrUnknownOp
	ErrNoSignature        = autodiff.ErrNoSignature
	ErrDuplicatePrimitive = autodiff.ErrDuplicatePrimitive
	ErrNonScalarOutput    = autodiff.ErrNonScalarOutput
	ErrTapeOrder          = autodiff.ErrTapeOrder
	ErrInvalidArgument    = autodiff.ErrInvalidArgument
)

// NewEngine creates an engine with the builtin primitives and default config.
func NewEngine() *Engine {
	return autodiff.New(prims.NewRegistry(), autodiff.DefaultConfig())
}

// New creates an engine over a custom registry.
func New(reg *Registry, cfg Config) *Engine {
	return autodiff.New(reg, cfg)
}

// NewRegistry returns a registry holding the builtin primitives. Custom
// primitives can be registered on it before creating an engine.
func NewRegistry() *Registry {
	return prims.NewRegistry()
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() Config {
	return autodiff.DefaultConfig()
}

// DefaultGradcheckConfig returns the standard gradcheck configuration.
func DefaultGradcheckConfig() GradcheckConfig {
	return autodiff.DefaultGradcheckConfig()
}

// GetVal strips tracing from v. Nothing computed from the result is
// differentiated.
func GetVal(v Value) Value {
	return autodiff.GetVal(v)
}
