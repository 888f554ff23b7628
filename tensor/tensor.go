// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/gradtape/internal/memory"
	"github.com/born-ml/gradtape/internal/tensor"
)

// DType is a constraint for host element types: float32, float64, int32, int64.
type DType = tensor.DType

// DataType represents the element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// Tensor is a handle to device memory with shape and dtype.
type Tensor = tensor.Tensor

// Context carries the allocator and the active device.
type Context = tensor.Context

// BinaryOp identifies an element-wise binary kernel.
type BinaryOp = tensor.BinaryOp

// UnaryOp identifies an element-wise unary kernel.
type UnaryOp = tensor.UnaryOp

// Binary kernels.
const (
	OpAdd = tensor.OpAdd
	OpSub = tensor.OpSub
	OpMul = tensor.OpMul
	OpDiv = tensor.OpDiv
	OpPow = tensor.OpPow
)

// Unary kernels.
const (
	OpNeg     = tensor.OpNeg
	OpExp     = tensor.OpExp
	OpLog     = tensor.OpLog
	OpTanh    = tensor.OpTanh
	OpSigmoid = tensor.OpSigmoid
	OpReLU    = tensor.OpReLU
	OpSign    = tensor.OpSign
	OpFloor   = tensor.OpFloor
	OpSqrt    = tensor.OpSqrt
	OpAbs     = tensor.OpAbs
	OpStep    = tensor.OpStep
)

// Errors.
var (
	ErrDeviceMismatch = tensor.ErrDeviceMismatch
	ErrDTypeMismatch  = tensor.ErrDTypeMismatch
	ErrShapeMismatch  = tensor.ErrShapeMismatch
	ErrInvalidIndex   = tensor.ErrInvalidIndex
	ErrReleased       = tensor.ErrReleased
)

// NewContext creates a context over alloc with active as the active device.
func NewContext(alloc *memory.Allocator, active memory.DeviceID) (*Context, error) {
	return tensor.NewContext(alloc, active)
}

// NewSimContext creates a context with a single simulated device of the
// given capacity in bytes (0 = unlimited).
func NewSimContext(capacity int, cfg memory.Config) *Context {
	return tensor.NewSimContext(capacity, cfg)
}

// ToDevice copies host data into a new tensor on the active device.
func ToDevice[T DType](ctx *Context, data []T, shape Shape) (*Tensor, error) {
	return tensor.ToDevice(ctx, data, shape)
}

// ToHost copies a tensor into a new host slice. T must match the tensor dtype.
func ToHost[T DType](t *Tensor) ([]T, error) {
	return tensor.ToHost[T](t)
}

// Zeros creates a zero-filled tensor.
func Zeros(ctx *Context, shape Shape, dtype DataType) (*Tensor, error) {
	return tensor.Zeros(ctx, shape, dtype)
}

// Full creates a tensor with every element set to v.
func Full(ctx *Context, shape Shape, dtype DataType, v float64) (*Tensor, error) {
	return tensor.Full(ctx, shape, dtype, v)
}

// FromFloat64s creates a tensor of dtype from float64 values.
func FromFloat64s(ctx *Context, vals []float64, shape Shape, dtype DataType) (*Tensor, error) {
	return tensor.FromFloat64s(ctx, vals, shape, dtype)
}

// Binary applies op element-wise with broadcasting.
func Binary(op BinaryOp, a, b *Tensor) (*Tensor, error) {
	return tensor.Binary(op, a, b)
}

// Unary applies op element-wise.
func Unary(op UnaryOp, a *Tensor) (*Tensor, error) {
	return tensor.Unary(op, a)
}

// MatMul multiplies two 2-D tensors.
func MatMul(a, b *Tensor) (*Tensor, error) {
	return tensor.MatMul(a, b)
}

// Transpose returns a transposed copy of a 2-D tensor.
func Transpose(a *Tensor) (*Tensor, error) {
	return tensor.Transpose(a)
}

// Sum returns the sum of all elements.
func Sum(a *Tensor) (float64, error) {
	return tensor.Sum(a)
}

// SumAxis sums along axis keeping it with size 1.
func SumAxis(a *Tensor, axis int) (*Tensor, error) {
	return tensor.SumAxis(a, axis)
}
