package tensor

import (
	"fmt"
	"math"
	"runtime"
	"unsafe"

	"github.com/born-ml/gradtape/internal/memory"
	"github.com/pkg/errors"
)

// Tensor is a handle to a region of device memory plus layout metadata.
//
// Every Tensor is dense row-major over its region: views are only produced
// when the selected elements are already contiguous, everything else is
// copied. Each handle owns one reference to the underlying block; Release
// drops it, and a handle that becomes unreachable without Release has its
// reference queued for the allocator's next collection pass.
type Tensor struct {
	ctx    *Context
	ref    *memory.Ref
	device memory.DeviceID
	offset int // bytes from the start of the block
	shape  Shape
	stride []int // elements
	dtype  DataType
}

func wrap(ctx *Context, ref *memory.Ref, offset int, shape Shape, dtype DataType) *Tensor {
	t := &Tensor{
		ctx:    ctx,
		ref:    ref,
		device: ref.Block().Device(),
		offset: offset,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
	}
	runtime.AddCleanup(t, func(r *memory.Ref) { r.Defer() }, ref)
	return t
}

// Empty allocates an uninitialized tensor on the active device. The memory
// may hold data from a previous owner of a pooled block.
func Empty(ctx *Context, shape Shape, dtype DataType) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	ref, err := ctx.alloc.Alloc(ctx.active, shape.NumElements()*dtype.Size())
	if err != nil {
		return nil, err
	}
	return wrap(ctx, ref, 0, shape, dtype), nil
}

// Zeros allocates a zero-filled tensor.
func Zeros(ctx *Context, shape Shape, dtype DataType) (*Tensor, error) {
	t, err := Empty(ctx, shape, dtype)
	if err != nil {
		return nil, err
	}
	if err := t.writeBytes(make([]byte, t.ByteSize())); err != nil {
		t.Release()
		return nil, err
	}
	return t, nil
}

// Full allocates a tensor with every element set to v.
func Full(ctx *Context, shape Shape, dtype DataType, v float64) (*Tensor, error) {
	vals := make([]float64, shape.NumElements())
	for i := range vals {
		vals[i] = v
	}
	return FromFloat64s(ctx, vals, shape, dtype)
}

// ToDevice copies a host slice into a new tensor on the active device.
func ToDevice[T DType](ctx *Context, data []T, shape Shape) (*Tensor, error) {
	if shape.NumElements() != len(data) {
		return nil, errors.Wrapf(ErrShapeMismatch, "shape %v requires %d elements, got %d",
			shape, shape.NumElements(), len(data))
	}
	t, err := Empty(ctx, shape, dataTypeOf[T]())
	if err != nil {
		return nil, err
	}
	if err := t.writeBytes(asBytes(data)); err != nil {
		t.Release()
		return nil, err
	}
	return t, nil
}

// ToHost copies the tensor into a new host slice. T must match the dtype.
func ToHost[T DType](t *Tensor) ([]T, error) {
	if want := dataTypeOf[T](); want != t.dtype {
		return nil, errors.Wrapf(ErrDTypeMismatch, "tensor is %s, host slice is %s", t.dtype, want)
	}
	out := make([]T, t.NumElements())
	if err := t.readBytes(asBytes(out)); err != nil {
		return nil, err
	}
	return out, nil
}

// FromFloat64s creates a tensor of the given dtype from float64 values.
func FromFloat64s(ctx *Context, vals []float64, shape Shape, dtype DataType) (*Tensor, error) {
	if shape.NumElements() != len(vals) {
		return nil, errors.Wrapf(ErrShapeMismatch, "shape %v requires %d elements, got %d",
			shape, shape.NumElements(), len(vals))
	}
	t, err := Empty(ctx, shape, dtype)
	if err != nil {
		return nil, err
	}
	if err := t.writeBytes(encode(vals, dtype)); err != nil {
		t.Release()
		return nil, err
	}
	return t, nil
}

// Float64s copies the tensor to the host converting every element to float64.
func (t *Tensor) Float64s() ([]float64, error) {
	buf := make([]byte, t.ByteSize())
	if err := t.readBytes(buf); err != nil {
		return nil, err
	}
	return decode(buf, t.dtype, t.NumElements()), nil
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Strides returns the element strides.
func (t *Tensor) Strides() []int {
	return t.stride
}

// DType returns the element type.
func (t *Tensor) DType() DataType {
	return t.dtype
}

// Device returns the device holding the tensor's memory.
func (t *Tensor) Device() memory.DeviceID {
	return t.device
}

// Context returns the context the tensor was created in.
func (t *Tensor) Context() *Context {
	return t.ctx
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return t.shape.NumElements()
}

// ByteSize returns the number of bytes covered by the tensor.
func (t *Tensor) ByteSize() int {
	return t.NumElements() * t.dtype.Size()
}

// Offset returns the byte offset into the underlying block.
func (t *Tensor) Offset() int {
	return t.offset
}

// Ptr returns the device pointer of the underlying block.
func (t *Tensor) Ptr() memory.Ptr {
	return t.ref.Block().Ptr()
}

// SharesMemory reports whether t and other are backed by the same block.
func (t *Tensor) SharesMemory(other *Tensor) bool {
	return t.ref.Block() == other.ref.Block()
}

// Retain returns a new handle to the same memory and layout.
func (t *Tensor) Retain() (*Tensor, error) {
	return t.view(t.offset, t.shape)
}

// view returns a handle sharing t's block with the given layout.
func (t *Tensor) view(offset int, shape Shape) (*Tensor, error) {
	ref, err := t.ref.Retain()
	if err != nil {
		return nil, errors.Wrapf(ErrReleased, "retain: %v", err)
	}
	return wrap(t.ctx, ref, offset, shape, t.dtype), nil
}

// Release drops this handle. When no handle to the block remains the block
// goes back to the pool. Releasing twice is a no-op.
func (t *Tensor) Release() {
	t.ref.Release()
}

// Released reports whether Release has been called on this handle.
func (t *Tensor) Released() bool {
	return t.ref.Released()
}

// String returns a human-readable description of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor[%s]%v on %v", t.dtype, t.shape, t.device)
}

func (t *Tensor) readBytes(dst []byte) error {
	if err := t.ctx.checkActive("read", t); err != nil {
		return err
	}
	return errors.WithMessage(t.ctx.driver().Read(dst, t.ref.Block().Ptr(), t.offset), "read")
}

func (t *Tensor) writeBytes(src []byte) error {
	if err := t.ctx.checkActive("write", t); err != nil {
		return err
	}
	return errors.WithMessage(t.ctx.driver().Write(t.ref.Block().Ptr(), t.offset, src), "write")
}

// asBytes reinterprets a host slice as raw bytes.
func asBytes[T DType](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	size := int(unsafe.Sizeof(data[0]))
	//nolint:gosec // unsafe.Slice for zero-copy host transfer, length derived from data
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*size)
}

func decode(buf []byte, dtype DataType, n int) []float64 {
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	p := unsafe.Pointer(&buf[0])
	switch dtype {
	case Float32:
		//nolint:gosec // buf holds n float32 values
		for i, v := range unsafe.Slice((*float32)(p), n) {
			out[i] = float64(v)
		}
	case Float64:
		//nolint:gosec // buf holds n float64 values
		copy(out, unsafe.Slice((*float64)(p), n))
	case Int32:
		//nolint:gosec // buf holds n int32 values
		for i, v := range unsafe.Slice((*int32)(p), n) {
			out[i] = float64(v)
		}
	case Int64:
		//nolint:gosec // buf holds n int64 values
		for i, v := range unsafe.Slice((*int64)(p), n) {
			out[i] = float64(v)
		}
	}
	return out
}

func encode(vals []float64, dtype DataType) []byte {
	switch dtype {
	case Float32:
		out := make([]float32, len(vals))
		for i, v := range vals {
			out[i] = float32(v)
		}
		return asBytes(out)
	case Float64:
		out := make([]float64, len(vals))
		copy(out, vals)
		return asBytes(out)
	case Int32:
		out := make([]int32, len(vals))
		for i, v := range vals {
			out[i] = int32(math.Trunc(v))
		}
		return asBytes(out)
	case Int64:
		out := make([]int64, len(vals))
		for i, v := range vals {
			out[i] = int64(math.Trunc(v))
		}
		return asBytes(out)
	default:
		panic(fmt.Sprintf("encode: unsupported dtype %s", dtype))
	}
}
