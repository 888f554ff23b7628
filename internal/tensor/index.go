package tensor

import (
	"github.com/pkg/errors"
)

// Slice selects the range [start, end) along dim.
//
// When the selected elements are contiguous in the parent's memory the result
// is a view sharing the parent's block. Otherwise the elements are copied
// into a fresh block with device-to-device copies.
func (t *Tensor) Slice(dim, start, end int) (*Tensor, error) {
	if err := t.ctx.checkActive("slice", t); err != nil {
		return nil, err
	}
	dim, err := t.shape.Axis(dim)
	if err != nil {
		return nil, err
	}
	if start < 0 || end > t.shape[dim] || start >= end {
		return nil, errors.Wrapf(ErrInvalidIndex, "slice [%d:%d] of dimension %d with size %d",
			start, end, dim, t.shape[dim])
	}

	shape := t.shape.Clone()
	shape[dim] = end - start
	esize := t.dtype.Size()

	if isContiguous(shape, t.stride) {
		return t.view(t.offset+start*t.stride[dim]*esize, shape)
	}

	out, err := Empty(t.ctx, shape, t.dtype)
	if err != nil {
		return nil, err
	}
	outer := Shape(t.shape[:dim]).NumElements()
	chunk := (end - start) * t.stride[dim] * esize
	span := t.shape[dim] * t.stride[dim] * esize
	drv := t.ctx.driver()
	for o := 0; o < outer; o++ {
		src := t.offset + o*span + start*t.stride[dim]*esize
		if err := drv.Copy(out.Ptr(), o*chunk, t.Ptr(), src, chunk); err != nil {
			out.Release()
			return nil, errors.WithMessage(err, "slice")
		}
	}
	return out, nil
}

// Index gathers the rows listed in indices along the first dimension. The
// result is always a copy, even for a single contiguous run of rows.
func (t *Tensor) Index(indices []int) (*Tensor, error) {
	if err := t.ctx.checkActive("index", t); err != nil {
		return nil, err
	}
	if len(t.shape) == 0 {
		return nil, errors.Wrap(ErrInvalidIndex, "index of a 0-d tensor")
	}
	if len(indices) == 0 {
		return nil, errors.Wrap(ErrInvalidIndex, "empty index list")
	}
	for _, i := range indices {
		if i < 0 || i >= t.shape[0] {
			return nil, errors.Wrapf(ErrInvalidIndex, "index %d out of range for dimension of size %d", i, t.shape[0])
		}
	}

	shape := t.shape.Clone()
	shape[0] = len(indices)
	out, err := Empty(t.ctx, shape, t.dtype)
	if err != nil {
		return nil, err
	}
	row := t.stride[0] * t.dtype.Size()
	drv := t.ctx.driver()
	for k, i := range indices {
		if err := drv.Copy(out.Ptr(), k*row, t.Ptr(), t.offset+i*row, row); err != nil {
			out.Release()
			return nil, errors.WithMessage(err, "index")
		}
	}
	return out, nil
}

// Reshape returns a view with a new shape and the same number of elements.
func (t *Tensor) Reshape(shape Shape) (*Tensor, error) {
	if err := t.ctx.checkActive("reshape", t); err != nil {
		return nil, err
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != t.NumElements() {
		return nil, errors.Wrapf(ErrShapeMismatch, "cannot reshape %v (%d elements) to %v (%d elements)",
			t.shape, t.NumElements(), shape, shape.NumElements())
	}
	return t.view(t.offset, shape)
}

// Clone copies the tensor into a fresh block.
func (t *Tensor) Clone() (*Tensor, error) {
	if err := t.ctx.checkActive("clone", t); err != nil {
		return nil, err
	}
	out, err := Empty(t.ctx, t.shape, t.dtype)
	if err != nil {
		return nil, err
	}
	if err := t.ctx.driver().Copy(out.Ptr(), 0, t.Ptr(), t.offset, t.ByteSize()); err != nil {
		out.Release()
		return nil, errors.WithMessage(err, "clone")
	}
	return out, nil
}
