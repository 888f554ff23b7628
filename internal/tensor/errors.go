package tensor

import "github.com/pkg/errors"

var (
	// ErrDeviceMismatch is returned when an operation mixes devices or runs on
	// a tensor that does not live on the active device.
	ErrDeviceMismatch = errors.New("device mismatch")

	// ErrDTypeMismatch is returned when operands have different dtypes, or a
	// host slice does not match the tensor dtype.
	ErrDTypeMismatch = errors.New("dtype mismatch")

	// ErrShapeMismatch is returned for shapes that cannot be combined.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrInvalidIndex is returned for out-of-range slices and indices.
	ErrInvalidIndex = errors.New("invalid index")

	// ErrReleased is returned when a released tensor is used.
	ErrReleased = errors.New("tensor released")
)
