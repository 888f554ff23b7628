package autodiff

import (
	"fmt"

	"github.com/born-ml/gradtape/internal/tensor"
	"github.com/pkg/errors"
)

var (
	// ErrNonDifferentiable is returned when a tracked argument reaches a
	// primitive that has no backward function for its position.
	ErrNonDifferentiable = errors.New("primitive is not differentiable in this argument")

	// ErrShapeMismatch is returned when a backward function produces a
	// gradient that does not conform to its forward argument.
	ErrShapeMismatch = tensor.ErrShapeMismatch

	// ErrUnknownOp is returned by Lookup for an op id with no registration.
	ErrUnknownOp = errors.New("unknown op")

	// ErrNoSignature is returned when an op exists but no registration
	// matches the argument kinds.
	ErrNoSignature = errors.New("no matching signature")

	// ErrDuplicatePrimitive is returned when (op, signature) is registered twice.
	ErrDuplicatePrimitive = errors.New("duplicate primitive")

	// ErrNonScalarOutput is returned when a differentiated function returns
	// a tracked value with more than one element.
	ErrNonScalarOutput = errors.New("differentiated function must return a scalar")

	// ErrTapeOrder is returned when a tape other than the innermost one is retired.
	ErrTapeOrder = errors.New("tape retired out of order")

	// ErrInvalidArgument is returned for malformed call arguments.
	ErrInvalidArgument = errors.New("invalid argument")
)

// OpError locates a failure at an argument position of a primitive.
type OpError struct {
	Op  string
	Arg int
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: argument %d: %v", e.Op, e.Arg, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
