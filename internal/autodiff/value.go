package autodiff

import (
	"fmt"

	"github.com/born-ml/gradtape/internal/tensor"
	"github.com/pkg/errors"
)

// Kind classifies values for signature dispatch.
type Kind int

// Value kinds. AnyKind only appears in signatures, where it matches every kind.
const (
	AnyKind Kind = iota
	ScalarKind
	ArrayKind
	TupleKind
	DictKind
)

func (k Kind) String() string {
	switch k {
	case AnyKind:
		return "any"
	case ScalarKind:
		return "scalar"
	case ArrayKind:
		return "array"
	case TupleKind:
		return "tuple"
	case DictKind:
		return "dict"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is anything that flows through primitives: Scalar, Array, Tuple,
// Dict, or a *Box wrapping one of those.
type Value interface {
	Kind() Kind
	isValue()
}

// Scalar is a float64 number.
type Scalar float64

// Kind returns ScalarKind.
func (Scalar) Kind() Kind { return ScalarKind }
func (Scalar) isValue()   {}

// Array wraps a device tensor.
type Array struct {
	T *tensor.Tensor
}

// Kind returns ArrayKind.
func (Array) Kind() Kind { return ArrayKind }
func (Array) isValue()   {}

func (a Array) String() string {
	return a.T.String()
}

// Tuple is an ordered container of values.
type Tuple []Value

// Kind returns TupleKind.
func (Tuple) Kind() Kind { return TupleKind }
func (Tuple) isValue()   {}

// Dict is a keyed container of values.
type Dict map[string]Value

// Kind returns DictKind.
func (Dict) Kind() Kind { return DictKind }
func (Dict) isValue()   {}

// GetVal strips every Box from v, descending into tuples and dicts. The
// result carries no tape, so nothing computed from it is differentiated.
// GetVal of a plain value returns an equal value.
func GetVal(v Value) Value {
	switch x := v.(type) {
	case *Box:
		return GetVal(x.val)
	case Tuple:
		out := make(Tuple, len(x))
		for i, e := range x {
			out[i] = GetVal(e)
		}
		return out
	case Dict:
		out := make(Dict, len(x))
		for k, e := range x {
			out[k] = GetVal(e)
		}
		return out
	default:
		return v
	}
}

// ScalarValue extracts the number from a Scalar or a one-element Array.
func ScalarValue(v Value) (float64, error) {
	switch x := GetVal(v).(type) {
	case Scalar:
		return float64(x), nil
	case Array:
		if x.T.NumElements() != 1 {
			return 0, errors.Wrapf(ErrNonScalarOutput, "array of shape %v", x.T.Shape())
		}
		vals, err := x.T.Float64s()
		if err != nil {
			return 0, err
		}
		return vals[0], nil
	case nil:
		return 0, errors.Wrap(ErrInvalidArgument, "nil value")
	default:
		return 0, errors.Wrapf(ErrNonScalarOutput, "%s value", x.Kind())
	}
}
