package autodiff

import (
	"github.com/born-ml/gradtape/internal/tensor"
	"github.com/pkg/errors"
)

// Func is a function of values built from engine calls.
type Func func(args ...Value) (Value, error)

// GradFunc returns the gradient of a Func with respect to one argument.
type GradFunc func(args ...Value) (Value, error)

// GradLossFunc returns the gradient together with the function value.
type GradLossFunc func(args ...Value) (grad, loss Value, err error)

// Grad returns a function computing the gradient of f with respect to
// argument argIndex (0-based). f must return a scalar: a Scalar or a
// one-element Array.
//
// The gradient mirrors the argument: tuples and dicts yield tuples and dicts
// of per-leaf gradients. Leaves that do not influence the result get zero.
func (e *Engine) Grad(f Func, argIndex int) GradFunc {
	gl := e.GradLoss(f, argIndex)
	return func(args ...Value) (Value, error) {
		g, _, err := gl(args...)
		return g, err
	}
}

// GradLoss is like Grad but also returns the value of f.
func (e *Engine) GradLoss(f Func, argIndex int) GradLossFunc {
	return func(args ...Value) (Value, Value, error) {
		return e.gradLoss(f, argIndex, args)
	}
}

func (e *Engine) gradLoss(f Func, argIndex int, args []Value) (grad, loss Value, err error) {
	if argIndex < 0 || argIndex >= len(args) {
		return nil, nil, errors.Wrapf(ErrInvalidArgument, "argument index %d out of range for %d arguments",
			argIndex, len(args))
	}

	tape := e.push()
	defer func() {
		if rerr := e.retire(tape); rerr != nil && err == nil {
			grad, loss, err = nil, nil, rerr
		}
	}()

	arg := GetVal(args[argIndex])
	boxed := boxLeaves(arg, tape)
	callArgs := make([]Value, len(args))
	copy(callArgs, args)
	callArgs[argIndex] = boxed

	out, err := f(callArgs...)
	if err != nil {
		return nil, nil, err
	}

	result, ok := out.(*Box)
	if !ok || result.tape != tape {
		// The result does not depend on the argument.
		e.log.V(2).Info("disconnected graph, returning zero gradient", "tape", tape.id, "arg", argIndex)
		zero, err := zerosLike(arg)
		if err != nil {
			return nil, nil, err
		}
		return zero, GetVal(out), nil
	}

	seed, err := seedFor(result.val)
	if err != nil {
		return nil, nil, err
	}

	tape.transition(ReverseWalking)
	grads, err := e.backward(tape, result, seed)
	if err != nil {
		return nil, nil, err
	}

	grad, err = collectLeaves(boxed, grads)
	if err != nil {
		return nil, nil, err
	}
	return grad, result.val, nil
}

// backward walks tape from the last node to the first and returns the
// accumulated gradient of every reached box.
func (e *Engine) backward(tape *Tape, result *Box, seed Value) (map[*Box]Value, error) {
	grads := map[*Box]Value{result: seed}

	for i := len(tape.nodes) - 1; i >= 0; i-- {
		n := tape.nodes[i]
		g, ok := grads[n.Out]
		if !ok {
			continue
		}
		for pos, a := range n.Args {
			if _, tracked := unbox(a, tape); !tracked {
				continue
			}
			bwd := n.Prim.BackwardAt(pos)
			if bwd == nil {
				return nil, &OpError{Op: n.Op, Arg: pos, Err: ErrNonDifferentiable}
			}
			contrib, err := bwd(g, n.Out.val, n.inputs...)
			if err != nil {
				return nil, &OpError{Op: n.Op, Arg: pos, Err: err}
			}
			if err := conforms(contrib, n.inputs[pos]); err != nil {
				return nil, &OpError{Op: n.Op, Arg: pos, Err: err}
			}
			if err := scatter(a, contrib, tape, grads); err != nil {
				return nil, &OpError{Op: n.Op, Arg: pos, Err: err}
			}
		}
		if n.Out != result {
			delete(grads, n.Out)
		}
	}

	e.log.V(4).Info("reverse walk done", "tape", tape.id, "nodes", len(tape.nodes))
	return grads, nil
}

// scatter adds gradient g of argument a to the boxes of tape inside a. A
// container argument receives a container gradient of the same structure,
// whose pieces go to the boxes at the matching positions. nil is zero.
func scatter(a, g Value, tape *Tape, grads map[*Box]Value) error {
	if g == nil {
		return nil
	}
	switch x := a.(type) {
	case *Box:
		if x.tape != tape {
			return nil
		}
		sum, err := addValues(grads[x], g)
		if err != nil {
			return err
		}
		grads[x] = sum
	case Tuple:
		gx := g.(Tuple)
		for i, e := range x {
			if err := scatter(e, gx[i], tape, grads); err != nil {
				return err
			}
		}
	case Dict:
		gx := g.(Dict)
		for k, e := range x {
			if err := scatter(e, gx[k], tape, grads); err != nil {
				return err
			}
		}
	}
	return nil
}

// boxLeaves boxes every Scalar and Array inside v individually.
func boxLeaves(v Value, tape *Tape) Value {
	switch x := v.(type) {
	case Tuple:
		out := make(Tuple, len(x))
		for i, e := range x {
			out[i] = boxLeaves(e, tape)
		}
		return out
	case Dict:
		out := make(Dict, len(x))
		for k, e := range x {
			out[k] = boxLeaves(e, tape)
		}
		return out
	default:
		return &Box{val: v, tape: tape}
	}
}

// collectLeaves rebuilds the structure of boxed with the gradient of each
// leaf, using zero for leaves never reached.
func collectLeaves(boxed Value, grads map[*Box]Value) (Value, error) {
	switch x := boxed.(type) {
	case Tuple:
		out := make(Tuple, len(x))
		for i, e := range x {
			g, err := collectLeaves(e, grads)
			if err != nil {
				return nil, err
			}
			out[i] = g
		}
		return out, nil
	case Dict:
		out := make(Dict, len(x))
		for k, e := range x {
			g, err := collectLeaves(e, grads)
			if err != nil {
				return nil, err
			}
			out[k] = g
		}
		return out, nil
	case *Box:
		if g, ok := grads[x]; ok && g != nil {
			return g, nil
		}
		return zerosLike(x.val)
	default:
		return nil, errors.Errorf("collectLeaves: unexpected %T", boxed)
	}
}

func seedFor(v Value) (Value, error) {
	switch x := v.(type) {
	case Scalar:
		return Scalar(1), nil
	case Array:
		if x.T.NumElements() != 1 {
			return nil, errors.Wrapf(ErrNonScalarOutput, "result has shape %v", x.T.Shape())
		}
		t, err := tensor.Full(x.T.Context(), x.T.Shape(), x.T.DType(), 1)
		if err != nil {
			return nil, err
		}
		return Array{T: t}, nil
	default:
		return nil, errors.Wrapf(ErrNonScalarOutput, "result is a %s", v.Kind())
	}
}

// zerosLike returns a zero value with the structure, shapes and dtypes of v.
func zerosLike(v Value) (Value, error) {
	switch x := v.(type) {
	case Scalar:
		return Scalar(0), nil
	case Array:
		t, err := tensor.Zeros(x.T.Context(), x.T.Shape(), x.T.DType())
		if err != nil {
			return nil, err
		}
		return Array{T: t}, nil
	case Tuple:
		out := make(Tuple, len(x))
		for i, e := range x {
			z, err := zerosLike(e)
			if err != nil {
				return nil, err
			}
			out[i] = z
		}
		return out, nil
	case Dict:
		out := make(Dict, len(x))
		for k, e := range x {
			z, err := zerosLike(e)
			if err != nil {
				return nil, err
			}
			out[k] = z
		}
		return out, nil
	case *Box:
		return zerosLike(x.val)
	default:
		return nil, errors.Errorf("zerosLike: unexpected %T", v)
	}
}

// conforms checks that gradient g has the kind, shape and dtype of v. nil
// entries inside tuples and dicts stand for zero.
func conforms(g, v Value) error {
	if g == nil {
		return nil
	}
	if g.Kind() != v.Kind() {
		return errors.Wrapf(ErrShapeMismatch, "gradient is a %s, argument is a %s", g.Kind(), v.Kind())
	}
	switch x := v.(type) {
	case Array:
		gt := g.(Array).T
		if !gt.Shape().Equal(x.T.Shape()) || gt.DType() != x.T.DType() {
			return errors.Wrapf(ErrShapeMismatch, "gradient %s%v, argument %s%v",
				gt.DType(), gt.Shape(), x.T.DType(), x.T.Shape())
		}
	case Tuple:
		gx := g.(Tuple)
		if len(gx) != len(x) {
			return errors.Wrapf(ErrShapeMismatch, "gradient tuple of %d, argument tuple of %d", len(gx), len(x))
		}
		for i := range x {
			if err := conforms(gx[i], x[i]); err != nil {
				return errors.WithMessagef(err, "tuple element %d", i)
			}
		}
	case Dict:
		for k, ge := range g.(Dict) {
			ve, ok := x[k]
			if !ok {
				return errors.Wrapf(ErrShapeMismatch, "gradient key %q not in argument", k)
			}
			if err := conforms(ge, ve); err != nil {
				return errors.WithMessagef(err, "dict key %q", k)
			}
		}
	}
	return nil
}

// addValues sums two gradients of the same structure. nil is zero.
func addValues(a, b Value) (Value, error) {
	if a == nil {
		return b, nil
	}
	if b == nil {
		return a, nil
	}
	switch x := a.(type) {
	case Scalar:
		return x + b.(Scalar), nil
	case Array:
		t, err := tensor.Binary(tensor.OpAdd, x.T, b.(Array).T)
		if err != nil {
			return nil, err
		}
		return Array{T: t}, nil
	case Tuple:
		y := b.(Tuple)
		out := make(Tuple, len(x))
		for i := range x {
			s, err := addValues(x[i], y[i])
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	case Dict:
		out := make(Dict, len(x))
		for k, v := range x {
			out[k] = v
		}
		for k, v := range b.(Dict) {
			s, err := addValues(out[k], v)
			if err != nil {
				return nil, err
			}
			out[k] = s
		}
		return out, nil
	default:
		return nil, errors.Errorf("addValues: unexpected %T", a)
	}
}
