// Package autodiff implements trace-based reverse-mode automatic
// differentiation.
//
// Functions are ordinary Go code built from Engine.Call (or the convenience
// methods wrapping it). Grad runs the function with its argument wrapped in
// boxes; every primitive applied to a box of the recording tape appends a
// node and returns a new box. The reverse walk then visits the nodes from
// last to first, calling each primitive's backward function and summing
// contributions for values used more than once.
//
// Usage:
//
//	eng := autodiff.New(reg, autodiff.DefaultConfig())
//	loss := func(args ...autodiff.Value) (autodiff.Value, error) {
//		y, err := eng.Mul(args[0], args[1])
//		if err != nil {
//			return nil, err
//		}
//		return eng.Sum(y)
//	}
//	dw, err := eng.Grad(loss, 0)(w, x)
//
// Nested Grad calls use independent tapes. Inside an inner call the boxes
// of an outer tape are constants, so derivatives of derivatives are not
// taken.
package autodiff

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Config controls engine behavior.
type Config struct {
	Logger klog.Logger
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() Config {
	return Config{Logger: klog.Background().WithName("autodiff")}
}

// Engine dispatches primitives and owns the stack of live tapes.
type Engine struct {
	reg    *Registry
	log    klog.Logger
	tapes  []*Tape
	nextID int
}

// New creates an engine over reg.
func New(reg *Registry, cfg Config) *Engine {
	return &Engine{reg: reg, log: cfg.Logger}
}

// Registry returns the engine's primitive registry.
func (e *Engine) Registry() *Registry {
	return e.reg
}

// Depth returns the number of live tapes.
func (e *Engine) Depth() int {
	return len(e.tapes)
}

// active returns the innermost tape if it is recording.
func (e *Engine) active() *Tape {
	if len(e.tapes) == 0 {
		return nil
	}
	t := e.tapes[len(e.tapes)-1]
	if t.state != Recording {
		return nil
	}
	return t
}

// Call applies primitive op to args.
//
// If no argument is a box of the recording tape the forward function runs on
// the plain values and its result is returned as is. Otherwise one node is
// appended to the tape and the result is a new box. Boxes from other tapes
// are treated as constants.
func (e *Engine) Call(op string, args ...Value) (Value, error) {
	tape := e.active()
	inputs := make([]Value, len(args))
	kinds := make([]Kind, len(args))
	tracked := false
	for i, a := range args {
		if a == nil {
			return nil, &OpError{Op: op, Arg: i, Err: errors.Wrap(ErrInvalidArgument, "nil value")}
		}
		v, t := unbox(a, tape)
		inputs[i] = v
		tracked = tracked || t
		kinds[i] = v.Kind()
	}

	prim, err := e.reg.Lookup(op, kinds)
	if err != nil {
		return nil, err
	}
	out, err := prim.Forward(inputs...)
	if err != nil {
		return nil, errors.WithMessage(err, op)
	}
	if !tracked || prim.ZeroGrad {
		return out, nil
	}

	box := tape.record(prim, args, inputs, out)
	e.log.V(5).Info("recorded", "tape", tape.id, "node", box.node.Index, "op", op)
	return box, nil
}

// unbox strips boxes from v, recursing into tuples and dicts, and reports
// whether any of them belongs to tape.
func unbox(v Value, tape *Tape) (Value, bool) {
	switch x := v.(type) {
	case *Box:
		if tape != nil && x.tape == tape {
			return x.val, true
		}
		return GetVal(x.val), false
	case Tuple:
		out := make(Tuple, len(x))
		tracked := false
		for i, e := range x {
			u, t := unbox(e, tape)
			out[i] = u
			tracked = tracked || t
		}
		return out, tracked
	case Dict:
		out := make(Dict, len(x))
		tracked := false
		for k, e := range x {
			u, t := unbox(e, tape)
			out[k] = u
			tracked = tracked || t
		}
		return out, tracked
	default:
		return v, false
	}
}

// push starts a new recording tape on top of the stack.
func (e *Engine) push() *Tape {
	e.nextID++
	t := newTape(e.nextID)
	t.transition(Recording)
	e.tapes = append(e.tapes, t)
	return t
}

// retire marks t retired and pops it. Only the innermost tape can be retired.
func (e *Engine) retire(t *Tape) error {
	if len(e.tapes) == 0 || e.tapes[len(e.tapes)-1] != t {
		return errors.Wrapf(ErrTapeOrder, "tape %d is not the innermost tape", t.id)
	}
	t.transition(Retired)
	e.tapes = e.tapes[:len(e.tapes)-1]
	return nil
}
