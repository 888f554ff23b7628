package autodiff

import (
	"slices"

	"github.com/pkg/errors"
)

// ForwardFunc computes a primitive on unboxed arguments. It must not keep
// or mutate its arguments.
type ForwardFunc func(args ...Value) (Value, error)

// BackwardFunc returns the gradient contribution for one argument position
// given the output gradient g, the forward output and the unboxed arguments.
type BackwardFunc func(g, out Value, args ...Value) (Value, error)

// Primitive is one registration of an op for a signature.
type Primitive struct {
	ID        string
	Signature []Kind
	Forward   ForwardFunc

	// Backward[i] is the backward function for argument i. A missing or nil
	// entry means the primitive is not differentiable in that argument.
	Backward []BackwardFunc

	// ZeroGrad primitives return untracked results even under tracing.
	ZeroGrad bool
}

// BackwardAt returns the backward function for argument i, or nil.
func (p *Primitive) BackwardAt(i int) BackwardFunc {
	if i < 0 || i >= len(p.Backward) {
		return nil
	}
	return p.Backward[i]
}

func (p *Primitive) matches(kinds []Kind, exact bool) bool {
	if len(p.Signature) != len(kinds) {
		return false
	}
	for i, k := range p.Signature {
		if k == kinds[i] {
			continue
		}
		if exact || k != AnyKind {
			return false
		}
	}
	return true
}

// Registry maps op ids and signatures to primitives.
type Registry struct {
	prims map[string][]*Primitive
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{prims: make(map[string][]*Primitive)}
}

// Register adds a differentiable primitive. backward[i] is the backward
// function for argument i; pass nil for positions that are not differentiable.
func (r *Registry) Register(id string, signature []Kind, forward ForwardFunc, backward ...BackwardFunc) error {
	if len(backward) > len(signature) {
		return errors.Wrapf(ErrInvalidArgument, "register %s: %d backward functions for %d arguments",
			id, len(backward), len(signature))
	}
	return r.add(&Primitive{
		ID:        id,
		Signature: slices.Clone(signature),
		Forward:   forward,
		Backward:  slices.Clone(backward),
	})
}

// RegisterZeroGrad adds a primitive whose results are never tracked. Use it
// for ops whose derivative is zero almost everywhere.
func (r *Registry) RegisterZeroGrad(id string, signature []Kind, forward ForwardFunc) error {
	return r.add(&Primitive{
		ID:        id,
		Signature: slices.Clone(signature),
		Forward:   forward,
		ZeroGrad:  true,
	})
}

func (r *Registry) add(p *Primitive) error {
	if p.Forward == nil {
		return errors.Wrapf(ErrInvalidArgument, "register %s: nil forward", p.ID)
	}
	for _, q := range r.prims[p.ID] {
		if slices.Equal(q.Signature, p.Signature) {
			return errors.Wrapf(ErrDuplicatePrimitive, "%s%v", p.ID, p.Signature)
		}
	}
	r.prims[p.ID] = append(r.prims[p.ID], p)
	return nil
}

// Lookup finds the primitive for id and argument kinds. An exact signature
// wins over one matching through AnyKind; among wildcard matches the first
// registered wins.
func (r *Registry) Lookup(id string, kinds []Kind) (*Primitive, error) {
	candidates, ok := r.prims[id]
	if !ok {
		return nil, errors.Wrap(ErrUnknownOp, id)
	}
	for _, p := range candidates {
		if p.matches(kinds, true) {
			return p, nil
		}
	}
	for _, p := range candidates {
		if p.matches(kinds, false) {
			return p, nil
		}
	}
	return nil, errors.Wrapf(ErrNoSignature, "%s%v", id, kinds)
}

// Ops returns the registered op ids in sorted order.
func (r *Registry) Ops() []string {
	ids := make([]string, 0, len(r.prims))
	for id := range r.prims {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
