package autodiff

import "fmt"

// Box wraps a value computed while a tape records. Leaves are the boxed
// arguments of a gradient call and have no node.
type Box struct {
	val  Value
	tape *Tape
	node *Node
}

// Kind returns the kind of the wrapped value.
func (b *Box) Kind() Kind { return b.val.Kind() }
func (b *Box) isValue()   {}

// Value returns the wrapped value.
func (b *Box) Value() Value {
	return b.val
}

// Tape returns the tape the box belongs to.
func (b *Box) Tape() *Tape {
	return b.tape
}

// Node returns the node that produced the box, or nil for a leaf.
func (b *Box) Node() *Node {
	return b.node
}

func (b *Box) String() string {
	return fmt.Sprintf("Box(%v, tape %d)", b.val, b.tape.id)
}
