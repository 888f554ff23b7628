package autodiff

import "fmt"

// TapeState is the lifecycle stage of a tape.
type TapeState int

// Tape states. Transitions only move forward.
const (
	Inactive TapeState = iota
	Recording
	ReverseWalking
	Retired
)

func (s TapeState) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Recording:
		return "recording"
	case ReverseWalking:
		return "reverse-walking"
	case Retired:
		return "retired"
	default:
		return fmt.Sprintf("TapeState(%d)", int(s))
	}
}

// Node is one recorded primitive application.
type Node struct {
	Index int
	Op    string
	Prim  *Primitive

	// Args are the arguments as passed, boxes included. inputs holds the
	// same arguments unboxed, as seen by Forward.
	Args   []Value
	inputs []Value

	Out *Box
}

// Tape records the primitive applications of one gradient call in order.
type Tape struct {
	id    int
	state TapeState
	nodes []*Node
}

func newTape(id int) *Tape {
	return &Tape{id: id, nodes: make([]*Node, 0, 64)}
}

// ID returns the tape's sequence number within its engine.
func (t *Tape) ID() int {
	return t.id
}

// State returns the tape's current state.
func (t *Tape) State() TapeState {
	return t.state
}

// Len returns the number of recorded nodes.
func (t *Tape) Len() int {
	return len(t.nodes)
}

// Nodes returns the recorded nodes in insertion order.
func (t *Tape) Nodes() []*Node {
	return t.nodes
}

// record appends a node for prim and returns the boxed output.
func (t *Tape) record(prim *Primitive, args, inputs []Value, out Value) *Box {
	n := &Node{
		Index:  len(t.nodes),
		Op:     prim.ID,
		Prim:   prim,
		Args:   args,
		inputs: inputs,
	}
	n.Out = &Box{val: out, tape: t, node: n}
	t.nodes = append(t.nodes, n)
	return n.Out
}

func (t *Tape) transition(to TapeState) {
	if to <= t.state {
		panic(fmt.Sprintf("tape %d: invalid transition %s -> %s", t.id, t.state, to))
	}
	t.state = to
}
