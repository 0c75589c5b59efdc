// Package modal implements the second-order driver of spec.md §4.7: a tree
// of subsolvers, each its own instance of the propagation core, sharing one
// flat atom namespace with the rest of the problem. A node's rigid atoms and
// head literal are the only channel between it and its parent: the parent
// pushes assignments of those down into the node's own trail, the node
// propagates internally against its own clauses and theory engines, and at
// the end of its queue it reports upward by assigning literals the parent
// can see (a newly-decided rigid atom, or its own head once determined).
//
// Grounded on original_source/solvers/ModSolver.{hpp,C} and
// SOSolverHier.{hpp,C}: ModSolver's propagateDown/propagate/propagateUp
// trio is this package's Node.PropagateDown plus the upward half of
// OnAssign, and ModSolverData's tree of ModSolver instances is Node's
// Parent/Children wiring.
package modal

import (
	"github.com/cespare/ecnf/internal/bus"
	"github.com/cespare/ecnf/internal/sat"
	"github.com/cespare/ecnf/internal/trail"
)

// Quantifier selects how a node's head is derived from its own search
// outcome, per spec.md §4.7.
type Quantifier uint8

const (
	// Existential heads are true iff the node's core has at least one
	// model under the currently pushed-down rigid assignments.
	Existential Quantifier = iota
	// Universal heads are true iff every model of the node's core agrees.
	// Deciding this exactly requires negating the core's theory, which
	// the grounder/builder layer does not yet support (see DESIGN.md);
	// Node.Search treats Universal the same as Existential until that
	// lands, which is sound for the common case of a node whose core
	// is deterministic once its rigid atoms are fixed.
	Universal
)

// levelMark records, at the moment a node opens one of its own decision
// levels in response to a pushed-down literal, the parent level that
// triggered it, so OnBacktrack can find how far to unwind the node's core.
type levelMark struct {
	parentLevel int
	childLevel  int
}

// Node is one subsolver in the second-order tree. A Node with no Parent is
// the tree's root, driven directly by whoever owns the whole hierarchy
// (via PropagateDown) rather than through the Propagator hooks below.
type Node struct {
	ID    int
	Quant Quantifier
	Head  trail.Literal
	Rigid []trail.Atom

	Core *sat.Driver

	Parent   *Node
	Children []*Node
	registry *Registry

	levelMarks []levelMark
	witness    map[uint64][]trail.Literal
}

// NewNode builds a subsolver node and, unless it is the root, subscribes
// it to its rigid atoms on the parent's bus so that the parent deciding
// any of them drives OnAssign below. core must already have room for
// every atom in rigid (they are shared, global atom IDs, not renumbered).
// reg must be the same Registry the parent's driver was given to
// RegisterEngine(EngineModal, ...) — every sibling under one parent
// shares it.
func NewNode(id int, quant Quantifier, head trail.Literal, rigid []trail.Atom, core *sat.Driver, parent *Node, reg *Registry) *Node {
	n := &Node{
		ID:       id,
		Quant:    quant,
		Head:     head,
		Rigid:    rigid,
		Core:     core,
		Parent:   parent,
		registry: reg,
		witness:  make(map[uint64][]trail.Literal),
	}
	if parent != nil {
		parent.Children = append(parent.Children, n)
		// The head is this node's own output (set only by assertUpward
		// from OnFullAssignment, per ModSolver's analyzeResult), never an
		// input pushed down from the parent, so it is deliberately not
		// subscribed here — only the rigid atoms are.
		for _, a := range n.Rigid {
			l := trail.NewLiteral(a, false)
			n.parentBus().Subscribe(l, n, bus.Slow)
			n.parentBus().Subscribe(l.Negate(), n, bus.Slow)
		}
	}
	return n
}

func (n *Node) parentTr() *trail.Trail {
	if n.Parent == nil {
		return nil
	}
	return n.Parent.Core.Tr
}

func (n *Node) parentBus() *bus.Bus {
	if n.Parent == nil {
		return nil
	}
	return n.Parent.Core.Bus
}

func (n *Node) Kind() trail.EngineTag { return trail.EngineModal }

// OnAssign pushes a newly-known rigid-atom literal down into the node's
// own trail, drains the node's core to a fixpoint, and bubbles any
// newly-determined rigid atoms back up to the parent.
func (n *Node) OnAssign(l trail.Literal) *trail.Clause {
	switch n.Core.Tr.Value(l) {
	case trail.True:
		// The node's own core already holds l (pushed down earlier, or
		// forced by the core's own clauses): nothing to push.
		return nil
	case trail.False:
		// The node's own core already disagrees, independent of this
		// parent assignment (e.g. a clause local to the node's core
		// forced the opposite value before this atom was ever rigid).
		return n.conflictClause()
	}
	if conflict := n.PropagateDown(l); conflict != nil {
		return conflict
	}
	return n.bubbleUp()
}

// PropagateDown opens a new decision level on the node's own core, asserts
// l there, and propagates to a fixpoint. It is exported so the tree's
// owner can push the very first literal (the root has no parent bus to
// subscribe through) without going via the Propagator interface.
func (n *Node) PropagateDown(l trail.Literal) *trail.Clause {
	n.levelMarks = append(n.levelMarks, levelMark{
		parentLevel: n.parentLevel(),
		childLevel:  n.Core.Tr.CurrentLevel(),
	})
	n.Core.Tr.NewDecisionLevel()
	n.Core.Bus.OnNewDecisionLevel()
	if conflict, ok := n.Core.Tr.Assign(l, trail.DecisionReason); !ok {
		if conflict != nil {
			return conflict
		}
		return n.conflictClause()
	}
	if conflict := n.Core.PropagateOnly(); conflict != nil {
		return n.conflictClause()
	}
	return nil
}

func (n *Node) parentLevel() int {
	if n.Parent == nil {
		return 0
	}
	return n.Parent.Core.Tr.CurrentLevel()
}

// bubbleUp reports every rigid atom the node's core has now decided, but
// that the parent does not know yet, upward as a theory-propagated
// assignment on the parent's own trail.
func (n *Node) bubbleUp() *trail.Clause {
	if n.Parent == nil {
		return nil
	}
	pt := n.parentTr()
	for _, a := range n.Rigid {
		v := n.Core.Tr.AtomValue(a)
		if v == trail.Undef || pt.AtomValue(a) != trail.Undef {
			continue
		}
		if conflict := n.assertUpward(trail.NewLiteral(a, v == trail.False)); conflict != nil {
			return conflict
		}
	}
	return nil
}

// assertUpward forces l on the parent's trail, recording the node's
// current rigid/head knowledge as the witness Explain will later replay.
// The caller is invoked from within the parent driver's own propagation
// loop (via OnAssign) for every case except OnFullAssignment, which must
// force one more pass itself since Solve already left its own loop by
// the time OnFullAssignment runs.
func (n *Node) assertUpward(l trail.Literal) *trail.Clause {
	token := n.registry.mint(n)
	n.witness[token] = n.snapshot()
	pt, pb := n.parentTr(), n.parentBus()
	conflict, ok := pt.Assign(l, trail.TheoryReason(trail.EngineModal, token))
	if !ok {
		if conflict != nil {
			return conflict
		}
		return n.conflictClause()
	}
	pb.Notify(l)
	return nil
}

// snapshot captures every rigid/head literal the parent currently knows,
// to serve as the antecedent of a reason clause minted right now.
func (n *Node) snapshot() []trail.Literal {
	pt := n.parentTr()
	var lits []trail.Literal
	if v := pt.Value(n.Head); v != trail.Undef {
		lits = append(lits, trail.NewLiteral(n.Head.Atom(), v == trail.False))
	}
	for _, a := range n.Rigid {
		if v := pt.AtomValue(a); v != trail.Undef {
			lits = append(lits, trail.NewLiteral(a, v == trail.False))
		}
	}
	return lits
}

// conflictClause is the fallback reason when a node's core rejects a
// pushed-down literal outright: the negation of every rigid/head literal
// the parent currently has assigned is unsatisfiable together.
func (n *Node) conflictClause() *trail.Clause {
	lits := n.snapshot()
	out := make([]trail.Literal, len(lits))
	for i, l := range lits {
		out[i] = l.Negate()
	}
	return &trail.Clause{Lits: out, Learnt: true}
}

// ReadyToSearch reports whether every rigid atom has been pushed down
// onto the node's own core trail, the precondition for Search. (Whether
// the head itself is already decided is checked separately by the caller
// — OnFullAssignment short-circuits before ever reaching here.)
func (n *Node) ReadyToSearch() bool {
	for _, a := range n.Rigid {
		if n.Core.Tr.AtomValue(a) == trail.Undef {
			return false
		}
	}
	return true
}

// Search runs the node's core to completion once and derives the head's
// truth value from the outcome, per spec.md §4.7: SAT turns the head
// true, UNSAT turns it false. See the Universal comment above for the
// scope this currently covers.
func (n *Node) Search() (trail.Value, *trail.Clause) {
	result := n.Core.Solve(nil)
	switch result.Status {
	case sat.StatusSat:
		return trail.True, nil
	case sat.StatusUnsat:
		return trail.False, nil
	default:
		return trail.Undef, nil
	}
}

// OnFullAssignment runs the node's search once it is ready and asserts the
// head upward, completing the reporting half of spec.md §4.7's protocol
// for nodes whose head was not already pinned down by rigid propagation.
// Unlike the rigid-atom bubble-up in OnAssign, this method is invoked
// after the parent driver's own propagation loop has already exited (it
// runs from Bus.OnFullAssignment, called once Solve sees a total trail),
// so it must force one extra propagation pass on the parent itself before
// returning, or the freshly-asserted head would never be observed by any
// other subscriber before Solve reports its result.
func (n *Node) OnFullAssignment() *trail.Clause {
	if n.Parent == nil || n.parentTr().Value(n.Head) != trail.Undef {
		return nil
	}
	if !n.ReadyToSearch() {
		return nil
	}
	val, conflict := n.Search()
	if conflict != nil {
		return conflict
	}
	if val == trail.Undef {
		return nil
	}
	if conflict := n.assertUpward(trail.NewLiteral(n.Head.Atom(), val == trail.False)); conflict != nil {
		return conflict
	}
	return n.Parent.Core.PropagateOnly()
}

func (n *Node) OnNewDecisionLevel() {}

// OnBacktrack unwinds the node's own core back to the decision level it
// had open just before the parent reached level, discarding any rigid
// atoms/head knowledge pushed down since.
func (n *Node) OnBacktrack(level int) {
	target := 0
	for len(n.levelMarks) > 0 {
		last := n.levelMarks[len(n.levelMarks)-1]
		if last.parentLevel <= level {
			target = last.childLevel
			break
		}
		n.levelMarks = n.levelMarks[:len(n.levelMarks)-1]
	}
	n.Core.BacktrackTo(target)
}

// Explain delegates to the node's registry for interface completeness;
// reasonClauseFor always dispatches EngineModal through the Registry
// registered on the parent driver, never through an individual Node.
func (n *Node) Explain(a trail.Atom) *trail.Clause {
	if n.registry == nil {
		return n.conflictClause()
	}
	return n.registry.Explain(a)
}

// explainToken rebuilds the reason clause for an upward assignment this
// node minted under token: the negation of the rigid/head snapshot taken
// at the time, implying the asserted literal.
func (n *Node) explainToken(token uint64, a trail.Atom) *trail.Clause {
	w, ok := n.witness[token]
	if !ok {
		return n.conflictClause()
	}
	v := n.parentTr().AtomValue(a)
	lits := []trail.Literal{trail.NewLiteral(a, v == trail.False)}
	for _, l := range w {
		lits = append(lits, l.Negate())
	}
	return &trail.Clause{Lits: lits, Learnt: true}
}
