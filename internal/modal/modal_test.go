package modal

import (
	"testing"

	"github.com/cespare/ecnf/internal/config"
	"github.com/cespare/ecnf/internal/sat"
	"github.com/cespare/ecnf/internal/trail"
)

func lit(v int) trail.Literal {
	if v < 0 {
		return trail.NewLiteral(trail.Atom(-v), true)
	}
	return trail.NewLiteral(trail.Atom(v), false)
}

// newTree builds a root driver over atoms {1: rigid r, 2: head h} plus one
// Existential child whose own core is over the same atom 1 (its only
// rigid atom) and holds exactly the given childClauses, per spec.md §4.7's
// "propagates internally and ... reports either UNSAT ... or SAT".
func newTree(t *testing.T, childClauses [][]trail.Literal) (root *sat.Driver, reg *Registry, child *Node) {
	t.Helper()
	root = sat.NewDriver(2, config.Default())
	reg = NewRegistry(root.Tr)
	root.RegisterEngine(trail.EngineModal, reg)

	core := sat.NewDriver(1, config.Default())
	for _, c := range childClauses {
		if !core.AddClause(c) {
			t.Fatalf("AddClause(%v) rejected building child core", c)
		}
	}
	rootNode := &Node{Core: root}
	child = NewNode(1, Existential, lit(2), []trail.Atom{1}, core, rootNode, reg)
	return root, reg, child
}

func TestNodePushesRigidAtomIntoChildCore(t *testing.T) {
	root, _, child := newTree(t, nil)
	if _, ok := root.Tr.Assign(lit(1), trail.DecisionReason); !ok {
		t.Fatalf("assigning rigid atom on root failed")
	}
	root.Bus.Notify(lit(1))
	if c := root.Bus.PropagateUntilFixpoint(); c != nil {
		t.Fatalf("unexpected conflict: %v", c)
	}
	if got := child.Core.Tr.AtomValue(1); got != trail.True {
		t.Fatalf("child core's rigid atom = %v, want True", got)
	}
}

func TestNodeSearchesAndAssertsHeadTrueOnceReady(t *testing.T) {
	root, _, child := newTree(t, nil)
	if _, ok := root.Tr.Assign(lit(1), trail.DecisionReason); !ok {
		t.Fatalf("assigning rigid atom failed")
	}
	root.Bus.Notify(lit(1))
	if c := root.Bus.PropagateUntilFixpoint(); c != nil {
		t.Fatalf("unexpected conflict pushing rigid atom: %v", c)
	}
	if root.Tr.Value(lit(2)) != trail.Undef {
		t.Fatalf("head decided before OnFullAssignment ran")
	}
	if !child.ReadyToSearch() {
		t.Fatalf("child not ready to search once its only rigid atom is known")
	}
	if c := root.Bus.OnFullAssignment(); c != nil {
		t.Fatalf("unexpected conflict from OnFullAssignment: %v", c)
	}
	if got := root.Tr.Value(lit(2)); got != trail.True {
		t.Fatalf("head = %v, want True (child core is trivially SAT)", got)
	}
	reason := root.Tr.ReasonOf(trail.Atom(2))
	if reason.Kind != trail.ReasonTheory || reason.Engine != trail.EngineModal {
		t.Fatalf("head reason = %+v, want a theory reason tagged EngineModal", reason)
	}
}

func TestNodeReportsConflictWhenChildCoreRejectsRigidAtom(t *testing.T) {
	// The child's core requires atom 1 false; the root decides it true,
	// so the child is UNSAT once its only rigid atom is pushed down.
	root, _, child := newTree(t, [][]trail.Literal{{lit(-1)}})
	if _, ok := root.Tr.Assign(lit(1), trail.DecisionReason); !ok {
		t.Fatalf("assigning rigid atom failed")
	}
	root.Bus.Notify(lit(1))
	conflict := root.Bus.PropagateUntilFixpoint()
	if conflict == nil {
		t.Fatalf("expected pushing the rigid atom down to report the child core's conflict, got nil")
	}
	_ = child
}

func TestNodeExplainResolvesThroughRegistry(t *testing.T) {
	root, reg, _ := newTree(t, nil)
	if _, ok := root.Tr.Assign(lit(1), trail.DecisionReason); !ok {
		t.Fatalf("assigning rigid atom failed")
	}
	root.Bus.Notify(lit(1))
	if c := root.Bus.PropagateUntilFixpoint(); c != nil {
		t.Fatalf("unexpected conflict: %v", c)
	}
	if c := root.Bus.OnFullAssignment(); c != nil {
		t.Fatalf("unexpected conflict: %v", c)
	}
	clause := reg.Explain(trail.Atom(2))
	if clause == nil || len(clause.Lits) == 0 {
		t.Fatalf("Explain(head atom) = %v, want a non-empty reason clause", clause)
	}
	foundHead := false
	for _, l := range clause.Lits {
		if l == lit(2) {
			foundHead = true
		}
	}
	if !foundHead {
		t.Fatalf("reason clause %v does not assert the head literal", clause.Lits)
	}
}

func TestNodeOnBacktrackUnwindsChildCore(t *testing.T) {
	root, _, child := newTree(t, nil)
	root.Tr.NewDecisionLevel()
	if _, ok := root.Tr.Assign(lit(1), trail.DecisionReason); !ok {
		t.Fatalf("assigning rigid atom failed")
	}
	root.Bus.Notify(lit(1))
	if c := root.Bus.PropagateUntilFixpoint(); c != nil {
		t.Fatalf("unexpected conflict: %v", c)
	}
	if got := child.Core.Tr.AtomValue(1); got != trail.True {
		t.Fatalf("child core's rigid atom = %v, want True before backtrack", got)
	}
	root.BacktrackTo(0)
	if got := child.Core.Tr.AtomValue(1); got != trail.Undef {
		t.Fatalf("child core's rigid atom = %v, want Undef after backtracking root to level 0", got)
	}
}

func TestReadyToSearchFalseUntilAllRigidAtomsKnown(t *testing.T) {
	root := sat.NewDriver(3, config.Default())
	reg := NewRegistry(root.Tr)
	root.RegisterEngine(trail.EngineModal, reg)
	core := sat.NewDriver(2, config.Default())
	rootNode := &Node{Core: root}
	child := NewNode(1, Existential, lit(3), []trail.Atom{1, 2}, core, rootNode, reg)

	if child.ReadyToSearch() {
		t.Fatalf("ReadyToSearch true with no rigid atoms pushed yet")
	}
	if _, ok := root.Tr.Assign(lit(1), trail.DecisionReason); !ok {
		t.Fatalf("assign failed")
	}
	root.Bus.Notify(lit(1))
	if c := root.Bus.PropagateUntilFixpoint(); c != nil {
		t.Fatalf("unexpected conflict: %v", c)
	}
	if child.ReadyToSearch() {
		t.Fatalf("ReadyToSearch true with only one of two rigid atoms known")
	}
	if _, ok := root.Tr.Assign(lit(-2), trail.DecisionReason); !ok {
		t.Fatalf("assign failed")
	}
	root.Bus.Notify(lit(-2))
	if c := root.Bus.PropagateUntilFixpoint(); c != nil {
		t.Fatalf("unexpected conflict: %v", c)
	}
	if !child.ReadyToSearch() {
		t.Fatalf("ReadyToSearch false once both rigid atoms are known")
	}
}
