package id

import (
	"testing"

	"github.com/cespare/ecnf/internal/bus"
	"github.com/cespare/ecnf/internal/config"
	"github.com/cespare/ecnf/internal/trail"
)

func lit(v int) trail.Literal {
	if v < 0 {
		return trail.NewLiteral(trail.Atom(-v), true)
	}
	return trail.NewLiteral(trail.Atom(v), false)
}

func hasClause(clauses [][]trail.Literal, want ...trail.Literal) bool {
	for _, c := range clauses {
		if len(c) != len(want) {
			continue
		}
		match := true
		for i := range c {
			if c[i] != want[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func TestDisjCompletionClauses(t *testing.T) {
	r := &Rule{Head: 1, Body: []trail.Literal{lit(2), lit(3)}, Type: Disj}
	clauses := r.CompletionClauses()
	if !hasClause(clauses, lit(-1), lit(2), lit(3)) {
		t.Fatalf("missing (~1 v 2 v 3) in %v", clauses)
	}
	if !hasClause(clauses, lit(-2), lit(1)) {
		t.Fatalf("missing (~2 v 1) in %v", clauses)
	}
	if !hasClause(clauses, lit(-3), lit(1)) {
		t.Fatalf("missing (~3 v 1) in %v", clauses)
	}
}

func TestConjCompletionClauses(t *testing.T) {
	r := &Rule{Head: 1, Body: []trail.Literal{lit(2), lit(3)}, Type: Conj}
	clauses := r.CompletionClauses()
	if !hasClause(clauses, lit(1), lit(-2), lit(-3)) {
		t.Fatalf("missing (1 v ~2 v ~3) in %v", clauses)
	}
	if !hasClause(clauses, lit(-1), lit(2)) {
		t.Fatalf("missing (~1 v 2) in %v", clauses)
	}
	if !hasClause(clauses, lit(-1), lit(3)) {
		t.Fatalf("missing (~1 v 3) in %v", clauses)
	}
}

// TestNegativeSelfLoopCompletionIsContradictory is spec.md §8's S3 seed:
// "a <- not a" has no model under completion alone, a mixed-loop case the
// unfounded-set machinery never even needs to run to reject.
func TestNegativeSelfLoopCompletionIsContradictory(t *testing.T) {
	r := &Rule{Head: 1, Body: []trail.Literal{lit(-1)}, Type: Disj}
	clauses := r.CompletionClauses()
	if !hasClause(clauses, lit(-1), lit(-1)) {
		t.Fatalf("missing clause (~1 v ~1) in %v", clauses)
	}
	if !hasClause(clauses, lit(1), lit(1)) {
		t.Fatalf("missing clause (1 v 1) in %v", clauses)
	}
}

func TestComputeSCCFindsPositiveLoop(t *testing.T) {
	rules := map[trail.Atom]*Rule{
		1: {Head: 1, Body: []trail.Literal{lit(2)}, Type: Disj},
		2: {Head: 2, Body: []trail.Literal{lit(1)}, Type: Disj},
		3: {Head: 3, Body: []trail.Literal{lit(4)}, Type: Disj},
	}
	scc, posLoops := computeSCC(rules)
	if scc[1] == 0 || scc[1] != scc[2] {
		t.Fatalf("atoms 1,2 should share a positive-loop component: scc=%v", scc)
	}
	if !posLoops[scc[1]] {
		t.Fatalf("component %d should be marked as a positive loop", scc[1])
	}
	if scc[3] != 0 {
		t.Fatalf("atom 3 (acyclic, depends on undefined atom 4) should not be in a positive loop: scc=%v", scc)
	}
}

// TestPositiveLoopBothTrueIsUnfounded is spec.md §8's S4 seed scenario: two
// atoms each disjunctively defined only in terms of each other, with no
// external support. Completion clauses alone allow both true or both false;
// only the well-founded recheck at a full assignment rejects "both true" as
// unfounded.
func TestPositiveLoopBothTrueIsUnfounded(t *testing.T) {
	tr := trail.New(3)
	b := bus.New(3)
	e := NewEngine(tr, b, config.Default())
	e.AddRule(&Rule{Head: 1, Body: []trail.Literal{lit(2)}, Type: Disj})
	e.AddRule(&Rule{Head: 2, Body: []trail.Literal{lit(1)}, Type: Disj})
	e.Finish()

	tr.NewDecisionLevel()
	if _, ok := tr.Assign(lit(1), trail.DecisionReason); !ok {
		t.Fatalf("assign x1 failed")
	}
	b.Notify(lit(1))
	if c := b.PropagateUntilFixpoint(); c != nil {
		t.Fatalf("unexpected conflict after x1: %v", c)
	}

	if _, ok := tr.Assign(lit(2), trail.DecisionReason); !ok {
		t.Fatalf("assign x2 failed")
	}
	b.Notify(lit(2))
	if c := b.PropagateUntilFixpoint(); c != nil {
		t.Fatalf("unexpected conflict after x2 (none expected until the full-assignment recheck): %v", c)
	}

	conflict := e.OnFullAssignment()
	if conflict == nil {
		t.Fatalf("expected the well-founded recheck to reject both atoms true with no external support")
	}
	if len(conflict.Lits) != 1 {
		t.Fatalf("expected a unit conflict clause (no external support literals), got %v", conflict.Lits)
	}
	l := conflict.Lits[0]
	if !l.Negated() || (l.Atom() != 1 && l.Atom() != 2) {
		t.Fatalf("expected ~1 or ~2, got %v", l)
	}
}

// TestPositiveLoopWithExternalSupportIsFounded mirrors the same two-atom
// loop but with an external fact atom 3 backing atom 1's rule: both atoms
// true is then a legitimate supported model and the recheck must accept it.
func TestPositiveLoopWithExternalSupportIsFounded(t *testing.T) {
	tr := trail.New(4)
	b := bus.New(4)
	e := NewEngine(tr, b, config.Default())
	e.AddRule(&Rule{Head: 1, Body: []trail.Literal{lit(2), lit(3)}, Type: Disj})
	e.AddRule(&Rule{Head: 2, Body: []trail.Literal{lit(1)}, Type: Disj})
	e.Finish()

	tr.NewDecisionLevel()
	for _, l := range []trail.Literal{lit(3), lit(1), lit(2)} {
		if _, ok := tr.Assign(l, trail.DecisionReason); !ok {
			t.Fatalf("assign %v failed", l)
		}
		b.Notify(l)
		if c := b.PropagateUntilFixpoint(); c != nil {
			t.Fatalf("unexpected conflict assigning %v: %v", l, c)
		}
	}

	if conflict := e.OnFullAssignment(); conflict != nil {
		t.Fatalf("atom 3 is true and external to the {1,2} loop, so this model is well-founded; got conflict %v", conflict)
	}
}

func TestFindUnsupportedCycleIgnoresAcyclicAtoms(t *testing.T) {
	tr := trail.New(3)
	rules := map[trail.Atom]*Rule{
		1: {Head: 1, Body: []trail.Literal{lit(2)}, Type: Disj},
	}
	tr.NewDecisionLevel()
	tr.Assign(lit(2), trail.DecisionReason)
	tr.Assign(lit(1), trail.DecisionReason)
	if got := findUnsupportedCycle(tr, rules); got != nil {
		t.Fatalf("atom 1 is not part of any positive loop, want nil, got %v", got)
	}
}
