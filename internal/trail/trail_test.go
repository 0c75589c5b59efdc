package trail

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestLiteralEncoding(t *testing.T) {
	l := NewLiteral(5, false)
	if l.Atom() != 5 || l.Negated() {
		t.Fatalf("NewLiteral(5, false) = %v", l)
	}
	neg := l.Negate()
	if neg.Atom() != 5 || !neg.Negated() {
		t.Fatalf("Negate() = %v", neg)
	}
	if neg.Negate() != l {
		t.Fatalf("double negate: got %v, want %v", neg.Negate(), l)
	}
}

func TestAssignAndValue(t *testing.T) {
	tr := New(3)
	pos := NewLiteral(1, false)
	conflict, ok := tr.Assign(pos, DecisionReason)
	if conflict != nil || !ok {
		t.Fatalf("Assign(pos) = (%v, %v), want (nil, true)", conflict, ok)
	}
	if got := tr.Value(pos); got != True {
		t.Fatalf("Value(pos) = %v, want true", got)
	}
	if got := tr.Value(pos.Negate()); got != False {
		t.Fatalf("Value(neg) = %v, want false", got)
	}

	// Re-asserting the same literal is a no-op.
	conflict, ok = tr.Assign(pos, DecisionReason)
	if conflict != nil || !ok {
		t.Fatalf("re-Assign(pos) = (%v, %v), want (nil, true)", conflict, ok)
	}

	// Asserting the opposite literal conflicts.
	c := &Clause{Lits: []Literal{pos.Negate()}}
	conflict, ok = tr.Assign(pos.Negate(), ClauseReason(c))
	if ok || conflict != c {
		t.Fatalf("Assign(neg) = (%v, %v), want (%v, false)", conflict, ok, c)
	}
}

func TestBacktrackMonotonicity(t *testing.T) {
	tr := New(4)
	var unassigned []Record
	tr.UnassignHooks = append(tr.UnassignHooks, func(r Record) {
		unassigned = append(unassigned, r)
	})

	tr.NewDecisionLevel() // level 1
	tr.Assign(NewLiteral(1, false), DecisionReason)
	tr.NewDecisionLevel() // level 2
	tr.Assign(NewLiteral(2, false), DecisionReason)
	tr.Assign(NewLiteral(3, true), ClauseReason(&Clause{}))

	if tr.CurrentLevel() != 2 {
		t.Fatalf("CurrentLevel() = %d, want 2", tr.CurrentLevel())
	}

	tr.BacktrackTo(1)
	if tr.CurrentLevel() != 1 {
		t.Fatalf("CurrentLevel() after backtrack = %d, want 1", tr.CurrentLevel())
	}
	if tr.Value(NewLiteral(1, false)) != True {
		t.Fatalf("atom 1 should survive backtrack to level 1")
	}
	if tr.AtomValue(2) != Undef || tr.AtomValue(3) != Undef {
		t.Fatalf("atoms 2,3 should be unassigned after backtrack")
	}
	want := []Record{
		{Lit: NewLiteral(3, true), Level: 2, Reason: ClauseReason(&Clause{}), Time: 2},
		{Lit: NewLiteral(2, false), Level: 2, Reason: DecisionReason, Time: 1},
	}
	if diff := cmp.Diff(want, unassigned, cmpopts.IgnoreFields(Reason{}, "Clause")); diff != "" {
		t.Fatalf("unassign hook order mismatch (-want +got):\n%s", diff)
	}

	// Backtracking further then re-running the same decisions should
	// reach an equivalent state (§8 property 9).
	tr.BacktrackTo(0)
	tr.NewDecisionLevel()
	tr.Assign(NewLiteral(2, false), DecisionReason)
	if tr.Value(NewLiteral(2, false)) != True {
		t.Fatalf("re-decided atom 2 should be true")
	}
}

func TestIsTotal(t *testing.T) {
	tr := New(2)
	if tr.IsTotal() {
		t.Fatalf("fresh trail should not be total")
	}
	tr.NewDecisionLevel()
	tr.Assign(NewLiteral(1, false), DecisionReason)
	tr.Assign(NewLiteral(2, true), DecisionReason)
	if !tr.IsTotal() {
		t.Fatalf("trail with all atoms assigned should be total")
	}
}
