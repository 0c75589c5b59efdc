package opt

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

// newProblem builds the spec.md §8 S6 scenario: clauses {l1∨l2}, {l2∨l3}
// over candidates {l1,l2,l3}, whose subset-minimal model is {l2}.
func newProblem(t *testing.T) *sat.Driver {
	t.Helper()
	d := sat.NewDriver(3, config.Default())
	if !d.AddClause([]trail.Literal{lit(1), lit(2)}) {
		t.Fatalf("AddClause(l1∨l2) rejected")
	}
	if !d.AddClause([]trail.Literal{lit(2), lit(3)}) {
		t.Fatalf("AddClause(l2∨l3) rejected")
	}
	return d
}

func TestMinimizeSubsetFindsMinimalModel(t *testing.T) {
	d := newProblem(t)
	p := Problem{Mode: MinimizeSubset, Candidates: []trail.Literal{lit(1), lit(2), lit(3)}}
	res := Minimize(d, p)
	if res.Status != sat.StatusSat {
		t.Fatalf("Status = %v, want StatusSat", res.Status)
	}
	if res.Cost != 1 {
		t.Fatalf("Cost = %d, want 1", res.Cost)
	}
	if res.Model[2] != trail.True {
		t.Fatalf("Model[l2] = %v, want True", res.Model[2])
	}
	if res.Model[1] != trail.False || res.Model[3] != trail.False {
		t.Fatalf("Model = %v, want only l2 true", res.Model)
	}
}

func TestMinimizeOrderedPrefersEarlierFalse(t *testing.T) {
	// Ordered over {l2,l1,l3}: l2 is most important to falsify, and it
	// can be: with l2 false, l1 and l3 both true satisfy both clauses.
	// The loop locks l2 false, after which neither l1 nor l3 can be
	// falsified.
	d := newProblem(t)
	p := Problem{Mode: MinimizeOrdered, Candidates: []trail.Literal{lit(2), lit(1), lit(3)}}
	res := Minimize(d, p)
	if res.Status != sat.StatusSat {
		t.Fatalf("Status = %v, want StatusSat", res.Status)
	}
	if res.Model[2] != trail.False {
		t.Fatalf("Model[l2] = %v, want False (l2 is tried first and can be falsified)", res.Model[2])
	}
}

func TestMinimizeWeightedSumPrefersHeavierFalse(t *testing.T) {
	// l1 is heaviest; the loop tries falsifying it first. With l1 false,
	// l2 must be true to satisfy l1∨l2, which also satisfies l2∨l3, so
	// l3 can then be falsified too, leaving only l2 (weight 1) true.
	d := newProblem(t)
	p := Problem{
		Mode:       MinimizeWeightedSum,
		Candidates: []trail.Literal{lit(1), lit(2), lit(3)},
		Weights:    []int64{5, 1, 3},
	}
	res := Minimize(d, p)
	if res.Status != sat.StatusSat {
		t.Fatalf("Status = %v, want StatusSat", res.Status)
	}
	if res.Cost != 1 {
		t.Fatalf("Cost = %d, want 1 (only l2 weight 1 true)", res.Cost)
	}
}

func TestMinimizeUnsatProblemReportsUnsat(t *testing.T) {
	d := sat.NewDriver(1, config.Default())
	if !d.AddClause([]trail.Literal{lit(1)}) {
		t.Fatalf("AddClause rejected")
	}
	if !d.AddClause([]trail.Literal{lit(-1)}) {
		t.Fatalf("AddClause rejected")
	}
	res := Minimize(d, Problem{Mode: MinimizeSubset, Candidates: []trail.Literal{lit(1)}})
	if res.Status != sat.StatusUnsat {
		t.Fatalf("Status = %v, want StatusUnsat", res.Status)
	}
}
